package recovery

import (
	"context"
	"io"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Blackdeer1524/PageDB/src/pkg/common"
)

// LogSource is the log as recovery reads it. Next yields records in LSN
// order and io.EOF after the last one.
type LogSource interface {
	Next() (common.LSN, []byte, error)
	ReadAt(lsn common.LSN) ([]byte, error)
}

type Summary struct {
	PassID  uuid.UUID
	Records int
	Redone  int
	Undone  int
	Skipped int
	Losers  int
	Drained int
	Syncs   int
}

// Pass drives the dispatcher over a whole log: every record is redone, then
// the transactions without a commit are rolled back newest record first,
// and finally the limbo set is drained.
type Pass struct {
	id     uuid.UUID
	d      *Dispatcher
	tracer trace.Tracer
	att    ActiveTransactionsTable

	summary Summary
}

func NewPass(d *Dispatcher) *Pass {
	id := uuid.New()
	return &Pass{
		id:      id,
		d:       d,
		tracer:  otel.Tracer(instrumentationName),
		att:     NewATT(),
		summary: Summary{PassID: id},
	}
}

func (p *Pass) ID() uuid.UUID {
	return p.id
}

func (p *Pass) ATT() *ActiveTransactionsTable {
	return &p.att
}

func (p *Pass) Recover(ctx context.Context, src LogSource) (_ Summary, err error) {
	ctx, span := p.tracer.Start(ctx, "recovery.pass", trace.WithAttributes(
		attribute.String("pass.id", p.id.String()),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	p.d.log.Infow("recovery pass started", "pass", p.id.String())

	if err := p.forward(ctx, src); err != nil {
		return p.summary, err
	}

	losers := p.att.Losers()
	p.summary.Losers = len(losers)
	if err := p.backward(ctx, src, losers, OpUndo); err != nil {
		return p.summary, err
	}

	if err := p.finish(ctx); err != nil {
		return p.summary, err
	}

	p.d.log.Infow(
		"recovery pass finished",
		"pass", p.id.String(),
		"records", p.summary.Records,
		"redone", p.summary.Redone,
		"undone", p.summary.Undone,
		"skipped", p.summary.Skipped,
		"losers", p.summary.Losers,
		"drained", p.summary.Drained,
	)
	return p.summary, nil
}

// Rollback aborts one live transaction whose newest record is at lastLSN.
func (p *Pass) Rollback(ctx context.Context, src LogSource, lastLSN common.LSN) (_ Summary, err error) {
	ctx, span := p.tracer.Start(ctx, "recovery.rollback", trace.WithAttributes(
		attribute.String("pass.id", p.id.String()),
		attribute.Int64("lsn", int64(lastLSN)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	p.summary.Losers = 1
	if err := p.backward(ctx, src, []common.LSN{lastLSN}, OpAbort); err != nil {
		return p.summary, err
	}
	if err := p.finish(ctx); err != nil {
		return p.summary, err
	}
	return p.summary, nil
}

func (p *Pass) forward(ctx context.Context, src LogSource) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		lsn, data, err := src.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "read log")
		}

		rec, err := Decode(data)
		if err != nil {
			return errors.Wrapf(err, "record %v", lsn)
		}
		p.att.Insert(rec.Hdr().TxnID, rec.Kind(), lsn)

		res, err := p.d.Dispatch(ctx, rec, lsn, OpRedo)
		if err != nil {
			return err
		}
		p.summary.Records++
		p.summary.Redone += res.Applied
		p.summary.Skipped += res.Skipped

		if err := p.sync(res); err != nil {
			return err
		}
	}
}

// backward undoes the chains starting at heads, always taking the highest
// pending LSN next, so records of interleaved transactions are reverted in
// reverse log order.
func (p *Pass) backward(ctx context.Context, src LogSource, heads []common.LSN, op Op) error {
	pending := make([]common.LSN, 0, len(heads))
	for _, lsn := range heads {
		if !lsn.IsNeverWritten() {
			pending = append(pending, lsn)
		}
	}

	for len(pending) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		top := 0
		for i := range pending {
			if pending[i] > pending[top] {
				top = i
			}
		}
		lsn := pending[top]

		data, err := src.ReadAt(lsn)
		if err != nil {
			return errors.Wrapf(err, "read record %v", lsn)
		}

		res, err := p.d.DispatchBytes(ctx, data, lsn, op)
		if err != nil {
			return err
		}
		p.summary.Undone += res.Applied
		p.summary.Skipped += res.Skipped

		if err := p.sync(res); err != nil {
			return err
		}

		if res.PrevLSN.IsNeverWritten() {
			pending = append(pending[:top], pending[top+1:]...)
		} else if res.PrevLSN >= lsn {
			return errors.Wrapf(ErrDecode, "record %v points forward to %v", lsn, res.PrevLSN)
		} else {
			pending[top] = res.PrevLSN
		}
	}
	return nil
}

func (p *Pass) sync(res Result) error {
	if !res.Sync {
		return nil
	}
	p.summary.Syncs++
	if err := p.d.pool.FlushAllPages(); err != nil {
		return errors.Wrap(err, "sync")
	}
	return nil
}

func (p *Pass) finish(ctx context.Context) error {
	drained, err := p.d.freeList.Drain(p.d.pool)
	p.summary.Drained += len(drained)
	p.d.metrics.Drained(ctx, len(drained))
	if err != nil {
		return errors.Wrap(err, "drain limbo")
	}

	if err := p.d.pool.FlushAllPages(); err != nil {
		return errors.Wrap(err, "flush")
	}
	return nil
}
