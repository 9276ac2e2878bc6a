package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/go-faster/errors"
	"go.uber.org/multierr"

	"github.com/Blackdeer1524/PageDB/src/pkg/common"
	"github.com/Blackdeer1524/PageDB/src/recovery"
	"github.com/Blackdeer1524/PageDB/src/wal"
)

// RecoverEntrypoint runs crash recovery over a log file, or rolls back a
// single transaction when LastLSN is set.
type RecoverEntrypoint struct {
	Options
	LogPath string
	// LastLSN is the newest record of the transaction to roll back.
	LastLSN common.LSN
	Out     io.Writer

	base
	reader  *wal.Reader
	pass    *recovery.Pass
	summary recovery.Summary
}

var _ Entrypoint = &RecoverEntrypoint{}

func (e *RecoverEntrypoint) Init(ctx context.Context) error {
	if err := e.base.init(e.Options); err != nil {
		return err
	}
	if e.Out == nil {
		e.Out = os.Stdout
	}

	var metrics *recovery.Metrics
	if e.cfg.MetricsEnabled {
		m, err := recovery.NewMetrics(nil)
		if err != nil {
			return errors.Wrap(err, "metrics")
		}
		metrics = m
	}

	r, err := wal.Open(e.fs, e.path(e.LogPath))
	if err != nil {
		return errors.Wrap(err, "open log")
	}
	e.reader = r
	if r.Torn() {
		e.log.Warnw("log ends with a partial record, ignoring it", "last_lsn", r.Last())
	}

	d := recovery.NewDispatcher(e.pool, recovery.NewFreeList(), nil, e.log, metrics)
	e.pass = recovery.NewPass(d)
	return nil
}

func (e *RecoverEntrypoint) Run(ctx context.Context) error {
	var (
		summary recovery.Summary
		err     error
	)
	if e.LastLSN != common.NilLSN {
		summary, err = e.pass.Rollback(ctx, e.reader, e.LastLSN)
	} else {
		summary, err = e.pass.Recover(ctx, e.reader)
	}
	e.summary = summary
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(
		e.Out,
		"pass %s: %d records, %d redone, %d undone, %d skipped, %d losers, %d drained\n",
		summary.PassID,
		summary.Records,
		summary.Redone,
		summary.Undone,
		summary.Skipped,
		summary.Losers,
		summary.Drained,
	)
	return err
}

func (e *RecoverEntrypoint) Summary() recovery.Summary {
	return e.summary
}

func (e *RecoverEntrypoint) Close() error {
	var err error
	if e.reader != nil {
		err = multierr.Append(err, e.reader.Close())
	}
	return multierr.Append(err, e.base.close())
}
