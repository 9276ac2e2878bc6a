package app

import (
	"context"
	"io"
	"os"

	"github.com/Blackdeer1524/PageDB/src/pkg/common"
	"github.com/Blackdeer1524/PageDB/src/recovery"
)

// InspectEntrypoint prints one page as JSON.
type InspectEntrypoint struct {
	Options
	FileID common.FileID
	PageID common.PageID
	Out    io.Writer

	base
}

var _ Entrypoint = &InspectEntrypoint{}

func (e *InspectEntrypoint) Init(ctx context.Context) error {
	if err := e.base.init(e.Options); err != nil {
		return err
	}
	if e.Out == nil {
		e.Out = os.Stdout
	}
	return nil
}

func (e *InspectEntrypoint) Run(ctx context.Context) error {
	out, err := recovery.Inspect(e.pool, common.Ident(e.FileID, e.PageID))
	if err != nil {
		return err
	}
	_, err = e.Out.Write(append(out, '\n'))
	return err
}

func (e *InspectEntrypoint) Close() error {
	return e.base.close()
}
