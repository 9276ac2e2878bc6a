package app

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/go-faster/errors"
	"golang.org/x/sync/errgroup"
)

type Entrypoint interface {
	io.Closer
	Init(ctx context.Context) error
	Run(ctx context.Context) error
}

// Run drives one command to completion. A signal cancels the context
// passed to Run; Close is called after Run has returned.
func Run(ctx context.Context, e Entrypoint) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := e.Init(ctx); err != nil {
		closeErr := e.Close()
		if closeErr != nil {
			return errors.Wrapf(err, "entrypoint init (close: %v)", closeErr)
		}
		return errors.Wrap(err, "entrypoint init")
	}

	eg, egCtx := errgroup.WithContext(ctx)
	done := make(chan struct{})

	eg.Go(func() error {
		defer close(done)
		return e.Run(egCtx)
	})

	// graceful shutdown
	eg.Go(func() error {
		select {
		case <-egCtx.Done():
			fmt.Printf("shutting down...\n")
		case <-done:
		}
		<-done

		return e.Close()
	})

	return eg.Wait()
}
