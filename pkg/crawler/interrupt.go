package crawler

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"artsync/pkg/logger"
)

// Interrupter turns interrupt signals into cancellations. An interrupt while
// a download is in flight cancels only that download; a second one, or one
// arriving between downloads, cancels the whole run.
type Interrupter struct {
	mu        sync.Mutex
	cancelRun context.CancelFunc
	// cancelArtifact is set while a download is in flight
	cancelArtifact context.CancelFunc
	hits           int
	log            logger.Logger
}

// NewInterrupter derives the run context from parent
func NewInterrupter(parent context.Context, log logger.Logger) (*Interrupter, context.Context) {
	ctx, cancel := context.WithCancel(parent)
	return &Interrupter{cancelRun: cancel, log: logger.Or(log)}, ctx
}

// Listen feeds SIGINT and SIGTERM into Interrupt until stop is called
func (i *Interrupter) Listen() (stop func()) {
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-sigs:
				i.Interrupt()
			case <-done:
				return
			}
		}
	}()
	return func() {
		signal.Stop(sigs)
		close(done)
	}
}

// Interrupt handles one interrupt
func (i *Interrupter) Interrupt() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.hits++
	if i.cancelArtifact != nil && i.hits == 1 {
		i.log.Warn("interrupt received, aborting current download")
		i.cancelArtifact()
		return
	}
	i.log.Warn("interrupt received, aborting run")
	i.cancelRun()
}

// Stop cancels the run context
func (i *Interrupter) Stop() {
	i.cancelRun()
}

// artifactContext returns the context one download runs under. The release
// func must be called when the download returns. A nil Interrupter hands
// back ctx unchanged.
func (i *Interrupter) artifactContext(ctx context.Context) (context.Context, func()) {
	if i == nil {
		return ctx, func() {}
	}
	actx, cancel := context.WithCancel(ctx)
	i.mu.Lock()
	i.cancelArtifact = cancel
	i.hits = 0
	i.mu.Unlock()
	return actx, func() {
		i.mu.Lock()
		i.cancelArtifact = nil
		i.hits = 0
		i.mu.Unlock()
		cancel()
	}
}
