package crawler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInterrupterCancelsDownloadFirst(t *testing.T) {
	in, runCtx := NewInterrupter(context.Background(), nil)
	defer in.Stop()

	actx, release := in.artifactContext(runCtx)
	in.Interrupt()
	assert.Error(t, actx.Err(), "the download is cancelled")
	assert.NoError(t, runCtx.Err(), "the run goes on")
	release()

	actx, release = in.artifactContext(runCtx)
	in.Interrupt()
	in.Interrupt()
	assert.Error(t, actx.Err())
	assert.Error(t, runCtx.Err(), "a second interrupt aborts the run")
	release()
}

func TestInterrupterBetweenDownloadsAbortsRun(t *testing.T) {
	in, runCtx := NewInterrupter(context.Background(), nil)
	in.Interrupt()
	assert.Error(t, runCtx.Err())
}

func TestNilInterrupterPassesContextThrough(t *testing.T) {
	var in *Interrupter
	ctx := context.Background()
	got, release := in.artifactContext(ctx)
	defer release()
	assert.Equal(t, ctx, got)
}
