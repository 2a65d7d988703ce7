package ui

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"artsync/pkg/config"
	apperrors "artsync/pkg/errors"
	"artsync/pkg/logger"
)

func init() {
	DisableColor()
}

func TestStatusTracker(t *testing.T) {
	var buf bytes.Buffer
	st := NewStatusTracker(&buf)
	st.StartSubject("account 42")
	st.StartPage(1, 2)
	st.Record(100, "ok")
	st.Record(101, "skip_duplicate")

	assert.Equal(t, map[string]int{"ok": 1, "skip_duplicate": 1}, st.Counts())
	assert.Equal(t, 2, st.Total())
	out := buf.String()
	assert.Contains(t, out, "account 42")
	assert.Contains(t, out, "[SAVED] 100")
	assert.Contains(t, out, "2/2")

	st.StartSubject("account 43")
	assert.Equal(t, 0, st.Total())
	st.Record(200, "ok")
	assert.Equal(t, map[string]int{"ok": 2, "skip_duplicate": 1}, st.Totals())

	st.ResetTotals()
	assert.Empty(t, st.Totals())
}

func TestStatusTrackerQuiet(t *testing.T) {
	var buf bytes.Buffer
	st := NewStatusTracker(&buf)
	st.Quiet = true
	st.StartSubject("feed")
	st.Record(1, "not_ok")
	assert.Empty(t, buf.String())
	assert.Equal(t, 1, st.Counts()["not_ok"])
}

func TestFormatCounts(t *testing.T) {
	assert.Equal(t, "not_ok=1 ok=3 skip_older=2", FormatCounts(map[string]int{"ok": 3, "skip_older": 2, "not_ok": 1}))
	assert.Equal(t, "", FormatCounts(nil))
}

func TestRenderSummary(t *testing.T) {
	failures := []apperrors.Entry{{
		Kind:    "artifact",
		ID:      "555",
		Message: "checksum failed",
		Type:    apperrors.ErrorTypeIntegrity,
	}}
	out := RenderSummary("member", map[string]int{"ok": 4}, failures, 3*time.Second)
	assert.Contains(t, out, "member")
	assert.Contains(t, out, "ok")
	assert.Contains(t, out, "1 error(s)")
	assert.Contains(t, out, "artifact: 555 ==> checksum failed")

	empty := RenderSummary("feed", nil, nil, 0)
	assert.Contains(t, empty, "no artifacts processed")
}

func TestBatchPrompterNeverContinues(t *testing.T) {
	log := logger.NewTestLogger()
	p := NewBatchPrompter(log)
	assert.False(t, p.ContinueSubject(context.Background(), "account 42"))
	p.DiskFull(context.Background(), "/tmp/x.png", errors.New("no space left on device"))
	assert.True(t, log.HasMessage("download aborted, stopping subject"))
	assert.Len(t, log.MessagesByLevel("ERROR"), 1)
}

func TestTerminalPrompter(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		p := NewTerminalPrompter(strings.NewReader(tt.input), &out)
		assert.Equal(t, tt.want, p.ContinueSubject(context.Background(), "tag cats"), "input %q", tt.input)
		assert.Contains(t, out.String(), "tag cats")
	}
}

func TestTerminalPrompterCancelled(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	p := NewTerminalPrompter(r, io.Discard)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, p.ContinueSubject(ctx, "account 1"))
}

type recordingSender struct {
	titles []string
}

func (r *recordingSender) Send(title, _ string) error {
	r.titles = append(r.titles, title)
	return nil
}

func TestNotifierRespectsConfig(t *testing.T) {
	var buf bytes.Buffer
	old := Out
	Out = &buf
	defer func() { Out = old }()

	sender := &recordingSender{}
	n := NewNotifierWithSender(config.NotificationConfig{Enabled: true, OnComplete: false, OnError: true}, sender)
	n.SendSuccess("done", "12 saved")
	n.SendError("failed", "3 errors")
	require.Len(t, sender.titles, 1)
	assert.Equal(t, "artsync: failed", sender.titles[0])
	assert.Contains(t, buf.String(), "12 saved")

	disabled := NewNotifierWithSender(config.NotificationConfig{Enabled: false, OnError: true}, sender)
	disabled.SendError("failed", "again")
	assert.Len(t, sender.titles, 1)
}
