package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	assert.Equal(t, "permanent_http error (code 404): https://x/1.png returned 404",
		NewPermanentHTTP(404, "https://x/1.png").Error())
	assert.Equal(t, "auth error: session expired", NewAuth("session expired").Error())
}

func TestTypeOfUnwrapsChains(t *testing.T) {
	base := NewIntegrity(stderrors.New("bad huffman"), "/tmp/a.jpg")
	wrapped := fmt.Errorf("artifact 100: %w", base)

	assert.Equal(t, ErrorTypeIntegrity, TypeOf(wrapped))
	assert.Equal(t, ErrorTypeUnknown, TypeOf(stderrors.New("plain")))
	assert.True(t, Is(wrapped, ErrorTypeIntegrity))
	assert.False(t, Is(nil, ErrorTypeIntegrity))
}

func TestUnwrapReachesCause(t *testing.T) {
	err := NewNetwork(context.DeadlineExceeded, "https://x")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPageOf(t *testing.T) {
	err := fmt.Errorf("member 7: %w", NewSubjectInvalid("account suspended", []byte("<html>")))
	assert.Equal(t, []byte("<html>"), PageOf(err))
	assert.Nil(t, PageOf(stderrors.New("x")))
}

func TestClassification(t *testing.T) {
	tests := []struct {
		errorType ErrorType
		retryable bool
		fatal     bool
	}{
		{ErrorTypeNetwork, true, false},
		{ErrorTypeIntegrity, true, false},
		{ErrorTypeSizeMismatch, true, false},
		{ErrorTypePermanentHTTP, false, false},
		{ErrorTypeStorage, false, false},
		{ErrorTypeSubjectInvalid, false, false},
		{ErrorTypeAuth, false, true},
		{ErrorTypeConfig, false, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.errorType), func(t *testing.T) {
			assert.Equal(t, tt.retryable, IsRetryable(tt.errorType))
			assert.Equal(t, tt.fatal, IsFatal(tt.errorType))
		})
	}
}

func TestStatusCodes(t *testing.T) {
	for _, code := range []int{404, 500, 502} {
		assert.True(t, IsPermanentStatus(code), "%d", code)
		assert.False(t, IsRetryableStatusCode(code), "%d", code)
	}
	assert.True(t, IsRetryableStatusCode(503))
	assert.True(t, IsRetryableStatusCode(429))
	assert.False(t, IsRetryableStatusCode(403))
}

func TestAggregatorDrainClearsAndSetsPendingStatus(t *testing.T) {
	agg := NewAggregator()
	assert.Equal(t, ExitClean, agg.ExitCode())

	agg.Add("artifact", "100", NewPermanentHTTP(404, "https://x/100.png"))
	agg.Add("member", "7", NewSubjectInvalid("gone", nil))
	agg.Add("artifact", "101", nil)
	assert.Equal(t, 2, agg.Len())
	assert.Equal(t, ExitRunErrors, agg.ExitCode())

	drained := agg.Drain()
	require.Len(t, drained, 2)
	assert.Equal(t, "artifact: 100 ==> permanent_http error (code 404): https://x/100.png returned 404", drained[0].String())
	assert.Equal(t, ErrorTypeSubjectInvalid, drained[1].Type)

	assert.Zero(t, agg.Len())
	assert.Empty(t, agg.Drain())
	assert.Equal(t, ExitRunErrors, agg.ExitCode(), "drained errors still fail the process")
}

func TestAggregatorFatalWins(t *testing.T) {
	agg := NewAggregator()
	agg.Add("artifact", "1", stderrors.New("x"))
	agg.SetFatal(NewConfig(stderrors.New("bad yaml")))

	assert.Equal(t, ExitConfig, agg.ExitCode())
	assert.Equal(t, ErrorTypeConfig, TypeOf(agg.Fatal()))

	agg.SetFatal(NewAuth("expired"))
	assert.Equal(t, ExitAuth, agg.ExitCode())
}
