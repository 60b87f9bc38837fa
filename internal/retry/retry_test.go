package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/helpdesk/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy() *Policy {
	return NewPolicy([]time.Duration{0, time.Millisecond, time.Millisecond}, nil)
}

func TestDo_succeedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := fastPolicy().Do(context.Background(), "embed", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("connection reset")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_exhaustedIsTransient(t *testing.T) {
	calls := 0
	err := fastPolicy().Do(context.Background(), "embed", func(ctx context.Context) error {
		calls++
		return errors.New("connection refused")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, err, models.ErrTransient)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestDo_permanentStopsImmediately(t *testing.T) {
	calls := 0
	sentinel := errors.New("bad request")
	err := fastPolicy().Do(context.Background(), "embed", func(ctx context.Context) error {
		calls++
		return Permanent(sentinel)
	})
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, sentinel)
	assert.NotErrorIs(t, err, models.ErrTransient)
}

func TestDo_classifiedErrorsNotRetried(t *testing.T) {
	for _, class := range []error{models.ErrConfiguration, models.ErrIsolation, models.ErrConsistency, models.ErrContent} {
		calls := 0
		err := fastPolicy().Do(context.Background(), "upsert", func(ctx context.Context) error {
			calls++
			return fmt.Errorf("collection docs: %w", class)
		})
		assert.Equal(t, 1, calls, "class %v", class)
		assert.ErrorIs(t, err, class)
	}
}

func TestDo_contextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := NewPolicy([]time.Duration{0, time.Hour}, nil)
	calls := 0
	err := p.Do(ctx, "upsert", func(ctx context.Context) error {
		calls++
		cancel()
		return errors.New("timeout")
	})
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPolicy_defaults(t *testing.T) {
	p := NewPolicy(nil, nil)
	assert.Equal(t, DefaultDelays, p.Delays)
	assert.Equal(t, 3, p.Attempts())
	var nilPolicy *Policy
	assert.Equal(t, 3, nilPolicy.Attempts())
}

func TestCheckResponse(t *testing.T) {
	tests := []struct {
		code          int
		wantNil       bool
		wantPermanent bool
		wantConfig    bool
	}{
		{200, true, false, false},
		{204, true, false, false},
		{500, false, false, false},
		{503, false, false, false},
		{429, false, false, false},
		{404, false, true, true},
		{400, false, true, false},
	}
	for _, tt := range tests {
		resp := &http.Response{StatusCode: tt.code, Body: io.NopCloser(strings.NewReader("body"))}
		err := CheckResponse("op", resp)
		if tt.wantNil {
			assert.NoError(t, err, "status %d", tt.code)
			continue
		}
		require.Error(t, err, "status %d", tt.code)
		var perm *permanentError
		assert.Equal(t, tt.wantPermanent, errors.As(err, &perm), "status %d permanent", tt.code)
		assert.Equal(t, tt.wantConfig, errors.Is(err, models.ErrConfiguration), "status %d config", tt.code)
	}
}
