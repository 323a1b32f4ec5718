package task

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "validation error", err: fmt.Errorf("%w: chunk missing", ErrValidation), want: false},
		{name: "recorder timeout", err: ErrRecorderTimeout, want: false},
		{name: "deadline exceeded", err: context.DeadlineExceeded, want: false},
		{name: "connection refused", err: errors.New("dial tcp: connection refused"), want: true},
		{name: "connection reset", err: errors.New("read: connection reset by peer"), want: true},
		{name: "broken pipe", err: errors.New("write: broken pipe"), want: true},
		{name: "socket hang up", err: errors.New("socket hang up"), want: true},
		{name: "target closed", err: errors.New("Target closed"), want: true},
		{name: "session closed", err: errors.New("Session closed. Most likely the page has been closed"), want: true},
		{name: "browser disconnected", err: errors.New("browser has disconnected"), want: true},
		{name: "protocol error", err: errors.New("Protocol error (Page.navigate)"), want: true},
		{name: "websocket failure", err: errors.New("WebSocket is not open"), want: true},
		{name: "wrapped transient", err: fmt.Errorf("recorder run failed: %w", errors.New("connection refused")), want: true},
		{name: "generic failure", err: errors.New("element extraction produced no output"), want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, IsRetryable(tc.err))
		})
	}
}

func TestIsTimeout(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "deadline exceeded", err: context.DeadlineExceeded, want: true},
		{name: "wrapped deadline", err: fmt.Errorf("run: %w", context.DeadlineExceeded), want: true},
		{name: "recorder timeout sentinel", err: ErrRecorderTimeout, want: true},
		{name: "timeout substring", err: errors.New("navigation timeout of 30000ms exceeded"), want: true},
		{name: "cancellation", err: context.Canceled, want: false},
		{name: "generic failure", err: errors.New("connection refused"), want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, IsTimeout(tc.err))
		})
	}
}
