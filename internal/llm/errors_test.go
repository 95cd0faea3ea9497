package llm

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"google.golang.org/genai"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"nil", nil, false},
		{"rate limited api error", genai.APIError{Code: 429, Message: "slow down"}, true},
		{"server api error", genai.APIError{Code: 503, Message: "overloaded"}, true},
		{"bad request api error", genai.APIError{Code: 400, Message: "quota words in a 400 do not matter"}, false},
		{"wrapped api error", fmt.Errorf("call: %w", genai.APIError{Code: 500}), true},
		{"resource exhausted text", errors.New("rpc error: RESOURCE_EXHAUSTED"), true},
		{"quota text", errors.New("Quota exceeded for metric"), true},
		{"permanent text", errors.New("invalid argument"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err)
			if tt.err == nil {
				assert.NoError(t, got)
				return
			}
			assert.Equal(t, tt.retryable, IsRetryable(got))
		})
	}
}

func TestClassify_KeepsCauseReachable(t *testing.T) {
	cause := errors.New("service unavailable")
	assert.ErrorIs(t, classify(cause), cause)
}

func TestRetryableError_Message(t *testing.T) {
	err := &RetryableError{StatusCode: 429, Err: errors.New("too many")}
	assert.Contains(t, err.Error(), "status 429")
	assert.Contains(t, (&RetryableError{Err: errors.New("x")}).Error(), "retryable error: x")
}

func TestBackoff_GrowsAndCaps(t *testing.T) {
	for attempt, base := range []time.Duration{time.Second, 2 * time.Second, 4 * time.Second} {
		d := Backoff(attempt)
		assert.GreaterOrEqual(t, d, base)
		assert.Less(t, d, base+base/2)
	}
	d := Backoff(10)
	assert.GreaterOrEqual(t, d, 30*time.Second)
	assert.Less(t, d, 45*time.Second)
}
