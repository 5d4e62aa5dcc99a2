package classify

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aipop/internal/types"
)

func TestClassifyInfrastructureErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantName string
	}{
		{"refused", errors.New("dial tcp 10.0.0.1:443: connection refused"), "connection_error"},
		{"timeout", errors.New("context deadline exceeded"), "timeout_error"},
		{"rate limit", errors.New("HTTP 429 too many requests"), "rate_limit_error"},
		{"auth", errors.New("invalid api key provided"), "authentication_error"},
		{"ssl", errors.New("tls handshake failure"), "ssl_error"},
		{"proxy", errors.New("502 bad gateway from upstream proxy"), "proxy_error"},
		{"quota", errors.New("you exceeded your current quota"), "quota_error"},
		{"redirect", errors.New("stopped after too many redirects"), "redirect_error"},
		{"retries", errors.New("giving up after max retries"), "retry_exhausted"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, ok := Classify(tt.err)
			require.True(t, ok)
			assert.Equal(t, types.StatusError, c.Status)
			assert.Equal(t, types.CategoryInfrastructureError, c.Category)
			assert.Equal(t, tt.wantName, c.ErrorName)
		})
	}
}

func TestClassifyOverlapIsDeterministic(t *testing.T) {
	c, ok := Classify(errors.New("rate limit hit; request timed out waiting for retry"))
	require.True(t, ok)
	assert.Equal(t, "rate_limit_error", c.ErrorName)
}

func TestClassifyUnknownErrorNotAbsorbed(t *testing.T) {
	_, ok := Classify(errors.New("index out of range [3] with length 2"))
	assert.False(t, ok)

	_, ok = Classify(fmt.Errorf("wrapped: %w", errors.New("nil pointer dereference")))
	assert.False(t, ok)
}

func TestClassifyNil(t *testing.T) {
	_, ok := Classify(nil)
	assert.False(t, ok)
}

func TestMissingAPIKeyHeuristic(t *testing.T) {
	assert.True(t, IsMissingAPIKey(errors.New("OPENAI_API_KEY is not set")))
	assert.True(t, IsMissingAPIKey(errors.New("missing api key for provider anthropic")))
	assert.False(t, IsMissingAPIKey(errors.New("invalid api key provided")))
	assert.False(t, IsMissingAPIKey(errors.New("some other failure")))

	c, ok := Classify(errors.New("ANTHROPIC_API_KEY not found in environment"))
	require.True(t, ok)
	assert.Equal(t, "missing_api_key", c.ErrorName)
}
