package hint

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRPCCodeRoundTrip(t *testing.T) {
	for _, c := range []Code{
		CodeNotFound, CodeInvalid, CodeVersionConflict, CodeSecretRejected,
		CodeScopeInvalid, CodeQuotaExceeded, CodeUnavailable,
	} {
		assert.Equal(t, c, CodeFromRPC(c.RPCCode()), c)
	}
	assert.Equal(t, CodeInternal, CodeFromRPC(12345))
}

func TestIsCodeAndRetryable(t *testing.T) {
	nf := NotFound("c", "k")
	wrapped := fmt.Errorf("lookup: %w", nf)

	assert.True(t, IsCode(wrapped, CodeNotFound))
	assert.False(t, IsRetryable(wrapped))
	assert.True(t, IsRetryable(Unavailable(errors.New("dial tcp: refused"))))
	assert.False(t, IsRetryable(errors.New("plain")))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))
	assert.Equal(t, Code(""), CodeOf(nil))
	assert.False(t, IsCode(nil, CodeNotFound))
}

func TestQuotaExceededCause(t *testing.T) {
	err := QuotaExceeded(QuotaCauseKey, 200)
	assert.Equal(t, CodeQuotaExceeded, err.Code)
	assert.Equal(t, QuotaCauseKey, err.Data["cause"])
	assert.Contains(t, err.Error(), "200")
}
