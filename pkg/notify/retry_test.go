package notify

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicyShouldRetry(t *testing.T) {
	policy := NewRetryPolicy(RetryConfig{MaxAttempts: 3})
	err := errors.New("delivery failed")

	assert.False(t, policy.ShouldRetry(1, nil))
	assert.True(t, policy.ShouldRetry(1, err))
	assert.True(t, policy.ShouldRetry(2, err))
	assert.False(t, policy.ShouldRetry(3, err))
	assert.False(t, policy.ShouldRetry(4, err))
}

func TestRetryPolicyNextRetryDelay(t *testing.T) {
	policy := NewRetryPolicy(RetryConfig{
		InitialDelay:      time.Second,
		MaxDelay:          10 * time.Second,
		BackoffMultiplier: 2.0,
		MaxAttempts:       10,
	})

	assert.Equal(t, time.Second, policy.NextRetryDelay(0))
	assert.Equal(t, time.Second, policy.NextRetryDelay(1))
	assert.Equal(t, 2*time.Second, policy.NextRetryDelay(2))
	assert.Equal(t, 4*time.Second, policy.NextRetryDelay(3))

	// Capped at MaxDelay.
	assert.Equal(t, 10*time.Second, policy.NextRetryDelay(8))
}

func TestRetryPolicyDefaults(t *testing.T) {
	policy := NewRetryPolicy(RetryConfig{})

	assert.Equal(t, 5, policy.config.MaxAttempts)
	assert.Equal(t, time.Second, policy.config.InitialDelay)
	assert.Equal(t, 5*time.Minute, policy.config.MaxDelay)
	assert.Equal(t, 2.0, policy.config.BackoffMultiplier)
}
