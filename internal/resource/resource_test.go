package resource

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticHealth bool

func (s staticHealth) Healthy(context.Context) bool { return bool(s) }

func TestCheckHealth(t *testing.T) {
	health := CheckHealth(context.Background(), map[string]HealthCheckable{
		"cache": staticHealth(true),
		"blob":  staticHealth(false),
		"db":    nil,
	})

	assert.False(t, health.OK)
	assert.Equal(t, map[string]bool{"cache": true, "blob": false, "db": false}, health.Resources)
	assert.Equal(t, []string{"blob", "db"}, health.Unhealthy())
}

func TestCheckHealth_AllHealthy(t *testing.T) {
	health := CheckHealth(context.Background(), map[string]HealthCheckable{
		"cache": staticHealth(true),
	})

	assert.True(t, health.OK)
	assert.Empty(t, health.Unhealthy())
}

func TestNotFoundError_MatchesSentinel(t *testing.T) {
	err := fmt.Errorf("load blob: %w", &NotFoundError{Key: "news/x.raw"})

	assert.ErrorIs(t, err, ErrNotFound)

	var nf *NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "news/x.raw", nf.Key)
}

func TestConnectionError(t *testing.T) {
	cause := errors.New("connection refused")
	err := &ConnectionError{Resource: "redis", Addr: "localhost:6379", Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "connect redis at localhost:6379: connection refused", err.Error())
}
