// Package testutils provides shared test helpers: an in-memory Redis
// client backed by miniredis, and hand-rolled fakes for the Oracle/Memory/
// DiceSink ports (internal/ports) used across pipeline-package tests.
package testutils

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/ai-trpg/keeper/internal/redis"
)

// NewTestRedisClient creates an in-memory Redis client for testing.
func NewTestRedisClient(t *testing.T) (redis.Client, func()) {
	mr, err := miniredis.Run()
	require.NoError(t, err, "failed to create miniredis")

	client, err := redis.NewClient(mr.Addr(), nil)
	require.NoError(t, err, "failed to create redis client")

	cleanup := func() {
		mr.Close()
	}

	return client, cleanup
}
