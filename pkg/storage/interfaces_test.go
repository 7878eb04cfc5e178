package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 10, cfg.PostgresMaxConns)
	assert.Equal(t, 2, cfg.PostgresMinConns)
	assert.Equal(t, 10*time.Second, cfg.PostgresTimeout)
	assert.Equal(t, "us-east-1", cfg.S3Region)
	assert.Equal(t, "app-updates", cfg.S3Bucket)
	assert.Empty(t, cfg.PostgresURL)
	assert.False(t, cfg.S3UsePathStyle)
}
