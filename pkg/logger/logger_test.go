package logger

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNewParsesLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, New(Config{Level: "debug"}).GetLevel())
	assert.Equal(t, zerolog.WarnLevel, New(Config{Level: " WARN "}).GetLevel())
	assert.Equal(t, zerolog.ErrorLevel, New(Config{Level: "error"}).GetLevel())
}

func TestNewFallsBackToInfo(t *testing.T) {
	assert.Equal(t, zerolog.InfoLevel, New(Config{Level: ""}).GetLevel())
	assert.Equal(t, zerolog.InfoLevel, New(Config{Level: "nonsense"}).GetLevel())
}
