package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	req := require.New(t)

	prod, err := New("production", "warn")
	req.NoError(err)
	req.False(prod.Core().Enabled(zapcore.InfoLevel))
	req.True(prod.Core().Enabled(zapcore.WarnLevel))

	dev, err := New("development", "debug")
	req.NoError(err)
	req.True(dev.Core().Enabled(zapcore.DebugLevel))

	_, err = New("development", "loud")
	req.Error(err)
}
