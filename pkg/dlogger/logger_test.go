package dlogger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestGetLogger(t *testing.T) {
	for _, toPin := range []struct {
		Level    string
		Encoding string
		Enabled  zapcore.Level
		Valid    bool
	}{
		{Level: LogLevelInfo, Enabled: zapcore.InfoLevel, Valid: true},
		{Level: LogLevelDebug, Encoding: EncodingConsole, Enabled: zapcore.DebugLevel, Valid: true},
		{Level: "warn", Encoding: EncodingJSON, Enabled: zapcore.WarnLevel, Valid: true},
		{Level: "chatty", Valid: false},
		{Level: LogLevelInfo, Encoding: "xml", Valid: false},
	} {
		fixture := toPin
		t.Run(fixture.Level+"/"+fixture.Encoding, func(t *testing.T) {
			l, err := GetLogger(fixture.Level, Encoding(fixture.Encoding))
			if !fixture.Valid {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, l.Core().Enabled(fixture.Enabled))
			assert.False(t, l.Core().Enabled(fixture.Enabled-1))
		})
	}
}

func TestGetLoggerNone(t *testing.T) {
	l, err := GetLogger(LogLevelNone, Fields(zap.String("cmd", "serve")))
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.FatalLevel))
}

func TestGetLoggerOutputs(t *testing.T) {
	out := filepath.Join(t.TempDir(), "revstore.log")
	l, err := GetLogger(LogLevelInfo, Outputs(out), Fields(zap.String("command", "revstore serve")))
	require.NoError(t, err)
	l.Info("serving")
	_ = l.Sync()

	buf, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(buf), `"msg":"serving"`)
	assert.Contains(t, string(buf), `"command":"revstore serve"`)
}
