package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitialize(t *testing.T) {
	tests := []struct {
		name       string
		jsonOutput bool
		verbosity  int
	}{
		{name: "JSON output mode", jsonOutput: true, verbosity: VerbosityInfo},
		{name: "Console output mode", jsonOutput: false, verbosity: VerbosityUser},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			Logger = nil
			JSONOutput = false

			require.NoError(t, Initialize(tt.jsonOutput, tt.verbosity))
			require.NotNil(t, Logger)
			assert.Equal(t, tt.jsonOutput, JSONOutput)

			Logger = zap.NewNop().Sugar()
		})
	}
}

func TestInitializeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "daemon.log")

	require.NoError(t, InitializeFile(path, VerbosityInfo))
	t.Cleanup(func() { Logger = zap.NewNop().Sugar() })

	Infow("daemon started", FieldPID, 42)
	Cleanup()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"daemon started"`)
	assert.Contains(t, string(data), `"pid":42`)
}

func TestVerbosityToLevel(t *testing.T) {
	assert.Equal(t, zapcore.WarnLevel, VerbosityToLevel(VerbosityUser))
	assert.Equal(t, zapcore.InfoLevel, VerbosityToLevel(VerbosityInfo))
	assert.Equal(t, zapcore.DebugLevel, VerbosityToLevel(VerbosityDebug))
	assert.Equal(t, zapcore.DebugLevel, VerbosityToLevel(7))
	assert.Equal(t, "Info (-v)", LevelName(1))
}

func TestSymbolHelpers(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	base := zap.New(core).Sugar()

	AddPulseSymbol(base).Infow("tick")
	AddPulseCloseSymbol(base).Infow("stopped")

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "꩜", entries[0].ContextMap()[FieldSymbol])
	assert.Equal(t, "❀", entries[1].ContextMap()[FieldSymbol])
}

func TestJobLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)

	JobLogger(zap.New(core).Sugar(), "id-1", "backup").Warnw("job failed")

	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "id-1", fields[FieldJobID])
	assert.Equal(t, "backup", fields[FieldJobName])
}
