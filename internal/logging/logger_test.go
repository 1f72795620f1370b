package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, WARN, ParseLevel("Warning"))
	assert.Equal(t, INFO, ParseLevel("nonsense"))
}

func TestNewLogger_WritesComponentFile(t *testing.T) {
	dir := t.TempDir()
	Configure(Options{Dir: dir, ConsoleLevel: ERROR, FileLevel: DEBUG})

	l, err := NewLogger("tiles")
	require.NoError(t, err)
	l.Trace("не должно попасть")
	l.Debug("tile %d загружен", 7)
	require.NoError(t, l.Close())

	data, err := os.ReadFile(filepath.Join(dir, "tiles.log"))
	require.NoError(t, err)
	content := string(data)
	assert.True(t, strings.Contains(content, "[DEBUG] [tiles] tile 7 загружен"))
	assert.False(t, strings.Contains(content, "не должно попасть"))
}

func TestManager_ReusesComponentLogger(t *testing.T) {
	Configure(Options{Dir: t.TempDir()})
	lm := &LoggerManager{loggers: make(map[string]*Logger)}

	a, err := lm.GetLogger("api")
	require.NoError(t, err)
	b, err := lm.GetLogger("api")
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, []string{"api"}, lm.ListComponents())
	require.NoError(t, lm.CloseAll())
}

func TestManager_FallbackToConsole(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))
	Configure(Options{Dir: filepath.Join(blocker, "logs")})
	lm := &LoggerManager{loggers: make(map[string]*Logger)}

	l := lm.MustGetLogger(ComponentBackend)
	require.NotNil(t, l)
	assert.Equal(t, ComponentBackend, l.component)
	assert.Nil(t, l.fileLogger)
	assert.Empty(t, lm.ListComponents())
	l.Info("только в консоль")
}
