package logging

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T, maxHistory int) *Logger {
	t.Helper()
	l, err := New(&Config{
		LogDir:     t.TempDir(),
		Level:      LevelDebug,
		MaxHistory: maxHistory,
		Console:    false,
	})
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestLoggerHistoryRecordsEntries(t *testing.T) {
	l := newTestLogger(t, 100)

	l.Debug("capture", "Capture started", map[string]interface{}{"device": "gateway"})
	l.Warn("stt", "Slow response", nil)
	l.Error("dispatch", "Handler failed", errors.New("boom"), nil)

	history := l.GetHistory(0)
	require.GreaterOrEqual(t, len(history), 4) // init entry plus the three above

	last := history[len(history)-1]
	assert.Equal(t, "error", last.Level)
	assert.Equal(t, "dispatch", last.Component)
	assert.Equal(t, "Handler failed", last.Message)
	assert.Contains(t, last.Data, "error=boom")

	debugEntry := history[len(history)-3]
	assert.Equal(t, "debug", debugEntry.Level)
	assert.Equal(t, "capture", debugEntry.Component)
	assert.Contains(t, debugEntry.Data, "device=gateway")
}

func TestLoggerHistoryRingTrimsOldest(t *testing.T) {
	l := newTestLogger(t, 3)

	for _, msg := range []string{"one", "two", "three", "four", "five"} {
		l.Info("test", msg, nil)
	}

	history := l.GetHistory(0)
	require.Len(t, history, 3)
	assert.Equal(t, "three", history[0].Message)
	assert.Equal(t, "five", history[2].Message)
}

func TestLoggerHistoryLimit(t *testing.T) {
	l := newTestLogger(t, 100)

	l.Info("test", "first", nil)
	l.Info("test", "second", nil)

	recent := l.GetHistory(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "first", recent[0].Message)
	assert.Equal(t, "second", recent[1].Message)
}

func TestLoggerOnLogCallback(t *testing.T) {
	l := newTestLogger(t, 100)

	received := make(chan LogEntry, 4)
	l.SetOnLog(func(e LogEntry) {
		received <- e
	})

	l.Info("wakeword", "Triggered", nil)

	select {
	case e := <-received:
		assert.Equal(t, "wakeword", e.Component)
		assert.Equal(t, "Triggered", e.Message)
	case <-time.After(time.Second):
		t.Fatal("callback was not invoked")
	}
}

func TestLoggerWritesFile(t *testing.T) {
	l := newTestLogger(t, 100)

	cl := l.Component("pipeline")
	cl.Info().Msg("component write")
	l.Info("main", "direct write", nil)

	content, err := os.ReadFile(l.GetLogPath())
	require.NoError(t, err)
	assert.Contains(t, string(content), `"component":"pipeline"`)
	assert.Contains(t, string(content), "component write")
	assert.Contains(t, string(content), "direct write")
	assert.Contains(t, string(content), `"app":"voxassist"`)
}

func TestLoggerClose(t *testing.T) {
	l, err := New(&Config{
		LogDir:     t.TempDir(),
		Level:      LevelInfo,
		MaxHistory: 10,
		Console:    false,
	})
	require.NoError(t, err)
	assert.NoError(t, l.Close())
}
