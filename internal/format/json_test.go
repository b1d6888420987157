package format

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberlog/ember/pkg/record"
)

func TestJSONLineRoundTrip(t *testing.T) {
	d := 90*time.Second + 250*time.Millisecond
	r := &record.Record{
		LevelNo:   20,
		LevelName: "INFO",
		Message:   "hi",
		Time:      time.Date(2025, 1, 2, 3, 4, 5, 678_000_000, time.Local),
		Elapsed:   &d,
		Caller:    &record.Caller{Name: "app", Function: "run", File: "app.go", Line: 17},
		Thread:    &record.Thread{Name: "main", ID: 1},
		Process:   &record.Process{Name: "apid", ID: 99},
		Exception: "trace text",
		Extra:     map[string]any{"user": "u1"},
	}

	line, err := JSONLine(r)
	require.NoError(t, err)
	require.False(t, strings.ContainsRune(line, '\n'), "must be a single line")

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &got))

	assert.Equal(t, "INFO", got["level"])
	assert.Equal(t, "hi", got["message"])
	assert.Equal(t, "2025-01-02 03:04:05.678", got["time"])
	assert.Equal(t, "app", got["name"])
	assert.Equal(t, "run", got["function"])
	assert.Equal(t, float64(17), got["line"])
	assert.Equal(t, "app.go", got["file"])
	assert.Equal(t, "00:01:30.250", got["elapsed"])
	assert.Equal(t, "main", got["thread_name"])
	assert.Equal(t, float64(1), got["thread_id"])
	assert.Equal(t, "apid", got["process_name"])
	assert.Equal(t, float64(99), got["process_id"])
	assert.Equal(t, "trace text", got["exception"])
	assert.Equal(t, map[string]any{"user": "u1"}, got["extra"])
}

func TestJSONLineAbsentFieldsAreNull(t *testing.T) {
	r := &record.Record{
		LevelNo:   30,
		LevelName: "WARNING",
		Message:   "careful",
		Time:      time.Now(),
	}

	line, err := JSONLine(r)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &got))

	for _, key := range []string{
		"name", "function", "line", "file", "elapsed",
		"thread_name", "thread_id", "process_name", "process_id", "exception",
	} {
		v, present := got[key]
		assert.True(t, present, "key %s must be present", key)
		assert.Nil(t, v, "key %s must be null", key)
	}
	assert.Equal(t, map[string]any{}, got["extra"], "extra is an object even when empty")
}

func TestJSONLineMessageKeepsMarkupRaw(t *testing.T) {
	r := &record.Record{
		LevelNo:   20,
		LevelName: "INFO",
		Message:   "<red>alert</red>",
		Time:      time.Now(),
	}
	line, err := JSONLine(r)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &got))
	assert.Equal(t, "<red>alert</red>", got["message"])
}

func TestJSONLineUnmarshalableExtraFallsBack(t *testing.T) {
	r := &record.Record{
		LevelNo:   20,
		LevelName: "INFO",
		Message:   "boom",
		Time:      time.Now(),
		Extra:     map[string]any{"ch": make(chan int)},
	}
	line, err := JSONLine(r)
	assert.Error(t, err)

	// The fallback line still parses and carries the essentials.
	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &got))
	assert.Equal(t, "boom", got["message"])
	assert.Equal(t, "json_marshal_failed", got["error"])
}
