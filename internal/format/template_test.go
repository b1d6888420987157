package format

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/emberlog/ember/pkg/record"
)

func testRecord() *record.Record {
	return &record.Record{
		LevelNo:   20,
		LevelName: "INFO",
		Message:   "hello",
		Time:      time.Date(2025, 3, 14, 9, 26, 53, 589_000_000, time.Local),
		Extra:     map[string]any{"user": "u1", "attempt": 3},
	}
}

func render(t *testing.T, template string, r *record.Record) string {
	t.Helper()
	var buf bytes.Buffer
	return Compile(template).Render(&buf, r, RenderOpts{})
}

func TestRenderBasicTokens(t *testing.T) {
	r := testRecord()
	assert.Equal(t, "INFO | hello", render(t, "{level} | {message}", r))
	assert.Equal(t, "2025-03-14 09:26:53.589", render(t, "{time}", r))
}

func TestRenderWidthAlignment(t *testing.T) {
	r := testRecord()
	// "<N" pads on the left, ">N" on the right.
	assert.Equal(t, "    INFO|", render(t, "{level:<8}|", r))
	assert.Equal(t, "INFO    |", render(t, "{level:>8}|", r))
	// Values already past the width are untouched.
	assert.Equal(t, "INFO", render(t, "{level:<2}", r))
}

func TestRenderUnknownTokenIsEmpty(t *testing.T) {
	r := testRecord()
	assert.Equal(t, "[] hello", render(t, "[{nope}] {message}", r))
}

func TestRenderAbsentOptionalFieldsAreEmpty(t *testing.T) {
	r := testRecord()
	assert.Equal(t, "::", render(t, "{name}:{function}:{line}", r))
	assert.Equal(t, "", render(t, "{elapsed}", r))
}

func TestRenderCallerAndElapsed(t *testing.T) {
	r := testRecord()
	r.Caller = &record.Caller{Name: "app.db", Function: "connect", File: "db.go", Line: 42}
	d := time.Hour + 2*time.Minute + 3*time.Second + 4*time.Millisecond
	r.Elapsed = &d

	assert.Equal(t, "app.db:connect:42", render(t, "{name}:{function}:{line}", r))
	assert.Equal(t, "01:02:03.004", render(t, "{elapsed}", r))
}

func TestRenderExtraTokens(t *testing.T) {
	r := testRecord()
	assert.Equal(t, "u1 3", render(t, "{extra[user]} {extra[attempt]}", r))
	assert.Equal(t, "", render(t, "{extra[missing]}", r))
}

func TestRenderThreadAndProcess(t *testing.T) {
	r := testRecord()
	r.Thread = &record.Thread{Name: "worker-1", ID: 7}
	r.Process = &record.Process{Name: "apid", ID: 4242}
	assert.Equal(t, "worker-1/apid", render(t, "{thread}/{process}", r))
}

func TestRequirementsDerivation(t *testing.T) {
	cases := []struct {
		template string
		want     record.Requirements
	}{
		{"{message}", record.Requirements{}},
		{"{name} {message}", record.Requirements{Caller: true}},
		{"{function}", record.Requirements{Caller: true}},
		{"{line}{file}", record.Requirements{Caller: true}},
		{"{thread}", record.Requirements{Thread: true}},
		{"{process}", record.Requirements{Process: true}},
		{"{elapsed}", record.Requirements{Elapsed: true}},
		{"{elapsed} {thread} {name}", record.Requirements{Caller: true, Thread: true, Elapsed: true}},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Compile(c.template).Requirements(), "template %q", c.template)
	}
}

func TestRenderNeverFails(t *testing.T) {
	// Malformed templates must compile and render without error.
	r := testRecord()
	for _, template := range []string{
		"", "{", "}", "{}", "{unclosed", "{level", "text only",
		"{extra[}", "{level:<}", "{level:<x}", "{:8}", "{{level}}",
	} {
		var buf bytes.Buffer
		p := Compile(template)
		require.NotNil(t, p, "template %q", template)
		_ = p.Render(&buf, r, RenderOpts{})
	}
}

func TestRenderLevelStyleOnlyWhenColorized(t *testing.T) {
	r := testRecord()
	var buf bytes.Buffer
	p := Compile("{level} {message}")

	plain := p.Render(&buf, r, RenderOpts{Colorize: false, LevelStyle: "<red><bold>"})
	assert.Equal(t, "INFO hello", plain)

	colored := p.Render(&buf, r, RenderOpts{Colorize: true, LevelStyle: "<red><bold>"})
	assert.Contains(t, colored, "\x1b[31m")
	assert.Contains(t, colored, "\x1b[1m")
	assert.Contains(t, colored, "INFO")
	assert.Equal(t, "INFO hello", Strip(plain))
}

func TestFormatElapsed(t *testing.T) {
	assert.Equal(t, "00:00:00.000", FormatElapsed(0))
	assert.Equal(t, "00:00:00.500", FormatElapsed(500*time.Millisecond))
	assert.Equal(t, "27:46:39.999", FormatElapsed(27*time.Hour+46*time.Minute+39*time.Second+999*time.Millisecond))
}
