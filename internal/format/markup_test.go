package format

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripRemovesTagsKeepsContent(t *testing.T) {
	assert.Equal(t, "danger", Strip("<red>danger</red>"))
	assert.Equal(t, "a b c", Strip("<bold>a</bold> <dim>b</dim> c"))
	assert.Equal(t, "plain", Strip("plain"))
}

func TestStripKeepsStrayAngles(t *testing.T) {
	assert.Equal(t, "x < y", Strip("x < y"))
	assert.Equal(t, "a > b", Strip("a > b"))
	assert.Equal(t, "<notatag>", Strip("<notatag>"))
	assert.Equal(t, "<RED>loud</RED>", Strip("<RED>loud</RED>"), "tag names are lowercase")
	assert.Equal(t, "vec<int>", Strip("vec<int>"))
}

func TestStripNestedAndUnclosed(t *testing.T) {
	assert.Equal(t, "ab", Strip("<red>a<bold>b"))
	assert.Equal(t, "outer inner outer", Strip("<red>outer <blue>inner</blue> outer</red>"))
}

func TestStripIsIdempotent(t *testing.T) {
	for _, s := range []string{
		"<red>danger</red>", "x < y", "<red>a<bold>b", "vec<int>", "plain",
	} {
		once := Strip(s)
		assert.Equal(t, once, Strip(once), "stripping %q twice changed it", s)
	}
}

func TestColorizeWrapsSpans(t *testing.T) {
	out := Colorize("<red>danger</red>")
	assert.Equal(t, "\x1b[31mdanger\x1b[0m", out)
}

func TestColorizeNestingRestoresEnclosingStyle(t *testing.T) {
	out := Colorize("<red>a<bold>b</bold>c</red>")
	// After </bold> the red span is re-established.
	assert.Equal(t, "\x1b[31ma\x1b[1mb\x1b[0m\x1b[31mc\x1b[0m", out)
}

func TestColorizeUnclosedTagsCloseAtEndOfString(t *testing.T) {
	out := Colorize("<green>go")
	assert.Equal(t, "\x1b[32mgo\x1b[0m", out)
}

func TestColorizeLeavesRawCharactersIdentical(t *testing.T) {
	in := "<yellow>warn</yellow> about <thing> and x<y"
	colored := Colorize(in)
	stripped := Strip(in)
	// Removing the escapes from colorized output yields the stripped text.
	plain := colored
	for _, esc := range []string{"\x1b[33m", "\x1b[0m"} {
		plain = strings.ReplaceAll(plain, esc, "")
	}
	assert.Equal(t, stripped, plain)
}

func TestColorizeUnmatchedCloseIsLiteral(t *testing.T) {
	assert.Equal(t, "</red>text", Colorize("</red>text"))
}

func TestColorizeBrightAndStyleAliases(t *testing.T) {
	assert.Equal(t, "\x1b[91mx\x1b[0m", Colorize("<bright_red>x</bright_red>"))
	assert.Equal(t, Colorize("<bold>x</bold>"), Colorize("<b>x</b>"))
	assert.Equal(t, Colorize("<underline>x</underline>"), Colorize("<u>x</u>"))
	assert.Equal(t, Colorize("<strike>x</strike>"), Colorize("<s>x</s>"))
}

func TestStyleTags(t *testing.T) {
	assert.True(t, StyleTags("<red><bold>"))
	assert.True(t, StyleTags(""))
	assert.False(t, StyleTags("<red>x"))
	assert.False(t, StyleTags("</red>"))
	assert.False(t, StyleTags("red"))
}
