package format

import (
	"strconv"
	"strings"

	"github.com/fatih/color"
)

// tagAttrs maps markup tag names to ANSI attributes. Colors and styles
// share one namespace; bright_ variants use the high-intensity codes.
var tagAttrs = map[string]color.Attribute{
	"black":   color.FgBlack,
	"red":     color.FgRed,
	"green":   color.FgGreen,
	"yellow":  color.FgYellow,
	"blue":    color.FgBlue,
	"magenta": color.FgMagenta,
	"cyan":    color.FgCyan,
	"white":   color.FgWhite,

	"bright_black":   color.FgHiBlack,
	"bright_red":     color.FgHiRed,
	"bright_green":   color.FgHiGreen,
	"bright_yellow":  color.FgHiYellow,
	"bright_blue":    color.FgHiBlue,
	"bright_magenta": color.FgHiMagenta,
	"bright_cyan":    color.FgHiCyan,
	"bright_white":   color.FgHiWhite,

	"bold":      color.Bold,
	"b":         color.Bold,
	"italic":    color.Italic,
	"i":         color.Italic,
	"underline": color.Underline,
	"u":         color.Underline,
	"dim":       color.Faint,
	"strike":    color.CrossedOut,
	"s":         color.CrossedOut,
}

const ansiReset = "\x1b[0m"

// sgr renders one escape sequence enabling all given attributes.
func sgr(attrs []color.Attribute) string {
	if len(attrs) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\x1b[")
	for i, a := range attrs {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString(strconv.Itoa(int(a)))
	}
	b.WriteByte('m')
	return b.String()
}

// parseTag tries to read a markup tag starting at s[i] (which is '<').
// It returns the tag name, whether it is a closing tag, and the index
// just past '>'. ok is false when the text is not a valid tag and the
// '<' must be emitted literally.
func parseTag(s string, i int) (name string, closing bool, next int, ok bool) {
	j := i + 1
	if j < len(s) && s[j] == '/' {
		closing = true
		j++
	}
	start := j
	for j < len(s) {
		c := s[j]
		if c == '>' {
			break
		}
		if (c < 'a' || c > 'z') && c != '_' {
			return "", false, 0, false
		}
		j++
	}
	if j >= len(s) || j == start {
		return "", false, 0, false
	}
	name = s[start:j]
	if _, known := tagAttrs[name]; !known {
		return "", false, 0, false
	}
	return name, closing, j + 1, true
}

// Strip removes all valid markup tags from s, preserving their textual
// content and any stray '<' or '>' characters.
func Strip(s string) string {
	if !strings.ContainsRune(s, '<') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		if s[i] != '<' {
			b.WriteByte(s[i])
			i++
			continue
		}
		if _, _, next, ok := parseTag(s, i); ok {
			i = next
			continue
		}
		b.WriteByte('<')
		i++
	}
	return b.String()
}

// Colorize resolves markup tags in s into ANSI escape sequences. Tags
// nest; a closing tag restores the enclosing style; tags left open are
// closed at end of string. Closing tags with no matching open tag are
// emitted literally, like any other stray text.
func Colorize(s string) string {
	if !strings.ContainsRune(s, '<') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 16)

	// Stack of open tag names; the active attribute set is the
	// concatenation of every open tag's attribute.
	var stack []string
	active := func() []color.Attribute {
		attrs := make([]color.Attribute, 0, len(stack))
		for _, n := range stack {
			attrs = append(attrs, tagAttrs[n])
		}
		return attrs
	}

	for i := 0; i < len(s); {
		if s[i] != '<' {
			b.WriteByte(s[i])
			i++
			continue
		}
		name, closing, next, ok := parseTag(s, i)
		if !ok {
			b.WriteByte('<')
			i++
			continue
		}
		if !closing {
			stack = append(stack, name)
			b.WriteString(sgr([]color.Attribute{tagAttrs[name]}))
			i = next
			continue
		}
		// Closing tag: pop to the nearest matching open tag, closing
		// anything opened inside it along the way.
		idx := -1
		for k := len(stack) - 1; k >= 0; k-- {
			if stack[k] == name {
				idx = k
				break
			}
		}
		if idx < 0 {
			b.WriteString(s[i:next]) // unmatched close, keep literal
			i = next
			continue
		}
		stack = stack[:idx]
		b.WriteString(ansiReset)
		if len(stack) > 0 {
			b.WriteString(sgr(active()))
		}
		i = next
	}
	if len(stack) > 0 {
		b.WriteString(ansiReset)
	}
	return b.String()
}

// StyleTags reports whether markup is a parseable style descriptor, i.e.
// a run of valid opening tags such as "<red><bold>".
func StyleTags(markup string) bool {
	for i := 0; i < len(markup); {
		if markup[i] != '<' {
			return false
		}
		_, closing, next, ok := parseTag(markup, i)
		if !ok || closing {
			return false
		}
		i = next
	}
	return true
}
