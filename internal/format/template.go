// Package format compiles handler format templates into reusable plans,
// renders records to text with optional ANSI color markup, and produces
// the canonical one-line JSON serialization.
//
// A template is parsed exactly once, at handler construction; the hot
// path only walks the compiled steps. Unknown tokens render as the empty
// string so a typo in a template can never fail an emission.
package format

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/emberlog/ember/pkg/record"
)

// TimeLayout is the wall-clock layout used by the {time} token and the
// JSON "time" field. Millisecond precision, local offset.
const TimeLayout = "2006-01-02 15:04:05.000"

type fieldKind int

const (
	stepLiteral fieldKind = iota
	fieldTime
	fieldLevel
	fieldMessage
	fieldName
	fieldFunction
	fieldLine
	fieldFile
	fieldElapsed
	fieldThread
	fieldProcess
	fieldExtra
	fieldUnknown
)

// align states how a fixed-width field is padded. padLeft corresponds to
// the "<N" spec (spaces on the left), padRight to ">N".
type align int

const (
	alignNone align = iota
	padLeft
	padRight
)

type step struct {
	kind  fieldKind
	text  string // literal text, or the extra key for fieldExtra
	width int
	align align
}

// Plan is the compiled representation of a format template.
type Plan struct {
	steps []step
	reqs  record.Requirements
}

var fieldNames = map[string]fieldKind{
	"time":     fieldTime,
	"level":    fieldLevel,
	"message":  fieldMessage,
	"name":     fieldName,
	"function": fieldFunction,
	"line":     fieldLine,
	"file":     fieldFile,
	"elapsed":  fieldElapsed,
	"thread":   fieldThread,
	"process":  fieldProcess,
}

// Compile parses a template into a Plan. Compilation never fails:
// malformed or unrecognized tokens become empty-rendering steps, keeping
// the hot path robust to template typos.
func Compile(template string) *Plan {
	p := &Plan{}
	var lit bytes.Buffer
	flush := func() {
		if lit.Len() > 0 {
			p.steps = append(p.steps, step{kind: stepLiteral, text: lit.String()})
			lit.Reset()
		}
	}
	for i := 0; i < len(template); {
		c := template[i]
		if c != '{' {
			lit.WriteByte(c)
			i++
			continue
		}
		end := strings.IndexByte(template[i:], '}')
		if end < 0 {
			lit.WriteByte('{')
			i++
			continue
		}
		token := template[i+1 : i+end]
		s, ok := compileToken(token)
		if !ok {
			// Not a braced token we understand; keep the text as-is.
			lit.WriteString(template[i : i+end+1])
			i += end + 1
			continue
		}
		flush()
		p.steps = append(p.steps, s)
		i += end + 1
	}
	flush()
	p.reqs = analyze(p.steps)
	return p
}

// compileToken turns the inside of one {...} token into a step.
func compileToken(token string) (step, bool) {
	body := token
	var s step
	if colon := strings.IndexByte(body, ':'); colon >= 0 {
		spec := body[colon+1:]
		body = body[:colon]
		if len(spec) >= 2 && (spec[0] == '<' || spec[0] == '>') {
			if w, err := strconv.Atoi(spec[1:]); err == nil && w > 0 {
				s.width = w
				if spec[0] == '<' {
					s.align = padLeft
				} else {
					s.align = padRight
				}
			}
		}
	}
	if strings.HasPrefix(body, "extra[") && strings.HasSuffix(body, "]") {
		s.kind = fieldExtra
		s.text = body[len("extra[") : len(body)-1]
		return s, true
	}
	kind, ok := fieldNames[body]
	if !ok {
		// Recognized token shape but unknown name: renders empty.
		s.kind = fieldUnknown
		return s, true
	}
	s.kind = kind
	return s, true
}

// analyze derives which optional record fields the steps consult.
func analyze(steps []step) record.Requirements {
	var r record.Requirements
	for _, s := range steps {
		switch s.kind {
		case fieldName, fieldFunction, fieldLine, fieldFile:
			r.Caller = true
		case fieldThread:
			r.Thread = true
		case fieldProcess:
			r.Process = true
		case fieldElapsed:
			r.Elapsed = true
		}
	}
	return r
}

// Requirements returns the optional fields this plan consults.
func (p *Plan) Requirements() record.Requirements {
	return p.reqs
}

// RenderOpts carries per-handler rendering state that is not part of the
// record itself.
type RenderOpts struct {
	// Colorize resolves markup tags to ANSI escapes; when false, tags
	// are stripped and their content preserved.
	Colorize bool
	// LevelStyle is the registered color descriptor for the record's
	// level (e.g. "<red><bold>"), wrapped around the {level} field on
	// colorized output.
	LevelStyle string
}

// Render walks the plan and writes the rendered record into buf, then
// applies the markup pass (colorize or strip) over the whole line. The
// returned string carries no trailing newline.
func (p *Plan) Render(buf *bytes.Buffer, r *record.Record, opts RenderOpts) string {
	buf.Reset()
	for _, s := range p.steps {
		p.renderStep(buf, s, r, opts)
	}
	if opts.Colorize {
		return Colorize(buf.String())
	}
	return Strip(buf.String())
}

func (p *Plan) renderStep(buf *bytes.Buffer, s step, r *record.Record, opts RenderOpts) {
	if s.kind == stepLiteral {
		buf.WriteString(s.text)
		return
	}
	var v string
	switch s.kind {
	case fieldTime:
		v = r.Time.Format(TimeLayout)
	case fieldLevel:
		v = r.LevelName
		if opts.Colorize && opts.LevelStyle != "" {
			v = opts.LevelStyle + pad(v, s) + closeTags(opts.LevelStyle)
			buf.WriteString(v)
			return
		}
	case fieldMessage:
		v = r.Message
	case fieldName:
		if r.Caller != nil {
			v = r.Caller.Name
		}
	case fieldFunction:
		if r.Caller != nil {
			v = r.Caller.Function
		}
	case fieldLine:
		if r.Caller != nil {
			v = strconv.Itoa(r.Caller.Line)
		}
	case fieldFile:
		if r.Caller != nil {
			v = r.Caller.File
		}
	case fieldElapsed:
		if r.Elapsed != nil {
			v = FormatElapsed(*r.Elapsed)
		}
	case fieldThread:
		if r.Thread != nil {
			v = r.Thread.Name
		}
	case fieldProcess:
		if r.Process != nil {
			v = r.Process.Name
		}
	case fieldExtra:
		if raw, ok := r.Extra[s.text]; ok {
			v = extraString(raw)
		}
	case fieldUnknown:
		v = ""
	}
	buf.WriteString(pad(v, s))
}

// pad applies the field width spec. "<N" pads with spaces on the left,
// ">N" on the right; fields already at or past the width are untouched.
func pad(v string, s step) string {
	if s.align == alignNone || len(v) >= s.width {
		return v
	}
	fill := strings.Repeat(" ", s.width-len(v))
	if s.align == padLeft {
		return fill + v
	}
	return v + fill
}

// closeTags produces the closing tags for a style descriptor like
// "<red><bold>", in reverse order.
func closeTags(markup string) string {
	var names []string
	for i := 0; i < len(markup); {
		name, closing, next, ok := parseTag(markup, i)
		if !ok || closing {
			break
		}
		names = append(names, name)
		i = next
	}
	var b strings.Builder
	for i := len(names) - 1; i >= 0; i-- {
		b.WriteString("</")
		b.WriteString(names[i])
		b.WriteByte('>')
	}
	return b.String()
}

// FormatElapsed renders a duration as HH:MM:SS.mmm.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := d / time.Hour
	m := (d / time.Minute) % 60
	s := (d / time.Second) % 60
	ms := (d / time.Millisecond) % 1000
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}

// extraString renders one extra value for text output. Strings pass
// through untouched; everything else uses the default Go formatting.
func extraString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
