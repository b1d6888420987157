package format

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/emberlog/ember/pkg/record"
)

// jsonRecord fixes the serialized key set and order. Absent optional
// fields marshal as null; extra is always an object.
type jsonRecord struct {
	Time        string         `json:"time"`
	Level       string         `json:"level"`
	Message     string         `json:"message"`
	Name        *string        `json:"name"`
	Function    *string        `json:"function"`
	Line        *int           `json:"line"`
	File        *string        `json:"file"`
	Elapsed     *string        `json:"elapsed"`
	ThreadName  *string        `json:"thread_name"`
	ThreadID    *int64         `json:"thread_id"`
	ProcessName *string        `json:"process_name"`
	ProcessID   *int           `json:"process_id"`
	Exception   *string        `json:"exception"`
	Extra       map[string]any `json:"extra"`
}

// JSONLine serializes a record to its canonical single-line JSON form,
// without the trailing newline. The message is serialized raw; markup
// tags are data in JSON mode, not formatting.
func JSONLine(r *record.Record) (string, error) {
	out := jsonRecord{
		Time:    r.Time.Format(TimeLayout),
		Level:   r.LevelName,
		Message: r.Message,
		Extra:   r.Extra,
	}
	if out.Extra == nil {
		out.Extra = map[string]any{}
	}
	if r.Caller != nil {
		out.Name = &r.Caller.Name
		out.Function = &r.Caller.Function
		out.Line = &r.Caller.Line
		out.File = &r.Caller.File
	}
	if r.Elapsed != nil {
		e := FormatElapsed(*r.Elapsed)
		out.Elapsed = &e
	}
	if r.Thread != nil {
		out.ThreadName = &r.Thread.Name
		out.ThreadID = &r.Thread.ID
	}
	if r.Process != nil {
		out.ProcessName = &r.Process.Name
		out.ProcessID = &r.Process.ID
	}
	if r.Exception != "" {
		out.Exception = &r.Exception
	}
	b, err := json.Marshal(out)
	if err != nil {
		// Extras may hold unmarshalable values; fall back to a line that
		// still carries the essentials rather than dropping the record.
		return fmt.Sprintf(`{"time":%q,"level":%q,"message":%q,"error":"json_marshal_failed"}`,
			r.Time.Format(TimeLayout), r.LevelName,
			strings.ReplaceAll(r.Message, "\n", " ")), err
	}
	return string(b), nil
}
