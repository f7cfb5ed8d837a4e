package log

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// JSONFormatter renders one JSON object per line.
type JSONFormatter struct {
	// TimeFormat defaults to RFC3339Nano.
	TimeFormat string
}

func (f *JSONFormatter) Format(e *Entry) ([]byte, error) {
	tf := f.TimeFormat
	if tf == "" {
		tf = time.RFC3339Nano
	}
	m := make(map[string]interface{}, len(e.Fields)+3)
	for k, v := range e.Fields {
		m[k] = v
	}
	m["time"] = e.Timestamp.Format(tf)
	m["level"] = e.Level.String()
	m["msg"] = e.Message
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// TextFormatter renders "time LEVEL msg key=value ..." with sorted keys.
type TextFormatter struct {
	TimeFormat string
	// DisableTimestamp drops the leading time column.
	DisableTimestamp bool
}

func (f *TextFormatter) Format(e *Entry) ([]byte, error) {
	var buf bytes.Buffer
	if !f.DisableTimestamp {
		tf := f.TimeFormat
		if tf == "" {
			tf = "2006-01-02T15:04:05.000Z07:00"
		}
		buf.WriteString(e.Timestamp.Format(tf))
		buf.WriteByte(' ')
	}
	fmt.Fprintf(&buf, "%-5s %s", e.Level.String(), e.Message)

	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		buf.WriteByte(' ')
		buf.WriteString(k)
		buf.WriteByte('=')
		s := fmt.Sprint(e.Fields[k])
		if s == "" || strings.ContainsAny(s, " \t\"=") {
			s = fmt.Sprintf("%q", s)
		}
		buf.WriteString(s)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}
