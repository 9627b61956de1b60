package app

import (
	"bytes"
	"encoding"
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/go-logfmt/logfmt"
	"github.com/sirupsen/logrus"
)

const (
	formatText   = "text"
	formatJSON   = "json"
	formatLogfmt = "logfmt"
)

func formatter(format string) logrus.Formatter {
	switch format {
	case formatJSON:
		return &logrus.JSONFormatter{}
	case formatLogfmt:
		return &logfmtFormatter{}
	default:
		return &logrus.TextFormatter{}
	}
}

// logfmtFormatter writes one logfmt record per entry with the time, level
// and message first and the remaining fields sorted by key.
type logfmtFormatter struct{}

func (f *logfmtFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var buf bytes.Buffer
	enc := logfmt.NewEncoder(&buf)

	keyvals := []interface{}{
		"time", entry.Time.UTC().Format(time.RFC3339Nano),
		"level", entry.Level.String(),
		"msg", entry.Message,
	}
	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		keyvals = append(keyvals, k, logfmtValue(entry.Data[k]))
	}

	if err := enc.EncodeKeyvals(keyvals...); err != nil {
		return nil, err
	}
	if err := enc.EndRecord(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// logfmtValue flattens the values logfmt cannot encode, e.g. slices.
func logfmtValue(v interface{}) interface{} {
	switch v.(type) {
	case nil, string, error, fmt.Stringer, encoding.TextMarshaler:
		return v
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Array, reflect.Slice, reflect.Map, reflect.Struct, reflect.Chan, reflect.Func, reflect.Ptr:
		return fmt.Sprint(v)
	}
	return v
}
