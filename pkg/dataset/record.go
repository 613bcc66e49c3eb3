// Package dataset holds the loosely typed records that the backend API hands
// back for every entity, keeping their field order so exports and label rows
// come out in the order the backend sent them.
package dataset

import (
	"bytes"
	stdjson "encoding/json"
	"strconv"

	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
)

type Record struct {
	keys   []string
	values map[string]interface{}
}

func NewRecord() *Record {
	return &Record{values: map[string]interface{}{}}
}

// FromMap builds a record with the given keys in order. Keys missing from
// values are skipped.
func FromMap(keys []string, values map[string]interface{}) *Record {
	r := NewRecord()
	for _, k := range keys {
		if v, ok := values[k]; ok {
			r.Set(k, v)
		}
	}
	return r
}

func (r *Record) Set(key string, value interface{}) {
	if r.values == nil {
		r.values = map[string]interface{}{}
	}
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = value
}

func (r *Record) Get(key string) (interface{}, bool) {
	if r == nil {
		return nil, false
	}
	v, ok := r.values[key]
	return v, ok
}

func (r *Record) Delete(key string) {
	if _, ok := r.values[key]; !ok {
		return
	}
	delete(r.values, key)
	for i, k := range r.keys {
		if k == key {
			r.keys = append(r.keys[:i], r.keys[i+1:]...)
			break
		}
	}
}

func (r *Record) Keys() []string {
	if r == nil {
		return nil
	}
	return append([]string(nil), r.keys...)
}

func (r *Record) Len() int {
	if r == nil {
		return 0
	}
	return len(r.keys)
}

func (r *Record) Clone() *Record {
	c := NewRecord()
	for _, k := range r.Keys() {
		c.Set(k, r.values[k])
	}
	return c
}

// String renders the value the way it should appear in a CSV cell or on a
// label. Missing and null values are the empty string.
func (r *Record) String(key string) string {
	v, ok := r.Get(key)
	if !ok {
		return ""
	}
	return formatValue(v)
}

// First returns the first non-empty value among keys.
func (r *Record) First(keys ...string) string {
	for _, k := range keys {
		if s := r.String(k); s != "" {
			return s
		}
	}
	return ""
}

// Truthy reports whether the value counts as set. Booleans and numbers use
// their value and any non-empty string is true, including "0" and "false".
func (r *Record) Truthy(key string) bool {
	v, ok := r.Get(key)
	if !ok || v == nil {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case stdjson.Number:
		f, err := t.Float64()
		return err == nil && f != 0
	case float64:
		return t != 0
	case int:
		return t != 0
	case string:
		return t != ""
	}
	return true
}

func formatValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case stdjson.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(r.values[k])
		if err != nil {
			return nil, errors.WithStack(err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (r *Record) UnmarshalJSON(b []byte) error {
	dec := stdjson.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return errors.WithStack(err)
	}
	if delim, ok := tok.(stdjson.Delim); !ok || delim != '{' {
		return errors.Errorf("record must be a JSON object, got %v", tok)
	}

	r.keys = nil
	r.values = map[string]interface{}{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return errors.WithStack(err)
		}
		key, ok := tok.(string)
		if !ok {
			return errors.Errorf("unexpected record key %v", tok)
		}
		var value interface{}
		if err := dec.Decode(&value); err != nil {
			return errors.WithStack(err)
		}
		r.Set(key, value)
	}
	_, err = dec.Token()
	return errors.WithStack(err)
}

// Decode parses a JSON array of objects, or a single object, into records.
func Decode(b []byte) ([]*Record, error) {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if trimmed[0] == '{' {
		r := NewRecord()
		if err := r.UnmarshalJSON(trimmed); err != nil {
			return nil, err
		}
		return []*Record{r}, nil
	}
	var records []*Record
	if err := json.Unmarshal(trimmed, &records); err != nil {
		return nil, errors.WithStack(err)
	}
	return records, nil
}
