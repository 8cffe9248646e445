package export

import (
	"bytes"
	"encoding/json"
)

// Marshal renders a record as indented JSON with a trailing newline. The
// output is a pure function of the record.
func Marshal(r *Record) ([]byte, error) {
	out := *r
	if out.Splits == nil {
		out.Splits = []Split{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(&out); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func Unmarshal(data []byte) (*Record, error) {
	r := &Record{}
	if err := json.Unmarshal(data, r); err != nil {
		return nil, err
	}
	if r.Splits == nil {
		r.Splits = []Split{}
	}
	return r, nil
}
