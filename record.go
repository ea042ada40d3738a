package odatakit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"maps"
)

// Record is a hierarchical JSON document as exchanged with the service.
//
// Numbers decode as json.Number so unknown fields round-trip untouched, and an
// explicit null is kept as a nil value, distinct from an absent key.
type Record = map[string]any

// decodeRecord decodes a JSON object. Empty or whitespace-only input yields
// (nil, nil).
func decodeRecord(body []byte) (Record, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var out Record
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("trailing data after JSON document")
	}
	return out, nil
}

func encodeRecord(r Record) ([]byte, error) {
	if r == nil {
		r = Record{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(r); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// mergeRefs returns a shallow copy of data with each ref set on it.
func mergeRefs(data Record, refs []Ref) Record {
	out := make(Record, len(data)+len(refs))
	maps.Copy(out, data)
	for _, ref := range refs {
		out[ref.Field] = ref.Value
	}
	return out
}
