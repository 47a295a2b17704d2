package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/bft-labs/bulkship/pkg/bulk"
)

// LineDecoder turns one NDJSON input line into an Action.
type LineDecoder interface {
	Decode(line []byte) (bulk.Action, error)
}

// DocsDecoder treats each line as a document body. For updates the
// document is sent as a partial doc.
type DocsDecoder struct {
	Operation string
	Index     string
	// IDField names a top-level string or number field copied into _id.
	IDField string
}

// Decode builds an action from one document line.
func (d DocsDecoder) Decode(line []byte) (bulk.Action, error) {
	if !json.Valid(line) {
		return bulk.Action{}, fmt.Errorf("invalid JSON document")
	}

	b := bulk.NewActionBuilder().Operation(d.Operation)
	if d.Index != "" {
		b.Index(d.Index)
	}
	if d.IDField != "" {
		id, err := extractID(line, d.IDField)
		if err != nil {
			return bulk.Action{}, err
		}
		if id != "" {
			b.ID(id)
		}
	}
	switch d.Operation {
	case bulk.OpDelete:
	case bulk.OpUpdate:
		b.Body(wrapDoc(line))
	default:
		b.Body(line)
	}
	return b.Build()
}

// wrapDoc turns a document into a partial update body.
func wrapDoc(doc []byte) []byte {
	body := make([]byte, 0, len(doc)+8)
	body = append(body, `{"doc":`...)
	body = append(body, doc...)
	return append(body, '}')
}

func extractID(doc []byte, field string) (string, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(doc, &fields); err != nil {
		return "", fmt.Errorf("document is not an object: %w", err)
	}
	raw, ok := fields[field]
	if !ok || string(raw) == "null" {
		return "", nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&n); err == nil {
		if _, err := strconv.ParseFloat(n.String(), 64); err == nil {
			return n.String(), nil
		}
	}
	return "", fmt.Errorf("field %q is not a string or number", field)
}

// ActionsDecoder decodes each line as a bulk.ActionSpec.
type ActionsDecoder struct {
	// Index is used for actions that do not name one.
	Index string
}

// Decode builds an action from one ActionSpec line.
func (d ActionsDecoder) Decode(line []byte) (bulk.Action, error) {
	var spec bulk.ActionSpec
	if err := json.Unmarshal(line, &spec); err != nil {
		return bulk.Action{}, fmt.Errorf("decode action: %w", err)
	}
	if spec.Index == nil && d.Index != "" {
		index := d.Index
		spec.Index = &index
	}
	return spec.Build()
}
