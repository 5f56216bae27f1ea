package journal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/lineage/internal/ir"
)

// marshalIDs converts a list of ids to JSON TEXT: [[first, second], ...].
func marshalIDs(ids []ir.Id) (string, error) {
	pairs := make([][2]uint64, len(ids))
	for i, id := range ids {
		pairs[i] = [2]uint64{uint64(id.First), uint64(id.Second)}
	}
	data, err := json.Marshal(pairs)
	if err != nil {
		return "", fmt.Errorf("marshal ids: %w", err)
	}
	return string(data), nil
}

func unmarshalIDs(data string) ([]ir.Id, error) {
	if data == "" || data == "[]" {
		return nil, nil
	}
	var pairs [][2]uint64
	if err := json.Unmarshal([]byte(data), &pairs); err != nil {
		return nil, fmt.Errorf("unmarshal ids: %w", err)
	}
	ids := make([]ir.Id, len(pairs))
	for i, p := range pairs {
		ids[i] = ir.Id{First: ir.Entity(p[0]), Second: ir.Entity(p[1])}
	}
	return ids, nil
}

// marshalDescriptor converts a query descriptor to JSON TEXT.
// Uses json.Encoder with HTML escaping disabled so names are stored as
// written.
func marshalDescriptor(desc ir.QueryDesc) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(desc); err != nil {
		return "", fmt.Errorf("marshal descriptor: %w", err)
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

func unmarshalDescriptor(data string) (ir.QueryDesc, error) {
	var desc ir.QueryDesc
	if err := json.Unmarshal([]byte(data), &desc); err != nil {
		return ir.QueryDesc{}, fmt.Errorf("unmarshal descriptor: %w", err)
	}
	return desc, nil
}
