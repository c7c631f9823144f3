package adminclient

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/hmxfpv/admin-api/internal/models"
)

// decodeCollection accepts a bare array, {data:[...]}, {applications:[...]}
// or {data:{applications:[...]}}. Any other shape is an empty collection.
// Elements that fail to decode are skipped.
func decodeCollection(raw []byte) []models.Entity {
	items, ok := collectionItems(raw, 0)
	if !ok {
		return []models.Entity{}
	}
	out := make([]models.Entity, 0, len(items))
	for _, item := range items {
		var e models.Entity
		if err := json.Unmarshal(item, &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out
}

func collectionItems(raw []byte, depth int) ([]json.RawMessage, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || depth > 2 {
		return nil, false
	}
	switch trimmed[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, false
		}
		return items, true
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return nil, false
		}
		for _, key := range []string{"applications", "data"} {
			if nested, ok := obj[key]; ok {
				if items, ok := collectionItems(nested, depth+1); ok {
					return items, true
				}
			}
		}
	}
	return nil, false
}

// decodeEntity accepts a bare object or one wrapped in {data:{...}}.
func decodeEntity(raw []byte) (models.Entity, error) {
	var e models.Entity
	if err := json.Unmarshal(unwrapData(raw), &e); err != nil {
		return models.Entity{}, fmt.Errorf("decode entity: %w", err)
	}
	return e, nil
}

// unwrapData returns the data member of an envelope, or raw itself.
func unwrapData(raw []byte) []byte {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return raw
	}
	if data, ok := envelope["data"]; ok && len(bytes.TrimSpace(data)) > 0 && bytes.TrimSpace(data)[0] == '{' {
		return data
	}
	return raw
}
