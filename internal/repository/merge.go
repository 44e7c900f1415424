package repository

import (
	"encoding/json"
	"fmt"
	"strings"
)

type deleteField struct{}

// DeleteField removes the addressed key when passed as a value to MergeFields.
var DeleteField = deleteField{}

// MergeFields applies fields onto doc and returns the new document. doc may be
// nil, in which case an empty object is assumed. Keys containing "/" address
// nested objects, creating intermediate objects as needed. Fields not named are
// left untouched byte for byte.
func MergeFields(doc json.RawMessage, fields map[string]any) (json.RawMessage, error) {
	root := map[string]json.RawMessage{}
	if len(doc) > 0 && string(doc) != "null" {
		if err := json.Unmarshal(doc, &root); err != nil {
			return nil, fmt.Errorf("document is not an object: %w", err)
		}
	}

	for key, value := range fields {
		var encoded json.RawMessage
		if _, remove := value.(deleteField); !remove {
			data, err := json.Marshal(value)
			if err != nil {
				return nil, fmt.Errorf("failed to encode field %q: %w", key, err)
			}
			encoded = data
		}
		segments := strings.Split(strings.Trim(key, "/"), "/")
		if err := setNested(root, segments, encoded); err != nil {
			return nil, fmt.Errorf("failed to set field %q: %w", key, err)
		}
	}

	return json.Marshal(root)
}

// setNested writes value at segments below node. A nil value deletes the key.
func setNested(node map[string]json.RawMessage, segments []string, value json.RawMessage) error {
	head := segments[0]
	if head == "" {
		return fmt.Errorf("empty path segment")
	}
	if len(segments) == 1 {
		if value == nil {
			delete(node, head)
			return nil
		}
		node[head] = value
		return nil
	}
	if _, ok := node[head]; !ok && value == nil {
		return nil
	}

	child := map[string]json.RawMessage{}
	if existing, ok := node[head]; ok && len(existing) > 0 && string(existing) != "null" {
		if err := json.Unmarshal(existing, &child); err != nil {
			return fmt.Errorf("segment %q is not an object", head)
		}
	}
	if err := setNested(child, segments[1:], value); err != nil {
		return err
	}
	encoded, err := json.Marshal(child)
	if err != nil {
		return err
	}
	node[head] = encoded
	return nil
}
