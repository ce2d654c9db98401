package util

import (
	"encoding/json"
)

// DecodeFields copies a loosely typed field map into a tagged struct
func DecodeFields(fields map[string]any, v any) error {
	data, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
