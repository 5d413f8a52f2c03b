package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// jsonValue marshals a JSONB column value.
func jsonValue(v interface{}, name string) (driver.Value, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", name, err)
	}
	return data, nil
}

// scanJSON decodes a JSONB column into dst; NULL and empty payloads leave
// dst untouched.
func scanJSON(value interface{}, dst interface{}, name string) error {
	if value == nil {
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for %s", value, name)
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("unmarshal %s: %w", name, err)
	}
	return nil
}

// normalizeEnum returns def for an empty value and reports whether a
// non-empty value is one of allowed.
func normalizeEnum[T ~string](value, def T, allowed ...T) (T, bool) {
	if value == "" {
		return def, true
	}
	for _, candidate := range allowed {
		if value == candidate {
			return value, true
		}
	}
	return value, false
}

func clampPercent(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
