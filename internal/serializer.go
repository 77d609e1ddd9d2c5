package internal

import (
	"encoding/json"
	"errors"
)

// ErrNilHolder is returned when Unmarshal is given nowhere to decode into.
var ErrNilHolder = errors.New("unmarshal holder is nil")

// Marshal turns a cached payload into bytes. Raw bytes and strings pass through untouched.
func Marshal(payload any) ([]byte, error) {
	switch v := payload.(type) {
	case []byte:
		return v, nil
	case json.RawMessage:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return json.Marshal(payload)
	}
}

// Unmarshal is the inverse of Marshal. holder must be a pointer.
func Unmarshal(data []byte, holder any) error {
	switch v := holder.(type) {
	case nil:
		return ErrNilHolder
	case *[]byte:
		*v = append((*v)[:0], data...)
		return nil
	case *json.RawMessage:
		*v = append((*v)[:0], data...)
		return nil
	case *string:
		*v = string(data)
		return nil
	default:
		return json.Unmarshal(data, holder)
	}
}
