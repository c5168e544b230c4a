package marshaler

import (
	"bytes"

	"github.com/pkg/errors"
)

// Type defines the marshaler type.
type Type int

// Marshaler types.
const (
	Protobuf Type = iota
	JSON
)

// ParseType returns the marshaler type for the given config value.
func ParseType(s string) (Type, error) {
	switch s {
	case "", "protobuf":
		return Protobuf, nil
	case "json":
		return JSON, nil
	default:
		return Protobuf, errors.Errorf("unknown marshaler: %s", s)
	}
}

func (t Type) String() string {
	switch t {
	case JSON:
		return "json"
	default:
		return "protobuf"
	}
}

func detect(b []byte) Type {
	if bytes.HasPrefix(bytes.TrimSpace(b), []byte("{")) {
		return JSON
	}
	return Protobuf
}
