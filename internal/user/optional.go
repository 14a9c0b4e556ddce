// AngelaMos | 2026
// optional.go

package user

import (
	"bytes"

	"github.com/goccy/go-json"
)

// OptionalString records whether a JSON field was present and whether it
// was null.
type OptionalString struct {
	Present bool
	Value   *string
}

func (o *OptionalString) UnmarshalJSON(data []byte) error {
	o.Present = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Value = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	o.Value = &s
	return nil
}

func (o OptionalString) field() Field[string] {
	switch {
	case !o.Present:
		return Field[string]{}
	case o.Value == nil || *o.Value == "":
		return Null[string]()
	default:
		return Set(*o.Value)
	}
}
