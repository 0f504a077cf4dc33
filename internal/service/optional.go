package service

import "encoding/json"

// Optional is a JSON patch field. Set is false when the key was absent;
// Set with a nil Value means an explicit null, which clears nullable fields.
type Optional[T any] struct {
	Set   bool
	Value *T
}

// Some builds a set Optional.
func Some[T any](v T) Optional[T] {
	return Optional[T]{Set: true, Value: &v}
}

// Null builds an explicit null.
func Null[T any]() Optional[T] {
	return Optional[T]{Set: true}
}

func (o *Optional[T]) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		o.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

func (o Optional[T]) MarshalJSON() ([]byte, error) {
	if o.Value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*o.Value)
}

// IsZero lets encoders with omitzero skip unset fields.
func (o Optional[T]) IsZero() bool {
	return !o.Set
}
