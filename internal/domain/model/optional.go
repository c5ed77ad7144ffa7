package model

// Optional holds a value that is either unset or explicitly set.
// The zero value is unset.
type Optional[T any] struct {
	value T
	set   bool
}

// Some returns an Optional set to v.
func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, set: true}
}

// Get returns the value and whether it was set.
func (o Optional[T]) Get() (T, bool) {
	return o.value, o.set
}

// IsSet reports whether a value was supplied.
func (o Optional[T]) IsSet() bool {
	return o.set
}

// OrElse returns the value when set, def otherwise.
func (o Optional[T]) OrElse(def T) T {
	if o.set {
		return o.value
	}
	return def
}
