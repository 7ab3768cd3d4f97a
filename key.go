package assembly

import (
	"reflect"
	"strconv"
)

// Key identifies a service: a Go type plus an optional qualifier.
// Keys are comparable and used as map keys throughout the engine.
type Key struct {
	Type      reflect.Type
	Qualifier string
}

// KeyOf returns the unqualified key for T.
//
//	assembly.KeyOf[*Db]()
//	assembly.KeyOf[Logger]() // interface types work too
func KeyOf[T any]() Key {
	return Key{Type: reflect.TypeOf((*T)(nil)).Elem()}
}

// NamedKey returns the key for T qualified by qualifier.
func NamedKey[T any](qualifier string) Key {
	return Key{Type: reflect.TypeOf((*T)(nil)).Elem(), Qualifier: qualifier}
}

// TypeKey returns the unqualified key for the dynamic type of v.
func TypeKey(v any) Key {
	return Key{Type: reflect.TypeOf(v)}
}

// Named returns a copy of k with the given qualifier.
func (k Key) Named(qualifier string) Key {
	k.Qualifier = qualifier
	return k
}

// IsZero reports whether k carries no type.
func (k Key) IsZero() bool { return k.Type == nil }

// String renders the key as its type, with the qualifier quoted in brackets.
func (k Key) String() string {
	name := "<nil>"
	if k.Type != nil {
		name = k.Type.String()
	}
	if k.Qualifier == "" {
		return name
	}
	return name + "[" + strconv.Quote(k.Qualifier) + "]"
}
