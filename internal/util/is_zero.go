package util

import "reflect"

func IsZero(i interface{}) bool {
	return IsZeroVal(reflect.ValueOf(i))
}

// IsZeroVal works for not comparable types too, like structs with slice fields.
func IsZeroVal(v reflect.Value) bool {
	return !v.IsValid() || v.IsZero()
}
