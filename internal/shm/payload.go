package shm

import (
	"fmt"
	"reflect"
)

// checkPayload rejects payload types that cannot live in shared memory:
// anything holding a Go pointer would dangle in the other process.
func checkPayload(t reflect.Type) error {
	if t.Size() == 0 {
		return fmt.Errorf("payload %s has zero size", t)
	}
	return checkFlat(t, t.String())
}

func checkFlat(t reflect.Type, path string) error {
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return nil
	case reflect.Array:
		return checkFlat(t.Elem(), path+"[]")
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if err := checkFlat(f.Type, path+"."+f.Name); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("payload field %s has kind %s, not allowed in shared memory", path, t.Kind())
	}
}
