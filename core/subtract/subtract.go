// Package subtract computes the difference between two counter snapshots.
package subtract

import (
	"reflect"

	"github.com/pkg/math"
)

// Sub returns curr minus prev as a new value.
// A type with a `func (T) Sub(T) T` method is subtracted with that method; other structs are
// subtracted field by field as in SubFields.
func Sub[T any](curr, prev T) (diff T) {
	return subV(reflect.ValueOf(curr), reflect.ValueOf(prev)).Interface().(T)
}

func subV(currV, prevV reflect.Value) (diffV reflect.Value) {
	typ := currV.Type()
	if method, ok := typ.MethodByName("Sub"); ok &&
		method.Type.NumIn() == 2 && method.Type.NumOut() == 1 && method.Type.In(1) == typ && method.Type.Out(0) == typ {
		return method.Func.Call([]reflect.Value{currV, prevV})[0]
	}

	diffV = reflect.New(typ).Elem()
	subFieldsV(currV, prevV, diffV)
	return diffV
}

// SubFields stores curr minus prev into *diffPtr.
//
// Integer fields are subtracted. Struct, array, and pointer fields are walked recursively.
// Slices are walked up to the shorter length. Other fields, unexported fields, and fields
// tagged `subtract:"-"` are left zero.
func SubFields[T any](curr, prev T, diffPtr *T) {
	subFieldsV(reflect.ValueOf(curr), reflect.ValueOf(prev), reflect.ValueOf(diffPtr).Elem())
}

func subFieldsV(currV, prevV, diffV reflect.Value) {
	for _, field := range reflect.VisibleFields(currV.Type()) {
		if !field.IsExported() || field.Tag.Get("subtract") == "-" {
			continue
		}
		subValue(currV.FieldByIndex(field.Index), prevV.FieldByIndex(field.Index), diffV.FieldByIndex(field.Index))
	}
}

func subValue(currV, prevV, diffV reflect.Value) {
	switch currV.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		diffV.SetUint(currV.Uint() - prevV.Uint())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		diffV.SetInt(currV.Int() - prevV.Int())
	case reflect.Struct:
		diffV.Set(subV(currV, prevV))
	case reflect.Slice:
		length := int(math.MinInt64(int64(currV.Len()), int64(prevV.Len())))
		diffV.Set(reflect.MakeSlice(currV.Type(), length, length))
		fallthrough
	case reflect.Array:
		for i, length := 0, diffV.Len(); i < length; i++ {
			subValue(currV.Index(i), prevV.Index(i), diffV.Index(i))
		}
	case reflect.Ptr:
		if !currV.IsNil() && !prevV.IsNil() {
			diffV.Set(reflect.New(currV.Type().Elem()))
			subValue(currV.Elem(), prevV.Elem(), diffV.Elem())
		}
	}
}
