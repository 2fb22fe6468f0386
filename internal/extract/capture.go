package extract

import (
	"fmt"
	"reflect"
	"strconv"

	"github.com/angeloszaimis/routekit/internal/web"
)

// Path captures every bound path parameter into a struct of type T. Fields are
// matched by their `path:"name"` tag and may be strings, booleans, integers or
// floats. Untagged fields are left untouched.
func Path[T any]() Extractor[T] {
	return func(req *web.Request) (T, error) {
		var out T

		rv := reflect.ValueOf(&out).Elem()
		if rv.Kind() != reflect.Struct {
			return out, fmt.Errorf("extract: Path requires a struct type, got %s", rv.Type())
		}

		rt := rv.Type()
		for i := 0; i < rt.NumField(); i++ {
			field := rt.Field(i)
			name := field.Tag.Get("path")
			if name == "" || !field.IsExported() {
				continue
			}

			raw, ok := req.Param(name)
			if !ok {
				return out, missing(SourcePath, name, field.Type.Kind().String())
			}
			if err := setField(rv.Field(i), raw); err != nil {
				return out, mismatch(SourcePath, name, field.Type.Kind().String(), err)
			}
		}

		return out, nil
	}
}

func setField(v reflect.Value, raw string) error {
	switch v.Kind() {
	case reflect.String:
		v.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		v.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, v.Type().Bits())
		if err != nil {
			return err
		}
		v.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(raw, 10, v.Type().Bits())
		if err != nil {
			return err
		}
		v.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(raw, v.Type().Bits())
		if err != nil {
			return err
		}
		v.SetFloat(f)
	default:
		return fmt.Errorf("unsupported field kind %s", v.Kind())
	}
	return nil
}
