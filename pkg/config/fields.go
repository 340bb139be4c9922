package config

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// durationType is special-cased: it is an int64 kind but parsed with
// time.ParseDuration, and it is never descended into.
var durationType = reflect.TypeOf(time.Duration(0))

// field is a settable leaf of a config struct.
type field struct {
	value reflect.Value
	tag   reflect.StructTag
	path  string // dotted Go field path, for messages
	env   string // full variable name, empty when untagged
}

// walk calls fn for every settable non-struct field of rv, depth first.
// Nested structs contribute their env tag to the variable names of their
// fields.
//
// For example, with envPrefix "FIREBASE_JWT" the field Redis.Host tagged
// `env:"HOST"` inside a struct field tagged `env:"REDIS"` is reported with
// env "FIREBASE_JWT_REDIS_HOST". Unexported fields are skipped. A nested
// struct without an env tag keeps its parent's prefix.
func walk(rv reflect.Value, path, envPrefix string, fn func(field) error) error {
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		fv := rv.Field(i)
		if !fv.CanSet() {
			continue
		}
		p := sf.Name
		if path != "" {
			p = path + "." + sf.Name
		}
		envTag := sf.Tag.Get("env")

		if fv.Kind() == reflect.Struct && sf.Type != durationType {
			prefix := envPrefix
			if envTag != "" {
				prefix = joinKey(envPrefix, envTag)
			}
			if err := walk(fv, p, prefix, fn); err != nil {
				return err
			}
			continue
		}

		f := field{value: fv, tag: sf.Tag, path: p}
		if envTag != "" {
			f.env = joinKey(envPrefix, envTag)
		}
		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

// joinKey joins two parts of a variable name with an underscore.
func joinKey(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "_" + name
}

// setString parses s into v. Supported kinds are strings (including named
// types such as credentials.Secret), bools, signed and unsigned integers,
// floats, time.Duration and comma separated []string.
func setString(v reflect.Value, s string) error {
	if v.Type() == durationType {
		d, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("cannot parse duration %q: %w", s, err)
		}
		v.SetInt(int64(d))
		return nil
	}

	switch v.Kind() {
	case reflect.String:
		v.SetString(s)
	case reflect.Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return fmt.Errorf("cannot parse bool %q: %w", s, err)
		}
		v.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(s, 10, v.Type().Bits())
		if err != nil {
			return fmt.Errorf("cannot parse integer %q: %w", s, err)
		}
		v.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(s, 10, v.Type().Bits())
		if err != nil {
			return fmt.Errorf("cannot parse unsigned integer %q: %w", s, err)
		}
		v.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(s, v.Type().Bits())
		if err != nil {
			return fmt.Errorf("cannot parse float %q: %w", s, err)
		}
		v.SetFloat(f)
	case reflect.Slice:
		if v.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice element type %s", v.Type().Elem())
		}
		// Comma separated, surrounding whitespace trimmed per element.
		parts := strings.Split(s, ",")
		out := reflect.MakeSlice(v.Type(), len(parts), len(parts))
		for i, p := range parts {
			out.Index(i).SetString(strings.TrimSpace(p))
		}
		v.Set(out)
	default:
		return fmt.Errorf("unsupported field type %s", v.Type())
	}
	return nil
}
