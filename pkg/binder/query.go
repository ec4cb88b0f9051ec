package binder

import (
	"fmt"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"
)

// Query creates a binder for URL query parameters. Fields are matched by
// their query tag, or by their lower-cased name when untagged; "-" skips a
// field. Absent parameters leave fields untouched, so pointer fields stay
// nil. Slice fields accept repeated and comma-separated values.
//
//	type ListRequest struct {
//		Path   string  `query:"path"`
//		Limit  int     `query:"limit"`
//		Cursor *string `query:"cursor"`
//	}
func Query() func(r *http.Request, v any) error {
	return func(r *http.Request, v any) error {
		if err := decodeQuery(v, r.URL.Query()); err != nil {
			return fmt.Errorf("%w: %v", ErrFailedToParseQuery, err)
		}
		return nil
	}
}

func decodeQuery(v any, values url.Values) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("target must be a non-nil pointer to struct, got %T", v)
	}
	rv = rv.Elem()
	rt := rv.Type()

	for i := range rt.NumField() {
		sf := rt.Field(i)
		if !sf.IsExported() {
			continue
		}
		name := queryName(sf)
		if name == "" {
			continue
		}
		raw, ok := values[name]
		if !ok || len(raw) == 0 {
			continue
		}
		if err := assign(rv.Field(i), raw); err != nil {
			return fmt.Errorf("field %s: %w", sf.Name, err)
		}
	}
	return nil
}

func queryName(sf reflect.StructField) string {
	tag, ok := sf.Tag.Lookup("query")
	if !ok || tag == "" {
		return strings.ToLower(sf.Name)
	}
	name, _, _ := strings.Cut(tag, ",")
	if name == "-" {
		return ""
	}
	return name
}

func assign(dst reflect.Value, raw []string) error {
	switch dst.Kind() {
	case reflect.Pointer:
		if dst.IsNil() {
			dst.Set(reflect.New(dst.Type().Elem()))
		}
		return assign(dst.Elem(), raw)
	case reflect.Slice:
		var parts []string
		for _, s := range raw {
			for p := range strings.SplitSeq(s, ",") {
				parts = append(parts, strings.TrimSpace(p))
			}
		}
		out := reflect.MakeSlice(dst.Type(), len(parts), len(parts))
		for i, p := range parts {
			if err := parseScalar(out.Index(i), p); err != nil {
				return err
			}
		}
		dst.Set(out)
		return nil
	default:
		return parseScalar(dst, raw[0])
	}
}

func parseScalar(dst reflect.Value, s string) error {
	switch dst.Kind() {
	case reflect.String:
		dst.SetString(s)
	case reflect.Bool:
		b, err := parseBool(s)
		if err != nil {
			return err
		}
		dst.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(s, 10, dst.Type().Bits())
		if err != nil {
			return fmt.Errorf("invalid integer %q", s)
		}
		dst.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(s, 10, dst.Type().Bits())
		if err != nil {
			return fmt.Errorf("invalid unsigned integer %q", s)
		}
		dst.SetUint(n)
	case reflect.Float32, reflect.Float64:
		n, err := strconv.ParseFloat(s, dst.Type().Bits())
		if err != nil {
			return fmt.Errorf("invalid number %q", s)
		}
		dst.SetFloat(n)
	default:
		return fmt.Errorf("unsupported kind %s", dst.Kind())
	}
	return nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "1", "t", "true", "on", "yes":
		return true, nil
	case "0", "f", "false", "off", "no", "":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", s)
}
