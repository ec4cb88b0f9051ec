package binder

import (
	"fmt"
	"net/http"
	"reflect"
	"strings"
)

// Path creates a binder for URL path parameters. Only fields carrying a
// path tag are bound; param extracts the named value from the request,
// typically chi.URLParam.
//
//	type ChannelRequest struct {
//		ChannelID int64 `path:"channelID"`
//	}
//
//	r.Post("/channels/{channelID}", handler.Wrap(h,
//		handler.WithBinders[handler.Context, ChannelRequest](binder.Path(chi.URLParam)),
//	))
func Path(param func(r *http.Request, name string) string) func(r *http.Request, v any) error {
	return func(r *http.Request, v any) error {
		if param == nil {
			return fmt.Errorf("%w: nil parameter extractor", ErrFailedToParsePath)
		}
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
			return fmt.Errorf("%w: target must be a non-nil pointer to struct, got %T", ErrFailedToParsePath, v)
		}
		rv = rv.Elem()
		rt := rv.Type()

		for i := range rt.NumField() {
			sf := rt.Field(i)
			tag, ok := sf.Tag.Lookup("path")
			if !ok || !sf.IsExported() {
				continue
			}
			name, _, _ := strings.Cut(tag, ",")
			if name == "" || name == "-" {
				continue
			}
			raw := param(r, name)
			if raw == "" {
				continue
			}
			if err := assign(rv.Field(i), []string{raw}); err != nil {
				return fmt.Errorf("%w: field %s: %v", ErrFailedToParsePath, sf.Name, err)
			}
		}
		return nil
	}
}
