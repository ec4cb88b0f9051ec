package handler_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/teamfiles/handler"
	"github.com/dmitrymomot/teamfiles/pkg/binder"
	"github.com/dmitrymomot/teamfiles/pkg/requestid"
)

type pathRequest struct {
	Path string `query:"path" json:"path"`
	To   string `query:"-" json:"to"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) handler.JSONResponse {
	t.Helper()
	var body handler.JSONResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestWrap_Binders(t *testing.T) {
	t.Parallel()

	echo := func(ctx handler.Context, req pathRequest) handler.Response {
		return handler.JSON(req)
	}
	h := handler.Wrap(echo,
		handler.WithBinders[handler.Context, pathRequest](binder.Query(), binder.JSON()),
	)

	t.Run("query and json", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodPost, "/?path=%2Fcf%2F1%2Fa", strings.NewReader(`{"to":"/cf/1/b"}`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		h(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		body := decode(t, rec)
		data := body.Data.(map[string]any)
		assert.Equal(t, "/cf/1/a", data["path"])
		assert.Equal(t, "/cf/1/b", data["to"])
	})

	t.Run("missing body skips json binder", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodGet, "/?path=x", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("bind failure is a bad request", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"nope":1}`))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		h(rec, req)

		require.Equal(t, http.StatusBadRequest, rec.Code)
		body := decode(t, rec)
		require.NotNil(t, body.Error)
		assert.Equal(t, "bad_request", body.Error.Code)
	})
}

func TestWrap_NilResponseAndDecorators(t *testing.T) {
	t.Parallel()

	var order []string
	mark := func(name string) handler.Decorator[handler.Context, pathRequest] {
		return func(next handler.HandlerFunc[handler.Context, pathRequest]) handler.HandlerFunc[handler.Context, pathRequest] {
			return func(ctx handler.Context, req pathRequest) handler.Response {
				order = append(order, name)
				return next(ctx, req)
			}
		}
	}
	var got error
	h := handler.Wrap(func(handler.Context, pathRequest) handler.Response { return nil },
		handler.WithDecorators(mark("outer"), mark("inner")),
		handler.WithErrorHandler[handler.Context, pathRequest](func(ctx handler.Context, err error) {
			got = err
			ctx.ResponseWriter().WriteHeader(http.StatusTeapot)
		}),
	)
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"outer", "inner"}, order)
	assert.ErrorIs(t, got, handler.ErrNilResponse)
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestJSONError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		err     error
		status  int
		code    string
		message string
	}{
		{"http error", errors.Join(handler.ErrNotFound, errors.New("no such file")), http.StatusNotFound, "not_found", "not_found\nno such file"},
		{"custom", handler.NewHTTPError(http.StatusConflict, "exists"), http.StatusConflict, "exists", "exists"},
		{"plain error hides details", errors.New("disk on fire"), http.StatusInternalServerError, "internal_server_error", "Internal Server Error"},
		{"service unavailable", handler.ErrServiceUnavailable, http.StatusServiceUnavailable, "service_unavailable", "Service Unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			require.NoError(t, handler.JSONError(tt.err).Render(rec, httptest.NewRequest(http.MethodGet, "/", nil)))

			assert.Equal(t, tt.status, rec.Code)
			body := decode(t, rec)
			require.NotNil(t, body.Error)
			assert.Equal(t, tt.code, body.Error.Code)
			assert.Equal(t, tt.message, body.Error.Message)
		})
	}
}

func TestStreamResponses(t *testing.T) {
	t.Parallel()

	t.Run("stream", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		resp := handler.Stream(io.NopCloser(strings.NewReader("hello")), "text/plain",
			handler.WithAttachment("a b.txt"), handler.WithContentLength(5))
		require.NoError(t, resp.Render(rec, httptest.NewRequest(http.MethodGet, "/", nil)))

		assert.Equal(t, "hello", rec.Body.String())
		assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
		assert.Equal(t, `attachment; filename="a b.txt"`, rec.Header().Get("Content-Disposition"))
		assert.Equal(t, "5", rec.Header().Get("Content-Length"))
		assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	})

	t.Run("writer", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		resp := handler.Writer("", func(w io.Writer) error {
			_, err := w.Write([]byte("zip"))
			return err
		}, handler.WithInline("x.zip"))
		require.NoError(t, resp.Render(rec, httptest.NewRequest(http.MethodGet, "/", nil)))

		assert.Equal(t, "zip", rec.Body.String())
		assert.Equal(t, "application/octet-stream", rec.Header().Get("Content-Type"))
		assert.Equal(t, `inline; filename=x.zip`, rec.Header().Get("Content-Disposition"))
	})

	t.Run("redirect", func(t *testing.T) {
		t.Parallel()
		rec := httptest.NewRecorder()
		require.NoError(t, handler.Redirect("https://cdn.example/x").Render(rec, httptest.NewRequest(http.MethodGet, "/", nil)))
		assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
		assert.Equal(t, "https://cdn.example/x", rec.Header().Get("Location"))
	})
}

func TestNewErrorHandler(t *testing.T) {
	t.Parallel()

	var logs bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&logs, nil))
	errHandler := handler.NewErrorHandler(log)

	t.Run("renders and logs", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodDelete, "/files", nil)
		req = req.WithContext(requestid.WithContext(req.Context(), "req-1"))
		errHandler(handler.NewContext(rec, req), handler.ErrForbidden)

		assert.Equal(t, http.StatusForbidden, rec.Code)
		out := logs.String()
		assert.Contains(t, out, `"level":"WARN"`)
		assert.Contains(t, out, `"request_id":"req-1"`)
		assert.Contains(t, out, `"status_code":403`)
		assert.Contains(t, out, `"method":"DELETE"`)
	})

	t.Run("started response is only logged", func(t *testing.T) {
		h := handler.Wrap(func(handler.Context, pathRequest) handler.Response {
			return handler.Writer("text/plain", func(w io.Writer) error {
				_, _ = w.Write([]byte("partial"))
				return errors.New("broken pipe")
			})
		}, handler.WithErrorHandler[handler.Context, pathRequest](errHandler))

		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodGet, "/zip", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "partial", rec.Body.String())
		assert.Contains(t, logs.String(), "broken pipe")
	})
}
