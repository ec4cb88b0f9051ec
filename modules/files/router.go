package files

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/teamfiles/handler"
	"github.com/dmitrymomot/teamfiles/pkg/binder"
	"github.com/dmitrymomot/teamfiles/pkg/storage"
	"github.com/dmitrymomot/teamfiles/svc/files"
)

// DefaultMaxChunkSize caps the body of a single upload request.
const DefaultMaxChunkSize int64 = 64 << 20

type RouterOptions struct {
	// UserID identifies the caller. Requests it rejects get 401.
	UserID func(*http.Request) (int64, bool)
	// StockURL maps a stock thumbnail to the URL it is served from. When nil
	// the stock image descriptor is returned as JSON.
	StockURL func(files.StockImage) string
	// Redirect asks the storage backend for direct download URLs.
	Redirect     bool
	MaxChunkSize int64
	Logger       *slog.Logger
}

type routes struct {
	svc      *files.Service
	opts     RouterOptions
	errorsFn handler.ErrorHandler[handler.Context]
}

// Router exposes svc over HTTP.
func Router(svc *files.Service, opts RouterOptions) chi.Router {
	if opts.MaxChunkSize <= 0 {
		opts.MaxChunkSize = DefaultMaxChunkSize
	}
	rt := &routes{svc: svc, opts: opts, errorsFn: handler.NewErrorHandler(opts.Logger)}

	r := chi.NewRouter()
	r.Use(rt.identify)

	r.Get("/info", wrap(rt, rt.info, binder.Query()))
	r.Get("/list", wrap(rt, rt.list, binder.Query()))
	r.Post("/upload", wrap(rt, rt.upload, binder.Query()))
	r.Get("/download", wrap(rt, rt.download, binder.Query()))
	r.Post("/copy", wrap(rt, rt.copy, binder.JSON()))
	r.Post("/move", wrap(rt, rt.move, binder.JSON()))
	r.Post("/folders", wrap(rt, rt.createFolder, binder.JSON()))
	r.Delete("/", wrap(rt, rt.delete, binder.Query()))
	r.Get("/versions", wrap(rt, rt.versions, binder.Query()))
	r.Get("/thumb", wrap(rt, rt.thumb, binder.Query()))
	r.Get("/zip", wrap(rt, rt.zip, binder.Query()))

	return r
}

func wrap[R any](rt *routes, h handler.HandlerFunc[handler.Context, R], binders ...handler.Bind) http.HandlerFunc {
	return handler.Wrap(h,
		handler.WithBinders[handler.Context, R](binders...),
		handler.WithErrorHandler[handler.Context, R](rt.errorsFn),
	)
}

type userKey struct{}

// identify resolves the caller and installs the per-request translation
// cache.
func (rt *routes) identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var (
			id int64
			ok bool
		)
		if rt.opts.UserID != nil {
			id, ok = rt.opts.UserID(r)
		}
		if !ok {
			rt.errorsFn(handler.NewContext(w, r), ErrNoIdentity)
			return
		}
		ctx := context.WithValue(r.Context(), userKey{}, id)
		ctx = files.WithTranslationCache(ctx)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userID(ctx context.Context) int64 {
	id, _ := ctx.Value(userKey{}).(int64)
	return id
}

func (rt *routes) info(ctx handler.Context, q pathQuery) handler.Response {
	obj, err := rt.svc.Info(ctx, q.Path, userID(ctx))
	if err != nil {
		return fail(err)
	}
	return handler.JSON(toObject(*obj))
}

func (rt *routes) list(ctx handler.Context, q listQuery) handler.Response {
	objs, err := rt.svc.List(ctx, files.ListRequest{
		Path:          q.Path,
		UserID:        userID(ctx),
		Query:         q.Query,
		SortBy:        storage.SortKey(q.Sort),
		Descending:    q.Desc,
		Cursor:        q.Cursor,
		LimitBefore:   q.Before,
		LimitAfter:    q.After,
		InDepth:       q.InDepth,
		IgnoreFolders: q.IgnoreFolders,
		Type:          q.Type,
	})
	if err != nil {
		return fail(err)
	}
	return handler.JSON(toObjects(objs), handler.WithJSONMeta(map[string]any{"count": len(objs)}))
}

func (rt *routes) upload(ctx handler.Context, q uploadQuery) handler.Response {
	final := q.Final == nil || *q.Final
	body := http.MaxBytesReader(ctx.ResponseWriter(), ctx.Request().Body, rt.opts.MaxChunkSize)
	defer body.Close()

	res, err := rt.svc.Upload(ctx, files.UploadRequest{
		ParentPath: q.Path,
		Name:       q.Name,
		Body:       body,
		Offset:     q.Offset,
		Final:      final,
		Session:    q.Session,
		UserID:     userID(ctx),
	})
	if err != nil {
		return fail(err)
	}

	out := UploadResponse{Complete: res.Complete, Received: res.Received}
	if res.Object != nil {
		o := toObject(*res.Object)
		out.Object = &o
	}
	status := http.StatusOK
	if res.Complete && res.IsNew {
		status = http.StatusCreated
	}
	return handler.JSON(out, handler.WithJSONStatus(status))
}

func (rt *routes) download(ctx handler.Context, q downloadQuery) handler.Response {
	mode := storage.DownloadStream
	if rt.opts.Redirect {
		mode = storage.DownloadRedirect
	}
	dl, err := rt.svc.Download(ctx, q.Path, q.Version, userID(ctx), mode)
	if err != nil {
		return fail(err)
	}
	if dl.URL != "" {
		return handler.Redirect(dl.URL)
	}

	disposition := handler.WithAttachment(dl.Entry.Name)
	if q.Inline {
		disposition = handler.WithInline(dl.Entry.Name)
	}
	return handler.Stream(dl.Body, dl.Entry.MIMEType, disposition, handler.WithContentLength(dl.Entry.Size))
}

func (rt *routes) copy(ctx handler.Context, b transferBody) handler.Response {
	return rt.transfer(ctx, b, true)
}

func (rt *routes) move(ctx handler.Context, b transferBody) handler.Response {
	return rt.transfer(ctx, b, false)
}

func (rt *routes) transfer(ctx handler.Context, b transferBody, isCopy bool) handler.Response {
	obj, err := rt.svc.CopyOrMove(ctx, b.From, b.To, userID(ctx), isCopy)
	if err != nil {
		return fail(err)
	}
	return handler.JSON(toObject(*obj))
}

func (rt *routes) createFolder(ctx handler.Context, b folderBody) handler.Response {
	obj, err := rt.svc.CreateFolder(ctx, b.Parent, b.Name, userID(ctx))
	if err != nil {
		return fail(err)
	}
	return handler.JSON(toObject(*obj), handler.WithJSONStatus(http.StatusCreated))
}

func (rt *routes) delete(ctx handler.Context, q pathQuery) handler.Response {
	if err := rt.svc.Delete(ctx, q.Path, userID(ctx)); err != nil {
		return fail(err)
	}
	return handler.Empty()
}

func (rt *routes) versions(ctx handler.Context, q pathQuery) handler.Response {
	objs, err := rt.svc.Versions(ctx, q.Path, userID(ctx))
	if err != nil {
		return fail(err)
	}
	return handler.JSON(toObjects(objs))
}

func (rt *routes) thumb(ctx handler.Context, q thumbQuery) handler.Response {
	if !rt.svc.ThumbSizeAllowed(q.Width, q.Height) {
		return fail(ErrBadSize)
	}
	th, err := rt.svc.Thumb(ctx, files.ThumbRequest{
		Path:    q.Path,
		Width:   q.Width,
		Height:  q.Height,
		UserID:  userID(ctx),
		Session: q.Session,
	})
	if err != nil {
		return fail(err)
	}
	if th.Stock != nil {
		if rt.opts.StockURL != nil {
			return handler.Redirect(rt.opts.StockURL(*th.Stock))
		}
		return handler.JSON(StockResponse{Category: th.Stock.Category, Name: th.Stock.Name})
	}
	return handler.Stream(io.NopCloser(bytes.NewReader(th.Content)), th.MIMEType,
		handler.WithContentLength(int64(len(th.Content))))
}

func (rt *routes) zip(ctx handler.Context, q pathQuery) handler.Response {
	uid := userID(ctx)
	// Headers go out before the archive is written, so failures that would
	// change the status must surface here.
	obj, err := rt.svc.Info(ctx, q.Path, uid)
	if err != nil {
		return fail(err)
	}
	name := strings.TrimSuffix(obj.Name, path.Ext(obj.Name))
	if name == "" {
		name = "files"
	}
	return handler.Writer("application/zip", func(w io.Writer) error {
		return rt.svc.Zip(ctx, q.Path, uid, w)
	}, handler.WithAttachment(name+".zip"))
}
