package files

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/teamfiles/handler"
	"github.com/dmitrymomot/teamfiles/pkg/binder"
	"github.com/dmitrymomot/teamfiles/svc/files"
)

// HooksTokenHeader carries the shared secret of the lifecycle endpoints.
const HooksTokenHeader = "X-Hooks-Token"

// ErrBadHooksToken rejects lifecycle calls without the shared secret.
var ErrBadHooksToken = handler.NewHTTPError(http.StatusUnauthorized, "invalid_hooks_token")

type HooksOptions struct {
	// Token must match HooksTokenHeader. An empty token rejects every call.
	Token  string
	Logger *slog.Logger
}

type hooks struct {
	svc      *files.Service
	repo     files.Repository
	token    []byte
	errorsFn handler.ErrorHandler[handler.Context]
}

// HooksRouter exposes the team and channel lifecycle hooks to the platform
// that owns teams and channels. Teams and channels are read from repo, so
// the platform calls a hook after committing its own change.
func HooksRouter(svc *files.Service, repo files.Repository, opts HooksOptions) chi.Router {
	h := &hooks{
		svc:      svc,
		repo:     repo,
		token:    []byte(opts.Token),
		errorsFn: handler.NewErrorHandler(opts.Logger),
	}

	r := chi.NewRouter()
	r.Use(h.authenticate)

	r.Put("/teams/{teamID}", hook(h, h.newTeam, binder.Path(chi.URLParam), binder.JSON()))
	r.Delete("/teams/{teamID}", hook(h, h.deleteTeam, binder.Path(chi.URLParam)))
	r.Post("/channels/{channelID}", hook(h, h.newChannel, binder.Path(chi.URLParam), binder.JSON()))
	r.Post("/channels/{channelID}/rename", hook(h, h.renameChannel, binder.Path(chi.URLParam)))
	r.Post("/channels/{channelID}/copy", hook(h, h.copyChannel, binder.Path(chi.URLParam), binder.JSON()))
	r.Delete("/channels/{channelID}", hook(h, h.deleteChannel, binder.Path(chi.URLParam)))

	return r
}

func hook[R any](h *hooks, fn handler.HandlerFunc[handler.Context, R], binders ...handler.Bind) http.HandlerFunc {
	return handler.Wrap(fn,
		handler.WithBinders[handler.Context, R](binders...),
		handler.WithErrorHandler[handler.Context, R](h.errorsFn),
	)
}

func (h *hooks) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := []byte(r.Header.Get(HooksTokenHeader))
		if len(h.token) == 0 || subtle.ConstantTimeCompare(got, h.token) != 1 {
			h.errorsFn(handler.NewContext(w, r), ErrBadHooksToken)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *hooks) team(ctx handler.Context, id int64) (*files.Team, error) {
	team, err := h.repo.GetTeam(ctx, id)
	if errors.Is(err, files.ErrRecordNotFound) {
		return nil, errors.Join(files.ErrTeamNotFound, err)
	}
	return team, err
}

func (h *hooks) channel(ctx handler.Context, id int64) (*files.Channel, error) {
	ch, err := h.repo.GetChannel(ctx, id)
	if errors.Is(err, files.ErrRecordNotFound) {
		return nil, errors.Join(files.ErrChannelNotFound, err)
	}
	return ch, err
}

func (h *hooks) newTeam(ctx handler.Context, req teamHookRequest) handler.Response {
	team, err := h.team(ctx, req.TeamID)
	if err != nil {
		return fail(err)
	}
	if err := h.svc.OnNewTeam(ctx, team, req.UserID); err != nil {
		return fail(err)
	}
	return handler.Empty()
}

// deleteTeam runs after the team row is gone, so only the id is used.
func (h *hooks) deleteTeam(ctx handler.Context, req teamHookRequest) handler.Response {
	if err := h.svc.OnDeleteTeam(ctx, &files.Team{ID: req.TeamID}); err != nil {
		return fail(err)
	}
	return handler.Empty()
}

func (h *hooks) newChannel(ctx handler.Context, req channelHookRequest) handler.Response {
	ch, err := h.channel(ctx, req.ChannelID)
	if err != nil {
		return fail(err)
	}
	paths, err := h.svc.OnNewChannel(ctx, ch, req.UserID)
	if err != nil {
		return fail(err)
	}
	return handler.JSON(toChannelPaths(paths), handler.WithJSONStatus(http.StatusCreated))
}

func (h *hooks) renameChannel(ctx handler.Context, req channelHookRequest) handler.Response {
	ch, err := h.channel(ctx, req.ChannelID)
	if err != nil {
		return fail(err)
	}
	renamed, err := h.svc.OnRenameChannel(ctx, ch)
	if err != nil {
		return fail(err)
	}
	return handler.JSON(RenameResponse{Renamed: renamed})
}

func (h *hooks) copyChannel(ctx handler.Context, req channelHookRequest) handler.Response {
	if req.SourceID == 0 {
		return fail(errors.Join(files.ErrInvalidArgument, errors.New("source_id is required")))
	}
	target, err := h.channel(ctx, req.ChannelID)
	if err != nil {
		return fail(err)
	}
	source, err := h.channel(ctx, req.SourceID)
	if err != nil {
		return fail(err)
	}
	if err := h.svc.OnCopyChannel(ctx, source, target, req.UserID); err != nil {
		return fail(err)
	}
	return handler.Empty()
}

// deleteChannel runs after the channel row is gone, so only the id is used.
func (h *hooks) deleteChannel(ctx handler.Context, req channelHookRequest) handler.Response {
	if err := h.svc.OnDeleteChannel(ctx, &files.Channel{ID: req.ChannelID}); err != nil {
		return fail(err)
	}
	return handler.Empty()
}
