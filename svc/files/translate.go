package files

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

var logicalPathRe = regexp.MustCompile(`^/(f|cf|wf)/([0-9]+)((?:/[^/]+)*)$`)

const (
	sharedChannelsName = "Shared Channels"
	personalTeamName   = "My Files"
	wikiDisplayName    = "wiki"
)

// Translator maps logical paths onto physical team-rooted paths.
type Translator struct {
	repo Repository
}

func NewTranslator(repo Repository) *Translator {
	return &Translator{repo: repo}
}

// Translate resolves logical. When ctx carries a TranslationCache the result
// is memoised under the literal input string.
func (t *Translator) Translate(ctx context.Context, logical string) (*TranslatedPath, error) {
	cache, cached := TranslationCacheFromContext(ctx)
	if cached {
		if tp, ok := cache.get(logical); ok {
			return tp, nil
		}
	}

	tp, err := t.translate(ctx, logical)
	if err != nil {
		return nil, err
	}
	if cached {
		cache.put(logical, tp)
	}
	return tp, nil
}

func (t *Translator) translate(ctx context.Context, logical string) (*TranslatedPath, error) {
	m := logicalPathRe.FindStringSubmatch(logical)
	if m == nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPathFormat, logical)
	}
	prefix, sub := m[1], m[3]
	for _, seg := range strings.Split(sub, "/") {
		if seg == "." || seg == ".." {
			return nil, fmt.Errorf("%w: %q", ErrInvalidPathFormat, logical)
		}
	}
	id, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPathFormat, logical)
	}

	if prefix == "f" {
		team, err := t.team(ctx, id)
		if err != nil {
			return nil, err
		}
		root := "/" + team.Name + " files"
		if team.Personal {
			root = "/" + personalTeamName
		}
		return &TranslatedPath{
			PhysicalPath: logical,
			DisplayPath:  root + sub,
			Team:         team,
			SubPath:      sub,
		}, nil
	}

	want, typ := ChannelPathFile, PathTypeFiles
	if prefix == "wf" {
		want, typ = ChannelPathWiki, PathTypeWiki
	}
	cp, err := t.repo.GetChannelPath(ctx, id)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil, errors.Join(ErrChannelPathNotFound, err)
		}
		return nil, fmt.Errorf("files: load channel path %d: %w", id, err)
	}
	if cp.Type != want {
		return nil, fmt.Errorf("%w: channel path %d is %s", ErrInvalidPathFormat, id, cp.Type)
	}
	channel, err := t.repo.GetChannel(ctx, cp.ChannelID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil, errors.Join(ErrChannelNotFound, err)
		}
		return nil, fmt.Errorf("files: load channel %d: %w", cp.ChannelID, err)
	}
	team, err := t.team(ctx, channel.TeamID)
	if err != nil {
		return nil, err
	}

	display := "/" + sharedChannelsName + "/" + channel.Name
	if typ == PathTypeWiki {
		display += "/" + wikiDisplayName
	}
	return &TranslatedPath{
		PhysicalPath:  cp.Path + sub,
		DisplayPath:   display + sub,
		Team:          team,
		RelativePath:  logical,
		SubPath:       sub,
		Channel:       channel,
		ChannelPathID: cp.ID,
		Type:          typ,
	}, nil
}

func (t *Translator) team(ctx context.Context, id int64) (*Team, error) {
	team, err := t.repo.GetTeam(ctx, id)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil, errors.Join(ErrTeamNotFound, err)
		}
		return nil, fmt.Errorf("files: load team %d: %w", id, err)
	}
	return team, nil
}

// TranslationCache memoises translations for the lifetime of one request.
type TranslationCache struct {
	mu    sync.Mutex
	items map[string]*TranslatedPath
}

type translationCacheKey struct{}

// WithTranslationCache returns a context carrying a fresh TranslationCache.
func WithTranslationCache(ctx context.Context) context.Context {
	return context.WithValue(ctx, translationCacheKey{}, &TranslationCache{
		items: make(map[string]*TranslatedPath),
	})
}

func TranslationCacheFromContext(ctx context.Context) (*TranslationCache, bool) {
	c, ok := ctx.Value(translationCacheKey{}).(*TranslationCache)
	return c, ok && c != nil
}

// Invalidate drops every memoised translation.
func (c *TranslationCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.items)
}

// Len returns the number of memoised translations.
func (c *TranslationCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *TranslationCache) get(key string) (*TranslatedPath, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	tp, ok := c.items[key]
	return tp, ok
}

func (c *TranslationCache) put(key string, tp *TranslatedPath) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = tp
}

func invalidateTranslations(ctx context.Context) {
	if c, ok := TranslationCacheFromContext(ctx); ok {
		c.Invalidate()
	}
}
