package api

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Vanequal/ideafeed/internal/backend"
	"github.com/Vanequal/ideafeed/internal/cache"
	"github.com/Vanequal/ideafeed/internal/feed"
	"github.com/Vanequal/ideafeed/internal/store"
	"github.com/Vanequal/ideafeed/internal/view"
	"github.com/Vanequal/ideafeed/pkg/config"
)

const (
	maxViewers = 1024
	viewerIdle = 30 * time.Minute
)

// viewer is the state kept for one bearer token. Reaction state differs per
// user, so every viewer owns its store.
type viewer struct {
	svc      *feed.Service
	buttons  *view.ReactionButtons
	lastSeen time.Time

	mu sync.Mutex
	id string
}

// identity names the user the backend says owns the token. The lookup runs
// once per viewer; a failed one is retried on the next call.
func (vw *viewer) identity(ctx context.Context) (string, error) {
	vw.mu.Lock()
	defer vw.mu.Unlock()
	if vw.id != "" {
		return vw.id, nil
	}
	u, err := vw.svc.FetchMe(ctx)
	if err != nil {
		return "", err
	}
	if u.ID <= 0 {
		return "", errors.New("backend returned a user without id")
	}
	vw.id = "user:" + strconv.FormatInt(u.ID, 10)
	return vw.id, nil
}

// viewers hands out one feed service per token
type viewers struct {
	cfg       *config.APIConfig
	snapshots *cache.Cache
	now       func() time.Time
	logger    *zap.Logger

	mu      sync.Mutex
	byToken map[string]*viewer
}

func newViewers(cfg *config.APIConfig, snapshots *cache.Cache, logger *zap.Logger) *viewers {
	return &viewers{
		cfg:       cfg,
		snapshots: snapshots,
		now:       time.Now,
		logger:    logger,
		byToken:   make(map[string]*viewer),
	}
}

// tokenScope keys per-token state such as feed snapshots. Claims inside the
// token are never trusted here since nothing verifies its signature.
func tokenScope(token string) string {
	return "token:" + cache.HashKey(token)
}

// get returns the viewer of token, creating it on first use
func (v *viewers) get(token string) (*viewer, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.now()
	if vw, ok := v.byToken[token]; ok {
		vw.lastSeen = now
		return vw, nil
	}

	client, err := backend.New(v.cfg, backend.StaticToken(token), backend.WithLogger(v.logger))
	if err != nil {
		return nil, err
	}
	vw := &viewer{
		svc: feed.NewService(client, store.New(),
			feed.WithPageSize(v.cfg.PageSize),
			feed.WithSnapshots(v.snapshots, tokenScope(token))),
		buttons:  &view.ReactionButtons{},
		lastSeen: now,
	}

	if len(v.byToken) >= maxViewers {
		v.evict(now)
	}
	v.byToken[token] = vw
	return vw, nil
}

// evict drops idle viewers, or the least recently seen one when none is
// idle. Caller holds mu.
func (v *viewers) evict(now time.Time) {
	var oldestToken string
	var oldest time.Time
	dropped := 0
	for token, vw := range v.byToken {
		if now.Sub(vw.lastSeen) > viewerIdle {
			delete(v.byToken, token)
			dropped++
			continue
		}
		if oldestToken == "" || vw.lastSeen.Before(oldest) {
			oldestToken, oldest = token, vw.lastSeen
		}
	}
	if dropped == 0 && oldestToken != "" {
		delete(v.byToken, oldestToken)
		dropped++
	}
	v.logger.Debug("Evicted viewers", zap.Int("dropped", dropped), zap.Int("remaining", len(v.byToken)))
}

func (v *viewers) len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.byToken)
}
