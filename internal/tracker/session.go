package tracker

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SessionCache is the per-tab session-id cache. A tab keeps the first id it
// was assigned for its whole lifetime.
type SessionCache interface {
	SessionID(ctx context.Context, tabID string) (string, bool, error)
	SaveSessionID(ctx context.Context, tabID, sessionID string) error
}

// resolveSessionID returns the cached session id for the tab, generating and
// caching a fresh one when none exists. The id is a correlation key, not a
// security token, so uuid's default randomness is more than enough.
func resolveSessionID(ctx context.Context, cache SessionCache, tabID string, log *zap.Logger) string {
	if cache == nil || tabID == "" {
		return uuid.NewString()
	}

	if id, ok, err := cache.SessionID(ctx, tabID); err == nil && ok {
		return id
	} else if err != nil {
		log.Warn("Session cache read failed, generating uncached id", zap.Error(err))
		return uuid.NewString()
	}

	id := uuid.NewString()
	if err := cache.SaveSessionID(ctx, tabID, id); err != nil {
		// Best effort: an uncached id only costs session continuity on reload.
		log.Warn("Session cache write failed", zap.Error(err))
	}
	return id
}
