// Package auth owns the agent's authentication state.
//
// The state is all-or-nothing: either every identity field is populated
// (logged in) or every field is empty (logged out). Mutations happen only
// through the named transition methods, and each mutation is written back to
// the store before it becomes observable.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/labai-app/tracking-agent/api/schemas"
	"github.com/labai-app/tracking-agent/internal/store"
)

// Snapshot is a read-only copy of the auth state.
type Snapshot struct {
	IsLoggedIn      bool
	UserID          string
	UserEmail       string
	Token           string
	TrackedWebsites []schemas.Website
}

// Service holds the process-wide auth state.
type Service struct {
	mu sync.RWMutex

	st  *store.Store
	log *zap.Logger

	isLoggedIn bool
	userID     string
	userEmail  string
	token      string
	websites   []schemas.Website
}

// NewService creates a logged-out service backed by the given store.
func NewService(st *store.Store, logger *zap.Logger) *Service {
	return &Service{
		st:  st,
		log: logger.Named("auth"),
	}
}

// Hydrate restores persisted identity from the store. The state only becomes
// logged-in when all three identity fields are present; a partial record is
// discarded so the all-or-nothing invariant survives a corrupt store.
func (s *Service) Hydrate(ctx context.Context) error {
	token, okToken, err := s.st.Get(ctx, store.KeyAuthToken)
	if err != nil {
		return fmt.Errorf("auth: failed to hydrate token: %w", err)
	}
	userID, okID, err := s.st.Get(ctx, store.KeyUserID)
	if err != nil {
		return fmt.Errorf("auth: failed to hydrate user id: %w", err)
	}
	email, okEmail, err := s.st.Get(ctx, store.KeyUserEmail)
	if err != nil {
		return fmt.Errorf("auth: failed to hydrate user email: %w", err)
	}

	if !(okToken && okID && okEmail) {
		if okToken || okID || okEmail {
			s.log.Warn("Discarding partial persisted identity")
			if err := s.st.Delete(ctx, store.KeyAuthToken, store.KeyUserID, store.KeyUserEmail); err != nil {
				return fmt.Errorf("auth: failed to clear partial identity: %w", err)
			}
		}
		return nil
	}

	var websites []schemas.Website
	if raw, ok, err := s.st.Get(ctx, store.KeyTrackedWebsites); err != nil {
		return fmt.Errorf("auth: failed to hydrate websites: %w", err)
	} else if ok {
		if err := json.Unmarshal([]byte(raw), &websites); err != nil {
			// Stale cache only; drop it and refetch later.
			s.log.Warn("Discarding undecodable website cache", zap.Error(err))
			websites = nil
		}
	}

	s.mu.Lock()
	s.isLoggedIn = true
	s.token = token
	s.userID = userID
	s.userEmail = email
	s.websites = websites
	s.mu.Unlock()

	s.log.Info("Restored persisted login", zap.String("user_id", userID))
	return nil
}

// SetLoggedIn transitions to the logged-in state and persists the identity.
// Persistence failure aborts the transition so no half-applied state leaks.
func (s *Service) SetLoggedIn(ctx context.Context, userID, email, token string) error {
	if userID == "" || email == "" || token == "" {
		return fmt.Errorf("auth: login requires userId, email and token")
	}

	if err := s.st.Set(ctx, store.KeyAuthToken, token); err != nil {
		return fmt.Errorf("auth: failed to persist token: %w", err)
	}
	if err := s.st.Set(ctx, store.KeyUserID, userID); err != nil {
		return fmt.Errorf("auth: failed to persist user id: %w", err)
	}
	if err := s.st.Set(ctx, store.KeyUserEmail, email); err != nil {
		return fmt.Errorf("auth: failed to persist user email: %w", err)
	}

	s.mu.Lock()
	s.isLoggedIn = true
	s.userID = userID
	s.userEmail = email
	s.token = token
	s.mu.Unlock()
	return nil
}

// SetLoggedOut resets to the all-empty state. The in-memory reset always
// happens; a storage-clear failure is returned after the fact.
func (s *Service) SetLoggedOut(ctx context.Context) error {
	s.mu.Lock()
	s.isLoggedIn = false
	s.userID = ""
	s.userEmail = ""
	s.token = ""
	s.websites = nil
	s.mu.Unlock()

	if err := s.st.Delete(ctx, store.KeyAuthToken, store.KeyUserID, store.KeyUserEmail, store.KeyTrackedWebsites); err != nil {
		return fmt.Errorf("auth: failed to clear persisted identity: %w", err)
	}
	return nil
}

// SetWebsites replaces the tracked-website cache wholesale and persists it.
// Last write wins; the cache mirrors server truth, it is not a source of
// truth itself.
func (s *Service) SetWebsites(ctx context.Context, websites []schemas.Website) error {
	raw, err := json.Marshal(websites)
	if err != nil {
		return fmt.Errorf("auth: failed to marshal websites: %w", err)
	}
	if err := s.st.Set(ctx, store.KeyTrackedWebsites, string(raw)); err != nil {
		return fmt.Errorf("auth: failed to persist websites: %w", err)
	}

	s.mu.Lock()
	s.websites = websites
	s.mu.Unlock()
	return nil
}

// Snapshot returns a copy of the current state.
func (s *Service) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		IsLoggedIn:      s.isLoggedIn,
		UserID:          s.userID,
		UserEmail:       s.userEmail,
		Token:           s.token,
		TrackedWebsites: append([]schemas.Website(nil), s.websites...),
	}
}

// IsLoggedIn reports whether the agent holds a full identity.
func (s *Service) IsLoggedIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isLoggedIn
}

// Token returns the bearer credential, empty when logged out.
func (s *Service) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}
