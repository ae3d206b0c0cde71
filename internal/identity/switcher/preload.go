package switcher

import (
	"context"
	"time"

	id "persona/pkg/domain"

	"persona/internal/identity/models"
)

const preloadTimeout = 3 * time.Second

// preload warms the cache with the identities the user is most likely to
// switch to next, the parent and direct children of the one just activated.
// Best effort: it runs detached from the request and swallows failures.
func (s *Switcher) preload(identity *models.Identity) {
	if s.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), preloadTimeout)
	defer cancel()

	warm := func(identityID id.IdentityID) {
		neighbor, err := s.directory.Get(ctx, identityID)
		if err != nil {
			s.logger.DebugContext(ctx, "preload lookup failed", "identity_id", identityID, "error", err)
			return
		}
		if err := s.cache.Put(ctx, neighbor); err != nil {
			s.logger.DebugContext(ctx, "preload cache write failed", "identity_id", identityID, "error", err)
		}
	}

	if identity.ParentID != nil {
		warm(*identity.ParentID)
	}
	children, err := s.directory.Children(ctx, identity.ID)
	if err != nil {
		s.logger.DebugContext(ctx, "preload children lookup failed", "identity_id", identity.ID, "error", err)
		return
	}
	for _, child := range children {
		if err := s.cache.Put(ctx, child); err != nil {
			s.logger.DebugContext(ctx, "preload cache write failed", "identity_id", child.ID, "error", err)
		}
	}
}
