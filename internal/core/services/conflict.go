package services

import (
	"context"
	"errors"

	"github.com/custodia-labs/stitch/internal/core/domain"
	"github.com/custodia-labs/stitch/internal/logger"
)

// maxConflictAttempts bounds how often a read-modify-write is replayed after
// losing a version race to another writer of the same store.
const maxConflictAttempts = 5

// retryOnConflict runs attempt until it returns something other than
// domain.ErrConflict. Each attempt must reload what it modifies. The session
// lock only serialises writers inside this process; other processes sharing
// the store surface as conflicts here.
func retryOnConflict(ctx context.Context, attempt func() error) error {
	var err error
	for i := 1; i <= maxConflictAttempts; i++ {
		err = attempt()
		if !errors.Is(err, domain.ErrConflict) || ctx.Err() != nil {
			return err
		}
		logger.Debug("version conflict, reloading (attempt %d/%d)", i, maxConflictAttempts)
	}
	return err
}
