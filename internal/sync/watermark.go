package sync

import (
	"context"
	"fmt"

	"github.com/marcus/lists/internal/models"
)

// LastSyncTime returns the user's watermark, 0 if never synced.
func (s *Synchronizer) LastSyncTime(ctx context.Context, userID string) (int64, error) {
	p, err := s.local.GetProfile(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("get profile: %w", err)
	}
	if p == nil {
		return 0, nil
	}
	return p.LastSyncTime, nil
}

// SetLastSyncTime stores the watermark, creating the profile on first use.
func (s *Synchronizer) SetLastSyncTime(ctx context.Context, userID string, ts int64) error {
	p, err := s.local.GetProfile(ctx, userID)
	if err != nil {
		return fmt.Errorf("get profile: %w", err)
	}
	if p == nil {
		p = &models.Profile{UserID: userID}
	}
	p.LastSyncTime = ts
	if err := s.local.SaveProfile(ctx, userID, p); err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}
