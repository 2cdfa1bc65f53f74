package sync

import (
	"context"
	"fmt"

	"github.com/marcus/lists/internal/models"
)

// MigrateAnonymous pushes every list created while signed out to the remote
// store under userID and moves it into userID's local partition. Tombstones
// are purged first since they never reached the server. It returns the
// number of lists migrated.
func (s *Synchronizer) MigrateAnonymous(ctx context.Context, userID string) (int, error) {
	lists, err := s.local.GetLists(ctx, models.AnonymousUser)
	if err != nil {
		return 0, fmt.Errorf("get anonymous lists: %w", err)
	}

	var works []listWork
	for _, l := range lists {
		if models.IsDeleted(l) {
			if err := s.local.DeleteList(ctx, models.AnonymousUser, l.LocalID); err != nil {
				return 0, fmt.Errorf("purge anonymous list %d: %w", l.LocalID, err)
			}
			continue
		}

		items := make([]*models.ListItem, 0, len(l.Items))
		for _, item := range l.Items {
			if models.IsDeleted(item) {
				if err := s.local.DeleteListItem(ctx, models.AnonymousUser, l.LocalID, item.LocalID); err != nil {
					return 0, fmt.Errorf("purge anonymous item %d: %w", item.LocalID, err)
				}
				continue
			}
			item.RemoteID = ""
			item.ChangeFlag = models.FlagNew
			item.OwnerID = userID
			items = append(items, item)
		}

		l.RemoteID = ""
		l.ChangeFlag = models.FlagNew
		l.OwnerID = userID
		l.Items = items
		works = append(works, listWork{list: l, items: items})
	}

	if len(works) == 0 {
		return 0, nil
	}

	s.log.Info("sync: migrating anonymous lists", "user", userID, "lists", len(works))
	a := s.applier(userID)
	if err := a.each(ctx, works, a.applyOutbound); err != nil {
		return 0, err
	}
	return len(works), nil
}
