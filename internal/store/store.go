// Package store defines the storage contracts consumed by the sync engine
// and the error taxonomy shared by every adapter.
package store

import (
	"context"

	"github.com/marcus/lists/internal/models"
)

// LocalStore is the offline replica. Lists returned by GetLists carry their
// nested items, tombstones included.
type LocalStore interface {
	GetLists(ctx context.Context, userID string) ([]*models.List, error)
	GetList(ctx context.Context, userID string, listID int64) (*models.List, error)
	GetListItems(ctx context.Context, userID string, listID int64) ([]*models.ListItem, error)
	GetListItem(ctx context.Context, userID string, itemID int64) (*models.ListItem, error)

	// SaveList assigns LocalID when zero and upserts otherwise. Nested items
	// are saved too; nested tombstones that never reached the remote store are purged.
	SaveList(ctx context.Context, userID string, list *models.List) error
	// SaveListItem requires item.ListLocalID.
	SaveListItem(ctx context.Context, userID string, item *models.ListItem) error
	DeleteList(ctx context.Context, userID string, listID int64) error
	DeleteListItem(ctx context.Context, userID string, listID, itemID int64) error

	// GetProfile returns nil, nil when the user has no profile yet.
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
	SaveProfile(ctx context.Context, userID string, profile *models.Profile) error
}

// RemoteStore is the server replica. It assigns RemoteIDs on first save.
type RemoteStore interface {
	GetLists(ctx context.Context, userID string) ([]*models.List, error)
	// SaveList writes the list without its items and returns its remote id.
	SaveList(ctx context.Context, userID string, list *models.List) (string, error)
	SaveListItem(ctx context.Context, userID, listRemoteID string, item *models.ListItem) (string, error)
	// DeleteList removes the list and all of its items.
	DeleteList(ctx context.Context, userID, listRemoteID string) error
	DeleteListItem(ctx context.Context, userID, listRemoteID, itemRemoteID string) error
	// GetSharedLists returns lists other users shared with userID.
	GetSharedLists(ctx context.Context, userID string) ([]*models.List, error)
}
