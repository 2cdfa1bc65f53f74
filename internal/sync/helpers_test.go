package sync

import (
	"testing"

	"github.com/marcus/lists/internal/models"
)

const base int64 = 1_700_000_000_000

// at returns a timestamp n minutes from base.
func at(n int) int64 {
	return base + int64(n)*60_000
}

func localItem(id int64, remote string, mod int64, flag models.ChangeFlag) *models.ListItem {
	return &models.ListItem{
		Name:     "item",
		SyncMeta: models.SyncMeta{LocalID: id, RemoteID: remote, ModifiedAt: mod, ChangeFlag: flag},
	}
}

func serverItem(remote string, mod int64) *models.ListItem {
	return &models.ListItem{
		Name:     "item",
		SyncMeta: models.SyncMeta{RemoteID: remote, ModifiedAt: mod},
	}
}

func localList(id int64, remote string, mod int64, flag models.ChangeFlag, items ...*models.ListItem) *models.List {
	l := &models.List{
		Name:     "list",
		SyncMeta: models.SyncMeta{LocalID: id, RemoteID: remote, ModifiedAt: mod, ChangeFlag: flag},
	}
	for _, it := range items {
		l.AddItem(it)
	}
	return l
}

func serverList(remote string, mod int64, items ...*models.ListItem) *models.List {
	l := &models.List{
		Name:     "list",
		SyncMeta: models.SyncMeta{RemoteID: remote, ModifiedAt: mod},
	}
	for _, it := range items {
		l.AddItem(it)
	}
	return l
}

func assertIDs(t *testing.T, what string, e models.Syncable, localID int64, remoteID string) {
	t.Helper()
	m := e.Meta()
	if m.LocalID != localID || m.RemoteID != remoteID {
		t.Errorf("%s ids = (%d, %q), want (%d, %q)", what, m.LocalID, m.RemoteID, localID, remoteID)
	}
}

func assertLen[T any](t *testing.T, what string, got []T, want int) {
	t.Helper()
	if len(got) != want {
		t.Fatalf("%s: len = %d, want %d", what, len(got), want)
	}
}
