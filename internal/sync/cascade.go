package sync

import (
	"errors"
	"fmt"

	"github.com/marcus/lists/internal/models"
)

// ErrInconsistent is returned when an item selected for synchronization
// references a list missing from its snapshot.
var ErrInconsistent = errors.New("inconsistent snapshot")

// Computed is the list-level and item-level classification of one run.
type Computed struct {
	Lists Distribution[*models.List]
	Items Distribution[*models.ListItem]
}

// Len counts every classified list and item.
func (c *Computed) Len() int {
	return c.Lists.Len() + c.Items.Len()
}

// ComputeListsToSync classifies lists, then their items.
func ComputeListsToSync(local, remote []*models.List, watermark int64) (Computed, error) {
	c := Computed{Lists: Classify(local, remote, watermark)}
	items, err := ResolveItems(&c.Lists, local, remote, watermark)
	if err != nil {
		return Computed{}, err
	}
	c.Items = items
	return c, nil
}

// ResolveItems produces the item-level distribution for a list-level one.
// Items of lists that are new or deleted on one side inherit that state.
// Items of every list present on both sides are classified against their
// counterparts, whether or not the list itself changed. Lists reached only
// through their items are appended to lists so they travel too.
func ResolveItems(lists *Distribution[*models.List], local, remote []*models.List, watermark int64) (Distribution[*models.ListItem], error) {
	var items Distribution[*models.ListItem]

	cascade(&items, NewLocal, lists.NewLocal, models.FlagNew)
	cascade(&items, DeletedLocal, lists.DeletedLocal, models.FlagDeleted)
	cascade(&items, NewServer, lists.NewServer, models.FlagNew)
	cascade(&items, DeletedServer, lists.DeletedServer, models.FlagDeleted)

	localByID := make(map[int64]*models.List, len(local))
	for _, l := range local {
		localByID[l.LocalID] = l
	}
	remoteByID := make(map[string]*models.List, len(remote))
	for _, r := range remote {
		remoteByID[r.RemoteID] = r
	}

	for _, cl := range append(append([]*models.List(nil), lists.ChangedLocal...), lists.ChangedServer...) {
		if _, ok := localByID[cl.LocalID]; !ok {
			return items, fmt.Errorf("%w: no local list %d for changed list", ErrInconsistent, cl.LocalID)
		}
		if _, ok := remoteByID[cl.RemoteID]; !ok {
			return items, fmt.Errorf("%w: no remote list %s for changed list", ErrInconsistent, cl.RemoteID)
		}
	}

	// Lists whose items were already cascaded above.
	cascaded := make(map[int64]bool)
	for _, b := range [...]Bucket{NewLocal, DeletedLocal, DeletedServer} {
		for _, l := range lists.Get(b) {
			cascaded[l.LocalID] = true
		}
	}

	for _, l := range local {
		if l.RemoteID == "" || models.IsDeleted(l) || cascaded[l.LocalID] {
			continue
		}
		r, ok := remoteByID[l.RemoteID]
		if !ok {
			continue
		}
		sub := Classify(l.Items, r.Items, watermark)
		for _, b := range AllBuckets {
			for _, item := range sub.Get(b) {
				item.ListLocalID = l.LocalID
				item.ListRemoteID = r.RemoteID
			}
		}
		items.Merge(sub)
	}

	if err := recoverOrphans(lists, &items, localByID, remoteByID); err != nil {
		return items, err
	}
	return items, nil
}

// cascade copies the items of every list in src into bucket b with flag.
func cascade(items *Distribution[*models.ListItem], b Bucket, src []*models.List, flag models.ChangeFlag) {
	for _, l := range src {
		for _, it := range l.Items {
			c := it.Clone()
			c.ListLocalID = l.LocalID
			c.ListRemoteID = l.RemoteID
			target := b
			switch {
			case b == NewLocal && models.IsDeleted(it) && it.RemoteID == "":
				// Tombstone that never left this device: purge only.
				target = DeletedLocal
			case b == NewServer:
				c.LocalID = 0
				c.ChangeFlag = flag
			default:
				c.ChangeFlag = flag
			}
			items.Append(target, c)
		}
	}
}

// recoverOrphans appends to the list buckets every list referenced by an
// item bucket but absent from all list buckets of the same side.
func recoverOrphans(lists *Distribution[*models.List], items *Distribution[*models.ListItem], localByID map[int64]*models.List, remoteByID map[string]*models.List) error {
	outLists := make(map[int64]bool)
	for _, l := range lists.Outbound() {
		outLists[l.LocalID] = true
	}
	inLists := make(map[string]bool)
	for _, l := range lists.Inbound() {
		inLists[l.RemoteID] = true
	}
	// A list already travelling inbound had its metadata conflict resolved
	// there; the outbound orphan copy only carries items.
	inByLocal := make(map[int64]bool)
	for _, l := range lists.Inbound() {
		if l.LocalID != 0 {
			inByLocal[l.LocalID] = true
		}
	}
	localByRemote := make(map[string]int64, len(localByID))
	for id, l := range localByID {
		if l.RemoteID != "" {
			localByRemote[l.RemoteID] = id
		}
	}

	for _, b := range AllBuckets {
		for _, item := range items.Get(b) {
			if b.Outbound() {
				if outLists[item.ListLocalID] {
					continue
				}
				l, ok := localByID[item.ListLocalID]
				if !ok {
					return fmt.Errorf("%w: local item %d references missing list %d", ErrInconsistent, item.LocalID, item.ListLocalID)
				}
				c := l.Clone()
				c.Items = nil
				if inByLocal[c.LocalID] && !models.IsDeleted(c) {
					c.ChangeFlag = models.FlagNone
				}
				lists.Append(b, c)
				outLists[c.LocalID] = true
				continue
			}

			if inLists[item.ListRemoteID] {
				continue
			}
			r, ok := remoteByID[item.ListRemoteID]
			if !ok {
				return fmt.Errorf("%w: item %s references missing remote list %s", ErrInconsistent, item.RemoteID, item.ListRemoteID)
			}
			c := fromServer(r, localByRemote[r.RemoteID])
			c.Items = nil
			lists.Append(b, c)
			inLists[c.RemoteID] = true
		}
	}
	return nil
}
