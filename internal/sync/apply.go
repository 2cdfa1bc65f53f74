package sync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/marcus/lists/internal/models"
	"github.com/marcus/lists/internal/store"
	"golang.org/x/sync/errgroup"
)

// listWork is one list and the items travelling with it. Work for a single
// list runs sequentially; separate lists run in parallel.
type listWork struct {
	list  *models.List
	items []*models.ListItem
}

type applier struct {
	local  store.LocalStore
	remote store.RemoteStore
	userID string
	limit  int
	log    *slog.Logger
}

// applyStats counts lists handled per direction.
type applyStats struct {
	outbound int
	inbound  int
}

// apply pushes local-origin buckets to the remote store, then writes
// server-origin buckets to the local store.
func (a *applier) apply(ctx context.Context, c *Computed) (applyStats, error) {
	out := groupOutbound(c)

	pushed := make(map[int64]bool, len(out))
	deleted := make(map[int64]bool)
	for _, w := range out {
		switch {
		case models.IsDeleted(w.list):
			deleted[w.list.LocalID] = true
		case needsPush(w.list):
			pushed[w.list.LocalID] = true
		}
	}

	if err := a.each(ctx, out, a.applyOutbound); err != nil {
		return applyStats{}, err
	}

	in := groupInbound(c)
	err := a.each(ctx, in, func(ctx context.Context, w listWork) error {
		if w.list.LocalID != 0 && deleted[w.list.LocalID] {
			return nil
		}
		return a.applyInbound(ctx, w, pushed[w.list.LocalID] && w.list.LocalID != 0)
	})
	if err != nil {
		return applyStats{}, err
	}
	return applyStats{outbound: len(out), inbound: len(in)}, nil
}

func (a *applier) each(ctx context.Context, works []listWork, fn func(context.Context, listWork) error) error {
	g, ctx := errgroup.WithContext(ctx)
	if a.limit > 0 {
		g.SetLimit(a.limit)
	}
	for _, w := range works {
		w := w
		g.Go(func() error {
			return fn(ctx, w)
		})
	}
	return g.Wait()
}

// needsPush reports whether the list's own record must be written remotely.
func needsPush(l *models.List) bool {
	return l.ChangeFlag != models.FlagNone || l.RemoteID == ""
}

func groupOutbound(c *Computed) []listWork {
	lists := c.Lists.Outbound()
	works := make([]listWork, len(lists))
	idx := make(map[int64]int, len(lists))
	for i, l := range lists {
		works[i] = listWork{list: l}
		idx[l.LocalID] = i
	}
	for _, item := range c.Items.Outbound() {
		if i, ok := idx[item.ListLocalID]; ok {
			works[i].items = append(works[i].items, item)
		}
	}
	return works
}

func groupInbound(c *Computed) []listWork {
	lists := c.Lists.Inbound()
	works := make([]listWork, len(lists))
	idx := make(map[string]int, len(lists))
	for i, l := range lists {
		works[i] = listWork{list: l}
		idx[l.RemoteID] = i
	}
	for _, item := range c.Items.Inbound() {
		if i, ok := idx[item.ListRemoteID]; ok {
			works[i].items = append(works[i].items, item)
		}
	}
	return works
}

// applyOutbound writes one local list and its items to the remote store and
// records the outcome locally.
func (a *applier) applyOutbound(ctx context.Context, w listWork) error {
	l := w.list

	if models.IsDeleted(l) {
		if l.RemoteID != "" {
			a.log.Debug("sync: delete remote list", "list", l.LocalID, "remote", l.RemoteID)
			if err := a.remote.DeleteList(ctx, a.userID, l.RemoteID); err != nil {
				return fmt.Errorf("delete remote list %s: %w", l.RemoteID, err)
			}
		}
		if err := a.local.DeleteList(ctx, a.userID, l.LocalID); err != nil {
			return fmt.Errorf("delete local list %d: %w", l.LocalID, err)
		}
		return nil
	}

	push := needsPush(l)
	if push {
		id, err := a.remote.SaveList(ctx, a.userID, l)
		if err != nil {
			return fmt.Errorf("push list %d: %w", l.LocalID, err)
		}
		a.log.Debug("sync: pushed list", "list", l.LocalID, "remote", id)
		l.RemoteID = id
	}

	kept := make([]*models.ListItem, 0, len(w.items))
	for _, item := range w.items {
		item.ListLocalID = l.LocalID
		item.ListRemoteID = l.RemoteID

		if models.IsDeleted(item) {
			if item.RemoteID != "" {
				if err := a.remote.DeleteListItem(ctx, a.userID, l.RemoteID, item.RemoteID); err != nil {
					return fmt.Errorf("delete remote item %s: %w", item.RemoteID, err)
				}
			}
			if err := a.local.DeleteListItem(ctx, a.userID, l.LocalID, item.LocalID); err != nil {
				return fmt.Errorf("delete local item %d: %w", item.LocalID, err)
			}
			continue
		}

		id, err := a.remote.SaveListItem(ctx, a.userID, l.RemoteID, item)
		if err != nil {
			return fmt.Errorf("push item %d: %w", item.LocalID, err)
		}
		item.RemoteID = id
		item.ChangeFlag = models.FlagNone
		if item.OwnerID == "" {
			item.OwnerID = a.userID
		}
		kept = append(kept, item)
	}

	if push {
		l.ChangeFlag = models.FlagNone
		if l.OwnerID == "" {
			l.OwnerID = a.userID
		}
		l.Items = kept
		if err := a.local.SaveList(ctx, a.userID, l); err != nil {
			return fmt.Errorf("save local list %d: %w", l.LocalID, err)
		}
		return nil
	}

	for _, item := range kept {
		if err := a.local.SaveListItem(ctx, a.userID, item); err != nil {
			return fmt.Errorf("save local item %d: %w", item.LocalID, err)
		}
	}
	return nil
}

// applyInbound writes one server-origin list and its items locally. When the
// list's own record was already pushed outbound only its items are touched.
func (a *applier) applyInbound(ctx context.Context, w listWork, itemsOnly bool) error {
	l := w.list

	if models.IsDeleted(l) {
		a.log.Debug("sync: list gone from server", "list", l.LocalID, "remote", l.RemoteID)
		if err := a.local.DeleteList(ctx, a.userID, l.LocalID); err != nil {
			return fmt.Errorf("delete local list %d: %w", l.LocalID, err)
		}
		return nil
	}

	kept := make([]*models.ListItem, 0, len(w.items))
	for _, item := range w.items {
		if models.IsDeleted(item) {
			if err := a.local.DeleteListItem(ctx, a.userID, item.ListLocalID, item.LocalID); err != nil {
				return fmt.Errorf("delete local item %d: %w", item.LocalID, err)
			}
			continue
		}
		item.ChangeFlag = models.FlagNone
		item.ListRemoteID = l.RemoteID
		kept = append(kept, item)
	}

	if itemsOnly {
		for _, item := range kept {
			item.ListLocalID = l.LocalID
			if err := a.local.SaveListItem(ctx, a.userID, item); err != nil {
				return fmt.Errorf("save local item %s: %w", item.RemoteID, err)
			}
		}
		return nil
	}

	l.ChangeFlag = models.FlagNone
	l.Items = kept
	if err := a.local.SaveList(ctx, a.userID, l); err != nil {
		return fmt.Errorf("save local list %s: %w", l.RemoteID, err)
	}
	a.log.Debug("sync: pulled list", "list", l.LocalID, "remote", l.RemoteID, "items", len(kept))
	return nil
}
