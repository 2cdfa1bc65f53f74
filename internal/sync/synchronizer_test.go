package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/marcus/lists/internal/db"
	"github.com/marcus/lists/internal/models"
	"github.com/marcus/lists/internal/remote/memstore"
)

const user = "alice"

type harness struct {
	t      *testing.T
	ctx    context.Context
	local  *db.DB
	remote *memstore.Store
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	local, err := db.Initialize(t.TempDir())
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	t.Cleanup(func() { local.Close() })
	return &harness{t: t, ctx: context.Background(), local: local, remote: memstore.New()}
}

func (h *harness) syncer(now int64, opts ...func(*Options)) *Synchronizer {
	o := Options{Now: func() time.Time { return time.UnixMilli(now) }}
	for _, fn := range opts {
		fn(&o)
	}
	return New(h.local, h.remote, o)
}

func (h *harness) run(now int64) Result {
	h.t.Helper()
	res, err := h.syncer(now).Synchronize(h.ctx, user)
	if err != nil {
		h.t.Fatalf("Synchronize: %v", err)
	}
	return res
}

// newList saves a freshly created list with items for userID.
func (h *harness) newList(userID, name string, mod int64, itemNames ...string) *models.List {
	h.t.Helper()
	l := &models.List{Name: name}
	models.MarkNew(l, mod)
	for _, n := range itemNames {
		it := &models.ListItem{Name: n}
		models.MarkNew(it, mod)
		l.Items = append(l.Items, it)
	}
	if err := h.local.SaveList(h.ctx, userID, l); err != nil {
		h.t.Fatalf("SaveList: %v", err)
	}
	return l
}

func (h *harness) localLists(userID string) []*models.List {
	h.t.Helper()
	lists, err := h.local.GetLists(h.ctx, userID)
	if err != nil {
		h.t.Fatalf("GetLists: %v", err)
	}
	return lists
}

func (h *harness) remoteLists() []*models.List {
	h.t.Helper()
	lists, err := h.remote.GetLists(h.ctx, user)
	if err != nil {
		h.t.Fatalf("remote GetLists: %v", err)
	}
	return lists
}

func TestSyncPushesNewListBeforeItems(t *testing.T) {
	h := newHarness(t)
	h.newList(user, "groceries", at(0), "milk", "eggs")

	res := h.run(at(10))

	calls := h.remote.Calls()
	wantOps := []memstore.Op{memstore.OpSaveList, memstore.OpSaveListItem, memstore.OpSaveListItem}
	if len(calls) != len(wantOps) {
		t.Fatalf("calls = %+v", calls)
	}
	for i, op := range wantOps {
		if calls[i].Op != op {
			t.Errorf("call %d = %s, want %s", i, calls[i].Op, op)
		}
	}
	if calls[1].Name != "milk" || calls[2].Name != "eggs" {
		t.Errorf("item order = %s, %s", calls[1].Name, calls[2].Name)
	}

	lists := h.localLists(user)
	if len(lists) != 1 {
		t.Fatalf("local lists = %d", len(lists))
	}
	l := lists[0]
	if l.RemoteID != calls[0].ListID || l.ChangeFlag != models.FlagNone || l.OwnerID != user {
		t.Errorf("local list after push: %+v", l.SyncMeta)
	}
	for _, it := range l.Items {
		if it.RemoteID == "" || it.ChangeFlag != models.FlagNone {
			t.Errorf("item after push: %+v", it.SyncMeta)
		}
	}

	if res.Watermark != at(10) || !res.Changed() {
		t.Errorf("watermark = %d, want %d", res.Watermark, at(10))
	}
	if wm, _ := h.syncer(0).LastSyncTime(h.ctx, user); wm != at(10) {
		t.Errorf("persisted watermark = %d", wm)
	}
}

func TestSyncPullsNewServerList(t *testing.T) {
	h := newHarness(t)
	id, _ := h.remote.SaveList(h.ctx, user, &models.List{Name: "from phone", SyncMeta: models.SyncMeta{ModifiedAt: at(5)}})
	h.remote.SaveListItem(h.ctx, user, id, &models.ListItem{Name: "batteries", SyncMeta: models.SyncMeta{ModifiedAt: at(5)}})

	h.run(at(10))

	lists := h.localLists(user)
	if len(lists) != 1 {
		t.Fatalf("local lists = %d", len(lists))
	}
	l := lists[0]
	if l.LocalID == 0 || l.RemoteID != id || l.Name != "from phone" {
		t.Errorf("pulled list: %+v", l)
	}
	if len(l.Items) != 1 || l.Items[0].LocalID == 0 || l.Items[0].ListLocalID != l.LocalID {
		t.Errorf("pulled items: %+v", l.Items)
	}
}

func TestSecondSyncIsNoop(t *testing.T) {
	h := newHarness(t)
	h.newList(user, "groceries", at(0), "milk")
	h.run(at(10))
	h.remote.ResetCalls()

	res := h.run(at(20))

	if res.Changed() {
		t.Errorf("second run reported changes: %+v", res)
	}
	if calls := h.remote.Calls(); len(calls) != 0 {
		t.Errorf("second run wrote remotely: %+v", calls)
	}
	if wm, _ := h.syncer(0).LastSyncTime(h.ctx, user); wm != at(10) {
		t.Errorf("watermark moved on no-op run: %d", wm)
	}
}

func TestSyncPushesNewItemOnly(t *testing.T) {
	h := newHarness(t)
	l := h.newList(user, "groceries", at(0), "milk")
	h.run(at(10))
	h.remote.ResetCalls()

	it := &models.ListItem{Name: "bread", ListLocalID: l.LocalID}
	models.MarkNew(it, at(12))
	if err := h.local.SaveListItem(h.ctx, user, it); err != nil {
		t.Fatalf("SaveListItem: %v", err)
	}

	h.run(at(20))

	calls := h.remote.Calls()
	if len(calls) != 1 || calls[0].Op != memstore.OpSaveListItem || calls[0].Name != "bread" {
		t.Fatalf("calls = %+v", calls)
	}
	if got := h.remoteLists()[0].Items; len(got) != 2 {
		t.Errorf("remote items = %d", len(got))
	}
}

func TestSyncPropagatesLocalDelete(t *testing.T) {
	h := newHarness(t)
	l := h.newList(user, "old", at(0), "x")
	h.run(at(10))

	got, _ := h.local.GetList(h.ctx, user, l.LocalID)
	models.MarkDeleted(got, at(15))
	if err := h.local.SaveList(h.ctx, user, got); err != nil {
		t.Fatalf("SaveList: %v", err)
	}

	h.run(at(20))

	if n := len(h.remoteLists()); n != 0 {
		t.Errorf("remote still has %d lists", n)
	}
	if n := len(h.localLists(user)); n != 0 {
		t.Errorf("local still has %d lists", n)
	}
}

func TestSyncAppliesServerDelete(t *testing.T) {
	h := newHarness(t)
	h.newList(user, "old", at(0), "x")
	h.run(at(10))

	rl := h.remoteLists()[0]
	h.remote.DeleteList(h.ctx, user, rl.RemoteID)

	h.run(at(20))

	if n := len(h.localLists(user)); n != 0 {
		t.Errorf("local still has %d lists", n)
	}
}

func TestSyncLastWriteWins(t *testing.T) {
	h := newHarness(t)
	l := h.newList(user, "original", at(0))
	h.run(at(10))

	got, _ := h.local.GetList(h.ctx, user, l.LocalID)
	got.Name = "local rename"
	models.MarkChanged(got, at(11))
	h.local.SaveList(h.ctx, user, got)

	rl := h.remoteLists()[0]
	rl.Name = "server rename"
	rl.ModifiedAt = at(12)
	h.remote.SaveList(h.ctx, user, rl)

	h.run(at(20))

	after, _ := h.local.GetList(h.ctx, user, l.LocalID)
	if after.Name != "server rename" || after.ChangeFlag != models.FlagNone {
		t.Errorf("local after sync: %q flag=%s", after.Name, after.ChangeFlag)
	}
}

func TestSyncMergesItemEditsOnBothSides(t *testing.T) {
	h := newHarness(t)
	l := h.newList(user, "groceries", at(0), "milk", "eggs")
	h.run(at(10))

	// Local edits milk, server edits eggs and renames the list last.
	local, _ := h.local.GetList(h.ctx, user, l.LocalID)
	milk := local.Items[0]
	milk.Status = models.ItemDone
	models.MarkChanged(milk, at(11))
	h.local.SaveListItem(h.ctx, user, milk)

	rl := h.remoteLists()[0]
	rl.Name = "weekly shop"
	rl.ModifiedAt = at(13)
	h.remote.SaveList(h.ctx, user, rl)
	eggs := rl.Items[1]
	eggs.Notes = "free range"
	eggs.ModifiedAt = at(12)
	h.remote.SaveListItem(h.ctx, user, rl.RemoteID, eggs)

	h.run(at(20))

	after, _ := h.local.GetList(h.ctx, user, l.LocalID)
	if after.Name != "weekly shop" {
		t.Errorf("list name = %q", after.Name)
	}
	byName := map[string]*models.ListItem{}
	for _, it := range after.Items {
		byName[it.Name] = it
	}
	if byName["eggs"].Notes != "free range" {
		t.Errorf("server item edit lost: %+v", byName["eggs"])
	}
	if byName["milk"].ChangeFlag != models.FlagNone {
		t.Errorf("pushed item still flagged: %+v", byName["milk"])
	}
	for _, it := range h.remoteLists()[0].Items {
		if it.Name == "milk" && it.Status != models.ItemDone {
			t.Errorf("local item edit not pushed: %+v", it)
		}
	}
}

func TestSyncItemEditsReachOtherDevice(t *testing.T) {
	phone := newHarness(t)
	laptop := newHarness(t)
	laptop.remote = phone.remote

	l := phone.newList(user, "groceries", at(0), "milk", "eggs")
	phone.run(at(10))
	laptop.run(at(20))

	// The phone edits one item and deletes the other; the list itself is untouched.
	got, _ := phone.local.GetList(phone.ctx, user, l.LocalID)
	for _, it := range got.Items {
		switch it.Name {
		case "milk":
			it.Name = "oat milk"
			models.MarkChanged(it, at(30))
		case "eggs":
			models.MarkDeleted(it, at(30))
		}
		if err := phone.local.SaveListItem(phone.ctx, user, it); err != nil {
			t.Fatalf("SaveListItem: %v", err)
		}
	}
	if res := phone.run(at(40)); res.Items != 2 {
		t.Fatalf("phone push = %+v", res)
	}

	res := laptop.run(at(50))
	if !res.Changed() || res.Lists != 1 || res.Items != 2 {
		t.Errorf("laptop pull = %+v", res)
	}
	lists := laptop.localLists(user)
	if len(lists) != 1 {
		t.Fatalf("laptop lists = %d", len(lists))
	}
	if items := lists[0].Items; len(items) != 1 || items[0].Name != "oat milk" || items[0].ChangeFlag != models.FlagNone {
		t.Errorf("laptop items = %+v", items)
	}

	if res := laptop.run(at(60)); res.Changed() {
		t.Errorf("follow-up run should be a no-op: %+v", res)
	}
}

func TestSyncMigratesAnonymousLists(t *testing.T) {
	h := newHarness(t)
	keep := h.newList(models.AnonymousUser, "offline", at(0), "a", "b")
	drop := h.newList(models.AnonymousUser, "scratch", at(0))

	// Tombstone one item and one list before signing in.
	anon, _ := h.local.GetList(h.ctx, models.AnonymousUser, keep.LocalID)
	models.MarkDeleted(anon.Items[1], at(1))
	h.local.SaveListItem(h.ctx, models.AnonymousUser, anon.Items[1])
	gone, _ := h.local.GetList(h.ctx, models.AnonymousUser, drop.LocalID)
	models.MarkDeleted(gone, at(1))
	h.local.SaveList(h.ctx, models.AnonymousUser, gone)

	res := h.run(at(10))

	if res.Migrated != 1 {
		t.Errorf("migrated = %d, want 1", res.Migrated)
	}
	if n := len(h.localLists(models.AnonymousUser)); n != 0 {
		t.Errorf("anonymous partition still has %d lists", n)
	}
	mine := h.localLists(user)
	if len(mine) != 1 || mine[0].RemoteID == "" || len(mine[0].Items) != 1 {
		t.Fatalf("migrated lists: %+v", mine)
	}
	remote := h.remoteLists()
	if len(remote) != 1 || len(remote[0].Items) != 1 || remote[0].Items[0].Name != "a" {
		t.Errorf("remote after migration: %+v", remote)
	}
	if res.Watermark != at(10) {
		t.Errorf("watermark = %d", res.Watermark)
	}
}

func TestSyncFailureWrapsAndKeepsWatermark(t *testing.T) {
	h := newHarness(t)
	h.newList(user, "groceries", at(0), "milk")
	boom := errors.New("network unreachable")
	h.remote.FailOn(memstore.OpSaveList, boom)

	_, err := h.syncer(at(10)).Synchronize(h.ctx, user)

	var se *SyncError
	if !errors.As(err, &se) {
		t.Fatalf("expected SyncError, got %v", err)
	}
	if se.Stage != Applying || !errors.Is(err, ErrSync) || !errors.Is(err, boom) {
		t.Errorf("error = %v (stage %s)", err, se.Stage)
	}
	if wm, _ := h.syncer(0).LastSyncTime(h.ctx, user); wm != 0 {
		t.Errorf("watermark persisted despite failure: %d", wm)
	}

	// Retrying after the outage converges.
	h.remote.FailOn(memstore.OpSaveList, nil)
	if res := h.run(at(20)); !res.Changed() {
		t.Error("retry should sync")
	}
	if n := len(h.remoteLists()); n != 1 {
		t.Errorf("remote lists = %d", n)
	}
}

func TestSyncRequiresUser(t *testing.T) {
	h := newHarness(t)
	for _, u := range []string{"", models.AnonymousUser} {
		_, err := h.syncer(at(1)).Synchronize(h.ctx, u)
		if !errors.Is(err, ErrNoUser) {
			t.Errorf("user %q: %v", u, err)
		}
	}
}

func TestSyncStateTransitions(t *testing.T) {
	h := newHarness(t)
	var states []State
	s := h.syncer(at(1), func(o *Options) {
		o.OnState = func(st State) { states = append(states, st) }
	})
	if _, err := s.Synchronize(h.ctx, user); err != nil {
		t.Fatalf("Synchronize: %v", err)
	}

	want := []State{MigratingAnonymous, Fetching, Computing, Applying, Persisting, Idle}
	if len(states) != len(want) {
		t.Fatalf("states = %v", states)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("state %d = %s, want %s", i, states[i], want[i])
		}
	}
}

func TestSyncManyListsInParallel(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 12; i++ {
		h.newList(user, "list", at(0), "a", "b", "c")
	}

	s := h.syncer(at(10), func(o *Options) { o.Concurrency = 3 })
	res, err := s.Synchronize(h.ctx, user)
	if err != nil {
		t.Fatalf("Synchronize: %v", err)
	}
	if res.Outbound != 12 {
		t.Errorf("outbound = %d", res.Outbound)
	}

	remote := h.remoteLists()
	if len(remote) != 12 {
		t.Fatalf("remote lists = %d", len(remote))
	}
	for _, l := range remote {
		if len(l.Items) != 3 {
			t.Errorf("list %s has %d items", l.RemoteID, len(l.Items))
		}
	}

	// Per list, the list write precedes its item writes.
	seen := map[string]bool{}
	for _, c := range h.remote.Calls() {
		switch c.Op {
		case memstore.OpSaveList:
			seen[c.ListID] = true
		case memstore.OpSaveListItem:
			if !seen[c.ListID] {
				t.Errorf("item written before list %s", c.ListID)
			}
		}
	}
}

func TestWatermarkHelpers(t *testing.T) {
	h := newHarness(t)
	s := h.syncer(0)

	if wm, err := s.LastSyncTime(h.ctx, user); err != nil || wm != 0 {
		t.Fatalf("fresh watermark = %d, %v", wm, err)
	}

	h.local.SaveProfile(h.ctx, user, &models.Profile{Name: "Alice", SyncOnStartup: true})
	if err := s.SetLastSyncTime(h.ctx, user, 99); err != nil {
		t.Fatalf("SetLastSyncTime: %v", err)
	}
	p, _ := h.local.GetProfile(h.ctx, user)
	if p.LastSyncTime != 99 || p.Name != "Alice" || !p.SyncOnStartup {
		t.Errorf("profile = %+v", p)
	}

	if err := s.SetLastSyncTime(h.ctx, "bob", 7); err != nil {
		t.Fatalf("SetLastSyncTime: %v", err)
	}
	if wm, _ := s.LastSyncTime(h.ctx, "bob"); wm != 7 {
		t.Errorf("lazily created profile watermark = %d", wm)
	}
}
