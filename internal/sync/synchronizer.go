package sync

import (
	"context"
	"log/slog"
	"time"

	"github.com/marcus/lists/internal/models"
	"github.com/marcus/lists/internal/store"
)

// DefaultConcurrency bounds how many lists are applied at once.
const DefaultConcurrency = 4

// Options configures a Synchronizer.
type Options struct {
	// Concurrency bounds parallel per-list apply. Zero means DefaultConcurrency.
	Concurrency int
	// Now is the clock; the run's start time becomes the new watermark.
	Now func() time.Time
	// OnState, if set, is called on every state transition.
	OnState func(State)
	Logger  *slog.Logger
}

// Synchronizer drives sync runs between a local and a remote store.
// Callers must not run two Synchronize calls for the same user at once.
type Synchronizer struct {
	local  store.LocalStore
	remote store.RemoteStore
	opts   Options
	log    *slog.Logger
}

// Result summarises a run.
type Result struct {
	// Watermark is the newly persisted sync time, 0 when nothing changed.
	Watermark int64 `json:"watermark"`
	Migrated  int   `json:"migrated"`
	Lists     int   `json:"lists"`
	Items     int   `json:"items"`
	Outbound  int   `json:"outbound"`
	Inbound   int   `json:"inbound"`
}

// Changed reports whether the run moved anything.
func (r Result) Changed() bool {
	return r.Watermark != 0
}

// New creates a Synchronizer over the given stores.
func New(local store.LocalStore, remote store.RemoteStore, opts Options) *Synchronizer {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Synchronizer{local: local, remote: remote, opts: opts, log: log}
}

func (s *Synchronizer) setState(st State) {
	s.log.Debug("sync: state", "state", st)
	if s.opts.OnState != nil {
		s.opts.OnState(st)
	}
}

func (s *Synchronizer) applier(userID string) *applier {
	return &applier{
		local:  s.local,
		remote: s.remote,
		userID: userID,
		limit:  s.opts.Concurrency,
		log:    s.log,
	}
}

// Synchronize runs one full reconciliation for userID. Any failure aborts
// the run and is returned as a *SyncError; the watermark is left untouched.
func (s *Synchronizer) Synchronize(ctx context.Context, userID string) (Result, error) {
	var res Result
	defer s.setState(Idle)

	if userID == "" || userID == models.AnonymousUser {
		return res, &SyncError{Stage: Idle, Err: ErrNoUser}
	}

	started := s.opts.Now().UnixMilli()

	s.setState(MigratingAnonymous)
	migrated, err := s.MigrateAnonymous(ctx, userID)
	if err != nil {
		return res, &SyncError{Stage: MigratingAnonymous, Err: err}
	}
	res.Migrated = migrated

	s.setState(Fetching)
	watermark, err := s.LastSyncTime(ctx, userID)
	if err != nil {
		return res, &SyncError{Stage: Fetching, Err: err}
	}
	local, err := s.local.GetLists(ctx, userID)
	if err != nil {
		return res, &SyncError{Stage: Fetching, Err: err}
	}
	remote, err := s.remote.GetLists(ctx, userID)
	if err != nil {
		return res, &SyncError{Stage: Fetching, Err: err}
	}
	s.log.Debug("sync: fetched", "user", userID, "local", len(local), "remote", len(remote), "watermark", watermark)

	s.setState(Computing)
	computed, err := ComputeListsToSync(local, remote, watermark)
	if err != nil {
		return res, &SyncError{Stage: Computing, Err: err}
	}
	res.Lists = computed.Lists.Len()
	res.Items = computed.Items.Len()

	s.setState(Applying)
	stats, err := s.applier(userID).apply(ctx, &computed)
	if err != nil {
		return res, &SyncError{Stage: Applying, Err: err}
	}
	res.Outbound = stats.outbound
	res.Inbound = stats.inbound

	s.setState(Persisting)
	// Counts classified entities, not snapshot sizes: an unchanged replica keeps its watermark.
	if migrated+computed.Len() > 0 {
		if err := s.SetLastSyncTime(ctx, userID, started); err != nil {
			return res, &SyncError{Stage: Persisting, Err: err}
		}
		res.Watermark = started
	}

	s.log.Info("sync: complete", "user", userID, "migrated", migrated, "lists", res.Lists, "items", res.Items)
	return res, nil
}
