package sync

import (
	"github.com/marcus/lists/internal/models"
)

// Bucket names one of the six classification outcomes.
type Bucket int

const (
	NewLocal Bucket = iota
	ChangedLocal
	DeletedLocal
	NewServer
	ChangedServer
	DeletedServer
)

// AllBuckets lists every bucket, local-origin first.
var AllBuckets = [...]Bucket{NewLocal, ChangedLocal, DeletedLocal, NewServer, ChangedServer, DeletedServer}

func (b Bucket) String() string {
	switch b {
	case NewLocal:
		return "newLocal"
	case ChangedLocal:
		return "changedLocal"
	case DeletedLocal:
		return "deletedLocal"
	case NewServer:
		return "newServer"
	case ChangedServer:
		return "changedServer"
	case DeletedServer:
		return "deletedServer"
	default:
		return "unknown"
	}
}

// Outbound reports whether entities in b travel local -> remote.
func (b Bucket) Outbound() bool {
	return b <= DeletedLocal
}

// Distribution holds the entities of one kind sorted into buckets.
// Every entry is a copy annotated with both LocalID and RemoteID where known.
type Distribution[T any] struct {
	NewLocal      []T
	ChangedLocal  []T
	DeletedLocal  []T
	NewServer     []T
	ChangedServer []T
	DeletedServer []T
}

func (d *Distribution[T]) slot(b Bucket) *[]T {
	switch b {
	case NewLocal:
		return &d.NewLocal
	case ChangedLocal:
		return &d.ChangedLocal
	case DeletedLocal:
		return &d.DeletedLocal
	case NewServer:
		return &d.NewServer
	case ChangedServer:
		return &d.ChangedServer
	case DeletedServer:
		return &d.DeletedServer
	}
	panic("sync: unknown bucket")
}

// Get returns the contents of bucket b.
func (d *Distribution[T]) Get(b Bucket) []T {
	return *d.slot(b)
}

// Append adds entities to bucket b.
func (d *Distribution[T]) Append(b Bucket, v ...T) {
	s := d.slot(b)
	*s = append(*s, v...)
}

// Merge appends every bucket of o to the matching bucket of d.
func (d *Distribution[T]) Merge(o Distribution[T]) {
	for _, b := range AllBuckets {
		d.Append(b, o.Get(b)...)
	}
}

// Len counts entities across all buckets.
func (d *Distribution[T]) Len() int {
	n := 0
	for _, b := range AllBuckets {
		n += len(d.Get(b))
	}
	return n
}

// Outbound concatenates the local-origin buckets.
func (d *Distribution[T]) Outbound() []T {
	out := make([]T, 0, len(d.NewLocal)+len(d.ChangedLocal)+len(d.DeletedLocal))
	out = append(out, d.NewLocal...)
	out = append(out, d.ChangedLocal...)
	return append(out, d.DeletedLocal...)
}

// Inbound concatenates the server-origin buckets.
func (d *Distribution[T]) Inbound() []T {
	out := make([]T, 0, len(d.NewServer)+len(d.ChangedServer)+len(d.DeletedServer))
	out = append(out, d.NewServer...)
	out = append(out, d.ChangedServer...)
	return append(out, d.DeletedServer...)
}

// effectiveModifiedAt is the time used for eligibility. A local list with no
// change flag of its own is judged by its most recently modified item.
func effectiveModifiedAt(e models.Syncable) int64 {
	if l, ok := e.(*models.List); ok && l.ChangeFlag == models.FlagNone {
		return l.ChildModifiedAt()
	}
	return e.Meta().ModifiedAt
}

// Classify sorts local and remote entities of the same kind into buckets
// relative to watermark. Inputs are never modified.
func Classify[T models.Record[T]](local, remote []T, watermark int64) Distribution[T] {
	var d Distribution[T]

	remoteByID := make(map[string]T, len(remote))
	for _, r := range remote {
		remoteByID[r.Meta().RemoteID] = r
	}
	matched := make(map[string]bool, len(local))

	for _, l := range local {
		lm := l.Meta()
		if lm.RemoteID != "" {
			matched[lm.RemoteID] = true
		}

		switch {
		case lm.ChangeFlag == models.FlagDeleted:
			d.DeletedLocal = append(d.DeletedLocal, l.Clone())

		case lm.RemoteID == "":
			d.NewLocal = append(d.NewLocal, l.Clone())

		default:
			r, ok := remoteByID[lm.RemoteID]
			if !ok {
				// Vanished from the server: deleted there.
				c := l.Clone()
				c.Meta().ChangeFlag = models.FlagDeleted
				d.DeletedServer = append(d.DeletedServer, c)
				continue
			}

			rm := r.Meta()
			localEligible := effectiveModifiedAt(l) >= watermark
			remoteEligible := rm.ModifiedAt >= watermark

			switch {
			case localEligible && remoteEligible:
				if lm.ModifiedAt > rm.ModifiedAt {
					d.ChangedLocal = append(d.ChangedLocal, l.Clone())
				} else {
					d.ChangedServer = append(d.ChangedServer, fromServer(r, lm.LocalID))
				}
			case localEligible:
				d.ChangedLocal = append(d.ChangedLocal, l.Clone())
			case remoteEligible:
				d.ChangedServer = append(d.ChangedServer, fromServer(r, lm.LocalID))
			}
		}
	}

	for _, r := range remote {
		rm := r.Meta()
		if matched[rm.RemoteID] || rm.ModifiedAt < watermark {
			continue
		}
		d.NewServer = append(d.NewServer, fromServer(r, 0))
	}

	return d
}

// fromServer copies a remote entity and points it at its local counterpart.
func fromServer[T models.Record[T]](r T, localID int64) T {
	c := r.Clone()
	m := c.Meta()
	m.LocalID = localID
	m.ChangeFlag = models.FlagNone
	return c
}
