package models

import (
	"errors"
	"sort"
	"strings"
)

// AnonymousUser owns everything created before a user logs in.
const AnonymousUser = "Anonymous"

// ChangeFlag is the explicit dirty marker that drives synchronization.
type ChangeFlag string

const (
	FlagNone    ChangeFlag = ""
	FlagNew     ChangeFlag = "N" // never persisted to the remote store
	FlagChanged ChangeFlag = "C"
	FlagDeleted ChangeFlag = "D" // tombstoned locally, pending propagation
)

// String returns a readable name for the flag
func (f ChangeFlag) String() string {
	switch f {
	case FlagNone:
		return "none"
	case FlagNew:
		return "new"
	case FlagChanged:
		return "changed"
	case FlagDeleted:
		return "deleted"
	default:
		return string(f)
	}
}

// Kind discriminates the entity variants handled by the stores.
type Kind string

const (
	KindList    Kind = "list"
	KindItem    Kind = "item"
	KindProfile Kind = "profile"
)

// ListType represents the kind of list
type ListType string

const (
	ListTypeToDo      ListType = "todo"
	ListTypeShopping  ListType = "shop"
	ListTypeWishlist  ListType = "wish"
	ListTypeChecklist ListType = "check"
)

// ItemStatus represents list item status
type ItemStatus string

const (
	ItemPending ItemStatus = "Pending"
	ItemDone    ItemStatus = "Done"
)

// listSubtypes maps each list type to its allowed subtypes
var listSubtypes = map[ListType][]string{
	ListTypeToDo:      {"personal", "work"},
	ListTypeShopping:  {"groceries", "house"},
	ListTypeWishlist:  {},
	ListTypeChecklist: {"personal", "work"},
}

// ListTypes returns the known list types in display order
func ListTypes() []ListType {
	return []ListType{ListTypeToDo, ListTypeShopping, ListTypeWishlist, ListTypeChecklist}
}

// Subtypes returns the subtypes allowed for a list type
func Subtypes(t ListType) []string {
	return listSubtypes[t]
}

// IsValidListType reports whether t is a known list type. Empty is allowed.
func IsValidListType(t ListType) bool {
	if t == "" {
		return true
	}
	_, ok := listSubtypes[t]
	return ok
}

// SyncMeta is the change-tracking state shared by every syncable entity.
type SyncMeta struct {
	LocalID    int64      `json:"id,omitempty"`
	RemoteID   string     `json:"remote_id,omitempty"`
	ModifiedAt int64      `json:"modified_at"` // epoch millis, set by the mutator
	ChangeFlag ChangeFlag `json:"change_flag,omitempty"`
	OwnerID    string     `json:"owner_id,omitempty"`
}

// Meta returns the entity's sync metadata.
func (m *SyncMeta) Meta() *SyncMeta {
	return m
}

// Syncable is implemented by every entity the sync engine reconciles.
type Syncable interface {
	Meta() *SyncMeta
	Kind() Kind
}

// Record is a Syncable that can produce an independent copy of itself.
type Record[T any] interface {
	Syncable
	Clone() T
}

// List owns an ordered collection of items
type List struct {
	SyncMeta
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Type        ListType    `json:"type,omitempty"`
	Subtype     string      `json:"subtype,omitempty"`
	Priority    float64     `json:"priority"`
	SharedWith  []string    `json:"shared_with,omitempty"`
	Items       []*ListItem `json:"list_items,omitempty"`
}

// Kind implements Syncable
func (l *List) Kind() Kind { return KindList }

// Clone returns a deep copy of the list including its items.
func (l *List) Clone() *List {
	c := *l
	if l.SharedWith != nil {
		c.SharedWith = append([]string(nil), l.SharedWith...)
	}
	if l.Items != nil {
		c.Items = make([]*ListItem, len(l.Items))
		for i, item := range l.Items {
			c.Items[i] = item.Clone()
		}
	}
	return &c
}

// ChildModifiedAt returns the most recent modification across the list's items, 0 if none.
func (l *List) ChildModifiedAt() int64 {
	var latest int64
	for _, item := range l.Items {
		if item.ModifiedAt > latest {
			latest = item.ModifiedAt
		}
	}
	return latest
}

// AddItem attaches an item to the list.
func (l *List) AddItem(item *ListItem) {
	item.ListLocalID = l.LocalID
	item.ListRemoteID = l.RemoteID
	l.Items = append(l.Items, item)
}

// Validate checks structural preconditions before the list is stored
func (l *List) Validate() error {
	if strings.TrimSpace(l.Name) == "" {
		return &ValidationError{Kind: KindList, Msg: "name is required"}
	}
	if !IsValidListType(l.Type) {
		return &ValidationError{Kind: KindList, Msg: "unknown list type " + string(l.Type)}
	}
	return nil
}

// ListItem belongs to exactly one list.
type ListItem struct {
	SyncMeta
	ListLocalID  int64      `json:"list_id,omitempty"`
	ListRemoteID string     `json:"list_remote_id,omitempty"`
	Name         string     `json:"name"`
	Status       ItemStatus `json:"status,omitempty"`
	Notes        string     `json:"notes,omitempty"`
	Priority     float64    `json:"priority"`
}

// Kind implements Syncable
func (i *ListItem) Kind() Kind { return KindItem }

// Clone returns a copy of the item.
func (i *ListItem) Clone() *ListItem {
	c := *i
	return &c
}

// Validate checks structural preconditions before the item is stored
func (i *ListItem) Validate() error {
	if strings.TrimSpace(i.Name) == "" {
		return &ValidationError{Kind: KindItem, Msg: "name is required"}
	}
	if i.ListLocalID == 0 {
		return &ValidationError{Kind: KindItem, Msg: "list item must have a list id"}
	}
	return nil
}

// Profile holds per-user preferences and the sync watermark.
type Profile struct {
	UserID        string `json:"user_id"`
	Name          string `json:"name,omitempty"`
	Email         string `json:"email,omitempty"`
	SyncOnStartup bool   `json:"sync_on_startup"`
	LastSyncTime  int64  `json:"last_sync_time"`
}

// Kind identifies the profile variant
func (p *Profile) Kind() Kind { return KindProfile }

// ErrValidation matches every ValidationError via errors.Is.
var ErrValidation = errors.New("validation failed")

// ValidationError reports an entity that fails a structural precondition.
type ValidationError struct {
	Kind Kind
	Msg  string
}

func (e *ValidationError) Error() string {
	return "invalid " + string(e.Kind) + ": " + e.Msg
}

// Is lets errors.Is(err, ErrValidation) match.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// MarkNew stamps a freshly created entity.
func MarkNew(e Syncable, now int64) {
	m := e.Meta()
	m.ChangeFlag = FlagNew
	m.ModifiedAt = now
}

// MarkChanged stamps a mutation. Entities that never reached the remote store stay new.
func MarkChanged(e Syncable, now int64) {
	m := e.Meta()
	if m.ChangeFlag != FlagNew && m.ChangeFlag != FlagDeleted {
		m.ChangeFlag = FlagChanged
	}
	m.ModifiedAt = now
}

// MarkDeleted tombstones the entity. It returns true when the entity never
// reached the remote store and must be purged instead of transmitted.
func MarkDeleted(e Syncable, now int64) bool {
	m := e.Meta()
	m.ChangeFlag = FlagDeleted
	m.ModifiedAt = now
	return m.RemoteID == ""
}

// ClearChange resets the dirty marker after a successful transmission.
func ClearChange(e Syncable) {
	e.Meta().ChangeFlag = FlagNone
}

// IsDeleted reports whether the entity is tombstoned
func IsDeleted(e Syncable) bool {
	return e.Meta().ChangeFlag == FlagDeleted
}

// SortListsByPriority orders lists by priority, ties broken by name.
func SortListsByPriority(lists []*List) {
	sort.SliceStable(lists, func(i, j int) bool {
		if lists[i].Priority == lists[j].Priority {
			return lists[i].Name < lists[j].Name
		}
		return lists[i].Priority < lists[j].Priority
	})
}

// SortItemsByPriority orders items by priority, ties broken by name.
func SortItemsByPriority(items []*ListItem) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Priority == items[j].Priority {
			return items[i].Name < items[j].Name
		}
		return items[i].Priority < items[j].Priority
	})
}

// VisibleLists drops tombstoned lists and sorts the rest.
func VisibleLists(lists []*List) []*List {
	out := make([]*List, 0, len(lists))
	for _, l := range lists {
		if !IsDeleted(l) {
			out = append(out, l)
		}
	}
	SortListsByPriority(out)
	return out
}

// ItemsByStatus returns the non-deleted items with the given status, sorted.
func ItemsByStatus(items []*ListItem, status ItemStatus) []*ListItem {
	var out []*ListItem
	for _, item := range items {
		if IsDeleted(item) {
			continue
		}
		st := item.Status
		if st == "" {
			st = ItemPending
		}
		if st == status {
			out = append(out, item)
		}
	}
	SortItemsByPriority(out)
	return out
}
