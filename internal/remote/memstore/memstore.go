// Package memstore is an in-process RemoteStore. It keeps the same
// user/list/item hierarchy as the DynamoDB store and records every write so
// callers can assert on ordering.
package memstore

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/marcus/lists/internal/models"
	"github.com/marcus/lists/internal/store"
)

// Op names a recorded write.
type Op string

const (
	OpSaveList       Op = "SaveList"
	OpSaveListItem   Op = "SaveListItem"
	OpDeleteList     Op = "DeleteList"
	OpDeleteListItem Op = "DeleteListItem"
)

// Call is one recorded write.
type Call struct {
	Op     Op
	UserID string
	ListID string
	ItemID string
	Name   string
}

type listDoc struct {
	list  *models.List
	items map[string]*models.ListItem
	order []string
}

// Store is safe for concurrent use.
type Store struct {
	mu    sync.Mutex
	users map[string]map[string]*listDoc
	order map[string][]string
	calls []Call
	fail  map[Op]error
}

// New returns an empty store.
func New() *Store {
	return &Store{
		users: make(map[string]map[string]*listDoc),
		order: make(map[string][]string),
		fail:  make(map[Op]error),
	}
}

// FailOn makes every later call of op return err. A nil err clears it.
func (s *Store) FailOn(op Op, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fail, op)
		return
	}
	s.fail[op] = err
}

// Calls returns the writes recorded so far, oldest first.
func (s *Store) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.calls)
}

// ResetCalls clears the call log.
func (s *Store) ResetCalls() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

func (s *Store) record(c Call) error {
	s.calls = append(s.calls, c)
	if err := s.fail[c.Op]; err != nil {
		return &store.StorageError{Op: string(c.Op), Err: err}
	}
	return nil
}

func (s *Store) docs(userID string) map[string]*listDoc {
	m, ok := s.users[userID]
	if !ok {
		m = make(map[string]*listDoc)
		s.users[userID] = m
	}
	return m
}

func (d *listDoc) snapshot() *models.List {
	l := d.list.Clone()
	l.Items = make([]*models.ListItem, 0, len(d.order))
	for _, id := range d.order {
		l.Items = append(l.Items, d.items[id].Clone())
	}
	return l
}

// GetLists returns the user's lists with their items, in creation order.
func (s *Store) GetLists(ctx context.Context, userID string) ([]*models.List, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs := s.users[userID]
	lists := make([]*models.List, 0, len(docs))
	for _, id := range s.order[userID] {
		if d, ok := docs[id]; ok {
			lists = append(lists, d.snapshot())
		}
	}
	return lists, nil
}

// SaveList upserts the list record without its items.
func (s *Store) SaveList(ctx context.Context, userID string, list *models.List) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := list.RemoteID
	if id == "" {
		id = uuid.NewString()
	}
	if err := s.record(Call{Op: OpSaveList, UserID: userID, ListID: id, Name: list.Name}); err != nil {
		return "", err
	}

	c := list.Clone()
	c.Items = nil
	c.LocalID = 0
	c.RemoteID = id
	c.ChangeFlag = models.FlagNone

	docs := s.docs(userID)
	if d, ok := docs[id]; ok {
		d.list = c
		return id, nil
	}
	docs[id] = &listDoc{list: c, items: make(map[string]*models.ListItem)}
	s.order[userID] = append(s.order[userID], id)
	return id, nil
}

// SaveListItem upserts an item under an existing list.
func (s *Store) SaveListItem(ctx context.Context, userID, listRemoteID string, item *models.ListItem) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := item.RemoteID
	if id == "" {
		id = uuid.NewString()
	}
	if err := s.record(Call{Op: OpSaveListItem, UserID: userID, ListID: listRemoteID, ItemID: id, Name: item.Name}); err != nil {
		return "", err
	}

	d, ok := s.users[userID][listRemoteID]
	if !ok {
		return "", store.NotFound(models.KindList, listRemoteID)
	}

	c := item.Clone()
	c.LocalID = 0
	c.ListLocalID = 0
	c.RemoteID = id
	c.ListRemoteID = listRemoteID
	c.ChangeFlag = models.FlagNone
	if _, exists := d.items[id]; !exists {
		d.order = append(d.order, id)
	}
	d.items[id] = c
	return id, nil
}

// DeleteList removes the list and its items. Missing lists are ignored.
func (s *Store) DeleteList(ctx context.Context, userID, listRemoteID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.record(Call{Op: OpDeleteList, UserID: userID, ListID: listRemoteID}); err != nil {
		return err
	}
	delete(s.users[userID], listRemoteID)
	s.order[userID] = slices.DeleteFunc(s.order[userID], func(id string) bool { return id == listRemoteID })
	return nil
}

// DeleteListItem removes one item. Missing items are ignored.
func (s *Store) DeleteListItem(ctx context.Context, userID, listRemoteID, itemRemoteID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.record(Call{Op: OpDeleteListItem, UserID: userID, ListID: listRemoteID, ItemID: itemRemoteID}); err != nil {
		return err
	}
	d, ok := s.users[userID][listRemoteID]
	if !ok {
		return nil
	}
	delete(d.items, itemRemoteID)
	d.order = slices.DeleteFunc(d.order, func(id string) bool { return id == itemRemoteID })
	return nil
}

// GetSharedLists returns lists owned by other users that name userID in SharedWith.
func (s *Store) GetSharedLists(ctx context.Context, userID string) ([]*models.List, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var lists []*models.List
	owners := make([]string, 0, len(s.order))
	for owner := range s.order {
		owners = append(owners, owner)
	}
	slices.Sort(owners)
	for _, owner := range owners {
		if owner == userID {
			continue
		}
		for _, id := range s.order[owner] {
			d := s.users[owner][id]
			if d != nil && slices.Contains(d.list.SharedWith, userID) {
				lists = append(lists, d.snapshot())
			}
		}
	}
	return lists, nil
}
