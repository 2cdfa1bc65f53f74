package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/marcus/lists/internal/models"
	"github.com/marcus/lists/internal/store"
)

var _ store.LocalStore = (*DB)(nil)

const listColumns = `id, remote_id, name, description, type, subtype, priority, modified_at, change_flag, owner_id, shared_with`

func scanList(sc interface{ Scan(...any) error }) (*models.List, error) {
	var l models.List
	var shared string
	if err := sc.Scan(&l.LocalID, &l.RemoteID, &l.Name, &l.Description, &l.Type, &l.Subtype,
		&l.Priority, &l.ModifiedAt, &l.ChangeFlag, &l.OwnerID, &shared); err != nil {
		return nil, err
	}
	if shared != "" && shared != "[]" {
		if err := json.Unmarshal([]byte(shared), &l.SharedWith); err != nil {
			return nil, fmt.Errorf("decode shared_with for list %d: %w", l.LocalID, err)
		}
	}
	return &l, nil
}

// GetLists returns every list in userID's partition with nested items,
// tombstones included.
func (db *DB) GetLists(ctx context.Context, userID string) ([]*models.List, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+listColumns+` FROM lists WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, store.Wrap("get lists", err)
	}
	defer rows.Close()

	var lists []*models.List
	byID := make(map[int64]*models.List)
	for rows.Next() {
		l, err := scanList(rows)
		if err != nil {
			return nil, store.Wrap("get lists", err)
		}
		lists = append(lists, l)
		byID[l.LocalID] = l
	}
	if err := rows.Err(); err != nil {
		return nil, store.Wrap("get lists", err)
	}

	items, err := queryItems(ctx, db.conn,
		`SELECT `+itemColumns+` FROM items WHERE list_id IN (SELECT id FROM lists WHERE user_id = ?) ORDER BY id`, userID)
	if err != nil {
		return nil, store.Wrap("get lists", err)
	}
	for _, item := range items {
		if l, ok := byID[item.ListLocalID]; ok {
			item.ListRemoteID = l.RemoteID
			l.Items = append(l.Items, item)
		}
	}
	return lists, nil
}

// GetList returns one list with its items. Lists of other users are not found.
func (db *DB) GetList(ctx context.Context, userID string, listID int64) (*models.List, error) {
	l, err := getList(ctx, db.conn, userID, listID)
	if err != nil {
		return nil, err
	}
	items, err := db.GetListItems(ctx, userID, listID)
	if err != nil {
		return nil, err
	}
	l.Items = items
	return l, nil
}

func getList(ctx context.Context, q querier, userID string, listID int64) (*models.List, error) {
	row := q.QueryRowContext(ctx, `SELECT `+listColumns+` FROM lists WHERE id = ? AND user_id = ?`, listID, userID)
	l, err := scanList(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.NotFound(models.KindList, listID)
	}
	if err != nil {
		return nil, store.Wrap("get list", err)
	}
	return l, nil
}

// FindList resolves a user-supplied reference: a local id, or a list name
// matched case-insensitively. Tombstoned lists are skipped.
func (db *DB) FindList(ctx context.Context, userID, ref string) (*models.List, error) {
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		l, err := db.GetList(ctx, userID, id)
		if err == nil && !models.IsDeleted(l) {
			return l, nil
		}
	}

	lists, err := db.GetLists(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, l := range lists {
		if !models.IsDeleted(l) && strings.EqualFold(l.Name, ref) {
			return l, nil
		}
	}
	return nil, store.NotFound(models.KindList, ref)
}

// SaveList inserts or updates a list and its nested items in one
// transaction. The row moves into userID's partition. Nested tombstones that
// never reached the remote store are purged rather than saved.
func (db *DB) SaveList(ctx context.Context, userID string, list *models.List) error {
	if err := list.Validate(); err != nil {
		return err
	}
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		if err := upsertList(ctx, tx, userID, list); err != nil {
			return err
		}

		kept := make([]*models.ListItem, 0, len(list.Items))
		for _, item := range list.Items {
			item.ListLocalID = list.LocalID
			item.ListRemoteID = list.RemoteID
			if models.IsDeleted(item) && item.RemoteID == "" {
				if item.LocalID != 0 {
					if _, err := tx.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, item.LocalID); err != nil {
						return err
					}
				}
				continue
			}
			if err := item.Validate(); err != nil {
				return err
			}
			if err := upsertItem(ctx, tx, userID, item); err != nil {
				return err
			}
			kept = append(kept, item)
		}
		list.Items = kept
		return nil
	})
	return store.Wrap("save list", err)
}

func upsertList(ctx context.Context, tx *sql.Tx, userID string, l *models.List) error {
	shared := "[]"
	if len(l.SharedWith) > 0 {
		b, err := json.Marshal(l.SharedWith)
		if err != nil {
			return err
		}
		shared = string(b)
	}

	if l.LocalID == 0 && l.RemoteID != "" {
		var id int64
		err := tx.QueryRowContext(ctx, `SELECT id FROM lists WHERE remote_id = ? AND user_id = ?`, l.RemoteID, userID).Scan(&id)
		if err == nil {
			l.LocalID = id
		} else if !errors.Is(err, sql.ErrNoRows) {
			return err
		}
	}

	if l.LocalID != 0 {
		res, err := tx.ExecContext(ctx, `
			UPDATE lists SET remote_id = ?, user_id = ?, name = ?, description = ?, type = ?, subtype = ?,
			       priority = ?, modified_at = ?, change_flag = ?, owner_id = ?, shared_with = ?
			WHERE id = ?`,
			l.RemoteID, userID, l.Name, l.Description, l.Type, l.Subtype,
			l.Priority, l.ModifiedAt, l.ChangeFlag, l.OwnerID, shared, l.LocalID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return nil
		}
	}

	var res sql.Result
	var err error
	if l.LocalID != 0 {
		res, err = tx.ExecContext(ctx, `
			INSERT INTO lists (id, remote_id, user_id, name, description, type, subtype, priority, modified_at, change_flag, owner_id, shared_with)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			l.LocalID, l.RemoteID, userID, l.Name, l.Description, l.Type, l.Subtype,
			l.Priority, l.ModifiedAt, l.ChangeFlag, l.OwnerID, shared)
	} else {
		res, err = tx.ExecContext(ctx, `
			INSERT INTO lists (remote_id, user_id, name, description, type, subtype, priority, modified_at, change_flag, owner_id, shared_with)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			l.RemoteID, userID, l.Name, l.Description, l.Type, l.Subtype,
			l.Priority, l.ModifiedAt, l.ChangeFlag, l.OwnerID, shared)
	}
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	l.LocalID = id
	return nil
}

// DeleteList removes a list and all of its items. Missing lists are ignored.
func (db *DB) DeleteList(ctx context.Context, userID string, listID int64) error {
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM lists WHERE id = ? AND user_id = ?`, listID, userID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM items WHERE list_id = ?`, listID)
		return err
	})
	return store.Wrap("delete list", err)
}
