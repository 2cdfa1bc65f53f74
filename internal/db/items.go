package db

import (
	"context"
	"database/sql"
	"errors"

	"github.com/marcus/lists/internal/models"
	"github.com/marcus/lists/internal/store"
)

const itemColumns = `id, list_id, remote_id, name, status, notes, priority, modified_at, change_flag, owner_id`

func queryItems(ctx context.Context, q querier, query string, args ...any) ([]*models.ListItem, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*models.ListItem
	for rows.Next() {
		var it models.ListItem
		if err := rows.Scan(&it.LocalID, &it.ListLocalID, &it.RemoteID, &it.Name, &it.Status, &it.Notes,
			&it.Priority, &it.ModifiedAt, &it.ChangeFlag, &it.OwnerID); err != nil {
			return nil, err
		}
		items = append(items, &it)
	}
	return items, rows.Err()
}

// GetListItems returns the items of one of userID's lists, tombstones included.
func (db *DB) GetListItems(ctx context.Context, userID string, listID int64) ([]*models.ListItem, error) {
	l, err := getList(ctx, db.conn, userID, listID)
	if err != nil {
		return nil, err
	}
	items, err := queryItems(ctx, db.conn, `SELECT `+itemColumns+` FROM items WHERE list_id = ? ORDER BY id`, listID)
	if err != nil {
		return nil, store.Wrap("get list items", err)
	}
	for _, it := range items {
		it.ListRemoteID = l.RemoteID
	}
	return items, nil
}

// GetListItem returns one item if its list belongs to userID.
func (db *DB) GetListItem(ctx context.Context, userID string, itemID int64) (*models.ListItem, error) {
	items, err := queryItems(ctx, db.conn, `
		SELECT i.id, i.list_id, i.remote_id, i.name, i.status, i.notes, i.priority, i.modified_at, i.change_flag, i.owner_id
		FROM items i JOIN lists l ON l.id = i.list_id
		WHERE i.id = ? AND l.user_id = ?`, itemID, userID)
	if err != nil {
		return nil, store.Wrap("get list item", err)
	}
	if len(items) == 0 {
		return nil, store.NotFound(models.KindItem, itemID)
	}
	item := items[0]
	var remoteID string
	if err := db.conn.QueryRowContext(ctx, `SELECT remote_id FROM lists WHERE id = ?`, item.ListLocalID).Scan(&remoteID); err == nil {
		item.ListRemoteID = remoteID
	}
	return item, nil
}

// SaveListItem inserts or updates one item. Its list must belong to userID.
func (db *DB) SaveListItem(ctx context.Context, userID string, item *models.ListItem) error {
	if err := item.Validate(); err != nil {
		return err
	}
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		parent, err := getList(ctx, tx, userID, item.ListLocalID)
		if err != nil {
			return err
		}
		item.ListRemoteID = parent.RemoteID
		return upsertItem(ctx, tx, userID, item)
	})
	return store.Wrap("save list item", err)
}

func upsertItem(ctx context.Context, tx *sql.Tx, userID string, it *models.ListItem) error {
	if it.Status == "" {
		it.Status = models.ItemPending
	}

	if it.LocalID == 0 && it.RemoteID != "" {
		var id int64
		err := tx.QueryRowContext(ctx, `SELECT id FROM items WHERE remote_id = ? AND list_id = ?`, it.RemoteID, it.ListLocalID).Scan(&id)
		if err == nil {
			it.LocalID = id
		} else if !errors.Is(err, sql.ErrNoRows) {
			return err
		}
	}

	if it.LocalID != 0 {
		res, err := tx.ExecContext(ctx, `
			UPDATE items SET list_id = ?, remote_id = ?, user_id = ?, name = ?, status = ?, notes = ?,
			       priority = ?, modified_at = ?, change_flag = ?, owner_id = ?
			WHERE id = ?`,
			it.ListLocalID, it.RemoteID, userID, it.Name, it.Status, it.Notes,
			it.Priority, it.ModifiedAt, it.ChangeFlag, it.OwnerID, it.LocalID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return nil
		}
	}

	args := []any{it.ListLocalID, it.RemoteID, userID, it.Name, it.Status, it.Notes,
		it.Priority, it.ModifiedAt, it.ChangeFlag, it.OwnerID}
	query := `INSERT INTO items (list_id, remote_id, user_id, name, status, notes, priority, modified_at, change_flag, owner_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if it.LocalID != 0 {
		args = append([]any{it.LocalID}, args...)
		query = `INSERT INTO items (id, list_id, remote_id, user_id, name, status, notes, priority, modified_at, change_flag, owner_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	it.LocalID = id
	return nil
}

// DeleteListItem removes one item. A zero listID matches any list.
// Missing items are ignored.
func (db *DB) DeleteListItem(ctx context.Context, userID string, listID, itemID int64) error {
	err := db.withWriteLock(func() error {
		_, err := db.conn.ExecContext(ctx, `
			DELETE FROM items
			WHERE id = ? AND (? = 0 OR list_id = ?)
			  AND list_id IN (SELECT id FROM lists WHERE user_id = ?)`,
			itemID, listID, listID, userID)
		return err
	})
	return store.Wrap("delete list item", err)
}
