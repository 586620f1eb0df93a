package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/MariuszDW/BuyBuy-sub001/internal/model"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DeletePolicy decides what happens to the items of a deleted list.
type DeletePolicy int

const (
	// SoftDeleteItems moves the items to the trash by clearing their list.
	SoftDeleteItems DeletePolicy = iota
	// CascadeItems deletes the items together with the list.
	CascadeItems
)

func (p DeletePolicy) String() string {
	if p == CascadeItems {
		return "cascade"
	}
	return "soft-delete"
}

// DefaultRetention is how long trashed items are kept by default.
const DefaultRetention = 30 * 24 * time.Hour

// Change describes a committed mutation.
type Change struct {
	Entity   string   `json:"entity"`
	Action   string   `json:"action"`
	ID       string   `json:"id,omitempty"`
	ListID   string   `json:"list_id,omitempty"`
	ImageIDs []string `json:"image_ids,omitempty"`
}

// Notifier receives changes after they are committed.
type Notifier interface {
	Notify(Change)
}

// CleanResult reports what a trash sweep removed. ImageIDs are the
// attachment handles no longer referenced by any item.
type CleanResult struct {
	Removed  int
	ImageIDs []string
}

// ShoppingStore is the repository for lists and items. Reads go straight to
// the engine; every write goes through the serializer.
type ShoppingStore struct {
	engine   *Engine
	writer   *Serializer
	notifier Notifier
	now      func() time.Time
}

type ShoppingOption func(*ShoppingStore)

func WithNotifier(n Notifier) ShoppingOption {
	return func(s *ShoppingStore) { s.notifier = n }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) ShoppingOption {
	return func(s *ShoppingStore) { s.now = now }
}

func NewShoppingStore(engine *Engine, writer *Serializer, opts ...ShoppingOption) *ShoppingStore {
	s := &ShoppingStore{
		engine: engine,
		writer: writer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ShoppingStore) timestamp() time.Time {
	return s.now().UTC()
}

func (s *ShoppingStore) publish(changes []Change) {
	if s.notifier == nil {
		return
	}
	for _, c := range changes {
		s.notifier.Notify(c)
	}
}

// --- List methods ---

type rowScanner interface{ Scan(...any) error }

func scanList(scanner rowScanner) (*model.ShoppingList, error) {
	var l model.ShoppingList
	var note sql.NullString
	var color string
	err := scanner.Scan(&l.ID, &l.Name, &note, &l.SortOrder, &color, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if note.Valid {
		l.Note = &note.String
	}
	l.Color = model.ParseListColor(color)
	return &l, nil
}

const listCols = `id, name, note, sort_order, color, created_at, updated_at`

func (s *ShoppingStore) FetchAllLists(ctx context.Context) ([]model.ShoppingList, error) {
	rows, err := s.engine.Read().QueryContext(ctx,
		`SELECT `+listCols+` FROM shopping_lists ORDER BY sort_order ASC, created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("fetch lists: %w", classify("query", err))
	}
	defer rows.Close()

	var lists []model.ShoppingList
	for rows.Next() {
		l, err := scanList(rows)
		if err != nil {
			return nil, fmt.Errorf("scan list: %w", err)
		}
		lists = append(lists, *l)
	}
	return lists, rows.Err()
}

// FetchList returns nil, nil when no list has the given id.
func (s *ShoppingStore) FetchList(ctx context.Context, id string) (*model.ShoppingList, error) {
	return getList(ctx, s.engine.Read(), id)
}

func getList(ctx context.Context, q ReadContext, id string) (*model.ShoppingList, error) {
	row := q.QueryRowContext(ctx, `SELECT `+listCols+` FROM shopping_lists WHERE id = ?`, id)
	l, err := scanList(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get list: %w", classify("query", err))
	}
	return l, nil
}

func listExists(ctx context.Context, q ReadContext, id string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM shopping_lists WHERE id = ?`, id).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check list: %w", classify("query", err))
	}
	return n > 0, nil
}

func validateList(l *model.ShoppingList) error {
	l.Name = strings.TrimSpace(l.Name)
	if l.Name == "" {
		return model.Invalid("name", "list name must not be empty")
	}
	l.Color = model.ParseListColor(string(l.Color))
	return nil
}

// AddList inserts list and returns it as stored. An empty ID is replaced by
// a new UUID.
func (s *ShoppingStore) AddList(ctx context.Context, list model.ShoppingList) (*model.ShoppingList, error) {
	if err := validateList(&list); err != nil {
		return nil, err
	}
	if list.ID == "" {
		list.ID = uuid.NewString()
	}
	now := s.timestamp()
	list.CreatedAt = now
	list.UpdatedAt = now

	err := s.writer.PerformSave(ctx, func(ctx context.Context, wc *WriteContext) error {
		exists, err := listExists(ctx, wc, list.ID)
		if err != nil {
			return err
		}
		if exists {
			return model.Invalid("id", fmt.Sprintf("list %q already exists", list.ID))
		}
		_, err = wc.ExecContext(ctx,
			`INSERT INTO shopping_lists (`+listCols+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			list.ID, list.Name, list.Note, list.SortOrder, string(list.Color), list.CreatedAt, list.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert list: %w", classify("exec", err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish([]Change{{Entity: "list", Action: "created", ID: list.ID}})
	return &list, nil
}

// UpdateList overwrites every stored field of the list except CreatedAt.
func (s *ShoppingStore) UpdateList(ctx context.Context, list model.ShoppingList) (*model.ShoppingList, error) {
	if err := validateList(&list); err != nil {
		return nil, err
	}
	list.UpdatedAt = s.timestamp()

	err := s.writer.PerformSave(ctx, func(ctx context.Context, wc *WriteContext) error {
		current, err := getList(ctx, wc, list.ID)
		if err != nil {
			return err
		}
		if current == nil {
			return model.NotFound("list", list.ID)
		}
		list.CreatedAt = current.CreatedAt

		_, err = wc.ExecContext(ctx,
			`UPDATE shopping_lists SET name = ?, note = ?, sort_order = ?, color = ?, updated_at = ? WHERE id = ?`,
			list.Name, list.Note, list.SortOrder, string(list.Color), list.UpdatedAt, list.ID,
		)
		if err != nil {
			return fmt.Errorf("update list: %w", classify("exec", err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish([]Change{{Entity: "list", Action: "updated", ID: list.ID}})
	return &list, nil
}

// DeleteList removes the list. Its items are trashed or deleted according
// to policy. Deleting a missing list is a no-op.
func (s *ShoppingStore) DeleteList(ctx context.Context, id string, policy DeletePolicy) error {
	return s.DeleteLists(ctx, []string{id}, policy)
}

// DeleteLists deletes every listed list in a single write. The same policy
// applies to all of them and missing ids are skipped.
func (s *ShoppingStore) DeleteLists(ctx context.Context, ids []string, policy DeletePolicy) error {
	if len(ids) == 0 {
		return nil
	}

	var changes []Change
	err := s.writer.PerformSave(ctx, func(ctx context.Context, wc *WriteContext) error {
		changes = changes[:0]
		now := s.timestamp()
		for _, id := range ids {
			exists, err := listExists(ctx, wc, id)
			if err != nil {
				return err
			}
			if !exists {
				continue
			}

			change := Change{Entity: "list", Action: "deleted", ID: id}
			switch policy {
			case CascadeItems:
				images, err := imageIDsWhere(ctx, wc, `list_id = ?`, id)
				if err != nil {
					return err
				}
				if _, err := wc.ExecContext(ctx, `DELETE FROM shopping_items WHERE list_id = ?`, id); err != nil {
					return fmt.Errorf("delete items: %w", classify("exec", err))
				}
				if change.ImageIDs, err = unreferencedImages(ctx, wc, images); err != nil {
					return err
				}
			default:
				if _, err := wc.ExecContext(ctx,
					`UPDATE shopping_items SET list_id = NULL, deleted_at = ?, updated_at = ? WHERE list_id = ?`,
					now, now, id,
				); err != nil {
					return fmt.Errorf("trash items: %w", classify("exec", err))
				}
			}

			if _, err := wc.ExecContext(ctx, `DELETE FROM shopping_lists WHERE id = ?`, id); err != nil {
				return fmt.Errorf("delete list: %w", classify("exec", err))
			}
			changes = append(changes, change)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.publish(changes)
	return nil
}

// ReorderLists sets sort_order to each list's position in ids.
func (s *ShoppingStore) ReorderLists(ctx context.Context, ids []string) error {
	err := s.writer.PerformSave(ctx, func(ctx context.Context, wc *WriteContext) error {
		now := s.timestamp()
		for i, id := range ids {
			if _, err := wc.ExecContext(ctx,
				`UPDATE shopping_lists SET sort_order = ?, updated_at = ? WHERE id = ?`, i, now, id,
			); err != nil {
				return fmt.Errorf("update list sort order: %w", classify("exec", err))
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.publish([]Change{{Entity: "list", Action: "reordered"}})
	return nil
}

// --- Item methods ---

func scanItem(scanner rowScanner) (*model.ShoppingItem, error) {
	var item model.ShoppingItem
	var listID, unit sql.NullString
	var quantity, unitPrice decimal.NullDecimal
	var imageIDs string
	var deletedAt sql.NullTime
	var status string

	err := scanner.Scan(
		&item.ID, &listID, &item.Name, &item.Note, &status, &quantity, &unit,
		&unitPrice, &item.SortOrder, &imageIDs, &item.CreatedAt, &item.UpdatedAt, &deletedAt,
	)
	if err != nil {
		return nil, err
	}

	item.Status = model.ItemStatus(status)
	if listID.Valid {
		item.ListID = &listID.String
	}
	if quantity.Valid {
		item.Quantity = &quantity.Decimal
	}
	if unit.Valid {
		u := model.ItemUnit(unit.String)
		item.Unit = &u
	}
	if unitPrice.Valid {
		item.UnitPrice = &unitPrice.Decimal
	}
	if deletedAt.Valid {
		item.DeletedAt = &deletedAt.Time
	}
	item.ImageIDs, err = decodeImageIDs(imageIDs)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

const itemCols = `id, list_id, name, note, status, quantity, unit, unit_price, sort_order, image_ids, created_at, updated_at, deleted_at`

const statusRank = `CASE status WHEN 'pending' THEN 0 WHEN 'purchased' THEN 1 ELSE 2 END`

func decodeImageIDs(raw string) ([]string, error) {
	ids := []string{}
	if raw == "" {
		return ids, nil
	}
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, fmt.Errorf("decode image ids: %w", err)
	}
	return ids, nil
}

func encodeImageIDs(ids []string) (string, error) {
	if ids == nil {
		ids = []string{}
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return "", fmt.Errorf("encode image ids: %w", err)
	}
	return string(data), nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func nullUnit(u *model.ItemUnit) sql.NullString {
	if u == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*u), Valid: true}
}

func queryItems(ctx context.Context, q ReadContext, where string, args ...any) ([]model.ShoppingItem, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+itemCols+` FROM shopping_items WHERE `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", classify("query", err))
	}
	defer rows.Close()

	items := []model.ShoppingItem{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

func getItem(ctx context.Context, q ReadContext, id string) (*model.ShoppingItem, error) {
	row := q.QueryRowContext(ctx, `SELECT `+itemCols+` FROM shopping_items WHERE id = ?`, id)
	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", classify("query", err))
	}
	return item, nil
}

func imageIDsWhere(ctx context.Context, q ReadContext, where string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT image_ids FROM shopping_items WHERE `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("query image ids: %w", classify("query", err))
	}
	defer rows.Close()

	var all []string
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan image ids: %w", err)
		}
		ids, err := decodeImageIDs(raw)
		if err != nil {
			return nil, err
		}
		all = append(all, ids...)
	}
	return all, rows.Err()
}

// unreferencedImages narrows candidates to the handles no remaining item
// refers to, without duplicates. It must run after the deletes, inside the
// same write.
func unreferencedImages(ctx context.Context, wc *WriteContext, candidates []string) ([]string, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	remaining, err := imageIDsWhere(ctx, wc, `image_ids <> '[]'`)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(remaining)+len(candidates))
	for _, id := range remaining {
		seen[id] = true
	}
	var released []string
	for _, id := range candidates {
		if seen[id] {
			continue
		}
		seen[id] = true
		released = append(released, id)
	}
	return released, nil
}

// FetchItems returns the items of a list, pending first, then purchased,
// then inactive, each section by sort order.
func (s *ShoppingStore) FetchItems(ctx context.Context, listID string) ([]model.ShoppingItem, error) {
	items, err := queryItems(ctx, s.engine.Read(),
		`list_id = ? ORDER BY `+statusRank+` ASC, sort_order ASC, created_at ASC`, listID)
	if err != nil {
		return nil, fmt.Errorf("fetch items: %w", err)
	}
	return items, nil
}

// FetchItem returns nil, nil when no item has the given id.
func (s *ShoppingStore) FetchItem(ctx context.Context, id string) (*model.ShoppingItem, error) {
	return getItem(ctx, s.engine.Read(), id)
}

// FetchDeletedItems returns the trash, most recently deleted first.
func (s *ShoppingStore) FetchDeletedItems(ctx context.Context) ([]model.ShoppingItem, error) {
	items, err := queryItems(ctx, s.engine.Read(), `list_id IS NULL`)
	if err != nil {
		return nil, fmt.Errorf("fetch deleted items: %w", err)
	}
	sort.SliceStable(items, func(i, j int) bool {
		return trashedAt(&items[i]).After(trashedAt(&items[j]))
	})
	return items, nil
}

func trashedAt(item *model.ShoppingItem) time.Time {
	if item.DeletedAt != nil {
		return *item.DeletedAt
	}
	return item.UpdatedAt
}

func validateItem(item *model.ShoppingItem) error {
	item.Name = strings.TrimSpace(item.Name)
	if item.Name == "" {
		return model.Invalid("name", "item name must not be empty")
	}
	if item.Status == "" {
		item.Status = model.ItemStatusPending
	}
	if !item.Status.Valid() {
		return model.Invalid("status", fmt.Sprintf("unknown status %q", item.Status))
	}
	if item.Unit != nil && !item.Unit.Valid() {
		return model.Invalid("unit", fmt.Sprintf("unknown unit %q", *item.Unit))
	}
	if item.ImageIDs == nil {
		item.ImageIDs = []string{}
	}
	return nil
}

// AddItem inserts item into its owning list. It fails with a
// *model.NotFoundError when that list does not exist.
func (s *ShoppingStore) AddItem(ctx context.Context, item model.ShoppingItem) (*model.ShoppingItem, error) {
	if err := validateItem(&item); err != nil {
		return nil, err
	}
	if item.ListID == nil {
		return nil, model.Invalid("list_id", "a new item needs an owning list")
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := s.timestamp()
	item.CreatedAt = now
	item.UpdatedAt = now
	item.DeletedAt = nil

	images, err := encodeImageIDs(item.ImageIDs)
	if err != nil {
		return nil, err
	}

	err = s.writer.PerformSave(ctx, func(ctx context.Context, wc *WriteContext) error {
		exists, err := listExists(ctx, wc, *item.ListID)
		if err != nil {
			return err
		}
		if !exists {
			return model.NotFound("list", *item.ListID)
		}

		current, err := getItem(ctx, wc, item.ID)
		if err != nil {
			return err
		}
		if current != nil {
			return model.Invalid("id", fmt.Sprintf("item %q already exists", item.ID))
		}

		_, err = wc.ExecContext(ctx,
			`INSERT INTO shopping_items (`+itemCols+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			item.ID, *item.ListID, item.Name, item.Note, string(item.Status),
			nullDecimal(item.Quantity), nullUnit(item.Unit), nullDecimal(item.UnitPrice),
			item.SortOrder, images, item.CreatedAt, item.UpdatedAt, nil,
		)
		if err != nil {
			return fmt.Errorf("insert item: %w", classify("exec", err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish([]Change{{Entity: "item", Action: "created", ID: item.ID, ListID: *item.ListID}})
	return &item, nil
}

// UpdateItem overwrites the stored item. A changed ListID re-parents the
// item after checking the new list exists; a nil ListID moves it to the
// trash.
func (s *ShoppingStore) UpdateItem(ctx context.Context, item model.ShoppingItem) (*model.ShoppingItem, error) {
	if err := validateItem(&item); err != nil {
		return nil, err
	}
	images, err := encodeImageIDs(item.ImageIDs)
	if err != nil {
		return nil, err
	}
	now := s.timestamp()
	item.UpdatedAt = now

	var change Change
	err = s.writer.PerformSave(ctx, func(ctx context.Context, wc *WriteContext) error {
		current, err := getItem(ctx, wc, item.ID)
		if err != nil {
			return err
		}
		if current == nil {
			return model.NotFound("item", item.ID)
		}
		item.CreatedAt = current.CreatedAt
		change = Change{Entity: "item", Action: "updated", ID: item.ID}

		switch {
		case item.ListID == nil:
			item.DeletedAt = current.DeletedAt
			if current.ListID != nil {
				item.DeletedAt = &now
				change.Action = "trashed"
				change.ListID = *current.ListID
			}
		default:
			if current.ListID == nil || *current.ListID != *item.ListID {
				exists, err := listExists(ctx, wc, *item.ListID)
				if err != nil {
					return err
				}
				if !exists {
					return model.NotFound("list", *item.ListID)
				}
				change.Action = "moved"
			}
			item.DeletedAt = nil
			change.ListID = *item.ListID
		}

		var listID sql.NullString
		if item.ListID != nil {
			listID = sql.NullString{String: *item.ListID, Valid: true}
		}
		_, err = wc.ExecContext(ctx,
			`UPDATE shopping_items SET list_id = ?, name = ?, note = ?, status = ?, quantity = ?, unit = ?,
			 unit_price = ?, sort_order = ?, image_ids = ?, updated_at = ?, deleted_at = ? WHERE id = ?`,
			listID, item.Name, item.Note, string(item.Status), nullDecimal(item.Quantity),
			nullUnit(item.Unit), nullDecimal(item.UnitPrice), item.SortOrder, images,
			item.UpdatedAt, item.DeletedAt, item.ID,
		)
		if err != nil {
			return fmt.Errorf("update item: %w", classify("exec", err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish([]Change{change})
	return &item, nil
}

// DeleteItem permanently removes the item. Deleting a missing item is a
// no-op.
func (s *ShoppingStore) DeleteItem(ctx context.Context, id string) error {
	var deleted *model.ShoppingItem
	err := s.writer.PerformSave(ctx, func(ctx context.Context, wc *WriteContext) error {
		current, err := getItem(ctx, wc, id)
		if err != nil || current == nil {
			return err
		}
		if _, err := wc.ExecContext(ctx, `DELETE FROM shopping_items WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete item: %w", classify("exec", err))
		}
		if current.ImageIDs, err = unreferencedImages(ctx, wc, current.ImageIDs); err != nil {
			return err
		}
		deleted = current
		return nil
	})
	if err != nil {
		return err
	}

	if deleted != nil {
		change := Change{Entity: "item", Action: "deleted", ID: id, ImageIDs: deleted.ImageIDs}
		if deleted.ListID != nil {
			change.ListID = *deleted.ListID
		}
		s.publish([]Change{change})
	}
	return nil
}

// SoftDeleteItem moves the item to the trash. Trashing an item that is
// already there is a no-op.
func (s *ShoppingStore) SoftDeleteItem(ctx context.Context, id string) error {
	var listID string
	err := s.writer.PerformSave(ctx, func(ctx context.Context, wc *WriteContext) error {
		current, err := getItem(ctx, wc, id)
		if err != nil {
			return err
		}
		if current == nil {
			return model.NotFound("item", id)
		}
		if current.ListID == nil {
			return nil
		}
		listID = *current.ListID

		now := s.timestamp()
		if _, err := wc.ExecContext(ctx,
			`UPDATE shopping_items SET list_id = NULL, deleted_at = ?, updated_at = ? WHERE id = ?`,
			now, now, id,
		); err != nil {
			return fmt.Errorf("trash item: %w", classify("exec", err))
		}
		return nil
	})
	if err != nil {
		return err
	}

	if listID != "" {
		s.publish([]Change{{Entity: "item", Action: "trashed", ID: id, ListID: listID}})
	}
	return nil
}

// RestoreItem takes the item out of the trash and attaches it to listID.
func (s *ShoppingStore) RestoreItem(ctx context.Context, id, listID string) error {
	err := s.writer.PerformSave(ctx, func(ctx context.Context, wc *WriteContext) error {
		current, err := getItem(ctx, wc, id)
		if err != nil {
			return err
		}
		if current == nil {
			return model.NotFound("item", id)
		}
		exists, err := listExists(ctx, wc, listID)
		if err != nil {
			return err
		}
		if !exists {
			return model.NotFound("list", listID)
		}

		if _, err := wc.ExecContext(ctx,
			`UPDATE shopping_items SET list_id = ?, deleted_at = NULL, updated_at = ? WHERE id = ?`,
			listID, s.timestamp(), id,
		); err != nil {
			return fmt.Errorf("restore item: %w", classify("exec", err))
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.publish([]Change{{Entity: "item", Action: "restored", ID: id, ListID: listID}})
	return nil
}

// ReorderItems sets sort_order of the list's items to their position in ids.
// Ids that do not belong to the list are ignored.
func (s *ShoppingStore) ReorderItems(ctx context.Context, listID string, ids []string) error {
	err := s.writer.PerformSave(ctx, func(ctx context.Context, wc *WriteContext) error {
		now := s.timestamp()
		for i, id := range ids {
			if _, err := wc.ExecContext(ctx,
				`UPDATE shopping_items SET sort_order = ?, updated_at = ? WHERE id = ? AND list_id = ?`,
				i, now, id, listID,
			); err != nil {
				return fmt.Errorf("update item sort order: %w", classify("exec", err))
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.publish([]Change{{Entity: "item", Action: "reordered", ListID: listID}})
	return nil
}

// CleanOrphanedItems permanently removes trashed items deleted more than
// retention ago. A retention of zero empties the trash.
func (s *ShoppingStore) CleanOrphanedItems(ctx context.Context, retention time.Duration) (CleanResult, error) {
	var result CleanResult
	err := s.writer.PerformSave(ctx, func(ctx context.Context, wc *WriteContext) error {
		result = CleanResult{}
		trash, err := queryItems(ctx, wc, `list_id IS NULL`)
		if err != nil {
			return err
		}

		cutoff := s.timestamp().Add(-retention)
		for i := range trash {
			item := &trash[i]
			if trashedAt(item).After(cutoff) {
				continue
			}
			if _, err := wc.ExecContext(ctx, `DELETE FROM shopping_items WHERE id = ?`, item.ID); err != nil {
				return fmt.Errorf("purge item: %w", classify("exec", err))
			}
			result.Removed++
			result.ImageIDs = append(result.ImageIDs, item.ImageIDs...)
		}
		result.ImageIDs, err = unreferencedImages(ctx, wc, result.ImageIDs)
		return err
	})
	if err != nil {
		return CleanResult{}, err
	}

	if result.Removed > 0 {
		s.publish([]Change{{Entity: "item", Action: "purged", ImageIDs: result.ImageIDs}})
	}
	return result, nil
}
