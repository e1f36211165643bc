package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"catcher/internal/item"
	"catcher/pkg/platform/sentinel"
	txcontext "catcher/pkg/platform/tx"
)

// uniqueViolation is the Postgres error code for a unique constraint breach.
const uniqueViolation = "23505"

// Clock abstracts time.Now for deterministic tests.
type Clock func() time.Time

// Postgres implements ItemStore on the primary store. The items table carries
// the serial_number uniqueness constraint; only the store can arbitrate truly
// concurrent inserts, so constraint violations are a named outcome here, not
// an exceptional crash.
type Postgres struct {
	db    *sql.DB
	clock Clock
}

// PostgresOption configures a Postgres store.
type PostgresOption func(*Postgres)

// WithClock sets the clock function for testability.
func WithClock(clock Clock) PostgresOption {
	return func(p *Postgres) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// NewPostgres constructs a Postgres-backed item store.
func NewPostgres(db *sql.DB, opts ...PostgresOption) *Postgres {
	p := &Postgres{db: db, clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// execer returns the context transaction when one is present so an item
// insert can share a transaction with its outbox audit event.
func (p *Postgres) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return p.db
}

const itemColumns = `id, name, serial_number, status, category, description, image_url, owner, contact_info, user_id, created_at, updated_at`

func scanItem(row interface{ Scan(...any) error }) (item.Item, error) {
	var it item.Item
	err := row.Scan(
		&it.ID, &it.Name, &it.SerialNumber, &it.Status, &it.Category,
		&it.Description, &it.ImageURL, &it.Owner, &it.ContactInfo,
		&it.UserID, &it.CreatedAt, &it.UpdatedAt,
	)
	return it, err
}

// Insert creates a row owned by userID.
func (p *Postgres) Insert(ctx context.Context, userID string, fields item.Fields) (item.Item, error) {
	now := p.clock().UTC()
	query := `
		INSERT INTO items (id, name, serial_number, status, category, description, image_url, owner, contact_info, user_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
		RETURNING ` + itemColumns
	row := p.execer(ctx).QueryRowContext(ctx, query,
		uuid.New(), fields.Name, fields.SerialNumber, fields.Status,
		fields.Category, fields.Description, fields.ImageURL,
		fields.Owner, fields.ContactInfo, userID, now,
	)
	it, err := scanItem(row)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return item.Item{}, fmt.Errorf("insert item %q: %w", fields.SerialNumber, sentinel.ErrDuplicateSerial)
		}
		return item.Item{}, fmt.Errorf("insert item: %w", err)
	}
	return it, nil
}

// ListByUser returns the caller's items, newest first.
func (p *Postgres) ListByUser(ctx context.Context, userID string) ([]item.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := p.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []item.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return items, nil
}

// Update patches a row owned by userID and bumps updated_at.
func (p *Postgres) Update(ctx context.Context, userID string, id uuid.UUID, patch item.Patch) (item.Item, error) {
	set := []string{"updated_at = $1"}
	args := []any{p.clock().UTC()}

	add := func(column string, value any) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if patch.Name != nil {
		add("name", *patch.Name)
	}
	if patch.Status != nil {
		add("status", *patch.Status)
	}
	if patch.Category != nil {
		add("category", *patch.Category)
	}
	if patch.Description != nil {
		add("description", *patch.Description)
	}
	if patch.ImageURL != nil {
		add("image_url", *patch.ImageURL)
	}
	if patch.Owner != nil {
		add("owner", *patch.Owner)
	}
	if patch.ContactInfo != nil {
		add("contact_info", *patch.ContactInfo)
	}

	args = append(args, id)
	idArg := len(args)
	args = append(args, userID)
	userArg := len(args)

	query := fmt.Sprintf(
		`UPDATE items SET %s WHERE id = $%d AND user_id = $%d RETURNING %s`,
		strings.Join(set, ", "), idArg, userArg, itemColumns,
	)
	it, err := scanItem(p.execer(ctx).QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return item.Item{}, fmt.Errorf("update item %s: %w", id, sentinel.ErrNotFound)
		}
		return item.Item{}, fmt.Errorf("update item: %w", err)
	}
	return it, nil
}

// Delete removes a row owned by userID.
func (p *Postgres) Delete(ctx context.Context, userID string, id uuid.UUID) error {
	result, err := p.execer(ctx).ExecContext(ctx,
		`DELETE FROM items WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete item rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("delete item %s: %w", id, sentinel.ErrNotFound)
	}
	return nil
}

// FindBySerial returns the row with exactly this serial number, any owner.
func (p *Postgres) FindBySerial(ctx context.Context, serial string) (item.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE serial_number = $1`
	it, err := scanItem(p.db.QueryRowContext(ctx, query, serial))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return item.Item{}, fmt.Errorf("find serial %q: %w", serial, sentinel.ErrNotFound)
		}
		return item.Item{}, fmt.Errorf("find serial: %w", err)
	}
	return it, nil
}

// SearchBySerial is the cross-owner verification lookup.
func (p *Postgres) SearchBySerial(ctx context.Context, partial string) ([]item.Summary, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE serial_number ILIKE $1 ORDER BY created_at DESC`
	rows, err := p.db.QueryContext(ctx, query, "%"+escapeLike(partial)+"%")
	if err != nil {
		return nil, fmt.Errorf("search serial: %w", err)
	}
	defer rows.Close()

	var summaries []item.Summary
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan search row: %w", err)
		}
		summaries = append(summaries, it.Summarize())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search rows: %w", err)
	}
	return summaries, nil
}

// escapeLike neutralizes LIKE metacharacters in user input.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}
