// Package postgres: queries.go содержит общие утилиты запросов:
// миграции в транзакции, сборку условий WHERE и перевод ошибок pgx в виды common.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"cofish.app/core/internal/common"
	"cofish.app/core/internal/store"
)

// ExecMigrationSQL выполняет один SQL-скрипт миграции в транзакции.
// Возвращает false, если миграция уже была применена.
func ExecMigrationSQL(ctx context.Context, pool *pgxpool.Pool, version int, sql string) (bool, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	err = tx.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)", version,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки миграции: %w", err)
	}
	if exists {
		return false, nil
	}

	if _, err := tx.Exec(ctx, sql); err != nil {
		return false, fmt.Errorf("ошибка выполнения миграции %d: %w", version, err)
	}
	if _, err := tx.Exec(ctx,
		"INSERT INTO schema_migrations (version) VALUES ($1)", version,
	); err != nil {
		return false, fmt.Errorf("ошибка записи версии миграции: %w", err)
	}
	return true, tx.Commit(ctx)
}

const pgUniqueViolation = "23505"

// mapErr переводит ошибку драйвера в вид из common.
func mapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, common.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%s: %w", op, common.ErrConcurrencyConflict)
	}
	if errors.Is(err, common.ErrInvalidInput) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %v", op, common.ErrStoreFailure, err)
}

// scanner общий интерфейс pgx.Row и pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// where собирает условия и аргументы с нумерацией $1..$n.
type where struct {
	conds []string
	args  []any
}

func (w *where) arg(v any) string {
	w.args = append(w.args, v)
	return "$" + strconv.Itoa(len(w.args))
}

func (w *where) add(cond string) {
	w.conds = append(w.conds, cond)
}

func (w *where) sql() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// window добавляет фильтры по created_at и статусам из ListOptions.
func (w *where) window(opts store.ListOptions) {
	if !opts.Since.IsZero() {
		w.add("created_at >= " + w.arg(opts.Since))
	}
	if !opts.Until.IsZero() {
		w.add("created_at <= " + w.arg(opts.Until))
	}
	if len(opts.Statuses) > 0 {
		statuses := make([]string, len(opts.Statuses))
		for i, s := range opts.Statuses {
			statuses[i] = string(s)
		}
		w.add("verification_status = ANY(" + w.arg(statuses) + "::text[])")
	}
}

// pageClause возвращает ORDER BY/LIMIT/OFFSET; запрашиваем на одну строку больше,
// чтобы понять, есть ли следующая страница.
func pageClause(w *where, opts store.ListOptions) (clause string, limit, offset int, err error) {
	limit = opts.Limit
	if limit <= 0 {
		limit = store.DefaultListLimit
	}
	if opts.Cursor != "" {
		offset, err = strconv.Atoi(opts.Cursor)
		if err != nil || offset < 0 {
			return "", 0, 0, fmt.Errorf("bad cursor %q: %w", opts.Cursor, common.ErrInvalidInput)
		}
	}
	dir := "DESC"
	if opts.Direction == store.Asc {
		dir = "ASC"
	}
	clause = fmt.Sprintf(" ORDER BY created_at %s, id %s LIMIT %s OFFSET %s",
		dir, dir, w.arg(limit+1), w.arg(offset))
	return clause, limit, offset, nil
}

// collectPage читает строки и формирует store.Page.
func collectPage[T any](rows pgx.Rows, limit, offset int, scan func(scanner) (T, error)) (store.Page[T], error) {
	defer rows.Close()
	var page store.Page[T]
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return store.Page[T]{}, err
		}
		page.Items = append(page.Items, v)
	}
	if err := rows.Err(); err != nil {
		return store.Page[T]{}, err
	}
	if len(page.Items) > limit {
		page.Items = page.Items[:limit]
		page.Next = strconv.Itoa(offset + limit)
	}
	return page, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func utc(t time.Time) time.Time { return t.UTC() }

func createdAtOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}
