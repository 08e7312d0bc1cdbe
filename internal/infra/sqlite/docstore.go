package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/willpower-app/willpower/internal/domain"
)

// fieldPattern restricts filter fields to plain JSON keys; they are spliced
// into a JSON path.
var fieldPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// RunTx executes fn inside a SQL transaction. Any error from fn, or a panic,
// rolls the transaction back.
func (d *DB) RunTx(ctx context.Context, fn func(tx domain.Tx) error) (err error) {
	sqlTx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&docTx{tx: sqlTx, now: d.now}); err != nil {
		_ = sqlTx.Rollback()
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// docTx implements domain.Tx over a *sql.Tx.
type docTx struct {
	tx  *sql.Tx
	now func() time.Time
}

func (t *docTx) Get(ctx context.Context, collection, id string) (domain.Document, error) {
	var doc domain.Document
	var body string
	err := t.tx.QueryRowContext(ctx,
		`SELECT id, version, body FROM documents WHERE collection = ? AND id = ?`,
		collection, id,
	).Scan(&doc.ID, &doc.Version, &body)
	if errors.Is(err, sql.ErrNoRows) {
		return doc, domain.ErrDocumentNotFound
	}
	if err != nil {
		return doc, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	doc.Data = json.RawMessage(body)
	return doc, nil
}

func (t *docTx) Query(ctx context.Context, collection string, filters ...domain.Filter) ([]domain.Document, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT id, version, body FROM documents WHERE collection = ?`)
	args := []any{collection}

	for _, f := range filters {
		if !fieldPattern.MatchString(f.Field) {
			return nil, fmt.Errorf("query %s: invalid filter field %q", collection, f.Field)
		}
		sb.WriteString(` AND json_extract(body, '$.` + f.Field + `') = ?`)
		args = append(args, filterValue(f.Value))
	}
	sb.WriteString(` ORDER BY created_at, rowid`)

	rows, err := t.tx.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	defer rows.Close()

	var docs []domain.Document
	for rows.Next() {
		var doc domain.Document
		var body string
		if err := rows.Scan(&doc.ID, &doc.Version, &body); err != nil {
			return nil, fmt.Errorf("scan %s: %w", collection, err)
		}
		doc.Data = json.RawMessage(body)
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (t *docTx) Create(ctx context.Context, collection, id string, fields any) (string, error) {
	if id == "" {
		id = uuid.NewString()
	}
	body, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", collection, err)
	}

	ts := t.now().UnixNano()
	_, err = t.tx.ExecContext(ctx,
		`INSERT INTO documents (collection, id, version, body, created_at, updated_at)
		 VALUES (?, ?, 1, ?, ?, ?)`,
		collection, id, string(body), ts, ts,
	)
	if err != nil {
		return "", fmt.Errorf("create %s/%s: %w", collection, id, err)
	}
	return id, nil
}

func (t *docTx) Update(ctx context.Context, collection, id string, version int64, fields any) error {
	body, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode %s: %w", collection, err)
	}

	result, err := t.tx.ExecContext(ctx,
		`UPDATE documents SET body = ?, version = version + 1, updated_at = ?
		 WHERE collection = ? AND id = ? AND (? = -1 OR version = ?)`,
		string(body), t.now().UnixNano(), collection, id, version, version,
	)
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	n, _ := result.RowsAffected()
	if n > 0 {
		return nil
	}

	// Nothing matched: either the document is gone or someone else won.
	if _, err := t.Get(ctx, collection, id); err != nil {
		return err
	}
	return domain.ErrVersionConflict
}

func (t *docTx) Delete(ctx context.Context, collection, id string) error {
	result, err := t.tx.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = ? AND id = ?`, collection, id,
	)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

// filterValue converts Go values to what json_extract returns for them.
func filterValue(v any) any {
	switch x := v.(type) {
	case bool:
		if x {
			return 1
		}
		return 0
	case fmt.Stringer:
		return x.String()
	}
	// Named string types (statuses, ids) bind as plain text.
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.String {
		return rv.String()
	}
	return v
}
