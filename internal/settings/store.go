package settings

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/search-query-compiler/pkg/postgres"
)

// Row kinds stored in search_field_settings.
const (
	KindAlias   = "alias"
	KindRange   = "range"
	KindExact   = "exact"
	KindDefault = "default"
)

// Row is one field setting. Its columns mean, per kind:
//
//	alias    name -> target
//	range    name may be used with range:
//	exact    name maps to index field target; a non-empty value makes the
//	         row a value alias rewriting value to target instead
//	default  name is searched by unqualified terms
type Row struct {
	Kind   string
	Name   string
	Target string
	Value  string
}

// Loader supplies settings rows. *Store is the production implementation.
type Loader interface {
	LoadRows(ctx context.Context) ([]Row, error)
}

// Store reads and writes field settings in PostgreSQL.
//
// It requires a `search_field_settings` table:
//
//	CREATE TABLE search_field_settings (
//	    kind   TEXT NOT NULL,
//	    name   TEXT NOT NULL,
//	    target TEXT NOT NULL DEFAULT '',
//	    value  TEXT NOT NULL DEFAULT '',
//	    PRIMARY KEY (kind, name, value)
//	);
type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

func NewStore(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "settings-store"),
	}
}

func (s *Store) LoadRows(ctx context.Context) ([]Row, error) {
	rows, err := s.db.DB.QueryContext(ctx,
		`SELECT kind, name, target, value FROM search_field_settings ORDER BY kind, name, value`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying field settings: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.Kind, &r.Name, &r.Target, &r.Value); err != nil {
			return nil, fmt.Errorf("scanning field setting: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Replace swaps the whole table for rows in one transaction.
func (s *Store) Replace(ctx context.Context, rows []Row) error {
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM search_field_settings`); err != nil {
			return fmt.Errorf("clearing field settings: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO search_field_settings (kind, name, target, value) VALUES ($1, $2, $3, $4)`,
		)
		if err != nil {
			return fmt.Errorf("preparing insert: %w", err)
		}
		defer stmt.Close()
		for _, r := range rows {
			if _, err := stmt.ExecContext(ctx, r.Kind, r.Name, r.Target, r.Value); err != nil {
				return fmt.Errorf("inserting %s setting %q: %w", r.Kind, r.Name, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("field settings replaced", "rows", len(rows))
	return nil
}
