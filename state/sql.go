package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agentmesh/substrate/component"
)

// SQLStore is the Postgres-backed Store. Every operation runs inside its own
// transaction with the session variable app.tenant_id set via SET_CONFIG so
// the table's row-level security policies filter SELECT/INSERT/UPDATE/DELETE
// to the current tenant. The tenant id travels on ctx (see SetTenant); an
// empty tenant id puts the handle back into no-tenant state.
type SQLStore struct {
	pool       *pgxpool.Pool
	table      string
	migrations string
}

// NewSQLStore wraps an already-configured pgxpool.Pool. table and
// migrations name the key/value and migration-history tables (see
// ApplySchema for their DDL).
func NewSQLStore(pool *pgxpool.Pool, table, migrations string) *SQLStore {
	return &SQLStore{pool: pool, table: table, migrations: migrations}
}

// ApplySchema creates the backing tables if they do not exist. It is a
// convenience for tests and local setup; production deployments should run
// the numbered V{n}__{name}.sql migrations named in SPEC_FULL.md §6.
func (s *SQLStore) ApplySchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			tenant_id   text NOT NULL DEFAULT '',
			scope_kind  int  NOT NULL,
			scope_id    text NOT NULL DEFAULT '',
			name        text NOT NULL,
			value       jsonb NOT NULL,
			PRIMARY KEY (tenant_id, scope_kind, scope_id, name)
		);
		CREATE TABLE IF NOT EXISTS %s (
			version int PRIMARY KEY,
			applied_at timestamptz NOT NULL DEFAULT now()
		);
	`, s.table, s.migrations))
	return err
}

type tenantKeyType struct{}

var tenantKey tenantKeyType

// SetTenant returns a context carrying tenantID for subsequent SQLStore
// operations.
func SetTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantKey, tenantID)
}

// ClearTenant returns ctx with the tenant id removed (no-tenant state).
func ClearTenant(ctx context.Context) context.Context {
	return context.WithValue(ctx, tenantKey, "")
}

func tenantFrom(ctx context.Context) string {
	v, _ := ctx.Value(tenantKey).(string)
	return v
}

// withTenant runs fn inside a transaction with app.tenant_id set to the
// context's tenant (or cleared, if none was set).
func (s *SQLStore) withTenant(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("state: begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantFrom(ctx)); err != nil {
		return fmt.Errorf("state: set tenant: %w", err)
	}

	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *SQLStore) Get(ctx context.Context, key Key) (any, bool, error) {
	var raw []byte
	var found bool
	err := s.withTenant(ctx, func(ctx context.Context, tx pgx.Tx) error {
		row := tx.QueryRow(ctx,
			fmt.Sprintf("SELECT value FROM %s WHERE tenant_id = current_setting('app.tenant_id') AND scope_kind=$1 AND scope_id=$2 AND name=$3", s.table),
			int(key.Scope.Kind), key.Scope.ID, key.Name)
		err := row.Scan(&raw)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil || !found {
		return nil, false, err
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (s *SQLStore) Set(ctx context.Context, key Key, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.withTenant(ctx, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, fmt.Sprintf(`
			INSERT INTO %s (tenant_id, scope_kind, scope_id, name, value)
			VALUES (current_setting('app.tenant_id'), $1, $2, $3, $4)
			ON CONFLICT (tenant_id, scope_kind, scope_id, name)
			DO UPDATE SET value = EXCLUDED.value
		`, s.table), int(key.Scope.Kind), key.Scope.ID, key.Name, raw)
		return err
	})
}

func (s *SQLStore) Delete(ctx context.Context, key Key) (bool, error) {
	var existed bool
	err := s.withTenant(ctx, func(ctx context.Context, tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE tenant_id = current_setting('app.tenant_id') AND scope_kind=$1 AND scope_id=$2 AND name=$3", s.table),
			int(key.Scope.Kind), key.Scope.ID, key.Name)
		if err != nil {
			return err
		}
		existed = tag.RowsAffected() > 0
		return nil
	})
	return existed, err
}

func (s *SQLStore) ListKeys(ctx context.Context, scope component.Scope, prefix string) ([]string, error) {
	var out []string
	err := s.withTenant(ctx, func(ctx context.Context, tx pgx.Tx) error {
		rows, err := tx.Query(ctx,
			fmt.Sprintf("SELECT name FROM %s WHERE tenant_id = current_setting('app.tenant_id') AND scope_kind=$1 AND scope_id=$2 AND name LIKE $3 || '%%' ORDER BY name", s.table),
			int(scope.Kind), scope.ID, prefix)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				return err
			}
			out = append(out, name)
		}
		return rows.Err()
	})
	sort.Strings(out)
	return out, err
}

// ApplyMigration records version in the migration-history table after
// running apply, refusing to apply out of order and treating an
// already-applied version as a no-op (idempotent against its own marker).
func (s *SQLStore) ApplyMigration(ctx context.Context, version int, apply func(ctx context.Context) error) error {
	var maxApplied int
	row := s.pool.QueryRow(ctx, fmt.Sprintf("SELECT COALESCE(MAX(version), 0) FROM %s", s.migrations))
	if err := row.Scan(&maxApplied); err != nil {
		return fmt.Errorf("state: read migration history: %w", err)
	}
	if version <= maxApplied {
		return nil
	}
	if version != maxApplied+1 {
		return ErrMigrationOutOfOrder
	}
	if apply != nil {
		if err := apply(ctx); err != nil {
			return err
		}
	}
	_, err := s.pool.Exec(ctx, fmt.Sprintf("INSERT INTO %s (version) VALUES ($1)", s.migrations), version)
	return err
}
