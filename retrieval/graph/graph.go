// Package graph implements the bi-temporal knowledge graph of spec §4.I:
// entities and relationships carry a valid_time range, point-in-time
// queries filter on it via a GiST index over tstzrange, and referential
// integrity between entity_id and relationship endpoints is enforced at
// the application level rather than with foreign keys, so multiple
// time-versioned rows may share one entity_id.
package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agentmesh/substrate/errs"
)

// Entity is one bi-temporally versioned node.
type Entity struct {
	EntityID       string
	Type           string
	Name           string
	Properties     map[string]any
	ValidTimeStart time.Time
	ValidTimeEnd   *time.Time // nil means still open-ended
}

// Relationship is one bi-temporally versioned edge between two entities.
type Relationship struct {
	RelationshipID string
	FromEntity     string
	ToEntity       string
	Type           string
	Properties     map[string]any
	ValidTimeStart time.Time
	ValidTimeEnd   *time.Time
}

// Store is the Postgres-backed bi-temporal graph, tenant-scoped the same
// way state.SQLStore is: every operation runs in its own transaction with
// app.tenant_id set via SET_CONFIG so row-level security filters by tenant.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps an already-configured pgxpool.Pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

type tenantKeyType struct{}

var tenantKey tenantKeyType

// WithTenant returns a context carrying tenantID for subsequent Store
// operations.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantKey, tenantID)
}

func tenantFrom(ctx context.Context) string {
	v, _ := ctx.Value(tenantKey).(string)
	return v
}

func (s *Store) withTenant(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("graph: begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "SELECT set_config('app.tenant_id', $1, true)", tenantFrom(ctx)); err != nil {
		return fmt.Errorf("graph: set tenant: %w", err)
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ApplySchema creates the entities/relationships tables and their GiST
// time-range indexes if they do not already exist. Production deployments
// should instead run the numbered V{n}__{name}.sql migrations named in
// SPEC_FULL.md §6; this is the local/test convenience path.
func (s *Store) ApplySchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS entities (
			entity_id        text NOT NULL,
			tenant_id        text NOT NULL DEFAULT '',
			entity_type      text NOT NULL,
			name             text NOT NULL,
			properties       jsonb NOT NULL DEFAULT '{}',
			valid_time       tstzrange NOT NULL,
			PRIMARY KEY (entity_id, valid_time)
		);
		CREATE INDEX IF NOT EXISTS entities_valid_time ON entities USING gist (valid_time);

		CREATE TABLE IF NOT EXISTS relationships (
			relationship_id   text NOT NULL,
			tenant_id         text NOT NULL DEFAULT '',
			from_entity       text NOT NULL,
			to_entity         text NOT NULL,
			relationship_type text NOT NULL,
			properties        jsonb NOT NULL DEFAULT '{}',
			valid_time        tstzrange NOT NULL,
			PRIMARY KEY (relationship_id, valid_time)
		);
		CREATE INDEX IF NOT EXISTS relationships_valid_time ON relationships USING gist (valid_time);
	`)
	return err
}

func validTimeRange(start time.Time, end *time.Time) string {
	if end == nil {
		return fmt.Sprintf("[%s,)", start.Format(time.RFC3339Nano))
	}
	return fmt.Sprintf("[%s,%s)", start.Format(time.RFC3339Nano), end.Format(time.RFC3339Nano))
}

// PutEntity inserts a new bi-temporal version of an entity. Multiple
// versions may share entity_id; they are distinguished by valid_time.
func (s *Store) PutEntity(ctx context.Context, e Entity) error {
	props, err := json.Marshal(e.Properties)
	if err != nil {
		return err
	}
	return s.withTenant(ctx, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO entities (entity_id, tenant_id, entity_type, name, properties, valid_time)
			VALUES ($1, current_setting('app.tenant_id'), $2, $3, $4, $5::tstzrange)
		`, e.EntityID, e.Type, e.Name, props, validTimeRange(e.ValidTimeStart, e.ValidTimeEnd))
		return err
	})
}

// entityExists checks at the application level whether any version of
// entityID is visible to the current tenant, since relationships carry no
// foreign key to entities (spec §4.I: referential integrity is enforced at
// the application level to permit multiple versions sharing an entity_id).
func entityExists(ctx context.Context, tx pgx.Tx, entityID string) (bool, error) {
	var count int
	err := tx.QueryRow(ctx,
		"SELECT COUNT(*) FROM entities WHERE entity_id = $1 AND tenant_id = current_setting('app.tenant_id')",
		entityID).Scan(&count)
	return count > 0, err
}

// PutRelationship inserts a new bi-temporal version of a relationship,
// after verifying both endpoints exist for the current tenant.
func (s *Store) PutRelationship(ctx context.Context, r Relationship) error {
	props, err := json.Marshal(r.Properties)
	if err != nil {
		return err
	}
	return s.withTenant(ctx, func(ctx context.Context, tx pgx.Tx) error {
		fromOK, err := entityExists(ctx, tx, r.FromEntity)
		if err != nil {
			return err
		}
		toOK, err := entityExists(ctx, tx, r.ToEntity)
		if err != nil {
			return err
		}
		if !fromOK || !toOK {
			return errs.New(errs.Validation, "retrieval.graph", "relationship endpoints must reference an existing entity")
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO relationships (relationship_id, tenant_id, from_entity, to_entity, relationship_type, properties, valid_time)
			VALUES ($1, current_setting('app.tenant_id'), $2, $3, $4, $5, $6::tstzrange)
		`, r.RelationshipID, r.FromEntity, r.ToEntity, r.Type, props, validTimeRange(r.ValidTimeStart, r.ValidTimeEnd))
		return err
	})
}

// EntityAt returns the version of entityID whose valid_time range contains
// t (valid_time_start <= t < valid_time_end), or false if none does.
func (s *Store) EntityAt(ctx context.Context, entityID string, t time.Time) (Entity, bool, error) {
	var e Entity
	var found bool
	var props []byte
	err := s.withTenant(ctx, func(ctx context.Context, tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			SELECT entity_id, entity_type, name, properties, lower(valid_time), upper(valid_time)
			FROM entities
			WHERE entity_id = $1 AND tenant_id = current_setting('app.tenant_id') AND valid_time @> $2::timestamptz
		`, entityID, t)
		var end *time.Time
		err := row.Scan(&e.EntityID, &e.Type, &e.Name, &props, &e.ValidTimeStart, &end)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		e.ValidTimeEnd = end
		found = true
		return nil
	})
	if err != nil || !found {
		return Entity{}, false, err
	}
	if err := json.Unmarshal(props, &e.Properties); err != nil {
		return Entity{}, false, err
	}
	return e, true, nil
}

// RelationshipsAt returns every relationship from fromEntity whose
// valid_time range contains t.
func (s *Store) RelationshipsAt(ctx context.Context, fromEntity string, t time.Time) ([]Relationship, error) {
	var out []Relationship
	err := s.withTenant(ctx, func(ctx context.Context, tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT relationship_id, from_entity, to_entity, relationship_type, properties, lower(valid_time), upper(valid_time)
			FROM relationships
			WHERE from_entity = $1 AND tenant_id = current_setting('app.tenant_id') AND valid_time @> $2::timestamptz
			ORDER BY relationship_id
		`, fromEntity, t)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r Relationship
			var props []byte
			var end *time.Time
			if err := rows.Scan(&r.RelationshipID, &r.FromEntity, &r.ToEntity, &r.Type, &props, &r.ValidTimeStart, &end); err != nil {
				return err
			}
			r.ValidTimeEnd = end
			if err := json.Unmarshal(props, &r.Properties); err != nil {
				return err
			}
			out = append(out, r)
		}
		return rows.Err()
	})
	return out, err
}
