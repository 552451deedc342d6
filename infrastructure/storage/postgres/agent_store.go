package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/felixgeelhaar/agent-registry/domain/registry"
)

// AgentStore is a PostgreSQL implementation of registry.IndexStore. The
// record is a JSONB document; status, domain and capabilities are copied
// into indexed columns for filtering.
type AgentStore struct {
	pool         *pgxpool.Pool
	table        string
	queryTimeout time.Duration
}

// Upsert inserts rec or replaces the record with the same agent id. On
// conflict the stored id and created_at are merged back into the new
// document.
func (s *AgentStore) Upsert(ctx context.Context, rec *registry.AgentRecord) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	stored := rec.Clone()
	stored.ID = uuid.NewString()
	data, err := json.Marshal(stored)
	if err != nil {
		return "", fmt.Errorf("marshal record: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %[1]s (agent_id, id, status, domain, capabilities, data, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (agent_id) DO UPDATE SET
			status = EXCLUDED.status,
			domain = EXCLUDED.domain,
			capabilities = EXCLUDED.capabilities,
			data = EXCLUDED.data || jsonb_build_object(
				'id', %[1]s.id,
				'created_at', %[1]s.data->'created_at'
			),
			updated_at = EXCLUDED.updated_at
		RETURNING id
	`, s.table)

	var id string
	err = s.pool.QueryRow(ctx, query,
		stored.AgentID,
		stored.ID,
		string(stored.Status),
		stored.Domain,
		stored.Capabilities,
		data,
		stored.UpdatedAt,
	).Scan(&id)
	if err != nil {
		return "", wrapError(err)
	}
	return id, nil
}

// Get retrieves a record by agent id.
func (s *AgentStore) Get(ctx context.Context, agentID string) (*registry.AgentRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	query := fmt.Sprintf(`SELECT data FROM %s WHERE agent_id = $1`, s.table)
	return scanRecord(s.pool.QueryRow(ctx, query, agentID))
}

// Patch applies a partial update to the row locked with FOR UPDATE.
func (s *AgentStore) Patch(ctx context.Context, agentID string, patch registry.Patch) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	changed := false
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		query := fmt.Sprintf(`SELECT data FROM %s WHERE agent_id = $1 FOR UPDATE`, s.table)
		rec, err := scanRecord(tx.QueryRow(ctx, query, agentID))
		if err != nil {
			return err
		}
		if !patch.Apply(rec) {
			return nil
		}

		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal record: %w", err)
		}
		update := fmt.Sprintf(`
			UPDATE %s SET status = $1, domain = $2, capabilities = $3, data = $4, updated_at = $5
			WHERE agent_id = $6
		`, s.table)
		if _, err := tx.Exec(ctx, update,
			string(rec.Status), rec.Domain, rec.Capabilities, data, rec.UpdatedAt, agentID,
		); err != nil {
			return wrapError(err)
		}
		changed = true
		return nil
	})
	if err != nil {
		return false, wrapError(err)
	}
	return changed, nil
}

// Delete removes a record.
func (s *AgentStore) Delete(ctx context.Context, agentID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	query := fmt.Sprintf(`DELETE FROM %s WHERE agent_id = $1`, s.table)
	tag, err := s.pool.Exec(ctx, query, agentID)
	if err != nil {
		return wrapError(err)
	}
	if tag.RowsAffected() == 0 {
		return registry.ErrNotFound
	}
	return nil
}

// List returns the records matching the filter, translated into SQL.
func (s *AgentStore) List(ctx context.Context, filter registry.Filter) ([]*registry.AgentRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()

	where, args := buildWhereClause(filter)
	query := fmt.Sprintf(`SELECT data FROM %s%s ORDER BY agent_id`, s.table, where)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapError(err)
	}
	defer rows.Close()

	var records []*registry.AgentRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapError(err)
	}
	return records, nil
}

// Ping checks the pool can reach the server.
func (s *AgentStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	return wrapError(s.pool.Ping(ctx))
}

func scanRecord(row pgx.Row) (*registry.AgentRecord, error) {
	var data []byte
	if err := row.Scan(&data); err != nil {
		return nil, wrapError(err)
	}
	var rec registry.AgentRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	return &rec, nil
}

// buildWhereClause translates a registry filter into SQL conditions.
// The text query is a case-insensitive substring match with LIKE
// wildcards escaped.
func buildWhereClause(filter registry.Filter) (string, []any) {
	var conditions []string
	var args []any

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Status != "" {
		conditions = append(conditions, "status = "+arg(string(filter.Status)))
	}
	if len(filter.Capabilities) > 0 {
		conditions = append(conditions, "capabilities && "+arg(filter.Capabilities)+"::text[]")
	}
	if filter.Domain != "" {
		conditions = append(conditions, "domain = "+arg(filter.Domain))
	}
	if filter.Query != "" {
		haystack := `agent_id || ' ' || coalesce(data->>'description', '') || ' ' || coalesce(data->>'specialization', '')`
		conditions = append(conditions, fmt.Sprintf(`(%s) ILIKE %s ESCAPE '\'`, haystack, arg("%"+escapeLike(filter.Query)+"%")))
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

var _ registry.IndexStore = (*AgentStore)(nil)
