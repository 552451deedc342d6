package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/agent-registry/domain/registry"
)

// AgentStore is a SQLite implementation of registry.IndexStore. Status and
// domain are columns for filtering; the rest of the record is a JSON value.
type AgentStore struct {
	db    *sql.DB
	table string
}

// Upsert inserts rec or replaces the record with the same agent id. The
// id and created_at columns are only written on insert.
func (s *AgentStore) Upsert(ctx context.Context, rec *registry.AgentRecord) (string, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("marshal record: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (agent_id, id, status, domain, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(agent_id) DO UPDATE SET
			status = excluded.status,
			domain = excluded.domain,
			data = excluded.data,
			updated_at = excluded.updated_at
		RETURNING id
	`, s.table)

	var id string
	err = s.db.QueryRowContext(ctx, query,
		rec.AgentID,
		uuid.NewString(),
		string(rec.Status),
		rec.Domain,
		data,
		rec.CreatedAt.UnixNano(),
		rec.UpdatedAt.UnixNano(),
	).Scan(&id)
	if err != nil {
		return "", wrapError(err)
	}
	return id, nil
}

// Get retrieves a record by agent id.
func (s *AgentStore) Get(ctx context.Context, agentID string) (*registry.AgentRecord, error) {
	query := fmt.Sprintf(`SELECT id, data, created_at FROM %s WHERE agent_id = ?`, s.table)
	return scanRecord(s.db.QueryRowContext(ctx, query, agentID))
}

// Patch applies a partial update inside a write transaction.
func (s *AgentStore) Patch(ctx context.Context, agentID string, patch registry.Patch) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, wrapError(err)
	}
	defer func() { _ = tx.Rollback() }()

	query := fmt.Sprintf(`SELECT id, data, created_at FROM %s WHERE agent_id = ?`, s.table)
	rec, err := scanRecord(tx.QueryRowContext(ctx, query, agentID))
	if err != nil {
		return false, err
	}
	if !patch.Apply(rec) {
		return false, nil
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return false, fmt.Errorf("marshal record: %w", err)
	}
	update := fmt.Sprintf(`UPDATE %s SET status = ?, domain = ?, data = ?, updated_at = ? WHERE agent_id = ?`, s.table)
	if _, err := tx.ExecContext(ctx, update,
		string(rec.Status), rec.Domain, data, rec.UpdatedAt.UnixNano(), agentID,
	); err != nil {
		return false, wrapError(err)
	}
	if err := tx.Commit(); err != nil {
		return false, wrapError(err)
	}
	return true, nil
}

// Delete removes a record.
func (s *AgentStore) Delete(ctx context.Context, agentID string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE agent_id = ?`, s.table)
	result, err := s.db.ExecContext(ctx, query, agentID)
	if err != nil {
		return wrapError(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return wrapError(err)
	}
	if n == 0 {
		return registry.ErrNotFound
	}
	return nil
}

// List returns the records matching the filter. Status and domain are
// filtered in SQL; capabilities and the text query on the decoded records.
func (s *AgentStore) List(ctx context.Context, filter registry.Filter) ([]*registry.AgentRecord, error) {
	where, args := buildWhereClause(filter)
	query := fmt.Sprintf(`SELECT id, data, created_at FROM %s%s ORDER BY agent_id`, s.table, where)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapError(err)
	}
	defer func() { _ = rows.Close() }()

	var records []*registry.AgentRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		if filter.Matches(rec) {
			records = append(records, rec)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, wrapError(err)
	}
	return records, nil
}

// Ping checks the database is reachable.
func (s *AgentStore) Ping(ctx context.Context) error {
	return ping(ctx, s.db)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*registry.AgentRecord, error) {
	var (
		id        string
		data      []byte
		createdAt int64
	)
	if err := row.Scan(&id, &data, &createdAt); err != nil {
		return nil, wrapError(err)
	}

	var rec registry.AgentRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	rec.ID = id
	rec.CreatedAt = time.Unix(0, createdAt).UTC()
	return &rec, nil
}

// buildWhereClause builds the column conditions of a filter.
func buildWhereClause(filter registry.Filter) (string, []any) {
	var conditions []string
	var args []any

	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Domain != "" {
		conditions = append(conditions, "domain = ?")
		args = append(args, filter.Domain)
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

var _ registry.IndexStore = (*AgentStore)(nil)
