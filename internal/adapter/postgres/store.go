package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hxplabs/hxpd/internal/domain"
	"github.com/hxplabs/hxpd/internal/domain/receipt"
	"github.com/hxplabs/hxpd/internal/domain/request"
)

// liveStates is the SQL predicate for non-terminal requests. Transitions are
// conditional UPDATEs against it, so the database enforces the per-request
// critical section: at most one transition claims a live row.
const liveStates = `('pending', 'assigned')`

// Store implements database.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const requestColumns = `id, action, role, priority, agent_id, project_id, payload,
	timeout_seconds, fallback, status, assigned_to, metadata, created_at, updated_at`

// CreateRequest persists a validated request in pending state.
func (s *Store) CreateRequest(ctx context.Context, req *request.Request) error {
	payloadJSON, err := json.Marshal(req.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	metadataJSON, err := json.Marshal(req.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO requests (id, action, role, priority, agent_id, project_id, payload,
		                       timeout_seconds, fallback, status, assigned_to, metadata, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		req.ID, req.Action, req.Role, req.Priority, req.AgentID, req.ProjectID, payloadJSON,
		req.TimeoutSeconds, req.Fallback, req.Status, req.AssignedTo, metadataJSON,
		req.CreatedAt, req.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return nil
}

// GetRequest returns the current state, joining the receipt when one exists.
func (s *Store) GetRequest(ctx context.Context, id string) (*request.Request, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+requestColumns+` FROM requests WHERE id = $1`, id)

	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get request %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get request %s: %w", id, err)
	}

	if req.Status == request.StatusCompleted {
		rc, err := s.getReceipt(ctx, id)
		if err != nil {
			return nil, err
		}
		req.Receipt = rc
	}
	return req, nil
}

// ListRequests returns matching requests ordered by priority rank then age.
func (s *Store) ListRequests(ctx context.Context, filter request.ListFilter) ([]request.Request, error) {
	query := `SELECT ` + requestColumns + ` FROM requests WHERE 1=1`
	args := []any{}
	n := 0
	add := func(clause string, v any) {
		n++
		query += fmt.Sprintf(" AND %s = $%d", clause, n)
		args = append(args, v)
	}
	if filter.ProjectID != "" {
		add("project_id", filter.ProjectID)
	}
	if filter.AgentID != "" {
		add("agent_id", filter.AgentID)
	}
	if filter.Status != "" {
		add("status", filter.Status)
	}
	query += ` ORDER BY CASE priority
		WHEN 'critical' THEN 3 WHEN 'high' THEN 2 WHEN 'normal' THEN 1 ELSE 0
	END DESC, created_at ASC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()

	var out []request.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *req)
	}
	return out, rows.Err()
}

// AssignRequest records an advisory claim on a live request.
func (s *Store) AssignRequest(ctx context.Context, id, principalID string) (*request.Request, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE requests SET status = 'assigned', assigned_to = $2, updated_at = now()
		 WHERE id = $1 AND status IN `+liveStates, id, principalID)
	if err != nil {
		return nil, fmt.Errorf("assign request %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionConflict(ctx, id)
	}
	return s.GetRequest(ctx, id)
}

// CompleteRequest atomically claims completion and attaches the receipt.
func (s *Store) CompleteRequest(ctx context.Context, id string, rc receipt.Receipt) (*request.Request, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("complete request %s: %w", id, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx,
		`UPDATE requests SET status = 'completed', updated_at = $2
		 WHERE id = $1 AND status IN `+liveStates, id, rc.CompletedAt)
	if err != nil {
		return nil, fmt.Errorf("complete request %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		// Lost the claim (or unknown id): report the stored state unchanged.
		return s.transitionConflict(ctx, id)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO receipts (request_id, status, result, reason, completed_by, completed_at, duration_seconds, evidence_hash)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rc.RequestID, rc.Status, rc.Result, rc.Reason, rc.CompletedBy, rc.CompletedAt,
		rc.DurationSeconds, rc.EvidenceHash)
	if err != nil {
		return nil, fmt.Errorf("insert receipt %s: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("complete request %s: %w", id, err)
	}
	return s.GetRequest(ctx, id)
}

// TerminateRequest transitions a live request to expired or failed.
func (s *Store) TerminateRequest(ctx context.Context, id string, to request.Status) (*request.Request, error) {
	if to != request.StatusExpired && to != request.StatusFailed {
		return nil, fmt.Errorf("terminate to %s: %w", to, domain.ErrInvalidState)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE requests SET status = $2, updated_at = now()
		 WHERE id = $1 AND status IN `+liveStates, id, to)
	if err != nil {
		return nil, fmt.Errorf("terminate request %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionConflict(ctx, id)
	}
	return s.GetRequest(ctx, id)
}

// CancelRequest transitions a live request to cancelled.
func (s *Store) CancelRequest(ctx context.Context, id, by string) (*request.Request, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE requests SET status = 'cancelled', updated_at = now()
		 WHERE id = $1 AND status IN `+liveStates, id)
	if err != nil {
		return nil, fmt.Errorf("cancel request %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return s.transitionConflict(ctx, id)
	}
	return s.GetRequest(ctx, id)
}

// transitionConflict classifies a failed conditional update: unknown id,
// already completed (loser gets the winning receipt via GetRequest), or a
// non-completed terminal state.
func (s *Store) transitionConflict(ctx context.Context, id string) (*request.Request, error) {
	req, err := s.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status == request.StatusCompleted {
		return req, fmt.Errorf("request %s: %w", id, domain.ErrAlreadyResolved)
	}
	return req, fmt.Errorf("request %s is %s: %w", id, req.Status, domain.ErrInvalidState)
}

func (s *Store) getReceipt(ctx context.Context, id string) (*receipt.Receipt, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT request_id, status, result, reason, completed_by, completed_at, duration_seconds, evidence_hash
		 FROM receipts WHERE request_id = $1`, id)

	var rc receipt.Receipt
	err := row.Scan(&rc.RequestID, &rc.Status, &rc.Result, &rc.Reason, &rc.CompletedBy,
		&rc.CompletedAt, &rc.DurationSeconds, &rc.EvidenceHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get receipt %s: %w", id, err)
	}
	return &rc, nil
}
