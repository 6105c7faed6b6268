package postgres

import (
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/hxplabs/hxpd/internal/domain/request"
)

// scanRequest reads one requests row into the domain entity.
func scanRequest(row pgx.Row) (*request.Request, error) {
	var req request.Request
	var payloadJSON, metadataJSON []byte

	err := row.Scan(&req.ID, &req.Action, &req.Role, &req.Priority, &req.AgentID,
		&req.ProjectID, &payloadJSON, &req.TimeoutSeconds, &req.Fallback,
		&req.Status, &req.AssignedTo, &metadataJSON, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(payloadJSON, &req.Payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &req.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return &req, nil
}
