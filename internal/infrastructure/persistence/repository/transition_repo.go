package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/garyjia/issueflow/internal/application/port"
	"github.com/garyjia/issueflow/internal/domain/entity"
	"go.uber.org/zap"
)

// TransitionRepository implements port.TransitionRepository on SQLite
type TransitionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewTransitionRepository creates a new transition journal repository
func NewTransitionRepository(db *sql.DB, logger *zap.Logger) port.TransitionRepository {
	return &TransitionRepository{
		db:     db,
		logger: logger,
	}
}

// Create appends a transition record
func (r *TransitionRepository) Create(ctx context.Context, record *entity.TransitionRecord) error {
	if record.FiredAt.IsZero() {
		record.FiredAt = time.Now()
	}

	query := `
		INSERT INTO transition_history (
			workflow, trigger_name, previous_state, new_state,
			source, correlation_id, fired_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		record.Workflow,
		record.Trigger,
		record.PreviousState,
		record.NewState,
		record.Source,
		record.CorrelationID,
		record.FiredAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to create transition record",
			zap.String("workflow", record.Workflow),
			zap.String("trigger", record.Trigger),
			zap.Error(err))
		return fmt.Errorf("failed to create transition record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	record.ID = id
	return nil
}

// ListByWorkflow returns the most recent records of a workflow, oldest first
func (r *TransitionRepository) ListByWorkflow(ctx context.Context, workflow string, limit int) ([]*entity.TransitionRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, workflow, trigger_name, previous_state, new_state,
			source, correlation_id, fired_at
		FROM transition_history
		WHERE workflow = ?
		ORDER BY id DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, workflow, limit)
	if err != nil {
		r.logger.Error("Failed to list transitions", zap.String("workflow", workflow), zap.Error(err))
		return nil, fmt.Errorf("failed to list transitions: %w", err)
	}
	defer rows.Close()

	var records []*entity.TransitionRecord
	for rows.Next() {
		var record entity.TransitionRecord
		if err := rows.Scan(
			&record.ID,
			&record.Workflow,
			&record.Trigger,
			&record.PreviousState,
			&record.NewState,
			&record.Source,
			&record.CorrelationID,
			&record.FiredAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan transition record: %w", err)
		}
		records = append(records, &record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transition records: %w", err)
	}

	// Newest first from the query; callers read the journal chronologically
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}

	return records, nil
}

// CountByWorkflow returns the number of journaled transitions of a workflow
func (r *TransitionRepository) CountByWorkflow(ctx context.Context, workflow string) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM transition_history WHERE workflow = ?", workflow,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count transitions: %w", err)
	}
	return count, nil
}

// Verify interface compliance
var _ port.TransitionRepository = (*TransitionRepository)(nil)
