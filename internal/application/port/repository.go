package port

import (
	"context"

	"github.com/garyjia/issueflow/internal/domain/entity"
)

// TransitionRepository defines persistence operations for the transition journal.
// The journal is append-only and is never used to restore machine state.
type TransitionRepository interface {
	Create(ctx context.Context, record *entity.TransitionRecord) error
	ListByWorkflow(ctx context.Context, workflow string, limit int) ([]*entity.TransitionRecord, error)
	CountByWorkflow(ctx context.Context, workflow string) (int64, error)
}
