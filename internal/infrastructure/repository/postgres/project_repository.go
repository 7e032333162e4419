package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/researchhub/researchhub/internal/core/domain"
)

type ProjectRepository struct {
	db *sql.DB
}

func NewProjectRepository(db *sql.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

func (r *ProjectRepository) GetContext(ctx context.Context, projectID string) (domain.ProjectContext, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT project_id, goal, keywords
FROM projects
WHERE project_id = $1
`, projectID)

	var (
		project     domain.ProjectContext
		keywordsRaw []byte
	)
	if err := row.Scan(&project.ProjectID, &project.Goal, &keywordsRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ProjectContext{}, domain.WrapError(domain.ErrProjectNotFound, "get project", fmt.Errorf("project %s", projectID))
		}
		return domain.ProjectContext{}, fmt.Errorf("scan project: %w", err)
	}
	if len(keywordsRaw) > 0 {
		if err := json.Unmarshal(keywordsRaw, &project.Keywords); err != nil {
			return domain.ProjectContext{}, fmt.Errorf("unmarshal keywords: %w", err)
		}
	}
	return project, nil
}
