package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/researchhub/researchhub/internal/core/domain"
)

// ChunkRepository reads chunk text and metadata from the table the ingestion
// service maintains. This engine never writes to it.
type ChunkRepository struct {
	db *sql.DB
}

func NewChunkRepository(db *sql.DB) *ChunkRepository {
	return &ChunkRepository{db: db}
}

// FetchByIDs hydrates chunks for the given ids. Ids missing from the table
// are silently dropped; the caller decides whether that matters.
func (r *ChunkRepository) FetchByIDs(ctx context.Context, ids []string) ([]domain.Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}

	query := fmt.Sprintf(`
SELECT chunk_id, paper_id, project_id, chunk_text, title, authors, category, published_on
FROM paper_chunks
WHERE chunk_id IN (%s)
`, strings.Join(placeholders, ","))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	out := make([]domain.Chunk, 0, len(ids))
	for rows.Next() {
		var (
			chunk      domain.Chunk
			authorsRaw []byte
			title      sql.NullString
			category   sql.NullString
			published  sql.NullTime
		)
		err := rows.Scan(
			&chunk.ID, &chunk.Source.PaperID, &chunk.Source.ProjectID, &chunk.Text,
			&title, &authorsRaw, &category, &published,
		)
		if err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		chunk.Metadata.Title = title.String
		chunk.Metadata.Category = category.String
		if published.Valid {
			chunk.Metadata.PublishedOn = published.Time
		}
		if len(authorsRaw) > 0 {
			if err := json.Unmarshal(authorsRaw, &chunk.Metadata.Authors); err != nil {
				return nil, fmt.Errorf("unmarshal authors: %w", err)
			}
		}
		out = append(out, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	return out, nil
}
