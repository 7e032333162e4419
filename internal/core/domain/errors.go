package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrEmbeddingUnavailable means the query embedding capability failed.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
	// ErrScorerUnavailable means a single search index failed or timed out.
	ErrScorerUnavailable = errors.New("scorer unavailable")
	// ErrRetrievalUnavailable means both search indexes failed in one round.
	ErrRetrievalUnavailable = errors.New("retrieval unavailable")
	// ErrGenerationUnavailable means the generation capability failed.
	ErrGenerationUnavailable = errors.New("generation unavailable")
	// ErrChunkNotFound means a chunk id has no row in the chunk store.
	ErrChunkNotFound = errors.New("chunk not found")
	// ErrProjectNotFound means the project scope does not exist.
	ErrProjectNotFound = errors.New("project not found")

	ErrInvalidInput = errors.New("invalid input")
	ErrTemporary    = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
