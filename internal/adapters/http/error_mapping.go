package httpadapter

import (
	"net/http"

	"github.com/researchhub/researchhub/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrProjectNotFound), domain.IsKind(err, domain.ErrChunkNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrRetrievalUnavailable),
		domain.IsKind(err, domain.ErrEmbeddingUnavailable),
		domain.IsKind(err, domain.ErrGenerationUnavailable),
		domain.IsKind(err, domain.ErrScorerUnavailable),
		domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
