package usecase

import (
	"sort"

	"github.com/researchhub/researchhub/internal/core/domain"
)

const defaultRRFK = 60

// fusedPlacement is one chunk's position in a fused list, before hydration.
type fusedPlacement struct {
	ChunkID string
	Rank    int
	Score   float64
}

type rrfCandidate struct {
	id        string
	score     float64
	inLexical bool
	inVector  bool
	lexRank   int
}

// fuseReciprocalRank merges a lexical and a vector ranking into one ordered
// list. Each occurrence at 1-indexed rank r contributes 1/(k+r); a chunk in
// both lists sums both contributions. Ties break by both-lists presence,
// then ascending lexical rank, then chunk id, so the output is deterministic
// for any pair of inputs. Pure function.
func fuseReciprocalRank(lexical, vector []domain.ScoredChunk, k int) []fusedPlacement {
	if k <= 0 {
		k = defaultRRFK
	}

	acc := make(map[string]*rrfCandidate, len(lexical)+len(vector))
	order := make([]string, 0, len(lexical)+len(vector))

	rank := 0
	for _, sc := range lexical {
		candidate, ok := acc[sc.ChunkID]
		if ok && candidate.inLexical {
			continue
		}
		rank++
		if !ok {
			candidate = &rrfCandidate{id: sc.ChunkID}
			acc[sc.ChunkID] = candidate
			order = append(order, sc.ChunkID)
		}
		candidate.inLexical = true
		candidate.lexRank = rank
		candidate.score += 1.0 / float64(k+rank)
	}

	rank = 0
	for _, sc := range vector {
		candidate, ok := acc[sc.ChunkID]
		if ok && candidate.inVector {
			continue
		}
		rank++
		if !ok {
			candidate = &rrfCandidate{id: sc.ChunkID}
			acc[sc.ChunkID] = candidate
			order = append(order, sc.ChunkID)
		}
		candidate.inVector = true
		candidate.score += 1.0 / float64(k+rank)
	}

	out := make([]*rrfCandidate, 0, len(order))
	for _, id := range order {
		out = append(out, acc[id])
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		iBoth := out[i].inLexical && out[i].inVector
		jBoth := out[j].inLexical && out[j].inVector
		if iBoth != jBoth {
			return iBoth
		}
		if out[i].lexRank != out[j].lexRank {
			return lexRankOrInf(out[i]) < lexRankOrInf(out[j])
		}
		return out[i].id < out[j].id
	})

	placements := make([]fusedPlacement, 0, len(out))
	for i, c := range out {
		placements = append(placements, fusedPlacement{
			ChunkID: c.id,
			Rank:    i + 1,
			Score:   c.score,
		})
	}
	return placements
}

// lexRankOrInf orders chunks absent from the lexical list after any chunk
// present in it.
func lexRankOrInf(c *rrfCandidate) int {
	if !c.inLexical {
		return int(^uint(0) >> 1)
	}
	return c.lexRank
}
