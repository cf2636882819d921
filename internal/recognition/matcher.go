package recognition

import (
	"sort"

	"github.com/classlens/classlens/internal/embedding"
)

const (
	// DefaultThreshold is the minimum normalized similarity for a match.
	DefaultThreshold = 0.6

	// DefaultMaxFaces caps how many detections per photo are matched.
	// Excess detections are dropped with a reported count, not an error.
	DefaultMaxFaces = 50
)

// Options configures a single matching run.
type Options struct {
	Threshold float64
	MaxFaces  int
}

// applyDefaults fills zero values with the package defaults.
func (o Options) applyDefaults() Options {
	if o.Threshold <= 0 {
		o.Threshold = DefaultThreshold
	}
	if o.MaxFaces <= 0 {
		o.MaxFaces = DefaultMaxFaces
	}
	return o
}

// scoredPair is one (query face, student) similarity matrix entry at or
// above the threshold.
type scoredPair struct {
	faceIdx    int // index into the capped query slice
	enrolled   int // index into the enrolled slice
	similarity float64
}

// MatchPhoto assigns detected faces to enrolled students using greedy
// bipartite assignment: pairs are taken in order of descending similarity,
// and a pair is accepted only if neither its face nor its student has been
// assigned yet within this photo. This guarantees at most one student per
// face and at most one face per student. Greedy is preferred over optimal
// assignment here: face counts are small and ties are rare, and determinism
// matters more than rank-optimality.
//
// Returns ErrDimensionMismatch if any query vector's length disagrees with
// the enrolled version; the caller skips that photo, not the session.
func MatchPhoto(queryFaces []QueryFace, enrolled []EnrolledFace, photoIndex int, opts Options) (*Result, error) {
	opts = opts.applyDefaults()

	dropped := 0
	if len(queryFaces) > opts.MaxFaces {
		dropped = len(queryFaces) - opts.MaxFaces
		queryFaces = queryFaces[:opts.MaxFaces]
	}

	result := &Result{
		FacesDetected: len(queryFaces),
		FacesDropped:  dropped,
		PhotoIndex:    photoIndex,
	}
	if len(queryFaces) == 0 || len(enrolled) == 0 {
		for i := range queryFaces {
			result.Outcomes = append(result.Outcomes, FaceOutcome{
				FaceIndex: queryFaces[i].FaceIndex,
				Kind:      OutcomeUnmatched,
			})
		}
		return result, nil
	}

	version := enrolled[0].Version
	for i := range queryFaces {
		if err := embedding.CheckDim(version, queryFaces[i].Vector); err != nil {
			return nil, err
		}
	}

	// Full similarity matrix, thresholded. Track the best below-threshold
	// score per face so rejections can report how close they came.
	pairs := make([]scoredPair, 0, len(queryFaces))
	bestScore := make([]float64, len(queryFaces))
	for qi := range queryFaces {
		for ei := range enrolled {
			sim := embedding.CosineSimilarity(queryFaces[qi].Vector, enrolled[ei].Vector)
			if sim > bestScore[qi] {
				bestScore[qi] = sim
			}
			if sim >= opts.Threshold {
				pairs = append(pairs, scoredPair{faceIdx: qi, enrolled: ei, similarity: sim})
			}
		}
	}

	// Descending similarity; ties broken by lower student ID, then lower
	// face index, so the assignment is deterministic.
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].similarity != pairs[j].similarity {
			return pairs[i].similarity > pairs[j].similarity
		}
		si, sj := enrolled[pairs[i].enrolled].StudentID, enrolled[pairs[j].enrolled].StudentID
		if si != sj {
			return si < sj
		}
		return queryFaces[pairs[i].faceIdx].FaceIndex < queryFaces[pairs[j].faceIdx].FaceIndex
	})

	faceAssigned := make([]bool, len(queryFaces))
	studentAssigned := make([]bool, len(enrolled))
	matchedStudent := make([]string, len(queryFaces))
	matchedScore := make([]float64, len(queryFaces))

	for _, p := range pairs {
		if faceAssigned[p.faceIdx] || studentAssigned[p.enrolled] {
			continue
		}
		faceAssigned[p.faceIdx] = true
		studentAssigned[p.enrolled] = true
		matchedStudent[p.faceIdx] = enrolled[p.enrolled].StudentID
		matchedScore[p.faceIdx] = p.similarity
	}

	for qi := range queryFaces {
		face := &queryFaces[qi]
		switch {
		case faceAssigned[qi]:
			result.Matches = append(result.Matches, Match{
				StudentID:  matchedStudent[qi],
				Confidence: matchedScore[qi],
				FaceIndex:  face.FaceIndex,
				PhotoIndex: photoIndex,
			})
			result.Outcomes = append(result.Outcomes, FaceOutcome{
				FaceIndex:  face.FaceIndex,
				Kind:       OutcomeMatched,
				StudentID:  matchedStudent[qi],
				Confidence: matchedScore[qi],
			})
		case bestScore[qi] > 0 && bestScore[qi] < opts.Threshold:
			result.Outcomes = append(result.Outcomes, FaceOutcome{
				FaceIndex:      face.FaceIndex,
				Kind:           OutcomeLowConfidence,
				BestConfidence: bestScore[qi],
			})
		default:
			// Above threshold for some student but lost every tie to
			// another face, or no measurable similarity at all.
			result.Outcomes = append(result.Outcomes, FaceOutcome{
				FaceIndex: face.FaceIndex,
				Kind:      OutcomeUnmatched,
			})
		}
	}

	result.FacesRecognized = len(result.Matches)
	return result, nil
}
