package features

import (
	"math"
	"sort"
)

// Weights blends the four matchmaking signals into one composite score.
type Weights struct {
	Rating float64
	Streak float64
	Time   float64
	Style  float64
}

// DefaultWeights returns the production weighting of the matchmaking signals.
func DefaultWeights() Weights {
	return Weights{Rating: 0.5, Streak: 0.2, Time: 0.2, Style: 0.1}
}

const (
	// maxRatingGap is the hard candidate filter on rating distance.
	maxRatingGap = 300

	// ratingSigma shapes the Gaussian rating-proximity score: opponents
	// ~50 points away still score well, ~150 points away score near zero.
	ratingSigma = 50.0

	// streakDecay dampens the streak signal: long streaks in either
	// direction pull the score down smoothly.
	streakDecay = 5.0
)

// cosine returns the cosine similarity of two equal-length vectors.
// Zero-magnitude vectors are treated as having norm 1 so the result stays
// defined (and zero).
func cosine(a, b []float64) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	norm := math.Sqrt(normA) * math.Sqrt(normB)
	if norm == 0 {
		norm = 1
	}
	return dot / norm
}

// Score rates how good a pairing opponent is for challenger:
// rating proximity (Gaussian), streak smoothing (favor challengers on even
// keel), time-control affinity (preference distributions multiplied), and
// style diversity (dissimilar opening repertoires pair better).
func Score(challenger, opponent Features, w Weights) float64 {
	diff := float64(challenger.Rating - opponent.Rating)
	ratingScore := math.Exp(-(diff * diff) / (2 * ratingSigma * ratingSigma))

	streakScore := math.Exp(-math.Abs(float64(challenger.Streak)) / streakDecay)

	timeScore := 0.0
	for tc, frac := range challenger.TimePref {
		timeScore += frac * opponent.TimePref[tc]
	}

	styleScore := 1 - cosine(challenger.StyleVec, opponent.StyleVec)

	return w.Rating*ratingScore +
		w.Streak*streakScore +
		w.Time*timeScore +
		w.Style*styleScore
}

// FindOpponent selects the best opponent for challenger from all stored
// profiles. Candidates must be within maxRatingGap rating points and share at
// least one time control. Ties are broken by username so the result is
// deterministic. The boolean is false when no candidate qualifies.
func FindOpponent(challenger string, all map[string]Features, w Weights) (string, float64, bool) {
	u, ok := all[challenger]
	if !ok {
		return "", 0, false
	}

	names := make([]string, 0, len(all))
	for name := range all {
		names = append(names, name)
	}
	sort.Strings(names)

	bestName := ""
	bestScore := 0.0
	found := false

	for _, name := range names {
		if name == challenger {
			continue
		}
		o := all[name]

		gap := u.Rating - o.Rating
		if gap < 0 {
			gap = -gap
		}
		if gap > maxRatingGap {
			continue
		}
		if !sharesTimeControl(u.TimePref, o.TimePref) {
			continue
		}

		s := Score(u, o, w)
		if !found || s > bestScore {
			bestName = name
			bestScore = s
			found = true
		}
	}

	return bestName, bestScore, found
}

func sharesTimeControl(a, b map[string]float64) bool {
	for tc := range a {
		if _, ok := b[tc]; ok {
			return true
		}
	}
	return false
}
