package features

import (
	"math"
	"testing"
)

func vecWith(indices ...int) []float64 {
	v := make([]float64, NumECOCodes)
	for _, i := range indices {
		v[i] = 1.0 / float64(len(indices))
	}
	return v
}

func TestCosine(t *testing.T) {
	a := vecWith(0, 1)
	b := vecWith(0, 1)
	if got := cosine(a, b); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("identical vectors should have cosine 1, got %v", got)
	}

	c := vecWith(2, 3)
	if got := cosine(a, c); got != 0 {
		t.Errorf("disjoint vectors should have cosine 0, got %v", got)
	}

	zero := make([]float64, NumECOCodes)
	if got := cosine(a, zero); got != 0 {
		t.Errorf("zero vector should yield cosine 0, got %v", got)
	}
}

func player(name string, rating, streak int, timeControls []string, ecoIdx ...int) Features {
	prefs := make(map[string]float64, len(timeControls))
	for _, tc := range timeControls {
		prefs[tc] = 1.0 / float64(len(timeControls))
	}
	return Features{
		Username: name,
		Rating:   rating,
		Streak:   streak,
		TimePref: prefs,
		StyleVec: vecWith(ecoIdx...),
	}
}

func TestScore_RatingProximityDominates(t *testing.T) {
	w := DefaultWeights()
	challenger := player("a", 1500, 0, []string{"600"}, 0)
	near := player("b", 1510, 0, []string{"600"}, 0)
	far := player("c", 1790, 0, []string{"600"}, 0)

	if Score(challenger, near, w) <= Score(challenger, far, w) {
		t.Error("a close-rated opponent should outscore a distant one")
	}
}

func TestScore_StyleDiversityRewarded(t *testing.T) {
	w := Weights{Style: 1} // isolate the style signal
	challenger := player("a", 1500, 0, []string{"600"}, 0, 1)
	sameStyle := player("b", 1500, 0, []string{"600"}, 0, 1)
	diffStyle := player("c", 1500, 0, []string{"600"}, 2, 3)

	if Score(challenger, diffStyle, w) <= Score(challenger, sameStyle, w) {
		t.Error("a dissimilar repertoire should outscore an identical one")
	}
}

func TestScore_TimeAffinity(t *testing.T) {
	w := Weights{Time: 1}
	challenger := player("a", 1500, 0, []string{"600"})
	sharesTC := player("b", 1500, 0, []string{"600"})
	noShared := player("c", 1500, 0, []string{"180"})

	if Score(challenger, sharesTC, w) <= Score(challenger, noShared, w) {
		t.Error("a shared time control should raise the score")
	}
}

func TestFindOpponent_PicksBestCandidate(t *testing.T) {
	all := map[string]Features{
		"challenger": player("challenger", 1500, 0, []string{"600"}, 0),
		"close":      player("close", 1505, 0, []string{"600"}, 10),
		"distant":    player("distant", 1700, 0, []string{"600"}, 10),
	}

	opponent, score, ok := FindOpponent("challenger", all, DefaultWeights())
	if !ok {
		t.Fatal("expected a match")
	}
	if opponent != "close" {
		t.Errorf("expected opponent close, got %s", opponent)
	}
	if score <= 0 {
		t.Errorf("expected positive score, got %v", score)
	}
}

func TestFindOpponent_RatingGapFilter(t *testing.T) {
	all := map[string]Features{
		"challenger": player("challenger", 1500, 0, []string{"600"}, 0),
		"toostrong":  player("toostrong", 1900, 0, []string{"600"}, 1),
	}

	if _, _, ok := FindOpponent("challenger", all, DefaultWeights()); ok {
		t.Error("opponents more than 300 points away must be filtered out")
	}
}

func TestFindOpponent_TimeControlFilter(t *testing.T) {
	all := map[string]Features{
		"challenger": player("challenger", 1500, 0, []string{"600"}, 0),
		"bulletonly": player("bulletonly", 1500, 0, []string{"60"}, 1),
	}

	if _, _, ok := FindOpponent("challenger", all, DefaultWeights()); ok {
		t.Error("opponents without a shared time control must be filtered out")
	}
}

func TestFindOpponent_UnknownChallenger(t *testing.T) {
	all := map[string]Features{
		"somebody": player("somebody", 1500, 0, []string{"600"}, 0),
	}

	if _, _, ok := FindOpponent("ghost", all, DefaultWeights()); ok {
		t.Error("unknown challenger should not match")
	}
}

func TestFindOpponent_Deterministic(t *testing.T) {
	// Two identical candidates: the tie must break the same way every time.
	all := map[string]Features{
		"challenger": player("challenger", 1500, 0, []string{"600"}, 0),
		"alice":      player("alice", 1505, 0, []string{"600"}, 1),
		"bob":        player("bob", 1505, 0, []string{"600"}, 1),
	}

	first, _, ok := FindOpponent("challenger", all, DefaultWeights())
	if !ok {
		t.Fatal("expected a match")
	}
	for i := 0; i < 20; i++ {
		got, _, _ := FindOpponent("challenger", all, DefaultWeights())
		if got != first {
			t.Fatalf("selection should be deterministic: got %s then %s", first, got)
		}
	}
	if first != "alice" {
		t.Errorf("ties break by username order, expected alice, got %s", first)
	}
}
