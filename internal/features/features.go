// Package features extracts matchmaking features from a player's recent
// games and scores candidate opponents. Four signals feed the composite
// score: current rating, win/loss streak, time-control preferences, and an
// opening-repertoire style vector over ECO codes.
package features

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/chequemate/platform/internal/chesscom"
)

const (
	// maxStreakGames bounds the streak scan to the most recent games.
	maxStreakGames = 10

	// NumECOCodes is the size of the style vector: ECO codes A00 through E99.
	NumECOCodes = 500
)

// ecoPattern matches the ECO header in a PGN, e.g. `[ECO "B20"]`.
var ecoPattern = regexp.MustCompile(`\[ECO "([A-E]\d{2})"\]`)

// ecoCodes lists every tracked ECO code, in vector order (A00..A99, B00..E99).
var ecoCodes = buildECOCodes()

func buildECOCodes() []string {
	codes := make([]string, 0, NumECOCodes)
	for _, volume := range []string{"A", "B", "C", "D", "E"} {
		for i := 0; i < 100; i++ {
			codes = append(codes, fmt.Sprintf("%s%02d", volume, i))
		}
	}
	return codes
}

// ECOIndex returns the style-vector index for an ECO code, or -1 if the code
// is not one of the tracked A00..E99 codes.
func ECOIndex(code string) int {
	if len(code) != 3 || code[0] < 'A' || code[0] > 'E' {
		return -1
	}
	tens := int(code[1] - '0')
	units := int(code[2] - '0')
	if tens < 0 || tens > 9 || units < 0 || units > 9 {
		return -1
	}
	return int(code[0]-'A')*100 + tens*10 + units
}

// Features is one player's matchmaking profile.
type Features struct {
	Username string
	Rating   int
	Streak   int
	TimePref map[string]float64 // time_control -> fraction of games
	StyleVec []float64          // normalized ECO frequency vector
}

// Extract computes a player's features from their games. Games must be
// ordered newest first (chesscom.Client.RecentGames guarantees this).
// With no games, Rating is 0 and the caller may backfill it from another
// rating source.
func Extract(username string, games []chesscom.Game) Features {
	return Features{
		Username: username,
		Rating:   currentRating(username, games),
		Streak:   streak(username, games),
		TimePref: timePreferences(games),
		StyleVec: styleVector(games),
	}
}

// currentRating takes the player's rating from the most recent game.
func currentRating(username string, games []chesscom.Game) int {
	if len(games) == 0 {
		return 0
	}
	return games[0].Side(username).Rating
}

// streak computes the win(+)/loss(-) run over up to the last maxStreakGames
// games. A win extends a non-negative streak; checkmated/timeout/resigned
// extends a non-positive streak; any other result (draws, abandons) ends the
// scan.
func streak(username string, games []chesscom.Game) int {
	n := len(games)
	if n > maxStreakGames {
		n = maxStreakGames
	}

	run := 0
	for _, g := range games[:n] {
		switch result := g.Side(username).Result; result {
		case "win":
			if run >= 0 {
				run++
			} else {
				run = 1
			}
		case "checkmated", "timeout", "resigned":
			if run <= 0 {
				run--
			} else {
				run = -1
			}
		default:
			return run
		}
	}
	return run
}

// timePreferences returns the fraction of games played at each time control.
func timePreferences(games []chesscom.Game) map[string]float64 {
	counts := make(map[string]int)
	for _, g := range games {
		counts[g.TimeControl]++
	}

	total := len(games)
	if total == 0 {
		total = 1
	}

	prefs := make(map[string]float64, len(counts))
	for tc, c := range counts {
		prefs[tc] = float64(c) / float64(total)
	}
	return prefs
}

// styleVector builds the normalized ECO frequency vector from PGN headers.
// Games without a recognizable ECO header are skipped; if none carry one the
// vector is all zeros.
func styleVector(games []chesscom.Game) []float64 {
	vec := make([]float64, NumECOCodes)
	total := 0.0
	for _, g := range games {
		if !strings.Contains(g.PGN, "[ECO") {
			continue
		}
		m := ecoPattern.FindStringSubmatch(g.PGN)
		if m == nil {
			continue
		}
		idx := ECOIndex(m[1])
		if idx < 0 {
			continue
		}
		vec[idx]++
		total++
	}

	if total == 0 {
		return vec
	}
	for i := range vec {
		vec[i] /= total
	}
	return vec
}
