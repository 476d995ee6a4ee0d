package badge

import (
	"github.com/fadedpez/crates/pkg/entities"
)

// Evaluator checks player statistics against the static badge catalog. It is
// pure: the same snapshot always yields the same unlocked set, and it never
// mutates anything.
type Evaluator struct {
	badges []*entities.Badge
}

// NewEvaluator creates an evaluator over a validated badge catalog.
func NewEvaluator(badges []*entities.Badge) *Evaluator {
	return &Evaluator{badges: badges}
}

// Badges returns the catalog the evaluator was built with.
func (e *Evaluator) Badges() []*entities.Badge {
	return e.badges
}

// Evaluate returns the codes of badges newly satisfied by the snapshot.
// Codes in alreadyUnlocked are never returned again; a badge once unlocked
// stays unlocked.
func (e *Evaluator) Evaluate(snapshot entities.StatsSnapshot, alreadyUnlocked map[string]bool) []string {
	var newlyUnlocked []string
	for _, badge := range e.badges {
		if alreadyUnlocked[badge.Code] {
			continue
		}
		if satisfies(snapshot, badge.Criteria) {
			newlyUnlocked = append(newlyUnlocked, badge.Code)
		}
	}
	return newlyUnlocked
}

// satisfies maps each criteria kind to its statistic. Every kind compares
// with >= except specific, which matches the exact wager of the triggering
// action and so can only fire at that moment.
func satisfies(s entities.StatsSnapshot, c entities.BadgeCriteria) bool {
	switch c.Type {
	case entities.CriteriaLevel:
		return int64(s.Level) >= c.Value
	case entities.CriteriaWins:
		return int64(s.Wins) >= c.Value
	case entities.CriteriaBalance:
		return s.Balance >= c.Value
	case entities.CriteriaGames:
		return int64(s.GamesPlayed) >= c.Value
	case entities.CriteriaBet:
		return s.HighestBet >= c.Value
	case entities.CriteriaWinStreak:
		return int64(s.WinStreak) >= c.Value
	case entities.CriteriaSpecific:
		return s.LastWager > 0 && s.LastWager == c.Value
	}
	return false
}

// UnlockedSet builds the lookup Evaluate expects from an account's badge
// list.
func UnlockedSet(codes []string) map[string]bool {
	set := make(map[string]bool, len(codes))
	for _, code := range codes {
		set[code] = true
	}
	return set
}
