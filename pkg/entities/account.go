package entities

import "time"

// PlayerAccount represents a player's balance and cumulative statistics.
// Balance and statistics are mutated only through ledger transactions.
type PlayerAccount struct {
	PlayerID    string
	Balance     int64
	Stats       PlayerStats
	Badges      []string // unlocked badge codes, never revoked
	LastUpdated time.Time
}

// PlayerStats holds the cumulative gameplay statistics for one player.
type PlayerStats struct {
	GamesPlayed  int
	Wins         int
	WinStreak    int
	TotalWagered int64
	HighestBet   int64
	Level        int
}

// Clone returns a deep copy of the account.
func (a *PlayerAccount) Clone() *PlayerAccount {
	clone := *a
	clone.Badges = make([]string, len(a.Badges))
	copy(clone.Badges, a.Badges)
	return &clone
}

// HasBadge reports whether the given badge code is already unlocked.
func (a *PlayerAccount) HasBadge(code string) bool {
	for _, c := range a.Badges {
		if c == code {
			return true
		}
	}
	return false
}

// StatsSnapshot is the immutable view of an account handed to the badge
// evaluator after a state-changing operation. LastWager carries the wager
// amount of the triggering action, if any, so exact-match criteria can be
// checked at the moment they can only ever be satisfied.
type StatsSnapshot struct {
	PlayerID     string
	Balance      int64
	GamesPlayed  int
	Wins         int
	WinStreak    int
	TotalWagered int64
	HighestBet   int64
	Level        int
	LastWager    int64
}

// Snapshot captures the account's current statistics. lastWager is the wager
// of the operation that produced this snapshot, or 0 when the operation did
// not involve a wager.
func (a *PlayerAccount) Snapshot(lastWager int64) StatsSnapshot {
	return StatsSnapshot{
		PlayerID:     a.PlayerID,
		Balance:      a.Balance,
		GamesPlayed:  a.Stats.GamesPlayed,
		Wins:         a.Stats.Wins,
		WinStreak:    a.Stats.WinStreak,
		TotalWagered: a.Stats.TotalWagered,
		HighestBet:   a.Stats.HighestBet,
		Level:        a.Stats.Level,
		LastWager:    lastWager,
	}
}

// TransactionType represents the type of balance transaction
type TransactionType string

const (
	TransactionTypeCaseOpen TransactionType = "CASE_OPEN"
	TransactionTypeSale     TransactionType = "SALE"
	TransactionTypeAdjust   TransactionType = "ADJUST"
)

// Transaction represents a single balance mutation in the journal
type Transaction struct {
	ID           string          // Unique identifier
	PlayerID     string          // Player associated with the transaction
	Amount       int64           // Amount (positive for credits, negative for debits)
	Type         TransactionType // Type of transaction
	ReferenceID  string          // Optional reference (e.g., case ID, trade ID)
	Description  string          // Human-readable description
	Timestamp    time.Time       // When the transaction occurred
	BalanceAfter int64           // Balance after this transaction
}
