package entities

// CriteriaType enumerates the statistic a badge criterion is checked
// against. The set is closed so every evaluator call site can switch
// exhaustively.
type CriteriaType string

const (
	CriteriaLevel     CriteriaType = "level"
	CriteriaWins      CriteriaType = "wins"
	CriteriaBalance   CriteriaType = "balance"
	CriteriaGames     CriteriaType = "games"
	CriteriaBet       CriteriaType = "bet"
	CriteriaWinStreak CriteriaType = "winstreak"
	CriteriaSpecific  CriteriaType = "specific"
)

// IsValid reports whether the criteria type is one of the known kinds.
func (c CriteriaType) IsValid() bool {
	switch c {
	case CriteriaLevel, CriteriaWins, CriteriaBalance, CriteriaGames,
		CriteriaBet, CriteriaWinStreak, CriteriaSpecific:
		return true
	}
	return false
}

// BadgeCriteria is a typed threshold rule. All kinds compare the mapped
// statistic with >= except specific, which is an exact wager match.
type BadgeCriteria struct {
	Type  CriteriaType `yaml:"type"`
	Value int64        `yaml:"value"`
}

// Badge represents one entry in the static badge catalog. Never mutated by
// gameplay; the secret flag is display metadata only.
type Badge struct {
	Code        string        `yaml:"code"`
	Name        string        `yaml:"name"`
	Description string        `yaml:"description"`
	Secret      bool          `yaml:"secret"`
	Criteria    BadgeCriteria `yaml:"criteria"`
}
