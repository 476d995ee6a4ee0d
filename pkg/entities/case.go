package entities

import "math"

// ProbabilityEpsilon is the tolerance applied when checking that a case's
// probabilities sum to 100.
const ProbabilityEpsilon = 1e-6

// CaseSlot is one possible reward inside a case, with its declared
// probability in percent.
type CaseSlot struct {
	ItemID      string  `yaml:"item"`
	Probability float64 `yaml:"probability"`
}

// CaseDefinition represents a purchasable case: a fixed price and an ordered
// list of probability-weighted rewards. Definitions are immutable after
// publication; administrative replacements go through the catalog under the
// same lock used for opening.
type CaseDefinition struct {
	ID    string     `yaml:"id"`
	Name  string     `yaml:"name"`
	Price int64      `yaml:"price"`
	Slots []CaseSlot `yaml:"slots"`
}

// ProbabilitySum returns the total declared probability across all slots.
func (c *CaseDefinition) ProbabilitySum() float64 {
	var sum float64
	for _, slot := range c.Slots {
		sum += slot.Probability
	}
	return sum
}

// ProbabilitiesValid reports whether every slot probability is non-negative
// and the total is 100 within ProbabilityEpsilon.
func (c *CaseDefinition) ProbabilitiesValid() bool {
	for _, slot := range c.Slots {
		if slot.Probability < 0 {
			return false
		}
	}
	return math.Abs(c.ProbabilitySum()-100) <= ProbabilityEpsilon
}
