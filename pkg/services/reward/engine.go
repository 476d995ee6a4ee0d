package reward

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/fadedpez/crates/internal/types"
	"github.com/fadedpez/crates/pkg/entities"
)

// Source yields uniform samples in [0, 1). The production source is
// cryptographically unpredictable; tests substitute fixed sequences.
type Source interface {
	Float64() (float64, error)
}

// CryptoSource draws samples from crypto/rand. Case opens are paid games of
// chance, so a seedable or client-observable generator is not acceptable
// here.
type CryptoSource struct{}

// Float64 returns a uniform sample in [0, 1).
func (CryptoSource) Float64() (float64, error) {
	var buf [8]byte
	if _, err := crand.Read(buf[:]); err != nil {
		return 0, fmt.Errorf("reading random bytes: %w", err)
	}
	// 53 random bits, the full precision of a float64 mantissa.
	bits := binary.BigEndian.Uint64(buf[:]) >> 11
	return float64(bits) / (1 << 53), nil
}

// Engine selects case rewards. Stateless and side-effect-free: it never
// touches the ledger; the caller applies the debit and credit as one atomic
// unit.
type Engine struct {
	src Source
}

// NewEngine creates an engine drawing from the given source.
func NewEngine(src Source) *Engine {
	return &Engine{src: src}
}

// Select draws one reward slot from the case. The mapping from a uniform
// sample to a slot is a step function over the cumulative-probability
// partition of [0, 100), so declared probabilities are honored exactly.
func (e *Engine) Select(def *entities.CaseDefinition) (*entities.CaseSlot, error) {
	sample, err := e.src.Float64()
	if err != nil {
		return nil, types.WrapError(types.ErrInternal, "drawing random sample", err)
	}
	return SelectAt(def, sample)
}

// SelectAt maps a uniform sample in [0, 1) onto the case's slots. Exposed so
// the partition itself is testable without mocking randomness.
func SelectAt(def *entities.CaseDefinition, sample float64) (*entities.CaseSlot, error) {
	if !def.ProbabilitiesValid() {
		return nil, types.NewErrorf(types.ErrConfiguration,
			"case %q probabilities sum to %.6f, want 100", def.ID, def.ProbabilitySum())
	}
	if sample < 0 || sample >= 1 {
		return nil, types.NewErrorf(types.ErrInternal, "sample %f outside [0,1)", sample)
	}

	point := sample * 100
	var cumulative float64
	for i := range def.Slots {
		cumulative += def.Slots[i].Probability
		if point < cumulative {
			return &def.Slots[i], nil
		}
	}

	// Float accumulation can leave the last boundary marginally below 100;
	// the tail of the interval belongs to the last slot with any weight.
	for i := len(def.Slots) - 1; i >= 0; i-- {
		if def.Slots[i].Probability > 0 {
			return &def.Slots[i], nil
		}
	}
	return nil, types.NewErrorf(types.ErrConfiguration, "case %q has no slot with positive probability", def.ID)
}
