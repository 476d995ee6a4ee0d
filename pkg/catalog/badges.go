package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/fadedpez/crates/internal/types"
	"github.com/fadedpez/crates/pkg/entities"
)

// badgeFile is the on-disk shape of the badge catalog.
type badgeFile struct {
	Badges []entities.Badge `yaml:"badges"`
}

// LoadBadges reads and validates the static badge catalog.
func LoadBadges(path string) ([]*entities.Badge, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, types.WrapError(types.ErrConfiguration, fmt.Sprintf("reading badge file %s", path), err)
	}

	var f badgeFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, types.WrapError(types.ErrConfiguration, "parsing badge file", err)
	}

	return ValidateBadges(f.Badges)
}

// ValidateBadges checks already-decoded badge definitions.
func ValidateBadges(badges []entities.Badge) ([]*entities.Badge, error) {
	seen := make(map[string]bool, len(badges))
	result := make([]*entities.Badge, 0, len(badges))

	for i := range badges {
		badge := badges[i]
		if badge.Code == "" {
			return nil, types.NewError(types.ErrConfiguration, "badge code cannot be empty")
		}
		if seen[badge.Code] {
			return nil, types.NewErrorf(types.ErrConfiguration, "duplicate badge code %q", badge.Code)
		}
		if !badge.Criteria.Type.IsValid() {
			return nil, types.NewErrorf(types.ErrConfiguration,
				"badge %q has unknown criteria type %q", badge.Code, badge.Criteria.Type)
		}
		if badge.Criteria.Value <= 0 {
			return nil, types.NewErrorf(types.ErrConfiguration,
				"badge %q must have a positive criteria value", badge.Code)
		}
		seen[badge.Code] = true
		result = append(result, &badge)
	}

	return result, nil
}
