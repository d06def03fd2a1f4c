package db

import (
	"embed"
	"encoding/json"
	"fmt"
)

//go:embed seeds/catalog.json
var seedsFS embed.FS

// SeedCondition mirrors a challenge's unlock rule in the seed file.
type SeedCondition struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// SeedChallenge is the challenge that awards its parent badge.
type SeedChallenge struct {
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Condition   SeedCondition `json:"condition"`
}

// SeedBadge is one badge of the built-in catalog.
type SeedBadge struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Image       string        `json:"image"`
	Challenge   SeedChallenge `json:"challenge"`
}

// SeedCatalog is the built-in badge and challenge catalog.
type SeedCatalog struct {
	Badges []SeedBadge `json:"badges"`
}

// LoadSeedCatalog decodes the embedded catalog.
func LoadSeedCatalog() (SeedCatalog, error) {
	raw, err := seedsFS.ReadFile("seeds/catalog.json")
	if err != nil {
		return SeedCatalog{}, fmt.Errorf("read seed catalog: %w", err)
	}

	var catalog SeedCatalog
	if err := json.Unmarshal(raw, &catalog); err != nil {
		return SeedCatalog{}, fmt.Errorf("decode seed catalog: %w", err)
	}

	for i, badge := range catalog.Badges {
		if badge.Name == "" || badge.Challenge.Title == "" || badge.Challenge.Condition.Count <= 0 {
			return SeedCatalog{}, fmt.Errorf("seed catalog entry %d is incomplete", i)
		}
	}

	return catalog, nil
}
