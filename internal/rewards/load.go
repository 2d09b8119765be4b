package rewards

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Load reads a JSON reward table from path. Fields missing from the file keep their defaults.
// An empty path returns Default().
func Load(path string) (Table, error) {
	table := Default()
	if path == "" {
		return table, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return Table{}, fmt.Errorf("read reward table: %w", err)
	}
	if err := json.Unmarshal(raw, &table); err != nil {
		return Table{}, fmt.Errorf("decode reward table: %w", err)
	}
	if err := table.Validate(); err != nil {
		return Table{}, err
	}
	return table, nil
}

// Validate checks struct constraints and cross-references between sections.
func (t Table) Validate() error {
	if err := validate.Struct(t); err != nil {
		return fmt.Errorf("validate reward table: %w", err)
	}

	seen := make(map[AchievementID]struct{}, len(t.Achievements))
	for _, def := range t.Achievements {
		if _, dup := seen[def.ID]; dup {
			return fmt.Errorf("validate reward table: duplicate achievement %q", def.ID)
		}
		seen[def.ID] = struct{}{}
	}

	categories := make(map[CategoryID]struct{}, len(t.ItemPools))
	for _, pool := range t.ItemPools {
		if _, dup := categories[pool.Category]; dup {
			return fmt.Errorf("validate reward table: duplicate item pool %q", pool.Category)
		}
		categories[pool.Category] = struct{}{}
	}

	if _, ok := t.Style(DefaultAvatarStyle); !ok {
		return fmt.Errorf("validate reward table: default avatar style %q missing", DefaultAvatarStyle)
	}
	return nil
}

// DefaultAvatarStyle is the style assigned to new users.
const DefaultAvatarStyle = "pixel-art"
