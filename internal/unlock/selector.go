package unlock

import "example.com/progression/internal/rewards"

// ItemRef names a single inventory item.
type ItemRef struct {
	Category rewards.CategoryID `json:"category"`
	ItemID   string             `json:"item_id"`
}

// Owned reports whether an item is already unlocked.
type Owned interface {
	Has(category rewards.CategoryID, itemID string) bool
}

// Selector picks a locked item uniformly: first a category that still has locked items,
// then an item within that category's locked subset.
type Selector struct {
	src    Source
	chance float64
}

// NewSelector builds a Selector that unlocks with the given probability per roll.
func NewSelector(src Source, chance float64) *Selector {
	return &Selector{src: src, chance: chance}
}

// Chance returns the per-roll unlock probability.
func (s *Selector) Chance() float64 {
	return s.chance
}

// MaybeSelect rolls against the unlock chance and, on success, selects a locked item.
func (s *Selector) MaybeSelect(pools []rewards.ItemPool, owned Owned) (ItemRef, bool) {
	if s.chance <= 0 {
		return ItemRef{}, false
	}
	if s.src.Float64() >= s.chance {
		return ItemRef{}, false
	}
	return s.Select(pools, owned)
}

// Select returns a locked item, or false when every pool is fully unlocked.
func (s *Selector) Select(pools []rewards.ItemPool, owned Owned) (ItemRef, bool) {
	type candidate struct {
		category rewards.CategoryID
		locked   []string
	}

	candidates := make([]candidate, 0, len(pools))
	for _, pool := range pools {
		var locked []string
		for _, item := range pool.Items {
			if !owned.Has(pool.Category, item) {
				locked = append(locked, item)
			}
		}
		if len(locked) > 0 {
			candidates = append(candidates, candidate{category: pool.Category, locked: locked})
		}
	}
	if len(candidates) == 0 {
		return ItemRef{}, false
	}

	picked := candidates[s.src.IntN(len(candidates))]
	return ItemRef{
		Category: picked.category,
		ItemID:   picked.locked[s.src.IntN(len(picked.locked))],
	}, true
}
