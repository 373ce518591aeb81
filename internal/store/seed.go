package store

import (
	"fmt"

	"laundromat-backend/internal/model"
	"laundromat-backend/internal/parse"
)

// DefaultSeeds is the machine floor used when the configuration lists none.
func DefaultSeeds() []Seed {
	return []Seed{
		{ID: "W-11", Kind: model.KindWashing, Capacity: "10kg", Status: model.StatusInUse, RemainingSeconds: 150},
		{ID: "W-12", Kind: model.KindWashing, Capacity: "10kg", Status: model.StatusAvailable},
		{ID: "W-13", Kind: model.KindWashing, Capacity: "10kg", Status: model.StatusOutOfService},
		{ID: "W-21", Kind: model.KindWashing, Capacity: "15kg", Status: model.StatusAvailable},
		{ID: "W-22", Kind: model.KindWashing, Capacity: "15kg", Status: model.StatusAvailable},
		{ID: "W-23", Kind: model.KindWashing, Capacity: "15kg", Status: model.StatusOutOfService},
		{ID: "W-24", Kind: model.KindWashing, Capacity: "15kg", Status: model.StatusInUse, RemainingSeconds: 180},
		{ID: "W-25", Kind: model.KindWashing, Capacity: "15kg", Status: model.StatusInUse, RemainingSeconds: 130},
		{ID: "W-31", Kind: model.KindWashing, Capacity: "20kg", Status: model.StatusAvailable},
		{ID: "W-32", Kind: model.KindWashing, Capacity: "20kg", Status: model.StatusAvailable},
		{ID: "W-33", Kind: model.KindWashing, Capacity: "20kg", Status: model.StatusAvailable},
		{ID: "D-11", Kind: model.KindDryer, Capacity: "15kg", Status: model.StatusInUse, RemainingSeconds: 150},
		{ID: "D-12", Kind: model.KindDryer, Capacity: "15kg", Status: model.StatusAvailable},
		{ID: "D-13", Kind: model.KindDryer, Capacity: "15kg", Status: model.StatusOutOfService},
		{ID: "D-14", Kind: model.KindDryer, Capacity: "15kg", Status: model.StatusInUse, RemainingSeconds: 120},
		{ID: "D-15", Kind: model.KindDryer, Capacity: "15kg", Status: model.StatusAvailable},
		{ID: "D-16", Kind: model.KindDryer, Capacity: "15kg", Status: model.StatusAvailable},
		{ID: "D-17", Kind: model.KindDryer, Capacity: "15kg", Status: model.StatusInUse, RemainingSeconds: 180},
		{ID: "D-18", Kind: model.KindDryer, Capacity: "15kg", Status: model.StatusAvailable},
		{ID: "D-21", Kind: model.KindDryer, Capacity: "20kg", Status: model.StatusAvailable},
		{ID: "D-22", Kind: model.KindDryer, Capacity: "20kg", Status: model.StatusAvailable},
	}
}

// ValidateSeeds checks that every seed is well formed and ids are unique.
// A missing kind is inferred from the id prefix.
func ValidateSeeds(seeds []Seed) ([]Seed, error) {
	seen := make(map[string]struct{}, len(seeds))
	out := make([]Seed, 0, len(seeds))
	for _, s := range seeds {
		s.ID = parse.NormalizeID(s.ID)
		parsed, err := parse.MachineID(s.ID)
		if err != nil {
			return nil, fmt.Errorf("seed %q: %w", s.ID, err)
		}
		if _, dup := seen[s.ID]; dup {
			return nil, fmt.Errorf("seed %q: duplicate machine id", s.ID)
		}
		seen[s.ID] = struct{}{}

		if s.Kind == "" {
			s.Kind = parsed.Kind
		}
		if s.Kind != parsed.Kind {
			return nil, fmt.Errorf("seed %q: kind %q does not match id prefix", s.ID, s.Kind)
		}
		if _, err := parse.Capacity(s.Capacity); err != nil {
			return nil, fmt.Errorf("seed %q: %w", s.ID, err)
		}
		if s.Status == "" {
			s.Status = model.StatusAvailable
		}
		if !s.Status.Valid() {
			return nil, fmt.Errorf("seed %q: unknown status %q", s.ID, s.Status)
		}
		if s.Status == model.StatusInUse && s.RemainingSeconds <= 0 {
			return nil, fmt.Errorf("seed %q: in-use machine needs remaining_seconds > 0", s.ID)
		}
		out = append(out, s)
	}
	return out, nil
}
