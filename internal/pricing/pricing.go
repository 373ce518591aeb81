// Package pricing computes the price and run length offered for a machine.
package pricing

import (
	"fmt"

	"laundromat-backend/internal/model"
	"laundromat-backend/internal/parse"
)

// Program is the water temperature of a washing run.
type Program string

const (
	ProgramNormal Program = "normal"
	ProgramWarm   Program = "warm"
	ProgramHot    Program = "hot"
)

const (
	// RunSeconds is the base length of every run.
	RunSeconds = 1500

	// DryerExtraPrice buys DryerExtraSeconds of additional drying.
	DryerExtraPrice   = 10
	DryerExtraSeconds = 6 * 60

	maxExtraUnits = 12
)

var washPrices = map[Program]map[int]int64{
	ProgramNormal: {10: 40, 15: 50, 20: 60},
	ProgramWarm:   {10: 50, 15: 60, 20: 70},
	ProgramHot:    {10: 60, 15: 70, 20: 80},
}

var dryerBasePrices = map[int]int64{15: 40, 20: 50}

// Offer is a priced run for one machine configuration.
type Offer struct {
	Kind            model.MachineKind `json:"kind"`
	CapacityKg      int               `json:"capacityKg"`
	Program         Program           `json:"program,omitempty"`
	ExtraUnits      int               `json:"extraUnits,omitempty"`
	Price           int64             `json:"price"`
	DurationSeconds int               `json:"durationSeconds"`
}

// Quote prices a run. Washers take a program (empty means normal) and no
// extra units; dryers take extra units and no program.
func Quote(kind model.MachineKind, capacity string, program Program, extraUnits int) (Offer, error) {
	kg, err := parse.Capacity(capacity)
	if err != nil {
		return Offer{}, fmt.Errorf("%v: %w", err, model.ErrInvalidInput)
	}

	switch kind {
	case model.KindWashing:
		if extraUnits != 0 {
			return Offer{}, fmt.Errorf("washing machines take no extra units: %w", model.ErrInvalidInput)
		}
		if program == "" {
			program = ProgramNormal
		}
		table, ok := washPrices[program]
		if !ok {
			return Offer{}, fmt.Errorf("unknown program %q: %w", program, model.ErrInvalidInput)
		}
		price, ok := table[kg]
		if !ok {
			return Offer{}, fmt.Errorf("no %dkg washer: %w", kg, model.ErrInvalidInput)
		}
		return Offer{Kind: kind, CapacityKg: kg, Program: program, Price: price, DurationSeconds: RunSeconds}, nil

	case model.KindDryer:
		if program != "" {
			return Offer{}, fmt.Errorf("dryers take no program: %w", model.ErrInvalidInput)
		}
		if extraUnits < 0 || extraUnits > maxExtraUnits {
			return Offer{}, fmt.Errorf("extra units must be between 0 and %d: %w", maxExtraUnits, model.ErrInvalidInput)
		}
		base, ok := dryerBasePrices[kg]
		if !ok {
			return Offer{}, fmt.Errorf("no %dkg dryer: %w", kg, model.ErrInvalidInput)
		}
		return Offer{
			Kind:            kind,
			CapacityKg:      kg,
			ExtraUnits:      extraUnits,
			Price:           base + int64(extraUnits)*DryerExtraPrice,
			DurationSeconds: RunSeconds + extraUnits*DryerExtraSeconds,
		}, nil

	default:
		return Offer{}, fmt.Errorf("unknown machine kind %q: %w", kind, model.ErrInvalidInput)
	}
}

// ForMachine prices a run on m.
func ForMachine(m model.Machine, program Program, extraUnits int) (Offer, error) {
	return Quote(m.Kind, m.Capacity, program, extraUnits)
}
