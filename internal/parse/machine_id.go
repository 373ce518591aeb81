package parse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"laundromat-backend/internal/model"
)

var (
	idRe       = regexp.MustCompile(`^([A-Za-z])\s*-\s*(\d+)$`)
	capacityRe = regexp.MustCompile(`(?i)^(\d+)\s*(?:kg)?$`)
)

// ParsedID holds the structured data parsed from a machine id such as "W-24".
type ParsedID struct {
	Kind model.MachineKind
	Bank int // first digit group: capacity bank
	Seq  int // position inside the bank
}

// MachineID extracts the machine kind, bank and sequence from a raw id.
// Ids with one digit after the dash have Bank 0.
func MachineID(raw string) (ParsedID, error) {
	s := strings.TrimSpace(raw)
	m := idRe.FindStringSubmatch(s)
	if m == nil {
		return ParsedID{}, fmt.Errorf("unable to parse machine id: %q", raw)
	}

	var kind model.MachineKind
	switch strings.ToUpper(m[1]) {
	case "W":
		kind = model.KindWashing
	case "D":
		kind = model.KindDryer
	default:
		return ParsedID{}, fmt.Errorf("unknown machine prefix %q in id %q", m[1], raw)
	}

	digits := m[2]
	p := ParsedID{Kind: kind}
	if len(digits) == 1 {
		p.Seq, _ = strconv.Atoi(digits)
		return p, nil
	}
	p.Bank, _ = strconv.Atoi(digits[:1])
	p.Seq, _ = strconv.Atoi(digits[1:])
	return p, nil
}

// NormalizeID trims and upper-cases a machine id so "w-11 " matches "W-11".
func NormalizeID(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// Capacity returns the size in kilograms of a label such as "15kg" or "15".
func Capacity(label string) (int, error) {
	m := capacityRe.FindStringSubmatch(strings.TrimSpace(label))
	if m == nil {
		return 0, fmt.Errorf("unable to parse capacity: %q", label)
	}
	kg, err := strconv.Atoi(m[1])
	if err != nil || kg <= 0 {
		return 0, fmt.Errorf("unable to parse capacity: %q", label)
	}
	return kg, nil
}
