package clusters

import "strings"

// Traits marks a cluster as the first and/or last cluster of its chain.
type Traits uint8

const (
	TraitNone  Traits = 0
	TraitStart Traits = 1 << 0
	TraitEnd   Traits = 1 << 1

	traitsMask = TraitStart | TraitEnd
)

// Has returns true if all the bits in flags are set
func (t Traits) Has(flags Traits) bool {
	return t&flags == flags
}

func (t Traits) Valid() bool {
	return t&^traitsMask == 0
}

func (t Traits) String() string {
	if t == TraitNone {
		return "None"
	}
	var parts []string
	if t.Has(TraitStart) {
		parts = append(parts, "Start")
	}
	if t.Has(TraitEnd) {
		parts = append(parts, "End")
	}
	if !t.Valid() {
		parts = append(parts, "Invalid")
	}
	return strings.Join(parts, "|")
}
