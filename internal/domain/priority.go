package domain

import "strconv"

// Priority is an integer severity; lower values are more urgent.
type Priority int

const (
	PriorityCritical Priority = 0
	PriorityHigh     Priority = 1
	PriorityMedium   Priority = 2
	PriorityLow      Priority = 3
)

func (p Priority) Label() string {
	switch p {
	case PriorityCritical:
		return "P0 CRITICAL"
	case PriorityHigh:
		return "P1 HIGH"
	case PriorityMedium:
		return "P2 MEDIUM"
	case PriorityLow:
		return "P3 LOW"
	}
	return "P" + strconv.Itoa(int(p))
}

// Chip returns the CSS chip class used across list pages.
func (p Priority) Chip() string {
	switch p {
	case PriorityCritical:
		return "chip-crit"
	case PriorityHigh:
		return "chip-high"
	case PriorityMedium:
		return "chip-med"
	case PriorityLow:
		return "chip-low"
	}
	return "chip-med"
}

// MoreUrgentThan reports whether p outranks other (numerically lower).
func (p Priority) MoreUrgentThan(other Priority) bool {
	return p < other
}

// ParsePriority parses a form value, falling back to medium.
func ParsePriority(s string) Priority {
	n, err := strconv.Atoi(s)
	if err != nil || n < int(PriorityCritical) || n > int(PriorityLow) {
		return PriorityMedium
	}
	return Priority(n)
}
