package domain

// Allowed bit status and shroud condition values, in form display order.
var (
	BitStatuses      = []string{"NEW", "VERY_USED", "NEEDS_RESHARPEN", "SHARPENED", "EOL"}
	ShroudConditions = []string{"NEW", "GOOD", "WORN", "EOL"}
)

func ValidBitStatus(s string) bool {
	for _, v := range BitStatuses {
		if s == v {
			return true
		}
	}
	return false
}

func ValidShroudCondition(s string) bool {
	for _, v := range ShroudConditions {
		if s == v {
			return true
		}
	}
	return false
}

// AttentionBitStatuses are the statuses surfaced on the critical board.
var AttentionBitStatuses = []string{"NEEDS_RESHARPEN", "VERY_USED"}
