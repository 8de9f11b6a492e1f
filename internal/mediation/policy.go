package mediation

import (
	"strings"
	"time"
)

// minConflictScore is the threshold below which automatic mediation never
// fires.
const minConflictScore = 4

// DefaultCooldown is the minimum elapsed time between two automatic
// mediation escalations for the same conversation.
const DefaultCooldown = 5 * time.Minute

// manualCommands force mediation when a message exactly equals one of them
// (trimmed, lowercased). "/ajuda" also appears in the trigger keyword set;
// exact-command matching takes precedence over keyword matching.
var manualCommands = map[string]bool{
	"/sos":    true,
	"/mediar": true,
	"/ajuda":  true,
}

// IsManualTrigger reports whether text is an explicit mediation command.
func IsManualTrigger(text string) bool {
	return manualCommands[strings.ToLower(strings.TrimSpace(text))]
}

// ShouldMediate decides whether to escalate into mediation mode. Pure: the
// caller records the mediation event (timestamp + counter) atomically when
// it acts on a true result.
//
// Priority order: manual override → score threshold → cooldown.
// lastMediation is the zero time when this conversation has never been
// mediated.
func ShouldMediate(score int, lastMediation time.Time, manual bool, now time.Time, cooldown time.Duration) bool {
	if manual {
		return true
	}
	if score < minConflictScore {
		return false
	}
	if !lastMediation.IsZero() && now.Sub(lastMediation) < cooldown {
		return false
	}
	return true
}
