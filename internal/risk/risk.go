// Package risk derives a coarse clinical risk level from a user's
// recent diary signals. Surfaced on /login and /user/me and attached to
// relay payloads.
package risk

// Level is the coarse bucket the clients and the Satellite understand.
type Level string

const (
	LevelLow      Level = "low"
	LevelModerate Level = "moderate"
	LevelHigh     Level = "high"
)

// Signal is one diary's contribution to the assessment.
type Signal struct {
	MoodLevel  int // 1..10
	SafetyFlag bool
	Mode       string // green | yellow | red
}

// Assess buckets recent signals. Any safety flag or red-mode entry is
// high; a low recent mood average is moderate. No data means low.
func Assess(signals []Signal) Level {
	if len(signals) == 0 {
		return LevelLow
	}
	sum := 0
	for _, s := range signals {
		if s.SafetyFlag || s.Mode == "red" {
			return LevelHigh
		}
		sum += s.MoodLevel
	}
	avg := float64(sum) / float64(len(signals))
	if avg <= 3.5 {
		return LevelHigh
	}
	if avg <= 6 {
		return LevelModerate
	}
	return LevelLow
}

// Score maps a level onto the numeric scale the relay payload carries.
func Score(l Level) int {
	switch l {
	case LevelHigh:
		return 3
	case LevelModerate:
		return 2
	default:
		return 1
	}
}
