package domain

// ActionType tags an XP-earning user action. The set is closed: awarding XP
// for an unknown action is rejected at the store boundary.
type ActionType string

const (
	ActionUpload    ActionType = "upload"
	ActionDelete    ActionType = "delete"
	ActionSummary   ActionType = "summarize"
	ActionExercises ActionType = "generate_exercises"
	ActionControl   ActionType = "generate_control"
	ActionLogin     ActionType = "login"
	ActionComment   ActionType = "comment"
	ActionShare     ActionType = "share"
)

// XPPerLevel is the fixed level width.
const XPPerLevel = 100

var actionPoints = map[ActionType]int{
	ActionUpload:    10,
	ActionDelete:    0,
	ActionSummary:   15,
	ActionExercises: 20,
	ActionControl:   40,
	ActionLogin:     5,
	ActionComment:   5,
	ActionShare:     10,
}

// PointsFor returns the fixed point value for an action.
// Unknown actions are worth nothing and reported as such.
func PointsFor(action ActionType) (int, bool) {
	pts, ok := actionPoints[action]
	return pts, ok
}

// LevelForXP derives the level from cumulative XP (level 1 at 0 XP).
func LevelForXP(xp int) int {
	if xp < 0 {
		xp = 0
	}
	return xp/XPPerLevel + 1
}

// XPIntoLevel returns progress within the current level, in [0, XPPerLevel).
func XPIntoLevel(xp int) int {
	if xp < 0 {
		xp = 0
	}
	return xp % XPPerLevel
}
