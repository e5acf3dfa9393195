package database

import (
	"time"

	"github.com/google/uuid"
)

// User is an account on the Hub. CenterCode is set once the user links
// to a care institution through a verification code.
type User struct {
	ID                  uuid.UUID  `db:"id"`
	Username            string     `db:"username"`
	HashedPassword      string     `db:"hashed_password"`
	Nickname            string     `db:"nickname"`
	Role                string     `db:"role"`
	CenterCode          *string    `db:"center_code"`
	AssessmentCompleted bool       `db:"assessment_completed"`
	LastLoginAt         *time.Time `db:"last_login_at"`
	CreatedAt           time.Time  `db:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at"`
}

// Diary is one dated journal entry. The six free-text fields and the two
// AI fields are stored encrypted; numeric and enum fields stay cleartext.
type Diary struct {
	ID             uuid.UUID `db:"id"`
	UserID         uuid.UUID `db:"user_id"`
	Date           string    `db:"date"` // YYYY-MM-DD
	MoodLevel      int       `db:"mood_level"`
	MoodScore      *int      `db:"mood_score"`
	Weather        string    `db:"weather"`
	Temperature    *float64  `db:"temperature"`
	Mode           string    `db:"mode"` // green | yellow | red
	SafetyFlag     bool      `db:"safety_flag"`
	Event          string    `db:"event"`
	EmotionDesc    string    `db:"emotion_desc"`
	EmotionMeaning string    `db:"emotion_meaning"`
	SelfTalk       string    `db:"self_talk"`
	SleepCondition string    `db:"sleep_condition"`
	GratitudeNote  string    `db:"gratitude_note"`
	AIEmotion      string    `db:"ai_emotion"`
	AIComment      string    `db:"ai_comment"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// Institution is an affiliated care center, provisioned out-of-band or
// cached locally after a Satellite-verified code lookup.
type Institution struct {
	ID        uuid.UUID `db:"id"`
	Code      string    `db:"code"`
	Name      string    `db:"name"`
	Region    string    `db:"region"`
	CreatedAt time.Time `db:"created_at"`
}

// VerificationCode is a single-use token an institution issues to a
// patient. It transitions is_used false->true exactly once.
type VerificationCode struct {
	Code            string     `db:"code"`
	InstitutionCode string     `db:"institution_code"`
	IsUsed          bool       `db:"is_used"`
	UsedBy          *uuid.UUID `db:"used_by"`
	UsedAt          *time.Time `db:"used_at"`
	CreatedAt       time.Time  `db:"created_at"`
}
