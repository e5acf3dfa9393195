package api

import (
	"fmt"
	"time"

	database "github.com/maum-on/haruon-hub/internal"
	"github.com/maum-on/haruon-hub/internal/crypto"
)

// RegisterRequest defines the expected JSON body for user registration.
type RegisterRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required,min=4"`
	Nickname string `json:"nickname"`
	Role     string `json:"role"`
}

type LoginRequest struct {
	Username   string `json:"username" binding:"required"`
	Password   string `json:"password" binding:"required"`
	CenterCode string `json:"center_code"`
}

// DiaryRequest is the create/update body. Legacy clients send the
// positional aliases question1..question4 instead of the canonical
// field names; normalize folds them in at the boundary so the core
// never sees both spellings.
type DiaryRequest struct {
	Date        string   `json:"date"`
	MoodLevel   *int     `json:"mood_level"`
	Weather     *string  `json:"weather"`
	Temperature *float64 `json:"temperature"`
	Mode        *string  `json:"mode"`
	SafetyFlag  *bool    `json:"safety_flag"`

	Event          *string `json:"event"`
	EmotionDesc    *string `json:"emotion_desc"`
	EmotionMeaning *string `json:"emotion_meaning"`
	SelfTalk       *string `json:"self_talk"`
	SleepCondition *string `json:"sleep_condition"`
	GratitudeNote  *string `json:"gratitude_note"`

	Question1 *string `json:"question1"`
	Question2 *string `json:"question2"`
	Question3 *string `json:"question3"`
	Question4 *string `json:"question4"`

	// Reserved: normally server-populated by the analysis worker.
	AIComment *string `json:"ai_comment"`
	AIEmotion *string `json:"ai_emotion"`
}

// validate checks the cleartext numeric/enum fields. Stored scale is
// 1-10; legacy 1-5 clients fit inside it unchanged.
func (r *DiaryRequest) validate() error {
	if r.MoodLevel != nil && (*r.MoodLevel < 1 || *r.MoodLevel > 10) {
		return fmt.Errorf("mood_level must be between 1 and 10")
	}
	if r.Mode != nil && *r.Mode != "" && *r.Mode != "green" && *r.Mode != "yellow" && *r.Mode != "red" {
		return fmt.Errorf("mode must be one of green, yellow, red")
	}
	return nil
}

func (r *DiaryRequest) normalize() {
	if r.Event == nil {
		r.Event = r.Question1
	}
	if r.EmotionDesc == nil {
		r.EmotionDesc = r.Question2
	}
	if r.EmotionMeaning == nil {
		r.EmotionMeaning = r.Question3
	}
	if r.SelfTalk == nil {
		r.SelfTalk = r.Question4
	}
}

// DiaryResponse is the decrypted external representation, including
// the legacy ai_prediction alias and the mood_intensity placeholder.
type DiaryResponse struct {
	ID             string   `json:"id"`
	Date           string   `json:"date"`
	MoodLevel      int      `json:"mood_level"`
	Weather        string   `json:"weather"`
	Temperature    *float64 `json:"temperature"`
	Mode           string   `json:"mode"`
	SafetyFlag     bool     `json:"safety_flag"`
	Event          string   `json:"event"`
	EmotionDesc    string   `json:"emotion_desc"`
	EmotionMeaning string   `json:"emotion_meaning"`
	SelfTalk       string   `json:"self_talk"`
	SleepCondition string   `json:"sleep_condition"`
	GratitudeNote  string   `json:"gratitude_note"`
	AIComment      string   `json:"ai_comment"`
	AIEmotion      string   `json:"ai_emotion"`
	AIPrediction   string   `json:"ai_prediction"`
	MoodIntensity  int      `json:"mood_intensity"`
	CreatedAt      string   `json:"created_at"`
}

// serializeDiary decrypts every text blob before it leaves the API.
func serializeDiary(d *database.Diary) DiaryResponse {
	aiEmotion := crypto.Decrypt(d.AIEmotion)
	return DiaryResponse{
		ID:             d.ID.String(),
		Date:           d.Date,
		MoodLevel:      d.MoodLevel,
		Weather:        d.Weather,
		Temperature:    d.Temperature,
		Mode:           d.Mode,
		SafetyFlag:     d.SafetyFlag,
		Event:          crypto.Decrypt(d.Event),
		EmotionDesc:    crypto.Decrypt(d.EmotionDesc),
		EmotionMeaning: crypto.Decrypt(d.EmotionMeaning),
		SelfTalk:       crypto.Decrypt(d.SelfTalk),
		SleepCondition: crypto.Decrypt(d.SleepCondition),
		GratitudeNote:  crypto.Decrypt(d.GratitudeNote),
		AIComment:      crypto.Decrypt(d.AIComment),
		AIEmotion:      aiEmotion,
		AIPrediction:   aiEmotion,
		MoodIntensity:  0,
		CreatedAt:      d.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// VerifyCodeRequest accepts both spellings legacy clients use.
type VerifyCodeRequest struct {
	CenterCode string `json:"center_code"`
	Code       string `json:"code"`
}

func (r *VerifyCodeRequest) code() string {
	if r.CenterCode != "" {
		return r.CenterCode
	}
	return r.Code
}

// ConnectRequest binds the caller to an institution by id or code.
type ConnectRequest struct {
	CenterID string `json:"center_id"`
	Code     string `json:"code"`
}

// CenterInfo is the institution summary returned by verify-code.
type CenterInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Region string `json:"region"`
}
