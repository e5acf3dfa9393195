// Package relay pushes newly written diary entries from the Hub to the
// affiliated institution's Satellite dashboard. Delivery is
// fire-and-forget: failures are logged and counted, never retried
// in-process, and never affect the originating request.
package relay

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	database "github.com/maum-on/haruon-hub/internal"
	"github.com/maum-on/haruon-hub/internal/breaker"
	"github.com/maum-on/haruon-hub/internal/crypto"
	"github.com/maum-on/haruon-hub/internal/risk"
)

// ObserveDelivery, when set, records one relay attempt for metrics.
var ObserveDelivery func(outcome string)

const pushTimeout = 5 * time.Second

// Entry is the plaintext sync payload item the Satellite expects.
type Entry struct {
	CreatedAt     string  `json:"created_at"`
	Date          string  `json:"date"`
	MoodLevel     int     `json:"mood_level"`
	Event         string  `json:"event"`
	Emotion       string  `json:"emotion"`
	Meaning       string  `json:"meaning"`
	SelfTalk      string  `json:"selftalk"`
	Sleep         string  `json:"sleep"`
	Gratitude     string  `json:"gratitude"`
	AIComment     string  `json:"ai_comment"`
	AIPrediction  string  `json:"ai_prediction"`
	Weather       string  `json:"weather"`
	Mode          string  `json:"mode"`
	MoodIntensity int     `json:"mood_intensity"`
	Temperature   float64 `json:"temperature,omitempty"`
}

// Payload is the envelope POSTed to the Satellite sync endpoint.
type Payload struct {
	CenterCode string  `json:"center_code"`
	Nickname   string  `json:"nickname"`
	RiskLevel  int     `json:"risk_level"`
	Entries    []Entry `json:"entries"`
}

// Dispatch resolves the owner's institution linkage and, when linked,
// pushes the diary on a background goroutine. level is resolved on
// that goroutine, only after the linkage check, so unlinked users
// never pay for a risk computation.
func Dispatch(user *database.User, diary *database.Diary, level func() risk.Level) {
	if user == nil || user.CenterCode == nil || *user.CenterCode == "" {
		return
	}
	base := satelliteURL()
	if base == "" {
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("relay: recovered panic for diary %s: %v", diary.ID, r)
			}
		}()
		Push(base, *user.CenterCode, user.Nickname, diary, level())
	}()
}

// Push builds the plaintext payload and POSTs it with a short timeout.
// Exposed for tests; production flow goes through Dispatch.
func Push(baseURL, centerCode, nickname string, d *database.Diary, level risk.Level) {
	brk := breaker.Get("satellite")
	if !brk.Allow() {
		log.Printf("relay: satellite breaker open, skipping diary %s", d.ID)
		observe("breaker_open")
		return
	}

	payload := Payload{
		CenterCode: centerCode,
		Nickname:   nickname,
		RiskLevel:  risk.Score(level),
		Entries:    []Entry{entryFor(d)},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("relay: marshal failed for diary %s: %v", d.ID, err)
		observe("error")
		return
	}

	client := &http.Client{Timeout: pushTimeout}
	resp, err := client.Post(baseURL+"/b2g_sync/sync", "application/json", bytes.NewReader(body))
	if err != nil {
		brk.ReportFailure()
		log.Printf("relay: push failed for diary %s: %v", d.ID, err)
		observe("error")
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		brk.ReportFailure()
		log.Printf("relay: satellite returned %d for diary %s", resp.StatusCode, d.ID)
		observe("rejected")
		return
	}
	brk.ReportSuccess()
	observe("ok")
	log.Printf("relay: diary %s relayed to center %s", d.ID, centerCode)
}

// entryFor decrypts the stored fields into the external sync-entry
// names. mood_intensity is a legacy placeholder and always 0.
func entryFor(d *database.Diary) Entry {
	e := Entry{
		CreatedAt:    d.CreatedAt.UTC().Format(time.RFC3339),
		Date:         d.Date,
		MoodLevel:    d.MoodLevel,
		Event:        crypto.Decrypt(d.Event),
		Emotion:      crypto.Decrypt(d.EmotionDesc),
		Meaning:      crypto.Decrypt(d.EmotionMeaning),
		SelfTalk:     crypto.Decrypt(d.SelfTalk),
		Sleep:        crypto.Decrypt(d.SleepCondition),
		Gratitude:    crypto.Decrypt(d.GratitudeNote),
		AIComment:    crypto.Decrypt(d.AIComment),
		AIPrediction: crypto.Decrypt(d.AIEmotion),
		Weather:      d.Weather,
		Mode:         d.Mode,
	}
	if d.Temperature != nil {
		e.Temperature = *d.Temperature
	}
	return e
}

func satelliteURL() string {
	return strings.TrimRight(os.Getenv("SATELLITE_URL"), "/")
}

func observe(outcome string) {
	if ObserveDelivery != nil {
		ObserveDelivery(outcome)
	}
}
