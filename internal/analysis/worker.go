// Package analysis enriches a just-saved diary with AI emotion and
// comment fields. Runs happen on a background goroutine (or via the
// Redis Streams queue) after the HTTP request has already returned;
// failures are logged and swallowed, never surfaced to the client.
package analysis

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	database "github.com/maum-on/haruon-hub/internal"
	"github.com/maum-on/haruon-hub/internal/crypto"
	"github.com/maum-on/haruon-hub/internal/llm"
)

// Input carries the plaintext diary content into a worker run. It is
// JSON-serializable so the Redis queue can carry it as a message body.
type Input struct {
	DiaryID        uuid.UUID `json:"diary_id"`
	Date           string    `json:"date"`
	Event          string    `json:"event"`
	SleepCondition string    `json:"sleep_condition"`
	EmotionDesc    string    `json:"emotion_desc"`
	EmotionMeaning string    `json:"emotion_meaning"`
	SelfTalk       string    `json:"self_talk"`
}

// Generator is the LLM surface the worker depends on; *llm.Client
// satisfies it, tests substitute a stub.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts llm.Options) (string, bool)
}

// ObserveOutcome, when set, records a finished run for metrics.
var ObserveOutcome func(outcome string)

var (
	gen          Generator
	table        keywordTable
	analysisWait = 5 * time.Minute
)

// Configure wires the process-wide LLM client and loads the fallback
// keyword table. Called once at startup.
func Configure(g Generator) {
	gen = g
	table = loadKeywordTable()
}

// Start dispatches one analysis run on a background goroutine. The
// calling request returns immediately.
func Start(in Input) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("analysis: recovered panic for diary %s: %v", in.DiaryID, r)
			}
		}()
		_ = Run(context.Background(), in)
	}()
}

// Run performs one full analysis pass: safeguard, prompt, model call,
// parse (or fallback), encrypt, write back. The returned error covers
// the write back only; model failures degrade to the keyword fallback.
func Run(ctx context.Context, in Input) error {
	if gen == nil {
		log.Printf("analysis: no generator configured, skipping diary %s", in.DiaryID)
		return nil
	}
	if table == nil {
		table = loadKeywordTable()
	}

	risky := HasRiskMarkers(in.Event, in.EmotionDesc, in.EmotionMeaning, in.SelfTalk, in.SleepCondition)
	prompt := buildPrompt(in, risky)

	// Bounds the remote phase only; the local fallback inside the
	// client carries its own timeout.
	callCtx, cancel := context.WithTimeout(ctx, analysisWait)
	defer cancel()

	var res Result
	outcome := "analyzed"
	raw, ok := gen.Generate(callCtx, prompt, llm.Options{Temperature: 0.7, NumPredict: 512})
	if ok {
		res = ParseResponse(raw)
	} else {
		// Both backends down: deterministic keyword vote keeps the
		// diary from staying unanalyzed forever.
		emotion, comment := classifyByKeywords(table, in.Event, in.EmotionDesc, in.EmotionMeaning, in.SelfTalk)
		res = Result{Emotion: emotion, Confidence: 60, Comment: comment}
		outcome = "analyzed_weakly"
	}
	if risky {
		res.NeedFollowup = true
	}

	score := moodScoreFor(res.Emotion, risky)
	encComment := crypto.Encrypt(res.Comment)
	encEmotion := crypto.Encrypt(fmt.Sprintf("%s (%d%%)", res.Emotion, res.Confidence))

	if err := writeBack(in.DiaryID, encComment, encEmotion, score); err != nil {
		log.Printf("analysis: write back failed for diary %s: %v", in.DiaryID, err)
		observeOutcome("write_failed")
		return err
	}
	observeOutcome(outcome)
	log.Printf("analysis: diary %s analyzed (emotion=%s followup=%v)", in.DiaryID, res.Emotion, res.NeedFollowup)
	return nil
}

// writeBack updates the diary row inside one transaction, trying three
// column layouts under savepoints: mood_score, then the legacy
// mood_intensity name, then the AI columns alone.
func writeBack(diaryID uuid.UUID, encComment, encEmotion string, score int) error {
	tx, err := database.DB.Beginx()
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	attempts := []string{
		`UPDATE diaries SET ai_comment=$1, ai_emotion=$2, mood_score=$3, updated_at=NOW() WHERE id=$4`,
		`UPDATE diaries SET ai_comment=$1, ai_emotion=$2, mood_intensity=$3, updated_at=NOW() WHERE id=$4`,
	}
	done := false
	for i, q := range attempts {
		sp := fmt.Sprintf("analysis_attempt_%d", i)
		if _, err = tx.Exec("SAVEPOINT " + sp); err != nil {
			return err
		}
		if _, execErr := tx.Exec(q, encComment, encEmotion, score, diaryID); execErr == nil {
			done = true
			break
		}
		if _, err = tx.Exec("ROLLBACK TO SAVEPOINT " + sp); err != nil {
			return err
		}
	}
	if !done {
		// Last resort: land the AI pair without a score column.
		if _, err = tx.Exec("SAVEPOINT analysis_attempt_final"); err != nil {
			return err
		}
		if _, err = tx.Exec(`UPDATE diaries SET ai_comment=$1, ai_emotion=$2, updated_at=NOW() WHERE id=$3`,
			encComment, encEmotion, diaryID); err != nil {
			return err
		}
	}
	err = tx.Commit()
	return err
}

func observeOutcome(outcome string) {
	if ObserveOutcome != nil {
		ObserveOutcome(outcome)
	}
}
