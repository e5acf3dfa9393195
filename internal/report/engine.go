// Package report produces long-form psychological reports from a
// user's recent diaries. Job state lives in one JSON file per
// (user, mode) under REPORT_DIR; the worker is the sole writer for a
// given pair, so no file locking is used.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	database "github.com/maum-on/haruon-hub/internal"
	"github.com/maum-on/haruon-hub/internal/crypto"
	"github.com/maum-on/haruon-hub/internal/llm"
)

// Mode selects the report variant.
type Mode string

const (
	ModeDaily    Mode = "daily"
	ModeLongterm Mode = "longterm"
)

// Job statuses are strictly monotonic per run: processing ->
// {completed, failed}. A new Start resets the cycle.
const (
	StatusNone       = "none"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Job is the persisted per-(user, mode) state the status endpoint
// returns verbatim.
type Job struct {
	Status    string `json:"status"`
	Payload   string `json:"payload"`
	Timestamp string `json:"timestamp"`
}

// Generator matches *llm.Client; tests substitute a stub.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts llm.Options) (string, bool)
}

// ObserveRun, when set, records a finished run for metrics.
var ObserveRun func(mode, outcome string)

var gen Generator

const (
	processingMessage = "준비 중입니다. 잠시만 기다려주세요..."
	emptyDataMessage  = "분석할 데이터가 없습니다. 일기를 먼저 작성해 주세요."
	reportDeadline    = 10 * time.Minute
)

// Configure wires the process-wide LLM client. Called once at startup.
func Configure(g Generator) { gen = g }

func reportDir() string {
	if dir := os.Getenv("REPORT_DIR"); dir != "" {
		return dir
	}
	return "reports"
}

func jobPath(userID uuid.UUID, mode Mode) string {
	return filepath.Join(reportDir(), fmt.Sprintf("%s_%s.json", userID, mode))
}

func writeJob(userID uuid.UUID, mode Mode, status, payload string) {
	job := Job{Status: status, Payload: payload, Timestamp: time.Now().UTC().Format(time.RFC3339)}
	raw, err := json.Marshal(job)
	if err != nil {
		log.Printf("report: marshal job failed: %v", err)
		return
	}
	if err := os.MkdirAll(reportDir(), 0o755); err != nil {
		log.Printf("report: mkdir %s failed: %v", reportDir(), err)
		return
	}
	if err := os.WriteFile(jobPath(userID, mode), raw, 0o644); err != nil {
		log.Printf("report: write job failed: %v", err)
	}
}

// ReadJob returns the current job file contents, or a StatusNone job
// when no run has happened yet.
func ReadJob(userID uuid.UUID, mode Mode) Job {
	raw, err := os.ReadFile(jobPath(userID, mode))
	if err != nil {
		return Job{Status: StatusNone}
	}
	var job Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return Job{Status: StatusNone}
	}
	return job
}

// Start marks the job processing and launches a background run. A
// second Start while processing overwrites state and races the prior
// run; last writer wins.
func Start(userID uuid.UUID, mode Mode) {
	writeJob(userID, mode, StatusProcessing, processingMessage)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("report: recovered panic for user %s: %v", userID, r)
				writeJob(userID, mode, StatusFailed, "내부 오류가 발생했습니다.")
			}
		}()
		run(userID, mode)
	}()
}

func run(userID uuid.UUID, mode Mode) {
	limit := 10
	if mode == ModeLongterm {
		limit = 30
	}
	diaries, err := database.RecentDiaries(userID, limit)
	if err != nil {
		log.Printf("report: fetching diaries failed for user %s: %v", userID, err)
		writeJob(userID, mode, StatusFailed, "일기를 불러오지 못했습니다.")
		observeRun(mode, "failed")
		return
	}
	if len(diaries) == 0 {
		writeJob(userID, mode, StatusCompleted, emptyDataMessage)
		observeRun(mode, "empty")
		return
	}
	if gen == nil {
		writeJob(userID, mode, StatusFailed, "분석 엔진이 설정되지 않았습니다.")
		observeRun(mode, "failed")
		return
	}

	prompt := buildPrompt(mode, diaries)
	ctx, cancel := context.WithTimeout(context.Background(), reportDeadline)
	defer cancel()

	tokens := 2048
	if mode == ModeLongterm {
		tokens = 4096
	}
	text, ok := gen.Generate(ctx, prompt, llm.Options{Temperature: 0.7, NumPredict: tokens})
	if !ok || text == "" {
		writeJob(userID, mode, StatusFailed, "리포트 생성에 실패했습니다. 잠시 후 다시 시도해 주세요.")
		observeRun(mode, "failed")
		return
	}
	writeJob(userID, mode, StatusCompleted, text)
	observeRun(mode, "completed")
}

const dailyPersona = `당신은 마음온의 심리 리포트 작성자입니다. 아래 최근 일기들을 바탕으로
오늘의 마음 상태를 요약하는 짧은 리포트를 작성하세요. 감정의 흐름, 긍정적인 변화,
스스로에게 건네면 좋을 말을 따뜻한 한국어로 정리합니다.`

const longtermPersona = `당신은 마음온의 심리 리포트 작성자입니다. 아래 한 달간의 일기들을 바탕으로
장기 심리 리포트를 작성하세요. 1) 전반적인 감정 흐름 2) 반복되는 주제 3) 수면과 기분의 관계
4) 강점과 회복 요인 5) 앞으로의 제안 의 다섯 섹션으로 구성된 한국어 리포트를 씁니다.`

// buildPrompt lays the decrypted diaries out chronologically under a
// mode-specific persona.
func buildPrompt(mode Mode, diaries []database.Diary) string {
	persona := dailyPersona
	if mode == ModeLongterm {
		persona = longtermPersona
	}
	var b strings.Builder
	b.WriteString(persona)
	b.WriteString("\n\n")
	// RecentDiaries is date-descending; reports read oldest first.
	for i := len(diaries) - 1; i >= 0; i-- {
		d := diaries[i]
		b.WriteString(fmt.Sprintf("[%s] 기분 %d/10", d.Date, d.MoodLevel))
		if d.Weather != "" {
			b.WriteString(", 날씨 " + d.Weather)
		}
		b.WriteString("\n")
		appendField(&b, "사건", crypto.Decrypt(d.Event))
		appendField(&b, "감정", crypto.Decrypt(d.EmotionDesc))
		appendField(&b, "의미", crypto.Decrypt(d.EmotionMeaning))
		appendField(&b, "혼잣말", crypto.Decrypt(d.SelfTalk))
		appendField(&b, "수면", crypto.Decrypt(d.SleepCondition))
		appendField(&b, "감사", crypto.Decrypt(d.GratitudeNote))
		b.WriteString("\n")
	}
	return b.String()
}

func appendField(b *strings.Builder, label, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	b.WriteString("  " + label + ": " + strings.TrimSpace(text) + "\n")
}

func observeRun(mode Mode, outcome string) {
	if ObserveRun != nil {
		ObserveRun(string(mode), outcome)
	}
}
