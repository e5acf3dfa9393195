package report

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"os"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	database "github.com/maum-on/haruon-hub/internal"
	"github.com/maum-on/haruon-hub/internal/crypto"
	"github.com/maum-on/haruon-hub/internal/llm"
)

type stubGen struct {
	text string
	ok   bool
	wait time.Duration
}

func (s stubGen) Generate(ctx context.Context, prompt string, opts llm.Options) (string, bool) {
	if s.wait > 0 {
		select {
		case <-time.After(s.wait):
		case <-ctx.Done():
			return "", false
		}
	}
	return s.text, s.ok
}

func setupReportDir(t *testing.T) {
	t.Helper()
	os.Setenv("REPORT_DIR", t.TempDir())
	t.Cleanup(func() { os.Unsetenv("REPORT_DIR") })
}

func initCrypto(t *testing.T) {
	t.Helper()
	key := make([]byte, 32)
	rand.Read(key)
	os.Setenv("ENCRYPTION_KEY", base64.StdEncoding.EncodeToString(key))
	t.Cleanup(func() { os.Unsetenv("ENCRYPTION_KEY") })
	if err := crypto.Init(); err != nil {
		t.Fatalf("crypto init: %v", err)
	}
}

func diaryRows(t *testing.T, n int) *sqlmock.Rows {
	t.Helper()
	rows := sqlmock.NewRows([]string{
		"id", "user_id", "date", "mood_level", "mood_score", "weather", "temperature", "mode", "safety_flag",
		"event", "emotion_desc", "emotion_meaning", "self_talk", "sleep_condition", "gratitude_note",
		"ai_emotion", "ai_comment", "created_at", "updated_at",
	})
	for i := 0; i < n; i++ {
		rows.AddRow(uuid.New(), uuid.New(), "2026-02-0"+string(rune('1'+i)), 5, nil, "맑음", nil, "green", false,
			crypto.Encrypt("event"), crypto.Encrypt("calm"), "", "", "", "", "", "", time.Now(), time.Now())
	}
	return rows
}

func expectRecentDiaries(mock sqlmock.Sqlmock, rows *sqlmock.Rows) {
	mock.ExpectQuery(regexp.QuoteMeta(`FROM diaries WHERE user_id=$1 ORDER BY date DESC, created_at DESC LIMIT $2`)).
		WillReturnRows(rows)
}

func waitForStatus(t *testing.T, userID uuid.UUID, mode Mode, want string) Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job := ReadJob(userID, mode)
		if job.Status == want {
			return job
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("job never reached status %q (last: %+v)", want, ReadJob(userID, mode))
	return Job{}
}

func TestReportLifecycleCompleted(t *testing.T) {
	setupReportDir(t)
	initCrypto(t)
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	database.DB = sqlx.NewDb(db, "sqlmock")
	expectRecentDiaries(mock, diaryRows(t, 3))
	Configure(stubGen{text: "ok", ok: true, wait: 50 * time.Millisecond})

	userID := uuid.New()
	Start(userID, ModeDaily)

	job := ReadJob(userID, ModeDaily)
	if job.Status != StatusProcessing {
		t.Fatalf("status right after start = %q, want processing", job.Status)
	}
	job = waitForStatus(t, userID, ModeDaily, StatusCompleted)
	if !strings.Contains(job.Payload, "ok") {
		t.Fatalf("payload: %q", job.Payload)
	}
}

func TestReportFailureWritesFailed(t *testing.T) {
	setupReportDir(t)
	initCrypto(t)
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	database.DB = sqlx.NewDb(db, "sqlmock")
	expectRecentDiaries(mock, diaryRows(t, 2))
	Configure(stubGen{ok: false})

	userID := uuid.New()
	Start(userID, ModeLongterm)
	waitForStatus(t, userID, ModeLongterm, StatusFailed)
}

func TestReportShortCircuitsWithoutDiaries(t *testing.T) {
	setupReportDir(t)
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	database.DB = sqlx.NewDb(db, "sqlmock")
	expectRecentDiaries(mock, diaryRows(t, 0))
	Configure(stubGen{text: "should not be called", ok: true})

	userID := uuid.New()
	Start(userID, ModeDaily)
	job := waitForStatus(t, userID, ModeDaily, StatusCompleted)
	if !strings.Contains(job.Payload, "분석할 데이터가 없습니다") {
		t.Fatalf("payload: %q", job.Payload)
	}
}

func TestReadJobWithoutRun(t *testing.T) {
	setupReportDir(t)
	if job := ReadJob(uuid.New(), ModeDaily); job.Status != StatusNone {
		t.Fatalf("fresh job status = %q, want none", job.Status)
	}
}

func TestBuildPromptDecryptsChronologically(t *testing.T) {
	initCrypto(t)
	diaries := []database.Diary{
		{Date: "2026-02-12", MoodLevel: 4, Event: crypto.Encrypt("today")},
		{Date: "2026-02-11", MoodLevel: 6, Event: crypto.Encrypt("yesterday")},
	}
	prompt := buildPrompt(ModeDaily, diaries)
	if !strings.Contains(prompt, "today") || !strings.Contains(prompt, "yesterday") {
		t.Fatalf("prompt must contain decrypted fields:\n%s", prompt)
	}
	if strings.Index(prompt, "yesterday") > strings.Index(prompt, "today") {
		t.Fatal("diaries must be laid out oldest first")
	}
}
