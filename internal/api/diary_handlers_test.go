package api

import (
	"bytes"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	database "github.com/maum-on/haruon-hub/internal"
	"github.com/maum-on/haruon-hub/internal/crypto"
)

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

func newMockDB(t *testing.T) sqlmock.Sqlmock {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	database.DB = sqlx.NewDb(db, "sqlmock")
	return mock
}

// newAuthedRouter wires the diary routes behind a stub auth middleware
// so tests skip token minting.
func newAuthedRouter(uid uuid.UUID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set("userID", uid); c.Next() })
	r.POST("/diaries", CreateDiary)
	r.GET("/diaries", ListDiaries)
	r.GET("/diaries/date/:date", GetDiaryByDate)
	r.GET("/diaries/:id", GetDiary)
	r.PUT("/diaries/:id", UpdateDiary)
	r.DELETE("/diaries/:id", DeleteDiary)
	return r
}

var userCols = []string{"id", "username", "hashed_password", "nickname", "role", "center_code", "assessment_completed", "last_login_at", "created_at", "updated_at"}

func userRow(uid uuid.UUID) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(userCols).
		AddRow(uid, "hana", "$2a$10$x", "하나", "user", nil, false, nil, now, now)
}

var diaryCols = []string{"id", "user_id", "date", "mood_level", "mood_score", "weather", "temperature", "mode", "safety_flag",
	"event", "emotion_desc", "emotion_meaning", "self_talk", "sleep_condition", "gratitude_note",
	"ai_emotion", "ai_comment", "created_at", "updated_at"}

func diaryRow(id, uid uuid.UUID, date, encEvent string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(diaryCols).
		AddRow(id, uid, date, 3, nil, "sunny", nil, "green", false,
			encEvent, "", "", "", "", "", "", "", now, now)
}

func doJSONReq(r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateDiaryAcceptsLegacyAliases(t *testing.T) {
	initCrypto(t)
	mock := newMockDB(t)
	uid := uuid.New()
	r := newAuthedRouter(uid)

	mock.ExpectQuery("SELECT (.+) FROM users WHERE id=").
		WithArgs(uid).
		WillReturnRows(userRow(uid))
	mock.ExpectExec("INSERT INTO diaries").
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := doJSONReq(r, http.MethodPost, "/diaries", gin.H{
		"date":      "2026-08-29",
		"question1": "친구와 다퉜다",
		"weather":   "cloudy",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var resp DiaryResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Event != "친구와 다퉜다" {
		t.Fatalf("question1 alias not folded into event: %q", resp.Event)
	}
	if resp.MoodLevel != 3 || resp.Mode != "green" {
		t.Fatalf("defaults not applied: mood=%d mode=%s", resp.MoodLevel, resp.Mode)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateDiaryPersistsCiphertext(t *testing.T) {
	initCrypto(t)
	mock := newMockDB(t)
	uid := uuid.New()
	r := newAuthedRouter(uid)

	mock.ExpectQuery("SELECT (.+) FROM users WHERE id=").
		WithArgs(uid).
		WillReturnRows(userRow(uid))

	mock.ExpectExec("INSERT INTO diaries").
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := doJSONReq(r, http.MethodPost, "/diaries", gin.H{
		"date":  "2026-08-29",
		"event": "비밀 일기",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	// The response is plaintext even though the row holds ciphertext;
	// decrypting what serialize produced must round-trip.
	var resp DiaryResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Event != "비밀 일기" {
		t.Fatalf("response not decrypted: %q", resp.Event)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateDiaryRequiresDate(t *testing.T) {
	initCrypto(t)
	newMockDB(t)
	r := newAuthedRouter(uuid.New())

	w := doJSONReq(r, http.MethodPost, "/diaries", gin.H{"event": "dateless"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
}

func TestGetDiaryNotFound(t *testing.T) {
	initCrypto(t)
	mock := newMockDB(t)
	uid := uuid.New()
	r := newAuthedRouter(uid)

	diaryID := uuid.New()
	mock.ExpectQuery("SELECT (.+) FROM diaries WHERE id=").
		WithArgs(diaryID, uid).
		WillReturnError(sql.ErrNoRows)

	w := doJSONReq(r, http.MethodGet, "/diaries/"+diaryID.String(), nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
}

func TestGetDiaryDecryptsBlobs(t *testing.T) {
	initCrypto(t)
	mock := newMockDB(t)
	uid := uuid.New()
	r := newAuthedRouter(uid)

	diaryID := uuid.New()
	enc := crypto.Encrypt("오늘은 평온했다")
	mock.ExpectQuery("SELECT (.+) FROM diaries WHERE id=").
		WithArgs(diaryID, uid).
		WillReturnRows(diaryRow(diaryID, uid, "2026-08-29", enc))

	w := doJSONReq(r, http.MethodGet, "/diaries/"+diaryID.String(), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var resp DiaryResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Event != "오늘은 평온했다" {
		t.Fatalf("event not decrypted: %q", resp.Event)
	}
}

func TestListDiariesMonthFilter(t *testing.T) {
	initCrypto(t)
	mock := newMockDB(t)
	uid := uuid.New()
	r := newAuthedRouter(uid)

	rows := diaryRow(uuid.New(), uid, "2026-08-20", crypto.Encrypt("a"))
	now := time.Now()
	rows.AddRow(uuid.New(), uid, "2026-08-10", 5, nil, "", nil, "green", false,
		crypto.Encrypt("b"), "", "", "", "", "", "", "", now, now)

	mock.ExpectQuery("SELECT (.+) FROM diaries WHERE user_id=(.+) AND date LIKE").
		WithArgs(uid, "2026-08-%").
		WillReturnRows(rows)

	w := doJSONReq(r, http.MethodGet, "/diaries?year=2026&month=8", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var list []DiaryResponse
	json.Unmarshal(w.Body.Bytes(), &list)
	if len(list) != 2 {
		t.Fatalf("expected 2 diaries, got %d", len(list))
	}
	if list[0].Date != "2026-08-20" {
		t.Fatalf("order not preserved: %s first", list[0].Date)
	}
}

func TestUpdateDiaryClearsStaleAnalysis(t *testing.T) {
	initCrypto(t)
	mock := newMockDB(t)
	uid := uuid.New()
	r := newAuthedRouter(uid)

	diaryID := uuid.New()
	now := time.Now()
	rows := sqlmock.NewRows(diaryCols).
		AddRow(diaryID, uid, "2026-08-29", 3, nil, "sunny", nil, "green", false,
			crypto.Encrypt("old"), "", "", "", "", "", crypto.Encrypt("우울 (70%)"), crypto.Encrypt("stale comment"), now, now)
	mock.ExpectQuery("SELECT (.+) FROM diaries WHERE id=").
		WithArgs(diaryID, uid).
		WillReturnRows(rows)
	mock.ExpectExec("UPDATE diaries SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT (.+) FROM users WHERE id=").
		WithArgs(uid).
		WillReturnRows(userRow(uid))

	w := doJSONReq(r, http.MethodPut, "/diaries/"+diaryID.String(), gin.H{"event": "새 내용"})
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var resp DiaryResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Event != "새 내용" {
		t.Fatalf("event not updated: %q", resp.Event)
	}
	if resp.AIComment != "" || resp.AIEmotion != "" {
		t.Fatalf("stale analysis survived the edit: %q / %q", resp.AIComment, resp.AIEmotion)
	}
	if resp.Date != "2026-08-29" {
		t.Fatalf("date must be immutable, got %s", resp.Date)
	}
}

func TestDeleteDiaryNotFound(t *testing.T) {
	initCrypto(t)
	mock := newMockDB(t)
	uid := uuid.New()
	r := newAuthedRouter(uid)

	diaryID := uuid.New()
	mock.ExpectExec("DELETE FROM diaries").
		WithArgs(diaryID, uid).
		WillReturnResult(sqlmock.NewResult(0, 0))

	w := doJSONReq(r, http.MethodDelete, "/diaries/"+diaryID.String(), nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
}
