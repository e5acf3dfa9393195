package relay

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	database "github.com/maum-on/haruon-hub/internal"
	"github.com/maum-on/haruon-hub/internal/breaker"
	"github.com/maum-on/haruon-hub/internal/crypto"
	"github.com/maum-on/haruon-hub/internal/risk"
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

func sampleDiary() *database.Diary {
	return &database.Diary{
		ID:          uuid.New(),
		UserID:      uuid.New(),
		Date:        "2026-02-11",
		MoodLevel:   4,
		Weather:     "맑음",
		Mode:        "green",
		Event:       crypto.Encrypt("good day"),
		EmotionDesc: crypto.Encrypt("calm"),
		AIEmotion:   crypto.Encrypt("평온 (80%)"),
		AIComment:   crypto.Encrypt("편안한 하루였네요."),
		CreatedAt:   time.Now(),
	}
}

func TestPushSendsDecryptedPayload(t *testing.T) {
	initCrypto(t)
	breaker.Get("satellite").Reset()

	var got Payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/b2g_sync/sync" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(200)
	}))
	defer srv.Close()

	Push(srv.URL, "SEOUL-001", "u1", sampleDiary(), risk.LevelLow)

	if got.CenterCode != "SEOUL-001" || got.Nickname != "u1" || got.RiskLevel != 1 {
		t.Fatalf("envelope mismatch: %+v", got)
	}
	if len(got.Entries) != 1 {
		t.Fatalf("expected exactly one entry, got %d", len(got.Entries))
	}
	e := got.Entries[0]
	if e.Event != "good day" || e.Emotion != "calm" {
		t.Fatalf("relay payload must be plaintext: %+v", e)
	}
	if e.AIPrediction != "평온 (80%)" {
		t.Fatalf("ai_prediction: %q", e.AIPrediction)
	}
	if e.MoodIntensity != 0 {
		t.Fatalf("mood_intensity placeholder must be 0, got %d", e.MoodIntensity)
	}
}

func TestPushTimeoutContained(t *testing.T) {
	initCrypto(t)
	breaker.Get("satellite").Reset()

	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer func() { close(block); srv.Close() }()

	done := make(chan struct{})
	go func() {
		Push(srv.URL, "SEOUL-001", "u1", sampleDiary(), risk.LevelLow)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(pushTimeout + 3*time.Second):
		t.Fatal("Push did not return within the relay timeout budget")
	}
}

func TestDispatchWithoutLinkageIsNoop(t *testing.T) {
	os.Setenv("SATELLITE_URL", "http://127.0.0.1:1")
	t.Cleanup(func() { os.Unsetenv("SATELLITE_URL") })
	// no center code: must not panic, must not attempt delivery, and
	// must not compute a risk level
	resolved := false
	Dispatch(&database.User{ID: uuid.New()}, sampleDiary(), func() risk.Level {
		resolved = true
		return risk.LevelLow
	})
	if resolved {
		t.Fatal("risk resolver must not run for an unlinked user")
	}
}

func TestDispatchSkipsRiskWithoutSatellite(t *testing.T) {
	os.Unsetenv("SATELLITE_URL")
	code := "SEOUL-001"
	resolved := false
	Dispatch(&database.User{ID: uuid.New(), CenterCode: &code}, sampleDiary(), func() risk.Level {
		resolved = true
		return risk.LevelLow
	})
	if resolved {
		t.Fatal("risk resolver must not run when no satellite is configured")
	}
}

func TestDispatchResolvesRiskForLinkedUser(t *testing.T) {
	initCrypto(t)
	breaker.Get("satellite").Reset()

	got := make(chan Payload, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p Payload
		_ = json.NewDecoder(r.Body).Decode(&p)
		got <- p
		w.WriteHeader(200)
	}))
	defer srv.Close()
	os.Setenv("SATELLITE_URL", srv.URL)
	t.Cleanup(func() { os.Unsetenv("SATELLITE_URL") })

	code := "SEOUL-001"
	Dispatch(&database.User{ID: uuid.New(), CenterCode: &code, Nickname: "u1"}, sampleDiary(), func() risk.Level {
		return risk.LevelHigh
	})
	select {
	case p := <-got:
		if p.RiskLevel != 3 {
			t.Fatalf("risk_level = %d, want 3", p.RiskLevel)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("dispatch never reached the satellite")
	}
}

func TestPushSkipsWhenBreakerOpen(t *testing.T) {
	initCrypto(t)
	brk := breaker.Get("satellite")
	brk.Reset()
	for i := 0; i < 10; i++ {
		brk.ReportFailure()
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("breaker-open push must not reach the satellite")
	}))
	defer srv.Close()
	t.Cleanup(func() { brk.Reset() })

	Push(srv.URL, "SEOUL-001", "u1", sampleDiary(), risk.LevelLow)
}
