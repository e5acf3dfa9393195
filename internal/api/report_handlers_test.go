package api

import (
	"encoding/json"
	"net/http"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/maum-on/haruon-hub/internal/report"
)

func newReportRouter(uid uuid.UUID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set("userID", uid); c.Next() })
	r.GET("/report/status", DailyReportStatus)
	r.GET("/report/longterm/status", LongtermReportStatus)
	return r
}

func TestReportStatusFreshUser(t *testing.T) {
	os.Setenv("REPORT_DIR", t.TempDir())
	t.Cleanup(func() { os.Unsetenv("REPORT_DIR") })
	r := newReportRouter(uuid.New())

	w := doJSONReq(r, http.MethodGet, "/report/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if cc := w.Header().Get("Cache-Control"); cc != "no-store" {
		t.Fatalf("Cache-Control=%q", cc)
	}
	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["status"] != report.StatusNone {
		t.Fatalf("expected none, got %v", resp["status"])
	}
	if _, ok := resp["insight"]; !ok {
		t.Fatalf("daily status must carry the insight alias")
	}
}

func TestReportStatusLongtermOmitsInsight(t *testing.T) {
	os.Setenv("REPORT_DIR", t.TempDir())
	t.Cleanup(func() { os.Unsetenv("REPORT_DIR") })
	r := newReportRouter(uuid.New())

	w := doJSONReq(r, http.MethodGet, "/report/longterm/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var resp map[string]any
	json.Unmarshal(w.Body.Bytes(), &resp)
	if _, ok := resp["insight"]; ok {
		t.Fatalf("longterm status must not carry the insight alias")
	}
}
