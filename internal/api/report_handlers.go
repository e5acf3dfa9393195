package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/maum-on/haruon-hub/internal/report"
)

// StartDailyReport kicks off an async daily report run and returns
// immediately; clients poll the status endpoint.
func StartDailyReport(c *gin.Context) {
	startReport(c, report.ModeDaily)
}

func StartLongtermReport(c *gin.Context) {
	startReport(c, report.ModeLongterm)
}

func startReport(c *gin.Context, mode report.Mode) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	report.Start(userID, mode)
	c.JSON(http.StatusAccepted, gin.H{"status": report.StatusProcessing})
}

// DailyReportStatus returns the current job file. The daily variant
// keeps the legacy "insight" alias alongside "report".
func DailyReportStatus(c *gin.Context) {
	reportStatus(c, report.ModeDaily)
}

func LongtermReportStatus(c *gin.Context) {
	reportStatus(c, report.ModeLongterm)
}

func reportStatus(c *gin.Context, mode report.Mode) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	job := report.ReadJob(userID, mode)

	// Pollers must always see the latest job file.
	c.Header("Cache-Control", "no-store")

	out := gin.H{
		"status":    job.Status,
		"report":    job.Payload,
		"timestamp": job.Timestamp,
	}
	if mode == report.ModeDaily {
		out["insight"] = job.Payload
	}
	c.JSON(http.StatusOK, out)
}
