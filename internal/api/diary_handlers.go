package api

import (
	"database/sql"
	"errors"
	"log"
	"net/http"
	"regexp"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	database "github.com/maum-on/haruon-hub/internal"
	"github.com/maum-on/haruon-hub/internal/analysis"
	"github.com/maum-on/haruon-hub/internal/crypto"
	"github.com/maum-on/haruon-hub/internal/relay"
	"github.com/maum-on/haruon-hub/internal/risk"
)

var dateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// CreateDiary inserts a new encrypted entry, then spawns the analysis
// worker and the Satellite relay. Both proceed independently after the
// response is written.
func CreateDiary(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	var req DiaryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	req.normalize()
	if !dateRe.MatchString(req.Date) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date is required (YYYY-MM-DD)"})
		return
	}
	if err := req.validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := database.GetUserByID(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	diary := database.Diary{
		ID:         uuid.New(),
		UserID:     userID,
		Date:       req.Date,
		MoodLevel:  3,
		Mode:       "green",
		SafetyFlag: false,
	}
	applyPatch(&diary, &req)

	if err := database.InsertDiary(&diary); err != nil {
		log.Printf("diary: insert failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save diary"})
		return
	}

	dispatchAnalysis(analysisInput(&diary))
	relay.Dispatch(user, &diary, func() risk.Level { return riskForUser(userID) })

	c.JSON(http.StatusCreated, serializeDiary(&diary))
}

// GetDiary returns one decrypted entry. Not-owned and not-found both
// map to 404 so ids cannot be enumerated.
func GetDiary(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	diaryID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Diary not found"})
		return
	}
	diary, err := database.FindDiary(userID, diaryID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if diary == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Diary not found"})
		return
	}
	c.JSON(http.StatusOK, serializeDiary(diary))
}

// GetDiaryByDate returns the canonical entry for the date, applying the
// dedup policy when stale siblings exist.
func GetDiaryByDate(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	date := c.Param("date")
	if !dateRe.MatchString(date) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date (YYYY-MM-DD)"})
		return
	}
	diary, err := database.CanonicalDiaryByDate(userID, date)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if diary == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "해당 날짜의 일기가 없습니다."})
		return
	}
	c.JSON(http.StatusOK, serializeDiary(diary))
}

// ListDiaries returns the owner's diaries date-descending, with
// optional AND-combined year/month/date-range filters.
func ListDiaries(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	var filter database.DiaryFilter
	if v := c.Query("year"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Year = n
		}
	}
	if v := c.Query("month"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Month = n
		}
	}
	filter.StartDate = c.Query("start_date")
	filter.EndDate = c.Query("end_date")

	diaries, err := database.ListDiaries(userID, filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	out := make([]DiaryResponse, 0, len(diaries))
	for i := range diaries {
		out = append(out, serializeDiary(&diaries[i]))
	}
	c.JSON(http.StatusOK, out)
}

// UpdateDiary re-encrypts the changed blobs, preserves the date, and
// re-triggers analysis and relay. POST /diaries/:id/upt is a legacy
// alias routed here.
func UpdateDiary(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	diaryID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Diary not found"})
		return
	}
	var req DiaryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	req.normalize()
	if err := req.validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	diary, err := database.FindDiary(userID, diaryID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if diary == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Diary not found"})
		return
	}

	// Content changed: the previous analysis no longer applies.
	diary.AIEmotion = ""
	diary.AIComment = ""
	applyPatch(diary, &req)

	if err := database.UpdateDiary(diary); err != nil {
		log.Printf("diary: update failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update diary"})
		return
	}

	dispatchAnalysis(analysisInput(diary))
	if user, err := database.GetUserByID(userID); err == nil && user != nil {
		relay.Dispatch(user, diary, func() risk.Level { return riskForUser(userID) })
	}

	c.JSON(http.StatusOK, serializeDiary(diary))
}

// DeleteDiary hard-deletes the entry.
func DeleteDiary(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	diaryID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Diary not found"})
		return
	}
	if err := database.DeleteDiary(userID, diaryID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Diary not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"msg": "deleted"})
}

// applyPatch copies the provided request fields onto the row,
// encrypting every text blob. Absent fields keep their stored value.
func applyPatch(d *database.Diary, req *DiaryRequest) {
	if req.MoodLevel != nil {
		d.MoodLevel = *req.MoodLevel
	}
	if req.Weather != nil {
		d.Weather = *req.Weather
	}
	if req.Temperature != nil {
		d.Temperature = req.Temperature
	}
	if req.Mode != nil && *req.Mode != "" {
		d.Mode = *req.Mode
	}
	if req.SafetyFlag != nil {
		d.SafetyFlag = *req.SafetyFlag
	}
	if req.Event != nil {
		d.Event = crypto.Encrypt(*req.Event)
	}
	if req.EmotionDesc != nil {
		d.EmotionDesc = crypto.Encrypt(*req.EmotionDesc)
	}
	if req.EmotionMeaning != nil {
		d.EmotionMeaning = crypto.Encrypt(*req.EmotionMeaning)
	}
	if req.SelfTalk != nil {
		d.SelfTalk = crypto.Encrypt(*req.SelfTalk)
	}
	if req.SleepCondition != nil {
		d.SleepCondition = crypto.Encrypt(*req.SleepCondition)
	}
	if req.GratitudeNote != nil {
		d.GratitudeNote = crypto.Encrypt(*req.GratitudeNote)
	}
	if req.AIComment != nil {
		d.AIComment = crypto.Encrypt(*req.AIComment)
	}
	if req.AIEmotion != nil {
		d.AIEmotion = crypto.Encrypt(*req.AIEmotion)
	}
}

// analysisInput decrypts the stored blobs into the worker's plaintext
// input, so re-analysis after a partial update sees the full entry.
func analysisInput(d *database.Diary) analysis.Input {
	return analysis.Input{
		DiaryID:        d.ID,
		Date:           d.Date,
		Event:          crypto.Decrypt(d.Event),
		SleepCondition: crypto.Decrypt(d.SleepCondition),
		EmotionDesc:    crypto.Decrypt(d.EmotionDesc),
		EmotionMeaning: crypto.Decrypt(d.EmotionMeaning),
		SelfTalk:       crypto.Decrypt(d.SelfTalk),
	}
}

// dispatchAnalysis hands the run to the Redis queue when enabled, and
// otherwise to an in-process goroutine. Queue errors degrade to the
// goroutine path so a mutation never loses its analysis.
func dispatchAnalysis(in analysis.Input) {
	if queueEnabled() {
		if err := EnqueueAnalysis(in); err == nil {
			return
		}
		log.Printf("queue: enqueue failed, running analysis in-process")
	}
	analysis.Start(in)
}
