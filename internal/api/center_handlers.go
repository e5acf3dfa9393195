package api

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	database "github.com/maum-on/haruon-hub/internal"
)

var verifyClient = &http.Client{Timeout: 5 * time.Second}

// VerifyCode checks an institution code against the local registry
// first, then asks the Satellite and caches any hit, so repeat lookups
// stay local.
func VerifyCode(c *gin.Context) {
	var req VerifyCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.code()) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "code is required"})
		return
	}
	code := strings.TrimSpace(req.code())

	inst, err := database.FindInstitutionByCode(code)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if inst == nil {
		inst = verifyWithSatellite(code)
	}
	if inst == nil {
		c.JSON(http.StatusNotFound, gin.H{"valid": false, "error": "유효하지 않은 기관 코드입니다."})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"valid":     true,
		"center":    CenterInfo{ID: inst.ID.String(), Name: inst.Name, Region: inst.Region},
		"center_id": inst.ID.String(),
	})
}

// verifyWithSatellite proxies the code upstream and caches a valid
// answer in the local registry. Any upstream failure reads as a miss.
func verifyWithSatellite(code string) *database.Institution {
	base := strings.TrimRight(os.Getenv("SATELLITE_URL"), "/")
	if base == "" {
		return nil
	}
	body, _ := json.Marshal(map[string]string{"center_code": code})
	resp, err := verifyClient.Post(base+"/centers/verify-code", "application/json", bytes.NewReader(body))
	if err != nil {
		log.Printf("center: satellite verify failed: %v", err)
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}
	var out struct {
		Valid  bool `json:"valid"`
		Center struct {
			Name   string `json:"name"`
			Region string `json:"region"`
		} `json:"center"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || !out.Valid {
		return nil
	}
	inst := &database.Institution{
		ID:     uuid.New(),
		Code:   strings.ToUpper(code),
		Name:   out.Center.Name,
		Region: out.Center.Region,
	}
	if err := database.CacheInstitution(inst); err != nil {
		log.Printf("center: cache write failed: %v", err)
	}
	return inst
}

// ConnectCenter links the caller to an institution. Binding by a
// one-time verification code consumes it; re-connecting with the same
// code by the same user is idempotent.
func ConnectCenter(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	var req ConnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	var centerCode string
	switch {
	case req.CenterID != "":
		instID, err := uuid.Parse(req.CenterID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid center_id"})
			return
		}
		inst, err := database.FindInstitutionByID(instID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
			return
		}
		if inst == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "기관을 찾을 수 없습니다."})
			return
		}
		centerCode = inst.Code
	case req.Code != "":
		code := strings.TrimSpace(req.Code)
		vc, err := database.FindVerificationCode(code)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
			return
		}
		if vc != nil {
			if err := database.ConsumeVerificationCode(code, userID); err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					c.JSON(http.StatusConflict, gin.H{"error": "이미 사용된 코드입니다."})
					return
				}
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
				return
			}
			centerCode = vc.InstitutionCode
			break
		}
		inst, err := database.FindInstitutionByCode(code)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
			return
		}
		if inst == nil {
			inst = verifyWithSatellite(code)
		}
		if inst == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "유효하지 않은 기관 코드입니다."})
			return
		}
		centerCode = inst.Code
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "center_id or code is required"})
		return
	}

	if err := database.SetUserCenterCode(userID, centerCode); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"msg": "기관 연동이 완료되었습니다.", "center_code": centerCode})
}
