package api

import (
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	database "github.com/maum-on/haruon-hub/internal"
	"github.com/maum-on/haruon-hub/internal/risk"
	"github.com/maum-on/haruon-hub/internal/utils"
)

// RegisterUser handles account creation.
func RegisterUser(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	hashed, err := utils.HashPassword(req.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to hash password"})
		return
	}

	nickname := req.Nickname
	if nickname == "" {
		nickname = req.Username
	}
	role := req.Role
	if role == "" {
		role = "user"
	}

	user := database.User{
		ID:             uuid.New(),
		Username:       req.Username,
		HashedPassword: hashed,
		Nickname:       nickname,
		Role:           role,
	}
	if err := database.CreateUser(&user); err != nil {
		if strings.Contains(err.Error(), "unique constraint") || strings.Contains(err.Error(), "duplicate key") {
			c.JSON(http.StatusBadRequest, gin.H{"error": "이미 사용 중인 아이디입니다."})
			return
		}
		log.Printf("register: insert failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to register user"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":  "User registered successfully",
		"user_id":  user.ID,
		"username": user.Username,
	})
}

// LoginUser authenticates and issues a session token. The response also
// carries the dynamic assessment and risk summary clients show on the
// home screen.
func LoginUser(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}

	user, err := database.GetUserByUsername(req.Username)
	if err != nil {
		log.Printf("login: lookup failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if user == nil || !utils.CheckPasswordHash(req.Password, user.HashedPassword) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "아이디 또는 비밀번호가 올바르지 않습니다."})
		return
	}

	// Optional immediate linkage when a center code accompanies login.
	if req.CenterCode != "" && (user.CenterCode == nil || *user.CenterCode == "") {
		if inst, err := database.FindInstitutionByCode(req.CenterCode); err == nil && inst != nil {
			if err := database.SetUserCenterCode(user.ID, inst.Code); err == nil {
				user.CenterCode = &inst.Code
			}
		}
	}

	token, err := utils.GenerateToken(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}
	_ = database.TouchLastLogin(user.ID)

	c.JSON(http.StatusOK, gin.H{
		"access_token":         token,
		"token":                token,
		"user":                 userProfile(user),
		"assessment_completed": user.AssessmentCompleted,
		"risk_level":           string(riskForUser(user.ID)),
	})
}

// GetMe returns the authenticated user's profile plus the dynamic
// assessment and risk summary.
func GetMe(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
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
	resp := userProfile(user)
	resp["assessment_completed"] = user.AssessmentCompleted
	resp["risk_level"] = string(riskForUser(user.ID))
	c.JSON(http.StatusOK, resp)
}

func userProfile(u *database.User) gin.H {
	centerCode := ""
	if u.CenterCode != nil {
		centerCode = *u.CenterCode
	}
	return gin.H{
		"id":          u.ID.String(),
		"username":    u.Username,
		"nickname":    u.Nickname,
		"role":        u.Role,
		"center_code": centerCode,
		"created_at":  u.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// riskForUser derives the coarse risk level from the last week of
// diary signals. Store errors degrade to low rather than failing the
// calling endpoint.
func riskForUser(userID uuid.UUID) risk.Level {
	diaries, err := database.RecentDiaries(userID, 7)
	if err != nil {
		log.Printf("risk: fetching recent diaries failed for %s: %v", userID, err)
		return risk.LevelLow
	}
	signals := make([]risk.Signal, 0, len(diaries))
	for _, d := range diaries {
		signals = append(signals, risk.Signal{MoodLevel: d.MoodLevel, SafetyFlag: d.SafetyFlag, Mode: d.Mode})
	}
	return risk.Assess(signals)
}
