package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	database "github.com/maum-on/haruon-hub/internal"
	"github.com/maum-on/haruon-hub/internal/analysis"
	"github.com/maum-on/haruon-hub/internal/api"
	"github.com/maum-on/haruon-hub/internal/crypto"
	"github.com/maum-on/haruon-hub/internal/llm"
	"github.com/maum-on/haruon-hub/internal/report"
	"github.com/maum-on/haruon-hub/internal/utils"
)

func main() {
	database.Connect()
	crypto.MustInit()
	if _, err := utils.GetJWTSecret(); err != nil {
		log.Fatalf("FATAL: %v", err)
	}

	client := llm.NewFromEnv()
	analysis.Configure(client)
	report.Configure(client)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8000"
	}
	log.Println("Starting Haru-On hub on :" + port + "...")
	router := gin.Default()

	// Background analysis queue (optional) with graceful cancel. The
	// connection opens synchronously so handlers see a settled queue;
	// only the consumers run on the goroutine.
	if api.InitQueueFromEnv() {
		wctx, cancel := context.WithCancel(context.Background())
		go api.StartAnalysisWorker(wctx)
		go func() {
			sigc := make(chan os.Signal, 1)
			signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
			<-sigc
			log.Println("signal received, cancelling worker...")
			cancel()
		}()
	}
	api.StartDedupScheduler()

	router.Use(api.MetricsMiddleware())
	router.Use(api.RequestIDMiddleware())

	config := cors.Config{
		AllowAllOrigins:  true,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	// Override allowed origins via env (comma-separated)
	if origins := os.Getenv("MAUM_CORS_ORIGINS"); origins != "" {
		config.AllowAllOrigins = false
		parts := strings.Split(origins, ",")
		allow := make([]string, 0, len(parts))
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				allow = append(allow, s)
			}
		}
		if len(allow) > 0 {
			config.AllowOrigins = allow
		}
	}
	router.Use(cors.New(config))

	// Health and readiness
	router.GET("/healthz", func(c *gin.Context) { c.Status(200) })
	router.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 300*time.Millisecond)
		defer cancel()
		if err := database.DB.DB.PingContext(ctx); err != nil {
			c.JSON(503, gin.H{"status": "not ready", "error": err.Error()})
			return
		}
		if os.Getenv("MAUM_QUEUE_ENABLE") != "" {
			addr := os.Getenv("MAUM_REDIS_ADDR")
			if addr == "" {
				addr = "localhost:6379"
			}
			rdb := redis.NewClient(&redis.Options{Addr: addr, Password: os.Getenv("MAUM_REDIS_PASSWORD")})
			rctx, rcancel := context.WithTimeout(c.Request.Context(), 300*time.Millisecond)
			defer rcancel()
			if err := rdb.Ping(rctx).Err(); err != nil {
				c.JSON(503, gin.H{"status": "not ready", "error": "redis ping failed"})
				_ = rdb.Close()
				return
			}
			_ = rdb.Close()
		}
		c.JSON(200, gin.H{"status": "ready"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// --- Public routes ---
	limited := api.RateLimitMiddlewareFromEnv()
	router.POST("/register", limited, api.RegisterUser)
	router.POST("/login", limited, api.LoginUser)
	// Code verification happens during onboarding, before a token exists
	router.POST("/centers/verify-code", limited, api.VerifyCode)

	// --- Protected routes (user JWT) ---
	protected := router.Group("/")
	protected.Use(api.AuthMiddleware())
	{
		protected.GET("/user/me", api.GetMe)
		protected.GET("/me", api.GetMe)
		protected.PUT("/me", api.UpdateMe)
		protected.PUT("/me/password", api.UpdatePassword)

		protected.POST("/b2g_sync/connect", api.ConnectCenter)

		protected.POST("/diaries", api.CreateDiary)
		protected.GET("/diaries", api.ListDiaries)
		protected.GET("/diaries/date/:date", api.GetDiaryByDate)
		protected.GET("/diaries/:id", api.GetDiary)
		protected.PUT("/diaries/:id", api.UpdateDiary)
		// Legacy alias some clients still call
		protected.POST("/diaries/:id/upt", api.UpdateDiary)
		protected.DELETE("/diaries/:id", api.DeleteDiary)

		protected.POST("/report/start", api.StartDailyReport)
		protected.GET("/report/status", api.DailyReportStatus)
		protected.POST("/report/longterm/start", api.StartLongtermReport)
		protected.GET("/report/longterm/status", api.LongtermReportStatus)
	}

	if err := router.Run(":" + port); err != nil {
		log.Fatalf("FATAL: server exited: %v", err)
	}
}
