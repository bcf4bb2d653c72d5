// internal/api/api.go
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/andresuchdata/autopo-engine/internal/api/handlers"
	"github.com/andresuchdata/autopo-engine/internal/api/middleware"
	"github.com/andresuchdata/autopo-engine/internal/service"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type Services struct {
	Recommendations *service.RecommendationService
	Feedback        *service.FeedbackService
	Outcomes        *service.OutcomeService
	Reports         *service.ReportService
}

func NewRouter(services *Services, allowedOrigins []string) *gin.Engine {
	router := gin.New()

	// Add middleware
	router.Use(middleware.Logger())
	router.Use(middleware.Recovery())
	defaultOrigins := []string{"http://localhost:3000", "http://127.0.0.1:3000"}
	corsConfig := cors.Config{
		AllowOrigins:     defaultOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(allowedOrigins) > 0 {
		normalizedOrigins, allowAll := normalizeAllowedOrigins(allowedOrigins)
		if allowAll {
			corsConfig.AllowOrigins = nil
			corsConfig.AllowOriginFunc = func(origin string) bool { return true }
		} else if len(normalizedOrigins) > 0 {
			corsConfig.AllowOrigins = normalizedOrigins
		}
	}
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apiGroup := router.Group("/api/v1")

	if services != nil {
		storeGroup := apiGroup.Group("/stores/:store")
		recGroup := apiGroup.Group("/recommendations/:id")

		if services.Recommendations != nil {
			recHandler := handlers.NewRecommendationHandler(services.Recommendations, services.Outcomes)
			storeGroup.POST("/recommendations/generate", recHandler.Generate)
			storeGroup.GET("/recommendations", recHandler.ListCurrent)
			storeGroup.GET("/runs", recHandler.Runs)
			recGroup.GET("/explain", recHandler.Explain)

			if services.Outcomes != nil {
				storeGroup.POST("/outcomes/verify", recHandler.VerifyOutcomes)
			}
		}

		if services.Feedback != nil {
			feedbackHandler := handlers.NewFeedbackHandler(services.Feedback)
			recGroup.POST("/feedback", feedbackHandler.RecordFeedback)
			recGroup.GET("/feedback/history", feedbackHandler.History)
		}

		if services.Reports != nil {
			reportHandler := handlers.NewReportHandler(services.Reports)
			storeGroup.GET("/reports/:kind", reportHandler.GetReport)
			storeGroup.POST("/reports/export", reportHandler.Export)
			storeGroup.GET("/summary", reportHandler.GetSummary)
		}
	}

	return router
}

func normalizeAllowedOrigins(origins []string) ([]string, bool) {
	var (
		parsed   []string
		allowAll bool
	)
	for _, origin := range origins {
		parts := strings.Split(origin, ",")
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed == "" {
				continue
			}
			if trimmed == "*" {
				allowAll = true
				continue
			}
			parsed = append(parsed, trimmed)
		}
	}
	return parsed, allowAll
}
