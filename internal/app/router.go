package app

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/amitpaz1/formbridge-sub001/internal/api/handlers"
	"github.com/amitpaz1/formbridge-sub001/internal/api/middleware"
	"github.com/amitpaz1/formbridge-sub001/internal/config"
	"github.com/amitpaz1/formbridge-sub001/internal/pkg/metrics"
)

func newRouter(cfg *config.Config, server *handlers.Server) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), middleware.Tenant(), middleware.ErrorHandler())

	if len(cfg.Server.AllowedOrigins) > 0 {
		corsCfg := cors.DefaultConfig()
		corsCfg.AllowOrigins = cfg.Server.AllowedOrigins
		corsCfg.AllowHeaders = append(corsCfg.AllowHeaders,
			middleware.RequestIDHeader, middleware.TenantHeader)
		router.Use(cors.New(corsCfg))
	}

	router.GET("/healthz", server.Healthz)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/intakes", server.ListIntakes)
		v1.GET("/intakes/:intakeId", server.GetIntake)

		intake := v1.Group("/intake/:intakeId/submissions")
		{
			intake.POST("", server.CreateSubmission)
			intake.GET("/:submissionId", server.GetSubmission)
			intake.PATCH("/:submissionId", server.SetFields)
			intake.POST("/:submissionId/validate", server.ValidateSubmission)
			intake.POST("/:submissionId/submit", server.SubmitSubmission)
		}

		subs := v1.Group("/submissions")
		{
			subs.GET("/resume/:token", server.ResumeSubmission)
			subs.POST("/resume/:token/resumed", server.MarkResumed)

			subs.POST("/:submissionId/handoff", server.GenerateHandoff)
			subs.POST("/:submissionId/cancel", server.CancelSubmission)

			subs.POST("/:submissionId/approve", server.ApproveSubmission)
			subs.POST("/:submissionId/reject", server.RejectSubmission)
			subs.POST("/:submissionId/request-changes", server.RequestChanges)

			subs.POST("/:submissionId/uploads", server.RequestUpload)
			subs.POST("/:submissionId/uploads/:uploadId/confirm", server.ConfirmUpload)

			subs.GET("/:submissionId/events", server.ListEvents)
		}

		v1.GET("/tools", server.ListTools)
		v1.POST("/tools/:toolName", server.CallTool)

		v1.GET("/admin/stats", server.AdminStats)
	}

	return router
}
