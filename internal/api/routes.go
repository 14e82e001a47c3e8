package api

import (
	"net/http"

	"evofit/health-protocol/internal/catalog"
	"evofit/health-protocol/internal/domain"
	"evofit/health-protocol/internal/logger"
	"evofit/health-protocol/internal/safety"
	"evofit/health-protocol/internal/service"
	"evofit/health-protocol/internal/wizard"

	"github.com/gin-gonic/gin"
)

// Dependencies groups what the HTTP layer needs.
type Dependencies struct {
	AuthService       service.AuthService
	TrainerService    service.TrainerService
	ProtocolService   service.ProtocolService
	AssignmentService service.AssignmentService
	Catalog           *catalog.Catalog
	Validator         *safety.Validator
	Wizard            *wizard.Manager
	Logger            *logger.Logger
}

func SetupRoutes(router *gin.Engine, deps Dependencies) {
	catalogHandler := NewCatalogHandler(deps.Catalog, deps.Validator, deps.Logger)
	trainerHandler := NewTrainerHandler(deps.TrainerService, deps.Logger)
	protocolHandler := NewProtocolHandler(deps.ProtocolService, deps.Logger)
	assignmentHandler := NewAssignmentHandler(deps.AssignmentService, deps.Logger)
	wizardHandler := NewWizardHandler(deps.Wizard, deps.TrainerService, deps.ProtocolService, deps.Logger)

	router.Use(RequestLogger(deps.Logger))

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	apiV1 := router.Group("/api/v1")
	protected := apiV1.Group("")
	protected.Use(AuthMiddleware(deps.AuthService))
	{
		protected.GET("/me", func(c *gin.Context) {
			userIDStr, err := getUserIDFromContext(c)
			if err != nil {
				abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from token")
				return
			}
			role, _ := getUserRoleFromContext(c)
			c.JSON(http.StatusOK, gin.H{"userId": userIDStr, "role": role})
		})

		// --- Template library and stateless safety checks ---
		protected.GET("/templates", catalogHandler.ListTemplates)
		protected.GET("/templates/:templateId", catalogHandler.GetTemplate)
		protected.POST("/safety/check", catalogHandler.CheckSafety)

		// --- Wizard ---
		// Trainers build protocols for customers; customers use the self-service flow.
		wizardGroup := protected.Group("/wizard/session")
		{
			wizardGroup.POST("", wizardHandler.OpenSession)
			wizardGroup.GET("", wizardHandler.GetSession)
			wizardGroup.GET("/review", wizardHandler.Review)
			wizardGroup.POST("/edit/:protocolId", RoleMiddleware(domain.RoleTrainer), wizardHandler.EditProtocol)
			wizardGroup.PUT("/client", wizardHandler.SelectClient)
			wizardGroup.PUT("/template", wizardHandler.SelectTemplate)
			wizardGroup.PUT("/health", wizardHandler.SetHealthInfo)
			wizardGroup.PUT("/medical", wizardHandler.SetMedicalConditions)
			wizardGroup.PUT("/customization", wizardHandler.SetCustomization)
			wizardGroup.POST("/generation", wizardHandler.Generate)
			wizardGroup.POST("/generation/fallback", wizardHandler.UseTemplateFallback)
			wizardGroup.POST("/safety", wizardHandler.ConfirmSafetyCheck)
			wizardGroup.POST("/next", wizardHandler.Next)
			wizardGroup.POST("/back", wizardHandler.Back)
			wizardGroup.POST("/cancel", wizardHandler.Cancel)
			wizardGroup.POST("/save", wizardHandler.Save)
		}

		// --- Assignments (trainer or customer) ---
		assignmentGroup := protected.Group("/assignments")
		{
			assignmentGroup.GET("", assignmentHandler.GetAssignments)
			assignmentGroup.PATCH("/:assignmentId/status", assignmentHandler.UpdateStatus)
			assignmentGroup.POST("/:assignmentId/progress", assignmentHandler.RecordProgress)
		}

		protected.GET("/protocols/:protocolId", protocolHandler.GetProtocol)

		// --- Trainer Specific Routes ---
		trainerGroup := protected.Group("/trainer")
		trainerGroup.Use(RoleMiddleware(domain.RoleTrainer))
		{
			trainerGroup.GET("/customers", trainerHandler.GetManagedCustomers)
			trainerGroup.GET("/protocols", protocolHandler.GetTrainerProtocols)
			trainerGroup.GET("/protocols/:protocolId/versions", protocolHandler.GetVersionHistory)
			trainerGroup.POST("/protocols/:protocolId/rollback", protocolHandler.RollbackProtocol)
			trainerGroup.GET("/protocols/:protocolId/versions/:version/download", protocolHandler.GetVersionDownloadURL)
			trainerGroup.DELETE("/protocols/:protocolId", protocolHandler.DeleteProtocol)
		}
	}
}
