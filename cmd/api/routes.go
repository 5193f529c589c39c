package main

import (
	"audit-platform/internal/httpapi"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, authMW gin.HandlerFunc) {
	// public
	r.GET("/healthz", h.Healthz)
	r.POST("/auth/token", h.IssueToken)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(authMW)
	{
		// AUDIT routes: write endpoints for external producers, plus the two
		// traversal queries (trail per subject, direct children per record).
		auditGroup := v1.Group("/audit")
		{
			auditGroup.POST("", h.CreateAuditRecord)
			auditGroup.POST("/linked", h.CreateLinkedAuditRecord)
			auditGroup.GET("/trail/:subject_id", h.GetTrail)
			auditGroup.GET("/children/:parent_id", h.GetChildren)
		}

		// USER routes: the tracked CRUD surface. Every mutation below emits
		// audit records through the user service.
		userGroup := v1.Group("/users")
		{
			userGroup.POST("", h.CreateUser)
			userGroup.GET("/:user_id", h.GetUser)
			userGroup.PATCH("/:user_id", h.UpdateUser)
			userGroup.DELETE("/:user_id", h.DeleteUser)
			userGroup.POST("/bulk-update", h.BulkUpdateUsers)
		}
	}
}
