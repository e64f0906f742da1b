package handler

import (
	"github.com/MUKTHARS/clmprod-sub000/middleware"
	"github.com/MUKTHARS/clmprod-sub000/model"
	"github.com/gin-gonic/gin"
)

// Routes groups the handlers mounted under /api
type Routes struct {
	Auth      *AuthHandler
	Contracts *ContractHandler
	Workflow  *WorkflowHandler
	Comments  *CommentHandler
	Pending   *PendingHandler
	Ingest    *IngestHandler
}

// Register mounts every endpoint on api. authn must set the request
// principal; role checks beyond the route prefixes happen in the workflow.
func (r *Routes) Register(api *gin.RouterGroup, authn gin.HandlerFunc) {
	// Public routes
	api.POST("/auth/login", r.Auth.Login)
	api.POST("/ingest/contracts", r.Ingest.HandleIngest)

	protected := api.Group("/")
	protected.Use(authn)
	{
		protected.GET("/auth/me", r.Auth.GetCurrentUser)
		protected.GET("/pending-work", r.Pending.Counts)

		contracts := protected.Group("/contracts")
		contracts.GET("", r.Contracts.List)
		contracts.POST("/normalize", r.Contracts.Normalize)
		contracts.GET("/:id", r.Contracts.Get)
		contracts.GET("/:id/history", r.Contracts.History)
		contracts.GET("/:id/comments", r.Comments.Comments)
		contracts.GET("/:id/comments/summary", r.Comments.Summary)
		contracts.GET("/:id/review-comments", r.Comments.ReviewComments)
		contracts.GET("/:id/final-review", r.Comments.FinalReview)
		contracts.POST("/:id/update-status", r.Workflow.UpdateStatus)
		contracts.POST("/:id/final-approval", r.Workflow.FinalApproval)

		pm := contracts.Group("/:id/project-manager", middleware.RequireRole(model.RoleProjectManager))
		pm.POST("/submit-review", r.Workflow.SubmitReview)
		pm.POST("/fix-metadata", r.Workflow.FixMetadata)
		pm.POST("/respond-to-comments", r.Workflow.RespondToComments)
		pm.POST("/add-comment", r.Comments.AddProjectManagerComment)

		pgm := contracts.Group("/:id/program-manager", middleware.RequireRole(model.RoleProgramManager))
		pgm.POST("/add-comment", r.Comments.AddProgramManagerComment)
	}
}
