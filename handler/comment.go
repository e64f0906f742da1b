package handler

import (
	"net/http"
	"strings"

	"github.com/MUKTHARS/clmprod-sub000/model"
	"github.com/MUKTHARS/clmprod-sub000/service"
	"github.com/gin-gonic/gin"
)

type CommentHandler struct {
	workflow  *service.WorkflowService
	contracts *service.ContractStore
	comments  *service.CommentStore
}

func NewCommentHandler(workflow *service.WorkflowService, contracts *service.ContractStore, comments *service.CommentStore) *CommentHandler {
	return &CommentHandler{workflow: workflow, contracts: contracts, comments: comments}
}

type ProjectManagerCommentRequest struct {
	Comment      string `json:"comment" binding:"required,notblank"`
	CommentType  string `json:"comment_type"`
	FlaggedRisk  bool   `json:"flagged_risk"`
	FlaggedIssue bool   `json:"flagged_issue"`
}

type ProgramManagerCommentRequest struct {
	Comment        string `json:"comment" binding:"required,notblank"`
	CommentType    string `json:"comment_type"`
	FlaggedRisk    bool   `json:"flagged_risk"`
	FlaggedIssue   bool   `json:"flagged_issue"`
	Recommendation string `json:"recommendation" binding:"omitempty,recommendation"`
}

// AddProjectManagerComment appends a project manager note
func (h *CommentHandler) AddProjectManagerComment(c *gin.Context) {
	var req ProjectManagerCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	h.addComment(c, service.CommentInput{
		Text:         req.Comment,
		CommentType:  strings.TrimSpace(req.CommentType),
		FlaggedRisk:  req.FlaggedRisk,
		FlaggedIssue: req.FlaggedIssue,
	})
}

// AddProgramManagerComment appends a review comment, optionally carrying a
// recommendation
func (h *CommentHandler) AddProgramManagerComment(c *gin.Context) {
	var req ProgramManagerCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	in := service.CommentInput{
		Text:         req.Comment,
		CommentType:  strings.TrimSpace(req.CommentType),
		FlaggedRisk:  req.FlaggedRisk,
		FlaggedIssue: req.FlaggedIssue,
	}
	if req.Recommendation != "" {
		rec, _ := model.ParseRecommendation(req.Recommendation)
		in.Recommendation = &rec
	}
	h.addComment(c, in)
}

func (h *CommentHandler) addComment(c *gin.Context, in service.CommentInput) {
	p, ok := principal(c)
	if !ok {
		return
	}
	res, err := h.workflow.AddComment(c.Request.Context(), p, c.Param("id"), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"comment": res.Comments[0],
		"history": res.History,
	})
}

// ReviewComments lists comments written by reviewers. ?role= narrows to one
// reviewing role and ?status= to open or resolved.
func (h *CommentHandler) ReviewComments(c *gin.Context) {
	filter := service.CommentFilter{Roles: []model.Role{model.RoleProgramManager, model.RoleDirector}}
	if raw := c.Query("role"); raw != "" {
		role, ok := model.ParseRole(raw)
		if !ok || !role.Reviewing() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown reviewer role " + raw, "kind": string(service.KindValidation)})
			return
		}
		filter.Roles = []model.Role{role}
	}
	h.list(c, filter)
}

// Comments lists the whole comment log of a contract
func (h *CommentHandler) Comments(c *gin.Context) {
	var filter service.CommentFilter
	if raw := c.Query("role"); raw != "" {
		role, ok := model.ParseRole(raw)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown role " + raw, "kind": string(service.KindValidation)})
			return
		}
		filter.Roles = []model.Role{role}
	}
	h.list(c, filter)
}

func (h *CommentHandler) list(c *gin.Context, filter service.CommentFilter) {
	switch status := model.CommentStatus(strings.ToLower(c.Query("status"))); status {
	case "":
	case model.CommentOpen, model.CommentResolved:
		filter.Status = status
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown comment status " + string(status), "kind": string(service.KindValidation)})
		return
	}

	id := c.Param("id")
	ctx := c.Request.Context()
	if _, err := h.contracts.Head(ctx, nil, id); err != nil {
		respondError(c, err)
		return
	}
	comments, err := h.comments.List(ctx, nil, id, filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"contract_id": id, "comments": comments})
}

// Summary returns the open and flagged comment counters
func (h *CommentHandler) Summary(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()
	if _, err := h.contracts.Head(ctx, nil, id); err != nil {
		respondError(c, err)
		return
	}

	open, err := h.comments.CountOpen(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	risk, err := h.comments.CountFlagged(ctx, id, service.FlagRisk)
	if err != nil {
		respondError(c, err)
		return
	}
	issue, err := h.comments.CountFlagged(ctx, id, service.FlagIssue)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"contract_id":   id,
		"open":          open,
		"flagged_risk":  risk,
		"flagged_issue": issue,
	})
}

// FinalReview returns the program manager round the director decides on
func (h *CommentHandler) FinalReview(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()
	if _, err := h.contracts.Head(ctx, nil, id); err != nil {
		respondError(c, err)
		return
	}
	history, err := h.contracts.History(ctx, nil, id)
	if err != nil {
		respondError(c, err)
		return
	}
	review, err := h.comments.FinalReview(ctx, id, history)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, review)
}
