package handler

import (
	"net/http"
	"strings"

	"github.com/MUKTHARS/clmprod-sub000/model"
	"github.com/MUKTHARS/clmprod-sub000/service"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// WorkflowHandler exposes the role-gated contract transitions
type WorkflowHandler struct {
	workflow *service.WorkflowService
}

func NewWorkflowHandler(workflow *service.WorkflowService) *WorkflowHandler {
	return &WorkflowHandler{workflow: workflow}
}

// Workflow request bodies carry no binding rules; the workflow validates
// their fields after its role and status checks.

type SubmitReviewRequest struct {
	Notes          string `json:"notes"`
	ExpectedStatus string `json:"expected_status"`
}

type UpdateStatusRequest struct {
	Status         string `json:"status"`
	Comments       string `json:"comments"`
	CommentType    string `json:"comment_type"`
	FlaggedRisk    bool   `json:"flagged_risk"`
	FlaggedIssue   bool   `json:"flagged_issue"`
	ExpectedStatus string `json:"expected_status"`
}

type FinalApprovalRequest struct {
	Decision       string `json:"decision"`
	Comments       string `json:"comments"`
	ExpectedStatus string `json:"expected_status"`
}

type FixMetadataRequest struct {
	GrantName      *string          `json:"grant_name"`
	Grantor        *string          `json:"grantor"`
	Grantee        *string          `json:"grantee"`
	ContractNumber *string          `json:"contract_number"`
	TotalAmount    *decimal.Decimal `json:"total_amount"`
	Currency       *string          `json:"currency"`
	StartDate      *string          `json:"start_date"`
	EndDate        *string          `json:"end_date"`
	Purpose        *string          `json:"purpose"`
	Notes          string           `json:"notes"`
	ExpectedStatus string           `json:"expected_status"`
}

type RespondRequest struct {
	Response        string `json:"response"`
	ReviewCommentID *uint  `json:"review_comment_id"`
	ExpectedStatus  string `json:"expected_status"`
}

// SubmitReview handles POST /contracts/:id/project-manager/submit-review
func (h *WorkflowHandler) SubmitReview(c *gin.Context) {
	var req SubmitReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	p, ok := principal(c)
	if !ok {
		return
	}
	expected, err := parseExpected(req.ExpectedStatus)
	if err != nil {
		respondError(c, err)
		return
	}

	res, err := h.workflow.SubmitForReview(c.Request.Context(), p, c.Param("id"), service.SubmitInput{
		Notes:          req.Notes,
		ExpectedStatus: expected,
	})
	respond(c, res, err)
}

// UpdateStatus records the program manager's review decision; status
// carries the recommendation.
func (h *WorkflowHandler) UpdateStatus(c *gin.Context) {
	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	p, ok := principal(c)
	if !ok {
		return
	}
	expected, err := parseExpected(req.ExpectedStatus)
	if err != nil {
		respondError(c, err)
		return
	}
	rec, _ := model.ParseRecommendation(req.Status)

	res, err := h.workflow.ReviewDecision(c.Request.Context(), p, c.Param("id"), service.ReviewInput{
		Summary:        req.Comments,
		Recommendation: rec,
		CommentType:    strings.TrimSpace(req.CommentType),
		FlaggedRisk:    req.FlaggedRisk,
		FlaggedIssue:   req.FlaggedIssue,
		ExpectedStatus: expected,
	})
	respond(c, res, err)
}

// FinalApproval handles the director's decision
func (h *WorkflowHandler) FinalApproval(c *gin.Context) {
	var req FinalApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	p, ok := principal(c)
	if !ok {
		return
	}
	expected, err := parseExpected(req.ExpectedStatus)
	if err != nil {
		respondError(c, err)
		return
	}

	res, err := h.workflow.FinalApproval(c.Request.Context(), p, c.Param("id"), service.FinalApprovalInput{
		Decision:       model.Decision(strings.ToLower(strings.TrimSpace(req.Decision))),
		Comments:       req.Comments,
		ExpectedStatus: expected,
	})
	respond(c, res, err)
}

// FixMetadata patches canonical fields; absent fields are left alone
func (h *WorkflowHandler) FixMetadata(c *gin.Context) {
	var req FixMetadataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	p, ok := principal(c)
	if !ok {
		return
	}
	expected, err := parseExpected(req.ExpectedStatus)
	if err != nil {
		respondError(c, err)
		return
	}

	res, err := h.workflow.FixMetadata(c.Request.Context(), p, c.Param("id"), service.MetadataPatch{
		GrantName:      req.GrantName,
		Grantor:        req.Grantor,
		Grantee:        req.Grantee,
		ContractNumber: req.ContractNumber,
		TotalAmount:    req.TotalAmount,
		Currency:       req.Currency,
		StartDate:      req.StartDate,
		EndDate:        req.EndDate,
		Purpose:        req.Purpose,
		Notes:          req.Notes,
		ExpectedStatus: expected,
	})
	respond(c, res, err)
}

// RespondToComments answers reviewer comments on a rejected contract
func (h *WorkflowHandler) RespondToComments(c *gin.Context) {
	var req RespondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	p, ok := principal(c)
	if !ok {
		return
	}
	expected, err := parseExpected(req.ExpectedStatus)
	if err != nil {
		respondError(c, err)
		return
	}

	res, err := h.workflow.RespondToComments(c.Request.Context(), p, c.Param("id"), service.RespondInput{
		Response:       req.Response,
		CommentID:      req.ReviewCommentID,
		ExpectedStatus: expected,
	})
	respond(c, res, err)
}

// respond renders a workflow result or its error
func respond(c *gin.Context, res *service.Result, err error) {
	if err != nil {
		respondError(c, err)
		return
	}
	body := gin.H{
		"contract": newContractView(res.Contract),
		"history":  res.History,
	}
	if len(res.Comments) > 0 {
		body["comments"] = res.Comments
	}
	if len(res.Resolved) > 0 {
		body["resolved_comment_ids"] = res.Resolved
	}
	c.JSON(http.StatusOK, body)
}
