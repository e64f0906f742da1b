package model

import (
	"strings"
	"time"
)

// CommentStatus tracks whether a comment still awaits a response
type CommentStatus string

const (
	CommentOpen     CommentStatus = "open"
	CommentResolved CommentStatus = "resolved"
)

// Recommendation is a program manager's proposed outcome
type Recommendation string

const (
	RecommendApprove Recommendation = "approve"
	RecommendReject  Recommendation = "reject"
	RecommendModify  Recommendation = "modify"
)

func (r Recommendation) Valid() bool {
	switch r {
	case RecommendApprove, RecommendReject, RecommendModify:
		return true
	}
	return false
}

func ParseRecommendation(raw string) (Recommendation, bool) {
	r := Recommendation(strings.ToLower(strings.TrimSpace(raw)))
	return r, r.Valid()
}

// Decision is the director's final call
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

func (d Decision) Valid() bool {
	return d == DecisionApprove || d == DecisionReject
}

// Comment types written or read by workflow actions. The column is not a
// closed enum; callers may store other values.
const (
	CommentTypeProjectManagerNote       = "project_manager_note"
	CommentTypeProjectManagerSubmission = "project_manager_submission"
	CommentTypeProjectManagerResponse   = "project_manager_response"
	CommentTypeReview                   = "review"
	CommentTypeRisk                     = "risk"
	CommentTypeFinancial                = "financial"
	CommentTypeCompliance               = "compliance"
	CommentTypeLegal                    = "legal"
	CommentTypeDirectorDecision         = "director_decision"
)

// Comment is one entry of a contract's annotation log
type Comment struct {
	ID                 uint            `gorm:"primaryKey" json:"id"`
	ContractID         string          `gorm:"size:64;not null;index" json:"contract_id"`
	AuthorID           string          `gorm:"size:64" json:"author_id"`
	AuthorRole         Role            `gorm:"size:32;not null;index" json:"author_role"`
	CommentType        string          `gorm:"size:64;not null" json:"comment_type"`
	Text               string          `gorm:"type:text;not null" json:"text"`
	FlaggedRisk        bool            `gorm:"not null" json:"flagged_risk"`
	FlaggedIssue       bool            `gorm:"not null" json:"flagged_issue"`
	Recommendation     *Recommendation `gorm:"size:16" json:"recommendation,omitempty"`
	Status             CommentStatus   `gorm:"size:16;not null;index" json:"status"`
	ResolutionResponse *string         `gorm:"type:text" json:"resolution_response,omitempty"`
	ResolvedAt         *time.Time      `json:"resolved_at,omitempty"`
	CreatedAt          time.Time       `gorm:"<-:create;not null" json:"created_at"`
}
