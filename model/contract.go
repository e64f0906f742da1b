package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Status is the workflow state of a contract
type Status string

// Contract status constants
const (
	StatusDraft       Status = "draft"
	StatusUnderReview Status = "under_review"
	StatusReviewed    Status = "reviewed"
	StatusRejected    Status = "rejected"
	StatusApproved    Status = "approved"
)

// AllStatuses lists every workflow state in lifecycle order
var AllStatuses = []Status{StatusDraft, StatusUnderReview, StatusReviewed, StatusRejected, StatusApproved}

// Valid reports whether s is a known workflow state
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusUnderReview, StatusReviewed, StatusRejected, StatusApproved:
		return true
	}
	return false
}

// Terminal reports whether no further transition leaves s
func (s Status) Terminal() bool {
	return s == StatusApproved
}

// ParseStatus accepts any casing and surrounding whitespace
func ParseStatus(raw string) (Status, bool) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	return s, s.Valid()
}

// ReferenceKind selects which upstream number identifies a contract on screen
type ReferenceKind string

const (
	ReferenceInvestment ReferenceKind = "investment"
	ReferenceProject    ReferenceKind = "project"
	ReferenceGrant      ReferenceKind = "grant"
	ReferenceNone       ReferenceKind = "none"
)

// ReferenceTag is display-only; the workflow never reads it
type ReferenceTag struct {
	Kind  ReferenceKind `gorm:"size:16" json:"kind"`
	Value int64         `json:"value"`
}

// Contract is the canonical record every workflow operation reads and writes
type Contract struct {
	ID              string            `gorm:"primaryKey;size:64" json:"id"`
	Status          Status            `gorm:"size:20;not null;index" json:"status"`
	ReferenceTag    ReferenceTag      `gorm:"embedded;embeddedPrefix:reference_" json:"reference_tag"`
	Filename        string            `gorm:"size:255" json:"filename,omitempty"`
	GrantName       string            `gorm:"size:500" json:"grant_name"`
	Grantor         string            `gorm:"size:255" json:"grantor,omitempty"`
	Grantee         string            `gorm:"size:255" json:"grantee,omitempty"`
	ContractNumber  string            `gorm:"size:128" json:"contract_number,omitempty"`
	TotalAmount     decimal.Decimal   `gorm:"type:decimal(20,2);not null" json:"total_amount"`
	Currency        string            `gorm:"size:8;not null" json:"currency"`
	StartDate       string            `gorm:"size:32" json:"start_date,omitempty"`
	EndDate         string            `gorm:"size:32" json:"end_date,omitempty"`
	Purpose         string            `gorm:"type:text" json:"purpose,omitempty"`
	ExtractedDetail datatypes.JSONMap `gorm:"type:json" json:"extracted_detail,omitempty"`
	Version         int64             `gorm:"not null" json:"version"`
	History         []HistoryEntry    `gorm:"foreignKey:ContractID" json:"history"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// DisplayReference renders the identifier shown to users:
// investment > project > grant > raw id.
func (c *Contract) DisplayReference() string {
	switch c.ReferenceTag.Kind {
	case ReferenceInvestment:
		return fmt.Sprintf("INV-%d", c.ReferenceTag.Value)
	case ReferenceProject:
		return fmt.Sprintf("PRJ-%d", c.ReferenceTag.Value)
	case ReferenceGrant:
		return fmt.Sprintf("GRT-%d", c.ReferenceTag.Value)
	}
	return c.ID
}

// HistoryEntry is one append-only audit record of a workflow action.
// Side actions that keep the status record FromStatus == ToStatus.
type HistoryEntry struct {
	ID         uint      `gorm:"primaryKey" json:"-"`
	ContractID string    `gorm:"size:64;not null;index" json:"-"`
	Action     Action    `gorm:"size:32;not null" json:"action"`
	FromStatus Status    `gorm:"size:20;not null" json:"from_status"`
	ToStatus   Status    `gorm:"size:20;not null" json:"to_status"`
	ActorRole  Role      `gorm:"size:32;not null" json:"actor_role"`
	ActorID    string    `gorm:"size:64" json:"actor_id"`
	At         time.Time `gorm:"not null;index" json:"at"`
	Note       string    `gorm:"type:text" json:"note,omitempty"`
}

func (HistoryEntry) TableName() string {
	return "contract_history"
}

// Action names a workflow operation
type Action string

const (
	ActionSubmitForReview   Action = "submit_for_review"
	ActionReviewDecision    Action = "review_decision"
	ActionFinalApproval     Action = "final_approval"
	ActionFixMetadata       Action = "fix_metadata"
	ActionRespondToComments Action = "respond_to_comments"
	ActionAddComment        Action = "add_comment"
)
