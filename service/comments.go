package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MUKTHARS/clmprod-sub000/model"
	"gorm.io/gorm"
)

// FlagKind selects which comment flag CountFlagged counts
type FlagKind string

const (
	FlagRisk  FlagKind = "risk"
	FlagIssue FlagKind = "issue"
)

// CommentFilter narrows List; zero values match everything
type CommentFilter struct {
	Roles  []model.Role
	Status model.CommentStatus
}

// CommentStore is the ordered annotation log of each contract.
// Rows are never deleted; the only mutation is open -> resolved.
type CommentStore struct {
	db *gorm.DB
}

func NewCommentStore(db *gorm.DB) *CommentStore {
	return &CommentStore{db: db}
}

func (s *CommentStore) conn(ctx context.Context, tx *gorm.DB) *gorm.DB {
	if tx == nil {
		tx = s.db
	}
	return tx.WithContext(ctx)
}

// Add validates and inserts a comment. Status defaults to open and
// CreatedAt to now.
func (s *CommentStore) Add(ctx context.Context, tx *gorm.DB, comment *model.Comment) error {
	comment.Text = strings.TrimSpace(comment.Text)
	if comment.Text == "" {
		return newError(KindValidation, "comment text is required")
	}
	if comment.ContractID == "" {
		return newError(KindValidation, "comment must reference a contract")
	}
	if !comment.AuthorRole.Valid() {
		return newError(KindValidation, "unknown author role %q", comment.AuthorRole)
	}
	if comment.Recommendation != nil {
		if comment.AuthorRole != model.RoleProgramManager {
			return newError(KindValidation, "only a program manager may attach a recommendation")
		}
		if !comment.Recommendation.Valid() {
			return newError(KindValidation, "unknown recommendation %q", *comment.Recommendation)
		}
	}
	if comment.Status == "" {
		comment.Status = model.CommentOpen
	}
	if comment.CreatedAt.IsZero() {
		comment.CreatedAt = time.Now().UTC()
	}
	if err := s.conn(ctx, tx).Create(comment).Error; err != nil {
		return fmt.Errorf("failed to create comment: %w", err)
	}
	return nil
}

func (s *CommentStore) Get(ctx context.Context, tx *gorm.DB, id uint) (*model.Comment, error) {
	var comment model.Comment
	err := s.conn(ctx, tx).First(&comment, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, newError(KindNotFound, "comment %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load comment: %w", err)
	}
	return &comment, nil
}

// List returns a contract's comments in creation order, ties broken by id
func (s *CommentStore) List(ctx context.Context, tx *gorm.DB, contractID string, filter CommentFilter) ([]model.Comment, error) {
	q := s.conn(ctx, tx).Where("contract_id = ?", contractID)
	if len(filter.Roles) > 0 {
		q = q.Where("author_role IN ?", filter.Roles)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	comments := []model.Comment{}
	if err := q.Order("created_at ASC, id ASC").Find(&comments).Error; err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	return comments, nil
}

func (s *CommentStore) CountOpen(ctx context.Context, contractID string) (int64, error) {
	var n int64
	err := s.conn(ctx, nil).Model(&model.Comment{}).
		Where("contract_id = ? AND status = ?", contractID, model.CommentOpen).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count comments: %w", err)
	}
	return n, nil
}

func (s *CommentStore) CountFlagged(ctx context.Context, contractID string, kind FlagKind) (int64, error) {
	var column string
	switch kind {
	case FlagRisk:
		column = "flagged_risk"
	case FlagIssue:
		column = "flagged_issue"
	default:
		return 0, newError(KindValidation, "unknown flag kind %q", kind)
	}
	var n int64
	err := s.conn(ctx, nil).Model(&model.Comment{}).
		Where("contract_id = ?", contractID).
		Where(column+" = ?", true).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count comments: %w", err)
	}
	return n, nil
}

// Resolve flips an open comment to resolved. The update is conditioned on
// the comment still being open, so a second resolution is a conflict.
func (s *CommentStore) Resolve(ctx context.Context, tx *gorm.DB, id uint, response *string, at time.Time) error {
	res := s.conn(ctx, tx).Model(&model.Comment{}).
		Where("id = ? AND status = ?", id, model.CommentOpen).
		Updates(map[string]any{
			"status":              model.CommentResolved,
			"resolution_response": response,
			"resolved_at":         at,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to resolve comment: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := s.Get(ctx, tx, id); err != nil {
			return err
		}
		return newError(KindConflict, "comment %d is already resolved", id)
	}
	return nil
}

// ConsumeRecommendations resolves the open program manager comments that
// carry a recommendation once a final review has used them.
func (s *CommentStore) ConsumeRecommendations(ctx context.Context, tx *gorm.DB, contractID string, at time.Time) (int64, error) {
	res := s.conn(ctx, tx).Model(&model.Comment{}).
		Where("contract_id = ? AND author_role = ? AND status = ? AND recommendation IS NOT NULL",
			contractID, model.RoleProgramManager, model.CommentOpen).
		Updates(map[string]any{
			"status":      model.CommentResolved,
			"resolved_at": at,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to consume recommendations: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// FinalReview is the director's read model of the current review round
type FinalReview struct {
	ContractID      string                 `json:"contract_id"`
	RoundStartedAt  *time.Time             `json:"round_started_at,omitempty"`
	CommentCount    int                    `json:"comment_count"`
	RiskFlags       int                    `json:"risk_flags"`
	IssueFlags      int                    `json:"issue_flags"`
	Recommendations []model.Recommendation `json:"recommendations"`
	Comments        []model.Comment        `json:"comments"`
}

// FinalReview aggregates program manager comments written since the contract
// last entered under_review. Without such an entry every program manager
// comment counts.
func (s *CommentStore) FinalReview(ctx context.Context, contractID string, history []model.HistoryEntry) (*FinalReview, error) {
	var since *time.Time
	for i := len(history) - 1; i >= 0; i-- {
		h := history[i]
		if h.ToStatus == model.StatusUnderReview && h.FromStatus != model.StatusUnderReview {
			at := h.At
			since = &at
			break
		}
	}

	comments, err := s.List(ctx, nil, contractID, CommentFilter{Roles: []model.Role{model.RoleProgramManager}})
	if err != nil {
		return nil, err
	}

	review := &FinalReview{
		ContractID:      contractID,
		RoundStartedAt:  since,
		Recommendations: []model.Recommendation{},
		Comments:        []model.Comment{},
	}
	seen := map[model.Recommendation]bool{}
	for _, c := range comments {
		if since != nil && c.CreatedAt.Before(*since) {
			continue
		}
		review.Comments = append(review.Comments, c)
		if c.FlaggedRisk {
			review.RiskFlags++
		}
		if c.FlaggedIssue {
			review.IssueFlags++
		}
		if c.Recommendation != nil && !seen[*c.Recommendation] {
			seen[*c.Recommendation] = true
			review.Recommendations = append(review.Recommendations, *c.Recommendation)
		}
	}
	review.CommentCount = len(review.Comments)
	return review, nil
}
