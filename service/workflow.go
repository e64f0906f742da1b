package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/MUKTHARS/clmprod-sub000/model"
	"github.com/MUKTHARS/clmprod-sub000/pkg/logger"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("github.com/MUKTHARS/clmprod-sub000/service")

// rule is one row of the transition table; the target status is computed by
// each action.
type rule struct {
	roles []model.Role
	from  []model.Status
}

var transitionTable = map[model.Action]rule{
	model.ActionSubmitForReview: {
		roles: []model.Role{model.RoleProjectManager},
		from:  []model.Status{model.StatusDraft, model.StatusRejected},
	},
	model.ActionReviewDecision: {
		roles: []model.Role{model.RoleProgramManager},
		from:  []model.Status{model.StatusUnderReview},
	},
	model.ActionFinalApproval: {
		roles: []model.Role{model.RoleDirector},
		from:  []model.Status{model.StatusReviewed},
	},
	model.ActionFixMetadata: {
		roles: []model.Role{model.RoleProjectManager},
		from:  []model.Status{model.StatusDraft, model.StatusUnderReview, model.StatusRejected},
	},
	model.ActionRespondToComments: {
		roles: []model.Role{model.RoleProjectManager},
		from:  []model.Status{model.StatusRejected},
	},
	model.ActionAddComment: {
		roles: []model.Role{model.RoleProjectManager, model.RoleProgramManager},
		from:  model.AllStatuses,
	},
}

// Authorize fails with an authorization error when role may not invoke action
func Authorize(action model.Action, role model.Role) error {
	r, ok := transitionTable[action]
	if !ok {
		return newError(KindValidation, "unknown action %q", action)
	}
	if !slices.Contains(r.roles, role) {
		return newError(KindAuthorization, "role %q may not %s", role, action)
	}
	return nil
}

// CheckTransition validates role and current status against the table
func CheckTransition(action model.Action, role model.Role, from model.Status) error {
	if err := Authorize(action, role); err != nil {
		return err
	}
	if !slices.Contains(transitionTable[action].from, from) {
		return newError(KindInvalidTransition, "cannot %s a contract in status %s", action, from)
	}
	return nil
}

// PendingInvalidator drops derived pending-work counts
type PendingInvalidator interface {
	Invalidate(ctx context.Context)
}

// WorkflowService applies role-gated actions to contracts. Each action runs
// in one transaction: the status compare-and-set, its history entry and any
// comment writes commit together or not at all.
type WorkflowService struct {
	contracts *ContractStore
	comments  *CommentStore
	pending   PendingInvalidator
	now       func() time.Time
}

func NewWorkflowService(contracts *ContractStore, comments *CommentStore, pending PendingInvalidator) *WorkflowService {
	return &WorkflowService{
		contracts: contracts,
		comments:  comments,
		pending:   pending,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Result is what every successful action returns
type Result struct {
	Contract *model.Contract    `json:"contract"`
	History  model.HistoryEntry `json:"history"`
	Comments []model.Comment    `json:"comments,omitempty"`
	Resolved []uint             `json:"resolved_comment_ids,omitempty"`
}

type SubmitInput struct {
	Notes          string
	ExpectedStatus model.Status
}

type ReviewInput struct {
	Summary        string
	Recommendation model.Recommendation
	CommentType    string
	FlaggedRisk    bool
	FlaggedIssue   bool
	ExpectedStatus model.Status
}

type FinalApprovalInput struct {
	Decision       model.Decision
	Comments       string
	ExpectedStatus model.Status
}

// MetadataPatch carries the canonical fields to overwrite; nil leaves a
// field untouched.
type MetadataPatch struct {
	GrantName      *string
	Grantor        *string
	Grantee        *string
	ContractNumber *string
	TotalAmount    *decimal.Decimal
	Currency       *string
	StartDate      *string
	EndDate        *string
	Purpose        *string
	Notes          string
	ExpectedStatus model.Status
}

type RespondInput struct {
	Response       string
	CommentID      *uint
	ExpectedStatus model.Status
}

type CommentInput struct {
	Text           string
	CommentType    string
	FlaggedRisk    bool
	FlaggedIssue   bool
	Recommendation *model.Recommendation
}

// SubmitForReview hands a draft or rejected contract to the program manager
func (s *WorkflowService) SubmitForReview(ctx context.Context, p model.Principal, id string, in SubmitInput) (*Result, error) {
	return s.run(ctx, model.ActionSubmitForReview, p, id, in.ExpectedStatus, func(ctx context.Context, c *model.Contract) (*Result, error) {
		notes := strings.TrimSpace(in.Notes)
		if notes == "" {
			return nil, newError(KindValidation, "submission notes are required")
		}
		res := &Result{}
		err := s.contracts.Transaction(ctx, func(tx *gorm.DB) error {
			now := s.now()
			entry, err := s.apply(ctx, tx, c, model.ActionSubmitForReview, p, model.StatusUnderReview, nil, notes, now)
			if err != nil {
				return err
			}
			res.History = entry
			comment := model.Comment{
				ContractID:  c.ID,
				AuthorID:    p.UserID,
				AuthorRole:  p.Role,
				CommentType: model.CommentTypeProjectManagerSubmission,
				Text:        notes,
				Status:      model.CommentResolved,
				ResolvedAt:  &now,
				CreatedAt:   now,
			}
			if err := s.comments.Add(ctx, tx, &comment); err != nil {
				return err
			}
			res.Comments = append(res.Comments, comment)
			return nil
		})
		return res, err
	})
}

// ReviewDecision records the program manager's recommendation. Approve moves
// the contract to reviewed; reject and modify send it back as rejected.
func (s *WorkflowService) ReviewDecision(ctx context.Context, p model.Principal, id string, in ReviewInput) (*Result, error) {
	return s.run(ctx, model.ActionReviewDecision, p, id, in.ExpectedStatus, func(ctx context.Context, c *model.Contract) (*Result, error) {
		summary := strings.TrimSpace(in.Summary)
		if summary == "" {
			return nil, newError(KindValidation, "review summary is required")
		}
		if !in.Recommendation.Valid() {
			return nil, newError(KindValidation, "recommendation must be approve, reject or modify")
		}
		to := model.StatusRejected
		if in.Recommendation == model.RecommendApprove {
			to = model.StatusReviewed
		}
		commentType := in.CommentType
		if commentType == "" {
			commentType = model.CommentTypeReview
		}

		res := &Result{}
		err := s.contracts.Transaction(ctx, func(tx *gorm.DB) error {
			now := s.now()
			note := fmt.Sprintf("%s: %s", in.Recommendation, summary)
			entry, err := s.apply(ctx, tx, c, model.ActionReviewDecision, p, to, nil, note, now)
			if err != nil {
				return err
			}
			res.History = entry
			rec := in.Recommendation
			comment := model.Comment{
				ContractID:     c.ID,
				AuthorID:       p.UserID,
				AuthorRole:     p.Role,
				CommentType:    commentType,
				Text:           summary,
				FlaggedRisk:    in.FlaggedRisk,
				FlaggedIssue:   in.FlaggedIssue,
				Recommendation: &rec,
				Status:         model.CommentOpen,
				CreatedAt:      now,
			}
			if err := s.comments.Add(ctx, tx, &comment); err != nil {
				return err
			}
			res.Comments = append(res.Comments, comment)
			return nil
		})
		return res, err
	})
}

// FinalApproval applies the director's decision to a reviewed contract and
// consumes the open program manager recommendations.
func (s *WorkflowService) FinalApproval(ctx context.Context, p model.Principal, id string, in FinalApprovalInput) (*Result, error) {
	return s.run(ctx, model.ActionFinalApproval, p, id, in.ExpectedStatus, func(ctx context.Context, c *model.Contract) (*Result, error) {
		if !in.Decision.Valid() {
			return nil, newError(KindValidation, "decision must be approve or reject")
		}
		text := strings.TrimSpace(in.Comments)
		if text == "" {
			return nil, newError(KindValidation, "decision comments are required")
		}
		to := model.StatusApproved
		if in.Decision == model.DecisionReject {
			to = model.StatusRejected
		}

		res := &Result{}
		err := s.contracts.Transaction(ctx, func(tx *gorm.DB) error {
			now := s.now()
			entry, err := s.apply(ctx, tx, c, model.ActionFinalApproval, p, to, nil, fmt.Sprintf("%s: %s", in.Decision, text), now)
			if err != nil {
				return err
			}
			res.History = entry
			if _, err := s.comments.ConsumeRecommendations(ctx, tx, c.ID, now); err != nil {
				return err
			}
			// a rejection stays open until the project manager responds
			comment := model.Comment{
				ContractID:  c.ID,
				AuthorID:    p.UserID,
				AuthorRole:  p.Role,
				CommentType: model.CommentTypeDirectorDecision,
				Text:        text,
				Status:      model.CommentOpen,
				CreatedAt:   now,
			}
			if to == model.StatusApproved {
				comment.Status = model.CommentResolved
				comment.ResolvedAt = &now
			}
			if err := s.comments.Add(ctx, tx, &comment); err != nil {
				return err
			}
			res.Comments = append(res.Comments, comment)
			return nil
		})
		return res, err
	})
}

// FixMetadata overwrites canonical fields without changing status
func (s *WorkflowService) FixMetadata(ctx context.Context, p model.Principal, id string, patch MetadataPatch) (*Result, error) {
	return s.run(ctx, model.ActionFixMetadata, p, id, patch.ExpectedStatus, func(ctx context.Context, c *model.Contract) (*Result, error) {
		updates, changed, err := patch.diff(c)
		if err != nil {
			return nil, err
		}
		if len(changed) == 0 {
			return nil, newError(KindValidation, "no canonical field changed")
		}
		note := "changed " + strings.Join(changed, ", ")
		if notes := strings.TrimSpace(patch.Notes); notes != "" {
			note = notes + " (" + note + ")"
		}

		res := &Result{}
		err = s.contracts.Transaction(ctx, func(tx *gorm.DB) error {
			entry, err := s.apply(ctx, tx, c, model.ActionFixMetadata, p, c.Status, updates, note, s.now())
			if err != nil {
				return err
			}
			res.History = entry
			return nil
		})
		return res, err
	})
}

// diff returns the column updates and the names of fields whose value changes
func (m MetadataPatch) diff(c *model.Contract) (map[string]any, []string, error) {
	updates := map[string]any{}
	var changed []string
	set := func(column string, current, next string) {
		if next != current {
			updates[column] = next
			changed = append(changed, column)
		}
	}

	if m.GrantName != nil {
		name := strings.TrimSpace(*m.GrantName)
		if name == "" {
			return nil, nil, newError(KindValidation, "grant_name cannot be blank")
		}
		set("grant_name", c.GrantName, name)
	}
	if m.Grantor != nil {
		set("grantor", c.Grantor, strings.TrimSpace(*m.Grantor))
	}
	if m.Grantee != nil {
		set("grantee", c.Grantee, strings.TrimSpace(*m.Grantee))
	}
	if m.ContractNumber != nil {
		set("contract_number", c.ContractNumber, strings.TrimSpace(*m.ContractNumber))
	}
	if m.TotalAmount != nil {
		if m.TotalAmount.IsNegative() {
			return nil, nil, newError(KindValidation, "total_amount cannot be negative")
		}
		if !m.TotalAmount.Equal(c.TotalAmount) {
			updates["total_amount"] = *m.TotalAmount
			changed = append(changed, "total_amount")
		}
	}
	if m.Currency != nil {
		currency := strings.ToUpper(strings.TrimSpace(*m.Currency))
		if currency == "" {
			return nil, nil, newError(KindValidation, "currency cannot be blank")
		}
		set("currency", c.Currency, currency)
	}
	if m.StartDate != nil {
		set("start_date", c.StartDate, normalizeDate(strings.TrimSpace(*m.StartDate)))
	}
	if m.EndDate != nil {
		set("end_date", c.EndDate, normalizeDate(strings.TrimSpace(*m.EndDate)))
	}
	if m.Purpose != nil {
		set("purpose", c.Purpose, strings.TrimSpace(*m.Purpose))
	}
	return updates, changed, nil
}

// RespondToComments answers reviewer comments on a rejected contract. With a
// comment id only that comment is resolved; otherwise every open comment by a
// reviewing role is.
func (s *WorkflowService) RespondToComments(ctx context.Context, p model.Principal, id string, in RespondInput) (*Result, error) {
	return s.run(ctx, model.ActionRespondToComments, p, id, in.ExpectedStatus, func(ctx context.Context, c *model.Contract) (*Result, error) {
		response := strings.TrimSpace(in.Response)
		if response == "" {
			return nil, newError(KindValidation, "response is required")
		}

		res := &Result{}
		err := s.contracts.Transaction(ctx, func(tx *gorm.DB) error {
			targets, err := s.responseTargets(ctx, tx, c.ID, in.CommentID)
			if err != nil {
				return err
			}
			now := s.now()
			entry, err := s.apply(ctx, tx, c, model.ActionRespondToComments, p, c.Status, nil, response, now)
			if err != nil {
				return err
			}
			res.History = entry
			for _, target := range targets {
				if err := s.comments.Resolve(ctx, tx, target.ID, &response, now); err != nil {
					return err
				}
				res.Resolved = append(res.Resolved, target.ID)
			}
			comment := model.Comment{
				ContractID:  c.ID,
				AuthorID:    p.UserID,
				AuthorRole:  p.Role,
				CommentType: model.CommentTypeProjectManagerResponse,
				Text:        response,
				Status:      model.CommentResolved,
				ResolvedAt:  &now,
				CreatedAt:   now,
			}
			if err := s.comments.Add(ctx, tx, &comment); err != nil {
				return err
			}
			res.Comments = append(res.Comments, comment)
			return nil
		})
		return res, err
	})
}

func (s *WorkflowService) responseTargets(ctx context.Context, tx *gorm.DB, contractID string, commentID *uint) ([]model.Comment, error) {
	if commentID != nil {
		target, err := s.comments.Get(ctx, tx, *commentID)
		if err != nil {
			return nil, err
		}
		if target.ContractID != contractID {
			return nil, newError(KindNotFound, "comment %d not found on contract %s", *commentID, contractID)
		}
		if !target.AuthorRole.Reviewing() {
			return nil, newError(KindValidation, "comment %d was not written by a reviewer", *commentID)
		}
		if target.Status != model.CommentOpen {
			return nil, newError(KindConflict, "comment %d is already resolved", *commentID)
		}
		return []model.Comment{*target}, nil
	}

	open, err := s.comments.List(ctx, tx, contractID, CommentFilter{
		Roles:  []model.Role{model.RoleProgramManager, model.RoleDirector},
		Status: model.CommentOpen,
	})
	if err != nil {
		return nil, err
	}
	if len(open) == 0 {
		return nil, newError(KindValidation, "contract %s has no open review comments", contractID)
	}
	return open, nil
}

// AddComment appends commentary without touching status. A recommendation is
// accepted only from a program manager while the contract is under review.
func (s *WorkflowService) AddComment(ctx context.Context, p model.Principal, id string, in CommentInput) (*Result, error) {
	return s.run(ctx, model.ActionAddComment, p, id, "", func(ctx context.Context, c *model.Contract) (*Result, error) {
		if strings.TrimSpace(in.Text) == "" {
			return nil, newError(KindValidation, "comment text is required")
		}
		if in.Recommendation != nil {
			if p.Role != model.RoleProgramManager || c.Status != model.StatusUnderReview {
				return nil, newError(KindValidation, "a recommendation can only be attached by a program manager during review")
			}
		}
		commentType := in.CommentType
		if commentType == "" {
			commentType = model.CommentTypeProjectManagerNote
			if p.Role == model.RoleProgramManager {
				commentType = model.CommentTypeReview
			}
		}

		res := &Result{}
		err := s.contracts.Transaction(ctx, func(tx *gorm.DB) error {
			now := s.now()
			comment := model.Comment{
				ContractID:     c.ID,
				AuthorID:       p.UserID,
				AuthorRole:     p.Role,
				CommentType:    commentType,
				Text:           in.Text,
				FlaggedRisk:    in.FlaggedRisk,
				FlaggedIssue:   in.FlaggedIssue,
				Recommendation: in.Recommendation,
				CreatedAt:      now,
			}
			if err := s.comments.Add(ctx, tx, &comment); err != nil {
				return err
			}
			res.Comments = append(res.Comments, comment)

			entry := model.HistoryEntry{
				ContractID: c.ID,
				Action:     model.ActionAddComment,
				FromStatus: c.Status,
				ToStatus:   c.Status,
				ActorRole:  p.Role,
				ActorID:    p.UserID,
				At:         now,
				Note:       commentType,
			}
			if err := s.contracts.AppendHistory(ctx, tx, &entry); err != nil {
				return err
			}
			res.History = entry
			return nil
		})
		return res, err
	})
}

// run performs the checks shared by every action (authorize, load, expected
// status, allowed from-status), then fn, then the bookkeeping after commit.
func (s *WorkflowService) run(ctx context.Context, action model.Action, p model.Principal, id string, expected model.Status,
	fn func(ctx context.Context, c *model.Contract) (*Result, error)) (*Result, error) {
	ctx, span := tracer.Start(ctx, "workflow."+string(action), trace.WithAttributes(
		attribute.String("contract.id", id),
		attribute.String("workflow.action", string(action)),
		attribute.String("actor.role", string(p.Role)),
	))
	defer span.End()

	res, from, err := s.execute(ctx, action, p, id, expected, fn)
	if err != nil {
		kind := KindOf(err)
		span.SetAttributes(attribute.String("error.kind", string(kind)))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if kind == "" {
			logger.Error(ctx, "workflow action failed", "contract_id", id, "action", action, "error", err)
		} else {
			logger.Warn(ctx, "workflow action rejected", "contract_id", id, "action", action, "kind", kind, "error", err)
		}
		return nil, err
	}

	to := res.History.ToStatus
	if to != from && s.pending != nil {
		s.pending.Invalidate(ctx)
	}
	span.SetAttributes(attribute.String("workflow.from", string(from)), attribute.String("workflow.to", string(to)))
	logger.Info(ctx, "workflow action applied",
		"contract_id", id, "action", action, "from", from, "to", to, "role", p.Role)
	return res, nil
}

func (s *WorkflowService) execute(ctx context.Context, action model.Action, p model.Principal, id string, expected model.Status,
	fn func(ctx context.Context, c *model.Contract) (*Result, error)) (*Result, model.Status, error) {
	if model.IsPlaceholderID(id) {
		return nil, "", newError(KindValidation, "display placeholder %s cannot be modified", id)
	}
	if err := Authorize(action, p.Role); err != nil {
		return nil, "", err
	}
	c, err := s.contracts.Head(ctx, nil, id)
	if err != nil {
		return nil, "", err
	}
	if expected != "" && expected != c.Status {
		return nil, c.Status, newError(KindConflict, "contract %s is %s, expected %s", id, c.Status, expected)
	}
	if err := CheckTransition(action, p.Role, c.Status); err != nil {
		return nil, c.Status, err
	}

	res, err := fn(ctx, c)
	if err != nil {
		return nil, c.Status, err
	}
	res.Contract, err = s.contracts.Get(ctx, id)
	if err != nil {
		return nil, c.Status, err
	}
	return res, c.Status, nil
}

// apply moves c to `to` with a compare-and-set on its observed status and
// appends the matching history entry in the same transaction.
func (s *WorkflowService) apply(ctx context.Context, tx *gorm.DB, c *model.Contract, action model.Action, p model.Principal,
	to model.Status, updates map[string]any, note string, at time.Time) (model.HistoryEntry, error) {
	if err := s.contracts.CompareAndSet(ctx, tx, c.ID, c.Status, to, updates); err != nil {
		return model.HistoryEntry{}, err
	}
	entry := model.HistoryEntry{
		ContractID: c.ID,
		Action:     action,
		FromStatus: c.Status,
		ToStatus:   to,
		ActorRole:  p.Role,
		ActorID:    p.UserID,
		At:         at,
		Note:       note,
	}
	if err := s.contracts.AppendHistory(ctx, tx, &entry); err != nil {
		return model.HistoryEntry{}, err
	}
	return entry, nil
}
