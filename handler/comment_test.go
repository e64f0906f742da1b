package handler

import (
	"net/http"
	"testing"

	"github.com/MUKTHARS/clmprod-sub000/model"
)

func TestAddCommentEndpoints(t *testing.T) {
	s := newTestServer(t)
	s.seed("3", model.StatusUnderReview)

	w := s.do(http.MethodPost, "/api/contracts/3/project-manager/add-comment", pr(projectManager), map[string]any{
		"comment": "uploaded the signed annex",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	comment := decode(t, w)["comment"].(map[string]any)
	if comment["comment_type"] != model.CommentTypeProjectManagerNote || comment["author_role"] != "project_manager" {
		t.Errorf("Unexpected comment: %v", comment)
	}

	w = s.do(http.MethodPost, "/api/contracts/3/program-manager/add-comment", pr(programManager), map[string]any{
		"comment":        "currency risk",
		"comment_type":   "financial",
		"flagged_risk":   true,
		"recommendation": "modify",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	comment = body["comment"].(map[string]any)
	if comment["recommendation"] != "modify" || comment["flagged_risk"] != true || comment["status"] != "open" {
		t.Errorf("Unexpected comment: %v", comment)
	}
	entry := body["history"].(map[string]any)
	if entry["action"] != "add_comment" || entry["from_status"] != "under_review" || entry["to_status"] != "under_review" {
		t.Errorf("Unexpected history entry: %v", entry)
	}

	tests := []struct {
		name   string
		path   string
		as     model.Principal
		body   map[string]any
		status int
		kind   string
	}{
		{
			name:   "empty comment",
			path:   "/api/contracts/3/project-manager/add-comment",
			as:     projectManager,
			body:   map[string]any{"comment": " "},
			status: http.StatusBadRequest,
			kind:   "validation",
		},
		{
			name:   "unknown recommendation",
			path:   "/api/contracts/3/program-manager/add-comment",
			as:     programManager,
			body:   map[string]any{"comment": "hm", "recommendation": "defer"},
			status: http.StatusBadRequest,
			kind:   "validation",
		},
		{
			name:   "director on program manager route",
			path:   "/api/contracts/3/program-manager/add-comment",
			as:     director,
			body:   map[string]any{"comment": "hello"},
			status: http.StatusForbidden,
			kind:   "authorization",
		},
		{
			name:   "program manager on project manager route",
			path:   "/api/contracts/3/project-manager/add-comment",
			as:     programManager,
			body:   map[string]any{"comment": "hello"},
			status: http.StatusForbidden,
			kind:   "authorization",
		},
		{
			name:   "unknown contract",
			path:   "/api/contracts/404/program-manager/add-comment",
			as:     programManager,
			body:   map[string]any{"comment": "hello"},
			status: http.StatusNotFound,
			kind:   "not_found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(http.MethodPost, tt.path, pr(tt.as), tt.body)
			expectError(t, w, tt.status, tt.kind)
		})
	}
}

func TestRecommendationOutsideReview(t *testing.T) {
	s := newTestServer(t)
	s.seed("4", model.StatusDraft)

	w := s.do(http.MethodPost, "/api/contracts/4/program-manager/add-comment", pr(programManager), map[string]any{
		"comment": "early thoughts", "recommendation": "approve",
	})
	expectError(t, w, http.StatusBadRequest, "validation")

	w = s.do(http.MethodPost, "/api/contracts/4/program-manager/add-comment", pr(programManager), map[string]any{
		"comment": "early thoughts",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
}

func TestCommentListings(t *testing.T) {
	s := newTestServer(t)
	s.seed("6", model.StatusUnderReview)

	s.do(http.MethodPost, "/api/contracts/6/project-manager/add-comment", pr(projectManager), map[string]any{"comment": "note"})
	s.do(http.MethodPost, "/api/contracts/6/program-manager/add-comment", pr(programManager), map[string]any{
		"comment": "compliance gap", "flagged_issue": true,
	})
	w := s.do(http.MethodPost, "/api/contracts/6/update-status", pr(programManager), map[string]any{
		"status": "reject", "comments": "fix compliance", "flagged_risk": true,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	tests := []struct {
		name  string
		path  string
		count int
	}{
		{"all comments", "/api/contracts/6/comments", 3},
		{"project manager only", "/api/contracts/6/comments?role=project_manager", 1},
		{"review comments", "/api/contracts/6/review-comments", 2},
		{"open review comments", "/api/contracts/6/review-comments?status=open", 2},
		{"director review comments", "/api/contracts/6/review-comments?role=director", 0},
		{"resolved comments", "/api/contracts/6/comments?status=resolved", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(http.MethodGet, tt.path, pr(director), nil)
			if w.Code != http.StatusOK {
				t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
			}
			comments := decode(t, w)["comments"].([]any)
			if len(comments) != tt.count {
				t.Errorf("Expected %d comments, got %d", tt.count, len(comments))
			}
		})
	}

	for _, path := range []string{
		"/api/contracts/6/review-comments?role=project_manager",
		"/api/contracts/6/comments?role=admin",
		"/api/contracts/6/comments?status=pending",
	} {
		w := s.do(http.MethodGet, path, pr(director), nil)
		expectError(t, w, http.StatusBadRequest, "validation")
	}

	w = s.do(http.MethodGet, "/api/contracts/404/comments", pr(director), nil)
	expectError(t, w, http.StatusNotFound, "not_found")

	w = s.do(http.MethodGet, "/api/contracts/6/comments/summary", pr(projectManager), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	summary := decode(t, w)
	if summary["open"] != float64(3) || summary["flagged_risk"] != float64(1) || summary["flagged_issue"] != float64(1) {
		t.Errorf("Unexpected summary: %v", summary)
	}
}

func TestFinalReviewEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.seed("8", model.StatusDraft)

	w := s.do(http.MethodPost, "/api/contracts/8/project-manager/submit-review", pr(projectManager), map[string]any{"notes": "ready"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	s.do(http.MethodPost, "/api/contracts/8/program-manager/add-comment", pr(programManager), map[string]any{
		"comment": "thin reporting plan", "flagged_issue": true, "recommendation": "approve",
	})
	w = s.do(http.MethodPost, "/api/contracts/8/update-status", pr(programManager), map[string]any{
		"status": "approve", "comments": "acceptable", "flagged_risk": true,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = s.do(http.MethodGet, "/api/contracts/8/final-review", pr(director), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	review := decode(t, w)
	if review["comment_count"] != float64(2) {
		t.Errorf("Expected 2 comments, got %v", review["comment_count"])
	}
	if review["risk_flags"] != float64(1) || review["issue_flags"] != float64(1) {
		t.Errorf("Unexpected flag counts: %v", review)
	}
	recs := review["recommendations"].([]any)
	if len(recs) != 1 || recs[0] != "approve" {
		t.Errorf("Expected the single recommendation approve, got %v", recs)
	}
	if review["round_started_at"] == nil {
		t.Error("Expected round start")
	}

	w = s.do(http.MethodGet, "/api/contracts/404/final-review", pr(director), nil)
	expectError(t, w, http.StatusNotFound, "not_found")
}
