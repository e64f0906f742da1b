package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MUKTHARS/clmprod-sub000/config"
	"github.com/MUKTHARS/clmprod-sub000/middleware"
	"github.com/MUKTHARS/clmprod-sub000/model"
	"github.com/MUKTHARS/clmprod-sub000/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func init() {
	gin.SetMode(gin.TestMode)
	if err := RegisterValidators(); err != nil {
		panic(err)
	}
}

const testSeed = "ingest-seed"

var (
	projectManager = model.Principal{UserID: "pm-1", Role: model.RoleProjectManager}
	programManager = model.Principal{UserID: "pgm-1", Role: model.RoleProgramManager}
	director       = model.Principal{UserID: "dir-1", Role: model.RoleDirector}
)

type testServer struct {
	t         *testing.T
	cfg       *config.Config
	router    *gin.Engine
	contracts *service.ContractStore
	comments  *service.CommentStore
	ingest    *service.IngestService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := service.OpenDatabase(&config.DatabaseConfig{
		Driver: "sqlite",
		DSN:    "file:" + uuid.NewString() + "?mode=memory&cache=shared",
	})
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	cfg := &config.Config{
		Auth: config.AuthConfig{JWTSecret: "handler-test-secret", TokenExpireHours: 1},
		Users: []config.User{
			{Username: "alice", Password: "alice123", UserID: "pm-1", Role: "project_manager"},
			{Username: "bob", Password: "bob123", Role: "director"},
			{Username: "guest", Password: "guest123", Role: "viewer"},
		},
	}

	contracts := service.NewContractStore(db)
	comments := service.NewCommentStore(db)
	pending := service.NewPendingService(contracts, nil, 0)
	workflow := service.NewWorkflowService(contracts, comments, pending)
	ingest := service.NewIngestService(testSeed, contracts, pending, nil, nil)

	routes := &Routes{
		Auth:      NewAuthHandler(cfg),
		Contracts: NewContractHandler(contracts),
		Workflow:  NewWorkflowHandler(workflow),
		Comments:  NewCommentHandler(workflow, contracts, comments),
		Pending:   NewPendingHandler(pending),
		Ingest:    NewIngestHandler(ingest),
	}
	router := gin.New()
	routes.Register(router.Group("/api"), middleware.AuthMiddleware(&cfg.Auth))

	return &testServer{
		t:         t,
		cfg:       cfg,
		router:    router,
		contracts: contracts,
		comments:  comments,
		ingest:    ingest,
	}
}

func (s *testServer) seed(id string, status model.Status) {
	s.t.Helper()
	c := &model.Contract{
		ID:          id,
		Status:      status,
		GrantName:   "Clean Water " + id,
		TotalAmount: decimal.NewFromInt(50000),
		Currency:    "USD",
	}
	if err := s.contracts.Create(context.Background(), c); err != nil {
		s.t.Fatalf("Failed to seed contract %s: %v", id, err)
	}
}

func (s *testServer) token(p model.Principal) string {
	s.t.Helper()
	token, _, err := middleware.GenerateToken(p, &s.cfg.Auth)
	if err != nil {
		s.t.Fatalf("Failed to generate token: %v", err)
	}
	return token
}

// do sends body as JSON; a nil principal sends no Authorization header
func (s *testServer) do(method, path string, p *model.Principal, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var raw string
	switch b := body.(type) {
	case nil:
	case string:
		raw = b
	default:
		data, err := json.Marshal(b)
		if err != nil {
			s.t.Fatalf("Failed to marshal body: %v", err)
		}
		raw = string(data)
	}
	req := newJSONRequest(s.t, method, path, raw)
	if p != nil {
		req.Header.Set("Authorization", "Bearer "+s.token(*p))
	}
	return serve(s, req)
}

func newJSONRequest(t *testing.T, method, path, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func serve(s *testServer, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("Failed to parse response %q: %v", w.Body.String(), err)
	}
	return out
}

// expectError checks status and the error kind of a failed request
func expectError(t *testing.T, w *httptest.ResponseRecorder, status int, kind string) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("Expected status %d, got %d: %s", status, w.Code, w.Body.String())
	}
	if kind == "" {
		return
	}
	body := decode(t, w)
	if body["kind"] != kind {
		t.Errorf("Expected kind %s, got %v", kind, body["kind"])
	}
	if body["error"] == "" || body["error"] == nil {
		t.Error("Expected error message")
	}
}

func contractStatus(t *testing.T, body map[string]any) string {
	t.Helper()
	c, ok := body["contract"].(map[string]any)
	if !ok {
		t.Fatalf("Expected contract in response, got %v", body)
	}
	s, _ := c["status"].(string)
	return s
}

func pr(p model.Principal) *model.Principal { return &p }
