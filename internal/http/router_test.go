package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/yungbote/attune-backend/internal/domain"
	httpH "github.com/yungbote/attune-backend/internal/http/handlers"
	"github.com/yungbote/attune-backend/internal/platform/apierr"
	"github.com/yungbote/attune-backend/internal/platform/dbctx"
	"github.com/yungbote/attune-backend/internal/services"
)

type fakeConflicts struct {
	services.ConflictService
	captured   services.CaptureConflictInput
	captureErr error
	deleted    uuid.UUID
}

func (f *fakeConflicts) Capture(_ context.Context, relID uuid.UUID, in services.CaptureConflictInput) (*types.Conflict, *types.JobRun, error) {
	f.captured = in
	if f.captureErr != nil {
		return nil, nil, f.captureErr
	}
	c := &types.Conflict{ID: uuid.New(), RelationshipID: relID, Topic: in.Topic}
	return c, &types.JobRun{ID: uuid.New(), RelationshipID: relID, JobType: services.JobTypeConflictEnrich, Status: "queued"}, nil
}

func (f *fakeConflicts) ListForRelationship(context.Context, uuid.UUID, *time.Time, *time.Time) ([]*types.Conflict, error) {
	return []*types.Conflict{}, nil
}

func (f *fakeConflicts) Delete(_ context.Context, id uuid.UUID) error {
	f.deleted = id
	return nil
}

type fakeInsights struct {
	services.InsightService
	conflictErr error
}

func (f *fakeInsights) Conflict(context.Context, uuid.UUID) (*services.ConflictView, error) {
	return nil, f.conflictErr
}

func (f *fakeInsights) Patterns(context.Context, uuid.UUID) (*services.PatternsView, error) {
	return &services.PatternsView{State: services.PatternsStateInsufficientHistory, EnrichedCount: 2, Required: 5}, nil
}

type fakeJobs struct {
	services.JobService
	canceled uuid.UUID
}

func (f *fakeJobs) Cancel(_ dbctx.Context, id uuid.UUID) (*types.JobRun, error) {
	f.canceled = id
	return &types.JobRun{ID: id, Status: "canceled"}, nil
}

type fixture struct {
	router    *gin.Engine
	conflicts *fakeConflicts
	insights  *fakeInsights
	jobs      *fakeJobs
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	f := &fixture{conflicts: &fakeConflicts{}, insights: &fakeInsights{}, jobs: &fakeJobs{}}
	f.router = NewRouter(RouterConfig{
		HealthHandler:   httpH.NewHealthHandler(nil),
		ConflictHandler: httpH.NewConflictHandler(f.conflicts, f.insights),
		InsightHandler:  httpH.NewInsightHandler(f.insights),
		JobHandler:      httpH.NewJobHandler(f.jobs),
	})
	return f
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *nethttp.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode error body %q: %v", w.Body.String(), err)
	}
	return env.Error.Code
}

func TestHealthcheck(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, nethttp.MethodGet, "/healthcheck", "")
	if w.Code != nethttp.StatusOK || w.Body.String() != "ok" {
		t.Fatalf("healthcheck: %d %q", w.Code, w.Body.String())
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected request id header")
	}
}

type downDB struct{}

func (downDB) PingContext(context.Context) error { return errors.New("connection refused") }

func TestHealthcheckDatabaseDown(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := NewRouter(RouterConfig{HealthHandler: httpH.NewHealthHandler(downDB{})})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(nethttp.MethodGet, "/healthcheck", nil))
	if w.Code != nethttp.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestCaptureConflictAccepted(t *testing.T) {
	f := newFixture(t)
	relID := uuid.New()
	speaker := uuid.New()
	body := fmt.Sprintf(`{"topic":"dishes","turns":[{"speaker_id":%q,"text":"you never help"}]}`, speaker)

	w := f.do(t, nethttp.MethodPost, "/api/relationships/"+relID.String()+"/conflicts", body)
	if w.Code != nethttp.StatusAccepted {
		t.Fatalf("capture status: %d %s", w.Code, w.Body.String())
	}
	var out struct {
		Conflict *types.Conflict `json:"conflict"`
		Job      *types.JobRun   `json:"job"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Conflict == nil || out.Conflict.RelationshipID != relID || out.Job == nil {
		t.Fatalf("unexpected body: %s", w.Body.String())
	}
	if f.conflicts.captured.Topic != "dishes" || len(f.conflicts.captured.Turns) != 1 || f.conflicts.captured.Turns[0].SpeakerID != speaker {
		t.Fatalf("input not bound: %+v", f.conflicts.captured)
	}
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		setup      func(f *fixture)
		method     string
		path       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{
			name:       "bad relationship id",
			method:     nethttp.MethodPost,
			path:       "/api/relationships/nope/conflicts",
			body:       `{}`,
			wantStatus: nethttp.StatusBadRequest,
			wantCode:   "invalid_relationship_id",
		},
		{
			name: "service validation error",
			setup: func(f *fixture) {
				f.conflicts.captureErr = apierr.BadRequest("empty_transcript", errors.New("transcript has no turns"))
			},
			method:     nethttp.MethodPost,
			path:       "/api/relationships/" + uuid.NewString() + "/conflicts",
			body:       `{"turns":[]}`,
			wantStatus: nethttp.StatusBadRequest,
			wantCode:   "empty_transcript",
		},
		{
			name: "unexpected error hides details",
			setup: func(f *fixture) {
				f.conflicts.captureErr = errors.New("db exploded")
			},
			method:     nethttp.MethodPost,
			path:       "/api/relationships/" + uuid.NewString() + "/conflicts",
			body:       `{"turns":[]}`,
			wantStatus: nethttp.StatusInternalServerError,
			wantCode:   "capture_conflict_failed",
		},
		{
			name: "conflict not found",
			setup: func(f *fixture) {
				f.insights.conflictErr = apierr.NotFound("conflict_not_found", errors.New("conflict not found"))
			},
			method:     nethttp.MethodGet,
			path:       "/api/conflicts/" + uuid.NewString(),
			wantStatus: nethttp.StatusNotFound,
			wantCode:   "conflict_not_found",
		},
		{
			name:       "bad since",
			method:     nethttp.MethodGet,
			path:       "/api/relationships/" + uuid.NewString() + "/conflicts?since=yesterday",
			wantStatus: nethttp.StatusBadRequest,
			wantCode:   "invalid_since",
		},
		{
			name:       "malformed json",
			method:     nethttp.MethodPost,
			path:       "/api/relationships/" + uuid.NewString() + "/conflicts",
			body:       `{"turns":`,
			wantStatus: nethttp.StatusBadRequest,
			wantCode:   "invalid_request",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			if tc.setup != nil {
				tc.setup(f)
			}
			w := f.do(t, tc.method, tc.path, tc.body)
			if w.Code != tc.wantStatus {
				t.Fatalf("status: got %d want %d (%s)", w.Code, tc.wantStatus, w.Body.String())
			}
			if got := errorCode(t, w); got != tc.wantCode {
				t.Fatalf("code: got %q want %q", got, tc.wantCode)
			}
			if tc.wantStatus == nethttp.StatusInternalServerError && strings.Contains(w.Body.String(), "exploded") {
				t.Fatalf("internal error leaked: %s", w.Body.String())
			}
		})
	}
}

func TestListConflictsWithRange(t *testing.T) {
	f := newFixture(t)
	path := "/api/relationships/" + uuid.NewString() + "/conflicts?since=2026-01-01T00:00:00Z&until=2026-02-01T00:00:00Z"
	w := f.do(t, nethttp.MethodGet, path, "")
	if w.Code != nethttp.StatusOK {
		t.Fatalf("list: %d %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"conflicts":[]`) {
		t.Fatalf("expected empty list, got %s", w.Body.String())
	}
}

func TestDeleteConflict(t *testing.T) {
	f := newFixture(t)
	id := uuid.New()
	w := f.do(t, nethttp.MethodDelete, "/api/conflicts/"+id.String(), "")
	if w.Code != nethttp.StatusNoContent {
		t.Fatalf("delete: %d", w.Code)
	}
	if f.conflicts.deleted != id {
		t.Fatalf("delete not forwarded")
	}
}

func TestPatternsInsufficientHistory(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, nethttp.MethodGet, "/api/relationships/"+uuid.NewString()+"/patterns", "")
	if w.Code != nethttp.StatusOK {
		t.Fatalf("patterns: %d", w.Code)
	}
	var view services.PatternsView
	if err := json.Unmarshal(w.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.State != services.PatternsStateInsufficientHistory || view.Required != 5 {
		t.Fatalf("unexpected view: %+v", view)
	}
}

func TestCancelJob(t *testing.T) {
	f := newFixture(t)
	id := uuid.New()
	w := f.do(t, nethttp.MethodPost, "/api/jobs/"+id.String()+"/cancel", "")
	if w.Code != nethttp.StatusOK {
		t.Fatalf("cancel: %d %s", w.Code, w.Body.String())
	}
	if f.jobs.canceled != id {
		t.Fatalf("cancel not forwarded")
	}
}
