package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/attune-backend/internal/data/repos"
	types "github.com/yungbote/attune-backend/internal/domain"
	jobstatus "github.com/yungbote/attune-backend/internal/domain/jobs"
	"github.com/yungbote/attune-backend/internal/platform/ctxutil"
	"github.com/yungbote/attune-backend/internal/platform/dbctx"
	"github.com/yungbote/attune-backend/internal/services"
)

// Context is the handle a pipeline gets for one claimed job run. Pipelines report state only
// through Progress, Fail, Dead and Succeed; every write is skipped once the job was canceled.
type Context struct {
	Ctx     context.Context
	Job     *types.JobRun
	Repo    repos.JobRunRepo
	Notify  services.JobNotifier
	payload map[string]any
}

func NewContext(ctx context.Context, job *types.JobRun, repo repos.JobRunRepo, notify services.JobNotifier) *Context {
	c := &Context{Ctx: ctx, Job: job, Repo: repo, Notify: notify, payload: map[string]any{}}
	if job != nil && len(job.Payload) > 0 {
		// Malformed payloads decode to empty; pipelines validate the keys they need.
		_ = json.Unmarshal(job.Payload, &c.payload)
		if c.payload == nil {
			c.payload = map[string]any{}
		}
	}
	if ctx != nil {
		td := &ctxutil.TraceData{
			TraceID:   c.PayloadString("trace_id"),
			RequestID: c.PayloadString("request_id"),
		}
		if job != nil {
			td.JobID = job.ID.String()
			td.RelationshipID = job.RelationshipID.String()
		}
		c.Ctx = ctxutil.WithTraceData(ctx, td)
	}
	return c
}

// Payload never returns nil.
func (c *Context) Payload() map[string]any {
	if c.payload == nil {
		c.payload = map[string]any{}
	}
	return c.payload
}

func (c *Context) PayloadString(key string) string {
	v, ok := c.Payload()[key]
	if !ok || v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// PayloadUUID reports false for missing, malformed or nil ids.
func (c *Context) PayloadUUID(key string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.PayloadString(key))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// Progress records a non-terminal stage and refreshes the heartbeat.
func (c *Context) Progress(stage string, pct int, msg string) {
	now := time.Now().UTC()
	applied := c.commit(map[string]interface{}{
		"stage":        stage,
		"progress":     pct,
		"message":      msg,
		"heartbeat_at": now,
		"updated_at":   now,
	}, func(j *types.JobRun) {
		j.Stage, j.Progress, j.Message = stage, pct, msg
		j.HeartbeatAt = &now
		j.UpdatedAt = now
	})
	if applied && c.Notify != nil {
		c.Notify.JobProgress(c.Job, stage, pct, msg)
	}
}

// Fail marks the run failed; the worker reclaims it after the retry delay until attempts run out.
func (c *Context) Fail(stage string, err error) {
	c.terminate(jobstatus.StatusFailed, stage, err)
}

// Dead marks the run failed for good.
func (c *Context) Dead(stage string, err error) {
	c.terminate(jobstatus.StatusDead, stage, err)
}

func (c *Context) terminate(status string, stage string, err error) {
	now := time.Now().UTC()
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	applied := c.commit(map[string]interface{}{
		"status":        status,
		"stage":         stage,
		"message":       "",
		"error":         msg,
		"last_error_at": now,
		"locked_at":     nil,
		"updated_at":    now,
	}, func(j *types.JobRun) {
		j.Status, j.Stage, j.Message, j.Error = status, stage, "", msg
		j.LastErrorAt = &now
		j.LockedAt = nil
		j.UpdatedAt = now
	})
	if applied && c.Notify != nil {
		c.Notify.JobFailed(c.Job, stage, msg)
	}
}

// Succeed stores result as JSON and marks the run succeeded.
func (c *Context) Succeed(finalStage string, result any) {
	now := time.Now().UTC()
	res := datatypes.JSON(`{}`)
	if result != nil {
		if b, err := json.Marshal(result); err == nil {
			res = datatypes.JSON(b)
		}
	}
	applied := c.commit(map[string]interface{}{
		"status":       jobstatus.StatusSucceeded,
		"stage":        finalStage,
		"progress":     100,
		"message":      "",
		"error":        "",
		"result":       res,
		"locked_at":    nil,
		"heartbeat_at": now,
		"updated_at":   now,
	}, func(j *types.JobRun) {
		j.Status, j.Stage, j.Progress = jobstatus.StatusSucceeded, finalStage, 100
		j.Message, j.Error = "", ""
		j.Result = res
		j.LockedAt = nil
		j.HeartbeatAt = &now
		j.UpdatedAt = now
	})
	if applied && c.Notify != nil {
		c.Notify.JobDone(c.Job)
	}
}

// commit persists updates unless the row was canceled, then mirrors them onto c.Job.
// A job without a row (tests, dry runs) is updated in memory only.
func (c *Context) commit(updates map[string]interface{}, apply func(j *types.JobRun)) bool {
	if c == nil || c.Job == nil {
		return false
	}
	if c.Repo != nil && c.Job.ID != uuid.Nil {
		ok, err := c.Repo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: c.writeCtx()}, c.Job.ID, []string{jobstatus.StatusCanceled}, updates)
		if err != nil || !ok {
			return false
		}
	}
	apply(c.Job)
	return true
}

// writeCtx ignores cancellation so terminal writes land during shutdown.
func (c *Context) writeCtx() context.Context {
	if c.Ctx == nil {
		return context.Background()
	}
	return context.WithoutCancel(c.Ctx)
}
