package ctxutil

import "context"

type traceDataKey struct{}

// TraceData carries correlation ids from an HTTP request into the jobs it queues.
type TraceData struct {
	TraceID        string
	RequestID      string
	JobID          string
	RelationshipID string
}

func WithTraceData(ctx context.Context, td *TraceData) context.Context {
	return context.WithValue(ctx, traceDataKey{}, td)
}

func GetTraceData(ctx context.Context) *TraceData {
	if ctx == nil {
		return nil
	}
	td, _ := ctx.Value(traceDataKey{}).(*TraceData)
	return td
}

// WithRelationship returns a copy of ctx whose trace data also names relationshipID.
func WithRelationship(ctx context.Context, relationshipID string) context.Context {
	next := TraceData{}
	if td := GetTraceData(ctx); td != nil {
		next = *td
	}
	next.RelationshipID = relationshipID
	return WithTraceData(ctx, &next)
}

// InjectPayload copies trace and request ids into a job payload without overwriting caller keys.
func InjectPayload(ctx context.Context, payload map[string]any) {
	td := GetTraceData(ctx)
	if td == nil || payload == nil {
		return
	}
	for key, val := range map[string]string{"trace_id": td.TraceID, "request_id": td.RequestID} {
		if val == "" {
			continue
		}
		if _, ok := payload[key]; !ok {
			payload[key] = val
		}
	}
}

// LogFields returns the non-empty ids as logger key/value pairs.
func LogFields(ctx context.Context) []interface{} {
	td := GetTraceData(ctx)
	if td == nil {
		return nil
	}
	out := make([]interface{}, 0, 8)
	for _, kv := range [][2]string{
		{"trace_id", td.TraceID},
		{"request_id", td.RequestID},
		{"job_id", td.JobID},
		{"relationship_id", td.RelationshipID},
	} {
		if kv[1] != "" {
			out = append(out, kv[0], kv[1])
		}
	}
	return out
}
