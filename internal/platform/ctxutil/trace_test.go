package ctxutil

import (
	"context"
	"testing"
)

func TestTraceDataRoundTrip(t *testing.T) {
	ctx := WithTraceData(context.Background(), &TraceData{TraceID: "t1", RequestID: "r1"})
	td := GetTraceData(ctx)
	if td == nil || td.TraceID != "t1" || td.RequestID != "r1" {
		t.Fatalf("unexpected trace data: %+v", td)
	}
	fields := LogFields(ctx)
	if len(fields) != 4 || fields[0] != "trace_id" || fields[2] != "request_id" {
		t.Fatalf("unexpected log fields: %v", fields)
	}
	if GetTraceData(context.Background()) != nil {
		t.Fatalf("expected nil trace data on bare context")
	}
}

func TestWithRelationshipKeepsParent(t *testing.T) {
	parent := WithTraceData(context.Background(), &TraceData{TraceID: "t1"})
	child := WithRelationship(parent, "rel-1")

	if got := GetTraceData(child); got.TraceID != "t1" || got.RelationshipID != "rel-1" {
		t.Fatalf("unexpected child trace data: %+v", got)
	}
	if GetTraceData(parent).RelationshipID != "" {
		t.Fatalf("parent trace data was mutated")
	}
	if got := GetTraceData(WithRelationship(context.Background(), "rel-2")); got.RelationshipID != "rel-2" {
		t.Fatalf("expected relationship on bare context, got %+v", got)
	}
}

func TestInjectPayload(t *testing.T) {
	ctx := WithTraceData(context.Background(), &TraceData{TraceID: "t1", RequestID: "r1"})
	payload := map[string]any{"request_id": "caller"}
	InjectPayload(ctx, payload)
	if payload["trace_id"] != "t1" {
		t.Fatalf("trace_id not injected: %v", payload)
	}
	if payload["request_id"] != "caller" {
		t.Fatalf("caller key overwritten: %v", payload)
	}
	InjectPayload(context.Background(), payload)
	InjectPayload(ctx, nil)
}
