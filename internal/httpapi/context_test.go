package httpapi

import (
	"context"
	"testing"
	"time"
)

type ctxKey struct{}

func TestJoinContexts_BaseCancels(t *testing.T) {
	base, cancelBase := context.WithCancel(context.Background())
	req := context.WithValue(context.Background(), ctxKey{}, "rid-1")
	ctx, cancel := joinContexts(base, req)
	defer cancel()

	if ctx.Value(ctxKey{}) != "rid-1" {
		t.Fatalf("request values must survive the join")
	}
	cancelBase()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatalf("joined context not canceled by base")
	}
}

func TestJoinContexts_RequestCancels(t *testing.T) {
	req, cancelReq := context.WithCancel(context.Background())
	ctx, cancel := joinContexts(context.Background(), req)
	defer cancel()
	cancelReq()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatalf("joined context not canceled by request")
	}
}

func TestJoinContexts_CancelReleases(t *testing.T) {
	ctx, cancel := joinContexts(context.Background(), context.Background())
	cancel()
	if ctx.Err() == nil {
		t.Fatalf("expected canceled context")
	}
}
