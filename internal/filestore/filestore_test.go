// Copyright 2025 James Ross
package filestore

import (
	"context"
	"testing"
)

func TestMemoryPutGetRoundtrip(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	key := WorkflowLogKey("workflows", "wf-1", "g1", "t1")
	if err := m.Put(ctx, key, []byte("hello")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := m.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("got %q, want hello", got)
	}
}

func TestMemoryListMatchesGlob(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_ = m.Put(ctx, WorkflowLogKey("workflows", "wf-1", "g1", "t1"), []byte("a"))
	_ = m.Put(ctx, WorkflowLogKey("workflows", "wf-1", "g2", "t2"), []byte("b"))
	_ = m.Put(ctx, WorkflowSpecKey("workflows", "wf-1"), []byte("c"))

	matches, err := m.List(ctx, WorkflowLogGlob("workflows", "wf-1"))
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("got %d matches, want 2: %v", len(matches), matches)
	}
}

func TestMemoryGetMissingKeyErrors(t *testing.T) {
	m := NewMemory()
	if _, err := m.Get(context.Background(), "missing"); err == nil {
		t.Fatal("expected error for missing key")
	}
}
