// Copyright 2025 James Ross
package backendsession

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/osmo-project/control-plane/internal/store"
)

// fakeStore embeds the zero-value Store interface and overrides only the
// methods a given test exercises; any unoverridden method panics on a nil
// interface call if invoked, which would fail the test loudly rather than
// silently passing.
type fakeStore struct {
	store.Store
	existing      *store.Backend
	getErr        error
	upserted      *store.Backend
	upsertErr     error
}

func (f *fakeStore) GetBackendByName(ctx context.Context, name string) (*store.Backend, error) {
	return f.existing, f.getErr
}

func (f *fakeStore) UpsertBackend(ctx context.Context, b store.Backend) error {
	f.upserted = &b
	return f.upsertErr
}

func newTestSession(s store.Store) *session {
	return &session{backend: "backend-a", deps: Deps{Store: s, Log: zap.NewNop()}}
}

func initFrame(t *testing.T, body InitBody) Frame {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal init body: %v", err)
	}
	return Frame{Type: MsgInit, UUID: "u1", Body: raw}
}

func TestHandleInitRegistersNewBackend(t *testing.T) {
	fs := &fakeStore{}
	s := newTestSession(fs)

	body, err := s.handleInit(context.Background(), initFrame(t, InitBody{K8sUID: "uid-1", Namespace: "ns"}))
	if err != nil {
		t.Fatalf("handleInit: %v", err)
	}
	if body.K8sUID != "uid-1" {
		t.Fatalf("got %q, want uid-1", body.K8sUID)
	}
	if fs.upserted == nil || fs.upserted.K8sUID != "uid-1" {
		t.Fatal("expected UpsertBackend to be called with the new k8s_uid")
	}
}

func TestHandleInitRejectsK8sUIDMismatch(t *testing.T) {
	fs := &fakeStore{existing: &store.Backend{Name: "backend-a", K8sUID: "uid-old"}}
	s := newTestSession(fs)

	_, err := s.handleInit(context.Background(), initFrame(t, InitBody{K8sUID: "uid-new"}))
	if err == nil {
		t.Fatal("expected an identity-mismatch error")
	}
	if fs.upserted != nil {
		t.Fatal("expected UpsertBackend not to run when identity check fails")
	}
}

func TestHandleInitRejectsNonInitFrame(t *testing.T) {
	fs := &fakeStore{}
	s := newTestSession(fs)

	_, err := s.handleInit(context.Background(), Frame{Type: MsgHeartbeat})
	if err == nil {
		t.Fatal("expected an error for a non-INIT first frame")
	}
}

type fakeConn struct {
	closed chan struct{}
}

func newFakeConn() *fakeConn { return &fakeConn{closed: make(chan struct{})} }

func (f *fakeConn) ReadMessage() (int, []byte, error)  { <-f.closed; return 0, nil, context.Canceled }
func (f *fakeConn) WriteMessage(int, []byte) error     { return nil }
func (f *fakeConn) SetReadDeadline(time.Time) error    { return nil }
func (f *fakeConn) Close() error {
	select {
	case <-f.closed:
	default:
		close(f.closed)
	}
	return nil
}

func TestCloseOnDoneClosesConnWhenContextCancelled(t *testing.T) {
	conn := newFakeConn()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		closeOnDone(ctx, conn)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("closeOnDone did not return after context cancellation")
	}
	select {
	case <-conn.closed:
	default:
		t.Fatal("expected conn.Close to have been called")
	}
}
