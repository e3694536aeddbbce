// Copyright 2025 James Ross
package backendsession

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// upgrader accepts both agent endpoints. Origin checking is left to the
// network boundary in front of this service (agents connect from inside
// the cluster, not a browser).
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Manager owns the HTTP routing for the two agent endpoints and the deps
// every session needs (§4.4).
type Manager struct {
	deps Deps
}

// NewManager builds a Manager ready to have its routes registered.
func NewManager(deps Deps) *Manager {
	return &Manager{deps: deps}
}

// RegisterRoutes wires the listener and worker endpoints onto router as a
// dedicated /agent subrouter.
func (m *Manager) RegisterRoutes(router *mux.Router) {
	agents := router.PathPrefix("/agent").Subrouter()
	agents.HandleFunc("/listener/{backend}", m.serveListener).Methods(http.MethodGet)
	agents.HandleFunc("/worker/{backend}", m.serveWorker).Methods(http.MethodGet)
}

func (m *Manager) serveListener(w http.ResponseWriter, r *http.Request) {
	backend := mux.Vars(r)["backend"]
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.deps.Log.Warn("listener upgrade failed", zap.String("backend", backend), zap.Error(err))
		return
	}
	if err := RunListener(r.Context(), backend, conn, m.deps); err != nil {
		m.deps.Log.Info("listener session ended", zap.String("backend", backend), zap.Error(err))
	}
}

func (m *Manager) serveWorker(w http.ResponseWriter, r *http.Request) {
	backend := mux.Vars(r)["backend"]
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.deps.Log.Warn("worker upgrade failed", zap.String("backend", backend), zap.Error(err))
		return
	}
	if err := RunWorker(r.Context(), backend, conn, m.deps); err != nil {
		m.deps.Log.Info("worker session ended", zap.String("backend", backend), zap.Error(err))
	}
}
