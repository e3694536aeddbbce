// Copyright 2025 James Ross
package backendsession

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

func TestRegisterRoutesMatchesAgentEndpoints(t *testing.T) {
	router := mux.NewRouter()
	NewManager(Deps{Log: zap.NewNop()}).RegisterRoutes(router)

	cases := []string{
		"/agent/listener/backend-a",
		"/agent/worker/backend-a",
	}
	for _, path := range cases {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		var match mux.RouteMatch
		if !router.Match(req, &match) {
			t.Errorf("expected %s to match a registered route", path)
		}
	}
}

func TestRegisterRoutesRejectsUnknownPath(t *testing.T) {
	router := mux.NewRouter()
	NewManager(Deps{Log: zap.NewNop()}).RegisterRoutes(router)

	req := httptest.NewRequest(http.MethodGet, "/agent/unknown/backend-a", nil)
	var match mux.RouteMatch
	if router.Match(req, &match) {
		t.Error("expected an unregistered agent path not to match")
	}
}

func TestServeListenerRejectsNonWebsocketRequest(t *testing.T) {
	router := mux.NewRouter()
	NewManager(Deps{Log: zap.NewNop()}).RegisterRoutes(router)

	req := httptest.NewRequest(http.MethodGet, "/agent/listener/backend-a", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code == http.StatusOK {
		t.Fatal("expected the upgrade to fail for a plain HTTP request")
	}
}
