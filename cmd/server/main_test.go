package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHealthCheckHandler(t *testing.T) {
	twoHundreds := map[string]http.HandlerFunc{
		"/healthz": healthCheckHandler,
		"/":        rootHandler,
	}

	for route, handler := range twoHundreds {
		t.Run(route, func(t *testing.T) {
			req, err := http.NewRequest("GET", route, http.NoBody)
			if err != nil {
				t.Fatal(err)
			}

			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if status := rr.Code; status != http.StatusOK {
				t.Errorf("handler returned wrong status code: got %v want %v",
					status, http.StatusOK)
			}
		})
	}
}

func TestRootHandlerListsEndpoints(t *testing.T) {
	req := httptest.NewRequest("GET", "/", http.NoBody)
	rr := httptest.NewRecorder()
	rootHandler(rr, req)

	body := rr.Body.String()
	for _, want := range []string{"Taverna API", "/campaigns/{id}/sessions", "/sessions/{id}/next-turn", "POST"} {
		if !strings.Contains(body, want) {
			t.Errorf("root page is missing %q", want)
		}
	}
}

func TestNotFound(t *testing.T) {
	srv, _ := setupTestServer(t)

	resp, err := http.Get(srv.URL + "/no/such/page")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("got %d want %d", resp.StatusCode, http.StatusNotFound)
	}

	var body Response
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Success || body.Error == "" {
		t.Errorf("unexpected body: %+v", body)
	}
}
