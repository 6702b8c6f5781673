package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestJudge(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantErr   bool
		wantFatal bool
	}{
		{"ok", http.StatusOK, `{"status":"ok","spotify":true}`, false, false},
		{"degraded is healthy", http.StatusOK, `{"status":"degraded","gateway":"reconnecting"}`, false, false},
		{"fatal", http.StatusServiceUnavailable, `{"status":"fatal","error":"gateway reconnect budget exhausted"}`, true, true},
		{"fatal with 200", http.StatusOK, `{"status":"fatal"}`, true, true},
		{"non-json 500", http.StatusInternalServerError, `oops`, true, false},
		{"non-json 200", http.StatusOK, `oops`, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := judge(tt.status, []byte(tt.body))
			if (err != nil) != tt.wantErr {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
			if errors.Is(err, errFatal) != tt.wantFatal {
				t.Errorf("expected fatal %v, got %v", tt.wantFatal, err)
			}
		})
	}
}

func TestProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"degraded","gateway":"reconnecting"}`))
	}))
	defer srv.Close()

	r, err := probe(context.Background(), srv.Client(), srv.URL+"/health")
	if err != nil {
		t.Fatalf("probe failed: %v", err)
	}
	if r.Status != "degraded" || r.Gateway != "reconnecting" {
		t.Errorf("unexpected report %+v", r)
	}

	if _, err := probe(context.Background(), srv.Client(), srv.URL+"/missing"); err == nil {
		t.Error("expected error for 404")
	}
}

func TestTarget(t *testing.T) {
	t.Setenv("HEALTHCHECK_URL", "")
	t.Setenv("SERVER_PORT", "8080")
	if got := target(); got != "http://localhost:8080/health" {
		t.Errorf("unexpected target %q", got)
	}
	t.Setenv("HEALTHCHECK_URL", "http://app:3000/health")
	if got := target(); got != "http://app:3000/health" {
		t.Errorf("unexpected target %q", got)
	}
}
