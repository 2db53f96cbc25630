package controlplane

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/stackguardian/runner-autoscaler/internal/audit"
	"github.com/stackguardian/runner-autoscaler/pkg/runner"
)

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	return NewClient(srv.URL, "test-key", "acme", "default", &ClientOptions{
		Logger:    zaptest.NewLogger(t),
		RateLimit: 6000,
	})
}

func TestGetRunnerGroupParsesSnapshot(t *testing.T) {
	queuedCount := 7
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "apikey test-key" {
			t.Errorf("unexpected Authorization header: %q", got)
		}
		resp := runnerGroupResponse{Msg: runnerGroupMsg{
			ContainerInstances: []containerInstance{
				{
					RunnerID:          "r1",
					Status:            "ACTIVE",
					RunningTasksCount: 1,
					InstanceDetails:   []instanceDetail{{ComputerName: "host-1", IPAddress: "10.0.0.1", ContainerName: "c1"}},
				},
			},
			QueuedWorkflowsCount: &queuedCount,
		}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	client := newTestClient(t, srv)
	snapshot, err := client.GetRunnerGroup(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snapshot.QueuedJobs != 7 {
		t.Fatalf("expected queuedJobs=7, got %d", snapshot.QueuedJobs)
	}
	if len(snapshot.Runners) != 1 || snapshot.Runners[0].ComputerName != "host-1" {
		t.Fatalf("unexpected runners: %+v", snapshot.Runners)
	}
}

func TestGetRunnerGroupMissingQueuedCountIsFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"msg": {"ContainerInstances": []}}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv)
	_, err := client.GetRunnerGroup(context.Background())
	if err == nil {
		t.Fatalf("expected an error when QueuedWorkflowsCount is missing")
	}
}

func TestGetRunnerGroupNon2xxReturnsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := newTestClient(t, srv)
	client.retryConfig.MaxRetries = 0
	_, err := client.GetRunnerGroup(context.Background())
	if !IsServerError(err) {
		t.Fatalf("expected a server-error APIError, got %v", err)
	}
}

func TestUpdateRunnerStatusSendsExpectedBody(t *testing.T) {
	var received updateRunnerStatusRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		_ = json.NewDecoder(r.Body).Decode(&received)
	}))
	defer srv.Close()

	client := newTestClient(t, srv)
	if err := client.UpdateRunnerStatus(context.Background(), "r1", runner.StatusDraining); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if received.RunnerID != "r1" || received.Status != "DRAINING" {
		t.Fatalf("unexpected request body: %+v", received)
	}
}

func TestDeregisterRunnerSendsExpectedBody(t *testing.T) {
	var received deregisterRunnerRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&received)
	}))
	defer srv.Close()

	client := newTestClient(t, srv)
	if err := client.DeregisterRunner(context.Background(), "r1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if received.RunnerID != "r1" {
		t.Fatalf("unexpected request body: %+v", received)
	}
}

func TestDoRequestLogsAPICallAuditEvents(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	audit.SetGlobal(audit.New(&audit.Config{Enabled: true, Logger: zap.New(core)}))
	defer audit.SetGlobal(nil)

	queuedCount := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := runnerGroupResponse{Msg: runnerGroupMsg{QueuedWorkflowsCount: &queuedCount}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	client := newTestClient(t, srv)
	if _, err := client.GetRunnerGroup(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(recorded.FilterMessage("control plane API call").All()) != 1 {
		t.Fatalf("expected a successful API call audit event")
	}
}

func TestDoRequestLogsAPICallAuditEventOnFailure(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	audit.SetGlobal(audit.New(&audit.Config{Enabled: true, Logger: zap.New(core)}))
	defer audit.SetGlobal(nil)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := newTestClient(t, srv)
	client.retryConfig.MaxRetries = 0
	if _, err := client.GetRunnerGroup(context.Background()); err == nil {
		t.Fatalf("expected an error")
	}
	if len(recorded.FilterMessage("control plane API call").All()) != 1 {
		t.Fatalf("expected a failed API call audit event")
	}
}

func TestDoRequestRetriesOnServerErrorThenSucceeds(t *testing.T) {
	attempts := 0
	queuedCount := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		resp := runnerGroupResponse{Msg: runnerGroupMsg{QueuedWorkflowsCount: &queuedCount}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	client := newTestClient(t, srv)
	retryConfig := DefaultRetryConfig()
	retryConfig.InitialBackoff = 0
	retryConfig.MaxBackoff = 0
	client.retryConfig = retryConfig

	_, err := client.GetRunnerGroup(context.Background())
	if err != nil {
		t.Fatalf("expected the retry to eventually succeed, got %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected exactly 2 attempts, got %d", attempts)
	}
}
