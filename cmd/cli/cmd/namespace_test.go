package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spf13/viper"

	"baton/pkg/api"
)

func TestNamespaceCreate_PrintsKeyOnce(t *testing.T) {
	resetViper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST method, got %s", r.Method)
		}
		if r.URL.Path != "/namespaces" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}

		var reqBody map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
			t.Errorf("failed to decode request body: %v", err)
		}
		if reqBody["name"] != "platform-team" {
			t.Errorf("expected name=platform-team, got %v", reqBody["name"])
		}
		if reqBody["description"] != "Platform work" {
			t.Errorf("expected description, got %v", reqBody["description"])
		}

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(api.CreateNamespaceResponse{
			ID:     "ns-123",
			Name:   "platform-team",
			ApiKey: "bk_live_abc123",
		})
	}))
	defer server.Close()

	viper.Set("url", server.URL)

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"namespace", "create", "platform-team", "--description", "Platform work"})

	err := rootCmd.Execute()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := stdout.String()
	if !strings.Contains(output, "Namespace created") {
		t.Errorf("expected success message, got: %s", output)
	}
	if !strings.Contains(output, "bk_live_abc123") {
		t.Errorf("expected API key in output, got: %s", output)
	}
	if !strings.Contains(output, "only time it will be shown") {
		t.Errorf("expected one-time warning, got: %s", output)
	}
}

func TestNamespaceCreate_Conflict(t *testing.T) {
	resetViper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte("Namespace already exists"))
	}))
	defer server.Close()

	viper.Set("url", server.URL)

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"namespace", "create", "platform-team"})

	err := rootCmd.Execute()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := stdout.String()
	if !strings.Contains(output, "Error (409)") {
		t.Errorf("expected 409 error in output, got: %s", output)
	}
}

func TestNamespaceGet_ShowsCounters(t *testing.T) {
	resetViper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/namespaces/platform-team" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}

		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(api.NamespaceResponse{
			ID:   "ns-123",
			Name: "platform-team",
			Counters: api.CountersResponse{
				JobsPending:  3,
				JobsRunning:  1,
				JobsComplete: 40,
				JobsFailed:   2,
			},
		})
	}))
	defer server.Close()

	viper.Set("url", server.URL)
	viper.Set("token", "test-token")

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"namespace", "get", "platform-team"})

	err := rootCmd.Execute()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := stdout.String()
	if !strings.Contains(output, "3 pending, 1 running, 40 complete, 2 failed") {
		t.Errorf("expected counters line, got: %s", output)
	}
}

func TestNamespaceGet_MissingToken(t *testing.T) {
	resetViper()

	viper.Set("url", "http://localhost:6161")
	viper.Set("token", "")

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"namespace", "get", "platform-team"})

	err := rootCmd.Execute()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := stdout.String()
	if !strings.Contains(output, "API token not found") {
		t.Errorf("expected token error message, got: %s", output)
	}
}

func TestNamespaceDelete_Success(t *testing.T) {
	resetViper()

	var calledMethod, calledPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calledMethod = r.Method
		calledPath = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	viper.Set("url", server.URL)
	viper.Set("token", "test-token")

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"namespace", "delete", "platform-team"})

	err := rootCmd.Execute()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if calledMethod != http.MethodDelete {
		t.Errorf("expected DELETE method, got %s", calledMethod)
	}
	if calledPath != "/namespaces/platform-team" {
		t.Errorf("unexpected path: %s", calledPath)
	}
	if !strings.Contains(stdout.String(), "deleted") {
		t.Errorf("expected delete confirmation, got: %s", stdout.String())
	}
}
