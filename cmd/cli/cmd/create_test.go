package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spf13/viper"
)

func resetCreateFlags() {
	createCmd.Flags().Set("north-star", "")
	createCmd.Flags().Set("independent", "false")
	createCmd.Flags().Set("priority", "50")
}

func TestCreateCommand_Success(t *testing.T) {
	resetViper()
	resetCreateFlags()

	// Setup mock server that returns a successful assignment creation response
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Verify request format
		if r.Method != http.MethodPost {
			t.Errorf("expected POST method, got %s", r.Method)
		}
		if r.URL.Path != "/assignments" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-token" {
			t.Errorf("expected Bearer token, got: %s", r.Header.Get("Authorization"))
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("expected application/json, got: %s", r.Header.Get("Content-Type"))
		}

		// Verify request body
		var reqBody map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
			t.Errorf("failed to decode request body: %v", err)
		}
		if reqBody["north_star"] != "Ship the parser rewrite" {
			t.Errorf("expected north_star, got %v", reqBody["north_star"])
		}

		// Return success response
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{
			"id":         "assignment-123",
			"north_star": "Ship the parser rewrite",
			"status":     "pending",
		})
	}))
	defer server.Close()

	viper.Set("url", server.URL)
	viper.Set("token", "test-token")

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"create", "--north-star", "Ship the parser rewrite"})

	err := rootCmd.Execute()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := stdout.String()
	if !strings.Contains(output, "Assignment created") {
		t.Errorf("expected success message, got: %s", output)
	}
	if !strings.Contains(output, "assignment-123") {
		t.Errorf("expected assignment ID in output, got: %s", output)
	}
}

func TestCreateCommand_SendsPriorityAndIndependent(t *testing.T) {
	resetViper()
	resetCreateFlags()

	var capturedPriority float64
	var capturedIndependent bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var reqBody map[string]interface{}
		json.NewDecoder(r.Body).Decode(&reqBody)
		if priority, ok := reqBody["priority"]; ok {
			capturedPriority = priority.(float64)
		}
		if independent, ok := reqBody["independent"]; ok {
			capturedIndependent = independent.(bool)
		}

		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{"id": "assignment-456"})
	}))
	defer server.Close()

	viper.Set("url", server.URL)
	viper.Set("token", "test-token")

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"create", "--north-star", "Fix flaky tests", "--priority", "10", "--independent"})

	err := rootCmd.Execute()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if capturedPriority != 10 {
		t.Errorf("expected priority=10, got %v", capturedPriority)
	}
	if !capturedIndependent {
		t.Error("expected independent=true in request body")
	}
}

func TestCreateCommand_MissingToken(t *testing.T) {
	resetViper()
	resetCreateFlags()

	viper.Set("url", "http://localhost:6161")
	viper.Set("token", "")

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"create", "--north-star", "Anything"})

	err := rootCmd.Execute()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := stdout.String()
	if !strings.Contains(output, "API token not found") {
		t.Errorf("expected token error message, got: %s", output)
	}
}

func TestCreateCommand_MissingNorthStar(t *testing.T) {
	resetViper()
	resetCreateFlags()

	// Use mock server that should NOT be called
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("server should not be called when validation fails")
	}))
	defer server.Close()

	viper.Set("url", server.URL)
	viper.Set("token", "test-token")

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"create"})

	err := rootCmd.Execute()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := stdout.String()
	if !strings.Contains(output, "--north-star is required") {
		t.Errorf("expected north-star required error, got: %s", output)
	}
}

func TestCreateCommand_PriorityOutOfRange(t *testing.T) {
	resetViper()
	resetCreateFlags()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("server should not be called when validation fails")
	}))
	defer server.Close()

	viper.Set("url", server.URL)
	viper.Set("token", "test-token")

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"create", "--north-star", "Anything", "--priority", "101"})

	err := rootCmd.Execute()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := stdout.String()
	if !strings.Contains(output, "--priority must be between 0 and 100") {
		t.Errorf("expected priority range error, got: %s", output)
	}
}

func TestCreateCommand_ServerError(t *testing.T) {
	resetViper()
	resetCreateFlags()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Internal server error"))
	}))
	defer server.Close()

	viper.Set("url", server.URL)
	viper.Set("token", "test-token")

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"create", "--north-star", "Anything"})

	err := rootCmd.Execute()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := stdout.String()
	if !strings.Contains(output, "Error (500)") {
		t.Errorf("expected error status in output, got: %s", output)
	}
}

func TestCreateCommand_UnauthorizedError(t *testing.T) {
	resetViper()
	resetCreateFlags()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("Invalid API key"))
	}))
	defer server.Close()

	viper.Set("url", server.URL)
	viper.Set("token", "invalid-token")

	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stdout)
	rootCmd.SetArgs([]string{"create", "--north-star", "Anything"})

	err := rootCmd.Execute()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := stdout.String()
	if !strings.Contains(output, "Error (401)") {
		t.Errorf("expected 401 error in output, got: %s", output)
	}
}
