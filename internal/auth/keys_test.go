package auth

import (
	"strings"
	"testing"
)

func TestHashKey(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:  "simple key",
			input: "test-api-key",
		},
		{
			name:  "key with whitespace trimmed",
			input: "  test-api-key  ",
		},
		{
			name:     "empty string",
			input:    "",
			expected: "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", // SHA256 of empty
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := HashKey(tt.input)
			if len(result) != 64 {
				t.Errorf("HashKey() returned %d chars, want 64", len(result))
			}
			if tt.name == "key with whitespace trimmed" {
				// Should match the simple key (whitespace trimmed)
				simpleResult := HashKey("test-api-key")
				if result != simpleResult {
					t.Errorf("HashKey() with whitespace = %v, want %v", result, simpleResult)
				}
			}
			if tt.expected != "" && result != tt.expected {
				t.Errorf("HashKey() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestHashKey_Deterministic(t *testing.T) {
	key := "my-secret-key"
	hash1 := HashKey(key)
	hash2 := HashKey(key)

	if hash1 != hash2 {
		t.Errorf("HashKey is not deterministic: %v != %v", hash1, hash2)
	}
}

func TestHashKey_DifferentInputsDifferentOutputs(t *testing.T) {
	hash1 := HashKey("key1")
	hash2 := HashKey("key2")

	if hash1 == hash2 {
		t.Error("Different keys produced same hash")
	}
}

func TestGenerateKey(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	if !strings.HasPrefix(key, KeyPrefix) {
		t.Errorf("GenerateKey() = %q, want %q prefix", key, KeyPrefix)
	}
	// 3-char prefix plus 32 random bytes hex-encoded
	if len(key) != len(KeyPrefix)+64 {
		t.Errorf("GenerateKey() returned %d chars, want %d", len(key), len(KeyPrefix)+64)
	}

	other, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error: %v", err)
	}
	if key == other {
		t.Error("GenerateKey() returned the same key twice")
	}
}
