package util

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"
)

type codedErr string

func (e codedErr) Error() string     { return string(e) }
func (e codedErr) ErrorCode() string { return string(e) }

func TestClassifyError(t *testing.T) {
	var syntaxErr error = &json.SyntaxError{}
	tests := []struct {
		name      string
		err       error
		retryable bool
		kind      string
	}{
		{"nil", nil, false, ""},
		{"store unavailable", fmt.Errorf("write: %w", codedErr("unavailable")), true, "unavailable"},
		{"store not found", codedErr("not-found"), false, "not-found"},
		{"json", syntaxErr, false, "json_decode_error"},
		{"deadline", context.DeadlineExceeded, true, "timeout"},
		{"canceled", context.Canceled, false, "context_canceled"},
		{"duplicate", errors.New("duplicate key value violates unique constraint"), false, "duplicate_key"},
		{"other", errors.New("boom"), false, "unknown_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			retryable, kind := ClassifyError(tt.err)
			if retryable != tt.retryable || kind != tt.kind {
				t.Errorf("ClassifyError() = (%v, %q), want (%v, %q)", retryable, kind, tt.retryable, tt.kind)
			}
		})
	}
}

func TestJWTRoundTrip(t *testing.T) {
	token, err := GenerateJWT("user-1", "a@b.c", "sess-1", "secret", time.Hour)
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}

	claims, err := ParseJWT(token, "secret")
	if err != nil {
		t.Fatalf("ParseJWT: %v", err)
	}
	if claims.UserID != "user-1" || claims.ID != "sess-1" || claims.Email != "a@b.c" {
		t.Errorf("claims = %+v", claims)
	}

	if _, err := ParseJWT(token, "other"); err == nil {
		t.Error("expected signature error with wrong secret")
	}
}

func TestJWTExpired(t *testing.T) {
	token, err := GenerateJWT("user-1", "", "sess-1", "secret", -time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ParseJWT(token, "secret"); err == nil {
		t.Error("expected expired token to be rejected")
	}
}

func TestExtractToken(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	if got := ExtractToken(r); got != "" {
		t.Errorf("no header: %q", got)
	}
	r.Header.Set("Authorization", "Bearer abc")
	if got := ExtractToken(r); got != "abc" {
		t.Errorf("bearer: %q", got)
	}
	r.Header.Set("Authorization", "Basic abc")
	if got := ExtractToken(r); got != "" {
		t.Errorf("basic: %q", got)
	}
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("hunter22")
	if err != nil {
		t.Fatal(err)
	}
	if !CheckPassword("hunter22", hash) {
		t.Error("valid password rejected")
	}
	if CheckPassword("wrong", hash) {
		t.Error("invalid password accepted")
	}
}

func TestNilDeduperAllows(t *testing.T) {
	var d *Deduper
	if !d.AcquireOnce(context.Background(), "scope", "id") {
		t.Error("nil deduper must allow")
	}
	if DedupKey("docs", "42") != "dedup:docs:42" {
		t.Error("unexpected key format")
	}
}
