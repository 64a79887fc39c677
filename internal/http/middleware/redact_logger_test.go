package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestRedact(t *testing.T) {
	in := "email=alice@example.com&id=3f1c2a9e-8b7d-4c6e-9a1b-2d3e4f5a6b7c&phone=212-555-1212&token=eyJhbGciOi.abc"
	out := Redact(in)
	for _, leak := range []string{"alice@example.com", "3f1c2a9e", "555-1212", "eyJhbGciOi"} {
		if strings.Contains(out, leak) {
			t.Fatalf("leaked %q in %q", leak, out)
		}
	}
	for _, marker := range []string{"[REDACTED:email]", "[REDACTED:id]", "[REDACTED:phone]", "token=[REDACTED]"} {
		if !strings.Contains(out, marker) {
			t.Fatalf("missing %q in %q", marker, out)
		}
	}
	if Redact("") != "" {
		t.Fatalf("empty input")
	}
}

func TestRedactingLogger_MasksHeadersAndLevels(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogs(t)

	r := gin.New()
	r.Use(RequestID(), RedactingLogger(RedactOptions{MaskHeaders: []string{"X-Api-Key"}}))
	r.GET("/ok", func(c *gin.Context) { c.String(http.StatusOK, "fine") })
	r.GET("/bad", func(c *gin.Context) { c.Status(http.StatusBadRequest) })
	r.GET("/err", func(c *gin.Context) { c.Status(http.StatusBadGateway) })

	req := httptest.NewRequest(http.MethodGet, "/ok?email=bob@example.com", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	req.Header.Set("Stripe-Signature", "t=1,v1=abc")
	req.Header.Set("X-Api-Key", "k")
	req.Header.Set("X-Note", "call 212-555-1212")
	r.ServeHTTP(httptest.NewRecorder(), req)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/bad", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/err", nil))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("want 3 log lines, got %d: %s", len(lines), buf.String())
	}
	var first map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("decode: %v", err)
	}
	headers := first["headers"].(map[string]any)
	for _, h := range []string{"Authorization", "Stripe-Signature", "X-Api-Key"} {
		if headers[h] != "[REDACTED]" {
			t.Fatalf("%s not masked: %v", h, headers[h])
		}
	}
	if headers["X-Note"] != "call [REDACTED:phone]" {
		t.Fatalf("X-Note=%v", headers["X-Note"])
	}
	if first["query"] != "email=[REDACTED:email]" || first["level"] != "info" {
		t.Fatalf("first line=%v", first)
	}
	if strings.Contains(buf.String(), "secret-token") {
		t.Fatalf("token leaked")
	}
	if !strings.Contains(lines[1], `"level":"warn"`) || !strings.Contains(lines[2], `"level":"error"`) {
		t.Fatalf("levels: %s | %s", lines[1], lines[2])
	}
}
