package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

type idemSeen struct {
	key    string
	hasKey bool
	replay bool
	bypass bool
}

func idemRouter(lookup IdempotencyLookup, seen *idemSeen) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), func(c *gin.Context) {
		c.Set(UserIDKey, "u1")
		c.Next()
	}, IdempotencyValidator(IdempotencyOptions{MaxLen: 16}, lookup))
	r.POST("/upload", func(c *gin.Context) {
		seen.key, seen.hasKey = GetIdempotencyKey(c)
		seen.replay = IsReplay(c)
		seen.bypass = IsRateBypass(c)
		c.Status(http.StatusOK)
	})
	return r
}

func postWithKey(r http.Handler, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/upload", nil)
	if key != "" {
		req.Header.Set(HeaderIdempotencyKey, key)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestIdempotencyValidator(t *testing.T) {
	var gotUser, gotKey string
	lookup := func(ctx context.Context, userID, key string, now time.Time) (bool, error) {
		gotUser, gotKey = userID, key
		return key == "done-1", nil
	}

	t.Run("absent header is a no-op", func(t *testing.T) {
		var seen idemSeen
		if w := postWithKey(idemRouter(lookup, &seen), ""); w.Code != http.StatusOK || seen.hasKey || seen.replay {
			t.Fatalf("code=%d seen=%+v", w.Code, seen)
		}
	})

	t.Run("invalid keys rejected", func(t *testing.T) {
		var seen idemSeen
		r := idemRouter(lookup, &seen)
		for _, k := range []string{"has space", "bad/slash", strings.Repeat("k", 17)} {
			w := postWithKey(r, k)
			if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), `"code":"invalid_input"`) {
				t.Fatalf("key %q -> %d %s", k, w.Code, w.Body.String())
			}
		}
	})

	t.Run("fresh key stashed", func(t *testing.T) {
		var seen idemSeen
		postWithKey(idemRouter(lookup, &seen), "new-1")
		if seen.key != "new-1" || seen.replay || seen.bypass {
			t.Fatalf("seen=%+v", seen)
		}
		if gotUser != "u1" || gotKey != "new-1" {
			t.Fatalf("lookup args %q %q", gotUser, gotKey)
		}
	})

	t.Run("completed key marks replay", func(t *testing.T) {
		var seen idemSeen
		postWithKey(idemRouter(lookup, &seen), "done-1")
		if !seen.replay || !seen.bypass {
			t.Fatalf("seen=%+v", seen)
		}
	})

	t.Run("lookup error is not fatal", func(t *testing.T) {
		var seen idemSeen
		failing := func(context.Context, string, string, time.Time) (bool, error) { return false, errors.New("db down") }
		if w := postWithKey(idemRouter(failing, &seen), "k-2"); w.Code != http.StatusOK || seen.replay {
			t.Fatalf("code=%d seen=%+v", w.Code, seen)
		}
	})
}
