package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-assessment/internal/i18n"
	"github.com/stemsi/exstem-assessment/internal/response"
	"github.com/stemsi/exstem-assessment/internal/service"
)

const testSecret = "middleware-test-secret"

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	if err := i18n.Init("en", zerolog.Nop()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(m.Run())
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) response.ErrCode {
	t.Helper()
	var body response.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	if body.Error == nil {
		return ""
	}
	return body.Error.Code
}

// ── JWT ─────────────────────────────────────────────────────────────

func TestRequireLearnerJWT(t *testing.T) {
	auth := service.NewAuthService(testSecret)

	valid, _ := auth.IssueLearnerToken("learner-1", "id", time.Hour)
	expired, _ := auth.IssueLearnerToken("learner-1", "", -time.Minute)
	forged, _ := service.NewAuthService("another-secret").IssueLearnerToken("learner-1", "", time.Hour)
	admin, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, service.Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		TokenType:        "admin",
	}).SignedString([]byte(testSecret))

	tests := []struct {
		name   string
		header string
		status int
		code   response.ErrCode
	}{
		{"valid", "Bearer " + valid, http.StatusOK, ""},
		{"missing", "", http.StatusUnauthorized, response.ErrTokenRequired},
		{"not bearer", "Basic abc", http.StatusUnauthorized, response.ErrTokenRequired},
		{"expired", "Bearer " + expired, http.StatusUnauthorized, response.ErrTokenExpired},
		{"bad signature", "Bearer " + forged, http.StatusUnauthorized, response.ErrTokenInvalid},
		{"wrong type", "Bearer " + admin, http.StatusForbidden, response.ErrForbidden},
	}

	r := gin.New()
	r.GET("/me", RequireLearnerJWT(auth), func(c *gin.Context) {
		claims := GetClaims(c)
		response.Success(c, http.StatusOK, gin.H{"learner_id": claims.LearnerID, "locale": claims.Locale})
	})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
			if got := errorCode(t, rec); got != tt.code {
				t.Fatalf("code = %q, want %q", got, tt.code)
			}
		})
	}
}

func TestRequireLearnerWSAuthReadsQuery(t *testing.T) {
	auth := service.NewAuthService(testSecret)
	token, _ := auth.IssueLearnerToken("learner-9", "", time.Hour)

	r := gin.New()
	r.GET("/ws", RequireLearnerWSAuth(auth), func(c *gin.Context) {
		c.String(http.StatusOK, GetClaims(c).LearnerID)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "learner-9" {
		t.Fatalf("got %d %q, want 200 learner-9", rec.Code, rec.Body.String())
	}
}

// ── Rate limiting ───────────────────────────────────────────────────

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestRateLimiterPerLearner(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(2, time.Minute)
	rl.now = clock.Now

	r := gin.New()
	r.GET("/act", func(c *gin.Context) {
		c.Set(ContextKeyClaims, &service.Claims{LearnerID: c.Query("as")})
		c.Next()
	}, rl.Middleware(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	hit := func(learner string) int {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/act?as="+learner, nil))
		return rec.Code
	}

	if hit("a") != http.StatusNoContent || hit("a") != http.StatusNoContent {
		t.Fatal("first two requests should pass")
	}
	if got := hit("a"); got != http.StatusTooManyRequests {
		t.Fatalf("third request = %d, want 429", got)
	}
	if got := hit("b"); got != http.StatusNoContent {
		t.Fatalf("other learner = %d, want 204", got)
	}

	clock.Advance(time.Minute)
	if got := hit("a"); got != http.StatusNoContent {
		t.Fatalf("after refill = %d, want 204", got)
	}
}

func TestRateLimiterCleanupEvictsIdle(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	rl := NewRateLimiter(5, time.Second)
	rl.now = clock.Now

	rl.allow("ip:1")
	clock.Advance(10 * time.Second)
	rl.cleanup()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if len(rl.visitors) != 0 {
		t.Fatalf("visitors = %d, want 0", len(rl.visitors))
	}
}

// ── Brotli ──────────────────────────────────────────────────────────

func brotliEngine(body string) *gin.Engine {
	r := gin.New()
	r.Use(Brotli())
	r.GET("/data", func(c *gin.Context) {
		c.String(http.StatusOK, body)
	})
	return r
}

func TestBrotliCompressesLargeBodies(t *testing.T) {
	body := strings.Repeat(`{"question":"q1","value":"b"},`, 100)
	r := brotliEngine(body)

	req := httptest.NewRequest(http.MethodGet, "/data", nil)
	req.Header.Set("Accept-Encoding", "gzip, br;q=0.9")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Encoding"); got != "br" {
		t.Fatalf("Content-Encoding = %q, want br", got)
	}
	decoded, err := io.ReadAll(brotli.NewReader(bytes.NewReader(rec.Body.Bytes())))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(decoded) != body {
		t.Fatalf("decoded body differs (len %d, want %d)", len(decoded), len(body))
	}
}

func TestBrotliPassesThrough(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		headers map[string]string
	}{
		{"short body", "ok", map[string]string{"Accept-Encoding": "br"}},
		{"no br", strings.Repeat("x", 4096), map[string]string{"Accept-Encoding": "gzip"}},
		{"websocket", strings.Repeat("x", 4096), map[string]string{"Accept-Encoding": "br", "Upgrade": "websocket"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/data", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			brotliEngine(tt.body).ServeHTTP(rec, req)

			if got := rec.Header().Get("Content-Encoding"); got != "" {
				t.Fatalf("Content-Encoding = %q, want none", got)
			}
			if rec.Body.String() != tt.body {
				t.Fatalf("body = %q", rec.Body.String())
			}
		})
	}
}

// ── Locale ──────────────────────────────────────────────────────────

func TestLocalePicksLanguage(t *testing.T) {
	r := gin.New()
	r.GET("/fail", Locale(), func(c *gin.Context) {
		response.Fail(c, http.StatusBadRequest, response.ErrTokenRequired)
	})

	message := func(path, acceptLanguage string) string {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if acceptLanguage != "" {
			req.Header.Set("Accept-Language", acceptLanguage)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		var body response.Response
		_ = json.Unmarshal(rec.Body.Bytes(), &body)
		if body.Error == nil {
			t.Fatalf("no error body in %q", rec.Body.String())
		}
		return body.Error.Message
	}

	en := message("/fail", "")
	id := message("/fail", "id-ID,id;q=0.9")
	if en == "" || id == "" || en == id {
		t.Fatalf("messages en=%q id=%q, want two different translations", en, id)
	}
	if got := message("/fail?lang=en", "id"); got != en {
		t.Fatalf("lang query = %q, want %q", got, en)
	}
}

// ── Cache control ───────────────────────────────────────────────────

func TestCacheControlLaterWins(t *testing.T) {
	r := gin.New()
	r.GET("/h", NoStore(), MaxAge(30), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/s", NoStore(), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for path, want := range map[string]string{"/h": "private, max-age=30", "/s": "no-store"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if got := rec.Header().Get("Cache-Control"); got != want {
			t.Errorf("%s Cache-Control = %q, want %q", path, got, want)
		}
	}
}
