package middleware_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/frahmantamala/tenant-auth/internal"
	"github.com/frahmantamala/tenant-auth/internal/testutil"
	"github.com/frahmantamala/tenant-auth/internal/token"
	tokenPostgres "github.com/frahmantamala/tenant-auth/internal/token/postgres"
	"github.com/frahmantamala/tenant-auth/internal/transport"
	"github.com/frahmantamala/tenant-auth/internal/transport/middleware"
	"github.com/frahmantamala/tenant-auth/pkg/logger"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"
)

func TestMiddleware(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Middleware Suite")
}

var ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func errorCode(rec *httptest.ResponseRecorder) string {
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
	return body.Error.Code
}

var _ = Describe("RateLimit", func() {
	var (
		base *transport.BaseHandler
		now  time.Time
	)

	BeforeEach(func() {
		base = transport.NewBaseHandler(logger.Discard())
		now = time.Unix(1_800_000_000, 0).UTC()
	})

	Context("with the in-memory limiter", func() {
		var (
			limiter *middleware.MemoryLimiter
			h       http.Handler
		)

		BeforeEach(func() {
			limiter = middleware.NewMemoryLimiter().WithClock(func() time.Time { return now })
			rule := internal.RateLimitRule{Requests: 5, Per: time.Minute}
			h = middleware.RateLimit(base, limiter, middleware.ScopeLogin, rule)(ok)
		})

		It("allows the burst then answers 429 with Retry-After", func() {
			for i := 0; i < 5; i++ {
				rec := serve(h, httptest.NewRequest(http.MethodPost, "/auth/login", nil))
				Expect(rec.Code).To(Equal(http.StatusOK), "request %d", i+1)
			}

			rec := serve(h, httptest.NewRequest(http.MethodPost, "/auth/login", nil))
			Expect(rec.Code).To(Equal(http.StatusTooManyRequests))
			Expect(rec.Header().Get("Retry-After")).To(Equal("12"))
			Expect(errorCode(rec)).To(Equal(string(internal.ErrCodeRateLimited)))
		})

		It("refills over time", func() {
			for i := 0; i < 6; i++ {
				serve(h, httptest.NewRequest(http.MethodPost, "/auth/login", nil))
			}
			now = now.Add(13 * time.Second)
			Expect(serve(h, httptest.NewRequest(http.MethodPost, "/auth/login", nil)).Code).To(Equal(http.StatusOK))
		})

		It("keeps a separate budget per client address", func() {
			for i := 0; i < 5; i++ {
				serve(h, httptest.NewRequest(http.MethodPost, "/auth/login", nil))
			}

			other := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
			other.RemoteAddr = "198.51.100.7:5000"
			Expect(serve(h, other).Code).To(Equal(http.StatusOK))
			Expect(limiter.Len()).To(Equal(2))
		})

		It("forgets idle clients", func() {
			serve(h, httptest.NewRequest(http.MethodPost, "/auth/login", nil))
			now = now.Add(3 * time.Hour)

			other := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
			other.RemoteAddr = "198.51.100.7:5000"
			serve(h, other)
			Expect(limiter.Len()).To(Equal(1))
		})
	})

	Context("with the redis limiter", func() {
		var (
			mr *miniredis.Miniredis
			h  http.Handler
		)

		BeforeEach(func() {
			mr = miniredis.RunT(GinkgoT())
			client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			DeferCleanup(client.Close)

			limiter := middleware.NewRedisLimiter(client, "test:").WithClock(func() time.Time { return now })
			rule := internal.RateLimitRule{Requests: 3, Per: time.Minute}
			h = middleware.RateLimit(base, limiter, middleware.ScopeSignup, rule)(ok)
		})

		It("counts requests in a shared window", func() {
			for i := 0; i < 3; i++ {
				Expect(serve(h, httptest.NewRequest(http.MethodPost, "/signup", nil)).Code).To(Equal(http.StatusOK))
			}

			rec := serve(h, httptest.NewRequest(http.MethodPost, "/signup", nil))
			Expect(rec.Code).To(Equal(http.StatusTooManyRequests))
			Expect(rec.Header().Get("Retry-After")).To(Equal("60"))

			now = now.Add(time.Minute)
			Expect(serve(h, httptest.NewRequest(http.MethodPost, "/signup", nil)).Code).To(Equal(http.StatusOK))
		})

		It("lets requests through when redis is down", func() {
			mr.Close()
			Expect(serve(h, httptest.NewRequest(http.MethodPost, "/signup", nil)).Code).To(Equal(http.StatusOK))
		})
	})

	It("is a no-op without a limiter or rule", func() {
		h := middleware.RateLimit(base, nil, middleware.ScopeLogin, internal.RateLimitRule{Requests: 1, Per: time.Minute})(ok)
		for i := 0; i < 3; i++ {
			Expect(serve(h, httptest.NewRequest(http.MethodPost, "/", nil)).Code).To(Equal(http.StatusOK))
		}
	})
})

var _ = Describe("Authenticate", func() {
	var (
		issuer *token.Issuer
		h      http.Handler
	)

	BeforeEach(func() {
		db, err := testutil.NewSQLiteDB()
		Expect(err).NotTo(HaveOccurred())

		cfg := token.DefaultConfig()
		cfg.AccessSecret = []byte("access-secret-for-tests")
		cfg.RefreshSecret = []byte("refresh-secret-for-tests")
		issuer = token.NewIssuer(cfg, tokenPostgres.NewBlacklistRepository(db), logger.Discard())

		echo := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, found := internal.UserIDFromContext(r.Context())
			Expect(found).To(BeTrue())
			_ = json.NewEncoder(w).Encode(map[string]int64{"user_id": userID})
		})
		h = middleware.Authenticate(transport.NewBaseHandler(logger.Discard()), issuer)(echo)
	})

	bearer := func(raw string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/users/me", nil)
		req.Header.Set("Authorization", raw)
		return req
	}

	It("puts the token subject in the request context", func() {
		pair, err := issuer.Issue(context.Background(), 42, false)
		Expect(err).NotTo(HaveOccurred())

		rec := serve(h, bearer("Bearer "+pair.AccessToken))
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring(`"user_id":42`))
	})

	It("rejects a missing or malformed header", func() {
		Expect(serve(h, httptest.NewRequest(http.MethodGet, "/users/me", nil)).Code).To(Equal(http.StatusUnauthorized))
		Expect(serve(h, bearer("Basic abc")).Code).To(Equal(http.StatusUnauthorized))
		Expect(serve(h, bearer("Bearer not-a-jwt")).Code).To(Equal(http.StatusUnauthorized))
	})

	It("rejects a refresh token used as an access token", func() {
		pair, err := issuer.Issue(context.Background(), 42, false)
		Expect(err).NotTo(HaveOccurred())

		rec := serve(h, bearer("Bearer "+pair.RefreshToken))
		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		Expect(errorCode(rec)).To(Equal(string(internal.ErrCodeInvalidToken)))
	})
})

var _ = Describe("LoggingMiddleware", func() {
	var (
		buf *bytes.Buffer
		h   http.Handler
	)

	BeforeEach(func() {
		buf = &bytes.Buffer{}
		lg := slog.New(slog.NewJSONHandler(buf, nil))
		inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusGone)
			_, _ = w.Write([]byte(`{"error":{"code":"OTP_EXPIRED"},"access_token":"eyJhbGciOi.secret"}`))
		})
		h = middleware.RequestID(middleware.LoggingMiddleware(lg)(inner))
	})

	It("masks credentials in request and response", func() {
		body := `{"phone":"+628111","code":"123456","password":"hunter22","backup_code":"a1b2c3d4"}`
		req := httptest.NewRequest(http.MethodPost, "/signup/verify", strings.NewReader(body))
		req.Header.Set("Authorization", "Bearer eyJhbGciOi.header")

		rec := serve(h, req)
		Expect(rec.Code).To(Equal(http.StatusGone))

		out := buf.String()
		Expect(out).NotTo(ContainSubstring("123456"))
		Expect(out).NotTo(ContainSubstring("hunter22"))
		Expect(out).NotTo(ContainSubstring("a1b2c3d4"))
		Expect(out).NotTo(ContainSubstring("eyJhbGciOi"))
		Expect(out).To(ContainSubstring("+628111"))
		Expect(out).To(ContainSubstring("OTP_EXPIRED"))
		Expect(out).To(ContainSubstring(rec.Header().Get(middleware.RequestIDHeader)))
	})

	It("leaves the body readable for the handler", func() {
		var seen string
		inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var dto struct {
				Password string `json:"password"`
			}
			_ = json.NewDecoder(r.Body).Decode(&dto)
			seen = dto.Password
		})
		h := middleware.LoggingMiddleware(logger.Discard())(inner)
		serve(h, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"password":"hunter22"}`)))
		Expect(seen).To(Equal("hunter22"))
	})
})

var _ = Describe("RecoveryMiddleware", func() {
	It("answers 500 without the panic value", func() {
		h := middleware.RecoveryMiddleware(logger.Discard())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic("dial tcp 10.0.0.5:5432: password authentication failed")
		}))

		rec := serve(h, httptest.NewRequest(http.MethodGet, "/", nil))
		Expect(rec.Code).To(Equal(http.StatusInternalServerError))
		Expect(rec.Body.String()).NotTo(ContainSubstring("10.0.0.5"))
		Expect(rec.Body.String()).To(ContainSubstring("Internal server error"))
	})
})

var _ = Describe("CORS", func() {
	h := middleware.CORS("https://app.example.com, https://admin.example.com")(ok)

	It("echoes an allowed origin", func() {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "https://admin.example.com")
		rec := serve(h, req)
		Expect(rec.Header().Get("Access-Control-Allow-Origin")).To(Equal("https://admin.example.com"))
	})

	It("ignores other origins", func() {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		Expect(serve(h, req).Header().Get("Access-Control-Allow-Origin")).To(BeEmpty())
	})

	It("answers preflight requests directly", func() {
		req := httptest.NewRequest(http.MethodOptions, "/auth/login", nil)
		req.Header.Set("Origin", "https://app.example.com")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		Expect(serve(h, req).Code).To(Equal(http.StatusNoContent))
	})
})

var _ = Describe("RequestID and ClientInfo", func() {
	It("keeps a caller supplied id and generates one otherwise", func() {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(middleware.RequestIDHeader, "abc-123")
		Expect(serve(middleware.RequestID(ok), req).Header().Get(middleware.RequestIDHeader)).To(Equal("abc-123"))

		generated := serve(middleware.RequestID(ok), httptest.NewRequest(http.MethodGet, "/", nil))
		Expect(generated.Header().Get(middleware.RequestIDHeader)).To(HaveLen(36))
	})

	It("records the forwarded address and user agent", func() {
		var info internal.ClientInfo
		h := middleware.ClientInfo(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info = internal.ClientFromContext(r.Context())
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
		req.Header.Set("User-Agent", "curl/8.0")
		serve(h, req)

		Expect(info.IPAddress).To(Equal("203.0.113.9"))
		Expect(info.UserAgent).To(Equal("curl/8.0"))
	})
})
