package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stockroomhq/inventory-gateway/internal/config"
	"github.com/stockroomhq/inventory-gateway/internal/models"
	"github.com/stockroomhq/inventory-gateway/internal/ratelimit"
)

func stubTenant(plan string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ContextTenantKey, &models.TenantIdentity{
			TenantID:         "t-1",
			DatabaseName:     "tenant_1",
			SubscriptionPlan: plan,
		})
		c.Next()
	}
}

func doGet(router *gin.Engine, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.RemoteAddr = ip + ":4321"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestBurstLimitCeiling(t *testing.T) {
	gin.SetMode(gin.TestMode)

	store := ratelimit.NewMemoryStore()
	router := gin.New()
	router.Use(BurstLimit(store, 3, time.Hour))
	router.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 3; i++ {
		if w := doGet(router, "10.0.0.1"); w.Code != http.StatusOK {
			t.Fatalf("request %d should pass, got %d", i+1, w.Code)
		}
	}

	w := doGet(router, "10.0.0.1")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatal("429 must carry a Retry-After hint")
	}
	if env := decodeEnvelope(t, w); env.Error.Code != "RATE_LIMIT_EXCEEDED" {
		t.Fatalf("expected RATE_LIMIT_EXCEEDED, got %s", env.Error.Code)
	}

	// A different caller is unaffected.
	if w := doGet(router, "10.0.0.2"); w.Code != http.StatusOK {
		t.Fatalf("other caller should pass, got %d", w.Code)
	}
}

func TestPlanSustainedCeilingAndHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)

	store := ratelimit.NewMemoryStore()
	ceilings := ratelimit.NewPlanCeilings([]config.PlanLimit{
		{Plan: "free", RequestsPerHour: 2},
		{Plan: "enterprise", RequestsPerHour: 100000},
	})

	router := gin.New()
	router.Use(stubTenant("free"))
	router.Use(PlanSustained(store, ceilings))
	router.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 2; i++ {
		w := doGet(router, "10.0.0.1")
		if w.Code != http.StatusOK {
			t.Fatalf("request %d should pass, got %d", i+1, w.Code)
		}
		if w.Header().Get("X-RateLimit-Limit") != "2" {
			t.Fatalf("expected X-RateLimit-Limit=2, got %q", w.Header().Get("X-RateLimit-Limit"))
		}
		if w.Header().Get("X-RateLimit-Window") != "3600" {
			t.Fatalf("expected X-RateLimit-Window=3600, got %q", w.Header().Get("X-RateLimit-Window"))
		}
		if w.Header().Get("X-RateLimit-Plan") != "free" {
			t.Fatalf("expected X-RateLimit-Plan=free, got %q", w.Header().Get("X-RateLimit-Plan"))
		}
	}

	// The (ceiling+1)-th request within the window is rejected.
	w := doGet(router, "10.0.0.1")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 on request beyond plan ceiling, got %d", w.Code)
	}
	// Informational headers are present even on the rejection.
	if w.Header().Get("X-RateLimit-Plan") != "free" {
		t.Fatal("rejected response must still carry plan headers")
	}
}

func TestBurstTripsIndependentlyOfSustained(t *testing.T) {
	gin.SetMode(gin.TestMode)

	store := ratelimit.NewMemoryStore()
	ceilings := ratelimit.NewPlanCeilings([]config.PlanLimit{
		{Plan: "free", RequestsPerHour: 1000},
	})

	router := gin.New()
	router.Use(BurstLimit(store, 2, 10*time.Second))
	router.Use(stubTenant("free"))
	router.Use(PlanSustained(store, ceilings))
	router.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 2; i++ {
		if w := doGet(router, "10.0.0.1"); w.Code != http.StatusOK {
			t.Fatalf("request %d should pass, got %d", i+1, w.Code)
		}
	}

	// Far below the hourly ceiling, yet the burst tier trips.
	w := doGet(router, "10.0.0.1")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected burst rejection, got %d", w.Code)
	}
	env := decodeEnvelope(t, w)
	if tier, _ := env.Error.Details["tier"].(string); tier != "burst" {
		t.Fatalf("expected the burst tier to reject, got %q", tier)
	}
}

func TestAnonymousSustainedDisabledWhenZero(t *testing.T) {
	gin.SetMode(gin.TestMode)

	store := ratelimit.NewMemoryStore()
	router := gin.New()
	router.Use(AnonymousSustained(store, 0))
	router.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 20; i++ {
		if w := doGet(router, "10.0.0.1"); w.Code != http.StatusOK {
			t.Fatalf("disabled anon limiter must not reject, got %d", w.Code)
		}
	}
}

func TestSpikeFilterRejectsRapidFire(t *testing.T) {
	gin.SetMode(gin.TestMode)

	local := ratelimit.NewLocalStore(0.01, 1)
	router := gin.New()
	router.Use(SpikeFilter(local))
	router.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	if w := doGet(router, "10.0.0.1"); w.Code != http.StatusOK {
		t.Fatalf("first request should pass, got %d", w.Code)
	}
	if w := doGet(router, "10.0.0.1"); w.Code != http.StatusTooManyRequests {
		t.Fatalf("second rapid request should be filtered, got %d", w.Code)
	}
}
