package middleware_test

import (
	"net/http"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/gin-gonic/gin"

	"github.com/vins-anity/trailpack/internal/http/middleware"
)

var _ = Describe("RateLimiter", func() {
	It("allows bursts up to the configured size, then rejects with Retry-After", func() {
		rl := middleware.NewRateLimiter(1, 3)
		defer rl.Stop()

		router := gin.New()
		router.GET("/ping", rl.Middleware(), func(c *gin.Context) {
			c.Status(http.StatusOK)
		})

		var last *httptest.ResponseRecorder
		allowed := 0
		for i := 0; i < 5; i++ {
			req := httptest.NewRequest(http.MethodGet, "/ping", nil)
			req.RemoteAddr = "10.0.0.1:1234"
			last = httptest.NewRecorder()
			router.ServeHTTP(last, req)
			if last.Code == http.StatusOK {
				allowed++
			}
		}

		Expect(allowed).To(Equal(3))
		Expect(last.Code).To(Equal(http.StatusTooManyRequests))
		Expect(last.Header().Get("Retry-After")).NotTo(BeEmpty())
	})

	It("tracks clients independently", func() {
		rl := middleware.NewRateLimiter(1, 1)
		defer rl.Stop()

		ok, _ := rl.Allow("client-a")
		Expect(ok).To(BeTrue())
		ok, _ = rl.Allow("client-b")
		Expect(ok).To(BeTrue())

		ok, retryAfter := rl.Allow("client-a")
		Expect(ok).To(BeFalse())
		Expect(retryAfter).To(BeNumerically(">=", 1))
	})

	It("stop is idempotent", func() {
		rl := middleware.NewRateLimiter(1, 1)
		rl.Stop()
		rl.Stop()
	})
})
