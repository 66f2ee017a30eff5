package handler

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"faceattend/internal/auth"
	"faceattend/internal/httpmiddleware"
	"faceattend/internal/identity"
	"faceattend/internal/logging"
)

// RouterOptions configures the middleware stack.
type RouterOptions struct {
	Logger         *logrus.Logger
	MaxBodyBytes   int64
	RateLimit      *httpmiddleware.TokenBucket
	AllowOrigins   []string
	Gatherer       prometheus.Gatherer
	ProductionMode bool
}

// NewRouter mounts every route on a fresh gin engine.
func NewRouter(h *Handler, opts RouterOptions) *gin.Engine {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if len(opts.AllowOrigins) == 0 {
		opts.AllowOrigins = []string{"*"}
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logging.RequestID())
	r.Use(logging.Middleware(opts.Logger, "/healthz", "/metrics"))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     opts.AllowOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{logging.RequestIDKey},
		AllowCredentials: !containsWildcard(opts.AllowOrigins),
		MaxAge:           12 * time.Hour,
	}))
	r.Use(securityHeaders(opts.ProductionMode))
	if opts.MaxBodyBytes > 0 {
		r.Use(maxBody(opts.MaxBodyBytes))
	}
	limit := func(c *gin.Context) { c.Next() }
	if opts.RateLimit != nil {
		limit = opts.RateLimit.Middleware()
	}

	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))

	v1 := r.Group("/v1")
	v1.POST("/auth/login", limit, h.Login)
	v1.POST("/auth/refresh", limit, h.Refresh)

	authed := v1.Group("", auth.Middleware(h.issuer), limit)

	students := authed.Group("/attendance", auth.RequireRole(string(identity.RoleStudent)))
	students.POST("/mark", h.MarkAttendance)
	students.GET("/me", h.MyAttendance)

	admin := authed.Group("/admin", auth.RequireRole(string(identity.RoleAdmin)))
	admin.GET("/students", h.ListStudents)
	admin.POST("/students", h.CreateStudent)
	admin.GET("/students/:id/attendance", h.StudentAttendance)
	admin.GET("/students/:id/face", h.StudentFace)
	admin.PUT("/students/:id/face", h.ReplaceStudentFace)

	return r
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}

func securityHeaders(production bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		if production {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}

func maxBody(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > n {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		c.Next()
	}
}
