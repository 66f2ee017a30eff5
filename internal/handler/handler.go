// Package handler is the HTTP façade: sessions, attendance marking and admin views.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"faceattend/internal/attendance"
	"faceattend/internal/auth"
	"faceattend/internal/enrollment"
	"faceattend/internal/identity"
	"faceattend/internal/logging"
	"faceattend/internal/storage"
	"faceattend/internal/store"
	"faceattend/internal/verification"
)

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) bool

// Handler holds the collaborators behind every route.
type Handler struct {
	db         *store.DB
	identities *identity.Repository
	ledger     *attendance.Ledger
	engine     *verification.Engine
	registrar  *enrollment.Registrar
	images     storage.Store
	issuer     *auth.Issuer
	checks     map[string]HealthCheck
	now        func() time.Time
}

// Deps groups the constructor arguments.
type Deps struct {
	DB       *store.DB
	Ledger   *attendance.Ledger
	Engine   *verification.Engine
	Enroller *enrollment.Enroller
	Images   storage.Store
	Issuer   *auth.Issuer
	Checks   map[string]HealthCheck
}

func New(d Deps) *Handler {
	identities := identity.NewRepository(d.DB.Client)
	return &Handler{
		db:         d.DB,
		identities: identities,
		ledger:     d.Ledger,
		engine:     d.Engine,
		registrar:  enrollment.NewRegistrar(d.DB, identities, d.Enroller),
		images:     d.Images,
		issuer:     d.Issuer,
		checks:     d.Checks,
		now:        time.Now,
	}
}

// Healthz reports database and auxiliary dependency status.
func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	body := gin.H{"db": h.db.Healthy(ctx)}
	status := http.StatusOK
	if !body["db"].(bool) {
		status = http.StatusServiceUnavailable
	}
	for name, check := range h.checks {
		body[name] = check(ctx)
	}
	body["status"] = http.StatusText(status)
	c.JSON(status, body)
}

type loginRequest struct {
	UserID   string `json:"user_id" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login exchanges a user id and password for a token pair.
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id and password are required"})
		return
	}
	id, err := h.identities.Authenticate(c.Request.Context(), req.UserID, req.Password)
	if errors.Is(err, identity.ErrNotFound) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid user id or password"})
		return
	}
	if err != nil {
		h.internalError(c, "authenticate", err)
		return
	}
	tokens, err := h.issuer.Issue(id.ID, id.UserID, string(id.Role))
	if err != nil {
		h.internalError(c, "issue token", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
		"expires_at":    tokens.AccessExp.Unix(),
		"role":          id.Role,
		"name":          id.Name,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// Refresh issues a new pair for a valid refresh token of an existing identity.
func (h *Handler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "refresh_token is required"})
		return
	}
	claims, err := h.issuer.ParseRefresh(req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	id, err := h.identities.GetByID(c.Request.Context(), claims.Subject)
	if errors.Is(err, identity.ErrNotFound) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	if err != nil {
		h.internalError(c, "load identity", err)
		return
	}
	tokens, err := h.issuer.Issue(id.ID, id.UserID, string(id.Role))
	if err != nil {
		h.internalError(c, "issue token", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
		"expires_at":    tokens.AccessExp.Unix(),
	})
}

// caller loads the identity behind the request token.
func (h *Handler) caller(c *gin.Context) (identity.Identity, bool) {
	claims, ok := auth.FromContext(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return identity.Identity{}, false
	}
	id, err := h.identities.GetByID(c.Request.Context(), claims.Subject)
	if errors.Is(err, identity.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unknown identity"})
		return identity.Identity{}, false
	}
	if err != nil {
		h.internalError(c, "load identity", err)
		return identity.Identity{}, false
	}
	return id, true
}

// monthQuery reads ?year=&month=, defaulting to the current month in the
// ledger's zone.
func (h *Handler) monthQuery(c *gin.Context) (int, int, bool) {
	now := h.now().In(h.ledger.Location())
	year, month := now.Year(), int(now.Month())
	if v := c.Query("year"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid year"})
			return 0, 0, false
		}
		year = parsed
	}
	if v := c.Query("month"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 || parsed > 12 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid month"})
			return 0, 0, false
		}
		month = parsed
	}
	return year, month, true
}

func (h *Handler) writeReport(c *gin.Context, identityID string) {
	year, month, ok := h.monthQuery(c)
	if !ok {
		return
	}
	report, err := h.ledger.MonthlyReport(c.Request.Context(), identityID, year, month)
	if err != nil {
		h.internalError(c, "monthly report", err)
		return
	}
	for i := range report.Records {
		report.Records[i].Time = hourMinute(report.Records[i].Time)
	}
	c.JSON(http.StatusOK, report)
}

// hourMinute trims a stored HH:MM:SS time for display.
func hourMinute(t string) string {
	if len(t) >= 5 {
		return t[:5]
	}
	return t
}

func (h *Handler) internalError(c *gin.Context, op string, err error) {
	logger(c).WithError(err).Error(op)
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
		"error":      "internal error",
		"request_id": c.GetString(logging.RequestIDKey),
	})
}

func logger(c *gin.Context) *logrus.Entry {
	return logging.FromGin(c)
}
