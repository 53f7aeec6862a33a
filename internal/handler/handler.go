package handler

import (
	"net/http"
	"strings"
	"time"

	"blog-web/internal/authcookie"
	"blog-web/internal/messaging"
	"blog-web/shared/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler - HTTP-поверхность edge-сервиса: session-check, health и прокси.
type Handler struct {
	backend     SessionBackend
	profiles    ProfileFetcher
	cookieAttrs authcookie.Attributes
	events      messaging.EventPublisher
	apiProxy    http.Handler
	pageProxy   http.Handler
	logger      *zap.Logger
	now         func() time.Time
}

// Deps - зависимости Handler. PageProxy может быть nil: тогда страницы отдают 404.
type Deps struct {
	Backend     SessionBackend
	Profiles    ProfileFetcher
	CookieAttrs authcookie.Attributes
	Events      messaging.EventPublisher
	APIProxy    http.Handler
	PageProxy   http.Handler
}

func NewHandler(deps Deps, logger *zap.Logger) *Handler {
	events := deps.Events
	if events == nil {
		events = messaging.NewNopPublisher()
	}
	return &Handler{
		backend:     deps.Backend,
		profiles:    deps.Profiles,
		cookieAttrs: deps.CookieAttrs,
		events:      events,
		apiProxy:    deps.APIProxy,
		pageProxy:   deps.PageProxy,
		logger:      logger.Named("Handler"),
		now:         time.Now,
	}
}

// RegisterRoutes регистрирует маршруты. Route Guard подключается к router
// глобально до вызова, чтобы попасть и в NoRoute.
//
// /api/* и страницы идут через NoRoute: catch-all маршрут gin конфликтует
// со статическим /api/auth/session-check.
func (h *Handler) RegisterRoutes(router *gin.Engine, sessionLimiter gin.HandlerFunc) {
	healthHandler := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
	router.GET("/health", healthHandler)
	router.HEAD("/health", healthHandler)

	authGroup := router.Group("/api/auth")
	if sessionLimiter != nil {
		authGroup.Use(sessionLimiter)
	}
	authGroup.POST("/session-check", h.sessionCheck)

	router.NoRoute(h.dispatch)
}

func (h *Handler) dispatch(c *gin.Context) {
	p := c.Request.URL.Path
	if p == "/api" || strings.HasPrefix(p, "/api/") {
		if h.apiProxy == nil {
			models.AbortJSONError(c, http.StatusNotFound, "", "Not found")
			return
		}
		h.apiProxy.ServeHTTP(c.Writer, c.Request)
		return
	}
	if h.pageProxy == nil {
		models.AbortJSONError(c, http.StatusNotFound, "", "Not found")
		return
	}
	h.pageProxy.ServeHTTP(c.Writer, c.Request)
}
