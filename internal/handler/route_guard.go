package handler

import (
	"context"
	"net/http"
	"net/url"
	"path"

	"blog-web/internal/authcookie"
	"blog-web/internal/messaging"
	"blog-web/shared/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	LoginPath     = "/login"
	HomePath      = "/"
	ForbiddenPath = "/403"
)

// TokenVerifier проверяет access-токен (authutils.JWTVerifier).
type TokenVerifier interface {
	VerifyToken(ctx context.Context, token string) (*models.Claims, error)
}

// RoleFetcher - роль владельца токена у бэкенда (client.ProfileFetcher).
type RoleFetcher interface {
	FetchRole(ctx context.Context, accessToken string) (string, error)
}

// RouteGuard - проверка доступа к страницам до рендера.
type RouteGuard struct {
	verifier   TokenVerifier
	roles      RoleFetcher
	classifier *PathClassifier
	attrs      authcookie.Attributes
	events     messaging.EventPublisher
	logger     *zap.Logger
}

// NewRouteGuard создает RouteGuard. events может быть nil.
func NewRouteGuard(verifier TokenVerifier, roles RoleFetcher, classifier *PathClassifier, attrs authcookie.Attributes, events messaging.EventPublisher, logger *zap.Logger) *RouteGuard {
	if events == nil {
		events = messaging.NewNopPublisher()
	}
	return &RouteGuard{
		verifier:   verifier,
		roles:      roles,
		classifier: classifier,
		attrs:      attrs,
		events:     events,
		logger:     logger.Named("RouteGuard"),
	}
}

// LoginRedirectURL - страница входа с исходным путём в redirect.
// Путь нормализуется: "//host" не должен превратиться в protocol-relative адрес.
func LoginRedirectURL(originalPath string) string {
	return LoginPath + "?redirect=" + url.QueryEscape(path.Clean("/"+originalPath))
}

// Middleware - gin middleware Route Guard.
func (g *RouteGuard) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		p := c.Request.URL.Path
		if shouldBypass(p) {
			c.Next()
			return
		}

		class := g.classifier.Classify(p)
		log := g.logger.With(zap.String("path", p), zap.Stringer("class", class))

		token, err := c.Cookie(authcookie.AccessTokenName)
		if err != nil || token == "" {
			if class == ClassPublic {
				g.allow(c, class, nil)
				return
			}
			log.Debug("No access token for protected path, redirecting to login")
			g.redirect(c, class, "login", LoginRedirectURL(p))
			return
		}

		claims, err := g.verifier.VerifyToken(c.Request.Context(), token)
		if err != nil {
			log.Info("Invalid access token, clearing cookie", zap.Error(err))
			http.SetCookie(c.Writer, g.attrs.Expired(authcookie.AccessTokenName))
			g.redirect(c, class, "invalid_token", LoginRedirectURL(p))
			return
		}

		if g.classifier.IsAuthPage(p) {
			g.redirect(c, class, "home", HomePath)
			return
		}

		if class == ClassAdminRequired {
			role, err := g.roles.FetchRole(c.Request.Context(), token)
			if err != nil {
				// Не смогли узнать роль - считаем, что не админ
				log.Warn("Failed to fetch user role, denying admin access", zap.Error(err))
			}
			if err != nil || !models.IsAdmin(role) {
				userID, _ := claims.UserID()
				messaging.PublishAsync(g.events, messaging.NewSessionEvent(messaging.EventAccessForbidden, userID, p), g.logger)
				g.redirect(c, class, "forbidden", ForbiddenPath)
				return
			}
			c.Set(models.RoleContextKey, role)
		}

		g.allow(c, class, claims)
	}
}

func (g *RouteGuard) allow(c *gin.Context, class PathClass, claims *models.Claims) {
	guardDecisionsTotal.WithLabelValues(class.String(), "allow").Inc()
	if claims != nil {
		c.Set(models.ClaimsContextKey, claims)
	}
	c.Next()
}

func (g *RouteGuard) redirect(c *gin.Context, class PathClass, action, target string) {
	guardDecisionsTotal.WithLabelValues(class.String(), action).Inc()
	c.Redirect(http.StatusFound, target)
	c.Abort()
}
