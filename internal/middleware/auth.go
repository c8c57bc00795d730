package middleware

import (
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"fashionadmin/internal/models"
)

const identityKey = "identity"

// AuthGuard verifies the bearer token and stores the caller's identity on the
// context. Tokens are issued elsewhere; this only checks them.
func AuthGuard(secret string, logger *zap.Logger, allowedRoles ...string) gin.HandlerFunc {
	logger = logger.Named("auth")
	return func(c *gin.Context) {
		raw, err := bearerToken(c.GetHeader("Authorization"))
		if err != nil {
			logger.Debug("rejecting request", zap.String("path", c.FullPath()), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
			return []byte(secret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid {
			logger.Info("token validation failed", zap.String("path", c.FullPath()), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		identity := identityFromClaims(claims)
		if identity.UserID == "" {
			logger.Info("token has no subject claim")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		if len(allowedRoles) > 0 && !slices.Contains(allowedRoles, identity.Role) {
			logger.Info("role not allowed", zap.String("user_id", identity.UserID), zap.String("role", identity.Role))
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}

		c.Set(identityKey, identity)
		c.Next()
	}
}

// UserAuth admits any authenticated caller.
func UserAuth(secret string, logger *zap.Logger) gin.HandlerFunc {
	return AuthGuard(secret, logger)
}

func AdminAuth(secret string, logger *zap.Logger) gin.HandlerFunc {
	return AuthGuard(secret, logger, models.RoleAdmin)
}

var (
	errMissingToken = errors.New("missing token")
	errTokenFormat  = errors.New("invalid token")
)

func bearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errMissingToken
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" || strings.Contains(token, " ") {
		return "", errTokenFormat
	}
	return token, nil
}

// CurrentIdentity returns the identity stored by AuthGuard.
func CurrentIdentity(c *gin.Context) (models.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return models.Identity{}, false
	}
	identity, ok := v.(models.Identity)
	return identity, ok
}

// identityFromClaims accepts the claim names used by both token issuers:
// userId for storefront users, uid or sub otherwise.
func identityFromClaims(claims jwt.MapClaims) models.Identity {
	var userID string
	for _, key := range []string{"userId", "uid", "sub"} {
		if v, ok := claims[key].(string); ok && strings.TrimSpace(v) != "" {
			userID = strings.TrimSpace(v)
			break
		}
	}
	role, _ := claims["role"].(string)
	if role == "" {
		role = models.RoleUser
	}
	return models.Identity{UserID: userID, Role: role}
}
