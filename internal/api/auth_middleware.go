package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bistro/server/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const identityKey = "identity"

// IdentityClaims токен внешнего провайдера: sub - числовой ID, role - роль
type IdentityClaims struct {
	Role models.Role `json:"role"`
	jwt.RegisteredClaims
}

// SignIdentity выпускает токен для личности (dev-команда token и тесты)
func SignIdentity(secret string, who models.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := IdentityClaims{
		Role: who.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(who.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseIdentity проверяет подпись и достает личность из токена
func ParseIdentity(secret, tokenString string) (models.Identity, error) {
	claims := &IdentityClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return models.Identity{}, err
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return models.Identity{}, fmt.Errorf("invalid subject %q", claims.Subject)
	}
	if !claims.Role.Valid() {
		return models.Identity{}, fmt.Errorf("invalid role %q", claims.Role)
	}
	return models.Identity{ID: id, Role: claims.Role}, nil
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", errors.New("missing Authorization header")
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", errors.New("authorization header must be a Bearer token")
	}
	return token, nil
}

// IdentityMiddleware требует валидный Bearer токен. WebSocket клиенты
// могут передать токен в query-параметре access_token
func IdentityMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" && c.Query("access_token") != "" {
			header = "Bearer " + c.Query("access_token")
		}
		token, err := bearerToken(header)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		who, err := ParseIdentity(secret, token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token", "details": err.Error()})
			return
		}
		c.Set(identityKey, who)
		c.Next()
	}
}

// RequireStaff пропускает только сотрудников и администраторов
func RequireStaff() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !identityFrom(c).Role.IsStaff() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "staff only"})
			return
		}
		c.Next()
	}
}

func identityFrom(c *gin.Context) models.Identity {
	if v, ok := c.Get(identityKey); ok {
		if who, ok := v.(models.Identity); ok {
			return who
		}
	}
	return models.Identity{}
}
