package middleware

import (
	"errors"
	"time"

	"forge/internal/common"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const userIDKey = "userId"

type Claims struct {
	jwt.RegisteredClaims
}

func GenerateJWT(secret, userID string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("jwt secret is empty")
	}
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// Identity resolves the caller from a bearer token. A request without an
// Authorization header is anonymous; a malformed or invalid token is
// rejected. An empty secret turns identity off entirely.
func Identity(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if secret == "" || header == "" {
			c.Next()
			return
		}

		tokenString, err := common.GetAuthorizationToken(header)
		if err != nil {
			common.Error(c, common.NewErrNo(common.TOKEN_INVALID))
			return
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
			return []byte(secret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid || claims.Subject == "" {
			common.Error(c, common.NewErrNo(common.TOKEN_INVALID))
			return
		}

		c.Set(userIDKey, claims.Subject)
		c.Next()
	}
}

// UserID is the caller resolved by Identity, empty for anonymous requests.
func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}
