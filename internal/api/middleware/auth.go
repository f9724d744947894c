package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// TraineeIDKey is the context key holding the authenticated trainee's TIS ID.
const TraineeIDKey = "traineeId"

const tisIDClaim = "custom:tisId"

// TraineeAuth extracts the trainee TIS ID from the Authorization token and
// stores it in the request context. Tokens arrive already verified by the
// API gateway, so the claims are read without signature verification here.
func TraineeAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if token == "" {
			c.AbortWithStatus(http.StatusBadRequest)
			return
		}

		claims := jwt.MapClaims{}
		if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
			c.AbortWithStatus(http.StatusBadRequest)
			return
		}

		traineeID, _ := claims[tisIDClaim].(string)
		if traineeID == "" {
			c.AbortWithStatus(http.StatusBadRequest)
			return
		}

		c.Set(TraineeIDKey, traineeID)
		c.Next()
	}
}
