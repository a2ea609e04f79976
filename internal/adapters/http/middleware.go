package http

import (
	"net/http"

	"github.com/dkeye/Molian/internal/adapters/auth"
	"github.com/dkeye/Molian/internal/core"
	"github.com/dkeye/Molian/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const userKey = "user_id"

func AuthMiddleware(v core.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, err := v.Verify(auth.TokenFromRequest(c.Request))
		if err != nil {
			log.Debug().Err(err).Str("module", "adapters.http").Str("path", c.FullPath()).Msg("unauthorized")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set(userKey, uid)
		c.Next()
	}
}

func currentUser(c *gin.Context) domain.UserID {
	uid, _ := c.Get(userKey)
	id, _ := uid.(domain.UserID)
	return id
}
