package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/listingboost/internal/observability/context"
)

// HeaderUserID carries the caller identity resolved by the upstream auth layer.
const (
	HeaderUserID     = "X-User-ID"
	contextUserIDKey = "user_id"
)

// UserRequired rejects requests without a valid caller identity.
func (s *Server) UserRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if raw == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		userID, err := snowflake.ParseString(raw)
		if err != nil || userID <= 0 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		c.Set(contextUserIDKey, userID)
		ctx := obscontext.WithActor(c.Request.Context(), obscontext.ActorUser, userID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func userIDFrom(c *gin.Context) snowflake.ID {
	if v, ok := c.Get(contextUserIDKey); ok {
		if id, ok := v.(snowflake.ID); ok {
			return id
		}
	}
	return 0
}

func parseIDParam(c *gin.Context, name string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param(name)))
	if err != nil || id <= 0 {
		return 0, newValidationError(name, "invalid_"+name, "invalid "+name)
	}
	return id, nil
}
