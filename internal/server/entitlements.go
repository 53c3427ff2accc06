package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) GetMyEntitlement(c *gin.Context) {
	snap, err := s.entitlementSvc.Snapshot(c.Request.Context(), userIDFrom(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": snap})
}

// ConsumeEntitlement reserves one posting unit for listing flows that live
// outside this service. A denial is a 200 with can_post=false.
func (s *Server) ConsumeEntitlement(c *gin.Context) {
	decision, err := s.entitlementSvc.CheckAndConsume(c.Request.Context(), userIDFrom(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": decision})
}
