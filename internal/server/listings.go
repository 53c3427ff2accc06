package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	listingdomain "github.com/smallbiznis/listingboost/internal/listing/domain"
)

type createListingRequest struct {
	Title string `json:"title" binding:"required"`
}

func (s *Server) CreateListing(c *gin.Context) {
	var req createListingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	res, err := s.listingSvc.Open(c.Request.Context(), listingdomain.OpenRequest{
		OwnerID: userIDFrom(c),
		Title:   req.Title,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": res})
}

func (s *Server) GetListing(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	listing, err := s.listingSvc.GetOwned(c.Request.Context(), userIDFrom(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": listing})
}
