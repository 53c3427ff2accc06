package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	orderdomain "github.com/smallbiznis/listingboost/internal/order/domain"
)

type createPaymentIntentRequest struct {
	PackageID string `json:"package_id" binding:"required"`
	ListingID string `json:"listing_id"`
}

func (s *Server) CreatePaymentIntent(c *gin.Context) {
	var req createPaymentIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	packageID, err := snowflake.ParseString(req.PackageID)
	if err != nil || packageID <= 0 {
		AbortWithError(c, newValidationError("package_id", "invalid_package_id", "invalid package_id"))
		return
	}

	intentReq := orderdomain.CreateIntentRequest{
		BuyerID:   userIDFrom(c),
		PackageID: packageID,
	}
	if req.ListingID != "" {
		listingID, err := snowflake.ParseString(req.ListingID)
		if err != nil || listingID <= 0 {
			AbortWithError(c, newValidationError("listing_id", "invalid_listing_id", "invalid listing_id"))
			return
		}
		intentReq.ListingID = &listingID
	}

	intent, err := s.orderSvc.CreatePaymentIntent(c.Request.Context(), intentReq)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": intent})
}
