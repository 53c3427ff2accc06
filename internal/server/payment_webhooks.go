package server

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	paymentdomain "github.com/smallbiznis/listingboost/internal/payment/domain"
)

const maxWebhookBody = 1 << 20

// HandlePaymentWebhook always answers 200; the body tells the gateway
// whether to retry.
func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil || len(payload) == 0 {
		c.JSON(http.StatusOK, paymentdomain.CallbackResult{Success: false, Message: "Invalid payload"})
		return
	}

	result := s.webhookSvc.HandleCallback(c.Request.Context(), payload)
	c.Set("webhook_outcome", string(result.Outcome))
	c.JSON(http.StatusOK, result)
}
