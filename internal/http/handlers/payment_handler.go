package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// CheckoutRequest is the form-encoded checkout payload.
type CheckoutRequest struct {
	Credits int    `form:"credits"  binding:"required" example:"3"`
	HostURL string `form:"host_url" binding:"required" example:"https://app.dogbloodgpt.com"`
}

// CheckoutResponse points the browser at the hosted checkout.
type CheckoutResponse struct {
	URL       string `json:"url"`
	SessionID string `json:"session_id"`
}

// PaymentStatusResponse is the gateway's view of a session.
type PaymentStatusResponse struct {
	Status        string `json:"status" example:"complete"`
	PaymentStatus string `json:"payment_status" example:"paid"`
	AmountTotal   int64  `json:"amount_total" example:"9700"`
	Currency      string `json:"currency" example:"usd"`
}

// WebhookResponse acknowledges a delivery.
type WebhookResponse struct {
	Status string `json:"status" example:"success"`
}

// CreateCheckout godoc
// @ID          createCheckout
// @Summary     Buy credits
// @Description Opens a hosted checkout for the authenticated user. Credits are granted once the payment is confirmed by a status poll or webhook.
// @Tags        Payments
// @Accept      x-www-form-urlencoded
// @Produce     json
// @Security    BearerAuth
// @Param       credits   formData  int     true  "Credits to buy"
// @Param       host_url  formData  string  true  "Frontend origin for return URLs"
// @Success     200  {object}  handlers.CheckoutResponse
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     401  {object}  handlers.ErrorResponse
// @Failure     500  {object}  handlers.ErrorResponse  "Payment gateway error"
// @Router      /payments/create-checkout [post]
func (h *Handlers) CreateCheckout(c *gin.Context) {
	var req CheckoutRequest
	if err := c.ShouldBind(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeInvalidInput, "credits and host_url are required")
		return
	}
	co, err := h.payments.CreateCheckout(c.Request.Context(), userID(c), req.Credits, req.HostURL)
	if err != nil {
		writeServiceError(c, err, "")
		return
	}
	ok(c, http.StatusOK, CheckoutResponse{URL: co.URL, SessionID: co.SessionID})
}

// PaymentStatus godoc
// @ID          paymentStatus
// @Summary     Checkout status
// @Description Reports the session status and grants the purchased credits the first time it is seen paid.
// @Tags        Payments
// @Produce     json
// @Param       session_id  path      string  true  "Checkout session ID"
// @Success     200         {object}  handlers.PaymentStatusResponse
// @Failure     500         {object}  handlers.ErrorResponse  "Gateway or lookup error"
// @Router      /payments/status/{session_id} [get]
func (h *Handlers) PaymentStatus(c *gin.Context) {
	st, err := h.payments.Status(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		writeServiceError(c, err, "")
		return
	}
	ok(c, http.StatusOK, PaymentStatusResponse{
		Status:        st.Status,
		PaymentStatus: st.PaymentStatus,
		AmountTotal:   st.AmountTotal,
		Currency:      st.Currency,
	})
}

// StripeWebhook godoc
// @ID          stripeWebhook
// @Summary     Payment webhook
// @Tags        Payments
// @Accept      json
// @Produce     json
// @Param       Stripe-Signature  header  string  true  "Webhook signature"
// @Success     200  {object}  handlers.WebhookResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Signature or payload invalid"
// @Router      /webhook/stripe [post]
func (h *Handlers) StripeWebhook(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxWebhookBytes))
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			fail(c, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "payload too large")
			return
		}
		fail(c, http.StatusBadRequest, ErrCodeInvalidWebhook, "could not read payload")
		return
	}
	sig := strings.TrimSpace(c.GetHeader("Stripe-Signature"))
	if sig == "" {
		fail(c, http.StatusBadRequest, ErrCodeInvalidWebhook, "missing Stripe-Signature header")
		return
	}
	if err := h.payments.HandleWebhook(c.Request.Context(), body, sig); err != nil {
		writeServiceError(c, err, "")
		return
	}
	ok(c, http.StatusOK, WebhookResponse{Status: "success"})
}
