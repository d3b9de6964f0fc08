package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"esadad-service/internal/gateway"
	"esadad-service/internal/services"
	"esadad-service/pkg/common"
)

const (
	SessionCookie = "esadad_session"
	SessionHeader = "X-Esadad-Session"
)

type Checkout interface {
	StartPayment(ctx context.Context, in services.StartPaymentInput) (*services.CheckoutSession, *gateway.Response, error)
	VerifyOTP(ctx context.Context, sessionID, otp string) (*services.CheckoutSession, *gateway.Response, error)
	Success(ctx context.Context, sessionID string) (*services.SuccessResult, error)
}

type OTPRequest struct {
	OTP string `json:"otp" binding:"required"`
}

type CheckoutHandler struct {
	checkout   Checkout
	sessionTTL time.Duration
	log        logrus.FieldLogger
}

func NewCheckoutHandler(checkout Checkout, sessionTTL time.Duration, log logrus.FieldLogger) *CheckoutHandler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &CheckoutHandler{checkout: checkout, sessionTTL: sessionTTL, log: log}
}

// StartPayment handles POST /payment.
func (h *CheckoutHandler) StartPayment(c *gin.Context) {
	var req services.StartPaymentInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, common.NewErrorResponse(err.Error(), nil, http.StatusBadRequest))
		return
	}

	session, resp, err := h.checkout.StartPayment(c.Request.Context(), req)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	if !resp.Successful() {
		writeBusinessError(c, resp)
		return
	}

	c.SetCookie(SessionCookie, session.ID, int(h.sessionTTL/time.Second), "/", "", false, true)
	c.JSON(http.StatusOK, common.NewSuccessResponse(gin.H{
		"session_id": session.ID,
		"payment":    session.Payment,
	}, "OTP sent, please confirm the payment"))
}

// VerifyOTP handles POST /otp.
func (h *CheckoutHandler) VerifyOTP(c *gin.Context) {
	var req OTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, common.NewErrorResponse(err.Error(), nil, http.StatusBadRequest))
		return
	}

	session, resp, err := h.checkout.VerifyOTP(c.Request.Context(), sessionID(c), req.OTP)
	if err != nil {
		var pending *services.PendingConfirmationError
		if errors.As(err, &pending) {
			h.log.WithError(pending.Err).Warn("Payment confirmation deferred")
			c.JSON(http.StatusAccepted, common.NewAcceptedResponse(gin.H{
				"session_id":          session.ID,
				"transaction_details": session.Transaction,
				"confirmation_status": "pending",
			}, "Payment received, confirmation is pending"))
			return
		}
		writeError(c, h.log, err)
		return
	}
	if !resp.Successful() {
		writeBusinessError(c, resp)
		return
	}

	c.JSON(http.StatusOK, common.NewSuccessResponse(gin.H{
		"session_id":          session.ID,
		"transaction_details": session.Transaction,
	}, "Payment completed successfully"))
}

// Success handles GET /success.
func (h *CheckoutHandler) Success(c *gin.Context) {
	result, err := h.checkout.Success(c.Request.Context(), sessionID(c))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, common.NewSuccessResponse(result, "success"))
}

func sessionID(c *gin.Context) string {
	if id := c.GetHeader(SessionHeader); id != "" {
		return id
	}
	id, _ := c.Cookie(SessionCookie)
	return id
}
