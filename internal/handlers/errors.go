package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"esadad-service/internal/encryption"
	"esadad-service/internal/gateway"
	"esadad-service/internal/ledger"
	"esadad-service/internal/services"
	"esadad-service/pkg/common"
)

const gatewayUnavailableMessage = "Payment gateway is unavailable, please try again later"

// writeError maps service errors to HTTP responses. Transport detail stays in
// the logs.
func writeError(c *gin.Context, log logrus.FieldLogger, err error) {
	var (
		validation *services.ValidationError
		encErr     *encryption.EncryptionError
	)

	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, common.NewErrorResponse(validation.Err.Error(), nil, http.StatusBadRequest))
	case errors.Is(err, services.ErrSessionExpired), errors.Is(err, services.ErrSessionBusy):
		c.JSON(http.StatusConflict, common.NewErrorResponse(err.Error(), nil, http.StatusConflict))
	case errors.Is(err, ledger.ErrNotFound):
		c.JSON(http.StatusNotFound, common.NewErrorResponse(err.Error(), nil, http.StatusNotFound))
	case gateway.IsTransportError(err):
		log.WithError(err).Error("eSADAD gateway call failed")
		c.JSON(http.StatusBadGateway, common.NewErrorResponse(gatewayUnavailableMessage, nil, http.StatusBadGateway))
	case errors.As(err, &encErr):
		log.WithError(err).Error("eSADAD encryption failed")
		c.JSON(http.StatusInternalServerError, common.NewErrorResponse("Unable to secure payment details", nil, http.StatusInternalServerError))
	default:
		log.WithError(err).Error("eSADAD request failed")
		c.JSON(http.StatusInternalServerError, common.NewErrorResponse("Internal server error", nil, http.StatusInternalServerError))
	}
}

func writeBusinessError(c *gin.Context, resp *gateway.Response) {
	c.JSON(http.StatusUnprocessableEntity, common.NewErrorResponse(resp.ErrorDescription, gin.H{
		"error_code":        resp.ErrorCode,
		"error_description": resp.ErrorDescription,
	}, http.StatusUnprocessableEntity))
}
