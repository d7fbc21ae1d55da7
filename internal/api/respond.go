package api

import (
	"errors"
	"net/http"

	"bistro/server/internal/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var statusBySentinel = []struct {
	err    error
	status int
}{
	{services.ErrInvalidCart, http.StatusBadRequest},
	{services.ErrInvalidInput, http.StatusBadRequest},
	{services.ErrInvalidRecipe, http.StatusBadRequest},
	{services.ErrUnknownIngredient, http.StatusBadRequest},
	{services.ErrServiceBusy, http.StatusServiceUnavailable},
	{services.ErrInsufficientStock, http.StatusConflict},
	{services.ErrDuplicateSubmission, http.StatusConflict},
	{services.ErrIngredientInUse, http.StatusConflict},
	{services.ErrOrderImmutable, http.StatusConflict},
	{services.ErrInsufficientCash, http.StatusPaymentRequired},
	{services.ErrPaymentGatewayFailure, http.StatusPaymentRequired},
	{services.ErrNotFound, http.StatusNotFound},
	{services.ErrForbidden, http.StatusForbidden},
	{services.ErrConsistencyViolation, http.StatusInternalServerError},
}

// statusFor HTTP код для ошибки ядра
func statusFor(err error) int {
	for _, s := range statusBySentinel {
		if errors.Is(err, s.err) {
			return s.status
		}
	}
	return http.StatusInternalServerError
}

// respondError единый ответ об ошибке: error, reason, details
func respondError(c *gin.Context, log *zap.Logger, err error) {
	status := statusFor(err)
	body := gin.H{"error": err.Error()}

	var rej *services.RejectionError
	if errors.As(err, &rej) {
		body["reason"] = rej.Reason
		if len(rej.Details) > 0 {
			body["details"] = rej.Details
		}
	} else if reason, ok := services.ReasonOf(err); ok {
		body["reason"] = reason
	}
	var shortage *services.InsufficientStockError
	if errors.As(err, &shortage) {
		body["shortages"] = shortage.Shortages
	}

	if status >= http.StatusInternalServerError {
		log.Error("❌ Ошибка обработки запроса",
			zap.String("path", c.FullPath()), zap.Error(err))
		body["error"] = "internal error"
	}
	c.JSON(status, body)
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "Неверные параметры запроса",
		"details": err.Error(),
	})
}
