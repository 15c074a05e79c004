package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/grupo-shop/orderflow/internal/lifecycle"
)

var statusByCode = map[lifecycle.Code]int{
	lifecycle.CodeInvalidArgument:    http.StatusBadRequest,
	lifecycle.CodeNotFound:           http.StatusNotFound,
	lifecycle.CodeConflict:           http.StatusConflict,
	lifecycle.CodeExpired:            http.StatusBadRequest,
	lifecycle.CodeSignatureInvalid:   http.StatusBadRequest,
	lifecycle.CodePaymentNotCaptured: http.StatusBadRequest,
	lifecycle.CodeAmountMismatch:     http.StatusBadRequest,
	lifecycle.CodeCurrencyMismatch:   http.StatusBadRequest,
	lifecycle.CodeInternal:           http.StatusInternalServerError,
}

// HTTPStatus maps an engine error to its response status.
func HTTPStatus(err error) int {
	if s, ok := statusByCode[lifecycle.CodeOf(err)]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// writeError renders err as {error, code[, details]}. Internal causes are
// logged and replaced by the operation's generic message.
func (h *Handler) writeError(c *gin.Context, err error) {
	status := HTTPStatus(err)
	code := lifecycle.CodeOf(err)

	var e *lifecycle.Error
	msg := "Internal server error"
	if errors.As(err, &e) {
		msg = e.Msg
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String(requestIDKey, c.GetString(requestIDKey)),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(status, gin.H{"error": msg, "request_id": c.GetString(requestIDKey)})
		return
	}

	body := gin.H{"error": msg, "code": code}
	if e != nil && len(e.Details) > 0 {
		body["details"] = e.Details
	}
	c.JSON(status, body)
}
