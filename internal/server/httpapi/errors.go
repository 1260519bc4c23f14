// Package httpapi exposes the sharing subsystem over a JSON REST API built
// on gin. Every failure crossing this boundary is classified onto the error
// taxonomy, so clients always receive a stable code and a retryable hint.
package httpapi

import (
	"errors"
	"net/http"

	"github.com/avolkovs/vaultshare/internal/common"
	"github.com/gin-gonic/gin"
)

type errorBody struct {
	Code      common.Kind `json:"code"`
	Message   string      `json:"message"`
	Retryable bool        `json:"retryable"`
}

var kindStatus = map[common.Kind]int{
	common.KindInvalidPermissions:      http.StatusBadRequest,
	common.KindInsufficientPermissions: http.StatusForbidden,
	common.KindShareLimitExceeded:      http.StatusForbidden,
	common.KindUserNotFound:            http.StatusNotFound,
	common.KindContainerNotFound:       http.StatusNotFound,
	common.KindShareNotFound:           http.StatusNotFound,
	common.KindShareAlreadyExists:      http.StatusConflict,
	common.KindInvalidTransition:       http.StatusConflict,
	common.KindConflict:                http.StatusConflict,
	common.KindShareExpired:            http.StatusGone,
	common.KindContainerNotAccessible:  http.StatusLocked,
	common.KindSharingDisabled:         http.StatusServiceUnavailable,
	common.KindUnknown:                 http.StatusInternalServerError,
}

// writeError classifies err and renders the taxonomy envelope.
func writeError(c *gin.Context, err error) {
	if errors.Is(err, common.ErrorNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": errorBody{
			Code:      "NOT_FOUND",
			Message:   "not found",
			Retryable: false,
		}})
		return
	}

	classified := common.Classify(err)
	status, ok := kindStatus[classified.Kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	message := classified.Message
	if classified.Kind == common.KindUnknown {
		// do not leak internals
		message = "internal error"
	}
	c.JSON(status, gin.H{"error": errorBody{
		Code:      classified.Kind,
		Message:   message,
		Retryable: classified.Retryable,
	}})
}

// writeBadRequest renders malformed request input using the same envelope
// shape as taxonomy errors.
func writeBadRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": errorBody{
		Code:      "BAD_REQUEST",
		Message:   msg,
		Retryable: false,
	}})
}
