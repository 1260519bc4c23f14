package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/avolkovs/vaultshare/internal/server/models"
	"github.com/avolkovs/vaultshare/internal/server/services"
	"github.com/gin-gonic/gin"
)

type createShareRequest struct {
	ContainerID       string              `json:"container_id" binding:"required"`
	RecipientUsername string              `json:"recipient_username" binding:"required"`
	// permissions is validated downstream so the empty set maps onto the
	// INVALID_PERMISSIONS code rather than a generic binding failure
	Permissions []models.Permission `json:"permissions"`
	ExpiresAt   *time.Time          `json:"expires_at"`
	Message     string              `json:"message"`
	MaxAccess   *int                `json:"max_access"`
}

func handleCreateShare(shares *services.ShareService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createShareRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeBadRequest(c, err.Error())
			return
		}

		record, err := shares.Create(c.Request.Context(), identity(c), services.CreateShareRequest{
			ContainerID:       req.ContainerID,
			RecipientUsername: req.RecipientUsername,
			Permissions:       req.Permissions,
			ExpiresAt:         req.ExpiresAt,
			Message:           req.Message,
			MaxAccess:         req.MaxAccess,
			ClientMeta: map[string]string{
				"ip":         c.ClientIP(),
				"user_agent": c.Request.UserAgent(),
			},
		})
		if err != nil {
			writeError(c, err)
			return
		}

		c.JSON(http.StatusCreated, record)
	}
}

func handleGetShare(shares *services.ShareService) gin.HandlerFunc {
	return func(c *gin.Context) {
		record, err := shares.GetShare(c.Request.Context(), identity(c), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, record)
	}
}

func handleListOutgoing(shares *services.ShareService) gin.HandlerFunc {
	return func(c *gin.Context) {
		records, err := shares.ListMyShares(c.Request.Context(), identity(c))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"shares": records})
	}
}

func handleListIncoming(shares *services.ShareService) gin.HandlerFunc {
	return func(c *gin.Context) {
		records, err := shares.ListReceivedShares(c.Request.Context(), identity(c))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"shares": records})
	}
}

func handleTransition(op func(context.Context, services.Identity, string) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := op(c.Request.Context(), identity(c), c.Param("id")); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

type updatePermissionsRequest struct {
	Permissions []models.Permission `json:"permissions" binding:"required"`
}

func handleUpdatePermissions(shares *services.ShareService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req updatePermissionsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeBadRequest(c, err.Error())
			return
		}
		if err := shares.UpdatePermissions(c.Request.Context(), identity(c), c.Param("id"), req.Permissions); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

type updateExpirationRequest struct {
	ExpiresAt time.Time `json:"expires_at" binding:"required"`
}

func handleUpdateExpiration(shares *services.ShareService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req updateExpirationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeBadRequest(c, err.Error())
			return
		}
		if err := shares.ExtendExpiration(c.Request.Context(), identity(c), c.Param("id"), req.ExpiresAt); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func handleRecordAccess(shares *services.ShareService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := shares.RecordAccess(c.Request.Context(), identity(c), c.Param("id")); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func handleStats(shares *services.ShareService) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := shares.GetStats(c.Request.Context(), identity(c))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, stats)
	}
}

type shareIDsRequest struct {
	ShareIDs []string `json:"share_ids" binding:"required"`
}

func handleStatusUpdates(shares *services.ShareService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req shareIDsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeBadRequest(c, err.Error())
			return
		}
		updates, err := shares.StatusUpdates(c.Request.Context(), identity(c), req.ShareIDs)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"updates": updates})
	}
}

func handleBulk(op func(context.Context, services.Identity, []string) *services.BulkResult) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req shareIDsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeBadRequest(c, err.Error())
			return
		}
		c.JSON(http.StatusOK, op(c.Request.Context(), identity(c), req.ShareIDs))
	}
}

func handleSearchRecipients(shares *services.ShareService) gin.HandlerFunc {
	return func(c *gin.Context) {
		query := c.Query("q")
		if query == "" {
			writeBadRequest(c, "query parameter q is required")
			return
		}
		limit := 10
		if raw := c.Query("limit"); raw != "" {
			if parsed, err := parsePositiveInt(raw); err == nil {
				limit = parsed
			}
		}
		users, err := shares.SearchRecipients(c.Request.Context(), query, limit)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"users": users})
	}
}

type validateRecipientRequest struct {
	Username    string `json:"username" binding:"required"`
	ContainerID string `json:"container_id"`
}

func handleValidateRecipient(shares *services.ShareService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req validateRecipientRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeBadRequest(c, err.Error())
			return
		}
		validation, err := shares.ValidateRecipient(c.Request.Context(), identity(c), req.Username, req.ContainerID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, validation)
	}
}
