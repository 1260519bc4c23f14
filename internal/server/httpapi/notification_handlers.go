package httpapi

import (
	"net/http"

	"github.com/avolkovs/vaultshare/internal/server/models"
	"github.com/avolkovs/vaultshare/internal/server/services"
	"github.com/gin-gonic/gin"
)

func handleListNotifications(notifications *services.NotificationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		unreadOnly := c.Query("unread") == "true"
		items, err := notifications.List(c.Request.Context(), identity(c), unreadOnly)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"notifications": items})
	}
}

func handleMarkRead(notifications *services.NotificationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := notifications.MarkRead(c.Request.Context(), identity(c), c.Param("id")); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func handleMarkAllRead(notifications *services.NotificationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		count, err := notifications.MarkAllRead(c.Request.Context(), identity(c))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"marked": count})
	}
}

func handleGetPreferences(notifications *services.NotificationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		prefs, err := notifications.GetPreferences(c.Request.Context(), identity(c))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, prefs)
	}
}

func handleUpdatePreferences(notifications *services.NotificationService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var update models.PreferencesUpdate
		if err := c.ShouldBindJSON(&update); err != nil {
			writeBadRequest(c, err.Error())
			return
		}
		prefs, err := notifications.UpdatePreferences(c.Request.Context(), identity(c), update)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, prefs)
	}
}
