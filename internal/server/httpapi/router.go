package httpapi

import (
	"errors"
	"strconv"

	sc "github.com/avolkovs/vaultshare/internal/server/config"
	"github.com/avolkovs/vaultshare/internal/server/services"
	"github.com/gin-gonic/gin"
)

var errInvalidQuery = errors.New("invalid query parameter")

func parsePositiveInt(raw string) (int, error) {
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return 0, errInvalidQuery
	}
	return parsed, nil
}

// NewRouter wires every API route onto a gin engine. All routes require a
// bearer token.
func NewRouter(cfg *sc.Config, shares *services.ShareService, audit *services.AuditService,
	notifications *services.NotificationService) *gin.Engine {

	router := gin.New()
	router.Use(gin.Recovery())

	api := router.Group("/api")
	api.Use(AuthMiddleware([]byte(cfg.SecretKey)))

	shareGroup := api.Group("/shares")
	{
		shareGroup.POST("", handleCreateShare(shares))
		shareGroup.GET("/outgoing", handleListOutgoing(shares))
		shareGroup.GET("/incoming", handleListIncoming(shares))
		shareGroup.GET("/stats", handleStats(shares))
		shareGroup.POST("/status", handleStatusUpdates(shares))

		shareGroup.GET("/:id", handleGetShare(shares))
		shareGroup.POST("/:id/accept", handleTransition(shares.Accept))
		shareGroup.POST("/:id/decline", handleTransition(shares.Decline))
		shareGroup.POST("/:id/revoke", handleTransition(shares.Revoke))
		shareGroup.PUT("/:id/permissions", handleUpdatePermissions(shares))
		shareGroup.PUT("/:id/expiration", handleUpdateExpiration(shares))
		shareGroup.POST("/:id/access", handleRecordAccess(shares))
		shareGroup.GET("/:id/audit", handleShareTrail(audit))

		bulk := shareGroup.Group("/bulk")
		bulk.POST("/accept", handleBulk(shares.BulkAccept))
		bulk.POST("/decline", handleBulk(shares.BulkDecline))
		bulk.POST("/revoke", handleBulk(shares.BulkRevoke))
	}

	recipients := api.Group("/recipients")
	{
		recipients.GET("/search", handleSearchRecipients(shares))
		recipients.POST("/validate", handleValidateRecipient(shares))
	}

	notificationGroup := api.Group("/notifications")
	{
		notificationGroup.GET("", handleListNotifications(notifications))
		notificationGroup.POST("/read-all", handleMarkAllRead(notifications))
		notificationGroup.POST("/:id/read", handleMarkRead(notifications))
	}

	api.GET("/preferences", handleGetPreferences(notifications))
	api.PUT("/preferences", handleUpdatePreferences(notifications))

	auditGroup := api.Group("/audit")
	{
		auditGroup.GET("", handleQueryAudit(audit))
		auditGroup.POST("", handleAppendAudit(audit))
		auditGroup.GET("/summary", handleAuditSummary(audit))
		auditGroup.POST("/export", handleAuditExport(audit))
	}

	return router
}
