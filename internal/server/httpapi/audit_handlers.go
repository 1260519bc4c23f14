package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/avolkovs/vaultshare/internal/server/models"
	"github.com/avolkovs/vaultshare/internal/server/services"
	"github.com/gin-gonic/gin"
)

// auditFilterFromQuery builds an AuditFilter from query parameters. The
// actor's user id is forced so a caller can only read their own activity;
// per-share trails have their own party check instead.
func auditFilterFromQuery(c *gin.Context, actor services.Identity) (models.AuditFilter, error) {
	filter := models.AuditFilter{
		ShareID:     c.Query("share_id"),
		ContainerID: c.Query("container_id"),
		EventType:   models.EventType(c.Query("event_type")),
		UserID:      actor.UserID,
	}

	if raw := c.Query("start_date"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, err
		}
		filter.StartDate = parsed
	}
	if raw := c.Query("end_date"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, err
		}
		filter.EndDate = parsed
	}
	if raw := c.Query("limit"); raw != "" {
		parsed, err := parsePositiveInt(raw)
		if err != nil {
			return filter, err
		}
		filter.Limit = parsed
	}
	if raw := c.Query("offset"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return filter, errInvalidQuery
		}
		filter.Offset = parsed
	}
	return filter, nil
}

type appendAuditRequest struct {
	EventType     string            `json:"event_type" binding:"required"`
	ShareID       string            `json:"share_id" binding:"required"`
	ContainerID   string            `json:"container_id"`
	ContainerName string            `json:"container_name"`
	Details       map[string]string `json:"details"`
	ClientMeta    map[string]string `json:"client_meta"`
}

// handleAppendAudit records an externally observed event, e.g. a container
// access reported by the mount engine. The actor always comes from the token.
func handleAppendAudit(audit *services.AuditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req appendAuditRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeBadRequest(c, "event_type and share_id are required")
			return
		}
		actor := identity(c)
		event := &models.AuditEvent{
			Type:          models.EventType(req.EventType),
			ShareID:       req.ShareID,
			ActorUserID:   actor.UserID,
			ActorUsername: actor.Username,
			ContainerID:   req.ContainerID,
			ContainerName: req.ContainerName,
			Details:       req.Details,
			ClientMeta:    req.ClientMeta,
		}
		if err := audit.Append(c.Request.Context(), event); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, event)
	}
}

func handleQueryAudit(audit *services.AuditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		filter, err := auditFilterFromQuery(c, identity(c))
		if err != nil {
			writeBadRequest(c, "invalid query parameters")
			return
		}
		events, total, err := audit.Query(c.Request.Context(), filter)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"events": events, "total": total})
	}
}

func handleShareTrail(audit *services.AuditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		events, err := audit.Trail(c.Request.Context(), identity(c), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"events": events})
	}
}

func handleAuditSummary(audit *services.AuditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		filter, err := auditFilterFromQuery(c, identity(c))
		if err != nil {
			writeBadRequest(c, "invalid query parameters")
			return
		}
		summary, err := audit.Summary(c.Request.Context(), filter)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

func handleAuditExport(audit *services.AuditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		filter, err := auditFilterFromQuery(c, identity(c))
		if err != nil {
			writeBadRequest(c, "invalid query parameters")
			return
		}
		export, err := audit.Export(c.Request.Context(), filter)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, export)
	}
}
