package handlers

import (
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"chat-realtime/internal/apperrors"
	"chat-realtime/internal/models"
	"chat-realtime/internal/realtime"
	"chat-realtime/internal/telemetry"
)

// GroupHandler exposes read-side group endpoints over REST. Mutations go
// through the websocket gateway.
type GroupHandler struct {
	groups   *realtime.GroupService
	messages *realtime.MessageService
	registry *realtime.Registry
	audit    *telemetry.AuditEmitter
}

// NewGroupHandler constructs a GroupHandler.
func NewGroupHandler(groups *realtime.GroupService, messages *realtime.MessageService, registry *realtime.Registry, audit *telemetry.AuditEmitter) *GroupHandler {
	return &GroupHandler{
		groups:   groups,
		messages: messages,
		registry: registry,
		audit:    audit,
	}
}

// ListGroups returns groups the caller belongs to.
func (h *GroupHandler) ListGroups(c *gin.Context) {
	groups, err := h.groups.ListForUser(c.Request.Context(), c.GetString("userID"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

// GetGroup returns one group if the caller is a member.
func (h *GroupHandler) GetGroup(c *gin.Context) {
	group, err := h.groups.Get(c.Request.Context(), c.GetString("userID"), c.Param("group_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"group": group})
}

// GetGroupMessages returns one page of history, oldest first.
func (h *GroupHandler) GetGroupMessages(c *gin.Context) {
	page, err := queryInt(c, "page")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid page"})
		return
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}

	result, err := h.messages.List(c.Request.Context(), c.GetString("userID"), models.GetMessagesRequest{
		GroupID: c.Param("group_id"),
		Page:    page,
		Limit:   limit,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// DeleteMessage hides a message for the caller, or deletes it for everyone
// when forEveryone=true and the caller is the sender.
func (h *GroupHandler) DeleteMessage(c *gin.Context) {
	forEveryone := c.Query("forEveryone") == "true"
	msg, err := h.messages.Delete(c.Request.Context(), c.GetString("userID"), c.Param("message_id"), forEveryone)
	if err != nil {
		h.emitAudit(c, "ERROR", "message delete failed")
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": msg})
}

// GetPresence reports whether a user currently has a live session.
func (h *GroupHandler) GetPresence(c *gin.Context) {
	userID := c.Param("user_id")
	if !realtime.ValidIdentity(userID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	c.JSON(http.StatusOK, h.registry.Presence(userID))
}

func (h *GroupHandler) writeError(c *gin.Context, err error) {
	appErr := apperrors.From(err)
	if appErr.Code == apperrors.CodeInternal {
		log.Printf("request failed: method=%s path=%s user_id=%s err=%v", c.Request.Method, c.FullPath(), c.GetString("userID"), err)
	}
	c.JSON(appErr.Code.HTTPStatus(), gin.H{"error": apperrors.PublicMessage(appErr), "code": appErr.Code})
}

func (h *GroupHandler) emitAudit(c *gin.Context, level, text string) {
	if h.audit == nil {
		return
	}
	h.audit.Emit(c.Request.Context(), level, text, requestIDFromContext(c), userIDFromContext(c))
}

func queryInt(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
