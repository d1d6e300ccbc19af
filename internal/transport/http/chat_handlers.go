package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/duochat/duochat-server/internal/store"
)

// ChatHandlers provides HTTP handlers for chat sessions and history.
type ChatHandlers struct {
	store store.Store
	log   *zerolog.Logger
}

// NewChatHandlers creates a new chat handlers instance.
func NewChatHandlers(st store.Store, logger *zerolog.Logger) *ChatHandlers {
	return &ChatHandlers{
		store: st,
		log:   logger,
	}
}

// CreateSessionRequest represents the create session request body.
type CreateSessionRequest struct {
	TargetUserID int64 `json:"target_user_id" binding:"required"`
}

// ParticipantResponse represents an active room member in API responses.
type ParticipantResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// SessionResponse represents the created or reused chat session.
type SessionResponse struct {
	RoomID       int64                 `json:"room_id"`
	Participants []ParticipantResponse `json:"participants"`
}

// MessageResponse represents a message in history responses.
type MessageResponse struct {
	ID        int64  `json:"id"`
	User      string `json:"user"`
	Message   string `json:"message"`
	CreatedAt string `json:"created_at"`
}

// CreateSession finds or creates the room between the caller and the target
// user. An existing room is reused when both users still hold active
// participant rows in it.
// POST /api/chat/session
func (h *ChatHandlers) CreateSession(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		h.log.Error().Msg("user_id not found in context")
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid create session request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	ctx := c.Request.Context()

	target, err := h.store.GetUserByID(ctx, req.TargetUserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "user not found"})
			return
		}
		h.log.Error().Err(err).Int64("target_user_id", req.TargetUserID).Msg("failed to load target user")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	current, err := h.store.GetUserByID(ctx, userID)
	if err != nil {
		h.log.Error().Err(err).Int64("user_id", userID).Msg("failed to load current user")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	room, err := h.store.FindRoomBetween(ctx, userID, req.TargetUserID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		h.log.Error().Err(err).Msg("failed to look up existing room")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	if room == nil {
		name := fmt.Sprintf("Chat between %s and %s", current.Fullname, target.Fullname)
		room, err = h.store.CreateRoom(ctx, name, "Private chat room")
		if err != nil {
			h.log.Error().Err(err).Msg("failed to create room")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
			return
		}

		for _, uid := range []int64{userID, req.TargetUserID} {
			if _, _, err := h.store.UpsertParticipant(ctx, room.ID, uid); err != nil {
				h.log.Error().Err(err).Int64("room_id", room.ID).Int64("user_id", uid).Msg("failed to add participant")
				c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
				return
			}
		}
	}

	members, err := h.store.ListActiveParticipants(ctx, room.ID)
	if err != nil {
		h.log.Error().Err(err).Int64("room_id", room.ID).Msg("failed to list participants")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	participants := make([]ParticipantResponse, 0, len(members))
	for _, m := range members {
		participants = append(participants, ParticipantResponse{ID: m.UserID, Name: m.Name})
	}

	h.log.Info().Int64("room_id", room.ID).Int64("user_id", userID).Int64("target_user_id", req.TargetUserID).Msg("chat session ready")
	c.JSON(http.StatusCreated, SessionResponse{
		RoomID:       room.ID,
		Participants: participants,
	})
}

// ListRoomMessages returns the room's history in creation order. Only
// active participants may read it.
// GET /api/chat/:room_id/messages
func (h *ChatHandlers) ListRoomMessages(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		h.log.Error().Msg("user_id not found in context")
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}

	roomID, err := strconv.ParseInt(c.Param("room_id"), 10, 64)
	if err != nil || roomID <= 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid room id"})
		return
	}

	ctx := c.Request.Context()

	active, err := h.store.IsActiveParticipant(ctx, roomID, userID)
	if err != nil {
		h.log.Error().Err(err).Int64("room_id", roomID).Msg("failed to check participation")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}
	if !active {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "you are not a participant of this room"})
		return
	}

	messages, err := h.store.ListMessages(ctx, roomID)
	if err != nil {
		h.log.Error().Err(err).Int64("room_id", roomID).Msg("failed to list messages")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	response := make([]MessageResponse, 0, len(messages))
	for _, msg := range messages {
		response = append(response, MessageResponse{
			ID:        msg.ID,
			User:      msg.AuthorName,
			Message:   msg.Body,
			CreatedAt: msg.CreatedAt.Format(time.RFC3339),
		})
	}

	c.JSON(http.StatusOK, response)
}
