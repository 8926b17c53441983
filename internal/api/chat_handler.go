package api

import (
	"net/http"

	"gymflow/gym-api/internal/notify"
	"gymflow/gym-api/internal/service"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ChatHandler serves direct messages and the notification socket.
type ChatHandler struct {
	chatService service.ChatService
	hub         *notify.Hub
	errors      errorResponder
}

func NewChatHandler(chatService service.ChatService, hub *notify.Hub, errs errorResponder) *ChatHandler {
	return &ChatHandler{chatService: chatService, hub: hub, errors: errs}
}

type SendMessageRequest struct {
	Receiver       string `json:"receiver"`
	Message        string `json:"message"`
	Image          string `json:"image"`
	IsAlert        bool   `json:"isAlert"`
	RelatedWorkout string `json:"relatedWorkout"`
}

// SendMessage godoc
// @Summary Send a text and/or image message to another user
// @Tags Chat
// @Accept json
// @Produce json
// @Param message body SendMessageRequest true "Message"
// @Success 201 {object} domain.ChatMessage
// @Failure 400 {object} gin.H "Neither text nor image"
// @Router /chat/messages [post]
func (h *ChatHandler) SendMessage(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	var req SendMessageRequest
	if !bindJSON(c, &req) {
		return
	}
	receiverID, err := primitive.ObjectIDFromHex(req.Receiver)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "Destinatário inválido")
		return
	}
	in := service.SendMessageInput{
		ReceiverID: receiverID,
		Message:    req.Message,
		Image:      req.Image,
		IsAlert:    req.IsAlert,
	}
	if req.RelatedWorkout != "" {
		related, err := primitive.ObjectIDFromHex(req.RelatedWorkout)
		if err != nil {
			abortWithError(c, http.StatusBadRequest, "ID de treino inválido")
			return
		}
		in.RelatedWorkout = &related
	}
	msg, err := h.chatService.SendMessage(c.Request.Context(), actor, in)
	if err != nil {
		h.errors.respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *ChatHandler) UploadImage(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	upload, closeFn, err := formUpload(c, "image")
	defer closeFn()
	if err != nil {
		h.errors.respond(c, err)
		return
	}
	url, err := h.chatService.UploadImage(c.Request.Context(), actor, upload)
	if err != nil {
		h.errors.respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"imageUrl": url})
}

func (h *ChatHandler) Conversation(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	otherID, ok := objectIDParam(c, "userId")
	if !ok {
		return
	}
	messages, err := h.chatService.GetConversation(c.Request.Context(), actor, otherID)
	if err != nil {
		h.errors.respond(c, err)
		return
	}
	c.JSON(http.StatusOK, messages)
}

func (h *ChatHandler) MarkRead(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	otherID, ok := objectIDParam(c, "userId")
	if !ok {
		return
	}
	n, err := h.chatService.MarkRead(c.Request.Context(), actor, otherID)
	if err != nil {
		h.errors.respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

func (h *ChatHandler) Contacts(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	contacts, err := h.chatService.ListContacts(c.Request.Context(), actor)
	if err != nil {
		h.errors.respond(c, err)
		return
	}
	c.JSON(http.StatusOK, contacts)
}

// Socket upgrades the request and subscribes the caller to its topics.
func (h *ChatHandler) Socket(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	if err := h.hub.ServeWS(c.Writer, c.Request, actor.ID.Hex(), actor.IsAdmin()); err != nil {
		// The upgrader has already written the HTTP error.
		h.errors.log.WithError(err).WithField("userId", actor.ID.Hex()).Warn("websocket upgrade failed")
	}
}
