package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// AskRequest is a follow-up question about an analysis. SessionID is the
// blood test id.
type AskRequest struct {
	Message   string `json:"message"    binding:"required" example:"Is the ALT value concerning?"`
	SessionID string `json:"session_id" binding:"required" example:"6a0e5c1b-2b7e-4a57-bf5e-2f6f3f3c1d9a"`
}

// AskResponse carries the answer.
type AskResponse struct {
	Response string `json:"response"`
}

// ChatMessageResponse is one entry of a conversation.
type ChatMessageResponse struct {
	Role      string    `json:"role" example:"user"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ChatHistoryResponse is the conversation about one analysis, oldest first.
type ChatHistoryResponse struct {
	SessionID string                `json:"session_id"`
	Messages  []ChatMessageResponse `json:"messages"`
}

// Ask godoc
// @ID          askChat
// @Summary     Ask about an analysis
// @Description Answers a follow-up question using the stored test text. Free of charge. The question and answer are appended to the conversation together.
// @Tags        Chat
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       body  body      handlers.AskRequest  true  "Question"
// @Success     200   {object}  handlers.AskResponse
// @Failure     400   {object}  handlers.ErrorResponse
// @Failure     401   {object}  handlers.ErrorResponse
// @Failure     404   {object}  handlers.ErrorResponse  "Blood test not found"
// @Failure     500   {object}  handlers.ErrorResponse  "Analysis service failure"
// @Router      /chat/ask [post]
func (h *Handlers) Ask(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeInvalidInput, "message and session_id are required")
		return
	}
	answer, err := h.chat.Ask(c.Request.Context(), userID(c), req.SessionID, req.Message)
	if err != nil {
		writeServiceError(c, err, notFoundMessage(err))
		return
	}
	ok(c, http.StatusOK, AskResponse{Response: answer})
}

// ChatHistory godoc
// @ID          chatHistory
// @Summary     Conversation about an analysis
// @Tags        Chat
// @Produce     json
// @Security    BearerAuth
// @Param       session_id  path      string  true  "Blood test ID"
// @Success     200         {object}  handlers.ChatHistoryResponse
// @Failure     401         {object}  handlers.ErrorResponse
// @Failure     404         {object}  handlers.ErrorResponse
// @Router      /chat/{session_id}/messages [get]
func (h *Handlers) ChatHistory(c *gin.Context) {
	sessionID := c.Param("session_id")
	msgs, err := h.chat.History(c.Request.Context(), userID(c), sessionID)
	if err != nil {
		writeServiceError(c, err, notFoundMessage(err))
		return
	}
	out := ChatHistoryResponse{SessionID: sessionID, Messages: make([]ChatMessageResponse, 0, len(msgs))}
	for _, m := range msgs {
		out.Messages = append(out.Messages, ChatMessageResponse{Role: m.Role, Content: m.Content, Timestamp: m.CreatedAt})
	}
	ok(c, http.StatusOK, out)
}
