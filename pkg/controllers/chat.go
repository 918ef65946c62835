package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"wisdomwalk/pkg/entities"
	"wisdomwalk/pkg/middlewares"
	"wisdomwalk/pkg/usecases"
	"wisdomwalk/utilities"
)

type ChatController struct {
	router      *gin.RouterGroup
	useCases    usecases.ChatUseCaseImply
	middleWares *middlewares.Middlewares
}

func NewChatController(
	router *gin.RouterGroup, chatUseCase usecases.ChatUseCaseImply, middleWare *middlewares.Middlewares,
) *ChatController {
	return &ChatController{
		router:      router,
		useCases:    chatUseCase,
		middleWares: middleWare,
	}
}

// InitRoutes initializes the conversation and message routes.
func (c *ChatController) InitRoutes() {
	verified := authorized(c.router, c.middleWares)
	{
		verified.GET("/chats", c.ListConversations)
		verified.POST("/chats/direct", c.DirectConversation)
		verified.GET("/chats/:id", c.GetConversation)
		verified.DELETE("/chats/:id", c.DeleteConversation)
		verified.GET("/chats/:id/messages", c.GetMessages)
		verified.POST("/chats/:id/messages", c.SendMessage)
		verified.GET("/chats/:id/messages/search", c.SearchMessages)
		verified.POST("/chats/:id/read", c.MarkAsRead)
		verified.GET("/chats/:id/unread", c.UnreadCount)
		verified.POST("/chats/:id/mute", c.MuteConversation)
		verified.POST("/chats/:id/unmute", c.UnmuteConversation)
		verified.POST("/chats/:id/pin/:messageId", c.PinMessage)
		verified.DELETE("/chats/:id/pin/:messageId", c.UnpinMessage)

		verified.PUT("/messages/:id", c.EditMessage)
		verified.DELETE("/messages/:id", c.DeleteMessage)
		verified.POST("/messages/:id/reaction", c.ReactToMessage)
		verified.POST("/messages/:id/forward", c.ForwardMessage)
	}
}

func (c *ChatController) ListConversations(ctx *gin.Context) {
	log := utilities.NewLogger("ListConversations")
	user := caller(ctx)
	log.Debugf("Received ListConversations request from %s", user)

	res, err := c.useCases.ListConversations(ctx, user)
	if err != nil {
		fail(ctx, log, err)
		return
	}

	ok(ctx, http.StatusOK, "Conversations retrieved successfully.", res)
}

func (c *ChatController) DirectConversation(ctx *gin.Context) {
	log := utilities.NewLogger("DirectConversation")

	req := entities.DirectConversationRequest{}
	if err := bind(ctx, &req); err != nil {
		fail(ctx, log, err)
		return
	}

	res, err := c.useCases.FindOrCreateDirectConversation(ctx, caller(ctx), req.UserID)
	if err != nil {
		fail(ctx, log, err)
		return
	}

	ok(ctx, http.StatusOK, "Conversation retrieved successfully.", res)
}

func (c *ChatController) GetConversation(ctx *gin.Context) {
	log := utilities.NewLogger("GetConversation")

	res, err := c.useCases.GetConversation(ctx, caller(ctx), ctx.Param("id"))
	if err != nil {
		fail(ctx, log, err)
		return
	}

	ok(ctx, http.StatusOK, "Conversation retrieved successfully.", res)
}

func (c *ChatController) DeleteConversation(ctx *gin.Context) {
	log := utilities.NewLogger("DeleteConversation")

	if err := c.useCases.DeleteConversation(ctx, caller(ctx), ctx.Param("id")); err != nil {
		fail(ctx, log, err)
		return
	}

	ok(ctx, http.StatusOK, "Conversation deleted successfully.", nil)
}

// GetMessages pages backwards from the before cursor, newest last.
func (c *ChatController) GetMessages(ctx *gin.Context) {
	log := utilities.NewLogger("GetMessages")

	limit, err := queryInt(ctx, "limit", "0")
	if err != nil {
		fail(ctx, log, err)
		return
	}

	res, err := c.useCases.GetMessages(ctx, caller(ctx), ctx.Param("id"), ctx.Query("before"), limit)
	if err != nil {
		fail(ctx, log, err)
		return
	}

	ok(ctx, http.StatusOK, "Messages retrieved successfully.", res)
}

func (c *ChatController) SendMessage(ctx *gin.Context) {
	log := utilities.NewLogger("SendMessage")

	req := entities.SendMessageRequest{}
	if err := bind(ctx, &req); err != nil {
		fail(ctx, log, err)
		return
	}

	res, err := c.useCases.SendMessage(ctx, caller(ctx), ctx.Param("id"), req)
	if err != nil {
		fail(ctx, log, err)
		return
	}

	ok(ctx, http.StatusCreated, "Message sent successfully.", res)
}

func (c *ChatController) SearchMessages(ctx *gin.Context) {
	log := utilities.NewLogger("SearchMessages")

	res, err := c.useCases.SearchMessages(ctx, caller(ctx), ctx.Param("id"), ctx.Query("q"))
	if err != nil {
		fail(ctx, log, err)
		return
	}

	ok(ctx, http.StatusOK, "Messages retrieved successfully.", res)
}

func (c *ChatController) MarkAsRead(ctx *gin.Context) {
	log := utilities.NewLogger("MarkAsRead")
	id := ctx.Param("id")

	n, err := c.useCases.MarkAsRead(ctx, caller(ctx), id)
	if err != nil {
		fail(ctx, log, err)
		return
	}

	ok(ctx, http.StatusOK, "Messages marked as read.", entities.UnreadCount{ConversationID: id, Count: n})
}

func (c *ChatController) UnreadCount(ctx *gin.Context) {
	log := utilities.NewLogger("UnreadCount")
	id := ctx.Param("id")

	n, err := c.useCases.UnreadCount(ctx, caller(ctx), id)
	if err != nil {
		fail(ctx, log, err)
		return
	}

	ok(ctx, http.StatusOK, "Unread count retrieved successfully.", entities.UnreadCount{ConversationID: id, Count: n})
}

func (c *ChatController) MuteConversation(ctx *gin.Context) {
	c.setMuted(ctx, true)
}

func (c *ChatController) UnmuteConversation(ctx *gin.Context) {
	c.setMuted(ctx, false)
}

func (c *ChatController) setMuted(ctx *gin.Context, muted bool) {
	log := utilities.NewLoggerWithFields("MuteConversation", map[string]interface{}{"muted": muted})

	if err := c.useCases.MuteConversation(ctx, caller(ctx), ctx.Param("id"), muted); err != nil {
		fail(ctx, log, err)
		return
	}

	message := "Conversation unmuted."
	if muted {
		message = "Conversation muted."
	}
	ok(ctx, http.StatusOK, message, nil)
}

func (c *ChatController) PinMessage(ctx *gin.Context) {
	c.setPinned(ctx, true)
}

func (c *ChatController) UnpinMessage(ctx *gin.Context) {
	c.setPinned(ctx, false)
}

func (c *ChatController) setPinned(ctx *gin.Context, pinned bool) {
	log := utilities.NewLoggerWithFields("PinMessage", map[string]interface{}{"pinned": pinned})

	res, err := c.useCases.PinMessage(ctx, caller(ctx), ctx.Param("id"), ctx.Param("messageId"), pinned)
	if err != nil {
		fail(ctx, log, err)
		return
	}

	message := "Message unpinned."
	if pinned {
		message = "Message pinned."
	}
	ok(ctx, http.StatusOK, message, res)
}

func (c *ChatController) EditMessage(ctx *gin.Context) {
	log := utilities.NewLogger("EditMessage")

	req := entities.EditMessageRequest{}
	if err := bind(ctx, &req); err != nil {
		fail(ctx, log, err)
		return
	}

	res, err := c.useCases.EditMessage(ctx, caller(ctx), ctx.Param("id"), req.Content)
	if err != nil {
		fail(ctx, log, err)
		return
	}

	ok(ctx, http.StatusOK, "Message edited successfully.", res)
}

func (c *ChatController) DeleteMessage(ctx *gin.Context) {
	log := utilities.NewLogger("DeleteMessage")

	if err := c.useCases.DeleteMessage(ctx, caller(ctx), ctx.Param("id")); err != nil {
		fail(ctx, log, err)
		return
	}

	ok(ctx, http.StatusOK, "Message deleted successfully.", nil)
}

func (c *ChatController) ReactToMessage(ctx *gin.Context) {
	log := utilities.NewLogger("ReactToMessage")

	req := entities.ReactionRequest{}
	if err := bind(ctx, &req); err != nil {
		fail(ctx, log, err)
		return
	}

	res, err := c.useCases.ReactToMessage(ctx, caller(ctx), ctx.Param("id"), req.Emoji)
	if err != nil {
		fail(ctx, log, err)
		return
	}

	ok(ctx, http.StatusOK, "Reaction "+res.Action+".", res)
}

func (c *ChatController) ForwardMessage(ctx *gin.Context) {
	log := utilities.NewLogger("ForwardMessage")

	req := entities.ForwardRequest{}
	if err := bind(ctx, &req); err != nil {
		fail(ctx, log, err)
		return
	}

	res, err := c.useCases.ForwardMessage(ctx, caller(ctx), ctx.Param("id"), req.ConversationID)
	if err != nil {
		fail(ctx, log, err)
		return
	}

	ok(ctx, http.StatusCreated, "Message forwarded successfully.", res)
}
