package controllers

import (
	"encoding/base64"
	"net/http"

	"github.com/gin-gonic/gin"

	"wisdomwalk/pkg/consts"
	"wisdomwalk/pkg/entities"
	"wisdomwalk/pkg/middlewares"
	"wisdomwalk/pkg/usecases"
	"wisdomwalk/utilities"
)

type NotificationController struct {
	router      *gin.RouterGroup
	useCases    usecases.NotificationUsecaseImply
	middleWares *middlewares.Middlewares
}

// NewNotificationController
func NewNotificationController(
	router *gin.RouterGroup, notificationUseCases usecases.NotificationUsecaseImply,
	middleWare *middlewares.Middlewares,
) *NotificationController {
	return &NotificationController{
		router:      router,
		useCases:    notificationUseCases,
		middleWares: middleWare,
	}
}

// InitRoutes
func (n *NotificationController) InitRoutes() {
	verified := authorized(n.router, n.middleWares)
	{
		verified.GET("/notifications", n.GetNotifications)
		verified.GET("/notifications/unread-count", n.UnreadCount)
		verified.PUT("/notifications/read-all", n.MarkAllRead)
		verified.PUT("/notifications/:id/read", n.MarkRead)
		verified.DELETE("/notifications/:id", n.DeleteNotification)
	}
}

// GetNotifications lists the caller's notifications, newest first. The page
// state is the opaque base64 token returned as pagination_meta_data.next.
func (n *NotificationController) GetNotifications(ctx *gin.Context) {
	log := utilities.NewLogger("GetNotifications")
	pageState := ctx.Query("page_state")

	numPageSize, err := queryInt(ctx, "page_size", consts.DefaultPageSize)
	if err != nil {
		fail(ctx, log, err)
		return
	}

	// decoding base64 encoded page state to []byte
	currPageState, err := base64.URLEncoding.DecodeString(pageState)
	if err != nil {
		fail(ctx, log, &entities.AppError{Kind: entities.KindValidation, Message: "incorrect page state format", Err: err})
		return
	}

	data, nextPageState, err := n.useCases.GetNotifications(ctx, caller(ctx), numPageSize, currPageState)
	if err != nil {
		fail(ctx, log, err)
		return
	}

	ctx.JSON(
		http.StatusOK, entities.Response{
			Success: true,
			Message: "Successfully fetched notifications",
			PaginationMetaData: &entities.PaginationMetaData{
				Size:     len(data),
				PageSize: numPageSize,
				Next:     base64.URLEncoding.EncodeToString(nextPageState),
				Prev:     pageState,
			},
			Data: data,
		},
	)
}

func (n *NotificationController) UnreadCount(ctx *gin.Context) {
	log := utilities.NewLogger("NotificationUnreadCount")

	count, err := n.useCases.UnreadCount(ctx, caller(ctx))
	if err != nil {
		fail(ctx, log, err)
		return
	}

	ok(ctx, http.StatusOK, "Successfully fetched unread count", entities.NotificationCount{Unread: count})
}

func (n *NotificationController) MarkRead(ctx *gin.Context) {
	log := utilities.NewLogger("MarkNotificationRead")

	if err := n.useCases.MarkRead(ctx, caller(ctx), ctx.Param("id")); err != nil {
		fail(ctx, log, err)
		return
	}

	ok(ctx, http.StatusOK, "Notification marked as read", nil)
}

func (n *NotificationController) MarkAllRead(ctx *gin.Context) {
	log := utilities.NewLogger("MarkAllNotificationsRead")

	count, err := n.useCases.MarkAllRead(ctx, caller(ctx))
	if err != nil {
		fail(ctx, log, err)
		return
	}

	ok(ctx, http.StatusOK, "Notifications marked as read", map[string]int{"updated": count})
}

func (n *NotificationController) DeleteNotification(ctx *gin.Context) {
	log := utilities.NewLogger("DeleteNotification")

	if err := n.useCases.DeleteNotification(ctx, caller(ctx), ctx.Param("id")); err != nil {
		fail(ctx, log, err)
		return
	}

	ok(ctx, http.StatusOK, "Notification deleted", nil)
}
