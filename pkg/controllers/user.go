package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"wisdomwalk/pkg/entities"
	"wisdomwalk/pkg/middlewares"
	"wisdomwalk/pkg/usecases"
	"wisdomwalk/utilities"
)

type UserController struct {
	router      *gin.RouterGroup
	useCases    usecases.UserUseCaseImply
	middleWares *middlewares.Middlewares
}

// NewUserController
func NewUserController(router *gin.RouterGroup, userUseCase usecases.UserUseCaseImply, middleWare *middlewares.Middlewares) *UserController {
	return &UserController{
		router:      router,
		useCases:    userUseCase,
		middleWares: middleWare,
	}
}

// InitRoutes initializes the routes for the UserController.
func (user *UserController) InitRoutes() {
	verified := authorized(user.router, user.middleWares)
	{
		verified.GET("/users/me", user.Me)
		verified.GET("/users/blocked", user.ListBlocked)
		verified.POST("/users/devices", user.RegisterDevice)
		verified.POST("/users/:id/block", user.BlockUser)
		verified.DELETE("/users/:id/block", user.UnblockUser)
	}
}

func (user *UserController) Me(ctx *gin.Context) {
	log := utilities.NewLogger("Me")

	res, err := user.useCases.Me(ctx, caller(ctx))
	if err != nil {
		fail(ctx, log, err)
		return
	}

	ok(ctx, http.StatusOK, "User retrieved successfully.", res)
}

func (user *UserController) ListBlocked(ctx *gin.Context) {
	log := utilities.NewLogger("ListBlocked")

	res, err := user.useCases.ListBlocked(ctx, caller(ctx))
	if err != nil {
		fail(ctx, log, err)
		return
	}

	ok(ctx, http.StatusOK, "Blocked users retrieved successfully.", res)
}

// RegisterDevice stores a push token for the caller.
func (user *UserController) RegisterDevice(ctx *gin.Context) {
	log := utilities.NewLogger("RegisterDevice")

	req := entities.DeviceRequest{}
	if err := bind(ctx, &req); err != nil {
		fail(ctx, log, err)
		return
	}

	if err := user.useCases.RegisterDevice(ctx, caller(ctx), req.DeviceID); err != nil {
		fail(ctx, log, err)
		return
	}

	ok(ctx, http.StatusOK, "Device registered successfully.", nil)
}

func (user *UserController) BlockUser(ctx *gin.Context) {
	log := utilities.NewLogger("BlockUser")

	if err := user.useCases.BlockUser(ctx, caller(ctx), ctx.Param("id")); err != nil {
		fail(ctx, log, err)
		return
	}

	ok(ctx, http.StatusOK, "User blocked successfully.", nil)
}

func (user *UserController) UnblockUser(ctx *gin.Context) {
	log := utilities.NewLogger("UnblockUser")

	if err := user.useCases.UnblockUser(ctx, caller(ctx), ctx.Param("id")); err != nil {
		fail(ctx, log, err)
		return
	}

	ok(ctx, http.StatusOK, "User unblocked successfully.", nil)
}
