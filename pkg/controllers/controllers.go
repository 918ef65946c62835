package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"

	"wisdomwalk/config"
	"wisdomwalk/pkg/consts"
	"wisdomwalk/pkg/entities"
	"wisdomwalk/pkg/middlewares"
	"wisdomwalk/pkg/usecases"
)

func init() {
	// request bodies are closed structs
	binding.EnableDecoderDisallowUnknownFields = true
}

type Controller struct {
	router      *gin.RouterGroup
	useCases    usecases.UseCaseImply
	middleWares *middlewares.Middlewares
}

// NewController
func NewController(
	router *gin.RouterGroup, useCases usecases.UseCaseImply, middleWare *middlewares.Middlewares,
) *Controller {
	return &Controller{
		router:      router,
		useCases:    useCases,
		middleWares: middleWare,
	}
}

// InitRoutes
func (c *Controller) InitRoutes() {
	c.router.GET("/", c.RootHandler)
	c.router.GET("/health", c.HealthHandler)
	c.router.GET("/db/health", c.DatabaseHealthHandler)
}

func (c *Controller) RootHandler(ctx *gin.Context) {
	ctx.JSON(
		http.StatusOK, entities.Response{
			Success: true,
			Message: "Welcome to the WisdomWalk API! Please refer to the documentation for information on available endpoints.",
		},
	)
}

// HealthHandler
func (c *Controller) HealthHandler(ctx *gin.Context) {
	ctx.JSON(
		http.StatusOK, entities.Response{
			Success: true,
			Message: "Health check ok",
		},
	)
}

func (c *Controller) DatabaseHealthHandler(ctx *gin.Context) {
	if err := c.useCases.DBHealthHandler(ctx); err != nil {
		logrus.WithError(err).Error("database health check failed")
		ctx.JSON(
			http.StatusServiceUnavailable, entities.ErrorResponse{
				Success: false,
				Message: "unhealthy database",
			},
		)
		return
	}

	ctx.JSON(
		http.StatusOK, entities.Response{
			Success: true,
			Message: "database health is okay",
		},
	)
}

// authorized returns the group whose handlers require a valid token and a
// caller that passes the access gate.
func authorized(router *gin.RouterGroup, m *middlewares.Middlewares) *gin.RouterGroup {
	return router.Group("", m.ValidateToken, m.VerifyUserAccess)
}

func caller(ctx *gin.Context) string {
	return ctx.GetString(consts.UserID)
}

// exposeErrors reports whether internal error text may be returned to
// clients.
func exposeErrors() bool {
	conf := config.GetConfig()
	return conf == nil || conf.Mode != consts.ModeProduction
}

// fail writes the error response for err. Unexpected errors are logged at
// error level, everything else is a client mistake.
func fail(ctx *gin.Context, log *logrus.Entry, err error) {
	kind := entities.KindOf(err)
	if kind == entities.KindUnexpected {
		log.WithError(err).Error("request failed")
	} else {
		log.WithError(err).Debugf("request rejected: %s", kind)
	}

	resp := entities.ErrorResponse{
		Success: false,
		Message: entities.PublicMessage(err),
	}
	if exposeErrors() {
		resp.Error = err.Error()
	}

	ctx.JSON(kind.HTTPStatus(), resp)
}

func bind(ctx *gin.Context, req interface{}) error {
	if err := ctx.ShouldBindJSON(req); err != nil {
		return &entities.AppError{Kind: entities.KindValidation, Message: "invalid request body", Err: err}
	}
	return nil
}

// queryInt reads a non negative integer query parameter.
func queryInt(ctx *gin.Context, key, def string) (int, error) {
	n, err := cast.ToIntE(ctx.DefaultQuery(key, def))
	if err != nil || n < 0 {
		return 0, entities.NewValidationError("%s must be a non negative integer", key)
	}
	return n, nil
}

func ok(ctx *gin.Context, status int, message string, data interface{}) {
	ctx.JSON(
		status, entities.Response{
			Success: true,
			Message: message,
			Data:    data,
		},
	)
}
