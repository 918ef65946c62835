package controllers

import (
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"wisdomwalk/pkg/middlewares"
	"wisdomwalk/pkg/repo/driver/medium"
	"wisdomwalk/utilities"
)

// GatewayController upgrades authenticated clients to a realtime connection.
// Frames read from the connection are handled by the socket's handler.
type GatewayController struct {
	router      *gin.RouterGroup
	middleWares *middlewares.Middlewares
	ws          *medium.Socket
	upgrader    websocket.Upgrader
}

func NewGatewayController(
	router *gin.RouterGroup, ws *medium.Socket, middleWare *middlewares.Middlewares, readBuffer, writeBuffer int,
) *GatewayController {
	return &GatewayController{
		router:      router,
		middleWares: middleWare,
		ws:          ws,
		upgrader:    medium.Upgrade(readBuffer, writeBuffer),
	}
}

func (g *GatewayController) InitRoutes() {
	g.router.GET("/ws/chat", g.WebsocketHandler)
}

func (g *GatewayController) WebsocketHandler(ctx *gin.Context) {
	log := utilities.NewLogger("WebsocketHandler")

	user, err := g.middleWares.VerifyWebsocketRequest(ctx)
	if err != nil {
		fail(ctx, log, err)
		return
	}

	wsConn, err := g.upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		log.WithError(err).Error("failed to upgrade websocket connection")
		return
	}

	conn := g.ws.Add(user, wsConn)
	log.Debugf("user %s connected on %s", user, conn.ID)
}
