package middlewares

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"

	"wisdomwalk/pkg/consts"
	"wisdomwalk/pkg/entities"
	"wisdomwalk/pkg/usecases"
	"wisdomwalk/utilities"
	"wisdomwalk/utilities/jwt"
)

var errMissingToken = errors.New("missing bearer token")

type Middlewares struct {
	Cache    *cache.Cache
	useCases usecases.UseCaseImply
}

// NewMiddlewares
func NewMiddlewares(useCases usecases.UseCaseImply) *Middlewares {
	return &Middlewares{
		Cache:    cache.New(5*time.Minute, 10*time.Minute),
		useCases: useCases,
	}
}

func bearerToken(header string) (string, error) {
	parts := strings.Split(header, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", errMissingToken
	}
	return parts[1], nil
}

func abort(ctx *gin.Context, status int, message string) {
	ctx.AbortWithStatusJSON(status, entities.ErrorResponse{
		Success: false,
		Message: message,
	})
}

// ValidateToken verifies the bearer token and stores the caller's id in the
// context.
func (m *Middlewares) ValidateToken(ctx *gin.Context) {
	log := utilities.NewLogger("ValidateToken")

	token, err := bearerToken(ctx.GetHeader("Authorization"))
	if err != nil {
		abort(ctx, http.StatusUnauthorized, "Missing Authorization in API header")
		return
	}

	claims, err := jwt.VerifyJWT(token)
	if err != nil {
		log.WithError(err).Debug("jwt verification failed")
		abort(ctx, http.StatusUnauthorized, "Authentication failed")
		return
	}

	log.Debugf("User %s validated", claims.UserID)

	ctx.Set(consts.UserID, claims.UserID)
	ctx.Set(consts.UserToken, token)

	ctx.Next()
}

// VerifyWebsocketRequest authenticates a websocket upgrade. The token is read
// from the Authorization header, or from the token query parameter for
// clients that cannot set headers.
func (m *Middlewares) VerifyWebsocketRequest(ctx *gin.Context) (string, error) {
	token, err := bearerToken(ctx.GetHeader("Authorization"))
	if err != nil {
		token = ctx.Query("token")
	}
	if token == "" {
		return "", entities.NewAuthenticationError("authentication failed: %s", errMissingToken)
	}

	claims, err := jwt.VerifyJWT(token)
	if err != nil {
		return "", &entities.AppError{Kind: entities.KindAuthentication, Message: "authentication failed", Err: err}
	}

	if err := m.checkAccess(ctx, claims.UserID); err != nil {
		return "", err
	}

	ctx.Set(consts.UserID, claims.UserID)
	ctx.Set(consts.UserToken, token)

	return claims.UserID, nil
}
