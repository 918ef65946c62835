package middlewares

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/spf13/cast"

	"wisdomwalk/config"
	"wisdomwalk/pkg/consts"
	"wisdomwalk/pkg/entities"
	"wisdomwalk/utilities"
)

const accessCachePrefix = "access:"

// checkAccess applies the access gate. Platform admins always pass and
// positive results are cached.
func (m *Middlewares) checkAccess(ctx context.Context, user string) error {
	if config.IsAdminUser(user) {
		return nil
	}

	if _, ok := m.Cache.Get(accessCachePrefix + user); ok {
		return nil
	}

	if _, err := m.useCases.VerifyUserAccess(ctx, user); err != nil {
		return err
	}

	m.Cache.Set(accessCachePrefix+user, true, cache.DefaultExpiration)
	return nil
}

// VerifyUserAccess rejects callers whose email or account is not verified,
// or whose account is not active.
func (m *Middlewares) VerifyUserAccess(ctx *gin.Context) {
	log := utilities.NewLogger("VerifyUserAccess")

	user, exist := ctx.Get(consts.UserID)
	if !exist {
		abort(ctx, http.StatusUnauthorized, "Authentication failed")
		return
	}

	if err := m.checkAccess(ctx, cast.ToString(user)); err != nil {
		log.WithError(err).Debugf("access denied for %v", user)
		abort(ctx, entities.KindOf(err).HTTPStatus(), entities.PublicMessage(err))
		return
	}

	ctx.Set(consts.UserAccess, true)

	ctx.Next()
}
