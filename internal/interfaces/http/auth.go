package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/garyjia/purchase-request/internal/application/service"
	"github.com/garyjia/purchase-request/internal/models"
)

const (
	SessionCookie = "session_token"
	userKey       = "user"
)

type authenticator struct {
	users  service.UserService
	logger *zap.Logger
}

func newAuthenticator(users service.UserService, logger *zap.Logger) *authenticator {
	return &authenticator{users: users, logger: logger}
}

// requirePage sends anonymous browsers to the login page
func (a *authenticator) requirePage() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.authenticate(c) {
			c.Redirect(http.StatusFound, "/login")
			c.Abort()
			return
		}
		c.Next()
	}
}

// requireAPI answers anonymous API calls with 401
func (a *authenticator) requireAPI() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.authenticate(c) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, Response{
				Success: false,
				Error:   "authentication required",
			})
			return
		}
		c.Next()
	}
}

func (a *authenticator) authenticate(c *gin.Context) bool {
	token, err := c.Cookie(SessionCookie)
	if err != nil || token == "" {
		return false
	}

	user, err := a.users.Authenticate(token)
	if err != nil {
		if !errors.Is(err, service.ErrUnauthenticated) {
			a.logger.Error("Session lookup failed", zap.Error(err))
		}
		return false
	}

	c.Set(userKey, user)
	return true
}

// currentUser returns the user stored by the auth middleware
func currentUser(c *gin.Context) *models.User {
	value, ok := c.Get(userKey)
	if !ok {
		return nil
	}
	user, _ := value.(*models.User)
	return user
}
