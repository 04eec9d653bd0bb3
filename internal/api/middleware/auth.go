package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/GriffinCanCode/seadaemon/internal/shared/types"
)

// UserKey is the gin context key holding the authenticated username
const UserKey = "user"

// CredentialSource returns the configured "user[:password]" credential.
// It is read on every request so option changes apply immediately.
type CredentialSource func() string

// BasicAuth rejects requests whose HTTP Basic credentials do not match
// the configured credential. A credential without a password accepts any
// password for the configured user.
func BasicAuth(source CredentialSource, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		user, pass, ok := c.Request.BasicAuth()
		if !ok || !Verify(source(), user, pass) {
			logger.Warn("Authentication failed",
				zap.String("client_ip", c.ClientIP()),
				zap.String("path", c.Request.URL.Path),
				zap.String("user", user))
			c.Header("WWW-Authenticate", `Basic realm="seadaemon"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, types.Fail(types.ErrAuthFailure))
			return
		}
		c.Set(UserKey, user)
		c.Next()
	}
}

// Verify checks user and pass against a "user[:password]" credential. The
// password part may be a bcrypt hash.
func Verify(credential, user, pass string) bool {
	wantUser, wantPass, hasPass := strings.Cut(credential, ":")

	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(wantUser)) == 1
	passOK := true
	if hasPass {
		if isBcrypt(wantPass) {
			passOK = bcrypt.CompareHashAndPassword([]byte(wantPass), []byte(pass)) == nil
		} else {
			passOK = subtle.ConstantTimeCompare([]byte(pass), []byte(wantPass)) == 1
		}
	}
	return userOK && passOK
}

func isBcrypt(s string) bool {
	for _, prefix := range []string{"$2a$", "$2b$", "$2y$"} {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}
