package middlewares

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/gin-gonic/gin"

	"github.com/Luismorlan/familyfeed/backend"
	"github.com/Luismorlan/familyfeed/utils"
)

const (
	// Gin context key holding the authenticated user id.
	UserIdKey = "user_id"
	// Development header trusted as the user id when auth is bypassed.
	DevUserHeader = "X-User-Id"
	// Shared secret of the change notification webhook.
	WebhookSecretHeader = "X-Webhook-Secret"
)

// CognitoUserGetter is the part of the cognito client the JWT middleware
// needs.
type CognitoUserGetter interface {
	GetUser(ctx context.Context, params *cognitoidentityprovider.GetUserInput,
		optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.GetUserOutput, error)
}

// NewCognitoClient creates a default client with aws config located in path
// ~/.aws/config, and return error on error.
func NewCognitoClient(ctx context.Context) (*cognitoidentityprovider.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	return cognitoidentityprovider.NewFromConfig(cfg), nil
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"code": utils.ErrorTokenAuthFail,
		"msg":  msg,
	})
}

// setUser makes userID visible to handlers and to the data backend.
func setUser(c *gin.Context, userID string) {
	c.Set(UserIdKey, userID)
	c.Request = c.Request.WithContext(backend.WithUser(c.Request.Context(), userID))
}

func tokenOf(c *gin.Context) string {
	if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	// Browsers cannot set headers on websocket upgrades.
	return c.Query("token")
}

// JWT middleware reads the access token from the Authorization header, or the
// "token" query parameter, and resolves the user through cognito. Requests
// without a valid token (missing, wrong or expired) are rejected.
func JWT(client CognitoUserGetter) gin.HandlerFunc {
	return func(c *gin.Context) {
		jwt := tokenOf(c)
		if jwt == "" {
			abortUnauthorized(c, "empty jwt token")
			return
		}

		user, err := client.GetUser(c.Request.Context(), &cognitoidentityprovider.GetUserInput{AccessToken: &jwt})
		if err != nil {
			abortUnauthorized(c, err.Error())
			return
		}
		if user.Username == nil || *user.Username == "" {
			abortUnauthorized(c, "token without user")
			return
		}

		setUser(c, *user.Username)
		c.Next()
	}
}

// DevUser trusts the X-User-Id header. Only for local development and tests.
func DevUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(DevUserHeader)
		if userID == "" {
			abortUnauthorized(c, "missing "+DevUserHeader+" header")
			return
		}
		setUser(c, userID)
		c.Next()
	}
}

// UserId returns the user id set by JWT or DevUser.
func UserId(c *gin.Context) string {
	return c.GetString(UserIdKey)
}

// WebhookSecret rejects requests not carrying secret in the
// X-Webhook-Secret header. An empty secret lets everything through.
func WebhookSecret(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}
		got := c.GetHeader(WebhookSecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			abortUnauthorized(c, "bad webhook secret")
			return
		}
		c.Next()
	}
}
