package middlewares

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/Luismorlan/familyfeed/backend"
)

type fakeCognito struct {
	users map[string]string
}

func (f *fakeCognito) GetUser(ctx context.Context, params *cognitoidentityprovider.GetUserInput,
	optFns ...func(*cognitoidentityprovider.Options)) (*cognitoidentityprovider.GetUserOutput, error) {
	user, ok := f.users[aws.ToString(params.AccessToken)]
	if !ok {
		return nil, errors.New("access token has expired")
	}
	return &cognitoidentityprovider.GetUserOutput{Username: aws.String(user)}, nil
}

func newRouter(m gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(m)
	r.GET("/whoami", func(c *gin.Context) {
		fromCtx, _ := backend.UserFromContext(c.Request.Context())
		c.String(http.StatusOK, UserId(c)+"|"+fromCtx)
	})
	return r
}

func serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWT(t *testing.T) {
	r := newRouter(JWT(&fakeCognito{users: map[string]string{"good": "user_a"}}))

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer good")
	w := serve(r, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user_a|user_a", w.Body.String())

	w = serve(r, httptest.NewRequest(http.MethodGet, "/whoami?token=good", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = serve(r, httptest.NewRequest(http.MethodGet, "/whoami?token=bad", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "expired")

	w = serve(r, httptest.NewRequest(http.MethodGet, "/whoami", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestDevUser(t *testing.T) {
	r := newRouter(DevUser())

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(DevUserHeader, "user_b")
	w := serve(r, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user_b|user_b", w.Body.String())

	w = serve(r, httptest.NewRequest(http.MethodGet, "/whoami", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWebhookSecret(t *testing.T) {
	r := gin.New()
	r.POST("/hook", WebhookSecret("s3cret"), func(c *gin.Context) { c.Status(http.StatusAccepted) })

	req := httptest.NewRequest(http.MethodPost, "/hook", nil)
	req.Header.Set(WebhookSecretHeader, "s3cret")
	assert.Equal(t, http.StatusAccepted, serve(r, req).Code)

	req = httptest.NewRequest(http.MethodPost, "/hook", nil)
	req.Header.Set(WebhookSecretHeader, "guess")
	assert.Equal(t, http.StatusUnauthorized, serve(r, req).Code)

	open := gin.New()
	open.POST("/hook", WebhookSecret(""), func(c *gin.Context) { c.Status(http.StatusAccepted) })
	assert.Equal(t, http.StatusAccepted, serve(open, httptest.NewRequest(http.MethodPost, "/hook", nil)).Code)
}
