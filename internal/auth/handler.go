package auth

import (
	"net/http"

	"hosa-study-board/internal/errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

type SessionResponse struct {
	Token string `json:"token"`
	UID   string `json:"uid"`
}

// SignInAnonymously issues a fresh anonymous identity.
func (h *Handler) SignInAnonymously(c *gin.Context) {
	uid := uuid.NewString()
	token, err := GenerateAnonymousToken(uid)
	if err != nil {
		c.Error(errors.Internal(err))
		return
	}

	c.JSON(http.StatusCreated, SessionResponse{Token: token, UID: uid})
}
