package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/awehrman/peas/internal/auth"
	"github.com/awehrman/peas/internal/config"
	"github.com/awehrman/peas/internal/domain/user"
	"github.com/awehrman/peas/internal/security"
	"github.com/gin-gonic/gin"
)

type UserReader interface {
	GetByEmail(ctx context.Context, email string) (user.User, error)
}

// AuthHandler mints the short-lived access tokens the import routes
// require. Operator accounts are seeded at startup; there is no public
// signup on this service.
type AuthHandler struct {
	users UserReader
	jwt   *auth.Manager
	cfg   config.Config
}

func NewAuthHandler(users UserReader, jwtManager *auth.Manager, cfg config.Config) *AuthHandler {
	return &AuthHandler{
		users: users,
		jwt:   jwtManager,
		cfg:   cfg,
	}
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) Login(ctx *gin.Context) {
	var req LoginRequest

	if !BindJSON(ctx, &req) {
		return
	}

	// short timeout for DB lookup
	cctx, cancel := config.WithTimeout(2 * time.Second)
	defer cancel()

	foundUser, err := h.users.GetByEmail(cctx, req.Email)
	if err != nil {
		RespondUnAuthorized(ctx, "invalid_credentials", "Email or password is incorrect.")
		return
	}

	err = security.CheckPassword(foundUser.PasswordHash, req.Password)

	if err != nil {
		RespondUnAuthorized(ctx, "invalid_credentials", "Email or password is incorrect.")
		return
	}

	accessToken, err := h.jwt.GenerateAccessToken(foundUser.ID, foundUser.Email, foundUser.Role)

	if err != nil {
		RespondInternal(ctx, "Could not generate access token")
		return
	}

	ctx.JSON(http.StatusOK, gin.H{
		"accessToken": accessToken,
		"expiresIn":   int(h.cfg.AccessTTL.Seconds()),
	})
}
