package api

import (
	"net/http"

	"gymflow/gym-api/internal/config"
	"gymflow/gym-api/internal/domain"
	"gymflow/gym-api/internal/service"

	"github.com/gin-gonic/gin"
)

// AuthHandler holds the authentication service dependency.
type AuthHandler struct {
	authService service.AuthService
	cookie      config.CookieConfig
	errors      errorResponder
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService service.AuthService, cookie config.CookieConfig, errs errorResponder) *AuthHandler {
	return &AuthHandler{authService: authService, cookie: cookie, errors: errs}
}

// --- Request/Response Structs ---

type RegisterRequest struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	InviteCode string `json:"inviteCode"`
}

// LoginRequest accepts the email or the account name as identifier.
type LoginRequest struct {
	Email      string `json:"email"`
	Name       string `json:"name"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"`
}

type LoginResponse struct {
	Token     string       `json:"token"`
	ExpiresIn int64        `json:"expiresIn"` // seconds
	User      *domain.User `json:"user"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

type ResetPasswordRequest struct {
	Password string `json:"password"`
}

// --- Handler Methods ---

// Register godoc
// @Summary Register a new client account
// @Tags Auth
// @Accept json
// @Produce json
// @Param user body RegisterRequest true "Registration details"
// @Success 201 {object} domain.User
// @Failure 400 {object} gin.H "Invalid input"
// @Failure 409 {object} gin.H "Email or name already registered"
// @Router /auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if !bindJSON(c, &req) {
		return
	}
	user, err := h.authService.Register(c.Request.Context(), service.RegisterInput{
		Name:       req.Name,
		Email:      req.Email,
		Password:   req.Password,
		InviteCode: req.InviteCode,
	})
	if err != nil {
		h.errors.respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

// Login godoc
// @Summary Log in with email or name
// @Tags Auth
// @Accept json
// @Produce json
// @Param credentials body LoginRequest true "Login credentials"
// @Success 200 {object} LoginResponse
// @Failure 401 {object} gin.H "Invalid credentials"
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if !bindJSON(c, &req) {
		return
	}
	identifier := req.Email
	if identifier == "" {
		identifier = req.Name
	}
	res, err := h.authService.Login(c.Request.Context(), identifier, req.Password, req.RememberMe)
	if err != nil {
		h.errors.respond(c, err)
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, res.Token, int(res.ExpiresIn.Seconds()), "/", h.cookie.Domain, h.cookie.Secure, true)
	c.JSON(http.StatusOK, LoginResponse{
		Token:     res.Token,
		ExpiresIn: int64(res.ExpiresIn.Seconds()),
		User:      res.User,
	})
}

func (h *AuthHandler) Logout(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookie.Name, "", -1, "/", h.cookie.Domain, h.cookie.Secure, true)
	c.JSON(http.StatusOK, gin.H{"message": "Sessão terminada"})
}

func (h *AuthHandler) Me(c *gin.Context) {
	actor, ok := mustActor(c)
	if !ok {
		return
	}
	user, err := h.authService.Me(c.Request.Context(), actor)
	if err != nil {
		h.errors.respond(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// ForgotPassword always answers with the same message for valid addresses.
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req ForgotPasswordRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.authService.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		h.errors.respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Se o email existir, receberá um link de recuperação"})
}

func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req ResetPasswordRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.authService.ResetPassword(c.Request.Context(), c.Param("token"), req.Password); err != nil {
		h.errors.respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password alterada com sucesso"})
}
