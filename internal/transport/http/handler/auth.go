package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"bytebits/internal/app"
	"bytebits/internal/session"
	"bytebits/internal/transport/http/middleware"
	"bytebits/internal/transport/http/response"
	"bytebits/internal/validate"
)

type AuthHandler struct {
	accounts *app.AccountService
	sessions *session.Store

	cookieName        string
	sessionTTL        time.Duration
	rememberTTL       time.Duration
	autoLoginOnVerify bool
	minEntropy        int
}

func NewAuthHandler(
	accounts *app.AccountService,
	sessions *session.Store,
	cookieName string,
	sessionTTL, rememberTTL time.Duration,
	autoLoginOnVerify bool,
	minEntropy int,
) *AuthHandler {
	return &AuthHandler{
		accounts:          accounts,
		sessions:          sessions,
		cookieName:        cookieName,
		sessionTTL:        sessionTTL,
		rememberTTL:       rememberTTL,
		autoLoginOnVerify: autoLoginOnVerify,
		minEntropy:        minEntropy,
	}
}

type SignupRequest struct {
	Email    string `form:"email" json:"email"`
	Username string `form:"username" json:"username"`
	Password string `form:"password" json:"password"`
}

func (h *AuthHandler) Signup(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	clean, errs := validate.Run(map[string]string{
		"email":    req.Email,
		"username": req.Username,
		"password": req.Password,
	}, []validate.Field{
		{Name: "email", Rules: []validate.Rule{
			validate.Trim(),
			validate.Required("Email is required."),
			validate.Email("Must be a valid email address."),
		}},
		{Name: "username", Rules: []validate.Rule{
			validate.Trim(),
			validate.Required("Username is required."),
			validate.LengthBetween(3, 30, "Username must be between 3 and 30 characters."),
			validate.Username("Username can only contain letters, numbers, and underscores."),
		}},
		{Name: "password", Rules: []validate.Rule{
			validate.Required("Password is required."),
			validate.StrongPassword(h.minEntropy),
		}},
	})
	if len(errs) > 0 {
		response.ValidationError(c, http.StatusUnprocessableEntity, errs)
		return
	}

	result, err := h.accounts.Signup(c.Request.Context(), app.SignupInput{
		Email:    clean["email"],
		Username: clean["username"],
		Password: clean["password"],
		Host:     requestBase(c),
	})
	if err != nil {
		switch {
		case errors.Is(err, app.ErrEmailTaken):
			response.Error(c, http.StatusBadRequest, response.CodeEmailExists, err.Error())
		case errors.Is(err, app.ErrUsernameTaken):
			response.Error(c, http.StatusBadRequest, response.CodeUsernameExists, err.Error())
		case errors.Is(err, app.ErrInvalidInput):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "Internal server error.")
		}
		return
	}

	message := "Signup successful! Check your email to verify your account."
	if result.MailErr != nil {
		// The account was persisted; only the mail step failed.
		message = "Verification email failed to send. Please ensure the email address is valid."
	}
	response.OKMessage(c, message, gin.H{"user_id": result.User.ID})
}

func (h *AuthHandler) Verify(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		h.flashAndRedirect(c, "error", "Missing token.", "/auth/login")
		return
	}

	user, err := h.accounts.Verify(c.Request.Context(), token)
	if err != nil {
		h.flashAndRedirect(c, "error", "Verification link is invalid or has expired.", "/auth/login")
		return
	}

	if h.autoLoginOnVerify {
		if sid, err := h.sessions.Create(c.Request.Context(), user.ID, h.sessionTTL); err == nil {
			h.setSessionCookie(c, sid, h.sessionTTL)
			c.Set(middleware.ContextSessionIDKey, sid)
		}
		h.flashAndRedirect(c, "success", "Your email has been verified! You are now logged in.", "/")
		return
	}
	h.flashAndRedirect(c, "success", "Your email has been verified!", "/auth/login")
}

type LoginRequest struct {
	Identifier string `form:"identifier" json:"identifier"`
	Password   string `form:"password" json:"password"`
	RememberMe bool   `form:"rememberMe" json:"remember_me"`
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	user, err := h.accounts.Login(c.Request.Context(), app.LoginInput{
		Identifier: req.Identifier,
		Password:   req.Password,
		RememberMe: req.RememberMe,
	})
	if err != nil {
		switch {
		case errors.Is(err, app.ErrNotVerified):
			response.Error(c, http.StatusForbidden, response.CodeNotVerified, err.Error())
		case errors.Is(err, app.ErrInvalidCredentials):
			response.Error(c, http.StatusUnauthorized, response.CodeInvalidCredentials, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "Internal server error.")
		}
		return
	}

	ttl := h.sessionTTL
	if req.RememberMe {
		ttl = h.rememberTTL
	}
	sid, err := h.sessions.Create(c.Request.Context(), user.ID, ttl)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "Internal server error.")
		return
	}
	h.setSessionCookie(c, sid, ttl)

	response.OKMessage(c, "Welcome back, "+user.Username+"!", gin.H{
		"user_id":  user.ID,
		"username": user.Username,
	})
}

func (h *AuthHandler) Logout(c *gin.Context) {
	if sid, ok := middleware.SessionID(c); ok {
		_ = h.sessions.Destroy(c.Request.Context(), sid)
	}
	h.clearSessionCookie(c)
	c.Set(middleware.ContextSessionIDKey, nil)

	// Fresh anonymous session so the landing page can show the flash.
	if sid, err := h.sessions.Create(c.Request.Context(), 0, h.sessionTTL); err == nil {
		h.setSessionCookie(c, sid, h.sessionTTL)
		_ = h.sessions.AddFlash(c.Request.Context(), sid, "success", "You have been logged out.")
	}
	c.Redirect(http.StatusFound, "/")
}

type ForgotRequest struct {
	Email string `form:"email" json:"email"`
}

func (h *AuthHandler) Forgot(c *gin.Context) {
	var req ForgotRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	// Identical outcome whether or not the email is registered.
	const message = "If that email exists, a reset link has been sent."
	if err := h.accounts.ForgotPassword(c.Request.Context(), req.Email, requestBase(c)); err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "Internal server error.")
		return
	}
	response.OKMessage(c, message, nil)
}

type ResetRequest struct {
	Token    string `form:"token" json:"token"`
	Password string `form:"password" json:"password"`
}

func (h *AuthHandler) Reset(c *gin.Context) {
	var req ResetRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	if req.Token == "" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "Missing token")
		return
	}

	_, errs := validate.Run(map[string]string{"password": req.Password}, []validate.Field{
		{Name: "password", Rules: []validate.Rule{
			validate.Required("Password is required."),
			validate.StrongPassword(h.minEntropy),
		}},
	})
	if len(errs) > 0 {
		response.ValidationError(c, http.StatusBadRequest, errs)
		return
	}

	if err := h.accounts.ResetPassword(c.Request.Context(), req.Token, req.Password); err != nil {
		if errors.Is(err, app.ErrInvalidToken) {
			response.Error(c, http.StatusBadRequest, response.CodeInvalidToken, app.ErrInvalidToken.Error())
			return
		}
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "Internal server error.")
		return
	}
	response.OKMessage(c, "Password reset successful.", nil)
}

type UpdateEmailRequest struct {
	NewEmail string `form:"newEmail" json:"new_email"`
}

func (h *AuthHandler) UpdateEmail(c *gin.Context) {
	userID, _ := middleware.UserID(c)

	var req UpdateEmailRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	clean, errs := validate.Run(map[string]string{"newEmail": req.NewEmail}, []validate.Field{
		{Name: "newEmail", Rules: []validate.Rule{
			validate.Trim(),
			validate.Required("Email is required."),
			validate.Email("Must be a valid email address."),
		}},
	})
	if len(errs) > 0 {
		response.ValidationError(c, http.StatusBadRequest, errs)
		return
	}

	err := h.accounts.RequestEmailChange(c.Request.Context(), userID, clean["newEmail"], requestBase(c))
	if err != nil {
		switch {
		case errors.Is(err, app.ErrEmailTaken):
			response.Error(c, http.StatusBadRequest, response.CodeEmailExists, "Email already in use by another account.")
		case errors.Is(err, app.ErrUserNotFound):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "Internal server error.")
		}
		return
	}
	response.OKMessage(c, "A confirmation email has been sent to your current email address.", nil)
}

func (h *AuthHandler) ConfirmUpdateEmail(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		h.flashAndRedirect(c, "error", "Missing token.", "/auth/account-settings")
		return
	}

	err := h.accounts.ConfirmEmailChange(c.Request.Context(), token, requestBase(c))
	if err != nil {
		switch {
		case errors.Is(err, app.ErrEmailTaken):
			h.flashAndRedirect(c, "error", "Email already in use by another account.", "/auth/account-settings")
		default:
			h.flashAndRedirect(c, "error", "Token is invalid or has expired.", "/auth/account-settings")
		}
		return
	}
	h.flashAndRedirect(c, "success", "Email updated successfully. Please verify your new email address.", "/auth/account-settings")
}

type UpdateUsernameRequest struct {
	NewUsername string `form:"newUsername" json:"new_username"`
}

func (h *AuthHandler) UpdateUsername(c *gin.Context) {
	userID, _ := middleware.UserID(c)

	var req UpdateUsernameRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}

	clean, errs := validate.Run(map[string]string{"newUsername": req.NewUsername}, []validate.Field{
		{Name: "newUsername", Rules: []validate.Rule{
			validate.Trim(),
			validate.Required("Username is required."),
			validate.LengthBetween(3, 30, "Username must be between 3 and 30 characters."),
			validate.Username("Username can only contain letters, numbers, and underscores."),
		}},
	})
	if len(errs) > 0 {
		response.ValidationError(c, http.StatusBadRequest, errs)
		return
	}

	err := h.accounts.RequestUsernameChange(c.Request.Context(), userID, clean["newUsername"], requestBase(c))
	if err != nil {
		switch {
		case errors.Is(err, app.ErrUsernameTaken):
			response.Error(c, http.StatusBadRequest, response.CodeUsernameExists, err.Error())
		case errors.Is(err, app.ErrUserNotFound):
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
		default:
			response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "Internal server error.")
		}
		return
	}
	response.OKMessage(c, "A confirmation email has been sent to your current email address.", nil)
}

func (h *AuthHandler) ConfirmUpdateUsername(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		h.flashAndRedirect(c, "error", "Missing token.", "/auth/account-settings")
		return
	}

	err := h.accounts.ConfirmUsernameChange(c.Request.Context(), token)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrUsernameTaken):
			h.flashAndRedirect(c, "error", app.ErrUsernameTaken.Error(), "/auth/account-settings")
		default:
			h.flashAndRedirect(c, "error", "Token is invalid or has expired.", "/auth/account-settings")
		}
		return
	}
	h.flashAndRedirect(c, "success", "Username updated successfully.", "/auth/account-settings")
}

func (h *AuthHandler) UpdatePassword(c *gin.Context) {
	userID, _ := middleware.UserID(c)

	if err := h.accounts.RequestPasswordChange(c.Request.Context(), userID, requestBase(c)); err != nil {
		if errors.Is(err, app.ErrUserNotFound) {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
			return
		}
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "Internal server error.")
		return
	}
	response.OKMessage(c, "A confirmation email has been sent to your email address.", nil)
}

func (h *AuthHandler) DeleteAccount(c *gin.Context) {
	userID, _ := middleware.UserID(c)

	if err := h.accounts.RequestDeletion(c.Request.Context(), userID, requestBase(c)); err != nil {
		if errors.Is(err, app.ErrUserNotFound) {
			response.Error(c, http.StatusBadRequest, response.CodeBadRequest, err.Error())
			return
		}
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "Internal server error.")
		return
	}
	response.OKMessage(c, "A confirmation email has been sent to your email address.", nil)
}

func (h *AuthHandler) ConfirmDeleteAccount(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		h.flashAndRedirect(c, "error", "Missing token.", "/auth/account-settings")
		return
	}

	if err := h.accounts.ConfirmDeletion(c.Request.Context(), token); err != nil {
		h.flashAndRedirect(c, "error", "Token is invalid or has expired.", "/auth/account-settings")
		return
	}

	// The session dies with the account; its cookie is cleared last.
	if sid, ok := middleware.SessionID(c); ok {
		_ = h.sessions.Destroy(c.Request.Context(), sid)
	}
	h.clearSessionCookie(c)
	c.Set(middleware.ContextSessionIDKey, nil)
	h.flashAndRedirect(c, "success", "Account successfully deleted.", "/")
}

func (h *AuthHandler) AccountSettings(c *gin.Context) {
	userID, _ := middleware.UserID(c)

	user, err := h.accounts.AccountSettings(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, app.ErrUserNotFound) {
			response.Error(c, http.StatusNotFound, response.CodeNotFound, err.Error())
			return
		}
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "Internal server error.")
		return
	}

	var flashes []session.Flash
	if sid, ok := middleware.SessionID(c); ok {
		flashes, _ = h.sessions.PopFlashes(c.Request.Context(), sid)
	}

	response.OK(c, gin.H{
		"user": gin.H{
			"id":       user.ID,
			"email":    user.Email,
			"username": user.Username,
			"verified": user.Verified,
		},
		"flash": flashes,
	})
}

// flashAndRedirect queues a flash message for the next page load, opening an
// anonymous session when the request has none, then redirects.
func (h *AuthHandler) flashAndRedirect(c *gin.Context, kind, text, target string) {
	sid, ok := middleware.SessionID(c)
	if !ok {
		newSid, err := h.sessions.Create(c.Request.Context(), 0, h.sessionTTL)
		if err == nil {
			h.setSessionCookie(c, newSid, h.sessionTTL)
			sid, ok = newSid, true
		}
	}
	if ok {
		_ = h.sessions.AddFlash(c.Request.Context(), sid, kind, text)
	}
	c.Redirect(http.StatusFound, target)
}

func (h *AuthHandler) setSessionCookie(c *gin.Context, sid string, ttl time.Duration) {
	c.SetCookie(h.cookieName, sid, int(ttl.Seconds()), "/", "", false, true)
}

func (h *AuthHandler) clearSessionCookie(c *gin.Context) {
	c.SetCookie(h.cookieName, "", -1, "/", "", false, true)
}

func requestBase(c *gin.Context) string {
	scheme := "http"
	if c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + c.Request.Host
}
