package handlers

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/finitixhub/finitix_be/internal/db"
	"github.com/finitixhub/finitix_be/internal/middleware"
	"github.com/finitixhub/finitix_be/internal/models"
	"github.com/finitixhub/finitix_be/internal/services/session"
	"github.com/finitixhub/finitix_be/internal/utils"
)

const resetTokenTTL = 30 * time.Minute

type AuthHandler struct {
	DB              *gorm.DB
	JWTSecret       string
	Expires         int
	Sessions        *session.Store
	FrontendBaseURL string
}

type SignUpReq struct {
	Email    string `json:"email" validate:"required,email,max=150"`
	Password string `json:"password" validate:"required,min=6,max=72"`
	Username string `json:"username" validate:"required,min=3,max=40"`
	FullName string `json:"full_name" validate:"required,max=120"`
}

func (h *AuthHandler) setSessionCookie(c *fiber.Ctx, token string) {
	c.Cookie(&fiber.Cookie{
		Name:     middleware.CookieName,
		Value:    token,
		Path:     "/",
		HTTPOnly: true,
		Secure:   false,
		SameSite: "Lax",
		MaxAge:   h.Expires * 60,
	})
}

func clearSessionCookie(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     middleware.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HTTPOnly: true,
		Secure:   false,
		SameSite: "Lax",
	})
}

func userPayload(u *models.User) fiber.Map {
	out := fiber.Map{
		"id":       u.ID,
		"email":    u.Email,
		"role":     u.Role,
		"provider": u.Provider,
	}
	if u.Profile != nil {
		out["username"] = u.Profile.Username
		out["full_name"] = u.Profile.FullName
		out["avatar_url"] = u.Profile.AvatarURL
	}
	return out
}

func validUsername(s string) bool {
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_' || r == '.' || r == '-') {
			return false
		}
	}
	return s != ""
}

func (h *AuthHandler) SignUp(c *fiber.Ctx) error {
	var req SignUpReq
	errs, err := bind(c, &req)
	if err != nil {
		return err
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Username = strings.ToLower(strings.TrimSpace(req.Username))
	req.FullName = strings.TrimSpace(req.FullName)

	if errs == nil {
		errs = FieldErrors{}
	}
	if req.Username != "" && !validUsername(req.Username) {
		errs.Add("username", "may contain only lowercase letters, digits, dot, dash and underscore")
	}
	if len(errs) > 0 {
		return validationFail(c, errs)
	}

	var n int64
	if err := h.DB.Model(&models.User{}).Where("email = ?", req.Email).Count(&n).Error; err != nil {
		return fail500(c, "server error", err)
	}
	if n > 0 {
		errs.Add("email", "is already registered")
	}
	if err := h.DB.Model(&models.Profile{}).Where("username = ?", req.Username).Count(&n).Error; err != nil {
		return fail500(c, "server error", err)
	}
	if n > 0 {
		errs.Add("username", "is already taken")
	}
	if len(errs) > 0 {
		return validationFail(c, errs)
	}

	pw, err := utils.HashPassword(req.Password)
	if err != nil {
		return fail500(c, "failed to process password", err)
	}

	u := models.User{
		Email:    req.Email,
		Password: pw,
		Provider: models.ProviderPassword,
		Role:     models.RoleUser,
		IsActive: true,
		Profile: &models.Profile{
			Username: req.Username,
			FullName: req.FullName,
		},
	}

	if err := h.DB.WithContext(c.UserContext()).Create(&u).Error; err != nil {
		if db.IsUniqueViolation(err) {
			return validationFail(c, FieldErrors{"email": {"is already registered"}})
		}
		return fail500(c, "failed to sign up", err)
	}

	token, err := utils.SignJWT(h.JWTSecret, u.ID.String(), string(u.Role), h.Expires)
	if err != nil {
		return fail500(c, "failed to create session", err)
	}
	h.setSessionCookie(c, token)

	return created(c, "Sign up successful", fiber.Map{
		"user":  userPayload(&u),
		"token": token,
	})
}

type SignInReq struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (h *AuthHandler) SignIn(c *fiber.Ctx) error {
	var req SignInReq
	errs, err := bind(c, &req)
	if err != nil {
		return err
	}
	if len(errs) > 0 {
		return validationFail(c, errs)
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))

	var u models.User
	err = h.DB.WithContext(c.UserContext()).Preload("Profile").Where("email = ?", email).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fail(c, fiber.StatusUnauthorized, "Invalid email or password")
	}
	if err != nil {
		return fail500(c, "server error", err)
	}

	if !utils.CheckPassword(u.Password, req.Password) {
		return fail(c, fiber.StatusUnauthorized, "Invalid email or password")
	}
	if !u.IsActive {
		return fail(c, fiber.StatusForbidden, "Account is inactive")
	}

	token, err := utils.SignJWT(h.JWTSecret, u.ID.String(), string(u.Role), h.Expires)
	if err != nil {
		return fail500(c, "failed to create session", err)
	}
	h.setSessionCookie(c, token)

	return ok(c, "Sign in successful", fiber.Map{
		"user":  userPayload(&u),
		"token": token,
	})
}

// SignOut revokes the current session id and clears the cookie. It succeeds
// without a session so a stale browser can always sign out.
func (h *AuthHandler) SignOut(c *fiber.Ctx) error {
	if tok := middleware.TokenFromRequest(c); tok != "" {
		if claims, err := utils.ParseJWT(h.JWTSecret, tok); err == nil && claims.ExpiresAt != nil {
			if err := h.Sessions.Revoke(c.UserContext(), claims.ID, claims.ExpiresAt.Time); err != nil {
				return fail500(c, "failed to sign out", err)
			}
		}
	}
	clearSessionCookie(c)

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Signed out",
	})
}

type ForgotPasswordReq struct {
	Email string `json:"email" validate:"required,email"`
}

func (h *AuthHandler) ForgotPassword(c *fiber.Ctx) error {
	var req ForgotPasswordReq
	errs, err := bind(c, &req)
	if err != nil {
		return err
	}
	if len(errs) > 0 {
		return validationFail(c, errs)
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	var u models.User
	err = h.DB.WithContext(c.UserContext()).Where("email = ? AND provider = ?", email, models.ProviderPassword).First(&u).Error
	switch {
	case err == nil:
		token, err := h.Sessions.IssueReset(c.UserContext(), u.ID.String(), resetTokenTTL)
		if err != nil {
			return fail500(c, "failed to issue reset token", err)
		}
		log.Printf("[Auth] password reset link for %s: %s/reset-password?token=%s", email, h.FrontendBaseURL, token)
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return fail500(c, "server error", err)
	}

	// same answer whether or not the account exists
	return c.JSON(fiber.Map{
		"success": true,
		"message": "If the email is registered, a reset link has been sent",
	})
}

type ResetPasswordReq struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

func (h *AuthHandler) ResetPassword(c *fiber.Ctx) error {
	var req ResetPasswordReq
	errs, err := bind(c, &req)
	if err != nil {
		return err
	}
	if len(errs) > 0 {
		return validationFail(c, errs)
	}

	rawID, err := h.Sessions.ConsumeReset(c.UserContext(), strings.TrimSpace(req.Token))
	if errors.Is(err, session.ErrTokenInvalid) {
		return fail(c, fiber.StatusBadRequest, "Reset link is invalid or expired")
	}
	if err != nil {
		return fail500(c, "server error", err)
	}
	userID, err := uuid.Parse(rawID)
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "Reset link is invalid or expired")
	}

	pw, err := utils.HashPassword(req.Password)
	if err != nil {
		return fail500(c, "failed to process password", err)
	}
	res := h.DB.WithContext(c.UserContext()).Model(&models.User{}).Where("id = ?", userID).Update("password", pw)
	if res.Error != nil {
		return fail500(c, "failed to reset password", res.Error)
	}
	if res.RowsAffected == 0 {
		return fail(c, fiber.StatusNotFound, "User not found")
	}

	// sessions signed with the old password end here
	if err := h.Sessions.RevokeUser(c.UserContext(), userID.String(), time.Duration(h.Expires)*time.Minute); err != nil {
		return fail500(c, "failed to end old sessions", err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Password updated, please sign in",
	})
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	userID, err := getAuth(c)
	if err != nil {
		return err
	}

	var u models.User
	if err := h.DB.WithContext(c.UserContext()).Preload("Profile").First(&u, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fail(c, fiber.StatusUnauthorized, "User not found")
		}
		return fail500(c, "server error", err)
	}

	return ok(c, "", userPayload(&u))
}
