package handlers

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"gorm.io/gorm"

	"github.com/finitixhub/finitix_be/internal/middleware"
	"github.com/finitixhub/finitix_be/internal/models"
	"github.com/finitixhub/finitix_be/internal/utils"
)

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

type GoogleOAuthHandler struct {
	DB              *gorm.DB
	JWTSecret       string
	Expires         int
	GoogleClientID  string
	GoogleSecret    string
	GoogleRedirect  string
	FrontendBaseURL string
}

func (h *GoogleOAuthHandler) oauthCfg() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     h.GoogleClientID,
		ClientSecret: h.GoogleSecret,
		RedirectURL:  h.GoogleRedirect,
		Endpoint:     google.Endpoint,
		Scopes:       []string{"openid", "email", "profile"},
	}
}

func randomState(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

// safeNext keeps redirects on our own site.
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") {
		return "/"
	}
	return next
}

func (h *GoogleOAuthHandler) GoogleStart(c *fiber.Ctx) error {
	if h.GoogleClientID == "" {
		return fail(c, fiber.StatusServiceUnavailable, "Google sign-in is not configured")
	}

	next := safeNext(c.Query("next", "/"))
	st := randomState(32)

	c.Cookie(&fiber.Cookie{Name: "oauth_state", Value: st, Path: "/", HTTPOnly: true, SameSite: "Lax", MaxAge: 10 * 60})
	c.Cookie(&fiber.Cookie{Name: "oauth_next", Value: next, Path: "/", HTTPOnly: true, SameSite: "Lax", MaxAge: 10 * 60})

	return c.Redirect(h.oauthCfg().AuthCodeURL(st), http.StatusTemporaryRedirect)
}

type googleUserInfo struct {
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

func (h *GoogleOAuthHandler) signInError(c *fiber.Ctx, msg string) error {
	return c.Redirect(h.FrontendBaseURL+"/signin?err="+url.QueryEscape(msg), http.StatusTemporaryRedirect)
}

func (h *GoogleOAuthHandler) GoogleCallback(c *fiber.Ctx) error {
	code := c.Query("code")
	state := c.Query("state")
	if code == "" || state == "" {
		return fail(c, fiber.StatusBadRequest, "missing code/state")
	}

	if st := c.Cookies("oauth_state"); st == "" || st != state {
		return fail(c, fiber.StatusBadRequest, "invalid state")
	}
	next := safeNext(c.Cookies("oauth_next", "/"))

	ctx := c.UserContext()
	tok, err := h.oauthCfg().Exchange(ctx, code)
	if err != nil {
		log.Printf("[Google] exchange failed: %v", err)
		return h.signInError(c, "Google sign-in failed")
	}

	resp, err := h.oauthCfg().Client(ctx, tok).Get(googleUserInfoURL)
	if err != nil {
		log.Printf("[Google] userinfo failed: %v", err)
		return h.signInError(c, "Google sign-in failed")
	}
	defer resp.Body.Close()

	var gu googleUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&gu); err != nil {
		return h.signInError(c, "Google sign-in failed")
	}

	email := strings.ToLower(strings.TrimSpace(gu.Email))
	if email == "" || !gu.VerifiedEmail {
		return h.signInError(c, "Google account has no verified email")
	}

	u, err := h.findOrCreateGoogleUser(ctx, email, gu)
	if err != nil {
		log.Printf("[Google] upsert user %s: %v", email, err)
		return h.signInError(c, "Could not create account")
	}
	if !u.IsActive {
		return h.signInError(c, "Account is inactive")
	}

	jwtToken, err := utils.SignJWT(h.JWTSecret, u.ID.String(), string(u.Role), h.Expires)
	if err != nil {
		return fail500(c, "failed to create session", err)
	}

	c.Cookie(&fiber.Cookie{
		Name:     middleware.CookieName,
		Value:    jwtToken,
		Path:     "/",
		HTTPOnly: true,
		SameSite: "Lax",
		MaxAge:   h.Expires * 60,
	})
	c.Cookie(&fiber.Cookie{Name: "oauth_state", Value: "", Path: "/", MaxAge: -1, HTTPOnly: true, SameSite: "Lax"})
	c.Cookie(&fiber.Cookie{Name: "oauth_next", Value: "", Path: "/", MaxAge: -1, HTTPOnly: true, SameSite: "Lax"})

	return c.Redirect(h.FrontendBaseURL+next, http.StatusTemporaryRedirect)
}

func (h *GoogleOAuthHandler) findOrCreateGoogleUser(ctx context.Context, email string, gu googleUserInfo) (*models.User, error) {
	gdb := h.DB.WithContext(ctx)
	var u models.User
	err := gdb.Where("email = ?", email).First(&u).Error
	if err == nil {
		return &u, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	// password column is NOT NULL; google accounts get an unusable random one
	hashed, err := utils.HashPassword(randomState(24))
	if err != nil {
		return nil, err
	}

	u = models.User{
		Email:    email,
		Password: hashed,
		Provider: models.ProviderGoogle,
		Role:     models.RoleUser,
		IsActive: true,
		Profile: &models.Profile{
			Username:  h.uniqueUsername(email),
			FullName:  strings.TrimSpace(gu.Name),
			AvatarURL: gu.Picture,
		},
	}
	if err := gdb.Create(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// uniqueUsername derives a free username from the email local part.
func (h *GoogleOAuthHandler) uniqueUsername(email string) string {
	base := strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_' || r == '.' || r == '-' {
			return r
		}
		return -1
	}, strings.SplitN(email, "@", 2)[0])
	if len(base) < 3 {
		base = "user"
	}
	if len(base) > 30 {
		base = base[:30]
	}

	candidate := base
	for i := 1; i < 50; i++ {
		var n int64
		if err := h.DB.Model(&models.Profile{}).Where("username = ?", candidate).Count(&n).Error; err != nil || n == 0 {
			return candidate
		}
		candidate = fmt.Sprintf("%s%d", base, i)
	}
	return base + "_" + strings.ToLower(randomState(4))
}
