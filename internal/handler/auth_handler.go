package handler

import (
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/voiceflow/api/internal/auth"
	"github.com/voiceflow/api/internal/middleware"
	"github.com/voiceflow/api/internal/session"
	"github.com/voiceflow/api/pkg/response"
)

const oauthStateTTL = 10 * time.Minute

// AuthHandler handles ForwardAuth verification and the calendar consent
// flow that captures the delegated Google token.
type AuthHandler struct {
	verifier  auth.TokenVerifier
	jwtSecret string
	sessions  *session.Manager

	mu     sync.Mutex
	states map[string]oauthState
}

type oauthState struct {
	userID    string
	email     string
	expiresAt time.Time
}

func NewAuthHandler(verifier auth.TokenVerifier, jwtSecret string, sessions *session.Manager) *AuthHandler {
	return &AuthHandler{
		verifier:  verifier,
		jwtSecret: jwtSecret,
		sessions:  sessions,
		states:    make(map[string]oauthState),
	}
}

// Verify handles GET /auth/verify — called by the gateway's ForwardAuth.
// Returns 200 with X-User-* headers on success, 401 on failure.
func (h *AuthHandler) Verify(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	tokenString := parts[1]

	// Try identity provider JWKS verification first
	if h.verifier != nil {
		claims, err := h.verifier.Validate(tokenString)
		if err == nil {
			c.Set("X-User-Id", claims.UserID)
			c.Set("X-User-Email", claims.Email)
			c.Set("X-User-Name", claims.Name)
			return c.SendStatus(fiber.StatusOK)
		}
		if h.jwtSecret == "" {
			return c.SendStatus(fiber.StatusUnauthorized)
		}
	}

	// Fallback to legacy HMAC verification
	if h.jwtSecret != "" {
		claims, err := auth.ValidateLegacyToken(tokenString, h.jwtSecret)
		if err == nil {
			c.Set("X-User-Id", claims.UserID)
			c.Set("X-User-Email", claims.Email)
			return c.SendStatus(fiber.StatusOK)
		}
	}

	return c.SendStatus(fiber.StatusUnauthorized)
}

// Login handles GET /auth/login. Redirects the authenticated user to the
// Google consent screen requesting calendar access.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	if h.sessions == nil || !h.sessions.IsConfigured() {
		return response.ServiceError(c, "OAuth is not configured")
	}

	state := uuid.New().String()
	h.putState(state, oauthState{
		userID:    middleware.GetUserID(c),
		email:     middleware.GetUserEmail(c),
		expiresAt: time.Now().Add(oauthStateTTL),
	})

	return c.Redirect(h.sessions.AuthCodeURL(state), fiber.StatusFound)
}

// Callback handles GET /auth/callback. Exchanges the authorization code
// for a delegated token and opens the user's session.
func (h *AuthHandler) Callback(c *fiber.Ctx) error {
	code := c.Query("code")
	if code == "" {
		return response.ValidationError(c, "Missing authorization code", nil)
	}

	state, ok := h.takeState(c.Query("state"))
	if !ok {
		return response.Unauthorized(c, "Invalid or expired state")
	}

	token, err := h.sessions.Exchange(c.Context(), code)
	if err != nil {
		return response.ServiceError(c, "Failed to exchange authorization code")
	}

	h.sessions.SignIn(state.userID, state.email, token)

	return response.OK(c, fiber.Map{
		"userId":   state.userID,
		"signedIn": true,
	})
}

// Logout handles POST /auth/logout. Tears down the session; subscribers
// clear the user's in-memory task list.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	if h.sessions != nil {
		h.sessions.SignOut(middleware.GetUserID(c))
	}
	return response.NoContent(c)
}

func (h *AuthHandler) putState(key string, st oauthState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	now := time.Now()
	for k, v := range h.states {
		if now.After(v.expiresAt) {
			delete(h.states, k)
		}
	}
	h.states[key] = st
}

func (h *AuthHandler) takeState(key string) (oauthState, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	st, ok := h.states[key]
	if !ok || time.Now().After(st.expiresAt) {
		delete(h.states, key)
		return oauthState{}, false
	}
	delete(h.states, key)
	return st, true
}
