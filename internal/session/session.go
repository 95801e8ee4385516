package session

import (
	"context"
	"sync"

	"github.com/voiceflow/api/internal/config"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Google Calendar events scope; the narrowest scope that allows creating
// events on the user's calendars.
const calendarEventsScope = "https://www.googleapis.com/auth/calendar.events"

// Session is one user's delegated calendar credential.
type Session struct {
	UserID        string
	Email         string
	ProviderToken *oauth2.Token
}

// Event describes a session change delivered to subscribers.
type Event struct {
	UserID   string
	SignedIn bool
}

// Manager owns per-user sessions holding the delegated Google access token.
// It is the single writer: handlers call SignIn/SignOut, everything else
// only reads. Subscribers receive a notification on every change so stale
// UI state can be torn down on logout.
type Manager struct {
	oauth *oauth2.Config

	mu       sync.RWMutex
	sessions map[string]*Session
	subs     map[int]chan Event
	nextSub  int
}

// NewManager creates a session manager. The OAuth config requests offline
// access with a consent prompt so a refresh token is always returned.
func NewManager(cfg *config.OAuthConfig) *Manager {
	var oc *oauth2.Config
	if cfg.ClientID != "" {
		oc = &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{calendarEventsScope},
			Endpoint:     google.Endpoint,
		}
	}
	return &Manager{
		oauth:    oc,
		sessions: make(map[string]*Session),
		subs:     make(map[int]chan Event),
	}
}

// AuthCodeURL builds the third-party sign-in URL with calendar scope,
// offline access and a forced consent prompt.
func (m *Manager) AuthCodeURL(state string) string {
	if m.oauth == nil {
		return ""
	}
	return m.oauth.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
}

// Exchange trades an authorization code for a delegated token.
func (m *Manager) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	return m.oauth.Exchange(ctx, code)
}

// SignIn stores the user's session and notifies subscribers.
func (m *Manager) SignIn(userID, email string, token *oauth2.Token) {
	m.mu.Lock()
	m.sessions[userID] = &Session{UserID: userID, Email: email, ProviderToken: token}
	m.mu.Unlock()

	m.notify(Event{UserID: userID, SignedIn: true})
}

// SignOut tears down the user's session and notifies subscribers.
func (m *Manager) SignOut(userID string) {
	m.mu.Lock()
	delete(m.sessions, userID)
	m.mu.Unlock()

	m.notify(Event{UserID: userID, SignedIn: false})
}

// Current returns the user's session, if signed in.
func (m *Manager) Current(userID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[userID]
	return s, ok
}

// ProviderToken returns the delegated calendar bearer token for the user,
// or empty when no session (calendar sync is then skipped, not failed).
func (m *Manager) ProviderToken(userID string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.sessions[userID]; ok && s.ProviderToken != nil {
		return s.ProviderToken.AccessToken
	}
	return ""
}

// Subscribe registers for session change events. The returned cancel
// function unregisters and closes the channel.
func (m *Manager) Subscribe() (<-chan Event, func()) {
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	ch := make(chan Event, 16)
	m.subs[id] = ch
	m.mu.Unlock()

	cancel := func() {
		m.mu.Lock()
		if existing, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(existing)
		}
		m.mu.Unlock()
	}
	return ch, cancel
}

// IsConfigured reports whether the OAuth flow is available.
func (m *Manager) IsConfigured() bool {
	return m.oauth != nil
}

func (m *Manager) notify(ev Event) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, ch := range m.subs {
		select {
		case ch <- ev:
		default:
			// Slow subscriber; drop rather than block the writer.
		}
	}
}
