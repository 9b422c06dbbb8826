package shared

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "diptrack:session:"

// FlashMessage represents a one-time notification stored in session.
type FlashMessage struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Identity is the signed-in user as recorded at login. Roles are the raw role
// names; the authorization table decides what they grant.
type Identity struct {
	UserID int64    `json:"user_id"`
	Email  string   `json:"email"`
	Name   string   `json:"name"`
	Roles  []string `json:"roles"`
}

// SessionManager keeps cookie sessions in Redis with a sliding expiry.
type SessionManager struct {
	client     *redis.Client
	cookieName string
	ttl        time.Duration
	secure     bool
}

// Session holds per-request session data.
type Session struct {
	ID        string
	values    map[string]string
	identity  *Identity
	flashes   []FlashMessage
	retiredID string
	isNew     bool
	dirty     bool
	destroyed bool
}

type sessionPayload struct {
	Values   map[string]string `json:"values,omitempty"`
	Identity *Identity         `json:"identity,omitempty"`
	Flashes  []FlashMessage    `json:"flashes,omitempty"`
}

// NewSessionManager constructs a SessionManager. Session ids come from
// crypto/rand, so secret only guards against an empty configuration.
func NewSessionManager(client *redis.Client, cookieName string, secret string, ttl time.Duration, secure bool) *SessionManager {
	if secret == "" {
		panic("shared: session secret must not be empty")
	}
	return &SessionManager{
		client:     client,
		cookieName: cookieName,
		ttl:        ttl,
		secure:     secure,
	}
}

// Load returns the session named by the request cookie, or a fresh one when
// the cookie is absent or its Redis entry has expired.
func (sm *SessionManager) Load(ctx context.Context, r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(sm.cookieName)
	if errors.Is(err, http.ErrNoCookie) || (err == nil && cookie.Value == "") {
		return sm.newSession()
	}
	if err != nil {
		return nil, err
	}

	raw, err := sm.client.Get(ctx, sessionKeyPrefix+cookie.Value).Bytes()
	if errors.Is(err, redis.Nil) {
		// Never adopt a client-chosen id.
		return sm.newSession()
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	var stored sessionPayload
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	sess := &Session{
		ID:       cookie.Value,
		values:   stored.Values,
		identity: stored.Identity,
		flashes:  stored.Flashes,
	}
	if sess.values == nil {
		sess.values = make(map[string]string)
	}
	return sess, nil
}

// Commit persists the session and writes the cookie. Untouched sessions only
// have their expiry extended.
func (sm *SessionManager) Commit(ctx context.Context, w http.ResponseWriter, r *http.Request, sess *Session) error {
	if sess == nil {
		return nil
	}
	if sess.retiredID != "" {
		if err := sm.client.Del(ctx, sessionKeyPrefix+sess.retiredID).Err(); err != nil {
			return fmt.Errorf("retire session: %w", err)
		}
		sess.retiredID = ""
	}

	if sess.destroyed {
		if err := sm.client.Del(ctx, sessionKeyPrefix+sess.ID).Err(); err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
		http.SetCookie(w, sm.cookie("", -1))
		return nil
	}

	switch {
	case sess.dirty || sess.isNew:
		data, err := json.Marshal(sessionPayload{Values: sess.values, Identity: sess.identity, Flashes: sess.flashes})
		if err != nil {
			return err
		}
		if err := sm.client.Set(ctx, sessionKeyPrefix+sess.ID, data, sm.ttl).Err(); err != nil {
			return fmt.Errorf("save session: %w", err)
		}
		sess.dirty, sess.isNew = false, false
	default:
		if err := sm.client.Expire(ctx, sessionKeyPrefix+sess.ID, sm.ttl).Err(); err != nil {
			return fmt.Errorf("touch session: %w", err)
		}
	}

	http.SetCookie(w, sm.cookie(sess.ID, int(sm.ttl/time.Second)))
	return nil
}

// SignIn records identity on the session under a new id. The old id and every
// stored value, including the CSRF token, are dropped.
func (sm *SessionManager) SignIn(sess *Session, identity Identity) error {
	if sess == nil {
		return errors.New("shared: session missing")
	}
	id, err := newSessionID()
	if err != nil {
		return err
	}
	if !sess.isNew {
		sess.retiredID = sess.ID
	}
	identity.Roles = append([]string(nil), identity.Roles...)
	sess.ID = id
	sess.identity = &identity
	sess.values = make(map[string]string)
	sess.dirty = true
	return nil
}

// Destroy marks the session for deletion.
func (sm *SessionManager) Destroy(sess *Session) {
	if sess == nil {
		return
	}
	sess.destroyed = true
}

// TTL exposes the configured session lifetime.
func (sm *SessionManager) TTL() time.Duration {
	return sm.ttl
}

func (sm *SessionManager) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     sm.cookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (sm *SessionManager) newSession() (*Session, error) {
	id, err := newSessionID()
	if err != nil {
		return nil, err
	}
	return &Session{ID: id, values: make(map[string]string), isNew: true}, nil
}

func newSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("session id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Identity returns the signed-in user, if any.
func (s *Session) Identity() (Identity, bool) {
	if s == nil || s.identity == nil {
		return Identity{}, false
	}
	id := *s.identity
	id.Roles = append([]string(nil), s.identity.Roles...)
	return id, true
}

// Set stores a key-value pair.
func (s *Session) Set(key, value string) {
	if s.values == nil {
		s.values = make(map[string]string)
	}
	s.values[key] = value
	s.dirty = true
}

// Get retrieves a value.
func (s *Session) Get(key string) string {
	return s.values[key]
}

// Delete removes a value.
func (s *Session) Delete(key string) {
	if _, ok := s.values[key]; !ok {
		return
	}
	delete(s.values, key)
	s.dirty = true
}

// AddFlash queues a flash message for the next rendered page.
func (s *Session) AddFlash(msg FlashMessage) {
	s.flashes = append(s.flashes, msg)
	s.dirty = true
}

// PopFlash removes and returns the oldest flash message.
func (s *Session) PopFlash() *FlashMessage {
	if len(s.flashes) == 0 {
		return nil
	}
	msg := s.flashes[0]
	s.flashes = s.flashes[1:]
	s.dirty = true
	return &msg
}
