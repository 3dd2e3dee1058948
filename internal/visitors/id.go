// Package visitors issues and reads the visitor and session identifiers
// carried by the browser.
package visitors

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	VisitorCookie   = "visitor_id"
	SessionCookie   = "session_id"
	ReturningCookie = "returning_visitor"

	// VisitorTTL is the lifetime of the visitor id and returning marker.
	VisitorTTL = 365 * 24 * time.Hour
)

// Identity is what the browser is known by.
type Identity struct {
	VisitorID    string `json:"visitorId"`
	SessionID    string `json:"sessionId"`
	IsNewVisitor bool   `json:"isNewVisitor"`
}

// Resolver reads identity cookies and issues missing ones.
type Resolver struct {
	secure bool
	newID  func() string
	now    func() time.Time
}

type ResolverOption func(*Resolver)

// WithIDGenerator replaces uuid.NewString, for tests.
func WithIDGenerator(fn func() string) ResolverOption {
	return func(r *Resolver) {
		r.newID = fn
	}
}

// NewResolver returns a Resolver. Secure cookies are cross-site capable
// (SameSite=None), which browsers only accept over HTTPS.
func NewResolver(secure bool, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		secure: secure,
		newID:  uuid.NewString,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the request's identity, creating the visitor id, the
// session id and the returning marker when they are absent. An existing
// visitor id is never replaced.
//
// The returning marker stores the id of the session that created it, so a
// visitor stays "new" for the whole of their first session.
func (r *Resolver) Resolve(c *fiber.Ctx) Identity {
	id := Peek(c)

	if id.VisitorID == "" {
		id.VisitorID = r.newID()
		r.setCookie(c, VisitorCookie, id.VisitorID, VisitorTTL)
	}

	if id.SessionID == "" {
		id.SessionID = r.newID()
		r.setCookie(c, SessionCookie, id.SessionID, 0)
	}

	marker := strings.TrimSpace(c.Cookies(ReturningCookie))
	if marker == "" {
		marker = id.SessionID
		r.setCookie(c, ReturningCookie, marker, VisitorTTL)
	}
	id.IsNewVisitor = marker == id.SessionID

	return id
}

// Peek reads the identity cookies without issuing anything. IsNewVisitor is
// true when the returning marker is absent or belongs to the current session.
func Peek(c *fiber.Ctx) Identity {
	id := Identity{
		VisitorID: strings.TrimSpace(c.Cookies(VisitorCookie)),
		SessionID: strings.TrimSpace(c.Cookies(SessionCookie)),
	}
	marker := strings.TrimSpace(c.Cookies(ReturningCookie))
	id.IsNewVisitor = marker == "" || (id.SessionID != "" && marker == id.SessionID)
	return id
}

// EndSession expires the session cookie so the next page load starts a new
// session; a closed session id is never reused.
func (r *Resolver) EndSession(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		Expires:  r.now().Add(-time.Hour),
		HTTPOnly: true,
		Secure:   r.secure,
		SameSite: r.sameSite(),
	})
}

// ttl of zero issues a browser-session cookie.
func (r *Resolver) setCookie(c *fiber.Ctx, name, value string, ttl time.Duration) {
	cookie := &fiber.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HTTPOnly: true,
		Secure:   r.secure,
		SameSite: r.sameSite(),
	}
	if ttl > 0 {
		cookie.Expires = r.now().Add(ttl)
	} else {
		cookie.SessionOnly = true
	}
	c.Cookie(cookie)
}

func (r *Resolver) sameSite() string {
	if r.secure {
		return fiber.CookieSameSiteNoneMode
	}
	return fiber.CookieSameSiteLaxMode
}
