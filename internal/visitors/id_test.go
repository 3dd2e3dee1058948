package visitors_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio/internal/visitors"
)

func newIdentityApp(resolver *visitors.Resolver) *fiber.App {
	app := fiber.New()
	app.Get("/identity", func(c *fiber.Ctx) error {
		return c.JSON(resolver.Resolve(c))
	})
	app.Get("/peek", func(c *fiber.Ctx) error {
		return c.JSON(visitors.Peek(c))
	})
	return app
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func doIdentity(t *testing.T, app *fiber.App, path string, cookies ...*http.Cookie) (visitors.Identity, map[string]*http.Cookie) {
	t.Helper()
	req := httptest.NewRequest("GET", path, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var id visitors.Identity
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&id))

	set := make(map[string]*http.Cookie)
	for _, c := range resp.Cookies() {
		set[c.Name] = c
	}
	return id, set
}

func TestResolver(t *testing.T) {
	t.Run("first visit issues all cookies and is new", func(t *testing.T) {
		app := newIdentityApp(visitors.NewResolver(false, visitors.WithIDGenerator(sequentialIDs())))

		id, cookies := doIdentity(t, app, "/identity")
		assert.Equal(t, "id-1", id.VisitorID)
		assert.Equal(t, "id-2", id.SessionID)
		assert.True(t, id.IsNewVisitor)

		require.Contains(t, cookies, visitors.VisitorCookie)
		require.Contains(t, cookies, visitors.SessionCookie)
		require.Contains(t, cookies, visitors.ReturningCookie)
		assert.False(t, cookies[visitors.VisitorCookie].Expires.IsZero(), "visitor cookie must persist")
		assert.True(t, cookies[visitors.SessionCookie].Expires.IsZero(), "session cookie must be browser-session scoped")
		assert.Equal(t, "id-2", cookies[visitors.ReturningCookie].Value)
	})

	t.Run("same session stays new", func(t *testing.T) {
		app := newIdentityApp(visitors.NewResolver(false, visitors.WithIDGenerator(sequentialIDs())))

		id, cookies := doIdentity(t, app, "/identity",
			&http.Cookie{Name: visitors.VisitorCookie, Value: "v1"},
			&http.Cookie{Name: visitors.SessionCookie, Value: "s1"},
			&http.Cookie{Name: visitors.ReturningCookie, Value: "s1"},
		)
		assert.Equal(t, visitors.Identity{VisitorID: "v1", SessionID: "s1", IsNewVisitor: true}, id)
		assert.Empty(t, cookies, "nothing should be reissued")
	})

	t.Run("later session is returning and keeps visitor id", func(t *testing.T) {
		app := newIdentityApp(visitors.NewResolver(false, visitors.WithIDGenerator(sequentialIDs())))

		id, cookies := doIdentity(t, app, "/identity",
			&http.Cookie{Name: visitors.VisitorCookie, Value: "v1"},
			&http.Cookie{Name: visitors.ReturningCookie, Value: "s1"},
		)
		assert.Equal(t, "v1", id.VisitorID)
		assert.Equal(t, "id-1", id.SessionID)
		assert.False(t, id.IsNewVisitor)
		assert.NotContains(t, cookies, visitors.VisitorCookie)
		assert.NotContains(t, cookies, visitors.ReturningCookie)
	})

	t.Run("secure resolver issues cross-site cookies", func(t *testing.T) {
		app := newIdentityApp(visitors.NewResolver(true))

		_, cookies := doIdentity(t, app, "/identity")
		require.Contains(t, cookies, visitors.VisitorCookie)
		assert.True(t, cookies[visitors.VisitorCookie].Secure)
		assert.Equal(t, http.SameSiteNoneMode, cookies[visitors.VisitorCookie].SameSite)
	})
}

func TestPeek(t *testing.T) {
	app := newIdentityApp(visitors.NewResolver(false))

	id, cookies := doIdentity(t, app, "/peek")
	assert.Equal(t, visitors.Identity{IsNewVisitor: true}, id)
	assert.Empty(t, cookies)

	id, _ = doIdentity(t, app, "/peek",
		&http.Cookie{Name: visitors.VisitorCookie, Value: "v1"},
		&http.Cookie{Name: visitors.SessionCookie, Value: "s2"},
		&http.Cookie{Name: visitors.ReturningCookie, Value: "s1"},
	)
	assert.Equal(t, visitors.Identity{VisitorID: "v1", SessionID: "s2", IsNewVisitor: false}, id)
}
