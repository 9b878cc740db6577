package negotiate

import (
	"context"
	"net"
	"net/http"

	"github.com/google/uuid"
)

type connIDKey struct{}

// ConnContext tags each accepted connection with a unique ID. Install it as
// http.Server.ConnContext when correlating by connection.
func ConnContext(ctx context.Context, _ net.Conn) context.Context {
	return context.WithValue(ctx, connIDKey{}, uuid.NewString())
}

// ConnectionID returns the ID installed by ConnContext.
func ConnectionID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(connIDKey{}).(string)
	return id, ok && id != ""
}

// keySource derives the correlation key for a request.
type keySource interface {
	key(w http.ResponseWriter, r *http.Request) string
}

// connectionKeys correlates by the connection the request arrived on.
type connectionKeys struct{}

func (connectionKeys) key(_ http.ResponseWriter, r *http.Request) string {
	if id, ok := ConnectionID(r.Context()); ok {
		return "conn:" + id
	}
	return "addr:" + r.RemoteAddr
}

// cookieKeys correlates by a server-issued cookie. A request without a valid
// cookie is issued a new one; a valid cookie is kept for as long as the
// client sends it.
type cookieKeys struct {
	name   string
	secure bool
}

func (c cookieKeys) key(w http.ResponseWriter, r *http.Request) string {
	if ck, err := r.Cookie(c.name); err == nil {
		if id, err := uuid.Parse(ck.Value); err == nil {
			return "cookie:" + id.String()
		}
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     c.name,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return "cookie:" + id
}
