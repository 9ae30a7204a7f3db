// Package listener implements §4.5: it accepts TCP, performs the
// WebSocket upgrade, evaluates the Origin header against an allow-list,
// and spawns one session actor per accepted connection. Grounded on
// EdgxCloud-EdgeFlow's websocket_server.go accept-and-register loop,
// generalized from a shared broadcast registry to one session per
// connection.
package listener

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/cubeast-app/connect/internal/bluetooth"
	"github.com/cubeast-app/connect/internal/groutine"
	"github.com/cubeast-app/connect/internal/session"
)

// defaultAllowedOrigins are the production hosts named in §6.1.
var defaultAllowedOrigins = map[string]bool{
	"https://app.cubeast.com":         true,
	"https://app.staging.cubeast.com": true,
	"https://app.beta.cubeast.com":    true,
}

// OriginAllower decides whether a handshake's Origin header is accepted.
// internal/config.AllowList implements this over a hot-reloadable file;
// a nil Allowed falls back to defaultAllowedOrigins.
type OriginAllower interface {
	Allowed(origin string) bool
}

// Options configures a Listener. Allowed overrides defaultAllowedOrigins
// when non-nil; AllowAnyOrigin skips the check entirely, the "allow any"
// override §4.5 grants to the surrounding application.
type Options struct {
	Bind           string
	AllowAnyOrigin bool
	Allowed        OriginAllower
	Version        string
	StatusSource   session.StatusSource
	ConnectTimeout time.Duration
}

// Listener owns the HTTP server that performs WebSocket upgrades.
type Listener struct {
	opts     Options
	bt       *bluetooth.Actor
	logger   *logrus.Logger
	upgrader websocket.Upgrader

	server *http.Server

	mu       sync.Mutex
	sessions map[*session.Session]struct{}
}

// New constructs a Listener. Call Serve to accept connections.
func New(opts Options, bt *bluetooth.Actor, logger *logrus.Logger) *Listener {
	l := &Listener{
		opts:     opts,
		bt:       bt,
		logger:   logger,
		sessions: make(map[*session.Session]struct{}),
	}
	l.upgrader = websocket.Upgrader{
		CheckOrigin: l.checkOrigin,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", l.handleUpgrade)
	l.server = &http.Server{Addr: opts.Bind, Handler: mux}
	return l
}

func (l *Listener) checkOrigin(r *http.Request) bool {
	if l.opts.AllowAnyOrigin {
		return true
	}
	origin := r.Header.Get("Origin")
	if l.opts.Allowed != nil {
		return l.opts.Allowed.Allowed(origin)
	}
	return defaultAllowedOrigins[origin]
}

// Serve blocks accepting connections until ctx is cancelled or the
// listener's Addr can't be bound.
func (l *Listener) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	groutine.Go(ctx, "listener-serve", func(ctx context.Context) {
		errCh <- l.server.ListenAndServe()
	})
	select {
	case <-ctx.Done():
		_ = l.server.Close()
		return ctx.Err()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (l *Listener) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// A failed CheckOrigin already wrote the 403 via Upgrade itself.
		if l.logger != nil {
			l.logger.WithError(err).Debug("listener: upgrade failed")
		}
		return
	}

	sock := &wsConn{conn: conn}
	sess := session.New(context.Background(), sock, l.bt, l.logger, l.opts.Version, l.opts.StatusSource, l.opts.ConnectTimeout)

	l.mu.Lock()
	l.sessions[sess] = struct{}{}
	l.mu.Unlock()

	if l.logger != nil {
		l.logger.WithField("session_id", sess.ID).Info("listener: session opened")
	}

	groutine.Go(context.Background(), "session-"+sess.ID, func(ctx context.Context) {
		defer func() {
			l.mu.Lock()
			delete(l.sessions, sess)
			l.mu.Unlock()
			if l.logger != nil {
				l.logger.WithField("session_id", sess.ID).Info("listener: session closed")
			}
		}()
		sess.Run()
	})
}

// wsConn adapts *websocket.Conn to session.Conn, restricting the session
// actor to text frames carrying UTF-8 JSON per §6.1.
type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *wsConn) WriteMessage(data []byte) error {
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

var _ session.Conn = (*wsConn)(nil)
