package server

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-dev/xvm/internal/config"
	"github.com/vango-dev/xvm/pkg/dom"
	"github.com/vango-dev/xvm/pkg/metrics"
	"github.com/vango-dev/xvm/pkg/protocol"
	"github.com/vango-dev/xvm/pkg/template"
	"github.com/vango-dev/xvm/pkg/vm"
)

func counterApp() *vm.App {
	app := vm.NewApp(vm.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	app.Define("counter", &vm.Definition{
		Data: map[string]any{"count": 0},
		Template: &template.Node{
			Type: "div",
			Events: map[string]any{"tap": template.Handler(func(s template.Scope, ev template.Event) (any, error) {
				n, _ := s.Get("count").(int)
				return nil, s.Set("count", n+1)
			})},
			Children: []*template.Node{{
				Type: "text",
				Attr: map[string]any{"value": template.Path("count")},
			}},
		},
	})
	return app
}

type fixture struct {
	srv *Server
	ts  *httptest.Server
	reg *prometheus.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)
	srv := New(counterApp(), config.New().Server,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithGatherer(reg),
		WithSessionObserver(collector),
	)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})
	return &fixture{srv: srv, ts: ts, reg: reg}
}

func (f *fixture) dial(t *testing.T, component string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.ts.URL, "http") + "/ws/" + component
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) *protocol.Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	frame, err := protocol.DecodeFrame(msg)
	require.NoError(t, err)
	return frame
}

func readCommands(t *testing.T, conn *websocket.Conn) (string, []dom.Command) {
	t.Helper()
	frame := readFrame(t, conn)
	require.Equal(t, protocol.FrameCommands, frame.Type)
	docID, cmds, err := protocol.DecodeCommands(frame.Payload)
	require.NoError(t, err)
	return docID, cmds
}

func send(t *testing.T, conn *websocket.Conn, ft protocol.FrameType, payload []byte) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, protocol.NewFrame(ft, payload).Encode()))
}

func TestSessionRoundTrip(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t, "counter")

	docID, cmds := readCommands(t, conn)
	require.NotEmpty(t, cmds)
	assert.Equal(t, dom.OpCreateFinish, cmds[len(cmds)-1].Op)
	var div int
	for _, c := range cmds {
		if c.Op == dom.OpCreate && c.Type == "div" {
			div = c.Ref
		}
	}
	require.NotZero(t, div)

	send(t, conn, protocol.FrameEvent, protocol.EncodeEvent(&protocol.Event{DocID: docID, Ref: div, Type: "tap"}))
	_, cmds = readCommands(t, conn)
	require.Len(t, cmds, 2)
	assert.Equal(t, dom.OpUpdateAttr, cmds[0].Op)
	assert.Equal(t, "value", cmds[0].Key)
	assert.Equal(t, "1", template.String(cmds[0].Value))
	assert.Equal(t, dom.OpUpdateFinish, cmds[1].Op)

	require.Eventually(t, func() bool { return f.srv.Sessions() == 1 }, time.Second, 10*time.Millisecond)
}

func TestSessionErrors(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t, "counter")
	readCommands(t, conn)

	t.Run("unknown ref", func(t *testing.T) {
		send(t, conn, protocol.FrameEvent, protocol.EncodeEvent(&protocol.Event{Ref: 9999, Type: "tap"}))
		frame := readFrame(t, conn)
		require.Equal(t, protocol.FrameError, frame.Type)
		em, err := protocol.DecodeErrorMessage(frame.Payload)
		require.NoError(t, err)
		assert.Equal(t, "E243", em.Code)
		assert.False(t, em.Fatal)
	})

	t.Run("malformed frame", func(t *testing.T) {
		require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{0x7f, 0x00}))
		frame := readFrame(t, conn)
		require.Equal(t, protocol.FrameError, frame.Type)
		em, err := protocol.DecodeErrorMessage(frame.Payload)
		require.NoError(t, err)
		assert.Equal(t, "E240", em.Code)
	})

	t.Run("ping", func(t *testing.T) {
		send(t, conn, protocol.FramePing, nil)
		assert.Equal(t, protocol.FramePing, readFrame(t, conn).Type)
	})
}

func TestUnknownComponent(t *testing.T) {
	f := newFixture(t)
	resp, err := http.Get(f.ts.URL + "/ws/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.ts.URL + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))

	f.dial(t, "counter")
	require.Eventually(t, func() bool { return f.srv.Sessions() == 1 }, time.Second, 10*time.Millisecond)

	resp, err = http.Get(f.ts.URL + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), "xvm_active_sessions 1")
}

func TestCloseDisconnectsSessions(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t, "counter")
	readCommands(t, conn)
	require.Eventually(t, func() bool { return f.srv.Sessions() == 1 }, time.Second, 10*time.Millisecond)

	f.srv.Close()
	assert.Zero(t, f.srv.Sessions())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "err = %v", err)
}

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"no origin", nil, "", true},
		{"same origin", nil, "http://example.com", true},
		{"cross origin", nil, "http://evil.com", false},
		{"allowed", []string{"http://evil.com"}, "http://evil.com", true},
		{"wildcard", []string{"*"}, "http://any.com", true},
		{"not listed", []string{"http://a.com"}, "http://example.com", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.New().Server
			cfg.AllowedOrigins = tt.allowed
			srv := New(vm.NewApp(), cfg)
			r := httptest.NewRequest(http.MethodGet, "http://example.com/ws/x", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := srv.checkOrigin(r); got != tt.want {
				t.Errorf("checkOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
			}
		})
	}
}

func TestRemoteIP(t *testing.T) {
	proxies := newProxyMatcher([]string{"10.0.0.0/8", "192.168.1.1"}, slog.Default())
	tests := []struct {
		name   string
		remote string
		xff    string
		want   string
	}{
		{"direct", "203.0.113.5:1234", "", "203.0.113.5"},
		{"untrusted peer ignores header", "203.0.113.5:1234", "1.2.3.4", "203.0.113.5"},
		{"trusted peer", "10.1.2.3:80", "1.2.3.4", "1.2.3.4"},
		{"rightmost untrusted hop", "192.168.1.1:80", "1.2.3.4, 5.6.7.8, 10.0.0.2", "5.6.7.8"},
		{"all trusted", "10.1.2.3:80", "10.0.0.9", "10.0.0.9"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := remoteIP(r, proxies); got != tt.want {
				t.Errorf("remoteIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
