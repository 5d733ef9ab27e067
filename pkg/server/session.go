package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/xvm/internal/errors"
	"github.com/vango-dev/xvm/pkg/dom"
	"github.com/vango-dev/xvm/pkg/protocol"
	"github.com/vango-dev/xvm/pkg/sched"
	"github.com/vango-dev/xvm/pkg/vm"
)

const (
	writeWait    = 10 * time.Second
	closeTimeout = 5 * time.Second
)

// Session is one websocket connection and the page it hosts. The page is
// only touched on the session's loop goroutine.
type Session struct {
	id        string
	component string
	remote    string

	srv    *Server
	conn   *websocket.Conn
	loop   *sched.Loop
	logger *slog.Logger

	out       chan []byte
	closing   chan struct{}
	closeOnce sync.Once
	done      chan struct{}

	page *vm.Page
}

func newSession(srv *Server, conn *websocket.Conn, component, remote string) *Session {
	id := uuid.NewString()
	logger := srv.logger.With("session", id, "component", component)
	return &Session{
		id:        id,
		component: component,
		remote:    remote,
		srv:       srv,
		conn:      conn,
		loop:      sched.NewLoop(sched.WithQueueSize(srv.cfg.QueueSize), sched.WithLoopLogger(logger)),
		logger:    logger,
		out:       make(chan []byte, srv.cfg.QueueSize),
		closing:   make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// ID returns the session id, which is also the page id.
func (s *Session) ID() string {
	return s.id
}

// Close flushes queued frames and closes the connection.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.closing)
	})
}

// Send implements dom.Sink.
func (s *Session) Send(docID string, cmds []dom.Command) error {
	frame := protocol.NewFrame(protocol.FrameCommands, protocol.EncodeCommands(docID, cmds))
	return s.enqueue(frame.Encode())
}

func (s *Session) enqueue(msg []byte) error {
	select {
	case <-s.done:
		return errors.New("E245").WithDetailf("session %s", s.id)
	default:
	}
	select {
	case s.out <- msg:
		return nil
	default:
		return errors.New("E244").WithDetailf("session %s: %d frames queued", s.id, len(s.out))
	}
}

// serve runs the session until the connection closes. The page is
// bootstrapped and driven on the loop goroutine; this goroutine only
// reads frames.
func (s *Session) serve(ctx context.Context, query map[string]any) {
	defer s.shutdown()

	go s.writeLoop()
	go func() {
		_ = s.loop.Run(context.Background())
	}()
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()

	if err := s.loop.Post(func() { s.bootstrap(ctx, query) }); err != nil {
		s.logger.Error("bootstrap not scheduled", "error", err)
		return
	}
	s.readLoop(ctx)
}

func (s *Session) bootstrap(ctx context.Context, query map[string]any) {
	_, span := s.srv.tracer.Start(ctx, "xvm.bootstrap", trace.WithAttributes(
		attribute.String("xvm.session", s.id),
		attribute.String("xvm.component", s.component),
	))
	defer span.End()

	p, err := s.srv.app.Bootstrap(s.component, vm.BootstrapOptions{
		ID:       s.id,
		Sink:     s,
		Deferrer: s.loop,
		Dispatch: s.loop.Post,
		Query:    query,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if p != nil {
			p.Destroy()
		}
		s.fail(err, true)
		return
	}
	s.page = p
	p.Show()
}

func (s *Session) readLoop(ctx context.Context) {
	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				s.logger.Error("read error", "error", err)
			}
			return
		}

		frame, err := protocol.DecodeFrame(msg)
		if err != nil {
			s.fail(errors.New("E240").Wrap(err), false)
			continue
		}

		switch frame.Type {
		case protocol.FrameEvent:
			s.handleEvent(ctx, frame.Payload)
		case protocol.FramePing:
			_ = s.enqueue(protocol.NewFrame(protocol.FramePing, nil).Encode())
		default:
			s.fail(errors.New("E241").WithDetailf("frame type %s", frame.Type), false)
		}
	}
}

func (s *Session) handleEvent(ctx context.Context, payload []byte) {
	ev, err := protocol.DecodeEvent(payload)
	if err != nil {
		s.fail(errors.New("E240").WithDetail("invalid event").Wrap(err), false)
		return
	}
	if err := s.loop.Post(func() { s.dispatch(ctx, ev) }); err != nil {
		s.fail(errors.New("E244").Wrap(err), false)
	}
}

// dispatch delivers a host event to the page. It runs on the loop.
func (s *Session) dispatch(ctx context.Context, ev *protocol.Event) {
	if s.page == nil || s.page.Destroyed() {
		return
	}
	_, span := s.srv.tracer.Start(ctx, "xvm.event", trace.WithAttributes(
		attribute.String("xvm.session", s.id),
		attribute.String("xvm.component", s.component),
		attribute.String("xvm.event", ev.Type),
		attribute.Int("xvm.ref", ev.Ref),
	))
	defer span.End()

	if err := s.page.FireEvent(ev.Ref, ev.Type, ev.Detail); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.fail(err, false)
	}
	if s.page.Fatal() {
		s.fail(errors.New("E242").WithDetailf("page %s stopped", s.id), true)
	}
}

// fail reports err to the host. A fatal error closes the session.
func (s *Session) fail(err error, fatal bool) {
	xe := errors.FromError(err, "E240")
	s.logger.Warn("session error", "code", xe.Code, "error", err, "fatal", fatal)
	msg := protocol.EncodeErrorMessage(&protocol.ErrorMessage{
		Code:    xe.Code,
		Message: err.Error(),
		Fatal:   fatal,
	})
	_ = s.enqueue(protocol.NewFrame(protocol.FrameError, msg).Encode())
	if fatal {
		s.Close()
	}
}

// writeLoop is the only writer on the connection. On close it flushes
// what is queued and sends a close message.
func (s *Session) writeLoop() {
	defer s.conn.Close()
	for {
		select {
		case msg := <-s.out:
			if err := s.write(msg); err != nil {
				s.logger.Debug("write failed", "error", err)
				return
			}
		case <-s.closing:
			for {
				select {
				case msg := <-s.out:
					if err := s.write(msg); err != nil {
						return
					}
					continue
				default:
				}
				break
			}
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

func (s *Session) write(msg []byte) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.BinaryMessage, msg)
}

// shutdown destroys the page on its loop, then stops the loop and the
// writer.
func (s *Session) shutdown() {
	destroyed := make(chan struct{})
	if err := s.loop.Post(func() {
		if s.page != nil {
			s.page.Destroy()
		}
		close(destroyed)
	}); err == nil {
		select {
		case <-destroyed:
		case <-time.After(closeTimeout):
			s.logger.Warn("page destroy timed out")
		}
	}
	s.loop.Close()
	close(s.done)
	s.Close()
}
