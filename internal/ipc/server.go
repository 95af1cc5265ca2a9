package ipc

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/sirupsen/logrus"
)

// Handler answers a single decoded Request with a Response. Implementations
// must never panic; the server recovers defensively but a Handler should
// itself map internal failures to a Response carrying a non-empty Error
// field (spec §4.1: "the handler returns a typed error rather than
// terminating the service").
type Handler func(*Request) *Response

// Server accepts connections on a Unix domain socket and answers each with
// exactly one request/response round before closing it (spec §4.2).
type Server struct {
	listener net.Listener
	socket   string
	handler  Handler
	log      *logrus.Entry
}

// Listen creates the Unix domain socket at path (removing any stale socket
// file left behind by an unclean previous shutdown) and restricts its
// filesystem permissions to the owning user, per spec §4.2's security note.
func Listen(path string, handler Handler, log *logrus.Entry) (*Server, error) {
	if _, err := os.Stat(path); err == nil {
		_ = os.Remove(path)
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("ipc: listening on %s: %w", path, err)
	}
	if err := os.Chmod(path, 0600); err != nil {
		ln.Close()
		return nil, fmt.Errorf("ipc: restricting socket permissions: %w", err)
	}

	return &Server{listener: ln, socket: path, handler: handler, log: log}, nil
}

// Serve accepts connections until the listener is closed (by Close).
// It never returns a non-nil error for the expected "listener closed"
// shutdown path.
func (s *Server) Serve() error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("ipc: accept: %w", err)
		}
		go s.handleConn(conn)
	}
}

// Close closes the listening socket and unlinks the socket file (spec §4.1
// lifecycle: "close the listening socket, remove the socket file").
func (s *Server) Close() error {
	if err := s.listener.Close(); err != nil {
		return err
	}
	if err := os.Remove(s.socket); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	payload, err := ReadFrame(conn)
	if err != nil {
		if !errors.Is(err, io.EOF) {
			s.log.WithError(err).Debug("connection closed before a complete request frame")
		}
		return
	}

	req, err := DecodeRequest(payload)
	if err != nil {
		s.log.WithError(err).Warn("malformed request frame")
		return
	}

	resp := s.safeHandle(req)

	respPayload, err := EncodeResponse(resp)
	if err != nil {
		s.log.WithError(err).Error("encoding response")
		return
	}
	if err := WriteFrame(conn, respPayload); err != nil {
		s.log.WithError(err).Debug("writing response frame")
	}
}

// safeHandle guards against a Handler panic bringing down the whole
// long-lived daemon over a single bad request.
func (s *Server) safeHandle(req *Request) (resp *Response) {
	defer func() {
		if r := recover(); r != nil {
			s.log.WithField("panic", r).Error("handler panicked")
			resp = &Response{Error: "internal"}
		}
	}()
	return s.handler(req)
}
