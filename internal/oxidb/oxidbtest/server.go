// Package oxidbtest runs an in-process server speaking the OxiDB wire
// protocol with scripted answers.
package oxidbtest

import (
	"encoding/binary"
	"encoding/json"
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ceotind/sharp-form-backend/internal/oxidb"
)

// Handler answers one decoded request.
type Handler func(req map[string]any) map[string]any

type Server struct {
	ln       net.Listener
	handle   Handler
	Requests chan map[string]any
}

// Start listens on a loopback port until the test ends.
func Start(t *testing.T, handle Handler) *Server {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := &Server{ln: ln, handle: handle, Requests: make(chan map[string]any, 256)}
	go s.serve()
	t.Cleanup(func() { ln.Close() })
	return s
}

func (s *Server) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.serveConn(conn)
	}
}

func (s *Server) serveConn(conn net.Conn) {
	defer conn.Close()
	for {
		lenBuf := make([]byte, 4)
		if _, err := io.ReadFull(conn, lenBuf); err != nil {
			return
		}
		payload := make([]byte, binary.LittleEndian.Uint32(lenBuf))
		if _, err := io.ReadFull(conn, payload); err != nil {
			return
		}
		var req map[string]any
		if err := json.Unmarshal(payload, &req); err != nil {
			return
		}
		select {
		case s.Requests <- req:
		default:
		}
		out, _ := json.Marshal(s.handle(req))
		binary.LittleEndian.PutUint32(lenBuf, uint32(len(out)))
		if _, err := conn.Write(append(lenBuf, out...)); err != nil {
			return
		}
	}
}

// Addr returns the host and port the server listens on.
func (s *Server) Addr() (string, int) {
	host, portStr, _ := net.SplitHostPort(s.ln.Addr().String())
	port, _ := strconv.Atoi(portStr)
	return host, port
}

// Connect dials the server and closes the client when the test ends.
func (s *Server) Connect(t *testing.T) *oxidb.Client {
	t.Helper()
	host, port := s.Addr()
	c, err := oxidb.Connect(host, port, time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

// OK wraps data in a success envelope.
func OK(data any) map[string]any { return map[string]any{"ok": true, "data": data} }

// Fail builds an error envelope.
func Fail(msg string) map[string]any { return map[string]any{"ok": false, "error": msg} }
