package db

import (
	"context"
	"net"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceotind/sharp-form-backend/internal/oxidb/oxidbtest"
)

func hostPort(t *testing.T, addr string) (string, int) {
	t.Helper()
	host, p, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(p)
	require.NoError(t, err)
	return host, port
}

func TestPoolRoundRobinAndPing(t *testing.T) {
	s := oxidbtest.Start(t, func(map[string]any) map[string]any { return oxidbtest.OK("pong") })
	host, port := s.Addr()

	p, err := NewPool(host, port, 3)
	require.NoError(t, err)
	defer p.Close()

	seen := map[any]bool{}
	for i := 0; i < 3; i++ {
		seen[p.Get()] = true
	}
	assert.Len(t, seen, 3)
	assert.NoError(t, p.Ping(context.Background()))
}

func TestPoolPingUnexpectedReply(t *testing.T) {
	s := oxidbtest.Start(t, func(map[string]any) map[string]any { return oxidbtest.OK("nope") })
	host, port := s.Addr()

	p, err := NewPool(host, port, 1)
	require.NoError(t, err)
	defer p.Close()
	assert.Error(t, p.Ping(context.Background()))
}

func TestNewPoolConnectFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	host, port := hostPort(t, ln.Addr().String())
	require.NoError(t, ln.Close())

	_, err = NewPool(host, port, 2)
	assert.Error(t, err)
}
