// Package testutil starts an in-process MQTT broker for tests that need a
// real peer: the paho collector client and the end-to-end node tests.
package testutil

import (
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/stretchr/testify/require"
)

// Broker is a running in-process broker listening on a loopback port.
type Broker struct {
	Server *mochi.Server
	Host   string
	Port   int
}

// Addr returns the broker as "host:port".
func (b *Broker) Addr() string {
	return net.JoinHostPort(b.Host, strconv.Itoa(b.Port))
}

// StartBroker starts a broker that accepts every client on 127.0.0.1 and an
// OS-chosen port. It is closed when the test ends.
func StartBroker(t testing.TB) *Broker {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err, "listen for broker")

	server := mochi.New(&mochi.Options{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, server.AddHook(new(auth.AllowHook), nil), "add allow hook")
	require.NoError(t, server.AddListener(listeners.NewNet("test", ln)), "add listener")
	require.NoError(t, server.Serve(), "serve broker")

	t.Cleanup(func() {
		_ = server.Close()
	})

	addr := ln.Addr().(*net.TCPAddr)
	return &Broker{
		Server: server,
		Host:   addr.IP.String(),
		Port:   addr.Port,
	}
}
