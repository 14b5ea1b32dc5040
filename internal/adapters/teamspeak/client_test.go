package teamspeak

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const ack = "error id=0 msg=ok\n\r"

// peer is the server side of a ServerQuery test connection.
type peer struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func listen(t *testing.T) net.Listener {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	return ln
}

func accept(t *testing.T, ln net.Listener) *peer {
	t.Helper()

	conn, err := ln.Accept()
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return &peer{t: t, conn: conn, r: bufio.NewReader(conn)}
}

func (p *peer) send(s string) {
	p.t.Helper()
	_, err := p.conn.Write([]byte(s))
	require.NoError(p.t, err)
}

func (p *peer) expect(want string) {
	p.t.Helper()
	require.NoError(p.t, p.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	line, err := p.r.ReadString('\n')
	require.NoError(p.t, err)
	assert.Equal(p.t, want+"\r\n", line)
}

func (p *peer) handshake() {
	p.t.Helper()
	p.send("TS3\n\r" + banner)
	p.expect(`login serveradmin secret`)
	p.send(ack)
	p.expect("use port=9987")
	p.send(ack)
	p.expect("servernotifyregister event=server")
	p.send(ack)
}

func newClientMachine() (*Machine, *announcer) {
	a := &announcer{}
	m := NewMachine(Credentials{Login: "serveradmin", Password: "secret", ServerPort: 9987}, a.announce)
	return m, a
}

func dialTest(t *testing.T, ctx context.Context, ln net.Listener, keepalive time.Duration, m *Machine) (*Client, chan error) {
	t.Helper()

	closed := make(chan error, 1)
	client, err := Dial(ctx, ln.Addr().String(), keepalive, m, func(err error) { closed <- err })
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return client, closed
}

func TestClientSession(t *testing.T) {
	ln := listen(t)
	m, a := newClientMachine()
	_, closed := dialTest(t, t.Context(), ln, time.Minute, m)

	srv := accept(t, ln)
	srv.handshake()
	srv.send("notifycliententerview cfid=0 ctid=1 reasonid=0 clid=7 client_nickname=Bob client_type=0\n\r")

	assert.Eventually(t, func() bool { return len(a.messages()) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, Subscribed, m.State())
	assert.Equal(t, []string{"Bob"}, m.Clients())

	require.NoError(t, srv.conn.Close())

	select {
	case err := <-closed:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("connection loss was not reported")
	}
}

func TestClientKeepaliveKeepsPartialLine(t *testing.T) {
	ln := listen(t)
	m, a := newClientMachine()
	_, closed := dialTest(t, t.Context(), ln, 50*time.Millisecond, m)

	srv := accept(t, ln)
	srv.handshake()
	srv.send("notifycliententerview clid=7 ")

	srv.expect("whoami")
	srv.send("client_nickname=Bob client_type=0\n\r")

	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"TeamSpeak user connected: Bob"}, a.messages())
	}, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, closed)
}

func TestClientNoKeepaliveDuringHandshake(t *testing.T) {
	ln := listen(t)
	m, _ := newClientMachine()
	_, _ = dialTest(t, t.Context(), ln, 20*time.Millisecond, m)

	srv := accept(t, ln)
	srv.send(banner)
	srv.expect(`login serveradmin secret`)

	time.Sleep(100 * time.Millisecond)
	srv.send(ack)
	srv.expect("use port=9987")
	assert.Equal(t, Authorized, m.State())
}

func TestClientClose(t *testing.T) {
	ln := listen(t)
	m, _ := newClientMachine()
	client, closed := dialTest(t, t.Context(), ln, time.Minute, m)
	_ = accept(t, ln)

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())

	<-client.Done()
	assert.Empty(t, closed)
}

func TestClientContextCancel(t *testing.T) {
	ln := listen(t)
	m, _ := newClientMachine()
	ctx, cancel := context.WithCancel(t.Context())
	client, closed := dialTest(t, ctx, ln, time.Minute, m)
	_ = accept(t, ln)

	cancel()

	select {
	case <-client.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("reader did not stop after cancellation")
	}
	assert.Empty(t, closed)
}

func TestDialRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	m, _ := newClientMachine()
	_, err = Dial(t.Context(), addr, time.Minute, m, nil)
	assert.Error(t, err)
}
