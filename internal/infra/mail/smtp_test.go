package mail

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
)

// smtpServer speaks just enough SMTP for one client. With holdData set it reads the whole
// message but never answers the closing dot, like a server stuck before accepting it.
type smtpServer struct {
	ln       net.Listener
	holdData bool

	mu       sync.Mutex
	accepted []string
	dropped  chan struct{}
}

func startSMTPServer(t *testing.T, holdData bool) *smtpServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &smtpServer{ln: ln, holdData: holdData, dropped: make(chan struct{})}
	t.Cleanup(func() { _ = ln.Close() })
	go s.serve()
	return s
}

func (s *smtpServer) port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

func (s *smtpServer) messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.accepted...)
}

func (s *smtpServer) serve() {
	conn, err := s.ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()
	defer close(s.dropped)

	r := bufio.NewReader(conn)
	reply := func(line string) { _, _ = conn.Write([]byte(line + "\r\n")) }

	reply("220 relay.test ESMTP")
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.ToUpper(strings.TrimSpace(line))
		switch {
		case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
			reply("250-relay.test")
			reply("250 8BITMIME")
		case strings.HasPrefix(cmd, "MAIL"), strings.HasPrefix(cmd, "RCPT"):
			reply("250 OK")
		case cmd == "DATA":
			reply("354 go ahead")
			var body strings.Builder
			for {
				l, err := r.ReadString('\n')
				if err != nil {
					return
				}
				if l == ".\r\n" {
					break
				}
				body.WriteString(l)
			}
			if s.holdData {
				// wait for the client to hang up
				_, _ = r.ReadString('\n')
				return
			}
			s.mu.Lock()
			s.accepted = append(s.accepted, body.String())
			s.mu.Unlock()
			reply("250 queued")
		case cmd == "QUIT":
			reply("221 bye")
			return
		default:
			reply("502 not implemented")
		}
	}
}

func TestSMTPDialerDelivers(t *testing.T) {
	srv := startSMTPServer(t, false)
	s := newSender(NewSMTPDialer("127.0.0.1", srv.port(), "", ""))

	res := s.Send(context.Background(), lead())

	require.True(t, res.Success, res.Error)
	msgs := srv.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "To: desk@gym.example")
}

func TestSMTPDialerCutsConnectionOnTimeout(t *testing.T) {
	srv := startSMTPServer(t, true)
	s := newSender(NewSMTPDialer("127.0.0.1", srv.port(), "", ""))
	s.Timeout = 200 * time.Millisecond

	start := time.Now()
	res := s.Send(context.Background(), lead())

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "deadline exceeded")
	assert.Less(t, time.Since(start), 2*time.Second)

	// nothing keeps talking to the server after the attempt is reported
	select {
	case <-srv.dropped:
	case <-time.After(2 * time.Second):
		t.Fatal("connection still open after the send timed out")
	}
	assert.Empty(t, srv.messages())
}

func TestSMTPDialerRefusedConnection(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	d := NewSMTPDialer("127.0.0.1", port, "", "")
	err = d.DialAndSend(context.Background(), mustMessage(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), strconv.Itoa(port))
}

func TestNewSMTPDialerImplicitTLSOn465(t *testing.T) {
	assert.True(t, NewSMTPDialer("smtp.example.com", 465, "u", "p").SSL)
	assert.False(t, NewSMTPDialer("smtp.example.com", 587, "u", "p").SSL)
}

func mustMessage(t *testing.T) *gomail.Message {
	t.Helper()
	m, err := newSender(&fakeDialer{}).buildMessage(lead())
	require.NoError(t, err)
	return m
}
