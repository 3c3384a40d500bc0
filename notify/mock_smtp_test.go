package notify

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"sync"
)

// mockSMTPServer accepts mail without authentication and captures messages
type mockSMTPServer struct {
	listener   net.Listener
	messages   []capturedEmail
	messagesMu sync.Mutex
	shouldFail bool
}

type capturedEmail struct {
	From string
	To   []string
	Data string
}

func newMockSMTPServer(shouldFail bool) (*mockSMTPServer, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("failed to create listener: %w", err)
	}
	server := &mockSMTPServer{listener: listener, shouldFail: shouldFail}
	go server.serve()
	return server, nil
}

func (m *mockSMTPServer) serve() {
	for {
		conn, err := m.listener.Accept()
		if err != nil {
			return
		}
		go m.handleConnection(conn)
	}
}

func (m *mockSMTPServer) handleConnection(conn net.Conn) {
	defer conn.Close()
	reply := func(s string) { _, _ = conn.Write([]byte(s + "\r\n")) }

	reply("220 mock-smtp-server ESMTP")

	scanner := bufio.NewScanner(conn)
	var from string
	var to []string
	var data strings.Builder
	inData := false

	for scanner.Scan() {
		line := scanner.Text()
		upper := strings.ToUpper(line)

		if inData {
			if line == "." {
				m.capture(from, to, data.String())
				reply("250 OK")
				inData = false
				continue
			}
			data.WriteString(strings.TrimPrefix(line, ".") + "\n")
			continue
		}

		switch {
		case strings.HasPrefix(upper, "EHLO"), strings.HasPrefix(upper, "HELO"):
			reply("250-mock-smtp-server")
			reply("250 8BITMIME")
		case strings.HasPrefix(upper, "MAIL FROM:"):
			if m.shouldFail {
				reply("550 Mailbox unavailable")
				continue
			}
			from = extractAddress(line)
			reply("250 OK")
		case strings.HasPrefix(upper, "RCPT TO:"):
			to = append(to, extractAddress(line))
			reply("250 OK")
		case upper == "DATA":
			reply("354 End data with <CR><LF>.<CR><LF>")
			inData = true
			data.Reset()
		case upper == "QUIT":
			reply("221 Bye")
			return
		default:
			reply("250 OK")
		}
	}
}

func (m *mockSMTPServer) capture(from string, to []string, data string) {
	m.messagesMu.Lock()
	defer m.messagesMu.Unlock()
	m.messages = append(m.messages, capturedEmail{From: from, To: append([]string(nil), to...), Data: data})
}

func (m *mockSMTPServer) Messages() []capturedEmail {
	m.messagesMu.Lock()
	defer m.messagesMu.Unlock()
	return append([]capturedEmail(nil), m.messages...)
}

func (m *mockSMTPServer) Port() int {
	return m.listener.Addr().(*net.TCPAddr).Port
}

func (m *mockSMTPServer) Close() error {
	return m.listener.Close()
}

func extractAddress(line string) string {
	start := strings.Index(line, "<")
	end := strings.Index(line, ">")
	if start != -1 && end > start {
		return line[start+1 : end]
	}
	return ""
}
