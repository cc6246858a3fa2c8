package journald

import (
	"context"
	"log"
	"net"
	"path/filepath"
	"testing"
)

// testClient is a test Sink that records all field lists rather than submit
// them to a journal. It implements the Handler's Sink interface.
type testClient struct {
	logs [][]Field
}

func newTestClient() *testClient {
	return &testClient{logs: make([][]Field, 0)}
}

func (c *testClient) Send(enc *Encoder) error {
	fields, err := enc.Fields()
	if err != nil {
		log.Fatalf("test client Send() failed to decode field list: %v", err)
	}
	c.logs = append(c.logs, fields)
	enc.Free()
	return nil
}

func (c *testClient) Shutdown(ctx context.Context) error {
	return nil
}

// last returns the most recently recorded field list.
func (c *testClient) last(t *testing.T) []Field {
	t.Helper()
	if len(c.logs) == 0 {
		t.Fatal("test client has no recorded field lists")
	}
	return c.logs[len(c.logs)-1]
}

// fieldValue returns the value of the first field with the given key.
func fieldValue(fields []Field, key string) (string, bool) {
	for _, f := range fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return "", false
}

// fieldIndex returns the position of the first field with the given key, or
// -1.
func fieldIndex(fields []Field, key string) int {
	for i, f := range fields {
		if f.Key == key {
			return i
		}
	}
	return -1
}

// journalServer is a stand-in journal: a unixgram listener that decodes each
// received datagram's native framing back into an ordered field list.
type journalServer struct {
	conn      *net.UnixConn
	path      string
	messageCh chan []Field
}

func newJournalServer(t *testing.T) *journalServer {
	t.Helper()

	path := filepath.Join(t.TempDir(), "journal.sock")
	addr, err := net.ResolveUnixAddr("unixgram", path)
	if err != nil {
		t.Fatalf("failed to resolve test socket addr: %v", err)
	}
	conn, err := net.ListenUnixgram("unixgram", addr)
	if err != nil {
		t.Fatalf("failed to listen on test socket: %v", err)
	}

	s := &journalServer{
		conn:      conn,
		path:      path,
		messageCh: make(chan []Field, 128),
	}
	t.Cleanup(func() { conn.Close() })

	go s.run()
	return s
}

func (s *journalServer) run() {
	buf := make([]byte, 1<<16)
	for {
		n, _, err := s.conn.ReadFromUnix(buf)
		if err != nil {
			return
		}
		fields, err := parseFields(buf[:n])
		if err != nil {
			InternalLogger().Printf("journalServer: bad datagram: %v", err)
			continue
		}
		s.messageCh <- fields
	}
}
