package journald

import (
	"context"
	"errors"
	"fmt"
	"net"
	"reflect"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

const testHost = "127.0.0.1"

// TestMessage is one decoded Relay event:
//
//	[ tag<string>, time<int64>, record<map[string]string> ]
type TestMessage struct {
	Tag    string
	Time   time.Time
	Record map[string]string
}

func (m *TestMessage) DecodeMsgpack(dec *msgpack.Decoder) error {
	if _, err := dec.DecodeArrayLen(); err != nil {
		return fmt.Errorf("failed to decode outer message array length: %v", err)
	}

	if err := dec.Decode(&m.Tag); err != nil {
		return fmt.Errorf("failed to decode tag field: %v", err)
	}

	unix, err := dec.DecodeInt64()
	if err != nil {
		return fmt.Errorf("failed to decode the time field: %v", err)
	}
	m.Time = time.Unix(unix, 0)

	if err := dec.Decode(&m.Record); err != nil {
		return fmt.Errorf("failed to decode the record field: %v", err)
	}
	return nil
}

type testServer struct {
	listener   net.Listener
	messageCh  chan *TestMessage
	port       int
	shutdownCh chan struct{}
	verbose    bool
}

func newTestServer(verbose bool) (*testServer, error) {
	s := &testServer{
		messageCh:  make(chan *TestMessage, 128),
		shutdownCh: make(chan struct{}),
		verbose:    verbose,
	}

	// assign port dynamically (use port 0 to assign dynamically)
	l, err := net.Listen("tcp", testHost+":0")
	if err != nil {
		return nil, fmt.Errorf("failed to start test server listener: %v", err)
	}
	s.listener = l

	// parse out the dynamically assigned port
	addr := l.Addr().String()
	idx := strings.LastIndex(addr, ":")
	if idx == len(addr)-1 {
		return nil, errors.New("bad addr: ends with ':'")
	}
	s.port, err = strconv.Atoi(addr[idx+1:])
	if err != nil {
		return nil, fmt.Errorf("invalid port value: '%s': %v", addr[idx+1:], err)
	}

	// start the server loop
	go func() {
		s.debug("starting listener")
		for {
			select {
			case <-s.shutdownCh:
				s.debug("shutting down")
				s.listener.Close()
				return
			default:
				conn, err := l.Accept()
				if err != nil {
					s.debug("listener.Accept() error: %v", err)
					continue
				}
				s.debug("new client connected")
				go s.handle(conn)
			}
		}
	}()

	return s, nil
}

func (s *testServer) Shutdown() {
	close(s.shutdownCh)
}

func (s *testServer) handle(conn net.Conn) {
	d := msgpack.NewDecoder(conn)

	for {
		m := new(TestMessage)
		err := d.Decode(m)
		if err != nil {
			s.debug("failed to decode relay message: %v\n", err)
			break
		}
		s.messageCh <- m
	}

	s.debug("closing connection")
	conn.Close()
}

func (s *testServer) debug(format string, args ...any) {
	if !s.verbose {
		return
	}
	InternalLogger().Printf("testServer: "+format, args...)
}

func TestRelay_Send(t *testing.T) {
	ts, err := newTestServer(false)
	if err != nil {
		t.Fatalf("failed to start test server: %v", err)
	}
	defer ts.Shutdown()

	r, err := NewRelay(testHost, &RelayOptions{
		Port:              ts.port,
		Tag:               "test-tag",
		MaxEagerDialTries: 1,
		DialTimeout:       time.Second,
	})
	if err != nil {
		t.Fatalf("failed to get NewRelay: %v", err)
	}

	when := time.Now().UTC().Truncate(time.Second)
	p := NewEncoderPool(nil)
	enc := p.Get()
	enc.SetTime(when)
	enc.AppendField("PRIORITY", "5")
	enc.AppendField("MESSAGE", "Testing")
	enc.AppendField("FOO", "bar")

	if err := r.Send(enc); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	timeout, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	select {
	case <-timeout.Done():
		t.Fatal("relayed message was not received in time")
	case m := <-ts.messageCh:
		if m.Tag != "test-tag" {
			t.Fatalf("unexpected tag: %s", m.Tag)
		}
		if !m.Time.Equal(when) {
			t.Fatalf("expected time %v, got %v", when, m.Time)
		}
		want := map[string]string{"PRIORITY": "5", "MESSAGE": "Testing", "FOO": "bar"}
		if !reflect.DeepEqual(m.Record, want) {
			t.Fatalf("\nexpected: %+v\nreceived: %+v", want, m.Record)
		}
	}

	if err := r.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
}

func TestRelay_RequiresHost(t *testing.T) {
	if _, err := NewRelay("", nil); err == nil {
		t.Fatal("expected an error for an empty host")
	}
}

func TestRelay_LazyDial(t *testing.T) {
	ts, err := newTestServer(false)
	if err != nil {
		t.Fatalf("failed to start test server: %v", err)
	}
	defer ts.Shutdown()

	// lazy relays must not dial in the constructor
	r, err := NewRelay(testHost, &RelayOptions{
		Port:          ts.port,
		SkipEagerDial: true,
		QueueDepth:    4,
	})
	if err != nil {
		t.Fatalf("failed to get NewRelay: %v", err)
	}

	enc := NewEncoder(defaultNewBufferCap)
	enc.SetTime(time.Now())
	enc.AppendField("MESSAGE", "lazy")
	if err := r.Send(enc); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	timeout, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	select {
	case <-timeout.Done():
		t.Fatal("lazily-dialed message was not received in time")
	case m := <-ts.messageCh:
		if m.Record["MESSAGE"] != "lazy" {
			t.Fatalf("unexpected record: %+v", m.Record)
		}
	}

	if err := r.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
}
