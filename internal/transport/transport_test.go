package transport

import (
	"bufio"
	"errors"
	"net"
	"runtime"
	"sync"
	"testing"
	"time"
)

func TestClassify(t *testing.T) {
	cases := map[string]Kind{
		"192.168.1.5":          Network,
		"999.999.999.999":      Network,
		"Yun at 10.0.0.2":      Network,
		"10.0.0.2 (arduino)":   Network,
		"/dev/ttyUSB0":         Serial,
		"COM3":                 Serial,
		"/dev/cu.usbmodem1411": Serial,
		"1.2.3":                Serial,
		"":                     Serial,
	}
	for port, want := range cases {
		if got := Classify(port); got != want {
			t.Errorf("Classify(%q) = %v, want %v", port, got, want)
		}
	}
}

func TestAddress(t *testing.T) {
	if got := Address("Yun at 10.0.0.2"); got != "10.0.0.2" {
		t.Errorf("expected 10.0.0.2, got %q", got)
	}
}

type fakeTransport struct {
	port   string
	closes int
}

func (f *fakeTransport) Port() string            { return f.port }
func (f *fakeTransport) Write(data []byte) error { return nil }
func (f *fakeTransport) Close() error            { f.closes++; return nil }

func TestRegistryRejectsDoubleOpen(t *testing.T) {
	r := NewRegistry()
	fake := &fakeTransport{port: "/dev/ttyACM0"}
	open := func() (Transport, error) { return fake, nil }

	tr, err := r.Open("/dev/ttyACM0", open)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := r.Open("/dev/ttyACM0", open); !errors.Is(err, ErrPortBusy) {
		t.Fatalf("expected ErrPortBusy, got %v", err)
	}
	if _, err := r.Reserve("/dev/ttyACM0", "upload"); !errors.Is(err, ErrPortBusy) {
		t.Fatalf("expected ErrPortBusy from Reserve, got %v", err)
	}

	tr.Close()
	tr.Close()
	if fake.closes != 1 {
		t.Errorf("expected underlying Close once, got %d", fake.closes)
	}
	if r.Busy("/dev/ttyACM0") {
		t.Error("expected port to be released")
	}
}

func TestRegistryReleasesOnOpenFailure(t *testing.T) {
	r := NewRegistry()
	_, err := r.Open("COM4", func() (Transport, error) { return nil, errors.New("boom") })
	if err == nil {
		t.Fatal("expected error")
	}
	if r.Busy("COM4") {
		t.Error("failed open must release the port")
	}
}

func TestRegistryReserve(t *testing.T) {
	r := NewRegistry()
	release, err := r.Reserve("COM5", "upload")
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	var busy *BusyError
	if _, err := r.Reserve("COM5", "monitor"); !errors.As(err, &busy) || busy.Owner != "upload" {
		t.Fatalf("expected BusyError owned by upload, got %v", err)
	}
	release()
	release()
	if r.Busy("COM5") {
		t.Error("expected COM5 to be free")
	}
}

func startEchoServer(t *testing.T) (net.Listener, chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	lines := make(chan string, 16)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				c.Write([]byte("hello from board\n"))
				sc := bufio.NewScanner(c)
				for sc.Scan() {
					lines <- sc.Text()
				}
			}(conn)
		}
	}()
	t.Cleanup(func() { ln.Close() })
	return ln, lines
}

func TestNetworkTransportRoundTrip(t *testing.T) {
	ln, lines := startEchoServer(t)

	var mu sync.Mutex
	var received []byte
	got := make(chan struct{}, 1)
	tr, err := dialNetwork("127.0.0.1", ln.Addr().String(), func(data []byte) {
		mu.Lock()
		received = append(received, data...)
		mu.Unlock()
		select {
		case got <- struct{}{}:
		default:
		}
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer tr.Close()

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		s := string(received)
		mu.Unlock()
		if s == "hello from board\n" {
			break
		}
		select {
		case <-got:
		case <-deadline:
			t.Fatalf("unexpected data from board %q", s)
		}
	}

	if err := tr.Write([]byte("ping")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	select {
	case line := <-lines:
		if line != "ping" {
			t.Errorf("expected ping, got %q", line)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("board did not receive the line")
	}
}

func TestNetworkTransportCloseJoinsReader(t *testing.T) {
	ln, _ := startEchoServer(t)
	before := runtime.NumGoroutine()

	for i := 0; i < 2; i++ {
		tr, err := dialNetwork("127.0.0.1", ln.Addr().String(), nil)
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		if err := tr.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
		if err := tr.Close(); err != nil {
			t.Fatalf("second Close failed: %v", err)
		}
		if err := tr.Write([]byte("x")); !errors.Is(err, ErrClosed) {
			t.Errorf("expected ErrClosed, got %v", err)
		}
	}

	// Server-side handler goroutines exit once they see EOF.
	deadline := time.Now().Add(2 * time.Second)
	for runtime.NumGoroutine() > before && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := runtime.NumGoroutine(); n > before {
		t.Errorf("goroutines leaked: before=%d after=%d", before, n)
	}
}

func TestDialNetworkFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	_, err = dialNetwork("127.0.0.1", addr, nil)
	var connErr *ConnectError
	if !errors.As(err, &connErr) {
		t.Fatalf("expected ConnectError, got %v", err)
	}
}
