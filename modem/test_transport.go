package modem

import (
	"io"
	"sync"
)

// TestTransport is a test helper that simulates a blocking transport using
// channels. This is needed because the command channel's reader goroutine
// continuously reads from the transport, and we need reads to block until
// data is available (like a real serial port would).
type TestTransport struct {
	mu       sync.Mutex
	readChan chan []byte
	closed   bool
	writes   []string
	respond  func(cmd string) string
}

// NewTestTransport creates a new test transport for testing.
// Exported for use in tests.
func NewTestTransport() *TestTransport {
	return &TestTransport{
		readChan: make(chan []byte, 32),
	}
}

// SetResponder installs a function that produces the modem's wire response
// for each written command. The command is passed as written, including any
// line terminator. An empty return value means "no response" (the command
// times out unless data is queued separately via SendData).
func (t *TestTransport) SetResponder(fn func(cmd string) string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.respond = fn
}

// Writes returns every payload written to the transport, in order.
func (t *TestTransport) Writes() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.writes))
	copy(out, t.writes)
	return out
}

func (t *TestTransport) Write(p []byte) (n int, err error) {
	t.mu.Lock()
	t.writes = append(t.writes, string(p))
	fn := t.respond
	closed := t.closed
	t.mu.Unlock()

	if closed {
		return 0, io.ErrClosedPipe
	}
	if fn != nil {
		if resp := fn(string(p)); resp != "" {
			t.SendData(resp)
		}
	}
	return len(p), nil
}

func (t *TestTransport) Read(p []byte) (n int, err error) {
	data, ok := <-t.readChan
	if !ok {
		return 0, io.EOF
	}
	return copy(p, data), nil
}

func (t *TestTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	close(t.readChan)
	return nil
}

// SendData queues data to be read from the transport.
// This simulates receiving data from the modem.
func (t *TestTransport) SendData(data string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.readChan <- []byte(data)
	}
}
