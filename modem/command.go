package modem

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"i4.energy/across/gsmppp/at"
)

// matchKind is the closed set of response handler behaviors.
type matchKind int

const (
	// kindOK completes the in-flight command successfully.
	kindOK matchKind = iota
	// kindError completes the in-flight command with ErrCommandFailed.
	kindError
	// kindCapture extracts a payload but leaves the command in flight;
	// a later final result code completes it.
	kindCapture
	// kindCaptureFinal extracts a payload and completes the command with
	// the extractor's result.
	kindCaptureFinal
)

// captureFunc receives a matched response line with the matcher's prefix
// stripped and surrounding whitespace trimmed.
type captureFunc func(payload string) error

// matcher associates a response prefix with the action taken when a line
// carrying that prefix arrives. An empty prefix matches any data line.
type matcher struct {
	prefix string
	kind   matchKind
	fn     captureFunc
}

func matchOK(prefix string) matcher {
	return matcher{prefix: prefix, kind: kindOK}
}

func matchError(prefix string) matcher {
	return matcher{prefix: prefix, kind: kindError}
}

func capture(prefix string, fn captureFunc) matcher {
	return matcher{prefix: prefix, kind: kindCapture, fn: fn}
}

func captureFinal(prefix string, fn captureFunc) matcher {
	return matcher{prefix: prefix, kind: kindCaptureFinal, fn: fn}
}

func (m matcher) matches(line string) bool {
	return m.prefix == "" || strings.HasPrefix(line, m.prefix)
}

func (m matcher) payload(line string) string {
	return strings.TrimSpace(strings.TrimPrefix(line, m.prefix))
}

// commandChannel provides the synchronous "send command, block until a
// matching response or timeout" primitive over a byte transport.
//
// One reader goroutine per bound transport tokenizes responses and drives
// matcher dispatch. Completion is signaled through a capacity-1 gate
// channel: empty means no response pending, occupied means response
// received. At most one command may be outstanding at a time; Send
// serializes callers with a mutex.
type commandChannel struct {
	log *slog.Logger

	// sendMu enforces the single-outstanding-command rule.
	sendMu sync.Mutex

	mu         sync.Mutex
	transport  Transport
	cancelRead context.CancelFunc
	pending    []matcher
	terminator string

	// swallowFinal marks that a captureFinal matcher already completed
	// the command and the result code still on the wire must be dropped,
	// not treated as the next command's completion.
	swallowFinal bool

	gate chan error
}

func newCommandChannel(log *slog.Logger) *commandChannel {
	return &commandChannel{
		log:        log,
		terminator: at.CR,
		gate:       make(chan error, 1),
	}
}

// Bind attaches the channel to a transport, replacing any previous binding.
// The reader for the previous transport is stopped; subsequent commands go
// out on the new wire.
func (c *commandChannel) Bind(t Transport) {
	ctx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	if c.cancelRead != nil {
		c.cancelRead()
	}
	c.cancelRead = cancel
	c.transport = t
	c.swallowFinal = false
	c.mu.Unlock()

	go c.readLoop(ctx, t)
}

// Close stops the reader. The bound transport is not closed; it belongs to
// the caller.
func (c *commandChannel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancelRead != nil {
		c.cancelRead()
		c.cancelRead = nil
	}
	c.transport = nil
}

func (c *commandChannel) setTerminator(eol string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.terminator = eol
}

// Send writes cmd followed by the line terminator and blocks until a
// matcher completes the command or the timeout elapses. The extra matchers
// are consulted before the built-in final result codes.
func (c *commandChannel) Send(ctx context.Context, cmd string, extra []matcher, timeout time.Duration) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	c.mu.Lock()
	t := c.transport
	eol := c.terminator
	c.pending = extra
	c.mu.Unlock()

	if t == nil {
		return ErrNotInitialized
	}

	defer func() {
		c.mu.Lock()
		c.pending = nil
		c.mu.Unlock()
	}()

	// Drop any stale completion left by an unsolicited final.
	select {
	case <-c.gate:
	default:
	}

	if _, err := t.Write([]byte(cmd + eol)); err != nil {
		return fmt.Errorf("write command %q: %w", cmd, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-c.gate:
		return err
	case <-timer.C:
		return ErrTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// readLoop is the receiver task for one transport binding. It exits when
// the transport reaches EOF or the binding is replaced.
func (c *commandChannel) readLoop(ctx context.Context, t Transport) {
	scanner := bufio.NewScanner(t)
	scanner.Split(at.Splitter)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		c.dispatch(line)
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		c.log.Debug("receiver stopped", "error", err)
	}
}

// dispatch runs matcher handlers on the receiver goroutine and signals the
// response gate when a handler completes the in-flight command.
//
// Prefixed command matchers are consulted first, then the built-in final
// result codes, then any-line captures. The ordering keeps an any-line
// capture (used by the identity queries) from swallowing the OK that
// completes its command.
func (c *commandChannel) dispatch(line string) {
	c.mu.Lock()
	pending := c.pending
	c.mu.Unlock()

	for _, m := range pending {
		if m.prefix != "" && m.matches(line) {
			c.apply(m, line)
			return
		}
	}

	if at.Classify(line) == at.TypeFinal {
		c.mu.Lock()
		swallow := c.swallowFinal
		c.swallowFinal = false
		c.mu.Unlock()
		if swallow {
			c.log.Debug("result code after completed command", "line", line)
			return
		}

		if line == at.OK || strings.HasPrefix(line, at.Connect) {
			c.complete(nil)
		} else {
			c.complete(ErrCommandFailed)
		}
		return
	}

	for _, m := range pending {
		if m.prefix == "" {
			c.apply(m, line)
			return
		}
	}

	if at.Classify(line) == at.TypeURC {
		c.log.Debug("unsolicited", "line", line)
	} else {
		c.log.Debug("unmatched response", "line", line)
	}
}

func (c *commandChannel) apply(m matcher, line string) {
	switch m.kind {
	case kindOK:
		c.complete(nil)
	case kindError:
		c.complete(ErrCommandFailed)
	case kindCapture:
		if err := m.fn(m.payload(line)); err != nil {
			c.log.Debug("capture handler", "line", line, "error", err)
		}
	case kindCaptureFinal:
		// The information response completes the command, but the modem
		// still terminates it with a result code. Drop that code when it
		// arrives so it cannot complete the next command.
		c.mu.Lock()
		c.swallowFinal = true
		c.mu.Unlock()
		c.complete(m.fn(m.payload(line)))
	}
}

func (c *commandChannel) complete(err error) {
	select {
	case c.gate <- err:
	default:
		// No command waiting; drop the completion.
	}
}
