package modem

import (
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// healthyResponder simulates a modem that accepts every command, reports
// packet-service attachment and answers the identity queries.
func healthyResponder(cmd string) string {
	switch {
	case strings.HasPrefix(cmd, "AT+CGATT?"):
		return "\r\n+CGATT: 1\r\n\r\nOK\r\n"
	case strings.HasPrefix(cmd, "AT+CGMI"):
		return "\r\nQuectel\r\n\r\nOK\r\n"
	case strings.HasPrefix(cmd, "AT+CGMM"):
		return "\r\nEC21\r\n\r\nOK\r\n"
	case strings.HasPrefix(cmd, "AT+CGSN"):
		return "\r\n866425030000000\r\n\r\nOK\r\n"
	case strings.HasPrefix(cmd, "ATD"):
		return "\r\nCONNECT 150000000\r\n"
	default:
		return "\r\nOK\r\n"
	}
}

// fakeDialer hands out test transports with a fixed responder and records
// every transport it created.
type fakeDialer struct {
	mu         sync.Mutex
	respond    func(cmd string) string
	transports []*TestTransport
}

func (d *fakeDialer) Dial() (Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	t := NewTestTransport()
	if d.respond != nil {
		t.SetResponder(d.respond)
	}
	d.transports = append(d.transports, t)
	return t, nil
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.transports)
}

func (d *fakeDialer) transport(i int) *TestTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.transports[i]
}

type fakeChannel struct {
	*TestTransport
	active atomic.Bool
}

func (c *fakeChannel) Activate() { c.active.Store(true) }

// fakeMux allocates up to slots channels, each backed by a test transport
// with the given responder. Attachments complete asynchronously.
type fakeMux struct {
	mu          sync.Mutex
	slots       int
	respond     func(cmd string) string
	channels    []*fakeChannel
	attachOrder []int
}

func (f *fakeMux) Allocate() (MuxChannel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.channels) >= f.slots {
		return nil, ErrNoFreeChannel
	}
	ch := &fakeChannel{TestTransport: NewTestTransport()}
	if f.respond != nil {
		ch.SetResponder(f.respond)
	}
	f.channels = append(f.channels, ch)
	return ch, nil
}

func (f *fakeMux) Attach(ch MuxChannel, dlci int, fn AttachFunc) error {
	f.mu.Lock()
	f.attachOrder = append(f.attachOrder, dlci)
	f.mu.Unlock()
	go fn(dlci, true)
	return nil
}

func (f *fakeMux) order() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int, len(f.attachOrder))
	copy(out, f.attachOrder)
	return out
}

type fakePPP struct {
	mu      sync.Mutex
	starts  int
	stops   int
	enables []bool
}

func (p *fakePPP) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.starts++
	return nil
}

func (p *fakePPP) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stops++
	return nil
}

func (p *fakePPP) SetEnabled(up bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enables = append(p.enables, up)
	return nil
}

func (p *fakePPP) counts() (starts, stops, enables int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.starts, p.stops, len(p.enables)
}

func testBuilder(d Dialer) *ConfigBuilder {
	return NewConfigBuilder().
		WithDialer(d).
		WithLogger(discardLogger()).
		WithATTimeout(100 * time.Millisecond).
		WithSetupTimeout(200 * time.Millisecond).
		WithRetryDelay(time.Millisecond).
		WithSettleDelay(time.Millisecond).
		WithMuxStepDelay(time.Millisecond)
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

func countWrites(tr *TestTransport, prefix string) int {
	n := 0
	for _, w := range tr.Writes() {
		if strings.HasPrefix(w, prefix) {
			n++
		}
	}
	return n
}

func TestBringupOverRawUART(t *testing.T) {
	var probes atomic.Int32
	dialer := &fakeDialer{respond: func(cmd string) string {
		// First two handshake probes fail; the modem is still booting.
		if cmd == "AT\r" && probes.Add(1) <= 2 {
			return "\r\nERROR\r\n"
		}
		return healthyResponder(cmd)
	}}
	ppp := &fakePPP{}

	config, err := testBuilder(dialer).WithPPP(ppp).Build()
	if err != nil {
		t.Fatalf("build config: %v", err)
	}
	m, err := New(config)
	if err != nil {
		t.Fatalf("new modem: %v", err)
	}
	defer m.Close()

	if err := m.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	waitFor(t, m.Connected, "bring-up never completed")

	tr := dialer.transport(0)
	if got := countWrites(tr, "ATE0"); got != 1 {
		t.Errorf("setup batch ran %d times, want 1", got)
	}
	if got := countWrites(tr, "ATD*99#"); got != 1 {
		t.Errorf("dialed %d times, want 1", got)
	}
	if starts, _, _ := ppp.counts(); starts != 1 {
		t.Errorf("PPP started %d times, want 1", starts)
	}
	if got := m.State(); got != StateConnected {
		t.Errorf("state = %v, want %v", got, StateConnected)
	}
	if got := m.IMEI(); got != "866425030000000" {
		t.Errorf("IMEI = %q", got)
	}
}

func TestBringupWaitsForAttachment(t *testing.T) {
	var queries atomic.Int32
	dialer := &fakeDialer{respond: func(cmd string) string {
		if strings.HasPrefix(cmd, "AT+CGATT?") && queries.Add(1) <= 2 {
			return "\r\n+CGATT: 0\r\n\r\nOK\r\n"
		}
		return healthyResponder(cmd)
	}}
	ppp := &fakePPP{}

	config, err := testBuilder(dialer).WithPPP(ppp).Build()
	if err != nil {
		t.Fatalf("build config: %v", err)
	}
	m, err := New(config)
	if err != nil {
		t.Fatalf("new modem: %v", err)
	}
	defer m.Close()

	if err := m.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	waitFor(t, m.Connected, "bring-up never completed")

	if got := queries.Load(); got < 3 {
		t.Errorf("attachment queried %d times, want at least 3", got)
	}
	if got := countWrites(dialer.transport(0), "ATD*99#"); got != 1 {
		t.Errorf("dialed %d times, want 1", got)
	}
}

func TestBringupWithMux(t *testing.T) {
	mux := &fakeMux{slots: 3, respond: healthyResponder}
	dialer := &fakeDialer{respond: healthyResponder}
	ppp := &fakePPP{}

	config, err := testBuilder(dialer).WithMux(mux).WithPPP(ppp).Build()
	if err != nil {
		t.Fatalf("build config: %v", err)
	}
	m, err := New(config)
	if err != nil {
		t.Fatalf("new modem: %v", err)
	}
	defer m.Close()

	if err := m.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	waitFor(t, m.Connected, "bring-up never completed")

	if got, want := mux.order(), []int{DLCIControl, DLCIPPP, DLCIAT}; len(got) != 3 ||
		got[0] != want[0] || got[1] != want[1] || got[2] != want[2] {
		t.Errorf("attach order = %v, want %v", got, want)
	}
	for i, ch := range mux.channels {
		if !ch.active.Load() {
			t.Errorf("channel %d never activated", i)
		}
	}
	if got := countWrites(dialer.transport(0), "AT+CMUX"); got != 1 {
		t.Errorf("mux negotiated %d times on the UART, want 1", got)
	}
	// The data call is dialed on the PPP channel, not the raw UART.
	if got := countWrites(dialer.transport(0), "ATD*99#"); got != 0 {
		t.Errorf("dial went out on the raw UART %d times", got)
	}
	if got := countWrites(mux.channels[DLCIPPP].TestTransport, "ATD*99#"); got != 1 {
		t.Errorf("dialed %d times on the PPP channel, want 1", got)
	}
	// Runtime commands land on the re-attached AT channel.
	waitFor(t, func() bool {
		return countWrites(mux.channels[DLCIAT].TestTransport, "AT\r") == 1
	}, "AT channel never probed")
}

func TestBringupSimcomMuxNegotiation(t *testing.T) {
	mux := &fakeMux{slots: 3, respond: healthyResponder}
	dialer := &fakeDialer{respond: healthyResponder}

	config, err := testBuilder(dialer).WithMux(mux).WithSimcomMux(true).Build()
	if err != nil {
		t.Fatalf("build config: %v", err)
	}
	m, err := New(config)
	if err != nil {
		t.Fatalf("new modem: %v", err)
	}
	defer m.Close()

	if err := m.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	waitFor(t, m.Connected, "bring-up never completed")

	if got := countWrites(dialer.transport(0), "AT+CMUXSRVPORT=0,0;"); got != 1 {
		t.Errorf("SIMCOM pre-assignment sent %d times, want 1", got)
	}
}

func TestBringupMuxFallback(t *testing.T) {
	mux := &fakeMux{slots: 0}
	dialer := &fakeDialer{respond: healthyResponder}
	ppp := &fakePPP{}

	config, err := testBuilder(dialer).WithMux(mux).WithPPP(ppp).Build()
	if err != nil {
		t.Fatalf("build config: %v", err)
	}
	m, err := New(config)
	if err != nil {
		t.Fatalf("new modem: %v", err)
	}
	defer m.Close()

	if err := m.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	waitFor(t, m.Connected, "fallback bring-up never completed")

	tr := dialer.transport(0)
	// Multiplexing is abandoned after slot exhaustion, not renegotiated.
	if got := countWrites(tr, "AT+CMUX"); got != 1 {
		t.Errorf("mux negotiated %d times, want 1", got)
	}
	if got := countWrites(tr, "ATD*99#"); got != 1 {
		t.Errorf("dialed %d times on the raw UART, want 1", got)
	}
	if starts, _, _ := ppp.counts(); starts != 1 {
		t.Errorf("PPP started %d times, want 1", starts)
	}
}

func TestCarrierStartThenSetEnabled(t *testing.T) {
	dialer := &fakeDialer{respond: healthyResponder}
	ppp := &fakePPP{}

	config, err := testBuilder(dialer).WithPPP(ppp).Build()
	if err != nil {
		t.Fatalf("build config: %v", err)
	}
	m, err := New(config)
	if err != nil {
		t.Fatalf("new modem: %v", err)
	}
	defer m.Close()

	if err := m.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, m.Connected, "first bring-up never completed")

	if err := m.Restart(t.Context()); err != nil {
		t.Fatalf("restart: %v", err)
	}
	waitFor(t, m.Connected, "second bring-up never completed")

	starts, stops, enables := ppp.counts()
	if starts != 1 {
		t.Errorf("PPP started %d times, want exactly 1", starts)
	}
	if stops != 1 {
		t.Errorf("PPP stopped %d times, want 1", stops)
	}
	if enables < 2 {
		// SetEnabled(false) from Stop plus SetEnabled(true) from the
		// second carrier-on.
		t.Errorf("PPP SetEnabled called %d times, want at least 2", enables)
	}
}

func TestStartSupersedesRunningBringup(t *testing.T) {
	var ready atomic.Bool
	dialer := &fakeDialer{respond: func(cmd string) string {
		// The handshake keeps failing until the test releases it.
		if cmd == "AT\r" && !ready.Load() {
			return "\r\nERROR\r\n"
		}
		return healthyResponder(cmd)
	}}
	ppp := &fakePPP{}

	config, err := testBuilder(dialer).WithPPP(ppp).Build()
	if err != nil {
		t.Fatalf("build config: %v", err)
	}
	m, err := New(config)
	if err != nil {
		t.Fatalf("new modem: %v", err)
	}
	defer m.Close()

	if err := m.Start(); err != nil {
		t.Fatalf("first start: %v", err)
	}
	waitFor(t, func() bool {
		return countWrites(dialer.transport(0), "AT\r") >= 1
	}, "first bring-up never probed the modem")

	// A second Start while the first chain is still retrying must replace
	// it, not run alongside it.
	if err := m.Start(); err != nil {
		t.Fatalf("second start: %v", err)
	}
	waitFor(t, func() bool {
		return dialer.dials() >= 2 && countWrites(dialer.transport(1), "AT\r") >= 1
	}, "second bring-up never probed the modem")

	ready.Store(true)
	waitFor(t, m.Connected, "bring-up never completed")

	// Give any leftover step from the replaced chain a chance to run.
	time.Sleep(50 * time.Millisecond)

	batches := countWrites(dialer.transport(0), "ATE0") + countWrites(dialer.transport(1), "ATE0")
	if batches != 1 {
		t.Errorf("setup batch executed %d times for one bring-up success, want 1", batches)
	}
	dials := countWrites(dialer.transport(0), "ATD*99#") + countWrites(dialer.transport(1), "ATD*99#")
	if dials != 1 {
		t.Errorf("dialed %d times, want 1", dials)
	}
	if starts, _, _ := ppp.counts(); starts != 1 {
		t.Errorf("PPP started %d times, want 1", starts)
	}
}
