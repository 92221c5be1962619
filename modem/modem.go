// Package modem brings a cellular modem from power-on to a working
// packet-data link over a single serial port, using AT commands and an
// optional GSM 07.10-style multiplexing layer.
//
// The core is the bring-up state machine: a sequenced, retryable protocol
// that confirms the modem is responsive, optionally negotiates multiplexing
// and allocates virtual channels, runs a configuration command batch, waits
// for packet-service attachment, dials the data call and hands the link to
// a PPP driver. All of it runs on a deferred-work scheduler; failures are
// retried indefinitely and surface only in logs.
package modem

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"i4.energy/across/gsmppp/at"
)

// Modem owns the transport, the command channel and the modem info cache
// for one physical modem instance. Exactly one Modem exists per device;
// it is constructed once and passed to every operation.
type Modem struct {
	config Config
	log    *slog.Logger
	cmd    *commandChannel
	info   *Info
	work   *worker

	mu           sync.Mutex
	transport    Transport
	state        State
	bringupGen   int
	muxEnabled   bool
	muxSetupDone bool
	setupDone    bool
	muxFailed    bool
	pppStarted   bool
	closed       bool
	channels     [3]MuxChannel // indexed by DLCI
}

// New creates a Modem from the given configuration. No I/O happens until
// Start is called.
func New(config Config) (*Modem, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	config.setDefaults()

	m := &Modem{
		config: config,
		log:    config.Logger.With("component", "modem"),
		info:   newInfo(config.APNs, config.Volume),
	}

	if config.APN != "" {
		if err := m.info.SetAPN(config.APN); err != nil {
			return nil, fmt.Errorf("configure APN: %w", err)
		}
	}

	m.cmd = newCommandChannel(m.log)
	m.work = newWorker()
	return m, nil
}

// Start (re)initializes the underlying transport binding and schedules the
// bring-up state machine with no delay. Bring-up keeps retrying until it
// succeeds; only transport initialization errors are returned.
func (m *Modem) Start() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrAlreadyClosed
	}
	m.mu.Unlock()

	t, err := m.config.Dialer.Dial()
	if err != nil {
		return fmt.Errorf("dial transport: %w", err)
	}

	m.mu.Lock()
	old := m.transport
	m.transport = t
	m.state = StateAwaitingHandshake
	m.setupDone = false
	m.muxEnabled = false
	m.muxSetupDone = false
	m.channels = [3]MuxChannel{}
	// Supersede any bring-up chain still in flight; at most one sequence
	// may run the setup batch per success.
	m.bringupGen++
	gen := m.bringupGen
	m.mu.Unlock()

	m.cmd.Bind(t)
	if old != nil {
		old.Close()
	}

	m.work.Submit(m.step(gen, m.configure))
	return nil
}

// Resume attempts to return a suspended data call to online mode via the
// ATO escape. When that fails the call is re-dialed instead. Either way a
// success re-asserts carrier-on.
func (m *Modem) Resume(ctx context.Context) error {
	if err := m.cmd.Send(ctx, at.CmdResume, nil, m.config.ATTimeout); err != nil {
		if err := m.cmd.Send(ctx, at.CmdDial, nil, m.config.ATTimeout); err != nil {
			return fmt.Errorf("resume data call: %w", err)
		}
	}
	m.setCarrierOn()
	return nil
}

// Stop disables the network interface and drops the modem out of data
// mode. The transport is re-initialized first so the escape goes out on a
// clean command path; the +++ sequence is sent without a line terminator
// after the guard delay.
func (m *Modem) Stop(ctx context.Context) error {
	if m.config.PPP != nil {
		if err := m.config.PPP.SetEnabled(false); err != nil {
			m.log.Error("ppp disable failed", "error", err)
		}
	}

	t, err := m.config.Dialer.Dial()
	if err != nil {
		return fmt.Errorf("dial transport: %w", err)
	}

	m.mu.Lock()
	old := m.transport
	m.transport = t
	m.mu.Unlock()

	m.cmd.Bind(t)
	if old != nil {
		old.Close()
	}

	time.Sleep(m.config.SettleDelay)

	m.cmd.setTerminator("")
	err = m.cmd.Send(ctx, at.Escape, nil, m.config.ATTimeout)
	m.cmd.setTerminator(at.CR)
	return err
}

// Restart tears the connection down, stops the PPP driver and runs Start
// again.
func (m *Modem) Restart(ctx context.Context) error {
	if err := m.Stop(ctx); err != nil {
		m.log.Debug("stop during restart", "error", err)
	}

	if m.config.PPP == nil {
		m.log.Error("cannot find PPP device")
		return ErrNoPPPDevice
	}
	if err := m.config.PPP.Stop(); err != nil {
		m.log.Error("ppp stop failed", "error", err)
	}

	return m.Start()
}

// Close shuts the driver down and releases the transport. The Modem cannot
// be reused afterwards.
func (m *Modem) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrAlreadyClosed
	}
	m.closed = true
	t := m.transport
	m.transport = nil
	m.mu.Unlock()

	m.work.Close()
	m.cmd.Close()

	if t != nil {
		return t.Close()
	}
	return nil
}

// SetAPN fixes the access point name. Must be called before bring-up runs
// the configuration batch; see Info.SetAPN for the acceptance policy.
func (m *Modem) SetAPN(apn string) error {
	return m.info.SetAPN(apn)
}

// SetVolume sets the call audio level rendered into the configuration
// batch, 0 through 5.
func (m *Modem) SetVolume(level int) error {
	return m.info.SetVolume(level)
}

// IMEI returns the equipment identity queried during setup. Empty until
// the configuration batch has run.
func (m *Modem) IMEI() string { return m.info.IMEI() }

// Info exposes the cached modem identity and network values.
func (m *Modem) Info() *Info { return m.info }

// State returns the current bring-up phase.
func (m *Modem) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Connected reports whether bring-up has completed and the data link is up.
func (m *Modem) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setupDone
}

func (m *Modem) setState(s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s
}

func (m *Modem) muxOn() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.muxEnabled
}

func (m *Modem) setMuxEnabled(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.muxEnabled = on
}

func (m *Modem) setMuxSetupDone(done bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.muxSetupDone = done
}

func (m *Modem) setSetupDone(done bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setupDone = done
}

func (m *Modem) muxRuledOut() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.muxFailed
}

func (m *Modem) channel(dlci int) MuxChannel {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.channels[dlci]
}

func (m *Modem) setChannel(dlci int, ch MuxChannel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[dlci] = ch
}
