package modem

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"i4.energy/across/gsmppp/at"
)

// State enumerates the bring-up phases. Transitions are monotonic except
// for the explicit reset to StateAwaitingHandshake on channel-allocation
// failure.
type State int

const (
	StateAwaitingHandshake State = iota
	StateNegotiatingMux
	StateControlChannel
	StatePPPChannel
	StateATChannel
	StateChannelsReady
	StateConnected
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateAwaitingHandshake:
		return "awaiting-handshake"
	case StateNegotiatingMux:
		return "negotiating-mux"
	case StateControlChannel:
		return "allocating-control-channel"
	case StatePPPChannel:
		return "allocating-ppp-channel"
	case StateATChannel:
		return "allocating-at-channel"
	case StateChannelsReady:
		return "channels-ready"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// generation returns the bring-up generation last issued by Start.
func (m *Modem) generation() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bringupGen
}

// step wraps a bring-up step so it only runs while its chain is current.
// Each Start bumps the generation and thereby replaces the chain already
// in flight: its queued steps observe the newer generation and exit
// instead of running the sequence a second time.
func (m *Modem) step(gen int, fn func(int)) func() {
	return func() {
		if m.generation() == gen {
			fn(gen)
		}
	}
}

// configure is the bring-up entry point. It confirms the modem is
// responsive, negotiates multiplexing when configured, and hands off to
// the channel allocator or directly to finalize.
func (m *Modem) configure(gen int) {
	ctx := context.Background()
	m.log.Debug("starting modem configuration")

	if err := m.cmd.Send(ctx, at.CmdAt, nil, m.config.ATTimeout); err != nil {
		m.log.Debug("modem not ready", "error", err)
		m.retryConfigure(gen, err)
		return
	}

	if m.config.Mux != nil && !m.muxRuledOut() && !m.muxOn() {
		m.setState(StateNegotiatingMux)
		m.setMuxSetupDone(false)

		if err := m.cmd.Send(ctx, m.muxEnableCommand(), nil, m.config.ATTimeout); err != nil {
			m.log.Error("mux negotiation failed", "error", err)
			m.setMuxEnabled(false)
			m.retryConfigure(gen, err)
			return
		}

		m.setMuxEnabled(true)
		m.log.Debug("GSM muxing enabled")
		m.setState(StateControlChannel)
		m.work.Submit(m.step(gen, m.muxSetup))
		return
	}

	m.finalize(gen)
}

// retryConfigure re-submits the entry point. Handshake-class failures
// retry immediately because the modem may still be booting; transport
// errors back off so a stopped transport is not spun on.
func (m *Modem) retryConfigure(gen int, err error) {
	if errors.Is(err, ErrTimeout) || errors.Is(err, ErrCommandFailed) {
		m.work.Submit(m.step(gen, m.configure))
		return
	}
	m.work.SubmitAfter(m.config.RetryDelay, m.step(gen, m.configure))
}

func (m *Modem) muxEnableCommand() string {
	if m.config.SimcomMux {
		// SIMCOM modems can pre-assign the channels: control at DLCI 0,
		// PPP and AT as data service channels.
		return fmt.Sprintf("AT+CMUXSRVPORT=0,0;+CMUXSRVPORT=%d,1;+CMUXSRVPORT=%d,1;+CMUX=0,0,5,%d",
			DLCIPPP, DLCIAT, m.config.MuxFrameSize)
	}
	return fmt.Sprintf("AT+CMUX=0,0,5,%d", m.config.MuxFrameSize)
}

// muxSetup is the channel allocator: one allocation per invocation,
// re-submitted from the attach callback. Channels are created in fixed
// order: control, then PPP, then AT.
func (m *Modem) muxSetup(gen int) {
	switch m.State() {
	case StateControlChannel:
		ch, err := m.config.Mux.Allocate()
		if err != nil {
			m.log.Warn("cannot get mux for control channel", "error", err)
			m.muxFail(gen)
			return
		}
		m.setChannel(DLCIControl, ch)
		m.setState(StatePPPChannel)
		if err := m.config.Mux.Attach(ch, DLCIControl, m.muxAttached(gen)); err != nil {
			m.log.Warn("cannot attach control channel", "error", err)
			m.muxFail(gen)
		}

	case StatePPPChannel:
		ch, err := m.config.Mux.Allocate()
		if err != nil {
			m.log.Warn("cannot get mux for PPP channel", "error", err)
			m.muxFail(gen)
			return
		}
		m.setChannel(DLCIPPP, ch)
		m.setState(StateATChannel)
		if err := m.config.Mux.Attach(ch, DLCIPPP, m.muxAttached(gen)); err != nil {
			m.log.Warn("cannot attach PPP channel", "error", err)
			m.muxFail(gen)
		}

	case StateATChannel:
		ch, err := m.config.Mux.Allocate()
		if err != nil {
			m.log.Warn("cannot get mux for AT channel", "error", err)
			m.muxFail(gen)
			return
		}
		m.setChannel(DLCIAT, ch)
		m.setState(StateChannelsReady)
		if err := m.config.Mux.Attach(ch, DLCIAT, m.muxAttached(gen)); err != nil {
			m.log.Warn("cannot attach AT channel", "error", err)
			m.muxFail(gen)
		}

	case StateChannelsReady:
		// The modem expects the data call to be created on the PPP
		// channel, so subsequent bring-up commands must target it. The
		// AT channel is re-attached after the connection is up.
		m.cmd.Bind(m.channel(DLCIPPP))
		m.log.Info("PPP channel connected", "dlci", DLCIPPP)
		m.setMuxSetupDone(true)
		m.finalize(gen)
	}
}

// muxAttached returns the callback the mux layer invokes when an
// attachment completes. Advancing from the callback keeps the allocator
// re-entrant: each step runs as its own work item.
func (m *Modem) muxAttached(gen int) AttachFunc {
	return func(dlci int, connected bool) {
		m.log.Debug("DLCI attach", "dlci", dlci, "connected", connected)
		if connected {
			if ch := m.channel(dlci); ch != nil {
				ch.Activate()
			}
		}
		m.work.SubmitAfter(m.config.MuxStepDelay, m.step(gen, m.muxSetup))
	}
}

// muxFail abandons multiplexing for the driver lifetime and restarts
// bring-up over the raw UART. Multiplexing is optional; slot exhaustion
// must not take the whole driver down.
func (m *Modem) muxFail(gen int) {
	m.mu.Lock()
	m.muxEnabled = false
	m.muxFailed = true
	m.channels = [3]MuxChannel{}
	m.mu.Unlock()

	m.setState(StateAwaitingHandshake)
	m.work.SubmitAfter(m.config.RetryDelay, m.step(gen, m.configure))
}

// finalize runs the post-negotiation half of bring-up: operator
// registration, the setup batch, the attachment wait, the dial, and
// carrier-on. Every failure re-submits finalize as a whole after the
// retry delay.
func (m *Modem) finalize(gen int) {
	if m.generation() != gen {
		return
	}
	ctx := context.Background()

	if m.muxOn() {
		// Verify responsiveness on the newly active channel.
		if err := m.cmd.Send(ctx, at.CmdAt, nil, m.config.ATTimeout); err != nil {
			m.log.Debug("modem setup failed, retrying", "error", err)
			m.work.SubmitAfter(m.config.RetryDelay, m.step(gen, m.finalize))
			return
		}
	}

	m.setupOperator(ctx)

	if err := m.runSetupBatch(ctx); err != nil {
		m.log.Debug("modem setup failed, retrying", "error", err)
		m.work.SubmitAfter(m.config.RetryDelay, m.step(gen, m.finalize))
		return
	}

	// Don't bring PPP up until we're attached to the packet service.
	if err := m.checkAttached(ctx); err != nil {
		m.log.Debug("not attached, retrying", "error", err)
		m.work.SubmitAfter(m.config.RetryDelay, m.step(gen, m.finalize))
		return
	}

	if err := m.cmd.Send(ctx, at.CmdDial, nil, m.config.SetupTimeout); err != nil {
		m.log.Debug("dial failed, retrying", "error", err)
		m.work.SubmitAfter(m.config.RetryDelay, m.step(gen, m.finalize))
		return
	}

	m.setSetupDone(true)
	m.setState(StateConnected)
	m.log.Debug("modem setup done, enabling PPP")

	m.setCarrierOn()

	if m.muxOn() {
		// Re-use the AT channel for runtime commands now that the data
		// call occupies the PPP channel. A failed probe here is only a
		// diagnostic; the connection is already up.
		m.cmd.Bind(m.channel(DLCIAT))
		if err := m.cmd.Send(ctx, at.CmdAt, nil, m.config.ATTimeout); err != nil {
			m.log.Debug("AT channel verification failed", "error", err)
		} else {
			m.log.Info("AT channel connected", "dlci", DLCIAT)
		}
	}
}

// setupOperator selects the serving operator: a manual MCC/MNC code from
// configuration, or automatic registration. Failures are logged only; the
// setup batch that follows will surface a genuinely unresponsive modem.
func (m *Modem) setupOperator(ctx context.Context) {
	cmd := at.CmdOperatorAuto
	if m.config.Operator != "" {
		cmd = fmt.Sprintf(`AT+COPS=1,2,"%s"`, m.config.Operator)
	}
	if err := m.cmd.Send(ctx, cmd, nil, m.config.ATTimeout); err != nil {
		m.log.Error("operator registration failed", "error", err)
	}
}

type setupCmd struct {
	render   func() string
	matchers []matcher
}

// setupCommands returns the configuration batch in its fixed order. The
// volume and PDP-context entries are rendered at send time so that
// configuration calls made before bring-up take effect.
func (m *Modem) setupCommands() []setupCmd {
	fixed := func(s string) func() string {
		return func() string { return s }
	}
	return []setupCmd{
		{render: fixed(at.CmdEchoOff)},
		{render: fixed(at.CmdHangup)},
		{render: fixed(at.CmdNumericErrors)},
		{render: fixed(at.CmdAnswerInd)},
		{render: fixed(at.CmdCallerID)},
		{render: m.info.volumeCommand},
		{render: fixed(at.CmdDTMFDetect)},
		{render: fixed(at.CmdURCPort)},

		// query modem info
		{render: fixed(at.CmdNetworkInfo), matchers: []matcher{capture("", m.info.storeNetworkInfo)}},
		{render: fixed(at.CmdManufacturer), matchers: []matcher{capture("", m.info.storeManufacturer)}},
		{render: fixed(at.CmdModel), matchers: []matcher{capture("", m.info.storeModel)}},
		{render: fixed(at.CmdRevision), matchers: []matcher{capture("", m.info.storeRevision)}},
		{render: fixed(at.CmdIMEI), matchers: []matcher{capture("", m.info.storeIMEI)}},

		{render: fixed(at.CmdNoRegNotices)},
		{render: m.info.pdpContextCommand},
	}
}

func (m *Modem) runSetupBatch(ctx context.Context) error {
	for _, sc := range m.setupCommands() {
		cmd := sc.render()
		if err := m.cmd.Send(ctx, cmd, sc.matchers, m.config.SetupTimeout); err != nil {
			return fmt.Errorf("setup command %q: %w", cmd, err)
		}
	}
	return nil
}

// checkAttached polls the packet-service attachment status. The expected
// response is "+CGATT: 0|1"; anything but "1" in the first field is a
// would-block condition.
func (m *Modem) checkAttached(ctx context.Context) error {
	attached := captureFinal(at.AttachedPrefix, func(payload string) error {
		fields := strings.Split(payload, ",")
		if len(fields) > 0 && strings.TrimSpace(fields[0]) == "1" {
			return nil
		}
		return ErrNotAttached
	})

	if err := m.cmd.Send(ctx, at.CmdAttachQuery, []matcher{attached}, m.config.SetupTimeout); err != nil {
		return err
	}
	m.log.Info("attached to packet service")
	return nil
}
