package modem

// PPP is the network-interface driver that carries the data link once the
// call is dialed. The driver never touches PPP framing; it only starts,
// stops and enables the interface.
type PPP interface {
	// Start performs the one-time interface start. Called exactly once
	// per driver lifetime.
	Start() error
	// Stop tears the interface down. Used by Restart.
	Stop() error
	// SetEnabled toggles the already-started interface.
	SetEnabled(up bool) error
}

// setCarrierOn transitions the data link up. The first invocation across
// the driver's lifetime starts the PPP driver; every subsequent invocation
// re-enables the already-started interface instead. The two calls are not
// interchangeable, so the distinction is kept even across restarts.
func (m *Modem) setCarrierOn() {
	if m.config.PPP == nil {
		m.log.Error("cannot find PPP device")
		return
	}

	m.mu.Lock()
	started := m.pppStarted
	m.pppStarted = true
	m.mu.Unlock()

	if !started {
		if err := m.config.PPP.Start(); err != nil {
			m.log.Error("ppp start failed", "error", err)
		}
		return
	}
	if err := m.config.PPP.SetEnabled(true); err != nil {
		m.log.Error("ppp enable failed", "error", err)
	}
}
