package modem

import (
	"log/slog"
	"time"
)

// Config contains the modem driver configuration settings.
type Config struct {
	// Dialer opens the raw UART transport. Required.
	Dialer Dialer
	// Mux is the byte-multiplexing layer splitting the UART into virtual
	// channels. When nil the driver runs unmultiplexed.
	Mux Mux
	// PPP is the network-interface driver that carries the data link once
	// the call is dialed.
	PPP PPP
	// Operator is a manual MCC/MNC operator code. Empty selects automatic
	// registration.
	Operator string
	// SimcomMux selects SIMCOM-style channel pre-assignment during mux
	// negotiation.
	SimcomMux bool
	// MuxFrameSize is the initial frame size negotiated with AT+CMUX.
	MuxFrameSize int
	// APN fixes the access point name. Empty selects automatic,
	// network-provided APN.
	APN string
	// Volume is the call audio level rendered into the setup batch, 0..5.
	Volume int
	// APNs maps MCC-MNC codes to access point names for automatic
	// selection. Defaults to the built-in table.
	APNs APNTable
	// Logger receives driver diagnostics. Defaults to slog.Default().
	Logger *slog.Logger

	// ATTimeout bounds handshake-class commands.
	ATTimeout time.Duration
	// SetupTimeout bounds setup, attachment and dial commands.
	SetupTimeout time.Duration
	// RetryDelay is the fixed delay between bring-up retries.
	RetryDelay time.Duration
	// SettleDelay is the pause before the +++ escape during Stop.
	SettleDelay time.Duration
	// MuxStepDelay is the resubmit delay between channel allocation steps.
	MuxStepDelay time.Duration
}

func (c *Config) validate() error {
	if c.Dialer == nil {
		return ErrNoDialer
	}
	if c.Volume < 0 || c.Volume > maxVolume {
		return ErrVolumeRange
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.MuxFrameSize == 0 {
		c.MuxFrameSize = 127
	}
	if c.APNs.entries == nil {
		c.APNs = DefaultAPNTable()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.ATTimeout == 0 {
		c.ATTimeout = 2 * time.Second
	}
	if c.SetupTimeout == 0 {
		c.SetupTimeout = 6 * time.Second
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = time.Second
	}
	if c.SettleDelay == 0 {
		c.SettleDelay = 1200 * time.Millisecond
	}
	if c.MuxStepDelay == 0 {
		c.MuxStepDelay = time.Millisecond
	}
}

// ConfigBuilder assembles a Config step by step.
type ConfigBuilder struct {
	config Config
}

// NewConfigBuilder creates a builder with the zero configuration. Build
// applies defaults and validates.
func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{}
}

func (b *ConfigBuilder) WithDialer(d Dialer) *ConfigBuilder {
	b.config.Dialer = d
	return b
}

func (b *ConfigBuilder) WithMux(m Mux) *ConfigBuilder {
	b.config.Mux = m
	return b
}

func (b *ConfigBuilder) WithPPP(p PPP) *ConfigBuilder {
	b.config.PPP = p
	return b
}

func (b *ConfigBuilder) WithOperator(mccmno string) *ConfigBuilder {
	b.config.Operator = mccmno
	return b
}

func (b *ConfigBuilder) WithSimcomMux(on bool) *ConfigBuilder {
	b.config.SimcomMux = on
	return b
}

func (b *ConfigBuilder) WithMuxFrameSize(size int) *ConfigBuilder {
	b.config.MuxFrameSize = size
	return b
}

func (b *ConfigBuilder) WithAPN(apn string) *ConfigBuilder {
	b.config.APN = apn
	return b
}

func (b *ConfigBuilder) WithVolume(level int) *ConfigBuilder {
	b.config.Volume = level
	return b
}

func (b *ConfigBuilder) WithAPNTable(t APNTable) *ConfigBuilder {
	b.config.APNs = t
	return b
}

func (b *ConfigBuilder) WithLogger(l *slog.Logger) *ConfigBuilder {
	b.config.Logger = l
	return b
}

func (b *ConfigBuilder) WithATTimeout(d time.Duration) *ConfigBuilder {
	b.config.ATTimeout = d
	return b
}

func (b *ConfigBuilder) WithSetupTimeout(d time.Duration) *ConfigBuilder {
	b.config.SetupTimeout = d
	return b
}

func (b *ConfigBuilder) WithRetryDelay(d time.Duration) *ConfigBuilder {
	b.config.RetryDelay = d
	return b
}

func (b *ConfigBuilder) WithSettleDelay(d time.Duration) *ConfigBuilder {
	b.config.SettleDelay = d
	return b
}

func (b *ConfigBuilder) WithMuxStepDelay(d time.Duration) *ConfigBuilder {
	b.config.MuxStepDelay = d
	return b
}

func (b *ConfigBuilder) Build() (Config, error) {
	if err := b.config.validate(); err != nil {
		return Config{}, err
	}
	b.config.setDefaults()
	return b.config, nil
}
