package modem

// Fixed DLCI assignment for the multiplexed link. The modem expects the
// data call on the PPP channel and runtime AT commands on the AT channel.
const (
	DLCIControl = 0
	DLCIPPP     = 1
	DLCIAT      = 2
)

// AttachFunc signals completion of an asynchronous channel attachment.
type AttachFunc func(dlci int, connected bool)

// MuxChannel is one virtual channel of the multiplexed link.
type MuxChannel interface {
	Transport
	// Activate enables RX/TX on the channel once its attachment has been
	// confirmed.
	Activate()
}

// Mux splits one physical serial link into DLCI-addressed virtual channels
// using a GSM 07.10-style framing protocol. The framing itself lives behind
// this interface; the driver only sequences allocation and attachment.
type Mux interface {
	// Allocate reserves a free virtual channel slot. Returns
	// ErrNoFreeChannel when the slot pool is exhausted.
	Allocate() (MuxChannel, error)
	// Attach binds an allocated channel to the physical transport at the
	// given DLCI. Attachment is asynchronous; fn is invoked when the
	// channel is connected or the attachment is torn down.
	Attach(ch MuxChannel, dlci int, fn AttachFunc) error
}
