package modem

import "errors"

var (
	// ErrNoDialer is returned when a Modem is constructed without a Dialer.
	//
	// This indicates a configuration error. A Dialer is required in order to
	// establish a connection to the modem.
	ErrNoDialer = errors.New("no dialer configured")

	// ErrNotInitialized is returned when an operation is attempted before
	// Start has bound a transport to the command channel.
	ErrNotInitialized = errors.New("modem not initialized")

	// ErrAlreadyClosed is returned when Close is called on a Modem that has
	// already been closed.
	ErrAlreadyClosed = errors.New("modem already closed")

	// ErrTimeout is returned when no registered response matcher fired
	// before the per-command timeout elapsed. Bring-up treats this as
	// transient and retries.
	ErrTimeout = errors.New("command response timeout")

	// ErrCommandFailed is returned when the modem answered a command with
	// an explicit ERROR result code.
	ErrCommandFailed = errors.New("modem returned ERROR")

	// ErrNotAttached is returned by the packet-service attachment query
	// while the modem reports any state other than attached. Bring-up
	// treats this as would-block and polls again.
	ErrNotAttached = errors.New("not attached to packet service")

	// ErrAPNTooLong is returned by SetAPN when the access point name does
	// not fit the modem info field.
	ErrAPNTooLong = errors.New("APN length error")

	// ErrAPNAlreadySet is returned by SetAPN when a non-empty APN has
	// already been fixed, either explicitly or by automatic selection.
	ErrAPNAlreadySet = errors.New("APN already set")

	// ErrVolumeRange is returned by SetVolume for levels above the
	// device maximum.
	ErrVolumeRange = errors.New("volume level out of range")

	// ErrNoFreeChannel is returned by a Mux when all virtual channel slots
	// are taken. The driver reacts by disabling multiplexing and bringing
	// the link up over the raw UART instead.
	ErrNoFreeChannel = errors.New("no free mux channel")

	// ErrNoPPPDevice is returned when carrier control is requested but no
	// PPP driver was configured. This is a wiring defect, not a transient
	// condition, so it is never retried.
	ErrNoPPPDevice = errors.New("no PPP device configured")
)
