package modem

import (
	"errors"
	"io"

	"go.bug.st/serial"
)

//go:generate go tool mockgen -source=transport.go -destination=mock_transport.go -package=modem

// Transport represents an established, bidirectional byte stream to a GSM
// modem.
//
// A Transport is assumed to be already connected and ready for use. It
// provides the low-level I/O primitives required to send AT commands and
// receive responses. Typical implementations include serial ports, mux
// virtual channels, or in-memory fakes used for testing.
type Transport interface {
	io.ReadWriteCloser
}

// Dialer opens a Transport to a GSM modem.
//
// Dialer abstracts how the modem connection is created (for example, via a
// serial port or a test double). Start re-dials through it every time the
// underlying UART binding needs to be re-initialized.
type Dialer interface {
	// Dial creates and returns a connected Transport. It may perform
	// blocking operations. Dial returns an error if the transport cannot
	// be established.
	Dial() (Transport, error)
}

// SerialDialer opens a GSM modem over a serial port using go.bug.st/serial.
type SerialDialer struct {
	// PortName is the serial device path, e.g. "/dev/ttyUSB0".
	PortName string
	// Mode holds the port parameters. When nil, 115200 8N1 is used.
	Mode *serial.Mode
}

func (d SerialDialer) Dial() (Transport, error) {
	if d.PortName == "" {
		return nil, errors.New("gsm: serial port name is required")
	}

	mode := d.Mode
	if mode == nil {
		mode = &serial.Mode{
			BaudRate: 115200,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		}
	}

	port, err := serial.Open(d.PortName, mode)
	if err != nil {
		return nil, err
	}
	return port, nil
}
