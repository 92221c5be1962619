package modem

import (
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
)

// PppdDriver implements the PPP collaborator by driving a pppd(8) instance
// on the modem's data channel.
type PppdDriver struct {
	// Device is the serial device carrying the data call, e.g. the PPP
	// virtual channel's tty or the raw UART when mux is disabled.
	Device string
	// Speed is the line speed passed to pppd. Zero omits the argument.
	Speed int
	// ExtraArgs are appended to the pppd invocation.
	ExtraArgs []string
	// Logger receives driver diagnostics. Defaults to slog.Default().
	Logger *slog.Logger

	mu  sync.Mutex
	cmd *exec.Cmd
}

func (p *PppdDriver) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

// Start launches pppd and leaves it running in the background. pppd's
// persist option keeps re-establishing the link after carrier drops, so
// SetEnabled only has to nudge the daemon.
func (p *PppdDriver) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cmd != nil {
		return fmt.Errorf("pppd already started on %s", p.Device)
	}

	args := []string{p.Device}
	if p.Speed > 0 {
		args = append(args, strconv.Itoa(p.Speed))
	}
	args = append(args, "noauth", "defaultroute", "usepeerdns", "persist", "holdoff", "1")
	args = append(args, p.ExtraArgs...)

	cmd := exec.Command("pppd", args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start pppd: %w", err)
	}
	p.cmd = cmd
	p.logger().Info("pppd started", "device", p.Device, "pid", cmd.Process.Pid)

	go func() {
		err := cmd.Wait()
		p.mu.Lock()
		p.cmd = nil
		p.mu.Unlock()
		p.logger().Info("pppd exited", "device", p.Device, "error", err)
	}()

	return nil
}

// Stop terminates the pppd instance.
func (p *PppdDriver) Stop() error {
	p.mu.Lock()
	cmd := p.cmd
	p.mu.Unlock()

	if cmd == nil {
		return nil
	}
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("stop pppd: %w", err)
	}
	return nil
}

// SetEnabled toggles the link. Disabling sends SIGHUP, which makes pppd
// drop the current connection; with persist active, enabling is a no-op
// because the daemon redials on its own.
func (p *PppdDriver) SetEnabled(up bool) error {
	p.mu.Lock()
	cmd := p.cmd
	p.mu.Unlock()

	if cmd == nil {
		return ErrNoPPPDevice
	}
	if up {
		return nil
	}
	if err := cmd.Process.Signal(syscall.SIGHUP); err != nil {
		return fmt.Errorf("disable pppd link: %w", err)
	}
	return nil
}

var _ PPP = (*PppdDriver)(nil)
