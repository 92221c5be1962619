package modem

import (
	"fmt"
	"strings"
	"sync"
)

// Field capacities, including the terminating byte budget of the original
// fixed-size buffers. A value fits when it is strictly shorter than the
// capacity; stores from the wire truncate to capacity-1.
const (
	manufacturerLength = 10
	modelLength        = 16
	revisionLength     = 64
	imeiLength         = 16
	apnLength          = 100
	mccmncLength       = 7
)

// maxVolume is the device's maximum call audio level.
const maxVolume = 5

// Info caches identity and network values parsed from query responses, and
// renders the configuration commands consumed by the setup batch.
type Info struct {
	mu sync.Mutex

	manufacturer string
	model        string
	revision     string
	imei         string
	apn          string
	mccmnc       string

	apnFixed bool

	apns APNTable

	// Rendered commands consumed by the setup batch. Configuration calls
	// must happen before bring-up runs the batch.
	volumeCmd     string
	pdpContextCmd string
}

func newInfo(apns APNTable, volume int) *Info {
	i := &Info{apns: apns}
	i.volumeCmd = fmt.Sprintf("AT+CLVL=%d", volume)
	i.pdpContextCmd = `AT+CGDCONT=1,"IP",""`
	return i
}

// clip truncates s to fit a field of the given capacity, reserving one byte
// as the original fixed buffers did. Oversized content never overflows the
// destination.
func clip(s string, capacity int) string {
	s = strings.TrimSpace(s)
	if len(s) > capacity-1 {
		return s[:capacity-1]
	}
	return s
}

// SetAPN fixes the access point name used for the PDP context.
//
// An empty value selects automatic, network-provided APN and leaves the
// fixed flag untouched. A value at or above the field capacity fails with
// ErrAPNTooLong. A non-empty value after the APN was already fixed fails
// with ErrAPNAlreadySet and does not overwrite.
func (i *Info) SetAPN(apn string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.setAPNLocked(apn)
}

func (i *Info) setAPNLocked(apn string) error {
	if len(apn) >= apnLength {
		return ErrAPNTooLong
	}
	if apn == "" {
		return nil
	}
	if i.apnFixed {
		return ErrAPNAlreadySet
	}

	i.apnFixed = true
	i.apn = apn
	i.pdpContextCmd = fmt.Sprintf(`AT+CGDCONT=1,"IP","%s"`, apn)
	return nil
}

// SetVolume renders the call audio level command for the setup batch.
// Levels above the device maximum fail with ErrVolumeRange.
func (i *Info) SetVolume(level int) error {
	if level < 0 || level > maxVolume {
		return ErrVolumeRange
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	i.volumeCmd = fmt.Sprintf("AT+CLVL=%d", level)
	return nil
}

// IMEI returns the cached equipment identity, populated during setup.
func (i *Info) IMEI() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.imei
}

// Manufacturer returns the cached manufacturer string.
func (i *Info) Manufacturer() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.manufacturer
}

// Model returns the cached model string.
func (i *Info) Model() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.model
}

// Revision returns the cached firmware revision.
func (i *Info) Revision() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.revision
}

// MCCMNC returns the cached operator code.
func (i *Info) MCCMNC() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.mccmnc
}

// APN returns the currently selected access point name, empty when
// automatic.
func (i *Info) APN() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.apn
}

func (i *Info) storeManufacturer(line string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.manufacturer = clip(line, manufacturerLength)
	return nil
}

func (i *Info) storeModel(line string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.model = clip(line, modelLength)
	return nil
}

func (i *Info) storeRevision(line string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.revision = clip(line, revisionLength)
	return nil
}

func (i *Info) storeIMEI(line string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.imei = clip(line, imeiLength)
	return nil
}

// storeNetworkInfo parses the operator query response. The MCC-MNC arrives
// as a trailing quoted numeric field in a comma-delimited line, e.g.
//
//	+QSPN: "Operator","Operator","",0,"24405"
//
// Unless an APN has already been fixed, a successful table lookup
// auto-selects the matching APN.
func (i *Info) storeNetworkInfo(line string) error {
	idx := strings.LastIndex(line, ",")
	if idx < 0 || idx+1 >= len(line) {
		return nil
	}
	code := strings.Trim(line[idx+1:], `"`)

	i.mu.Lock()
	defer i.mu.Unlock()
	i.mccmnc = clip(code, mccmncLength)

	if i.apnFixed {
		return nil
	}
	if apn, ok := i.apns.Lookup(i.mccmnc); ok {
		return i.setAPNLocked(apn)
	}
	return nil
}

func (i *Info) volumeCommand() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.volumeCmd
}

func (i *Info) pdpContextCommand() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.pdpContextCmd
}
