package protocol

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyPayload    = errors.New("payload cannot be empty")
	ErrPayloadTooLarge = errors.New("payload too large")
	ErrShortReply      = errors.New("reply too short")
)

// faultNames maps error bits, least significant first.
var faultNames = []string{
	"ImuIntFail",
	"SdNoCont",
	"RtcNoSet",
	"DatFlNoCrt",
	"DatFlNoRdl",
	"DatFlNoFnd",
}

// DeviceError is the error bitmask carried in payload[2] of every reply.
// Bits are independent; all set bits are reported.
type DeviceError byte

// Faults returns the name of every set bit, least significant first.
// Bits past the known table are named Bit<n>.
func (e DeviceError) Faults() []string {
	var names []string
	for bit := 0; bit < 8; bit++ {
		if e&(1<<bit) == 0 {
			continue
		}
		if bit < len(faultNames) {
			names = append(names, faultNames[bit])
		} else {
			names = append(names, fmt.Sprintf("Bit%d", bit))
		}
	}
	return names
}

// Has reports whether the named fault is set.
func (e DeviceError) Has(name string) bool {
	for _, f := range e.Faults() {
		if f == name {
			return true
		}
	}
	return false
}

func (e DeviceError) String() string {
	if e == 0 {
		return "No Errors"
	}
	return strings.Join(e.Faults(), " | ")
}

// DeviceFaultError wraps a non-zero device bitmask for callers that want to
// treat it as an error. The session never does so on its own.
type DeviceFaultError struct {
	// Operation is the command that reported the fault
	Operation string

	Errors DeviceError
}

func (e *DeviceFaultError) Error() string {
	return fmt.Sprintf("%s reported device errors: %s (0x%02X)", e.Operation, e.Errors, byte(e.Errors))
}

// IsDeviceFault returns true if the error is a DeviceFaultError.
func IsDeviceFault(err error) bool {
	var fe *DeviceFaultError
	return errors.As(err, &fe)
}
