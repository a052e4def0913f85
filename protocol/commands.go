package protocol

import (
	"encoding/binary"
	"fmt"
	"time"
)

// EncodeFrame wraps a payload into a wire frame.
//
// Frame structure:
//
//	[0xFF][0xFF][N][PAYLOAD(N-1)][CHECKSUM]
//
// N is len(payload)+1 and the checksum is the low byte of the sum of every
// preceding byte.
func EncodeFrame(payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, ErrEmptyPayload
	}
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: got %d bytes, maximum is %d", ErrPayloadTooLarge, len(payload), MaxPayloadSize)
	}

	frame := make([]byte, 0, MinFrameSize+len(payload))
	frame = append(frame, Header, Header, byte(len(payload)+1))
	frame = append(frame, payload...)
	frame = append(frame, payloadChecksum(payload))

	return frame, nil
}

// BuildCommand constructs an outbound frame carrying cmd and its arguments.
// Outbound payloads carry no state or error bytes.
func BuildCommand(cmd Command, args ...byte) ([]byte, error) {
	payload := make([]byte, 0, 1+len(args))
	payload = append(payload, byte(cmd))
	payload = append(payload, args...)
	return EncodeFrame(payload)
}

// NameArgs encodes a file or subject name as ASCII followed by a NUL terminator.
func NameArgs(name string) ([]byte, error) {
	if name == "" {
		return nil, fmt.Errorf("name cannot be empty")
	}
	args := make([]byte, 0, len(name)+1)
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c == 0 || c > 0x7F {
			return nil, fmt.Errorf("name %q contains non-ASCII or NUL byte at %d", name, i)
		}
		args = append(args, c)
	}
	return append(args, 0), nil
}

// BuildFileCmd constructs a GETFILEDATA, DELETEFILE or SETSUBJECT frame
// whose argument is a NUL-terminated name.
func BuildFileCmd(cmd Command, name string) ([]byte, error) {
	args, err := NameArgs(name)
	if err != nil {
		return nil, err
	}
	return BuildCommand(cmd, args...)
}

// TimeArgs encodes t as the seven little-endian u32 fields the RTC expects:
// year mod 100, month, day, hour, minute, second and hundredths of a second.
func TimeArgs(t time.Time) []byte {
	fields := [TimeFieldCount]uint32{
		uint32(t.Year() % 100),
		uint32(t.Month()),
		uint32(t.Day()),
		uint32(t.Hour()),
		uint32(t.Minute()),
		uint32(t.Second()),
		uint32(t.Nanosecond() / int(10*time.Millisecond)),
	}

	args := make([]byte, TimeDataSize)
	for i, f := range fields {
		binary.LittleEndian.PutUint32(args[i*4:], f)
	}
	return args
}

// BuildSetTimeCmd constructs a SETTIME frame for t.
func BuildSetTimeCmd(t time.Time) ([]byte, error) {
	return BuildCommand(CmdSetTime, TimeArgs(t)...)
}
