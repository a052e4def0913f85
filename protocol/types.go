package protocol

import "time"

// Reply is a decoded inbound payload.
type Reply struct {
	// Command echoes the request this reply belongs to (payload[0])
	Command Command

	// State is the firmware state at the time of the reply
	State State

	// Errors is the device error bitmask
	Errors DeviceError

	// Data is the command-specific body (may be empty)
	Data []byte
}

// TimeReport is the body of a SETTIME or GETTIME reply.
type TimeReport struct {
	// DeviceTime is the RTC time as reported by the unit
	DeviceTime time.Time

	// Micros is the unit's free-running microsecond counter
	Micros uint32

	// HasMicros is false when the reply carried only the seven time fields
	HasMicros bool
}

// Skew estimates the device clock offset relative to ref.
// Positive values mean the device is ahead.
func (r *TimeReport) Skew(ref time.Time) time.Duration {
	return r.DeviceTime.Sub(ref)
}

// FileChunk is one GETFILEDATA reply body.
type FileChunk struct {
	// Flag is NOFILE, FILESEARCHING, FILEHEADER or FILECONTENT
	Flag FileFlag

	// TotalSize is set for FILEHEADER chunks
	TotalSize uint32

	// Progress is a coarse 0-255 fraction of TotalSize for FILECONTENT chunks;
	// ProgressComplete marks the last one
	Progress byte

	// Data holds the file bytes of a FILECONTENT chunk
	Data []byte
}

// Final reports whether this is the last content chunk of a file.
func (c *FileChunk) Final() bool {
	return c.Flag == FlagFileContent && c.Progress == ProgressComplete
}

// Sample is one streamed IMU telemetry frame.
type Sample struct {
	Epoch  uint32
	Micros uint32
	Accel  [3]int16
	Gyro   [3]int16
}
