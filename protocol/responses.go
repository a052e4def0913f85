package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"
)

// ParseReply splits an inbound payload into its fixed header and body.
//
// Payload structure:
//
//	[CMD][STATE][ERRORS][DATA...]
func ParseReply(payload []byte) (*Reply, error) {
	if len(payload) < ReplyHeaderSize {
		return nil, fmt.Errorf("%w: got %d bytes, minimum is %d", ErrShortReply, len(payload), ReplyHeaderSize)
	}

	return &Reply{
		Command: Command(payload[0]),
		State:   State(payload[1]),
		Errors:  DeviceError(payload[2]),
		Data:    payload[ReplyHeaderSize:],
	}, nil
}

// ParseTimeResponse decodes a SETTIME or GETTIME reply body.
// Times are interpreted in loc; a nil loc means time.Local.
//
// Data format (TimeDataSize or TimeReplySize bytes):
//
//	[YY(4)][MM(4)][DD(4)][hh(4)][mm(4)][ss(4)][cs(4)][MICROS(4)]
func ParseTimeResponse(data []byte, loc *time.Location) (*TimeReport, error) {
	if len(data) < TimeDataSize {
		return nil, fmt.Errorf("invalid data length for time response: got %d bytes, expected %d", len(data), TimeDataSize)
	}
	if loc == nil {
		loc = time.Local
	}

	var f [TimeFieldCount]int
	for i := range f {
		f[i] = int(binary.LittleEndian.Uint32(data[i*4:]))
	}

	report := &TimeReport{
		DeviceTime: time.Date(2000+f[0], time.Month(f[1]), f[2], f[3], f[4], f[5],
			f[6]*int(10*time.Millisecond), loc),
	}
	if len(data) >= TimeReplySize {
		report.Micros = binary.LittleEndian.Uint32(data[TimeDataSize:])
		report.HasMicros = true
	}

	return report, nil
}

// ParseFileDataResponse decodes a GETFILEDATA reply body.
//
// Data format:
//
//	[NOFILE] | [FILESEARCHING] | [FILEHEADER][SIZE(4)] | [FILECONTENT][PROGRESS][BYTES...]
func ParseFileDataResponse(data []byte) (*FileChunk, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("empty file data response")
	}

	chunk := &FileChunk{Flag: FileFlag(data[0])}
	switch chunk.Flag {
	case FlagNoFile, FlagFileSearching:
	case FlagFileHeader:
		if len(data) < FileHeaderDataSize {
			return nil, fmt.Errorf("invalid data length for file header: got %d bytes, expected %d", len(data), FileHeaderDataSize)
		}
		chunk.TotalSize = binary.LittleEndian.Uint32(data[1:5])
	case FlagFileContent:
		if len(data) < FileContentHeaderSize {
			return nil, fmt.Errorf("invalid data length for file content: got %d bytes, minimum is %d", len(data), FileContentHeaderSize)
		}
		chunk.Progress = data[1]
		chunk.Data = data[FileContentHeaderSize:]
	default:
		return nil, fmt.Errorf("unexpected file data flag %s", chunk.Flag)
	}

	return chunk, nil
}

// ParseDeleteResponse decodes a DELETEFILE reply body.
// Returns FlagFileDeleted or FlagFileNotDeleted.
func ParseDeleteResponse(data []byte) (FileFlag, error) {
	if len(data) < 1 {
		return 0, fmt.Errorf("empty delete response")
	}
	flag := FileFlag(data[0])
	if flag != FlagFileDeleted && flag != FlagFileNotDeleted {
		return 0, fmt.Errorf("unexpected delete flag %s", flag)
	}
	return flag, nil
}

// ParseStreamSample decodes one telemetry sample.
//
// Data format (SampleSize bytes):
//
//	[EPOCH(4)][MICROS(4)][AX(2)][AY(2)][AZ(2)][GX(2)][GY(2)][GZ(2)]
func ParseStreamSample(data []byte) (*Sample, error) {
	if len(data) != SampleSize {
		return nil, fmt.Errorf("invalid data length for stream sample: got %d bytes, expected %d", len(data), SampleSize)
	}

	s := &Sample{
		Epoch:  binary.LittleEndian.Uint32(data[0:4]),
		Micros: binary.LittleEndian.Uint32(data[4:8]),
	}
	for i := 0; i < 3; i++ {
		s.Accel[i] = int16(binary.LittleEndian.Uint16(data[8+2*i:]))
		s.Gyro[i] = int16(binary.LittleEndian.Uint16(data[14+2*i:]))
	}

	return s, nil
}

// ParseName decodes an ASCII name reply body, dropping everything from the
// first NUL byte.
func ParseName(data []byte) string {
	if i := bytes.IndexByte(data, 0); i >= 0 {
		data = data[:i]
	}
	return string(data)
}

// ParseMicros decodes a GETMICROS reply body.
func ParseMicros(data []byte) (uint32, error) {
	if len(data) < 4 {
		return 0, fmt.Errorf("invalid data length for micros response: got %d bytes, expected 4", len(data))
	}
	return binary.LittleEndian.Uint32(data), nil
}
