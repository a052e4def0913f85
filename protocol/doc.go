// Package protocol implements the ARIMU serial framing protocol.
//
// This package encodes outbound command frames, decodes the inbound byte
// stream into payloads, and parses the command-specific reply bodies.
// It has no notion of request/response pairing; see package transport.
//
// # Frame Format
//
//	[0xFF][0xFF][N][PAYLOAD(N-1)][CHECKSUM]
//
// Where:
//   - N = len(payload)+1, so N=0 is never valid
//   - CHECKSUM = low byte of the sum of every preceding byte
//
// Outbound payloads are [CMD][ARGS...]. Inbound payloads are
// [CMD][STATE][ERRORS][DATA...].
//
// # Encoding
//
//	frame, err := protocol.BuildCommand(protocol.CmdPing)
//	frame, err := protocol.BuildFileCmd(protocol.CmdGetFileData, "s01_data_1700000000.bin")
//	frame, err := protocol.BuildSetTimeCmd(time.Now())
//
// # Decoding
//
// Parser is a byte-at-a-time automaton that resynchronizes on its own after
// noise or a corrupted frame:
//
//	p := protocol.NewParser()
//	p.Write(buf[:n], func(payload []byte) {
//	    reply, err := protocol.ParseReply(payload)
//	    ...
//	})
//
// Then use the Parse* functions for command-specific data:
//
//	chunk, err := protocol.ParseFileDataResponse(reply.Data)
//	report, err := protocol.ParseTimeResponse(reply.Data, time.Local)
//
// # Device Errors
//
// Every reply carries an error bitmask. DeviceError names every set bit:
//
//	reply.Errors.String() // "SdNoCont | RtcNoSet"
package protocol
