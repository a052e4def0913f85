package protocol

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeFrame(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		want    []byte
		wantErr bool
		errMsg  string
	}{
		{
			name:    "ping",
			payload: []byte{byte(CmdPing)},
			want:    []byte{0xFF, 0xFF, 0x02, 0x01, 0x01},
		},
		{
			name:    "status",
			payload: []byte{byte(CmdStatus)},
			want:    []byte{0xFF, 0xFF, 0x02, 0x00, 0x00},
		},
		{
			name:    "with args",
			payload: []byte{byte(CmdDeleteFile), 'a', 0x00},
			want:    []byte{0xFF, 0xFF, 0x04, 0x04, 'a', 0x00, 0x67}, // 615 mod 256
		},
		{
			name:    "empty payload",
			payload: nil,
			wantErr: true,
			errMsg:  "payload cannot be empty",
		},
		{
			name:    "oversized payload",
			payload: make([]byte, MaxPayloadSize+1),
			wantErr: true,
			errMsg:  "payload too large",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := EncodeFrame(tt.payload)

			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error containing %q, got nil", tt.errMsg)
				}
				if !bytes.Contains([]byte(err.Error()), []byte(tt.errMsg)) {
					t.Errorf("error = %v, want substring %q", err, tt.errMsg)
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !bytes.Equal(frame, tt.want) {
				t.Errorf("frame = % X, want % X", frame, tt.want)
			}
		})
	}
}

func TestEncodeFrameMaxPayload(t *testing.T) {
	payload := bytes.Repeat([]byte{0x01}, MaxPayloadSize)
	frame, err := EncodeFrame(payload)
	require.NoError(t, err)

	assert.Len(t, frame, MaxPayloadSize+MinFrameSize)
	assert.Equal(t, byte(0xFF), frame[2], "N must be 255 for the largest payload")
	assert.Equal(t, Checksum(frame[:len(frame)-1]), frame[len(frame)-1])
}

func TestBuildFileCmd(t *testing.T) {
	tests := []struct {
		name    string
		cmd     Command
		file    string
		wantErr bool
	}{
		{name: "get file data", cmd: CmdGetFileData, file: "s01_data_1700000000.bin"},
		{name: "delete file", cmd: CmdDeleteFile, file: "x.bin"},
		{name: "set subject", cmd: CmdSetSubject, file: "s01"},
		{name: "empty name", cmd: CmdGetFileData, file: "", wantErr: true},
		{name: "non-ascii name", cmd: CmdSetSubject, file: "sé", wantErr: true},
		{name: "embedded nul", cmd: CmdSetSubject, file: "a\x00b", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := BuildFileCmd(tt.cmd, tt.file)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			payloads := Decode(frame)
			require.Len(t, payloads, 1)
			p := payloads[0]
			assert.Equal(t, byte(tt.cmd), p[0])
			assert.Equal(t, tt.file, string(p[1:len(p)-1]))
			assert.Equal(t, byte(0), p[len(p)-1], "name must be NUL terminated")
		})
	}
}

func TestBuildSetTimeCmd(t *testing.T) {
	when := time.Date(2024, time.March, 9, 14, 5, 59, 370*int(time.Millisecond), time.UTC)

	frame, err := BuildSetTimeCmd(when)
	require.NoError(t, err)

	payloads := Decode(frame)
	require.Len(t, payloads, 1)
	p := payloads[0]
	require.Len(t, p, 1+TimeDataSize)
	assert.Equal(t, byte(CmdSetTime), p[0])

	want := []uint32{24, 3, 9, 14, 5, 59, 37}
	for i, w := range want {
		got := binary.LittleEndian.Uint32(p[1+4*i:])
		assert.Equal(t, w, got, "field %d", i)
	}
}

func BenchmarkEncodeFrame(b *testing.B) {
	payload := make([]byte, 200)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = EncodeFrame(payload)
	}
}
