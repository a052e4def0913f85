package protocol

import "testing"

func TestChecksum(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected byte
	}{
		{
			name:     "empty data",
			data:     []byte{},
			expected: 0x00,
		},
		{
			name:     "single byte",
			data:     []byte{0x01},
			expected: 0x01,
		},
		{
			name:     "ping frame prefix",
			data:     []byte{0xFF, 0xFF, 0x02, 0x01},
			expected: 0x01, // 513 mod 256
		},
		{
			name:     "status frame prefix",
			data:     []byte{0xFF, 0xFF, 0x02, 0x00},
			expected: 0x00, // 512 mod 256
		},
		{
			name:     "empty payload frame prefix",
			data:     []byte{0xFF, 0xFF, 0x01},
			expected: 0xFF, // 511 mod 256
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Checksum(tt.data)
			if result != tt.expected {
				t.Errorf("Checksum() = 0x%02X, want 0x%02X", result, tt.expected)
			}
		})
	}
}

func TestPayloadChecksumMatchesChecksum(t *testing.T) {
	payloads := [][]byte{
		{0x00},
		{0x01},
		{0x02, 0x04, 0x00, '[', 'a', ','},
		make([]byte, MaxPayloadSize),
	}

	for _, p := range payloads {
		prefix := append([]byte{Header, Header, byte(len(p) + 1)}, p...)
		if got, want := payloadChecksum(p), Checksum(prefix); got != want {
			t.Errorf("payloadChecksum(len=%d) = 0x%02X, want 0x%02X", len(p), got, want)
		}
	}
}

func BenchmarkChecksum(b *testing.B) {
	data := make([]byte, MaxPayloadSize)
	for i := range data {
		data[i] = byte(i)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Checksum(data)
	}
}

func TestEncodeFrameChecksum(t *testing.T) {
	payloads := [][]byte{
		{0x01},
		{0x05, 'S', '0', '1', 0x00},
		make([]byte, MaxPayloadSize),
	}

	for _, p := range payloads {
		frame, err := EncodeFrame(p)
		if err != nil {
			t.Fatalf("EncodeFrame(len=%d) error = %v", len(p), err)
		}
		last := len(frame) - 1
		if got, want := frame[last], Checksum(frame[:last]); got != want {
			t.Errorf("EncodeFrame(len=%d) checksum = 0x%02X, want 0x%02X", len(p), got, want)
		}
	}

	// FF + FF + 02 + 01 = 0x201
	frame, _ := EncodeFrame([]byte{0x01})
	if frame[len(frame)-1] != 0x01 {
		t.Errorf("EncodeFrame([01]) checksum = 0x%02X, want 0x01", frame[len(frame)-1])
	}
}
