package simulator

import (
	"bytes"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moffa90/go-arimu/protocol"
)

// exchange writes one command and collects the replies that arrive within wait.
func exchange(t *testing.T, port io.ReadWriter, wait time.Duration, cmd protocol.Command, args ...byte) []*protocol.Reply {
	t.Helper()

	frame, err := protocol.BuildCommand(cmd, args...)
	require.NoError(t, err)
	_, err = port.Write(frame)
	require.NoError(t, err)

	payloads := make(chan []byte, 256)
	go func() {
		p := protocol.NewParser()
		buf := make([]byte, 256)
		for {
			n, err := port.Read(buf)
			if err != nil {
				close(payloads)
				return
			}
			p.Write(buf[:n], func(b []byte) { payloads <- b })
		}
	}()

	var replies []*protocol.Reply
	deadline := time.After(wait)
	for {
		select {
		case b, ok := <-payloads:
			if !ok {
				return replies
			}
			r, err := protocol.ParseReply(b)
			require.NoError(t, err)
			replies = append(replies, r)
		case <-deadline:
			return replies
		}
	}
}

func TestUnitPing(t *testing.T) {
	u := New("ARIMU-07")
	port := u.Port()
	defer port.Close()

	replies := exchange(t, port, 50*time.Millisecond, protocol.CmdPing)
	require.Len(t, replies, 1)
	assert.Equal(t, "ARIMU-07", string(replies[0].Data))
	assert.Equal(t, protocol.StateNormal, replies[0].State)
	assert.Equal(t, []protocol.Command{protocol.CmdPing}, u.Received())
}

func TestUnitListRequiresDocking(t *testing.T) {
	u := New("ARIMU-07", WithListChunk(5))
	u.AddFile("b_data_2.bin", nil)
	u.AddFile("a_data_1.bin", nil)

	port := u.Port()
	defer port.Close()

	assert.Empty(t, exchange(t, port, 30*time.Millisecond, protocol.CmdListFiles))
	assert.Equal(t, protocol.StateNormal, u.State())

	port2 := u.Port()
	defer port2.Close()
	replies := exchange(t, port2, 30*time.Millisecond, protocol.CmdStartDockingStation)
	require.Len(t, replies, 1)
	assert.Equal(t, protocol.StateDockingStation, replies[0].State)

	port3 := u.Port()
	defer port3.Close()
	replies = exchange(t, port3, 50*time.Millisecond, protocol.CmdListFiles)
	require.NotEmpty(t, replies)

	var text bytes.Buffer
	for _, r := range replies {
		text.Write(r.Data)
	}
	assert.Equal(t, "[a_data_1.bin,b_data_2.bin]", text.String())
	assert.Empty(t, replies[len(replies)-1].Data, "listing ends with a zero-length reply")
}

func TestUnitSendFile(t *testing.T) {
	data := bytes.Repeat([]byte{0xAB}, 450)
	u := New("ARIMU-07", WithState(protocol.StateDockingStation), WithDataChunk(200))
	u.AddFile("s_data_1.bin", data)

	port := u.Port()
	defer port.Close()

	replies := exchange(t, port, 50*time.Millisecond, protocol.CmdGetFileData, append([]byte("s_data_1.bin"), 0)...)
	require.Len(t, replies, 5) // searching, header, 3 content chunks

	header, err := protocol.ParseFileDataResponse(replies[1].Data)
	require.NoError(t, err)
	assert.Equal(t, uint32(450), header.TotalSize)

	var got []byte
	var last byte
	for _, r := range replies[2:] {
		c, err := protocol.ParseFileDataResponse(r.Data)
		require.NoError(t, err)
		got = append(got, c.Data...)
		last = c.Progress
	}
	assert.Equal(t, data, got)
	assert.Equal(t, byte(protocol.ProgressComplete), last)
}

func TestUnitMissingFile(t *testing.T) {
	u := New("ARIMU-07", WithState(protocol.StateDockingStation))
	port := u.Port()
	defer port.Close()

	replies := exchange(t, port, 30*time.Millisecond, protocol.CmdGetFileData, 'x', 0)
	require.Len(t, replies, 1)
	assert.Equal(t, []byte{byte(protocol.FlagNoFile)}, replies[0].Data)
}

func TestUnitDroppedAndCorruptedReplies(t *testing.T) {
	u := New("ARIMU-07",
		WithDroppedReplies(protocol.CmdStatus, 1),
		WithCorruptedReplies(protocol.CmdPing, 1),
	)

	port := u.Port()
	defer port.Close()
	assert.Empty(t, exchange(t, port, 30*time.Millisecond, protocol.CmdStatus))

	port2 := u.Port()
	defer port2.Close()
	assert.Empty(t, exchange(t, port2, 30*time.Millisecond, protocol.CmdPing))

	port3 := u.Port()
	defer port3.Close()
	assert.Len(t, exchange(t, port3, 30*time.Millisecond, protocol.CmdPing), 1)
}

func TestUnitSetTime(t *testing.T) {
	host := time.Date(2024, 5, 1, 12, 0, 0, 0, time.Local)
	u := New("ARIMU-07", WithClock(func() time.Time { return host }))
	u.SetClockOffset(-time.Hour)

	port := u.Port()
	defer port.Close()

	replies := exchange(t, port, 30*time.Millisecond, protocol.CmdSetTime, protocol.TimeArgs(host)...)
	require.Len(t, replies, 1)

	report, err := protocol.ParseTimeResponse(replies[0].Data, time.Local)
	require.NoError(t, err)
	assert.True(t, report.HasMicros)
	assert.True(t, report.DeviceTime.Equal(host))
	assert.Zero(t, u.ClockOffset())
}

func TestUnitCloseUnplugsLinks(t *testing.T) {
	u := New("ARIMU-07")
	port := u.Port()
	require.NoError(t, u.Close())

	_, err := port.Read(make([]byte, 8))
	assert.ErrorIs(t, err, io.EOF)
	_, err = port.Write([]byte{0xFF})
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}
