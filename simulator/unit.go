package simulator

import (
	"encoding/binary"
	"io"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/moffa90/go-arimu/protocol"
)

// Unit simulates an ARIMU unit on the far side of a serial link.
// It validates commands and generates replies the way the firmware does.
//
// Unit is safe for concurrent use. State survives reconnects: every call to
// Port returns a fresh link to the same unit.
type Unit struct {
	name   string
	config Config
	booted time.Time

	mu          sync.Mutex
	state       protocol.State
	subject     string
	files       map[string][]byte
	deleted     []string
	received    []protocol.Command
	clockOffset time.Duration
	stopStream  chan struct{}
	links       []*link
}

// New creates a unit that answers PING with name.
func New(name string, opts ...Option) *Unit {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Unit{
		name:    name,
		config:  cfg,
		booted:  cfg.Now(),
		state:   cfg.State,
		subject: cfg.Subject,
		files:   make(map[string][]byte),
	}
}

// Name returns the PING identity of the unit.
func (u *Unit) Name() string {
	return u.name
}

// AddFile stores a file on the simulated SD card.
func (u *Unit) AddFile(name string, data []byte) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.files[name] = append([]byte(nil), data...)
}

// Files returns the stored file names, sorted.
func (u *Unit) Files() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	names := make([]string, 0, len(u.files))
	for n := range u.files {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Deleted returns the names removed by DELETEFILE, in order.
func (u *Unit) Deleted() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.deleted...)
}

// Received returns every command the unit has decoded, in order.
func (u *Unit) Received() []protocol.Command {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]protocol.Command(nil), u.received...)
}

// State returns the current firmware state.
func (u *Unit) State() protocol.State {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state
}

// Subject returns the current subject name.
func (u *Unit) Subject() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.subject
}

// ClockOffset returns how far the unit's RTC is from the host clock.
func (u *Unit) ClockOffset() time.Duration {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.clockOffset
}

// SetClockOffset skews the unit's RTC relative to the host clock.
func (u *Unit) SetClockOffset(d time.Duration) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.clockOffset = d
}

// Port plugs in a new link and returns the host side of it.
func (u *Unit) Port() io.ReadWriteCloser {
	l := newLink()

	u.mu.Lock()
	u.links = append(u.links, l)
	u.mu.Unlock()

	go u.serve(l)
	return hostEnd{l: l}
}

// Close unplugs every link.
func (u *Unit) Close() error {
	u.mu.Lock()
	links := u.links
	u.links = nil
	u.mu.Unlock()

	for _, l := range links {
		l.close()
	}
	return nil
}

func (u *Unit) serve(l *link) {
	defer u.haltStream()

	parser := protocol.NewParser()
	buf := make([]byte, 256)
	for {
		n, err := l.toDevice.Read(buf)
		if err != nil {
			return
		}
		parser.Write(buf[:n], func(payload []byte) {
			u.handle(l, payload)
		})
	}
}

// reply sends one frame. Corruption injection applies to the first frame of
// each affected request only.
func (u *Unit) reply(l *link, cmd protocol.Command, corrupt *bool, data ...byte) {
	u.mu.Lock()
	header := []byte{byte(cmd), byte(u.state), byte(u.config.Errors)}
	u.mu.Unlock()

	frame, err := protocol.EncodeFrame(append(header, data...))
	if err != nil {
		return
	}
	if corrupt != nil && *corrupt {
		frame[len(frame)-1]++
		*corrupt = false
	}
	_, _ = l.toHost.Write(frame)
}

func (u *Unit) handle(l *link, payload []byte) {
	cmd := protocol.Command(payload[0])
	args := payload[1:]

	u.mu.Lock()
	u.received = append(u.received, cmd)
	if u.config.drops[cmd] > 0 {
		u.config.drops[cmd]--
		u.mu.Unlock()
		return
	}
	corrupt := false
	if u.config.corrupts[cmd] > 0 {
		u.config.corrupts[cmd]--
		corrupt = true
	}
	docked := u.state == protocol.StateDockingStation
	u.mu.Unlock()

	switch cmd {
	case protocol.CmdPing:
		u.reply(l, cmd, &corrupt, []byte(u.name)...)

	case protocol.CmdStatus:
		u.reply(l, cmd, &corrupt)

	case protocol.CmdStartDockingStation:
		u.mu.Lock()
		if u.config.dockRefusals > 0 {
			u.config.dockRefusals--
		} else {
			u.state = protocol.StateDockingStation
		}
		u.mu.Unlock()
		u.reply(l, cmd, &corrupt)

	case protocol.CmdStopDockingStation, protocol.CmdStopNormal, protocol.CmdStopExperiment, protocol.CmdSetToNone:
		u.setState(protocol.StateNone)
		u.reply(l, cmd, &corrupt)

	case protocol.CmdStartNormal:
		u.setState(protocol.StateNormal)
		u.reply(l, cmd, &corrupt)

	case protocol.CmdStartExperiment:
		u.setState(protocol.StateExperiment)
		u.reply(l, cmd, &corrupt)

	case protocol.CmdDockingStationPing:
		// no reply

	case protocol.CmdListFiles:
		if docked {
			u.sendList(l, &corrupt)
		}

	case protocol.CmdGetFileData:
		if docked {
			u.sendFile(l, protocol.ParseName(args), &corrupt)
		}

	case protocol.CmdDeleteFile:
		if docked {
			u.deleteFile(l, protocol.ParseName(args), &corrupt)
		}

	case protocol.CmdSetSubject:
		if docked {
			name := protocol.ParseName(args)
			u.mu.Lock()
			u.subject = name
			u.mu.Unlock()
			u.reply(l, cmd, &corrupt, append([]byte(name), 0)...)
		}

	case protocol.CmdGetSubject:
		u.reply(l, cmd, &corrupt, append([]byte(u.Subject()), 0)...)

	case protocol.CmdCurrentFileName:
		u.reply(l, cmd, &corrupt, append([]byte(u.config.CurrentFile), 0)...)

	case protocol.CmdSetTime:
		report, err := protocol.ParseTimeResponse(args, time.Local)
		if err != nil {
			return
		}
		u.mu.Lock()
		u.clockOffset = report.DeviceTime.Sub(u.config.Now())
		u.mu.Unlock()
		u.reply(l, cmd, &corrupt, u.timeBody()...)

	case protocol.CmdGetTime:
		u.reply(l, cmd, &corrupt, u.timeBody()...)

	case protocol.CmdGetMicros:
		micros := make([]byte, 4)
		binary.LittleEndian.PutUint32(micros, u.micros())
		u.reply(l, cmd, &corrupt, micros...)

	case protocol.CmdStartStream:
		u.setState(protocol.StateStreaming)
		u.reply(l, cmd, &corrupt)
		u.startStream(l)

	case protocol.CmdStopStream:
		u.haltStream()
		u.setState(protocol.StateNone)
		u.reply(l, cmd, &corrupt)
	}
}

func (u *Unit) setState(s protocol.State) {
	u.mu.Lock()
	u.state = s
	u.mu.Unlock()
}

func (u *Unit) micros() uint32 {
	return uint32(u.config.Now().Sub(u.booted).Microseconds())
}

func (u *Unit) deviceNow() time.Time {
	u.mu.Lock()
	offset := u.clockOffset
	u.mu.Unlock()
	return u.config.Now().Add(offset).In(time.Local)
}

func (u *Unit) timeBody() []byte {
	body := protocol.TimeArgs(u.deviceNow())
	micros := make([]byte, 4)
	binary.LittleEndian.PutUint32(micros, u.micros())
	return append(body, micros...)
}

func (u *Unit) sendList(l *link, corrupt *bool) {
	list := "[" + strings.Join(u.Files(), ",") + "]"

	for start := 0; start < len(list); start += u.config.ListChunk {
		end := start + u.config.ListChunk
		if end > len(list) {
			end = len(list)
		}
		u.reply(l, protocol.CmdListFiles, corrupt, []byte(list[start:end])...)
	}
	if u.config.ListTerminator {
		u.reply(l, protocol.CmdListFiles, corrupt)
	}
}

func (u *Unit) sendFile(l *link, name string, corrupt *bool) {
	u.mu.Lock()
	data, ok := u.files[name]
	stallAfter, stalls := u.config.stalls[name]
	size, override := u.config.sizeOverrides[name]
	u.mu.Unlock()

	if !ok {
		u.reply(l, protocol.CmdGetFileData, corrupt, byte(protocol.FlagNoFile))
		return
	}
	if !override {
		size = uint32(len(data))
	}

	u.reply(l, protocol.CmdGetFileData, corrupt, byte(protocol.FlagFileSearching))

	header := make([]byte, protocol.FileHeaderDataSize)
	header[0] = byte(protocol.FlagFileHeader)
	binary.LittleEndian.PutUint32(header[1:], size)
	u.reply(l, protocol.CmdGetFileData, corrupt, header...)

	chunks := 0
	for offset := 0; ; {
		if stalls && chunks >= stallAfter {
			return
		}

		end := offset + u.config.DataChunk
		if end > len(data) {
			end = len(data)
		}

		progress := byte(protocol.ProgressComplete)
		if end < len(data) {
			progress = byte(math.Min(254, float64(end)*255/float64(len(data))))
		}

		body := append([]byte{byte(protocol.FlagFileContent), progress}, data[offset:end]...)
		u.reply(l, protocol.CmdGetFileData, corrupt, body...)
		chunks++

		offset = end
		if offset >= len(data) {
			return
		}
	}
}

func (u *Unit) deleteFile(l *link, name string, corrupt *bool) {
	u.mu.Lock()
	_, ok := u.files[name]
	if ok {
		delete(u.files, name)
		u.deleted = append(u.deleted, name)
	}
	u.mu.Unlock()

	flag := protocol.FlagFileNotDeleted
	if ok {
		flag = protocol.FlagFileDeleted
	}
	u.reply(l, protocol.CmdDeleteFile, corrupt, byte(flag))
}

func (u *Unit) startStream(l *link) {
	u.mu.Lock()
	if u.stopStream != nil {
		u.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	u.stopStream = stop
	u.mu.Unlock()

	go func() {
		ticker := time.NewTicker(u.config.StreamInterval)
		defer ticker.Stop()

		var n int16
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
			}

			n++
			sample := make([]byte, protocol.SampleSize)
			binary.LittleEndian.PutUint32(sample[0:], uint32(u.deviceNow().Unix()))
			binary.LittleEndian.PutUint32(sample[4:], u.micros())
			for axis := 0; axis < 6; axis++ {
				binary.LittleEndian.PutUint16(sample[8+2*axis:], uint16(n*int16(axis+1)))
			}
			u.reply(l, protocol.CmdStartStream, nil, sample...)
		}
	}()
}

func (u *Unit) haltStream() {
	u.mu.Lock()
	stop := u.stopStream
	u.stopStream = nil
	u.mu.Unlock()

	if stop != nil {
		close(stop)
	}
}
