package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/moffa90/go-arimu/protocol"
	"github.com/moffa90/go-arimu/transport"
)

// DeviceIdentity describes a connected unit.
type DeviceIdentity struct {
	Name   string
	State  protocol.State
	Errors protocol.DeviceError
}

// Session drives one unit over one connection.
//
// Verbs must not be called concurrently: the connection carries one request
// at a time and a second concurrent verb fails with transport.ErrRequestPending.
type Session struct {
	port   string
	link   *transport.Correlator
	config Config

	mu          sync.Mutex
	identity    DeviceIdentity
	unsubscribe func()
}

// New creates a Session over an open connection to port.
// The connection is owned by the session and closed by Close.
//
// Example:
//
//	rw, _ := transport.OpenSerial("/dev/ttyACM0", transport.DefaultSerialConfig())
//	sess := session.New("/dev/ttyACM0", rw,
//	    session.WithTimeout(2*time.Second),
//	    session.WithLogger(myLogger),
//	)
//	defer sess.Close()
func New(port string, rw io.ReadWriteCloser, opts ...Option) *Session {
	if rw == nil {
		panic("connection cannot be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	link := transport.NewCorrelator(rw,
		transport.WithTimeout(cfg.Timeout),
		transport.WithRetries(cfg.Retries),
		transport.WithCommandDelay(cfg.CommandDelay),
		transport.WithLogger(cfg.Logger),
	)

	return &Session{
		port:   port,
		link:   link,
		config: cfg,
	}
}

// Port returns the port name this session was opened on.
func (s *Session) Port() string {
	return s.port
}

// Identity returns what Connect and Status last learned about the unit.
func (s *Session) Identity() DeviceIdentity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// Connect pings the unit and checks that it identifies itself.
// A device whose reply lacks the name marker yields an *IdentityError; that
// failure is final and not retried.
func (s *Session) Connect(ctx context.Context) (DeviceIdentity, error) {
	reply, err := s.link.Request(ctx, protocol.CmdPing, 0)
	if err != nil {
		return DeviceIdentity{}, fmt.Errorf("ping %s: %w", s.port, err)
	}

	name := protocol.ParseName(reply.Data)
	if s.config.NameMarker != "" && !strings.Contains(name, s.config.NameMarker) {
		return DeviceIdentity{}, &IdentityError{Port: s.port, Reply: name, Marker: s.config.NameMarker}
	}

	id := DeviceIdentity{Name: name, State: reply.State, Errors: reply.Errors}
	s.mu.Lock()
	s.identity = id
	s.mu.Unlock()

	s.logInfo("unit connected", "port", s.port, "name", name, "state", reply.State.String())
	s.checkFaults("ping", reply)
	return id, nil
}

// Status queries the unit's state and error bitmask.
func (s *Session) Status(ctx context.Context) (DeviceIdentity, error) {
	reply, err := s.link.Request(ctx, protocol.CmdStatus, 0)
	if err != nil {
		return DeviceIdentity{}, fmt.Errorf("status: %w", err)
	}

	s.mu.Lock()
	s.identity.State = reply.State
	s.identity.Errors = reply.Errors
	id := s.identity
	s.mu.Unlock()

	s.checkFaults("status", reply)
	return id, nil
}

// checkFaults logs device-reported errors. They are never fatal.
func (s *Session) checkFaults(op string, reply *protocol.Reply) {
	if reply.Errors != 0 {
		s.logError("device reports errors", "port", s.port, "operation", op, "faults", reply.Errors.String())
	}
}

// ensureDockingMode switches the unit into docking-station mode unless the
// last reply already reported it.
func (s *Session) ensureDockingMode(ctx context.Context) error {
	if st := s.link.LastStatus(); st.Seen && st.State == protocol.StateDockingStation {
		return nil
	}
	_, err := s.switchToDocking(ctx)
	return err
}

// switchToDocking sends STARTDOCKSTNCOMM until the unit reports
// docking-station state, at most Retries+1 times.
func (s *Session) switchToDocking(ctx context.Context) (protocol.State, error) {
	var state protocol.State
	for attempt := 0; attempt <= s.config.Retries; attempt++ {
		s.logDebug("entering docking mode", "port", s.port, "attempt", attempt+1)
		reply, err := s.link.Request(ctx, protocol.CmdStartDockingStation, 0)
		if err != nil {
			return 0, fmt.Errorf("enter docking mode: %w", err)
		}
		state = reply.State
		if state == protocol.StateDockingStation {
			return state, nil
		}
	}
	return state, &ModeSwitchError{Want: protocol.StateDockingStation, Got: state}
}

// request performs a single-reply exchange, optionally behind the docking
// precondition.
func (s *Session) request(ctx context.Context, privileged bool, cmd protocol.Command, args ...byte) (*protocol.Reply, error) {
	if privileged {
		if err := s.ensureDockingMode(ctx); err != nil {
			return nil, err
		}
	}
	reply, err := s.link.Request(ctx, cmd, 0, args...)
	if err != nil {
		return nil, err
	}
	s.checkFaults(cmd.String(), reply)
	return reply, nil
}

func (s *Session) setMode(ctx context.Context, cmd protocol.Command) (protocol.State, error) {
	reply, err := s.request(ctx, false, cmd)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", cmd, err)
	}
	s.mu.Lock()
	s.identity.State = reply.State
	s.mu.Unlock()
	return reply.State, nil
}

// EnterDockingMode switches the unit into docking-station mode, repeating
// the request while the unit refuses.
func (s *Session) EnterDockingMode(ctx context.Context) error {
	state, err := s.switchToDocking(ctx)
	var modeErr *ModeSwitchError
	if err == nil || errors.As(err, &modeErr) {
		s.mu.Lock()
		s.identity.State = state
		s.mu.Unlock()
	}
	return err
}

// ExitDockingMode leaves docking-station mode.
func (s *Session) ExitDockingMode(ctx context.Context) (protocol.State, error) {
	return s.setMode(ctx, protocol.CmdStopDockingStation)
}

// StartExperiment starts experiment logging.
func (s *Session) StartExperiment(ctx context.Context) (protocol.State, error) {
	return s.setMode(ctx, protocol.CmdStartExperiment)
}

// StopExperiment stops experiment logging.
func (s *Session) StopExperiment(ctx context.Context) (protocol.State, error) {
	return s.setMode(ctx, protocol.CmdStopExperiment)
}

// StartNormal starts normal logging.
func (s *Session) StartNormal(ctx context.Context) (protocol.State, error) {
	return s.setMode(ctx, protocol.CmdStartNormal)
}

// StopNormal stops normal logging.
func (s *Session) StopNormal(ctx context.Context) (protocol.State, error) {
	return s.setMode(ctx, protocol.CmdStopNormal)
}

// SetToNone puts the unit in the idle state.
func (s *Session) SetToNone(ctx context.Context) (protocol.State, error) {
	return s.setMode(ctx, protocol.CmdSetToNone)
}

// DockingPing sends DOCKSTNPING. The unit does not reply.
func (s *Session) DockingPing() error {
	return s.link.Post(protocol.CmdDockingStationPing)
}

// SetTime sets the unit's RTC to t and returns the time the unit echoed.
// An echo further than MaxClockSkew from t yields a *ClockSkewError along
// with the report.
func (s *Session) SetTime(ctx context.Context, t time.Time) (*protocol.TimeReport, error) {
	t = t.In(s.config.Location)

	reply, err := s.request(ctx, false, protocol.CmdSetTime, protocol.TimeArgs(t)...)
	if err != nil {
		return nil, fmt.Errorf("set time: %w", err)
	}
	report, err := protocol.ParseTimeResponse(reply.Data, s.config.Location)
	if err != nil {
		return nil, fmt.Errorf("set time: %w", err)
	}

	skew := report.Skew(t)
	s.logInfo("device time set", "port", s.port, "time", report.DeviceTime.Format(time.RFC3339Nano), "skew", skew.String())
	if skew < 0 {
		skew = -skew
	}
	if skew >= s.config.MaxClockSkew {
		return report, &ClockSkewError{Sent: t, Echoed: report.DeviceTime, Max: s.config.MaxClockSkew}
	}
	return report, nil
}

// GetTime reads the unit's RTC.
func (s *Session) GetTime(ctx context.Context) (*protocol.TimeReport, error) {
	reply, err := s.request(ctx, false, protocol.CmdGetTime)
	if err != nil {
		return nil, fmt.Errorf("get time: %w", err)
	}
	return protocol.ParseTimeResponse(reply.Data, s.config.Location)
}

// GetMicros reads the unit's free-running microsecond counter.
func (s *Session) GetMicros(ctx context.Context) (uint32, error) {
	reply, err := s.request(ctx, false, protocol.CmdGetMicros)
	if err != nil {
		return 0, fmt.Errorf("get micros: %w", err)
	}
	return protocol.ParseMicros(reply.Data)
}

// SetSubject sets the subject name used for new recordings and returns the
// name the unit echoed.
func (s *Session) SetSubject(ctx context.Context, name string) (string, error) {
	args, err := protocol.NameArgs(name)
	if err != nil {
		return "", err
	}
	reply, err := s.request(ctx, true, protocol.CmdSetSubject, args...)
	if err != nil {
		return "", fmt.Errorf("set subject: %w", err)
	}
	return protocol.ParseName(reply.Data), nil
}

// GetSubject reads the subject name.
func (s *Session) GetSubject(ctx context.Context) (string, error) {
	reply, err := s.request(ctx, false, protocol.CmdGetSubject)
	if err != nil {
		return "", fmt.Errorf("get subject: %w", err)
	}
	return protocol.ParseName(reply.Data), nil
}

// CurrentFileName reads the name of the file being recorded.
func (s *Session) CurrentFileName(ctx context.Context) (string, error) {
	reply, err := s.request(ctx, false, protocol.CmdCurrentFileName)
	if err != nil {
		return "", fmt.Errorf("current file name: %w", err)
	}
	return protocol.ParseName(reply.Data), nil
}

// Close stops any telemetry subscription and closes the connection.
func (s *Session) Close() error {
	s.mu.Lock()
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	return s.link.Close()
}

func (s *Session) logDebug(msg string, kv ...interface{}) {
	if s.config.Logger != nil {
		s.config.Logger.Debug(msg, kv...)
	}
}

func (s *Session) logInfo(msg string, kv ...interface{}) {
	if s.config.Logger != nil {
		s.config.Logger.Info(msg, kv...)
	}
}

func (s *Session) logError(msg string, kv ...interface{}) {
	if s.config.Logger != nil {
		s.config.Logger.Error(msg, kv...)
	}
}
