package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wrenfold/haptic-core/internal/device"
	"github.com/wrenfold/haptic-core/internal/infrastructure/config"
	"github.com/wrenfold/haptic-core/internal/infrastructure/logging"
	"github.com/wrenfold/haptic-core/internal/message"
)

// State is the session lifecycle phase.
type State int

const (
	// StateAwaitingHandshake accepts only a handshake request.
	StateAwaitingHandshake State = iota
	// StateReady accepts the full message catalogue.
	StateReady
	// StateClosed accepts nothing; terminal.
	StateClosed
)

// Conn is the bidirectional message channel one client is attached to.
// Send must be safe for concurrent use; Close must be idempotent.
type Conn interface {
	Send(msg message.Message) error
	Close() error
}

// Config carries the server-side protocol parameters for a session.
type Config struct {
	// ServerName is reported in the handshake reply.
	ServerName string

	// VersionMin and VersionMax bound the schema versions the server
	// speaks (inclusive).
	VersionMin uint32
	VersionMax uint32

	// MaxPingTime is the liveness deadline declared to the client.
	// Zero disables the ping requirement.
	MaxPingTime time.Duration

	// CheckInterval is how often the safety monitor evaluates the
	// deadline. Must be shorter than MaxPingTime when pings are enabled.
	CheckInterval time.Duration

	// StopScope selects whether a ping timeout stops every device or
	// only those this session has commanded.
	StopScope config.StopScope
}

// Session is one client's protocol state machine. It owns the handshake
// state, the outstanding-request table, the claimed-device set, and the
// ping deadline; device work is delegated to the Manager.
//
// Handle is driven by the transport's read loop; Run hosts the safety
// monitor and the event forwarder. Both stop when the session closes.
type Session struct {
	id      uuid.UUID
	conn    Conn
	manager *device.Manager
	cfg     Config
	logger  *logging.Logger

	mu           sync.Mutex
	state        State
	version      uint32
	outstanding  map[uint32]struct{}
	claimed      map[uint32]struct{}
	lastActivity time.Time

	stopOnce sync.Once
	done     chan struct{}
	closeMu  sync.Mutex
	closed   bool
}

// New creates a session attached to one connection, in
// StateAwaitingHandshake.
func New(conn Conn, manager *device.Manager, cfg Config, logger *logging.Logger) *Session {
	id := uuid.New()
	return &Session{
		id:           id,
		conn:         conn,
		manager:      manager,
		cfg:          cfg,
		logger:       logger.With("session", id.String()),
		state:        StateAwaitingHandshake,
		outstanding:  make(map[uint32]struct{}),
		claimed:      make(map[uint32]struct{}),
		lastActivity: time.Now(),
		done:         make(chan struct{}),
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() uuid.UUID { return s.id }

// State returns the current lifecycle phase.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Version returns the negotiated schema version (0 before handshake).
func (s *Session) Version() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Done is closed when the session has fully shut down.
func (s *Session) Done() <-chan struct{} { return s.done }

// Run hosts the safety monitor and the device event forwarder until the
// session closes or ctx is cancelled. It blocks; run it in its own
// goroutine.
func (s *Session) Run(ctx context.Context) {
	events, cancelEvents := s.manager.Subscribe()
	defer cancelEvents()

	interval := s.cfg.CheckInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Close()
			return
		case <-s.done:
			return
		case <-ticker.C:
			s.checkDeadline()
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.forwardEvent(ev)
		}
	}
}

// checkDeadline enforces the ping deadline. On expiry the safety stop
// runs exactly once and the session closes; this path depends only on
// the Device Manager, never on the client connection being writable.
func (s *Session) checkDeadline() {
	if s.cfg.MaxPingTime <= 0 {
		return
	}

	s.mu.Lock()
	expired := s.state == StateReady && time.Since(s.lastActivity) > s.cfg.MaxPingTime
	s.mu.Unlock()
	if !expired {
		return
	}

	s.logger.Warn("ping deadline exceeded, stopping devices",
		"max_ping_time", s.cfg.MaxPingTime,
		"scope", string(s.cfg.StopScope),
	)
	s.safetyStop()

	// Best effort: the client may already be gone.
	s.send(message.Message{
		ID:   message.EventID,
		Kind: message.KindError,
		Payload: &message.Error{
			Code:    message.ErrorCodePing,
			Message: "ping timeout",
		},
	})
	s.Close()
}

// safetyStop issues the fail-safe stop, at most once per session.
func (s *Session) safetyStop() {
	s.stopOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		var err error
		if s.cfg.StopScope == config.StopScopeSession {
			err = s.manager.StopDevices(ctx, s.claimedIndices())
		} else {
			err = s.manager.StopAll(ctx)
		}
		if err != nil {
			s.logger.Error("safety stop reported failures", "error", err)
		}
	})
}

func (s *Session) claimedIndices() []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	indices := make([]uint32, 0, len(s.claimed))
	for index := range s.claimed {
		indices = append(indices, index)
	}
	return indices
}

// forwardEvent pushes a registry event to the client as an unsolicited
// message. Events are only delivered after the handshake.
func (s *Session) forwardEvent(ev device.Event) {
	if s.State() != StateReady {
		return
	}

	switch ev.Kind {
	case device.EventAdded:
		s.send(message.Message{
			ID:      message.EventID,
			Kind:    message.KindDeviceAdded,
			Payload: &message.DeviceAdded{Device: deviceInfo(ev.Device)},
		})
	case device.EventRemoved:
		s.send(message.Message{
			ID:      message.EventID,
			Kind:    message.KindDeviceRemoved,
			Payload: &message.DeviceRemoved{Index: ev.Index},
		})
	case device.EventScanningFinished:
		s.send(message.Message{ID: message.EventID, Kind: message.KindScanningFinished})
	case device.EventReading:
		s.send(message.Message{
			ID:   message.EventID,
			Kind: message.KindSensorReading,
			Payload: &message.SensorReading{
				DeviceIndex: ev.Reading.DeviceIndex,
				SensorIndex: ev.Reading.SensorIndex,
				Kind:        string(ev.Reading.Kind),
				Values:      ev.Reading.Values,
			},
		})
	}
}

// Handle processes one inbound message from the transport's read loop.
//
// A returned error is terminal: the session has closed (after sending
// the client its error report) and the transport should disconnect.
// Device-level failures are not terminal; they are reported as
// correlated error replies and Handle returns nil.
func (s *Session) Handle(ctx context.Context, msg message.Message) error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.lastActivity = time.Now()
	state := s.state
	s.mu.Unlock()

	if state == StateAwaitingHandshake {
		return s.handleHandshake(msg)
	}
	return s.handleReady(ctx, msg)
}

// handleHandshake enforces handshake-first ordering and negotiates the
// schema version.
func (s *Session) handleHandshake(msg message.Message) error {
	if msg.Kind != message.KindHandshakeRequest {
		s.sendError(msg.ID, message.ErrorCodeHandshake, "handshake required")
		s.Close()
		return fmt.Errorf("%w: got %s", ErrHandshakeRequired, msg.Kind)
	}

	req, ok := msg.Payload.(*message.HandshakeRequest)
	if !ok {
		s.sendError(msg.ID, message.ErrorCodeHandshake, "malformed handshake")
		s.Close()
		return fmt.Errorf("%w: malformed handshake payload", ErrHandshakeRequired)
	}

	version, ok := negotiate(req.VersionMin, req.VersionMax, s.cfg.VersionMin, s.cfg.VersionMax)
	if !ok {
		s.sendError(msg.ID, message.ErrorCodeHandshake,
			fmt.Sprintf("no common version: client %d-%d, server %d-%d",
				req.VersionMin, req.VersionMax, s.cfg.VersionMin, s.cfg.VersionMax))
		s.Close()
		return fmt.Errorf("%w: client %d-%d, server %d-%d",
			ErrVersionMismatch, req.VersionMin, req.VersionMax, s.cfg.VersionMin, s.cfg.VersionMax)
	}

	s.mu.Lock()
	s.state = StateReady
	s.version = version
	s.mu.Unlock()

	s.logger.Info("handshake complete",
		"client", req.ClientName,
		"version", version,
	)

	s.send(message.Message{
		ID:   msg.ID,
		Kind: message.KindHandshakeReply,
		Payload: &message.HandshakeReply{
			ServerName:  s.cfg.ServerName,
			Version:     version,
			MaxPingTime: uint32(s.cfg.MaxPingTime / time.Millisecond),
		},
	})
	return nil
}

// negotiate returns the highest version both ranges contain.
func negotiate(cmin, cmax, smin, smax uint32) (uint32, bool) {
	if cmax < smin || smax < cmin {
		return 0, false
	}
	if cmax < smax {
		return cmax, true
	}
	return smax, true
}

// handleReady routes one post-handshake message.
func (s *Session) handleReady(ctx context.Context, msg message.Message) error {
	switch msg.Kind {
	case message.KindPing:
		// Activity timestamp already refreshed; no reply.
		return nil

	case message.KindHandshakeRequest:
		s.sendError(msg.ID, message.ErrorCodeMessage, "handshake already complete")
		s.Close()
		return fmt.Errorf("%w: repeated handshake", ErrUnexpectedMessage)

	case message.KindDeviceListRequest:
		return s.correlated(msg.ID, func() {
			devices := s.manager.Devices()
			infos := make([]message.DeviceInfo, 0, len(devices))
			for _, d := range devices {
				infos = append(infos, deviceInfo(d))
			}
			s.send(message.Message{
				ID:      msg.ID,
				Kind:    message.KindDeviceListReply,
				Payload: &message.DeviceListReply{Devices: infos},
			})
		})

	case message.KindDeviceCommand:
		cmd, ok := msg.Payload.(*message.DeviceCommand)
		if !ok {
			s.sendError(msg.ID, message.ErrorCodeMessage, "malformed device command")
			return nil
		}
		return s.correlated(msg.ID, func() {
			s.dispatchCommand(ctx, msg.ID, cmd)
		})

	case message.KindSensorRequest:
		req, ok := msg.Payload.(*message.SensorRequest)
		if !ok {
			s.sendError(msg.ID, message.ErrorCodeMessage, "malformed sensor request")
			return nil
		}
		return s.correlated(msg.ID, func() {
			if err := s.manager.ReadSensor(ctx, req.DeviceIndex, req.SensorIndex); err != nil {
				s.sendError(msg.ID, message.ErrorCodeDevice, err.Error())
				return
			}
			s.sendOk(msg.ID)
		})

	case message.KindStopDeviceRequest:
		req, ok := msg.Payload.(*message.StopDeviceRequest)
		if !ok {
			s.sendError(msg.ID, message.ErrorCodeMessage, "malformed stop request")
			return nil
		}
		return s.correlated(msg.ID, func() {
			if err := s.manager.StopDevice(ctx, req.DeviceIndex); err != nil {
				s.sendError(msg.ID, message.ErrorCodeDevice, err.Error())
				return
			}
			s.sendOk(msg.ID)
		})

	case message.KindStopAllRequest:
		return s.correlated(msg.ID, func() {
			if err := s.manager.StopAll(ctx); err != nil {
				s.sendError(msg.ID, message.ErrorCodeDevice, err.Error())
				return
			}
			s.sendOk(msg.ID)
		})

	case message.KindStartScanning:
		return s.correlated(msg.ID, func() {
			if err := s.manager.StartScanning(ctx); err != nil {
				s.sendError(msg.ID, message.ErrorCodeDevice, err.Error())
				return
			}
			s.sendOk(msg.ID)
		})

	case message.KindStopScanning:
		return s.correlated(msg.ID, func() {
			if err := s.manager.StopScanning(ctx); err != nil {
				s.sendError(msg.ID, message.ErrorCodeDevice, err.Error())
				return
			}
			s.sendOk(msg.ID)
		})

	case message.KindUnrecognized:
		kind := ""
		if u, ok := msg.Payload.(*message.Unrecognized); ok {
			kind = u.WireKind
		}
		s.sendError(msg.ID, message.ErrorCodeMessage, fmt.Sprintf("unrecognized message kind %q", kind))
		return nil

	default:
		s.sendError(msg.ID, message.ErrorCodeMessage, fmt.Sprintf("unexpected message kind %q", msg.Kind))
		s.Close()
		return fmt.Errorf("%w: %s", ErrUnexpectedMessage, msg.Kind)
	}
}

// dispatchCommand forwards a device command to the Manager and reports
// the correlated result. Devices this session commands are claimed for
// session-scoped safety stops.
func (s *Session) dispatchCommand(ctx context.Context, id uint32, cmd *message.DeviceCommand) {
	deviceCmd := device.Command{DeviceIndex: cmd.DeviceIndex}
	for _, a := range cmd.Actuators {
		deviceCmd.Actuators = append(deviceCmd.Actuators, device.ActuatorCommand{
			Index:     a.Index,
			Kind:      device.ActuatorKind(a.Kind),
			Level:     a.Level,
			Clockwise: a.Clockwise == nil || *a.Clockwise,
			Duration:  time.Duration(a.DurationMs) * time.Millisecond,
		})
	}
	if cmd.Raw != nil {
		deviceCmd.Raw = &device.RawWrite{Endpoint: cmd.Raw.Endpoint, Data: cmd.Raw.Data}
	}

	err := s.manager.Dispatch(ctx, deviceCmd)

	if !errors.Is(err, device.ErrUnknownDevice) {
		s.mu.Lock()
		s.claimed[cmd.DeviceIndex] = struct{}{}
		s.mu.Unlock()
	}

	if err != nil {
		s.sendError(id, message.ErrorCodeDevice, err.Error())
		return
	}
	s.send(message.Message{
		ID:      id,
		Kind:    message.KindCommandResult,
		Payload: &message.CommandResult{DeviceIndex: cmd.DeviceIndex},
	})
}

// correlated runs fn with id held in the outstanding table. A duplicate
// id while the first is still outstanding is a protocol violation and
// closes the session. Id 0 requests are fire-and-forget and skip the
// table.
func (s *Session) correlated(id uint32, fn func()) error {
	if id == message.EventID {
		fn()
		return nil
	}

	s.mu.Lock()
	if _, dup := s.outstanding[id]; dup {
		s.mu.Unlock()
		s.sendError(id, message.ErrorCodeMessage, fmt.Sprintf("message id %d already outstanding", id))
		s.Close()
		return fmt.Errorf("%w: %d", ErrDuplicateMessageID, id)
	}
	s.outstanding[id] = struct{}{}
	s.mu.Unlock()

	fn()

	s.mu.Lock()
	delete(s.outstanding, id)
	s.mu.Unlock()
	return nil
}

// Close transitions to StateClosed, drops all outstanding requests, and
// closes the connection. Idempotent. In-flight device writes already
// dispatched run to completion; only their replies are lost.
func (s *Session) Close() {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return
	}
	s.closed = true
	s.closeMu.Unlock()

	s.mu.Lock()
	s.state = StateClosed
	s.outstanding = make(map[uint32]struct{})
	s.mu.Unlock()

	s.conn.Close() //nolint:errcheck // Transport teardown is best effort
	close(s.done)
	s.logger.Debug("session closed")
}

// send writes one message, logging failures. A dead connection never
// blocks session logic.
func (s *Session) send(msg message.Message) {
	if err := s.conn.Send(msg); err != nil {
		s.logger.Debug("send failed", "kind", msg.Kind, "error", err)
	}
}

func (s *Session) sendOk(id uint32) {
	s.send(message.Message{ID: id, Kind: message.KindOk})
}

func (s *Session) sendError(id uint32, code message.ErrorCode, text string) {
	s.send(message.Message{
		ID:      id,
		Kind:    message.KindError,
		Payload: &message.Error{Code: code, Message: text},
	})
}

// deviceInfo converts a registry device into its wire representation.
func deviceInfo(d *device.Device) message.DeviceInfo {
	caps := d.Capabilities()
	info := message.DeviceInfo{
		Index: d.Index(),
		Name:  d.Name(),
	}
	for _, a := range caps.Actuators {
		info.Actuators = append(info.Actuators, message.ActuatorInfo{
			Index: a.Index,
			Kind:  string(a.Kind),
			Min:   a.Min,
			Max:   a.Max,
		})
	}
	for _, sn := range caps.Sensors {
		info.Sensors = append(info.Sensors, message.SensorInfo{
			Index: sn.Index,
			Kind:  string(sn.Kind),
			Min:   sn.Min,
			Max:   sn.Max,
		})
	}
	return info
}
