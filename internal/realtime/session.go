// Package realtime proxies a client websocket to the OpenAI Realtime API for
// streaming transcription. Each client connection gets one Session, which
// translates between the client protocol and the upstream event protocol.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// DefaultURL is the OpenAI Realtime API endpoint.
const DefaultURL = "wss://api.openai.com/v1/realtime"

const (
	defaultLanguage             = "en"
	defaultUpstreamErrorMessage = "Unknown error"
	connectFailedMessage        = "Failed to connect to OpenAI Realtime API"
)

var errMissingAPIKey = errors.New("realtime: OpenAI API key not configured")

// State is a session lifecycle stage.
type State int32

const (
	StateCreated State = iota
	StateConnecting
	StateConfiguring
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateConnecting:
		return "connecting"
	case StateConfiguring:
		return "configuring"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Config is the upstream endpoint, credential and session parameters shared by
// all sessions.
type Config struct {
	URL     string
	APIKey  string
	Session SessionConfig

	// MaxClientMessageBytes caps one client frame. Zero uses DefaultMaxClientMessageBytes.
	MaxClientMessageBytes int64
}

const DefaultMaxClientMessageBytes int64 = 1 << 20

// Options are the per-connection parameters chosen by the client.
type Options struct {
	Model    string
	Language string
}

// Session relays one client connection to one upstream connection.
type Session struct {
	id              string
	client          Conn
	dialer          Dialer
	cfg             Config
	model           string
	connectionModel string
	language        string
	logger          *slog.Logger
	startedAt       time.Time

	running atomic.Bool
	wg      sync.WaitGroup

	mu         sync.Mutex
	state      State
	upstream   Conn
	transcript strings.Builder
}

func NewSession(client Conn, dialer Dialer, cfg Config, opts Options, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Session == (SessionConfig{}) {
		cfg.Session = DefaultSessionConfig()
	}
	model := opts.Model
	if model == "" {
		model = DefaultConnectionModel
	}
	language := opts.Language
	if language == "" {
		language = defaultLanguage
	}

	id := uuid.NewString()
	connectionModel := ConnectionModel(model)
	return &Session{
		id:              id,
		client:          client,
		dialer:          dialer,
		cfg:             cfg,
		model:           model,
		connectionModel: connectionModel,
		language:        language,
		logger:          logger.With("session_id", id, "model", model, "connection_model", connectionModel),
	}
}

func (s *Session) ID() string              { return s.id }
func (s *Session) Model() string           { return s.model }
func (s *Session) ConnectionModel() string { return s.connectionModel }
func (s *Session) Language() string        { return s.language }
func (s *Session) StartedAt() time.Time    { return s.startedAt }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Transcript returns every delta fragment received so far, in order.
func (s *Session) Transcript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript.String()
}

// Running reports whether both relay loops are still expected to read.
func (s *Session) Running() bool {
	return s.running.Load()
}

// Run connects upstream and relays in both directions until either side ends
// the session or ctx is cancelled. Cleanup always runs before Run returns. The
// only error returned is a failed upstream connect, which has already been
// reported to the client.
//
// The loop still blocked on the client stream exits once the caller closes the
// client connection; Wait blocks until it has.
func (s *Session) Run(ctx context.Context) error {
	s.startedAt = time.Now()
	s.running.Store(true)

	up, err := s.connect(ctx)
	if err != nil {
		s.logger.Error("failed to connect to realtime API", "error", err)
		if sendErr := s.sendClient(OutboundMessage{Type: MsgError, Error: connectFailedMessage}); sendErr != nil {
			s.logger.Debug("failed to notify client", "error", sendErr)
		}
		s.Cleanup()
		return err
	}

	done := make(chan struct{}, 2)
	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.relayClient()
		done <- struct{}{}
	}()
	go func() {
		defer s.wg.Done()
		s.relayUpstream(up)
		done <- struct{}{}
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Info("realtime session cancelled", "error", ctx.Err())
	}
	s.Cleanup()
	return nil
}

// Wait blocks until both relay loops have returned.
func (s *Session) Wait() {
	s.wg.Wait()
}

// Cleanup stops the relay loops and closes the upstream connection. Close
// errors are swallowed; calling Cleanup again is a no-op.
func (s *Session) Cleanup() {
	s.running.Store(false)

	s.mu.Lock()
	if s.state == StateClosing || s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosing
	up := s.upstream
	s.upstream = nil
	s.mu.Unlock()

	if up != nil {
		if err := up.Close(); err != nil {
			s.logger.Debug("error closing upstream connection", "error", err)
		}
	}

	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()
	if s.startedAt.IsZero() {
		s.logger.Info("realtime session closed")
		return
	}
	s.logger.Info("realtime session closed", "duration_ms", time.Since(s.startedAt).Milliseconds())
}

func (s *Session) connect(ctx context.Context) (Conn, error) {
	s.setState(StateConnecting)

	if s.cfg.APIKey == "" {
		return nil, errMissingAPIKey
	}
	if s.dialer == nil {
		return nil, errors.New("realtime: no upstream dialer")
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	header.Set("OpenAI-Beta", "realtime=v1")
	target := s.cfg.URL + "?model=" + url.QueryEscape(s.connectionModel)

	s.logger.Info("connecting to realtime API")
	up, err := s.dialer.Dial(ctx, target, header)
	if err != nil {
		return nil, fmt.Errorf("dial realtime API: %w", err)
	}

	s.mu.Lock()
	if s.state != StateConnecting {
		s.mu.Unlock()
		_ = up.Close()
		return nil, fmt.Errorf("realtime: session %s before upstream connected", s.state)
	}
	s.upstream = up
	s.state = StateConfiguring
	s.mu.Unlock()

	s.logger.Info("connected to realtime API")
	return up, nil
}

// relayClient forwards client messages upstream until the client goes away,
// sends cancel, or the session stops running.
func (s *Session) relayClient() {
	defer s.running.Store(false)

	for {
		raw, err := s.client.Receive()
		if err != nil {
			if errors.Is(err, ErrClosed) {
				s.logger.Info("client disconnected")
			} else {
				s.logger.Error("error reading client message", "error", err)
			}
			return
		}
		if !s.running.Load() {
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.logger.Warn("received invalid JSON from client", "error", err)
			continue
		}

		switch msg.Type {
		case ClientAudioChunk:
			s.forward(appendCommand{Type: CmdInputAudioBufferAppend, Audio: msg.Data})
		case ClientCommit:
			s.forward(bareCommand{Type: CmdInputAudioBufferCommit})
		case ClientCancel:
			s.forward(bareCommand{Type: CmdInputAudioBufferClear})
			s.logger.Debug("transcription cancelled by client")
			return
		default:
			s.logger.Debug("ignoring client message", "type", msg.Type)
		}
	}
}

// relayUpstream translates upstream events into client messages.
func (s *Session) relayUpstream(up Conn) {
	defer s.running.Store(false)

	for {
		raw, err := up.Receive()
		if err != nil {
			if errors.Is(err, ErrClosed) {
				s.logger.Info("realtime API connection closed")
			} else {
				s.logger.Error("error reading realtime API message", "error", err)
			}
			return
		}
		if !s.running.Load() {
			return
		}

		var ev UpstreamEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			s.logger.Warn("received invalid JSON from realtime API", "error", err)
			continue
		}

		if err := s.handleEvent(ev); err != nil {
			s.logger.Error("error relaying realtime API event", "type", ev.Type, "error", err)
			return
		}
	}
}

func (s *Session) handleEvent(ev UpstreamEvent) error {
	s.logger.Debug("realtime API event", "type", ev.Type)

	switch ev.Type {
	case EventSessionCreated:
		s.logger.Info("realtime API session created")
		return s.configure()

	case EventSessionUpdated:
		s.setState(StateActive)
		s.logger.Info("realtime API session configured")
		return s.sendClient(OutboundMessage{Type: MsgSessionReady})

	case EventTranscriptionDelta:
		if ev.Delta == "" {
			return nil
		}
		full := s.appendTranscript(ev.Delta)
		return s.sendClient(OutboundMessage{Type: MsgTranscriptDelta, Delta: ev.Delta, Transcript: &full})

	case EventTranscriptionCompleted:
		text := ev.Transcript
		return s.sendClient(OutboundMessage{Type: MsgTranscriptCompleted, Transcript: &text})

	case EventSpeechStarted, EventSpeechStopped, EventBufferCommitted:
		return s.sendClient(OutboundMessage{Type: notifications[ev.Type]})

	case EventResponseDone:
		full := s.Transcript()
		return s.sendClient(OutboundMessage{Type: MsgTranscriptFinal, Transcript: &full})

	case EventError:
		msg := ev.errorMessage()
		s.logger.Error("realtime API error", "message", msg)
		return s.sendClient(OutboundMessage{Type: MsgError, Error: msg})

	default:
		return nil
	}
}

func (s *Session) configure() error {
	data, err := json.Marshal(s.cfg.Session.update(s.language))
	if err != nil {
		return fmt.Errorf("marshal session update: %w", err)
	}
	if err := s.sendUpstream(data); err != nil {
		return fmt.Errorf("send session update: %w", err)
	}
	s.logger.Debug("sent session configuration")
	return nil
}

// forward sends a client-originated command upstream. Failures are logged and
// the client loop keeps going; a dead upstream ends the session from the
// other loop.
func (s *Session) forward(cmd any) {
	data, err := json.Marshal(cmd)
	if err != nil {
		s.logger.Error("failed to encode upstream command", "error", err)
		return
	}
	if err := s.sendUpstream(data); err != nil {
		s.logger.Error("failed to send to realtime API", "error", err)
	}
}

func (s *Session) sendUpstream(data []byte) error {
	s.mu.Lock()
	up := s.upstream
	s.mu.Unlock()
	if up == nil {
		return ErrClosed
	}
	return up.Send(data)
}

func (s *Session) sendClient(msg OutboundMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal client message: %w", err)
	}
	if err := s.client.Send(data); err != nil {
		return fmt.Errorf("send to client: %w", err)
	}
	return nil
}

func (s *Session) appendTranscript(delta string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript.WriteString(delta)
	return s.transcript.String()
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosing || s.state == StateClosed {
		return
	}
	s.state = state
}
