package realtime

import "encoding/json"

// Client message types (client -> session).
const (
	ClientAudioChunk = "audio_chunk"
	ClientCommit     = "commit"
	ClientCancel     = "cancel"
)

// Outbound message types (session -> client).
const (
	MsgSessionReady        = "session_ready"
	MsgTranscriptDelta     = "transcript_delta"
	MsgTranscriptCompleted = "transcript_completed"
	MsgTranscriptFinal     = "transcript_final"
	MsgSpeechStarted       = "speech_started"
	MsgSpeechStopped       = "speech_stopped"
	MsgAudioCommitted      = "audio_committed"
	MsgError               = "error"
)

// Upstream event types.
const (
	EventSessionCreated         = "session.created"
	EventSessionUpdated         = "session.updated"
	EventTranscriptionDelta     = "conversation.item.input_audio_transcription.delta"
	EventTranscriptionCompleted = "conversation.item.input_audio_transcription.completed"
	EventSpeechStarted          = "input_audio_buffer.speech_started"
	EventSpeechStopped          = "input_audio_buffer.speech_stopped"
	EventBufferCommitted        = "input_audio_buffer.committed"
	EventResponseDone           = "response.done"
	EventError                  = "error"
)

// Upstream command types.
const (
	CmdSessionUpdate          = "session.update"
	CmdInputAudioBufferAppend = "input_audio_buffer.append"
	CmdInputAudioBufferCommit = "input_audio_buffer.commit"
	CmdInputAudioBufferClear  = "input_audio_buffer.clear"
)

// ClientMessage is an inbound frame from the client.
type ClientMessage struct {
	Type string `json:"type"`
	Data string `json:"data,omitempty"`
}

// OutboundMessage is a frame sent to the client. Fields not used by a given
// type are omitted.
type OutboundMessage struct {
	Type       string  `json:"type"`
	Delta      string  `json:"delta,omitempty"`
	Transcript *string `json:"transcript,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// UpstreamEvent is the subset of upstream event fields the session reads.
type UpstreamEvent struct {
	Type       string          `json:"type"`
	Delta      string          `json:"delta,omitempty"`
	Transcript string          `json:"transcript,omitempty"`
	Error      json.RawMessage `json:"error,omitempty"`
}

// upstreamError decodes only the message of an upstream error object; the
// type and code fields vary in shape and are not read.
type upstreamError struct {
	Message string `json:"message"`
}

// errorMessage extracts the human-readable message from an error event. The
// error is normally an object, but a bare string is accepted too.
func (e UpstreamEvent) errorMessage() string {
	if len(e.Error) == 0 {
		return defaultUpstreamErrorMessage
	}
	var obj upstreamError
	if err := json.Unmarshal(e.Error, &obj); err == nil {
		if obj.Message != "" {
			return obj.Message
		}
		return defaultUpstreamErrorMessage
	}
	var str string
	if err := json.Unmarshal(e.Error, &str); err == nil && str != "" {
		return str
	}
	return defaultUpstreamErrorMessage
}

type appendCommand struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

type bareCommand struct {
	Type string `json:"type"`
}

// SessionConfig holds the transcription and turn detection parameters sent
// upstream in session.update.
type SessionConfig struct {
	TranscriptionModel string
	VADThreshold       float64
	PrefixPaddingMs    int
	SilenceDurationMs  int
}

// DefaultSessionConfig returns the parameters used when none are configured.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		TranscriptionModel: "whisper-1",
		VADThreshold:       0.5,
		PrefixPaddingMs:    300,
		SilenceDurationMs:  500,
	}
}

type sessionUpdate struct {
	Type    string            `json:"type"`
	Session sessionUpdateBody `json:"session"`
}

type sessionUpdateBody struct {
	Modalities              []string                `json:"modalities"`
	InputAudioFormat        string                  `json:"input_audio_format"`
	InputAudioTranscription inputAudioTranscription `json:"input_audio_transcription"`
	TurnDetection           turnDetection           `json:"turn_detection"`
}

type inputAudioTranscription struct {
	Model    string `json:"model"`
	Language string `json:"language,omitempty"`
}

type turnDetection struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms"`
	SilenceDurationMs int     `json:"silence_duration_ms"`
}

func (c SessionConfig) update(language string) sessionUpdate {
	return sessionUpdate{
		Type: CmdSessionUpdate,
		Session: sessionUpdateBody{
			Modalities:       []string{"text"},
			InputAudioFormat: "pcm16",
			InputAudioTranscription: inputAudioTranscription{
				Model:    c.TranscriptionModel,
				Language: language,
			},
			TurnDetection: turnDetection{
				Type:              "server_vad",
				Threshold:         c.VADThreshold,
				PrefixPaddingMs:   c.PrefixPaddingMs,
				SilenceDurationMs: c.SilenceDurationMs,
			},
		},
	}
}

// notifications maps upstream buffer events to the bare client message they produce.
var notifications = map[string]string{
	EventSpeechStarted:   MsgSpeechStarted,
	EventSpeechStopped:   MsgSpeechStopped,
	EventBufferCommitted: MsgAudioCommitted,
}
