package realtime

import (
	"encoding/json"
	"testing"
)

func TestSessionConfig_UpdateLanguage(t *testing.T) {
	cfg := SessionConfig{TranscriptionModel: "whisper-1"}

	tests := []struct {
		name     string
		language string
		want     any
		present  bool
	}{
		{name: "set", language: "fr", want: "fr", present: true},
		{name: "empty omitted", language: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := json.Marshal(cfg.update(tt.language))
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			var body struct {
				Session struct {
					InputAudioTranscription map[string]any `json:"input_audio_transcription"`
				} `json:"session"`
			}
			if err := json.Unmarshal(raw, &body); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			tr := body.Session.InputAudioTranscription
			got, ok := tr["language"]
			if ok != tt.present || (ok && got != tt.want) {
				t.Errorf("language = %v (present %v), want %v (present %v)", got, ok, tt.want, tt.present)
			}
			if tr["model"] != "whisper-1" {
				t.Errorf("unexpected model %v", tr["model"])
			}
		})
	}
}

func TestUpstreamEvent_ErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "object", raw: `{"type":"error","error":{"message":"boom"}}`, want: "boom"},
		{name: "numeric code", raw: `{"type":"error","error":{"type":"server_error","code":500,"message":"upstream exploded"}}`, want: "upstream exploded"},
		{name: "null code", raw: `{"type":"error","error":{"code":null,"param":{"x":1},"message":"bad param"}}`, want: "bad param"},
		{name: "bare string", raw: `{"type":"error","error":"plain"}`, want: "plain"},
		{name: "empty message", raw: `{"type":"error","error":{"code":"x","message":""}}`, want: defaultUpstreamErrorMessage},
		{name: "missing", raw: `{"type":"error"}`, want: defaultUpstreamErrorMessage},
		{name: "non-string message", raw: `{"type":"error","error":{"message":42}}`, want: defaultUpstreamErrorMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ev UpstreamEvent
			if err := json.Unmarshal([]byte(tt.raw), &ev); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got := ev.errorMessage(); got != tt.want {
				t.Errorf("errorMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}
