package realtime

// DefaultConnectionModel is used for any model name missing from the connection table.
const DefaultConnectionModel = "gpt-4o-mini-realtime-preview"

// The realtime API needs a realtime model for the connection itself; the
// transcription model is configured separately through session.update.
var connectionModels = map[string]string{
	"gpt-4o-mini-transcribe": "gpt-4o-mini-realtime-preview",
	"gpt-4o-transcribe":      "gpt-4o-realtime-preview",

	"gpt-4o-mini-realtime-preview": "gpt-4o-mini-realtime-preview",
	"gpt-4o-realtime-preview":      "gpt-4o-realtime-preview",
}

// ConnectionModel maps a user-facing model name to the upstream connection model.
func ConnectionModel(model string) string {
	if m, ok := connectionModels[model]; ok {
		return m
	}
	return DefaultConnectionModel
}

// Models lists the user-facing model names accepted without falling back.
func Models() []string {
	return []string{
		"gpt-4o-mini-transcribe",
		"gpt-4o-transcribe",
		"gpt-4o-mini-realtime-preview",
		"gpt-4o-realtime-preview",
	}
}
