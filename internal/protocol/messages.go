package protocol

import "time"

// AudioFrame represents PCM audio data streamed from a capture device over the bus.
type AudioFrame struct {
	SessionID  string `json:"session_id"`
	Sequence   int    `json:"sequence"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	PCM        []byte `json:"pcm"`
	Final      bool   `json:"final"`
}

// Transcript represents recognized text broadcast on the bus.
type Transcript struct {
	SessionID  string    `json:"session_id"`
	Text       string    `json:"text"`
	Partial    bool      `json:"partial"`
	Timestamp  time.Time `json:"timestamp"`
	Confidence float64   `json:"confidence,omitempty"`
	// Buffer carries the full transcript after a final segment was appended.
	Buffer string `json:"buffer,omitempty"`
}

// SessionCommand drives the recording controller remotely.
type SessionCommand struct {
	Action string `json:"action"` // start, stop, clear, status, set_text
	Text   string `json:"text,omitempty"`
}

// SessionStatus is both the command reply and the status broadcast.
type SessionStatus struct {
	SessionID      string    `json:"session_id,omitempty"`
	Status         string    `json:"status"`
	Mode           string    `json:"mode,omitempty"`
	StartedAt      time.Time `json:"started_at,omitempty"`
	LastActivityAt time.Time `json:"last_activity_at,omitempty"`
	RestartCount   int       `json:"restart_count"`
	Text           string    `json:"text"`
	StopReason     string    `json:"stop_reason,omitempty"`
	Error          string    `json:"error,omitempty"`
}

// Notice is a user-visible message about a session.
type Notice struct {
	SessionID string    `json:"session_id,omitempty"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// RecognizeRequest asks a remote transcriber to process one audio payload.
type RecognizeRequest struct {
	Audio      []byte   `json:"audio,omitempty"`
	URI        string   `json:"uri,omitempty"`
	MimeType   string   `json:"mime_type"`
	Language   string   `json:"language"`
	SampleRate int      `json:"sample_rate"`
	Channels   int      `json:"channels"`
	Sequence   int      `json:"sequence"`
	DurationMS int64    `json:"duration_ms"`
	Phrases    []string `json:"phrases,omitempty"`
	Boost      float64  `json:"boost,omitempty"`
}

type RecognizeResponse struct {
	Text        string   `json:"text"`
	Transcripts []string `json:"transcripts,omitempty"`
	Confidence  float64  `json:"confidence,omitempty"`
	Error       string   `json:"error,omitempty"`
	ErrorKind   string   `json:"error_kind,omitempty"`
}

// ComposeRequest asks the compose service to rewrite a transcript.
type ComposeRequest struct {
	Transcript  string `json:"transcript"`
	StyleID     string `json:"style_id"`
	Instruction string `json:"instruction,omitempty"`
}

type ComposeResponse struct {
	Text  string `json:"text"`
	Model string `json:"model,omitempty"`
	Error string `json:"error,omitempty"`
}

const (
	SubjectAudioFramePrefix  = "audio.frame"
	SubjectTranscriptPartial = "stt.text.partial"
	SubjectTranscriptFinal   = "stt.text.final"
	SubjectRecognize         = "scribe.stt.recognize"
	SubjectCompose           = "scribe.compose.request"
	SubjectSessionCommand    = "scribe.session.command"
	SubjectSessionStatus     = "scribe.session.status"
	SubjectNotice            = "scribe.notice"
	SubjectNodeAnnounce      = "scribe.node.announce"
	SubjectNodeHeartbeat     = "scribe.node.heartbeat"
)

// Capability is a service a scribe node offers to its peers.
type Capability struct {
	Name       string            `json:"name"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// NodeAnnouncement is sent on join and with every heartbeat, so peers that
// start later still learn what a node serves.
type NodeAnnouncement struct {
	NodeID       string       `json:"node_id"`
	Runtime      string       `json:"runtime"`
	Capabilities []Capability `json:"capabilities"`
	Timestamp    time.Time    `json:"timestamp"`
}

// AudioSubject returns the frame subject for a capture stream.
func AudioSubject(stream string) string {
	return SubjectAudioFramePrefix + "." + stream
}
