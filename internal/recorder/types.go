package recorder

import (
	"time"
)

type Status string

const (
	StatusIdle      Status = "idle"
	StatusStarting  Status = "starting"
	StatusRecording Status = "recording"
	StatusStopping  Status = "stopping"
)

// Mode names the transcription engine variant a session runs.
type Mode string

const (
	ModeStreaming Mode = "streaming"
	ModeChunked   Mode = "chunked"
)

type StopReason string

const (
	ReasonUser          StopReason = "user_stop"
	ReasonSilence       StopReason = "silence_timeout"
	ReasonPermission    StopReason = "permission_denied"
	ReasonDuration      StopReason = "duration_ceiling"
	ReasonRestartBudget StopReason = "restart_budget_exhausted"
	ReasonCaptureLost   StopReason = "capture_lost"
	ReasonShutdown      StopReason = "shutdown"
)

type NoticeKind string

const (
	NoticePermissionDenied  NoticeKind = "permission_denied"
	NoticeDurationExceeded  NoticeKind = "duration_exceeded"
	NoticeRestartExhausted  NoticeKind = "restart_budget_exhausted"
	NoticeNothingRecognized NoticeKind = "nothing_recognized"
	NoticeFinalChunkFailed  NoticeKind = "final_chunk_failed"
)

var noticeMessages = map[NoticeKind]string{
	NoticePermissionDenied:  "Microphone access was denied. Allow microphone access and start again.",
	NoticeDurationExceeded:  "The recording reached the maximum length and was stopped.",
	NoticeRestartExhausted:  "Speech recognition kept failing and was stopped.",
	NoticeNothingRecognized: "Nothing was recognized in the last part of the recording.",
	NoticeFinalChunkFailed:  "The last part of the recording could not be transcribed.",
}

// Notice is a user-visible alert raised by a session.
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Message string     `json:"message"`
}

func newNotice(kind NoticeKind) Notice {
	return Notice{Kind: kind, Message: noticeMessages[kind]}
}

// Snapshot is the read model of the controller. RestartCount counts rapid
// error restarts in the current burst and drops to zero once the burst
// window passes quietly.
type Snapshot struct {
	SessionID      string    `json:"session_id,omitempty"`
	Status         Status    `json:"status"`
	Mode           Mode      `json:"mode,omitempty"`
	StartedAt      time.Time `json:"started_at,omitzero"`
	LastActivityAt time.Time `json:"last_activity_at,omitzero"`
	LastRestartAt  time.Time `json:"last_restart_at,omitzero"`
	RestartCount   int       `json:"restart_count"`
	Level          float64   `json:"level"`
	Text           string    `json:"text"`
}

// StopResult describes how a session ended. Err is nil for user stops and
// silence timeouts.
type StopResult struct {
	SessionID string        `json:"session_id"`
	Reason    StopReason    `json:"reason"`
	Err       error         `json:"-"`
	Duration  time.Duration `json:"duration"`
	Text      string        `json:"text"`
}

// AudioChunk describes one fixed-duration slice handed to the transcriber.
type AudioChunk struct {
	Sequence   int           `json:"sequence"`
	ByteSize   int           `json:"byte_size"`
	MimeType   string        `json:"mime_type"`
	CapturedAt time.Time     `json:"captured_at"`
	Duration   time.Duration `json:"duration"`
}

type EventType string

const (
	EventStatus     EventType = "status"
	EventTranscript EventType = "transcript"
	EventInterim    EventType = "interim"
	EventNotice     EventType = "notice"
	EventRestart    EventType = "restart"
	EventChunk      EventType = "chunk"
	EventStopped    EventType = "stopped"
)

type RestartCause string

const (
	CauseSilence  RestartCause = "silence"
	CauseError    RestartCause = "error"
	CauseWatchdog RestartCause = "watchdog"
)

type RestartInfo struct {
	Cause   RestartCause  `json:"cause"`
	Delay   time.Duration `json:"delay"`
	Attempt int           `json:"attempt"`
	Code    string        `json:"code,omitempty"`
}

type ChunkInfo struct {
	AudioChunk
	Outcome string        `json:"outcome"` // appended, empty, failed
	Latency time.Duration `json:"latency"`
	Error   string        `json:"error,omitempty"`
}

// Event is delivered to listeners from the session goroutine. Listeners
// must not block and must not call Stop or Wait.
type Event struct {
	Type      EventType
	SessionID string
	Time      time.Time
	Status    Status
	// Text is the segment for transcript and interim events.
	Text string
	// Buffer is the full transcript after a transcript event.
	Buffer  string
	Notice  *Notice
	Restart *RestartInfo
	Chunk   *ChunkInfo
	Stop    *StopResult
}

type Listener interface {
	OnEvent(Event)
}

type ListenerFunc func(Event)

func (f ListenerFunc) OnEvent(ev Event) { f(ev) }
