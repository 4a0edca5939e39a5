package surface

import (
	"log/slog"

	"github.com/loqalabs/loqa-scribe/internal/bus"
	"github.com/loqalabs/loqa-scribe/internal/protocol"
	"github.com/loqalabs/loqa-scribe/internal/recorder"
)

// Publisher broadcasts recorder events on the bus. It is a recorder
// listener; publishes are buffered by the NATS client and never block.
type Publisher struct {
	bus    *bus.Client
	rec    Recorder
	logger *slog.Logger
}

func NewPublisher(busClient *bus.Client, rec Recorder, logger *slog.Logger) *Publisher {
	return &Publisher{
		bus:    busClient,
		rec:    rec,
		logger: logger.With(slog.String("component", "session-publisher")),
	}
}

func (p *Publisher) OnEvent(ev recorder.Event) {
	switch ev.Type {
	case recorder.EventStatus:
		status := protocol.SessionStatus{SessionID: ev.SessionID, Status: string(ev.Status)}
		if p.rec != nil {
			status = statusFrom(p.rec.Snapshot())
			status.Status = string(ev.Status)
			if status.SessionID == "" {
				status.SessionID = ev.SessionID
			}
		}
		p.publish(protocol.SubjectSessionStatus, status)
	case recorder.EventStopped:
		if ev.Stop == nil {
			return
		}
		status := protocol.SessionStatus{
			SessionID:  ev.SessionID,
			Status:     string(recorder.StatusIdle),
			Text:       ev.Stop.Text,
			StopReason: string(ev.Stop.Reason),
		}
		if ev.Stop.Err != nil {
			status.Error = ev.Stop.Err.Error()
		}
		p.publish(protocol.SubjectSessionStatus, status)
	case recorder.EventInterim:
		p.publish(protocol.SubjectTranscriptPartial, protocol.Transcript{
			SessionID: ev.SessionID,
			Text:      ev.Text,
			Partial:   true,
			Timestamp: ev.Time,
		})
	case recorder.EventTranscript:
		if ev.Text == "" {
			// Edits and clears replace the buffer without a new segment.
			status := protocol.SessionStatus{SessionID: ev.SessionID, Text: ev.Buffer}
			if p.rec != nil {
				status = statusFrom(p.rec.Snapshot())
			}
			p.publish(protocol.SubjectSessionStatus, status)
			return
		}
		p.publish(protocol.SubjectTranscriptFinal, protocol.Transcript{
			SessionID: ev.SessionID,
			Text:      ev.Text,
			Timestamp: ev.Time,
			Buffer:    ev.Buffer,
		})
	case recorder.EventNotice:
		if ev.Notice == nil {
			return
		}
		p.publish(protocol.SubjectNotice, protocol.Notice{
			SessionID: ev.SessionID,
			Kind:      string(ev.Notice.Kind),
			Message:   ev.Notice.Message,
			Timestamp: ev.Time,
		})
	}
}

func (p *Publisher) publish(subject string, v any) {
	if err := p.bus.PublishJSON(subject, v); err != nil {
		p.logger.Debug("publish failed", slog.String("subject", subject), slogError(err))
	}
}
