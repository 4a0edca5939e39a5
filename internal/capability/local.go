package capability

import (
	"github.com/loqalabs/loqa-scribe/internal/config"
	"github.com/loqalabs/loqa-scribe/internal/protocol"
)

// Local lists the services this node offers given its configuration.
// recorderMode is empty when no transcription backend is usable.
func Local(cfg config.Config, recorderMode string, smsReady bool) []protocol.Capability {
	var caps []protocol.Capability
	if cfg.STT.Enabled && cfg.STT.Serve {
		caps = append(caps, protocol.Capability{
			Name:       Recognize,
			Attributes: map[string]string{"mode": cfg.STT.Mode, "language": cfg.STT.Language},
		})
	}
	if cfg.Compose.Enabled && cfg.Compose.Serve {
		caps = append(caps, protocol.Capability{
			Name:       Compose,
			Attributes: map[string]string{"mode": cfg.Compose.Mode},
		})
	}
	if recorderMode != "" {
		caps = append(caps, protocol.Capability{
			Name:       Recorder,
			Attributes: map[string]string{"mode": recorderMode, "capture": cfg.Capture.Mode},
		})
	}
	if smsReady {
		caps = append(caps, protocol.Capability{Name: SMS})
	}
	return caps
}
