package recorder

import (
	"time"

	"github.com/loqalabs/loqa-scribe/internal/config"
)

// Config holds the timing and audio parameters of a recording session.
type Config struct {
	Mode       string // auto, streaming, chunked
	Language   string
	SampleRate int
	Channels   int
	Phrases    []string
	Boost      float64

	MeterInterval     time.Duration
	MeterWindow       int
	ActivityThreshold float64
	SilenceCeiling    time.Duration
	SilenceCheck      time.Duration
	WatchdogInterval  time.Duration
	StallTimeout      time.Duration // speech unanswered by a streaming run

	RestartBase    time.Duration
	RestartStep    time.Duration
	RestartMax     time.Duration
	SilenceRestart time.Duration
	BurstWindow    time.Duration
	BurstLimit     int

	ChunkDuration   time.Duration
	MaxDuration     time.Duration
	ChunkRetries    int
	DispatchTimeout time.Duration
}

func ms(v int) time.Duration {
	return time.Duration(v) * time.Millisecond
}

// ConfigFrom assembles a recorder Config from the loaded settings.
func ConfigFrom(rc config.RecorderConfig, cc config.CaptureConfig, sc config.STTConfig) Config {
	language := rc.Language
	if language == "" {
		language = sc.Language
	}
	return Config{
		Mode:              rc.Mode,
		Language:          language,
		SampleRate:        cc.SampleRate,
		Channels:          cc.Channels,
		Phrases:           sc.Phrases,
		Boost:             sc.Boost,
		MeterInterval:     ms(rc.MeterIntervalMS),
		MeterWindow:       rc.MeterWindow,
		ActivityThreshold: rc.ActivityThreshold,
		SilenceCeiling:    ms(rc.SilenceCeilingMS),
		SilenceCheck:      ms(rc.SilenceCheckMS),
		WatchdogInterval:  ms(rc.WatchdogIntervalMS),
		StallTimeout:      ms(rc.StallTimeoutMS),
		RestartBase:       ms(rc.RestartBaseMS),
		RestartStep:       ms(rc.RestartStepMS),
		RestartMax:        ms(rc.RestartMaxMS),
		SilenceRestart:    ms(rc.SilenceRestartMS),
		BurstWindow:       ms(rc.BurstWindowMS),
		BurstLimit:        rc.BurstLimit,
		ChunkDuration:     ms(rc.ChunkDurationMS),
		MaxDuration:       ms(rc.MaxDurationMS),
		ChunkRetries:      rc.ChunkRetries,
		DispatchTimeout:   ms(rc.DispatchTimeoutMS),
	}
}

// DefaultConfig mirrors the configuration defaults.
func DefaultConfig() Config {
	d := config.Default()
	return ConfigFrom(d.Recorder, d.Capture, d.STT)
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.SampleRate <= 0 {
		c.SampleRate = def.SampleRate
	}
	if c.Channels <= 0 {
		c.Channels = def.Channels
	}
	if c.MeterInterval <= 0 {
		c.MeterInterval = def.MeterInterval
	}
	if c.MeterWindow <= 0 {
		c.MeterWindow = def.MeterWindow
	}
	if c.ActivityThreshold <= 0 {
		c.ActivityThreshold = def.ActivityThreshold
	}
	if c.SilenceCeiling <= 0 {
		c.SilenceCeiling = def.SilenceCeiling
	}
	if c.SilenceCheck <= 0 {
		c.SilenceCheck = def.SilenceCheck
	}
	if c.WatchdogInterval <= 0 {
		c.WatchdogInterval = def.WatchdogInterval
	}
	if c.StallTimeout <= 0 {
		c.StallTimeout = def.StallTimeout
	}
	if c.RestartBase <= 0 {
		c.RestartBase = def.RestartBase
	}
	if c.RestartStep <= 0 {
		c.RestartStep = def.RestartStep
	}
	if c.RestartMax <= 0 {
		c.RestartMax = def.RestartMax
	}
	if c.SilenceRestart <= 0 {
		c.SilenceRestart = def.SilenceRestart
	}
	if c.BurstWindow <= 0 {
		c.BurstWindow = def.BurstWindow
	}
	if c.BurstLimit <= 0 {
		c.BurstLimit = def.BurstLimit
	}
	if c.ChunkDuration <= 0 {
		c.ChunkDuration = def.ChunkDuration
	}
	if c.MaxDuration <= 0 {
		c.MaxDuration = def.MaxDuration
	}
	if c.DispatchTimeout <= 0 {
		c.DispatchTimeout = def.DispatchTimeout
	}
	return c
}

// readSize is the pump buffer: 100ms of audio.
func (c Config) readSize() int {
	n := c.SampleRate * c.Channels * 2 / 10
	if n < 512 {
		n = 512
	}
	return n - n%2
}

func (c Config) restartPolicy() *RestartPolicy {
	return &RestartPolicy{
		Base:         c.RestartBase,
		Step:         c.RestartStep,
		Max:          c.RestartMax,
		SilenceDelay: c.SilenceRestart,
		BurstWindow:  c.BurstWindow,
		BurstLimit:   c.BurstLimit,
	}
}
