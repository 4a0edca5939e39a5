package stt

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/loqalabs/loqa-scribe/internal/config"
)

// RecognizePayload is the JSON body accepted by a recognize endpoint.
// The scribe HTTP API serves the same shape, so one scribe node can
// transcribe for another.
type RecognizePayload struct {
	AudioBase64     string   `json:"audioBase64,omitempty"`
	GCSURI          string   `json:"gcsUri,omitempty"`
	LanguageCode    string   `json:"languageCode,omitempty"`
	SampleRateHertz int      `json:"sampleRateHertz,omitempty"`
	Encoding        string   `json:"encoding,omitempty"`
	Phrases         []string `json:"phrases,omitempty"`
	Boost           float64  `json:"boost,omitempty"`
}

type RecognizeReply struct {
	Transcripts []string `json:"transcripts"`
	Error       string   `json:"error,omitempty"`
	Details     string   `json:"details,omitempty"`
}

type httpTranscriber struct {
	endpoint string
	encoding string
	client   *http.Client
}

func NewHTTPTranscriber(cfg config.STTConfig) (Transcriber, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, errors.New("stt endpoint is empty")
	}
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &httpTranscriber{
		endpoint: cfg.Endpoint,
		encoding: cfg.Encoding,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

func (h *httpTranscriber) Transcribe(ctx context.Context, req Request) (Result, error) {
	payload := RecognizePayload{
		GCSURI:          req.URI,
		LanguageCode:    req.Language,
		SampleRateHertz: req.SampleRate,
		Encoding:        h.encoding,
		Phrases:         req.Phrases,
		Boost:           req.Boost,
	}
	if len(req.Audio) > 0 {
		audio, err := asWAV(req)
		if err != nil {
			return Result{}, err
		}
		payload.AudioBase64 = base64.StdEncoding.EncodeToString(audio)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Result{}, fmt.Errorf("marshal recognize payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return Result{}, Unavailable(fmt.Errorf("recognize request: %w", err))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return Result{}, Unavailable(fmt.Errorf("read recognize response: %w", err))
	}

	var reply RecognizeReply
	_ = json.Unmarshal(data, &reply)

	switch {
	case resp.StatusCode == http.StatusRequestEntityTooLarge:
		return Result{}, fmt.Errorf("%w: %s", ErrTooLarge, reply.Error)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return Result{}, Unavailable(fmt.Errorf("recognize status %d: %s", resp.StatusCode, strings.TrimSpace(reply.Error+" "+reply.Details)))
	case resp.StatusCode >= 300:
		return Result{}, fmt.Errorf("recognize status %d: %s", resp.StatusCode, strings.TrimSpace(reply.Error+" "+reply.Details))
	}

	return resultFromTranscripts(reply.Transcripts, 0)
}

// resultFromTranscripts joins non-empty transcripts with a single space.
func resultFromTranscripts(transcripts []string, confidence float64) (Result, error) {
	var kept []string
	for _, t := range transcripts {
		if s := strings.TrimSpace(t); s != "" {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		return Result{}, ErrUnrecognized
	}
	return Result{Text: strings.Join(kept, " "), Transcripts: kept, Confidence: confidence}, nil
}
