package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/loqalabs/loqa-scribe/internal/config"
	"github.com/mattn/go-shellwords"
)

// execTranscriber shells out to a local recognizer (whisper.cpp wrapper or
// similar) that reads a WAV file and prints {"text": ..., "confidence": ...}.
type execTranscriber struct {
	cmd []string
	cfg config.STTConfig
}

type execResult struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Error      string  `json:"error"`
}

func NewExecTranscriber(cfg config.STTConfig) (Transcriber, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse stt command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("stt command is empty")
	}
	return &execTranscriber{cmd: args, cfg: cfg}, nil
}

func (r *execTranscriber) Transcribe(ctx context.Context, req Request) (Result, error) {
	audio, err := asWAV(req)
	if err != nil {
		return Result{}, err
	}

	file, err := os.CreateTemp("", "loqa_stt_*.wav")
	if err != nil {
		return Result{}, fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(file.Name())
	if _, err := file.Write(audio); err != nil {
		file.Close()
		return Result{}, fmt.Errorf("write temp audio: %w", err)
	}
	if err := file.Close(); err != nil {
		return Result{}, fmt.Errorf("close temp audio: %w", err)
	}

	cmdArgs := append([]string{}, r.cmd[1:]...)
	cmdArgs = append(cmdArgs, "--audio", file.Name())
	if r.cfg.ModelPath != "" {
		cmdArgs = append(cmdArgs, "--model", r.cfg.ModelPath)
	}
	language := req.Language
	if language == "" {
		language = r.cfg.Language
	}
	if language != "" {
		cmdArgs = append(cmdArgs, "--language", language)
	}
	for _, phrase := range req.Phrases {
		cmdArgs = append(cmdArgs, "--phrase", phrase)
	}

	command := exec.CommandContext(ctx, r.cmd[0], cmdArgs...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return Result{}, Unavailable(fmt.Errorf("stt command failed: %w: %s", err, strings.TrimSpace(stderr.String())))
	}

	var resp execResult
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return Result{}, fmt.Errorf("decode stt response: %w", err)
	}
	if resp.Error != "" {
		return Result{}, fmt.Errorf("stt command: %s", resp.Error)
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return Result{}, ErrUnrecognized
	}
	return Result{Text: text, Transcripts: []string{text}, Confidence: resp.Confidence}, nil
}

// asWAV returns the request audio as a WAV container, encoding raw PCM when needed.
func asWAV(req Request) ([]byte, error) {
	if len(req.Audio) == 0 {
		return nil, fmt.Errorf("request carries no audio")
	}
	if req.MimeType == MimePCM {
		return EncodeWAV(req.Audio, req.SampleRate, max(req.Channels, 1))
	}
	return req.Audio, nil
}
