package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/loqalabs/loqa-scribe/internal/compose"
	"github.com/loqalabs/loqa-scribe/internal/namefix"
	"github.com/loqalabs/loqa-scribe/internal/stt"
)

const composeTimeout = 90 * time.Second

var encodingMime = map[string]string{
	"LINEAR16":  stt.MimeWAV,
	"FLAC":      "audio/flac",
	"WEBM_OPUS": "audio/webm",
	"OGG_OPUS":  "audio/ogg",
	"MP3":       "audio/mpeg",
}

func (s *Server) recognize(c *gin.Context) {
	if s.deps.Transcriber == nil {
		fail(c, http.StatusServiceUnavailable, "Speech recognition is not configured", nil)
		return
	}
	var body stt.RecognizePayload
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if body.GCSURI == "" && body.AudioBase64 == "" {
		fail(c, http.StatusBadRequest, `Provide either "gcsUri" or "audioBase64"`, nil)
		return
	}

	req := stt.Request{
		URI:        body.GCSURI,
		Language:   firstNonEmpty(body.LanguageCode, s.deps.STT.Language, "ko-KR"),
		SampleRate: body.SampleRateHertz,
		Channels:   1,
		Phrases:    body.Phrases,
		Boost:      body.Boost,
		MimeType:   stt.MimeWAV,
	}
	if req.SampleRate <= 0 {
		req.SampleRate = 16000
	}
	if req.Boost <= 0 {
		req.Boost = s.deps.STT.Boost
	}
	if mime, ok := encodingMime[strings.ToUpper(body.Encoding)]; ok {
		req.MimeType = mime
	}
	if body.GCSURI == "" {
		audio, err := base64.StdEncoding.DecodeString(body.AudioBase64)
		if err != nil {
			fail(c, http.StatusBadRequest, `"audioBase64" is not valid base64`, err)
			return
		}
		req.Audio = audio
	}

	timeout := time.Duration(s.deps.STT.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := requestContext(c, timeout)
	defer cancel()

	res, err := s.deps.Transcriber.Transcribe(ctx, req)
	switch {
	case errors.Is(err, stt.ErrUnrecognized):
		c.JSON(http.StatusOK, stt.RecognizeReply{Transcripts: []string{}})
		return
	case errors.Is(err, stt.ErrTooLarge):
		fail(c, http.StatusRequestEntityTooLarge, "Audio is too large to recognize", err)
		return
	case errors.Is(err, stt.ErrServiceUnavailable), isTimeout(err):
		fail(c, http.StatusServiceUnavailable, "Failed to recognize speech", err)
		return
	case err != nil:
		fail(c, http.StatusInternalServerError, "Failed to recognize speech", err)
		return
	}
	transcripts := res.Transcripts
	if transcripts == nil {
		transcripts = []string{}
	}
	c.JSON(http.StatusOK, stt.RecognizeReply{Transcripts: transcripts})
}

type correctBody struct {
	Text      string   `json:"text"`
	NameList  []string `json:"nameList"`
	Threshold float64  `json:"threshold"`
}

func (s *Server) correctNames(c *gin.Context) {
	var body correctBody
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	names := body.NameList
	if len(names) == 0 {
		names = s.deps.Names.List
	}
	threshold := body.Threshold
	if threshold <= 0 {
		threshold = s.deps.Names.Threshold
	}
	if strings.TrimSpace(body.Text) == "" || len(names) == 0 {
		fail(c, http.StatusBadRequest, `Missing "text" or empty "nameList"`, nil)
		return
	}
	corrector, err := namefix.New(names, threshold)
	if err != nil {
		fail(c, http.StatusBadRequest, `Missing "text" or empty "nameList"`, err)
		return
	}
	res, err := corrector.Correct(body.Text)
	if err != nil {
		fail(c, http.StatusBadRequest, "Failed to correct names", err)
		return
	}
	if res.Matches == nil {
		res.Matches = []namefix.Match{}
	}
	c.JSON(http.StatusOK, res)
}

type composeBody struct {
	Transcript  string `json:"transcript"`
	FormatID    string `json:"formatId"`
	Instruction string `json:"instruction"`
}

func (s *Server) compose(c *gin.Context) {
	if s.deps.Composer == nil || !s.deps.Composer.Configured() {
		fail(c, http.StatusServiceUnavailable, "Compose provider is not configured", nil)
		return
	}
	var body composeBody
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	ctx, cancel := requestContext(c, composeTimeout)
	defer cancel()

	res, err := s.deps.Composer.Compose(ctx, compose.Request{
		Transcript:  body.Transcript,
		StyleID:     body.FormatID,
		Instruction: body.Instruction,
		TraceID:     uuid.NewString(),
	})
	switch {
	case errors.Is(err, compose.ErrInvalidRequest):
		fail(c, http.StatusBadRequest, `Missing "transcript" or "formatId"`, nil)
		return
	case errors.Is(err, compose.ErrNotConfigured):
		fail(c, http.StatusServiceUnavailable, "Compose provider is not configured", nil)
		return
	case err != nil:
		fail(c, http.StatusBadGateway, "Failed to compose text", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"text": res.Text, "model": res.Model, "formatId": res.Style})
}

func (s *Server) composeStyles(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"styles": compose.Styles(), "default": compose.DefaultStyle})
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// rawJSON passes stored JSON through untouched and quotes anything else.
func rawJSON(b []byte) any {
	if json.Valid(b) {
		return json.RawMessage(b)
	}
	return string(b)
}
