package protocol

import "time"

// AudioFrame carries PCM audio streamed from edge devices. PCM is
// little-endian 16-bit mono at SampleRate; Final marks the end of a session's
// utterance and triggers recognition.
type AudioFrame struct {
	SessionID  string `json:"session_id"`
	Sequence   int    `json:"sequence"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	PCM        []byte `json:"pcm"`
	Final      bool   `json:"final"`
}

// Transcript is the recognition output broadcast on the bus.
type Transcript struct {
	SessionID string    `json:"session_id"`
	Text      string    `json:"text"`
	Outcome   string    `json:"outcome"`
	ModelType string    `json:"model_type,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	SubjectAudioFramePrefix = "audio.frame"
	SubjectTranscriptFinal  = "asr.text.final"
	SubjectRecognitionError = "asr.error"
)
