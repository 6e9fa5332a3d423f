package device

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/josephlewis42/npcsh/core/vars"
	"github.com/juju/ratelimit"
)

// Speaker synthesizes speech for a line of text.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// SpeakerFunc adapts a function to a Speaker.
type SpeakerFunc func(ctx context.Context, text string) error

func (f SpeakerFunc) Speak(ctx context.Context, text string) error {
	return f(ctx, text)
}

// NewWriterSpeaker creates a Speaker that prints what it says, it is used
// when the host has no speech synthesis.
func NewWriterSpeaker(w io.Writer) Speaker {
	return SpeakerFunc(func(_ context.Context, text string) error {
		_, err := fmt.Fprintf(w, "(voice) %s\n", text)
		return err
	})
}

// Voice speaks every written value, paced at a number of words per second.
type Voice struct {
	speaker Speaker
	bucket  *ratelimit.Bucket
}

var _ Device = (*Voice)(nil)

// NewVoice creates a voice sink, wordsPerSecond <= 0 disables pacing.
func NewVoice(speaker Speaker, wordsPerSecond float64) *Voice {
	v := &Voice{speaker: speaker}
	if wordsPerSecond > 0 {
		capacity := int64(wordsPerSecond)
		if capacity < 1 {
			capacity = 1
		}
		v.bucket = ratelimit.NewBucketWithRate(wordsPerSecond, capacity)
	}
	return v
}

func (v *Voice) Key() string { return KeyVoice }

func (v *Voice) ReadData(context.Context, ReadOpts) (ReadResult, error) {
	return ReadResult{EOF: true}, nil
}

// WriteData implements Device, it returns once the text was spoken.
func (v *Voice) WriteData(ctx context.Context, value any) error {
	for _, item := range Items(value) {
		text := strings.TrimSpace(vars.String(item))
		if text == "" {
			continue
		}

		if v.bucket != nil {
			words := int64(len(strings.Fields(text)))
			if wait := v.bucket.Take(words); wait > 0 {
				timer := time.NewTimer(wait)
				select {
				case <-timer.C:
				case <-ctx.Done():
					timer.Stop()
					return cause(ctx)
				}
			}
		}

		if err := v.speaker.Speak(ctx, text); err != nil {
			return err
		}
	}
	return nil
}

func (v *Voice) FinishedReading() {}

func (v *Voice) FinishedWriting() {}
