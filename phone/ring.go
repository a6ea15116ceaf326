/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package phone

import (
	"fmt"
	"io"
	"math"
	"sync"
	"time"
)

// CuePlayer is a loopable ring cue. Play starts (or resumes) playback,
// Pause halts it, Rewind resets it to the beginning for the next call.
type CuePlayer interface {
	Play() error
	Pause()
	Rewind()
}

// RingIndicator drives the audible ring cue for an incoming call and owns
// the auto-answer timer: stopping the ring for any reason also cancels a
// pending auto-answer, so a timer can never fire for a call the user has
// already dealt with.
type RingIndicator struct {
	mu     sync.Mutex
	cue    CuePlayer
	newCue func() CuePlayer
	timer  *time.Timer
	logger Logger
}

// NewRingIndicator creates a ring indicator. newCue constructs the cue on
// first use; nil defaults to a generated ringback tone with no output
// sink, whose playback failure is logged and otherwise harmless.
func NewRingIndicator(newCue func() CuePlayer, logger Logger) *RingIndicator {
	if newCue == nil {
		newCue = func() CuePlayer { return NewToneCue(nil) }
	}
	return &RingIndicator{
		newCue: newCue,
		logger: logger,
	}
}

// Start begins ring playback. The cue is constructed lazily on the first
// ring. Playback failure is logged, never escalated.
func (r *RingIndicator) Start() {
	r.mu.Lock()
	if r.cue == nil {
		r.cue = r.newCue()
	}
	cue := r.cue
	r.mu.Unlock()

	if err := cue.Play(); err != nil {
		r.logf("ring: playback failed: %v", err)
	}
}

// Stop halts and rewinds the cue and cancels any pending auto-answer
// timer. Safe to call when nothing is playing.
func (r *RingIndicator) Stop() {
	r.mu.Lock()
	cue := r.cue
	timer := r.timer
	r.timer = nil
	r.mu.Unlock()

	if cue != nil {
		cue.Pause()
		cue.Rewind()
	}
	if timer != nil {
		timer.Stop()
	}
}

// ArmAutoAnswer schedules fire after delay. Any previously armed timer is
// replaced. The caller must re-validate its state when fire runs: Stop
// cancels the timer, but a firing already in flight can still land.
func (r *RingIndicator) ArmAutoAnswer(delay time.Duration, fire func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil {
		r.timer.Stop()
	}
	r.timer = time.AfterFunc(delay, fire)
}

func (r *RingIndicator) logf(format string, v ...any) {
	if r.logger != nil {
		r.logger.Printf(format, v...)
	}
}

// ---- Default Cue ----

// toneSampleRate is the PCM sample rate of the generated ringback tone.
const toneSampleRate = 8000

// ToneCue is a generated ringback tone (440 Hz, 2s on / 4s off) written
// as 16-bit little-endian PCM to the given sink. A nil sink makes Play
// fail, which the ring indicator logs.
type ToneCue struct {
	mu      sync.Mutex
	sink    io.Writer
	playing bool
	stop    chan struct{}
	phase   float64
}

// NewToneCue creates a tone cue writing to sink.
func NewToneCue(sink io.Writer) *ToneCue {
	return &ToneCue{sink: sink}
}

// Play starts the tone generator.
func (t *ToneCue) Play() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.sink == nil {
		return fmt.Errorf("no audio sink bound")
	}
	if t.playing {
		return nil
	}
	t.playing = true
	t.stop = make(chan struct{})
	go t.run(t.stop)
	return nil
}

// Pause stops the tone generator without resetting its position.
func (t *ToneCue) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.playing {
		return
	}
	t.playing = false
	close(t.stop)
}

// Rewind resets the tone to the start of its cadence.
func (t *ToneCue) Rewind() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.phase = 0
}

func (t *ToneCue) run(stop chan struct{}) {
	const frame = 20 * time.Millisecond
	samplesPerFrame := toneSampleRate / 50

	ticker := time.NewTicker(frame)
	defer ticker.Stop()

	buf := make([]byte, samplesPerFrame*2)
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			t.mu.Lock()
			phase := t.phase
			sink := t.sink
			t.mu.Unlock()

			for i := 0; i < samplesPerFrame; i++ {
				// 2s tone, 4s silence cadence.
				pos := phase + float64(i)/toneSampleRate
				var sample float64
				if math.Mod(pos, 6) < 2 {
					sample = 0.3 * math.Sin(2*math.Pi*440*pos)
				}
				v := int16(sample * math.MaxInt16)
				buf[2*i] = byte(v)
				buf[2*i+1] = byte(v >> 8)
			}
			if _, err := sink.Write(buf); err != nil {
				return
			}

			t.mu.Lock()
			t.phase += float64(samplesPerFrame) / toneSampleRate
			t.mu.Unlock()
		}
	}
}
