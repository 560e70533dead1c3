package feedback

import (
	"encoding/binary"
	"math"
)

const sampleRate = 44100

// Cue is one of the audible signals played during a recording.
type Cue int

const (
	CueStart Cue = iota
	CueCommit
	CueCancel
	CueError
)

func (c Cue) String() string {
	switch c {
	case CueStart:
		return "start"
	case CueCommit:
		return "commit"
	case CueCancel:
		return "cancel"
	case CueError:
		return "error"
	default:
		return "unknown"
	}
}

type toneSpec struct {
	freq     float64
	duration float64
	decay    float64
	double   bool
}

var tones = map[Cue]toneSpec{
	CueStart:  {freq: 1200, duration: 0.12, decay: 60},
	CueCommit: {freq: 900, duration: 0.2, decay: 40},
	CueCancel: {freq: 600, duration: 0.1, decay: 60},
	CueError:  {freq: 350, duration: 0.08, decay: 30, double: true},
}

// Samples returns mono 16-bit samples for c at the given volume (0..1).
func Samples(c Cue, volume float64) []int16 {
	spec, ok := tones[c]
	if !ok {
		return nil
	}
	volume = math.Max(0, math.Min(1, volume))

	tick := generateTick(spec.freq, spec.duration, volume, spec.decay)
	if !spec.double {
		return tick
	}
	gap := make([]int16, int(sampleRate*0.05))
	out := make([]int16, 0, len(tick)*2+len(gap))
	out = append(out, tick...)
	out = append(out, gap...)
	return append(out, tick...)
}

// generateTick is a sine at freq with an exponential decay envelope.
func generateTick(freq, duration, volume, decay float64) []int16 {
	n := int(sampleRate * duration)
	samples := make([]int16, n)
	for i := range samples {
		t := float64(i) / sampleRate
		envelope := math.Exp(-t * decay)
		samples[i] = int16(math.Sin(2*math.Pi*freq*t) * 32767 * volume * envelope)
	}
	return samples
}

// pcmBytes encodes samples as little-endian S16 PCM.
func pcmBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}
