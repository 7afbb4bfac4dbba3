package synth

import (
	"math"
	"strings"
	"time"

	"facilitywatch/internal/models"
	"facilitywatch/internal/random"
)

const (
	// SpikeProbability is the chance that any single point carries a spike
	SpikeProbability = 0.05

	DefaultWindow = 24 * time.Hour
	DefaultPoints = 96
)

// Profile holds the parametric model for one sensor type
type Profile struct {
	Base      float64
	Amplitude float64
	Trend     float64
}

// DefaultProfile is used for sensor types with no entry in the table
var DefaultProfile = Profile{Base: 50, Amplitude: 10, Trend: 0}

var profiles = map[string]Profile{
	"temperature": {Base: 60, Amplitude: 10, Trend: 0.5},
	"vibration":   {Base: 2, Amplitude: 1, Trend: 0.05},
	"pressure":    {Base: 5, Amplitude: 1, Trend: -0.02},
	"current":     {Base: 40, Amplitude: 5},
	"rpm":         {Base: 1800, Amplitude: 150},
	"humidity":    {Base: 50, Amplitude: 10},
	"level":       {Base: 90, Amplitude: 3, Trend: -0.1},
	"voltage":     {Base: 230, Amplitude: 10},
	"bore-depth":  {Base: 150, Amplitude: 5, Trend: -0.01},
	"flow":        {Base: 45, Amplitude: 8, Trend: 0.02},
}

// ProfileFor returns the model parameters for a sensor type. Unknown types
// fall back to DefaultProfile.
func ProfileFor(sensorType string) Profile {
	if p, ok := profiles[strings.ToLower(strings.TrimSpace(sensorType))]; ok {
		return p
	}
	return DefaultProfile
}

// Synthesizer produces sensor time series. It holds no state between calls
// besides its random source and clock.
type Synthesizer struct {
	rng random.Source
	now func() time.Time
}

// Option configures a Synthesizer
type Option func(*Synthesizer)

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(s *Synthesizer) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a Synthesizer drawing from rng
func New(rng random.Source, opts ...Option) *Synthesizer {
	s := &Synthesizer{rng: rng, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Synthesize returns exactly points readings for sensorType, oldest first,
// evenly spaced from now-window to now. A non-positive window falls back to
// DefaultWindow; a non-positive point count yields no readings.
func (s *Synthesizer) Synthesize(sensorType string, window time.Duration, points int) []models.Reading {
	if points <= 0 {
		return []models.Reading{}
	}
	if window <= 0 {
		window = DefaultWindow
	}

	profile := ProfileFor(sensorType)
	now := s.now()
	start := now.Add(-window)

	var step time.Duration
	if points > 1 {
		step = window / time.Duration(points-1)
		if step <= 0 {
			// window shorter than the point count: widen it so timestamps stay distinct
			step = time.Nanosecond
			start = now.Add(-step * time.Duration(points-1))
		}
	}

	readings := make([]models.Reading, points)
	for i := 0; i < points; i++ {
		ts := start.Add(step * time.Duration(i))
		if i == points-1 {
			ts = now
		}
		readings[i] = models.Reading{
			Timestamp: ts,
			Value:     s.value(profile, i),
		}
	}
	return readings
}

// value evaluates the model at point index i
func (s *Synthesizer) value(p Profile, i int) float64 {
	x := float64(i)
	v := p.Base + p.Trend*x

	// seasonal component, period 20π points
	v += p.Amplitude * 0.5 * math.Sin(x/10)

	// uniform noise in [-amplitude/2, amplitude/2)
	v += random.Uniform(s.rng, -p.Amplitude/2, p.Amplitude/2)

	if random.Chance(s.rng, SpikeProbability) {
		spike := s.rng.Float64() * p.Amplitude * 2
		if s.rng.Float64() < 0.5 {
			spike = -spike
		}
		v += spike
	}

	return models.Round2(v)
}
