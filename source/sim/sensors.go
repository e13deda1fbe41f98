package sim

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/linchenxuan/taglog/log"
	"github.com/linchenxuan/taglog/telemetry"
	"go.uber.org/ratelimit"
)

// ErrRegistered is returned when a callback is already registered.
var ErrRegistered = errors.New("sensor callback already registered")

// Sensors emits synthetic samples on its own goroutine, paced by a leaky
// bucket so rounds are evenly spaced.
type Sensors struct {
	kinds   []telemetry.SensorKind
	limiter atomic.Pointer[ratelimit.Limiter]
	emitted atomic.Int64

	lock sync.Mutex
	stop chan struct{}
	done chan struct{}
}

func newLimiter(rate int) ratelimit.Limiter {
	if rate <= 0 {
		return ratelimit.NewUnlimited()
	}
	return ratelimit.New(rate, ratelimit.WithoutSlack)
}

// NewSensors creates a source emitting one sample of every kind per round,
// rate rounds per second.
func NewSensors(rate int, kinds ...telemetry.SensorKind) *Sensors {
	if len(kinds) == 0 {
		kinds = []telemetry.SensorKind{telemetry.Accelerometer, telemetry.Gyroscope}
	}
	s := &Sensors{kinds: kinds}
	limiter := newLimiter(rate)
	s.limiter.Store(&limiter)
	return s
}

// NewSensorsFromConfig builds a source from the `sim` section.
func NewSensorsFromConfig(cfg *Config) (*Sensors, error) {
	kinds := make([]telemetry.SensorKind, 0, len(cfg.Kinds))
	for _, tag := range cfg.Kinds {
		k, err := telemetry.ParseSensorKind(tag)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}
	return NewSensors(cfg.SensorRate, kinds...), nil
}

// SetRate changes the pace of a running source.
func (s *Sensors) SetRate(rate int) {
	limiter := newLimiter(rate)
	s.limiter.Store(&limiter)
}

// Emitted returns the number of samples delivered so far.
func (s *Sensors) Emitted() int64 {
	return s.emitted.Load()
}

// Register starts delivering samples to fn.
func (s *Sensors) Register(fn func(telemetry.SensorSample)) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.stop != nil {
		return ErrRegistered
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.run(fn, s.stop, s.done)
	log.Debug().Int("kinds", len(s.kinds)).Msg("sim sensors registered")
	return nil
}

// Unregister stops delivery. No sample is delivered after it returns.
func (s *Sensors) Unregister() {
	s.lock.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.lock.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (s *Sensors) run(fn func(telemetry.SensorSample), stop, done chan struct{}) {
	defer close(done)
	start := time.Now()
	for round := 0; ; round++ {
		(*s.limiter.Load()).Take()
		select {
		case <-stop:
			return
		default:
		}
		ts := time.Now().UnixNano()
		t := time.Since(start).Seconds()
		for _, k := range s.kinds {
			fn(telemetry.SensorSample{Kind: k, Timestamp: ts, Values: sample(k, t)})
			s.emitted.Add(1)
		}
	}
}

// sample returns smooth synthetic values for kind at t seconds.
func sample(k telemetry.SensorKind, t float64) []float64 {
	sin, cos := math.Sin(t), math.Cos(t)
	switch k {
	case telemetry.Accelerometer:
		return []float64{0.2 * sin, 0.2 * cos, 9.81}
	case telemetry.Gyroscope:
		return []float64{0.01 * cos, 0.01 * sin, 0.1}
	case telemetry.GyroscopeUncalibrated:
		return []float64{0.01 * cos, 0.01 * sin, 0.1, 0.001, 0.001, 0.001}
	case telemetry.MagneticField:
		return []float64{22 * cos, 22 * sin, -40}
	case telemetry.MagneticFieldUncalibrated:
		return []float64{22 * cos, 22 * sin, -40, 1.5, -0.5, 0.25}
	default:
		half := t / 2
		return []float64{0, 0, math.Sin(half), math.Cos(half)}
	}
}
