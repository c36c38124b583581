package megastep

import (
	"log"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// A StatKind determines how observations of a statistic
// are aggregated.
type StatKind int

const (
	// MeanStat averages observations.
	MeanStat StatKind = iota

	// MaxStat keeps the largest observation.
	MaxStat

	// RateStat sums observations and divides by the
	// elapsed wall-clock time in seconds.
	RateStat

	// CumSumStat keeps a running total over the lifetime
	// of the sink.
	CumSumStat
)

// String returns a short name like "mean" or "cumsum".
func (s StatKind) String() string {
	switch s {
	case MeanStat:
		return "mean"
	case MaxStat:
		return "max"
	case RateStat:
		return "rate"
	case CumSumStat:
		return "cumsum"
	default:
		return ""
	}
}

// A StatSink accepts named scalar observations.
type StatSink interface {
	Record(kind StatKind, name string, value float64)
}

// DiscardStats is a StatSink which drops everything.
type DiscardStats struct{}

// Record does nothing.
func (DiscardStats) Record(kind StatKind, name string, value float64) {
}

// MultiStats forwards every observation to each of its
// sinks.
type MultiStats []StatSink

// Record forwards the observation.
func (m MultiStats) Record(kind StatKind, name string, value float64) {
	for _, s := range m {
		s.Record(kind, name, value)
	}
}

// Flush flushes every sink which has a Flush method and
// merges the results.
func (m MultiStats) Flush() map[string]float64 {
	res := map[string]float64{}
	for _, s := range m {
		if f, ok := s.(interface {
			Flush() map[string]float64
		}); ok {
			for k, v := range f.Flush() {
				res[k] = v
			}
		}
	}
	return res
}

// A StatLog aggregates observations in memory and writes
// them to a log when flushed.
//
// A StatLog is not safe for concurrent use.
type StatLog struct {
	// Logger receives one line per statistic on Flush.
	//
	// If nil, log.Default() is used.
	Logger *log.Logger

	// Now is used to measure rates.
	//
	// If nil, time.Now is used.
	Now func() time.Time

	kinds     map[string]StatKind
	values    map[string][]float64
	totals    map[string]float64
	lastFlush time.Time
}

// Record adds an observation.
//
// The kind of a statistic is fixed by the first
// observation recorded under its name.
func (s *StatLog) Record(kind StatKind, name string, value float64) {
	if s.kinds == nil {
		s.kinds = map[string]StatKind{}
		s.values = map[string][]float64{}
		s.totals = map[string]float64{}
		s.lastFlush = s.now()
	}
	if _, ok := s.kinds[name]; !ok {
		s.kinds[name] = kind
	}
	s.values[name] = append(s.values[name], value)
}

// Flush aggregates the observations since the previous
// Flush, logs them, and returns them by name.
func (s *StatLog) Flush() map[string]float64 {
	res := map[string]float64{}
	if s.kinds == nil {
		return res
	}
	now := s.now()
	elapsed := now.Sub(s.lastFlush).Seconds()
	s.lastFlush = now

	var names []string
	for name, values := range s.values {
		if len(values) == 0 {
			continue
		}
		names = append(names, name)
		switch s.kinds[name] {
		case MeanStat:
			res[name] = stat.Mean(values, nil)
		case MaxStat:
			res[name] = floats.Max(values)
		case RateStat:
			if elapsed > 0 {
				res[name] = floats.Sum(values) / elapsed
			}
		case CumSumStat:
			s.totals[name] += floats.Sum(values)
			res[name] = s.totals[name]
		}
		s.values[name] = values[:0]
	}

	sort.Strings(names)
	logger := s.Logger
	if logger == nil {
		logger = log.Default()
	}
	for _, name := range names {
		logger.Printf("%s %s=%f", s.kinds[name], name, res[name])
	}
	return res
}

func (s *StatLog) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}
