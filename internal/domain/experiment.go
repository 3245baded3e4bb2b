package domain

import (
	"errors"
	"sort"
	"strconv"
	"strings"
)

// Algorithm identifies a clustering strategy. Only TIME and TIME_DISTANCE
// have runnable implementations; the DBSCAN variants are declared so stored
// experiments can reference them.
type Algorithm string

const (
	AlgorithmTime           Algorithm = "TIME"
	AlgorithmTimeDistance   Algorithm = "TIME_DISTANCE"
	AlgorithmDBSCANTime     Algorithm = "DBSCAN_TIME"
	AlgorithmDBSCANDistance Algorithm = "DBSCAN_DISTANCE"
	AlgorithmDBSCANTimeDist Algorithm = "DBSCAN_TIME_DISTANCE"
)

// Valid reports whether a is a declared algorithm.
func (a Algorithm) Valid() bool {
	switch a {
	case AlgorithmTime, AlgorithmTimeDistance, AlgorithmDBSCANTime,
		AlgorithmDBSCANDistance, AlgorithmDBSCANTimeDist:
		return true
	}
	return false
}

// ErrDuplicateExperiment signals that an experiment with the same
// (algorithm, parameters, provider) identity already exists. Callers skip
// the run; no data is written.
var ErrDuplicateExperiment = errors.New("experiment already exists")

// Experiment is one identified, parameterized run of a clustering algorithm
// over a provider's events. Experiments are created once and never mutated.
type Experiment struct {
	ID         int64
	Algorithm  Algorithm
	Parameters map[string]string
	Provider   string
}

// CanonicalValue formats a numeric parameter deterministically. Experiment
// identity compares parameter maps as strings, so every caller must encode
// numbers the same way regardless of locale or float formatting defaults.
func CanonicalValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// TimeParams builds the canonical parameter map for the TIME algorithm.
// algorithmTime is in seconds.
func TimeParams(algorithmTime float64) map[string]string {
	return map[string]string{"time": CanonicalValue(algorithmTime)}
}

// TimeDistanceParams builds the canonical parameter map for the
// TIME_DISTANCE algorithm. algorithmTime is in seconds, algorithmDistance
// in meters.
func TimeDistanceParams(algorithmTime, algorithmDistance float64) map[string]string {
	return map[string]string{
		"time":     CanonicalValue(algorithmTime),
		"distance": CanonicalValue(algorithmDistance),
	}
}

// CanonicalKey flattens a parameter map into a single comparable string with
// keys in sorted order, e.g. "distance=15000;time=600". Used for the storage
// uniqueness constraint on experiment identity.
func CanonicalKey(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
	}
	return b.String()
}
