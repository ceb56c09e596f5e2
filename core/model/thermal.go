package model

import (
	"sort"
	"time"
)

// ThermalState is one observed sample of a zone: measured indoor
// temperature, outdoor temperature and the heating level active at the time.
type ThermalState struct {
	Timestamp   time.Time    `json:"timestamp"`
	IndoorTemp  float64      `json:"indoor_temp"`
	OutdoorTemp float64      `json:"outdoor_temp"`
	Level       HeatingLevel `json:"level"`
}

// ThermalHistory is the append-only observation log of one zone, trimmed to
// a bounded retention window.
type ThermalHistory struct {
	samples   []ThermalState
	retention time.Duration
}

// NewThermalHistory creates a history retaining samples for the given window.
func NewThermalHistory(retention time.Duration) *ThermalHistory {
	return &ThermalHistory{retention: retention}
}

// Append records a sample and evicts entries older than the retention
// window relative to the new sample. Out-of-order samples are inserted in
// timestamp order.
func (h *ThermalHistory) Append(s ThermalState) {
	h.samples = append(h.samples, s)
	if n := len(h.samples); n > 1 && h.samples[n-2].Timestamp.After(s.Timestamp) {
		sort.Slice(h.samples, func(i, j int) bool {
			return h.samples[i].Timestamp.Before(h.samples[j].Timestamp)
		})
	}
	if h.retention <= 0 {
		return
	}
	cutoff := h.samples[len(h.samples)-1].Timestamp.Add(-h.retention)
	i := 0
	for i < len(h.samples) && h.samples[i].Timestamp.Before(cutoff) {
		i++
	}
	if i > 0 {
		h.samples = append(h.samples[:0], h.samples[i:]...)
	}
}

// Samples returns the retained samples in timestamp order.
func (h *ThermalHistory) Samples() []ThermalState {
	out := make([]ThermalState, len(h.samples))
	copy(out, h.samples)
	return out
}

// Len returns the number of retained samples.
func (h *ThermalHistory) Len() int { return len(h.samples) }

// Last returns the most recent sample, false when empty.
func (h *ThermalHistory) Last() (ThermalState, bool) {
	if len(h.samples) == 0 {
		return ThermalState{}, false
	}
	return h.samples[len(h.samples)-1], true
}
