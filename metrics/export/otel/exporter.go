package otel

import (
	"context"
	"errors"
	"fmt"

	goCreds "github.com/MrEthical07/goCreds"
	"github.com/MrEthical07/goCreds/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

// Source is satisfied by *goCreds.Engine.
type Source interface {
	MetricsSnapshot() goCreds.MetricsSnapshot
	AuditDropped() uint64
}

// reading is one collected value. ok=false skips the observation, which is how
// histograms stay silent while latency recording is off.
type reading func(snap goCreds.MetricsSnapshot, dropped uint64) (v int64, ok bool)

type observation struct {
	instrument metric.Int64Observable
	read       reading
}

// Exporter keeps the callback registration alive until Close.
type Exporter struct {
	source       Source
	observations []observation
	registration metric.Registration
}

// New registers one instrument per metric definition on meter.
func New(meter metric.Meter, source Source) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &Exporter{source: source}

	counter := func(name, help string, read reading) error {
		ins, err := meter.Int64ObservableCounter(name, metric.WithDescription(help))
		if err != nil {
			return fmt.Errorf("create observable counter %s: %w", name, err)
		}
		e.observations = append(e.observations, observation{instrument: ins, read: read})
		return nil
	}
	gauge := func(name, help string, read reading) error {
		ins, err := meter.Int64ObservableGauge(name, metric.WithDescription(help))
		if err != nil {
			return fmt.Errorf("create observable gauge %s: %w", name, err)
		}
		e.observations = append(e.observations, observation{instrument: ins, read: read})
		return nil
	}

	for _, def := range internaldefs.CounterDefs {
		id := def.ID
		if err := counter(def.Name, def.Help, func(s goCreds.MetricsSnapshot, _ uint64) (int64, bool) {
			return int64(s.Counters[id]), true
		}); err != nil {
			return nil, err
		}
	}

	for _, def := range internaldefs.HistogramDefs {
		id := def.ID
		for i, suffix := range internaldefs.HistogramBoundSuffix {
			bucket := i
			if err := gauge(def.Name+"_bucket_le_"+suffix, "Cumulative histogram bucket count.", func(s goCreds.MetricsSnapshot, _ uint64) (int64, bool) {
				return cumulative(s, id, bucket)
			}); err != nil {
				return nil, err
			}
		}
		if err := gauge(def.Name+"_count", "Histogram total sample count.", func(s goCreds.MetricsSnapshot, _ uint64) (int64, bool) {
			return cumulative(s, id, len(internaldefs.HistogramBounds)-1)
		}); err != nil {
			return nil, err
		}
	}

	if err := counter(internaldefs.AuditDroppedName, internaldefs.AuditDroppedHelp, func(_ goCreds.MetricsSnapshot, dropped uint64) (int64, bool) {
		return int64(dropped), true
	}); err != nil {
		return nil, err
	}

	instruments := make([]metric.Observable, len(e.observations))
	for i, o := range e.observations {
		instruments[i] = o.instrument
	}

	registration, err := meter.RegisterCallback(e.collect, instruments...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	e.registration = registration
	return e, nil
}

func (e *Exporter) collect(_ context.Context, observer metric.Observer) error {
	snap := e.source.MetricsSnapshot()
	dropped := e.source.AuditDropped()
	for _, o := range e.observations {
		if v, ok := o.read(snap, dropped); ok {
			observer.ObserveInt64(o.instrument, v)
		}
	}
	return nil
}

func cumulative(s goCreds.MetricsSnapshot, id goCreds.MetricID, bucket int) (int64, bool) {
	raw, ok := s.Histograms[id]
	if !ok {
		return 0, false
	}
	return int64(internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))[bucket]), true
}

// Close unregisters the callback. Later calls are no-ops.
func (e *Exporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	reg := e.registration
	e.registration = nil
	return reg.Unregister()
}
