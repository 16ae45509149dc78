// Package metrics holds the OpenTelemetry instruments for hunt progress.
//
// Instruments come from the global meter. Until a MeterProvider is
// installed they are no-ops, so callers record unconditionally.
package metrics

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/roach88/hunt"

// Attribute keys shared by all instruments.
var (
	AttrTeam     = attribute.Key("team")
	AttrStatus   = attribute.Key("status")
	AttrExternal = attribute.Key("external")
	AttrReason   = attribute.Key("reason")
	AttrKey      = attribute.Key("key")
)

var (
	initOnce          sync.Once
	transitions       metric.Int64Counter
	rejected          metric.Int64Counter
	propertyUpdates   metric.Int64Counter
	propagationPasses metric.Int64Counter
	notConverged      metric.Int64Counter
)

// Meter returns the global meter for hunt.
func Meter() metric.Meter {
	return otel.Meter(meterName)
}

// Init creates the instruments. Safe to call multiple times; only runs once.
func Init() error {
	var err error
	initOnce.Do(func() {
		m := Meter()
		transitions, err = m.Int64Counter("hunt_visibility_transitions_total",
			metric.WithDescription("Successful visibility transitions"))
		if err != nil {
			return
		}
		rejected, err = m.Int64Counter("hunt_rejected_transitions_total",
			metric.WithDescription("Visibility transitions rejected by policy or antecedent state"))
		if err != nil {
			return
		}
		propertyUpdates, err = m.Int64Counter("hunt_property_updates_total",
			metric.WithDescription("Team property writes that changed the stored value"))
		if err != nil {
			return
		}
		propagationPasses, err = m.Int64Counter("hunt_propagation_passes_total",
			metric.WithDescription("Snapshot-compute-apply passes run by the propagator"))
		if err != nil {
			return
		}
		notConverged, err = m.Int64Counter("hunt_propagation_not_converged_total",
			metric.WithDescription("Propagations aborted by the pass cap"))
	})
	return err
}

// RecordTransition records one successful visibility transition.
func RecordTransition(ctx context.Context, team, status string, external bool) {
	if transitions == nil {
		return
	}
	transitions.Add(ctx, 1, metric.WithAttributes(
		AttrTeam.String(team),
		AttrStatus.String(status),
		AttrExternal.Bool(external),
	))
}

// RecordRejected records a rejected transition with a short reason
// ("not_allowed", "no_antecedents", "antecedent_mismatch").
func RecordRejected(ctx context.Context, status, reason string) {
	if rejected == nil {
		return
	}
	rejected.Add(ctx, 1, metric.WithAttributes(
		AttrStatus.String(status),
		AttrReason.String(reason),
	))
}

// RecordPropertyUpdate records a property write that changed the value.
func RecordPropertyUpdate(ctx context.Context, team, key string) {
	if propertyUpdates == nil {
		return
	}
	propertyUpdates.Add(ctx, 1, metric.WithAttributes(AttrTeam.String(team), AttrKey.String(key)))
}

// RecordPropagationPass records one propagator pass for a team.
func RecordPropagationPass(ctx context.Context, team string) {
	if propagationPasses == nil {
		return
	}
	propagationPasses.Add(ctx, 1, metric.WithAttributes(AttrTeam.String(team)))
}

// RecordNotConverged records a propagation that hit the pass cap.
func RecordNotConverged(ctx context.Context, team string) {
	if notConverged == nil {
		return
	}
	notConverged.Add(ctx, 1, metric.WithAttributes(AttrTeam.String(team)))
}
