package gameserver

import (
	"fmt"
	"math"

	"github.com/cory-johannsen/roomsync/internal/config"
	"github.com/cory-johannsen/roomsync/internal/game/session"
)

// DefaultInterestRadius is the interest radius used when none is configured.
const DefaultInterestRadius = 500.0

// Delivery selects the recipients of participantMoved events.
type Delivery struct {
	// Policy is config.PolicyFull or config.PolicyInterest.
	Policy string
	// Radius bounds the interest area around the mover.
	Radius float64
	// Metric is config.MetricChebyshev or config.MetricEuclidean.
	Metric string
}

// FullDelivery sends every move to every participant.
func FullDelivery() Delivery {
	return Delivery{Policy: config.PolicyFull}
}

// InterestDelivery limits moves to participants within radius under metric.
func InterestDelivery(radius float64, metric string) Delivery {
	return Delivery{Policy: config.PolicyInterest, Radius: radius, Metric: metric}
}

// DeliveryFromConfig converts the delivery configuration section.
//
// Postcondition: Returns a Delivery or an error naming the unsupported setting.
func DeliveryFromConfig(cfg config.DeliveryConfig) (Delivery, error) {
	switch cfg.Policy {
	case "", config.PolicyFull:
		return FullDelivery(), nil
	case config.PolicyInterest:
	default:
		return Delivery{}, fmt.Errorf("unsupported delivery policy %q", cfg.Policy)
	}
	radius := cfg.Radius
	if radius <= 0 {
		radius = DefaultInterestRadius
	}
	switch cfg.Metric {
	case "", config.MetricChebyshev:
		return InterestDelivery(radius, config.MetricChebyshev), nil
	case config.MetricEuclidean:
		return InterestDelivery(radius, config.MetricEuclidean), nil
	default:
		return Delivery{}, fmt.Errorf("unsupported delivery metric %q", cfg.Metric)
	}
}

// Broadcast reports whether every move goes to every participant.
func (d Delivery) Broadcast() bool {
	return d.Policy != config.PolicyInterest
}

// Includes reports whether a participant at recipient receives a move to mover.
// The boundary is inclusive.
func (d Delivery) Includes(mover, recipient session.Position) bool {
	if d.Broadcast() {
		return true
	}
	dx := math.Abs(mover.X - recipient.X)
	dy := math.Abs(mover.Y - recipient.Y)
	if d.Metric == config.MetricEuclidean {
		return math.Hypot(dx, dy) <= d.Radius
	}
	return dx <= d.Radius && dy <= d.Radius
}
