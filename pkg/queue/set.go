package queue

import (
	"context"
	"time"

	"github.com/ladleio/ladle/pkg/broker"
)

// Set bundles the four pipeline queues so components can be handed one
// value instead of four
type Set struct {
	Intake     *Queue
	LLM        *Queue
	Validator  *Queue
	Reconciler *Queue
}

// NewSet builds the pipeline queues with a shared visibility window
func NewSet(b *broker.Broker, vis time.Duration) *Set {
	return &Set{
		Intake:     New(b, Intake, vis),
		LLM:        New(b, LLM, vis),
		Validator:  New(b, Validator, vis),
		Reconciler: New(b, Reconciler, vis),
	}
}

// ByName returns the queue with the given pipeline name, or nil
func (s *Set) ByName(name string) *Queue {
	switch name {
	case Intake:
		return s.Intake
	case LLM:
		return s.LLM
	case Validator:
		return s.Validator
	case Reconciler:
		return s.Reconciler
	default:
		return nil
	}
}

// All returns the queues in flow order
func (s *Set) All() []*Queue {
	return []*Queue{s.Intake, s.LLM, s.Validator, s.Reconciler}
}

// DepthsAll reports depths for every pipeline queue keyed by name
func (s *Set) DepthsAll(ctx context.Context) (map[string]Depths, error) {
	out := make(map[string]Depths, 4)
	for _, q := range s.All() {
		d, err := q.Depths(ctx)
		if err != nil {
			return nil, err
		}
		out[q.Name()] = d
	}
	return out, nil
}

// ReapAll runs one reaper pass over every pipeline queue
func (s *Set) ReapAll(ctx context.Context, now time.Time) (int, error) {
	total := 0
	for _, q := range s.All() {
		moved, err := q.Reap(ctx, now)
		if err != nil {
			return total, err
		}
		total += moved
	}
	return total, nil
}
