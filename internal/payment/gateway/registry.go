// Package gateway adapts the external payment gateway's hosted checkout
// to the orchestrator's collection contract.
package gateway

import (
	"fmt"
	"sync"

	"staypay/internal/payment"
)

// Outcome is the result of one checkout session, delivered by the
// gateway callback or a user cancellation.
type Outcome struct {
	Credentials *payment.Credentials
	Cancelled   bool
	Err         error
}

// CompletionRegistry routes checkout outcomes to the attempt waiting on
// them. One waiter per order ID; registering a duplicate is rejected so
// two attempts can never consume each other's credentials.
type CompletionRegistry struct {
	mu      sync.Mutex
	waiters map[string]chan Outcome
}

func NewCompletionRegistry() *CompletionRegistry {
	return &CompletionRegistry{
		waiters: make(map[string]chan Outcome),
	}
}

// Register creates the waiter channel for an order.
func (r *CompletionRegistry) Register(orderID string) (<-chan Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.waiters[orderID]; exists {
		return nil, fmt.Errorf("order %s already has a checkout in progress", orderID)
	}
	ch := make(chan Outcome, 1)
	r.waiters[orderID] = ch
	return ch, nil
}

// Resolve delivers the outcome for an order and removes its waiter.
// Unknown orders are rejected; a late or duplicate callback must not be
// mistaken for a live one.
func (r *CompletionRegistry) Resolve(orderID string, outcome Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch, exists := r.waiters[orderID]
	if !exists {
		return fmt.Errorf("no checkout waiting on order %s", orderID)
	}
	delete(r.waiters, orderID)
	ch <- outcome
	return nil
}

// Drop removes a waiter without delivering an outcome, used when the
// wait is abandoned.
func (r *CompletionRegistry) Drop(orderID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.waiters, orderID)
}
