// README: In-process Notifier for tests and single-binary deployments.
package notify

import (
	"context"
	"sync"
)

// MemoryNotifier records events and optionally forwards them to a handler.
// Tests install a handler that plays the agent side of the protocol.
type MemoryNotifier struct {
	mu         sync.Mutex
	offers     []OfferEvent
	withdraws  []WithdrawEvent
	OnOffer    func(ev OfferEvent)
	OnWithdraw func(ev WithdrawEvent)
}

func NewMemoryNotifier() *MemoryNotifier {
	return &MemoryNotifier{}
}

func (n *MemoryNotifier) Offer(_ context.Context, ev OfferEvent) error {
	n.mu.Lock()
	n.offers = append(n.offers, ev)
	handler := n.OnOffer
	n.mu.Unlock()
	if handler != nil {
		handler(ev)
	}
	return nil
}

func (n *MemoryNotifier) Withdraw(_ context.Context, ev WithdrawEvent) error {
	n.mu.Lock()
	n.withdraws = append(n.withdraws, ev)
	handler := n.OnWithdraw
	n.mu.Unlock()
	if handler != nil {
		handler(ev)
	}
	return nil
}

// Offers returns a copy of every offer pushed so far.
func (n *MemoryNotifier) Offers() []OfferEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]OfferEvent, len(n.offers))
	copy(out, n.offers)
	return out
}

// Withdraws returns a copy of every withdrawal pushed so far.
func (n *MemoryNotifier) Withdraws() []WithdrawEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]WithdrawEvent, len(n.withdraws))
	copy(out, n.withdraws)
	return out
}
