package swap

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Proposal is an open offer to swap, posted by a would-be initiator and
// taken by exactly one responder. Matching real counterparties is an
// order-book concern outside this library; the registry is only the injected
// store such a service (or a test) binds swaps against.
type Proposal struct {
	ID        string
	Initiator string // initiator's address on ledger B (where they receive)
	Params    SwapParams
	CreatedAt time.Time

	TakenBy string
	TakenAt time.Time
}

// Taken reports whether a responder has committed to the proposal.
func (p *Proposal) Taken() bool { return p.TakenBy != "" }

// Registry is a single-writer in-memory proposal store. It is always an
// explicit dependency of whoever pairs counterparties — never package-level
// state.
type Registry struct {
	mu        sync.Mutex
	proposals map[string]*Proposal
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{proposals: make(map[string]*Proposal)}
}

// Post records a new open proposal and returns its id.
func (r *Registry) Post(initiator string, params SwapParams) (string, error) {
	if params.AmountA.Cmp(decimal.Zero) <= 0 || params.AmountB.Cmp(decimal.Zero) <= 0 {
		return "", fmt.Errorf("registry: proposal amounts must be positive")
	}
	if params.LongTimelock <= params.ShortTimelock {
		return "", fmt.Errorf("registry: proposal timelocks must satisfy long > short")
	}

	p := &Proposal{
		ID:        uuid.NewString(),
		Initiator: initiator,
		Params:    params,
		CreatedAt: time.Now(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.proposals[p.ID] = p
	return p.ID, nil
}

// Take commits a responder to an open proposal. Exactly one Take succeeds
// per proposal; later callers get an error.
func (r *Registry) Take(id, responder string) (Proposal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.proposals[id]
	if !ok {
		return Proposal{}, fmt.Errorf("registry: no proposal %s", id)
	}
	if p.Taken() {
		return Proposal{}, fmt.Errorf("registry: proposal %s already taken by %s", id, p.TakenBy)
	}

	p.TakenBy = responder
	p.TakenAt = time.Now()
	return *p, nil
}

// Get returns a copy of the proposal.
func (r *Registry) Get(id string) (Proposal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.proposals[id]
	if !ok {
		return Proposal{}, fmt.Errorf("registry: no proposal %s", id)
	}
	return *p, nil
}

// Open lists proposals nobody has taken yet.
func (r *Registry) Open() []Proposal {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Proposal
	for _, p := range r.proposals {
		if !p.Taken() {
			out = append(out, *p)
		}
	}
	return out
}
