package crowdsale

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned when a crowdsale with the given address is not found.
var ErrNotFound = errors.New("crowdsale not found")

// ErrEmptyID is returned when trying to store a record without an address or id.
var ErrEmptyID = errors.New("empty crowdsale address")

// Storage is the main interface for our crowdsale storage layer.
// SavePurchase and SaveWithdrawal write the updated crowdsale together with
// its log entry: either both are stored or neither is.
type Storage interface {
	Set(ctx context.Context, c *Crowdsale) error
	Read(ctx context.Context, address string) (*Crowdsale, error)
	GetAll(ctx context.Context) ([]*Crowdsale, error)
	SavePurchase(ctx context.Context, c *Crowdsale, p *Purchase) error
	Purchases(ctx context.Context, address string) ([]*Purchase, error)
	SaveWithdrawal(ctx context.Context, c *Crowdsale, w *Withdrawal) error
	Withdrawals(ctx context.Context, address string) ([]*Withdrawal, error)
}

// LocalStorage provides an in-memory implementation for storing crowdsales.
// Records are copied on the way in and out so callers never share state
// with the store.
type LocalStorage struct {
	mu          sync.RWMutex
	m           map[string]Crowdsale
	order       []string
	purchases   map[string][]Purchase
	withdrawals map[string][]Withdrawal
}

// NewLocalStorage instantiates a new LocalStorage with empty maps.
func NewLocalStorage() *LocalStorage {
	return &LocalStorage{
		m:           map[string]Crowdsale{},
		purchases:   map[string][]Purchase{},
		withdrawals: map[string][]Withdrawal{},
	}
}

// Set inserts or replaces a crowdsale.
// Returns ErrEmptyID if the crowdsale has no address.
func (l *LocalStorage) Set(ctx context.Context, c *Crowdsale) error {
	if c.Address.IsZero() {
		return ErrEmptyID
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.put(c)
	return nil
}

// put stores c. Callers hold l.mu.
func (l *LocalStorage) put(c *Crowdsale) {
	key := c.Address.String()
	if _, ok := l.m[key]; !ok {
		l.order = append(l.order, key)
	}
	l.m[key] = *c
}

// Read retrieves a crowdsale by address.
// Returns ErrNotFound if the crowdsale is not found.
func (l *LocalStorage) Read(ctx context.Context, address string) (*Crowdsale, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	c, ok := l.m[address]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

// GetAll retrieves all crowdsales in creation order.
func (l *LocalStorage) GetAll(ctx context.Context) ([]*Crowdsale, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	all := make([]*Crowdsale, 0, len(l.order))
	for _, key := range l.order {
		c := l.m[key]
		all = append(all, &c)
	}
	return all, nil
}

// SavePurchase stores c and appends p to its purchases under one lock.
func (l *LocalStorage) SavePurchase(ctx context.Context, c *Crowdsale, p *Purchase) error {
	if c.Address.IsZero() || p.ID == "" {
		return ErrEmptyID
	}
	key := c.Address.String()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.put(c)
	l.purchases[key] = append(l.purchases[key], *p)
	return nil
}

func (l *LocalStorage) Purchases(ctx context.Context, address string) ([]*Purchase, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	list := l.purchases[address]
	out := make([]*Purchase, 0, len(list))
	for i := range list {
		p := list[i]
		out = append(out, &p)
	}
	return out, nil
}

// SaveWithdrawal stores c and appends w to its withdrawals under one lock.
func (l *LocalStorage) SaveWithdrawal(ctx context.Context, c *Crowdsale, w *Withdrawal) error {
	if c.Address.IsZero() || w.ID == "" {
		return ErrEmptyID
	}
	key := c.Address.String()
	l.mu.Lock()
	defer l.mu.Unlock()
	l.put(c)
	l.withdrawals[key] = append(l.withdrawals[key], *w)
	return nil
}

func (l *LocalStorage) Withdrawals(ctx context.Context, address string) ([]*Withdrawal, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	list := l.withdrawals[address]
	out := make([]*Withdrawal, 0, len(list))
	for i := range list {
		w := list[i]
		out = append(out, &w)
	}
	return out, nil
}
