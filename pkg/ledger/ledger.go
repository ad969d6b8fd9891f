// Package ledger keeps the append-only list of transactions the API accepted
// and derives the account balance from it.
package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type Entry struct {
	Date        time.Time `json:"date"`
	Description string    `json:"description"`
	Value       float64   `json:"value"`
}

// Store is an append-only sequence of entries. Implementations must
// serialize Append so that Sum always equals the fold over List.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	List(ctx context.Context) ([]Entry, error)
	Sum(ctx context.Context) (float64, error)
}

type memoryStore struct {
	mux     *sync.RWMutex
	entries []Entry
}

func NewMemoryStore(seed ...Entry) Store {
	return &memoryStore{
		mux:     &sync.RWMutex{},
		entries: append([]Entry{}, seed...),
	}
}

func (s *memoryStore) Append(ctx context.Context, entry Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mux.Lock()
	defer s.mux.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *memoryStore) List(ctx context.Context) ([]Entry, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()
	return append([]Entry{}, s.entries...), nil
}

func (s *memoryStore) Sum(ctx context.Context) (float64, error) {
	s.mux.RLock()
	defer s.mux.RUnlock()
	var sum float64
	for _, e := range s.entries {
		sum += e.Value
	}
	return sum, nil
}

type Mode string

const (
	// ModeExpenses: entries are expenses subtracted from the initial balance.
	ModeExpenses Mode = "expenses"
	// ModePurchases: the balance is the plain sum of the entries.
	ModePurchases Mode = "purchases"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeExpenses, ModePurchases:
		return Mode(s), nil
	case "":
		return ModeExpenses, nil
	}
	return "", fmt.Errorf("unknown ledger mode '%s'", s)
}

type Ledger struct {
	Store          Store
	Mode           Mode
	InitialBalance float64
}

func New(store Store, mode Mode, initialBalance float64) *Ledger {
	return &Ledger{
		Store:          store,
		Mode:           mode,
		InitialBalance: initialBalance,
	}
}

func (l *Ledger) Balance(ctx context.Context) (float64, error) {
	sum, err := l.Store.Sum(ctx)
	if err != nil {
		return 0, fmt.Errorf("sum ledger: %w", err)
	}
	if l.Mode == ModePurchases {
		return sum, nil
	}
	return l.InitialBalance - sum, nil
}

// DemoEntries are the expenses the demo ledger starts with.
func DemoEntries(now time.Time) []Entry {
	return []Entry{
		{Date: now, Description: "Pizza for a Coding Dojo session.", Value: 102},
		{Date: now, Description: "Coffee for a Coding Dojo session.", Value: 42},
	}
}
