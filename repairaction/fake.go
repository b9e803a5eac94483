package repairaction

import (
	"sync"

	"github.com/coredb/repaird/token"
)

// FakeAction is a scriptable Action for tests: it records every range
// it was asked to run and reports whatever Results says for that
// range, defaulting to Success. It exists because spec §1 puts the
// actual repair protocol out of scope; the scheduler and job tests
// only need to exercise the calling contract.
type FakeAction struct {
	mu      sync.Mutex
	Results map[token.TokenRange]Outcome
	Errs    map[token.TokenRange]error
	Calls   []token.TokenRange
}

func NewFakeAction() *FakeAction {
	return &FakeAction{
		Results: make(map[token.TokenRange]Outcome),
		Errs:    make(map[token.TokenRange]error),
	}
}

func (f *FakeAction) Run(table token.TableReference, r token.TokenRange, cfg Configuration) (Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Calls = append(f.Calls, r)
	if err, ok := f.Errs[r]; ok {
		return Failure, err
	}
	if outcome, ok := f.Results[r]; ok {
		return outcome, nil
	}
	return Success, nil
}

func (f *FakeAction) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Calls)
}
