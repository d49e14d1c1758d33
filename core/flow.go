package core

import (
	"math"
	"strings"
	"sync"
)

const (
	flowStepUnset       = -1
	flowStepStartMarker = math.MaxInt
)

// ContractFlow is an ordered registry of contract identifiers with a cursor.
type ContractFlow struct {
	mu        sync.Mutex
	ids       []string
	lookup    map[string]Contract
	step      int
	currentID string
}

// NewContractFlow registers contractIDs for appID in order. Duplicates keep
// their first position.
func NewContractFlow(appID string, contractIDs []string) (*ContractFlow, error) {
	flow := &ContractFlow{
		lookup: map[string]Contract{},
		step:   flowStepUnset,
	}
	for _, id := range contractIDs {
		contract, err := NewContract(id, appID)
		if err != nil {
			return nil, err
		}
		if _, exists := flow.lookup[contract.ContractID]; exists {
			continue
		}
		flow.ids = append(flow.ids, contract.ContractID)
		flow.lookup[contract.ContractID] = contract
	}
	if len(flow.ids) > 0 {
		flow.step = flowStepStartMarker
	}
	return flow, nil
}

func (f *ContractFlow) Size() int {
	if f == nil {
		return 0
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ids)
}

func (f *ContractFlow) IDs() []string {
	if f == nil {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ids...)
}

// Initialized holds when the cursor sits on a resolved identifier or on the
// pre-iteration marker of a non-empty registry.
func (f *ContractFlow) Initialized() bool {
	if f == nil {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.initializedLocked()
}

func (f *ContractFlow) initializedLocked() bool {
	if len(f.ids) == 0 || f.step < 0 {
		return false
	}
	return f.step == flowStepStartMarker || f.currentID != ""
}

// Next advances the cursor. It returns false without mutation at the last
// identifier or on an empty registry.
func (f *ContractFlow) Next() bool {
	if f == nil {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.ids) == 0 {
		return false
	}
	step := f.step
	if step == flowStepStartMarker {
		step = flowStepUnset
	}
	if step+1 >= len(f.ids) {
		return false
	}
	f.step = step + 1
	f.currentID = f.ids[f.step]
	return true
}

func (f *ContractFlow) Rewind() *ContractFlow {
	if f == nil {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.currentID = ""
	if len(f.ids) == 0 {
		f.step = flowStepUnset
		return f
	}
	f.step = flowStepStartMarker
	return f
}

// StepTo repositions the cursor on id when it is registered.
func (f *ContractFlow) StepTo(id string) bool {
	if f == nil {
		return false
	}
	id = strings.TrimSpace(id)
	f.mu.Lock()
	defer f.mu.Unlock()
	if id == "" {
		return false
	}
	if f.currentID == id && f.step >= 0 && f.step < len(f.ids) {
		return true
	}
	if _, ok := f.lookup[id]; !ok {
		return false
	}
	for idx, candidate := range f.ids {
		if candidate == id {
			f.step = idx
			f.currentID = id
			return true
		}
	}
	return false
}

func (f *ContractFlow) CurrentID() string {
	if f == nil {
		return ""
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.currentID
}

// Get returns the contract bound to the current identifier.
func (f *ContractFlow) Get() (Contract, bool) {
	if f == nil {
		return Contract{}, false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.currentID == "" || !f.initializedLocked() {
		return Contract{}, false
	}
	contract, ok := f.lookup[f.currentID]
	return contract, ok
}
