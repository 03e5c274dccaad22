package model

import "sort"

// MonthlyLedger maps a YYYY-MM key to an amount string. A key with an empty
// amount is a month on the timeline that has not been filled in yet.
type MonthlyLedger map[string]string

// Set overwrites the amount for month.
func (l MonthlyLedger) Set(month, amount string) {
	l[month] = amount
}

// Months returns the keys in chronological order. Keys are zero padded, so
// lexical order is chronological.
func (l MonthlyLedger) Months() []string {
	months := make([]string, 0, len(l))
	for m := range l {
		months = append(months, m)
	}
	sort.Strings(months)
	return months
}

func (l MonthlyLedger) Clone() MonthlyLedger {
	cp := make(MonthlyLedger, len(l))
	for k, v := range l {
		cp[k] = v
	}
	return cp
}

// PendingBilling holds amounts extracted before the contract had a timeline.
// It is either empty (HasPending false) or carries at least one entry.
type PendingBilling struct {
	HasPending bool              `json:"has_pending"`
	Entries    map[string]string `json:"entries,omitempty"`
}

// Add stages amount for month, replacing an earlier pending amount for the
// same month and keeping the others.
func (p *PendingBilling) Add(month, amount string) {
	if p.Entries == nil {
		p.Entries = make(map[string]string)
	}
	p.Entries[month] = amount
	p.HasPending = true
}

// Clear drops every pending entry.
func (p *PendingBilling) Clear() {
	p.Entries = nil
	p.HasPending = false
}

func (p PendingBilling) Clone() PendingBilling {
	if !p.HasPending {
		return PendingBilling{}
	}
	cp := PendingBilling{HasPending: true, Entries: make(map[string]string, len(p.Entries))}
	for k, v := range p.Entries {
		cp.Entries[k] = v
	}
	return cp
}
