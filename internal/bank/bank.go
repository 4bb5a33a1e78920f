// Package bank implements the WORDS/MUSIC mode state machine driven by the
// mode button, including which output gain applies after a switch.
package bank

import (
	"github.com/micro-nova/musicbox-go/internal/models"
)

// GainPolicy selects which configured gain is applied when switching banks.
type GainPolicy string

const (
	// PolicyLegacy applies the gain of the bank being left: switching to
	// MUSIC applies the WORDS gain and vice versa. This is what shipped
	// devices do, so it stays the default.
	PolicyLegacy GainPolicy = "legacy"
	// PolicyFollow applies the gain of the bank being switched to.
	PolicyFollow GainPolicy = "follow"
)

// Gains holds the configured output gain of each bank.
type Gains struct {
	Words float64
	Music float64
}

// For returns the configured gain of bank b.
func (g Gains) For(b models.Bank) float64 {
	if b == models.BankMusic {
		return g.Music
	}
	return g.Words
}

// State is the bank state machine. Initial state is WORDS with the WORDS gain.
type State struct {
	bank   models.Bank
	gain   float64
	gains  Gains
	policy GainPolicy
}

// New returns a State in its initial WORDS state.
func New(gains Gains, policy GainPolicy) *State {
	if policy == "" {
		policy = PolicyLegacy
	}
	s := &State{gains: gains, policy: policy}
	s.Reset()
	return s
}

// Reset returns to the initial state.
func (s *State) Reset() {
	s.bank = models.BankWords
	s.gain = s.gains.Words
}

// Bank returns the selected bank.
func (s *State) Bank() models.Bank { return s.bank }

// Gain returns the output gain currently in effect.
func (s *State) Gain() float64 { return s.gain }

// Gains returns the configured per-bank gains.
func (s *State) Gains() Gains { return s.gains }

// Toggle switches banks and returns the new bank and the gain to apply.
func (s *State) Toggle() (models.Bank, float64) {
	prev := s.bank
	s.bank = prev.Other()
	switch s.policy {
	case PolicyFollow:
		s.gain = s.gains.For(s.bank)
	default:
		s.gain = s.gains.For(prev)
	}
	return s.bank, s.gain
}
