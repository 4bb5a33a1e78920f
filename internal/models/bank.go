// Package models defines the small set of types shared by the music box
// components: banks, slots, device events and sentinel errors.
package models

import "fmt"

// Bank is one of the two groups of four sound slots.
type Bank int

const (
	BankNone  Bank = iota - 1 // files outside the two banks, e.g. the init sound
	BankWords                 // "/wordN.mp3"
	BankMusic                 // "/musicN.mp3"
)

// SlotCount is the number of sound slots (and sound buttons) per bank.
const SlotCount = 4

// String returns the lowercase bank name used in logs and metrics labels.
func (b Bank) String() string {
	switch b {
	case BankWords:
		return "words"
	case BankMusic:
		return "music"
	case BankNone:
		return "none"
	default:
		return fmt.Sprintf("bank(%d)", int(b))
	}
}

// Valid reports whether b is one of the known banks.
func (b Bank) Valid() bool {
	return b == BankWords || b == BankMusic
}

// Other returns the bank a toggle switches to.
func (b Bank) Other() Bank {
	if b == BankWords {
		return BankMusic
	}
	return BankWords
}

// ValidSlot reports whether slot is in [1, SlotCount].
func ValidSlot(slot int) bool {
	return slot >= 1 && slot <= SlotCount
}
