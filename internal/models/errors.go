package models

import "github.com/cockroachdb/errors"

// Sentinel errors. Callers wrap them with context and test with errors.Is.
var (
	// ErrInvalidSlot is returned for a slot outside [1, SlotCount].
	ErrInvalidSlot = errors.New("invalid slot")
	// ErrInvalidBank is returned for an unknown bank value.
	ErrInvalidBank = errors.New("invalid bank")
	// ErrFileOpen marks a sound file that could not be opened.
	ErrFileOpen = errors.New("file open failed")
	// ErrStorageMount marks an internal or external volume that failed to mount.
	ErrStorageMount = errors.New("storage mount failed")
	// ErrNotMounted is returned by Open on a volume that was never mounted.
	ErrNotMounted = errors.New("volume not mounted")
	// ErrAsleep is returned by the main loop after the device entered sleep.
	ErrAsleep = errors.New("device asleep")
)
