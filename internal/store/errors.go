package store

import "errors"

var (
	ErrConflict     = errors.New("conflict")
	ErrNotFound     = errors.New("not found")
	ErrSlotReserved = errors.New("slot is reserved")
)
