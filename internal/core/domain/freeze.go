package domain

import (
	"errors"
	"time"
)

var (
	ErrFreezeConflict      = errors.New("freeze balance version conflict")
	ErrFreezeContention    = errors.New("freeze balance update gave up after repeated conflicts")
	ErrInvalidFreezeAmount = errors.New("freeze amounts must be positive")
)

// FreezeSource hands out freeze days one at a time. ConsumeFreezeDay reports
// false when the balance is exhausted.
type FreezeSource interface {
	ConsumeFreezeDay() bool
}

var _ FreezeSource = (*FreezeBalance)(nil)

// FreezeBalance is the per-user currency record. It is only mutated through a
// compare-and-swap on Version.
type FreezeBalance struct {
	UserID     string    `json:"user_id" db:"user_id"`
	Diamonds   int       `json:"diamonds" db:"diamonds"`
	FreezeDays int       `json:"freeze_days" db:"freeze_days"`
	Version    int       `json:"version" db:"version"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

func NewFreezeBalance(userID string) *FreezeBalance {
	return &FreezeBalance{UserID: userID, UpdatedAt: time.Now().UTC()}
}

// Purchase trades cost diamonds for days freeze days. It is a no-op
// returning false when diamonds are insufficient.
func (b *FreezeBalance) Purchase(days, cost int) (bool, error) {
	if days <= 0 || cost < 0 {
		return false, ErrInvalidFreezeAmount
	}
	if b.Diamonds < cost {
		return false, nil
	}
	b.Diamonds -= cost
	b.FreezeDays += days
	return true, nil
}

func (b *FreezeBalance) ConsumeFreezeDay() bool {
	if b.FreezeDays <= 0 {
		return false
	}
	b.FreezeDays--
	return true
}

func (b *FreezeBalance) AddDiamonds(amount int) error {
	if amount <= 0 {
		return ErrInvalidFreezeAmount
	}
	b.Diamonds += amount
	return nil
}

func (b *FreezeBalance) Clone() *FreezeBalance {
	c := *b
	return &c
}
