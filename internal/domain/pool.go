package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PoolKind string

const (
	PoolKindGoat  PoolKind = "goat"
	PoolKindCow   PoolKind = "cow"
	PoolKindSheep PoolKind = "sheep"
)

// ValidKind reports whether k is one of the supported animal kinds.
func ValidKind(k PoolKind) bool {
	switch k {
	case PoolKindGoat, PoolKindCow, PoolKindSheep:
		return true
	}
	return false
}

type PoolStatus string

const (
	PoolStatusAvailable PoolStatus = "available"
	PoolStatusFull      PoolStatus = "full"
	PoolStatusClosed    PoolStatus = "closed"
)

// Pool represents one animal divided into purchasable shares.
// TotalShares is immutable after creation; RemainingShares is mutated only
// through the guarded adjust path in storage.
type Pool struct {
	ID              string
	Kind            PoolKind
	Location        string
	PhotoURL        string
	TotalShares     int
	RemainingShares int
	PricePerShare   decimal.Decimal
	Currency        string
	Status          PoolStatus
	CreatedAt       time.Time
}

// SoldShares is the count already taken by holds or completed purchases.
func (p Pool) SoldShares() int {
	return p.TotalShares - p.RemainingShares
}
