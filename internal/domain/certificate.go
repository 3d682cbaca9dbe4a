package domain

import "time"

type MintState string

const (
	MintStatePending MintState = "pending"
	MintStateMinted  MintState = "minted"
	MintStateFailed  MintState = "failed"
)

// Certificate is the ownership artifact tied one-to-one with a completed
// ledger entry. Failed mints are retried; exhausted ones stay failed and
// are surfaced to operators, never dropped.
type Certificate struct {
	ID            string
	LedgerEntryID string
	OwnerID       string
	MetadataURI   string
	TokenRef      string
	MintState     MintState
	Attempts      int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
