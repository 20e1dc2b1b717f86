package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransferState string

const (
	// Pending indicates the transfer is held for confirmation.
	Pending TransferState = "PENDING"

	// Committed indicates the transfer was applied to the ledger.
	Committed TransferState = "COMMITTED"

	// Discarded is reached when the holder forgets a pending transfer.
	// Nothing in the engine produces it directly.
	Discarded TransferState = "DISCARDED"
)

// Transfer is a proposed or committed movement of money between cash accounts.
// It is also the payload kept by the pending-transfer holder.
type Transfer struct {
	ID          string          `json:"id"`
	FromAccount string          `json:"from_account"`
	ToAccount   string          `json:"to_account"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Fee         decimal.Decimal `json:"fee"`
	Username    string          `json:"username"`
	Date        time.Time       `json:"date"`
}

// TransferRequest carries the caller-supplied fields of a proposal.
// Fee is a rate or a flat fee depending on the configured fee mode.
type TransferRequest struct {
	FromAccount    string           `json:"from_account" validate:"required,max=80"`
	ToAccount      string           `json:"to_account" validate:"required,max=80"`
	Description    string           `json:"description" validate:"max=80"`
	Amount         decimal.Decimal  `json:"amount" validate:"nonzero_decimal"`
	Fee            *decimal.Decimal `json:"fee,omitempty"`
	RequiresReview *bool            `json:"requires_review,omitempty"`
}

// TransferResult is what propose and confirm hand back to callers.
type TransferResult struct {
	State    TransferState    `json:"state"`
	Transfer *Transfer        `json:"transfer"`
	Activity []ActivityRecord `json:"activity,omitempty"`
}

// TransferCommitted is published after a transfer's atomic unit commits.
type TransferCommitted struct {
	EventID     string           `json:"event_id"`
	Transfer    Transfer         `json:"transfer"`
	Activity    []ActivityRecord `json:"activity"`
	CommittedAt time.Time        `json:"committed_at"`
}

type ConfirmRequest struct {
	Action string `json:"action" validate:"required"`
}
