package models

import "errors"

var (
	// ErrAccountNotFound means no cash account row matches an account number.
	ErrAccountNotFound = errors.New("account not found")

	// ErrUserNotFound means no customer matches a username.
	ErrUserNotFound = errors.New("user not found")

	ErrUserExists = errors.New("user already exists")

	// ErrNoPendingTransfer means confirm was called with nothing held for the session.
	ErrNoPendingTransfer = errors.New("no pending transfer")

	// ErrAtomicCommitFailure wraps any fault inside the transfer's atomic unit.
	ErrAtomicCommitFailure = errors.New("transfer commit failed")

	ErrInvalidTransfer = errors.New("invalid transfer")

	// ErrNotAccountOwner is only returned when the ownership policy is enabled.
	ErrNotAccountOwner = errors.New("source account does not belong to user")
)
