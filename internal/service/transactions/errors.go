package transactions

import "errors"

var (
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrNotAwaitingPayment  = errors.New("transaction is not waiting for payment")
	ErrPaymentDeadline     = errors.New("payment deadline has passed")
	ErrInvalidProof        = errors.New("payment proof must be an http(s) URL")
)
