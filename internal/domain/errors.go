package domain

import "errors"

var (
	ErrAuthRequired      = errors.New("authentication required")
	ErrUserNotFound      = errors.New("user not found")
	ErrRecipientNotFound = errors.New("recipient not found")
	ErrEmptyContent      = errors.New("empty message content")
	ErrContentTooLong    = errors.New("message content too long")
	ErrMessageNotFound   = errors.New("message not found")
	ErrNotReceiver       = errors.New("only the receiver may mark a message read")

	ErrCallerBusy            = errors.New("caller already has an active call")
	ErrCalleeUnreachable     = errors.New("callee has no live connections")
	ErrInvalidCallTransition = errors.New("invalid call state transition")
)
