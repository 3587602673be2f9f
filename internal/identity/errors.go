package identity

import "errors"

var (
	ErrNotFound            = errors.New("identity: not found")
	ErrDuplicateInvitation = errors.New("identity: duplicate invitation")
	ErrInvalidInvitation   = errors.New("identity: invalid invitation")
	ErrEmailMismatch       = errors.New("identity: email mismatch")
	ErrNotOwner            = errors.New("identity: not the share owner")
	ErrNotAuthorized       = errors.New("identity: not authorized")
	ErrTargetNotFound      = errors.New("identity: target account not found")
	ErrReadOnly            = errors.New("identity: read-only violation")
	ErrInvalidInput        = errors.New("identity: invalid input")
)
