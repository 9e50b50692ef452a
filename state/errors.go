package state

import "errors"

var (
	ErrUserNotFound          = errors.New("state: user not found")
	ErrLocalIDExists         = errors.New("state: local id already exists")
	ErrEmailExists           = errors.New("state: email already in use")
	ErrPhoneExists           = errors.New("state: phone number already in use")
	ErrProviderLinked        = errors.New("state: federated identity already linked to another user")
	ErrDuplicateEnrollmentID = errors.New("state: duplicate mfa enrollment id")
	ErrValidSinceRegressed   = errors.New("state: validSince may not move backwards")
	ErrTenantNotFound        = errors.New("state: tenant not found")
	ErrUsersPresent          = errors.New("state: project still has users")
	ErrDuplicateEmails       = errors.New("state: accounts share an email")
)
