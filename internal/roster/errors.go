package roster

import "errors"

// All roster errors are locally recoverable: callers surface them to the UI
// and carry on.
var (
	ErrDuplicateContact     = errors.New("contact already exists")
	ErrSelfAddition         = errors.New("cannot add yourself as a contact")
	ErrUnknownContact       = errors.New("unknown contact")
	ErrUnknownPersona       = errors.New("unknown persona")
	ErrLastPersonaProtected = errors.New("cannot delete a contact's only persona")
)
