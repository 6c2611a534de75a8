// Package authz defines the error taxonomy shared by the authorization core.
package authz

import "errors"

var (
	// ErrNotFound indicates the principal, role, permission or assignment does not exist.
	ErrNotFound = errors.New("authz: not found")
	// ErrConflict indicates a duplicate active assignment or grant.
	ErrConflict = errors.New("authz: conflict")
	// ErrPrivilege indicates the acting principal's rank is not strictly above the target role.
	ErrPrivilege = errors.New("authz: insufficient privilege")
	// ErrInvalidState indicates the target is inactive or soft-deleted.
	ErrInvalidState = errors.New("authz: invalid state")
	// ErrValidation indicates malformed input such as a non-future expiry or unknown tag.
	ErrValidation = errors.New("authz: validation failed")
	// ErrFatal indicates an attempted mutation of an immutable identifier.
	ErrFatal = errors.New("authz: fatal")
)
