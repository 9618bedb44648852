package auth

import "errors"

var (
	// ErrAuthentication means credentials were rejected or the portal's
	// auth flow changed. Fatal to the run: no cases can be crawled.
	ErrAuthentication = errors.New("portal authentication failed")

	// ErrSessionExpired means the portal bounced an authenticated request
	// back to the login page. Callers refresh the session and resume.
	ErrSessionExpired = errors.New("portal session expired")
)
