// Package supplier talks to the upstream catalog API: login for a bearer
// token, then download and decode the full product feed.
package supplier

import "errors"

var (
	// ErrMissingCredentials means one of supplier id, username or password is unset
	ErrMissingCredentials = errors.New("supplier: missing credentials")
	// ErrInvalidSupplierID means the configured supplier id is not an integer
	ErrInvalidSupplierID = errors.New("supplier: id is not a valid integer")
	// ErrLoginFailed means the login endpoint answered with a non-2xx status or an empty token
	ErrLoginFailed = errors.New("supplier: login failed")
	// ErrCatalogRequestFailed means the catalog could not be downloaded or was not a JSON array
	ErrCatalogRequestFailed = errors.New("supplier: catalog request failed")
)

// maxErrorBodyBytes bounds how much of an error response ends up in the logs
const maxErrorBodyBytes = 2 << 10
