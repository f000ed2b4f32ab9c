// Package lock provides per-key exclusive leases with expiry. Acquisition
// is non-blocking and expiry is enforced lazily on access; there is no
// background sweep, so an expired lease persists until the next lock
// operation touches its key.
package lock
