package lock

import (
	"encoding/json"
	"time"
)

// Lease is the metadata stored inside a lock file. At most one non-expired
// lease exists per resource, enforced by the atomic create-or-fail publish in
// fsstore, never by an in-memory mutex.
type Lease struct {
	ResourcePath string    `json:"resource_path"`
	HolderID     string    `json:"holder_id"`
	AcquiredAt   time.Time `json:"acquired_at"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Expired reports whether the lease has passed its TTL at the given instant.
func (l *Lease) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}

// Remaining returns the time left on the lease, which may be negative.
func (l *Lease) Remaining(now time.Time) time.Duration {
	return l.ExpiresAt.Sub(now)
}

func (l *Lease) marshal() ([]byte, error) {
	return json.MarshalIndent(l, "", "  ")
}

func parseLease(data []byte) (*Lease, error) {
	var l Lease
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

// ReleaseRequest is the cooperative yield marker a waiter leaves next to a
// lock file instead of forcing a steal. Holders poll for it between discrete
// sub-steps of a long critical section.
type ReleaseRequest struct {
	RequestedBy string    `json:"requested_by"`
	RequestedAt time.Time `json:"requested_at"`
}

func marshalRequest(r ReleaseRequest) ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}
