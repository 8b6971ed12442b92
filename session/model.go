package session

import "time"

// Credential is the persisted access/refresh token pair.
//
// Credential values are immutable snapshots; writes go through [Store.Set].
type Credential struct {
	AccessToken  string
	RefreshToken string

	// SavedAt is when the pair was written. Zero for pairs that were never
	// persisted.
	SavedAt time.Time
}
