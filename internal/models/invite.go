package models

import "time"

// ConsumedInvite records a token that has been used to claim a profile. Only the
// token hash is stored.
type ConsumedInvite struct {
	TokenHash        string    `db:"token_hash"`
	StudentProfileID string    `db:"student_profile_id"`
	ClaimedBy        string    `db:"claimed_by"`
	ClaimedAt        time.Time `db:"claimed_at"`
}
