package models

import "time"

// Participant is an active chat user, identified only by name.
type Participant struct {
	Name          string `json:"name"`
	LastHeartbeat int64  `json:"lastStatus"` // Unix ms
}

// LastSeen returns the last heartbeat as a time.
func (p Participant) LastSeen() time.Time {
	return time.UnixMilli(p.LastHeartbeat)
}

// StaleAt reports whether the participant has been silent for longer than
// threshold at now.
func (p Participant) StaleAt(now time.Time, threshold time.Duration) bool {
	return now.UnixMilli()-p.LastHeartbeat > threshold.Milliseconds()
}
