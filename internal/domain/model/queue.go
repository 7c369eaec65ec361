package model

import "time"

// Delivery is a leased queue entry handed to a worker.
type Delivery struct {
	ID             string     `json:"id"`
	Request        JobRequest `json:"request"`
	Attempt        int        `json:"attempt"`
	LeaseToken     string     `json:"lease_token"`
	LeaseExpiresAt time.Time  `json:"lease_expires_at"`
}

// QueueEntry is the serialized form of a pending queue item.
type QueueEntry struct {
	ID          string     `json:"id"`
	Request     JobRequest `json:"request"`
	Attempt     int        `json:"attempt"`
	EnqueuedAt  time.Time  `json:"enqueued_at"`
	AvailableAt time.Time  `json:"available_at"`
}

// RequeueStats reports the outcome of a stalled-lease sweep.
type RequeueStats struct {
	Requeued     int
	DeadLettered []string
}

// QueueStats reports queue depth by state.
type QueueStats struct {
	Pending int `json:"pending"`
	Delayed int `json:"delayed"`
	Leased  int `json:"leased"`
}
