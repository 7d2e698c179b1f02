package dto

// MoveRequest places a queue entry at an explicit position.
type MoveRequest struct {
	Position int `json:"position"`
}

// EscalateRequest manually escalates a queue entry.
type EscalateRequest struct {
	Reason string `json:"reason"`
}
