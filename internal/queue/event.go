// Package queue defines message payloads exchanged over the message broker
// and the background consumer that acts on them.
package queue

// VerificationEmailEvent is published after a successful registration.  It
// carries everything the consumer needs to send the confirmation email
// without querying the database.
type VerificationEmailEvent struct {
	Email       string `json:"email"`
	Name        string `json:"name"`
	Token       string `json:"token"`
	RequestedAt string `json:"requested_at"`
}
