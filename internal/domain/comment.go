package domain

import "time"

// Comment is a note on a ticket. System comments are authored by
// workflow actions rather than a person.
type Comment struct {
	ID        string
	TicketID  string
	AuthorID  *string
	Body      string
	IsSystem  bool
	CreatedAt time.Time
}
