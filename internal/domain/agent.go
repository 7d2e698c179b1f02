package domain

import "time"

// AgentAccount is a staff login able to act on tickets. Roles feed the
// workflow engine's role checks.
type AgentAccount struct {
	ID           string
	TenantID     string
	Email        string
	DisplayName  string
	PasswordHash string
	Roles        []string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Actor converts the account into the principal shape used by the
// workflow engine.
func (a *AgentAccount) Actor() Actor {
	return Actor{ID: a.ID, Name: a.DisplayName, Roles: a.Roles}
}
