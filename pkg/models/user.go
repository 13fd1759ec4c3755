package models

import "time"

// User is an authenticated operator of the agent.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OTP is a one-time passcode issued for passwordless login, consumed at
// most once before or at ExpiresAt.
type OTP struct {
	ID         string     `json:"id"`
	Email      string     `json:"email"`
	Code       string     `json:"code"`
	ExpiresAt  time.Time  `json:"expires_at"`
	ConsumedAt *time.Time `json:"consumed_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// GitHubIntegration links a user to a GitHub repository the github_* tool
// family operates against, with a per-user personal-access token.
type GitHubIntegration struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	RepoURL        string    `json:"repo_url"`
	Branch         string    `json:"branch"`
	EncryptedToken string    `json:"encrypted_token"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
