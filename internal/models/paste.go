package models

import "time"

// DefaultOwner is the account that owns pastes created through the API.
const DefaultOwner = "DVGAUser"

// Paste is a shared text snippet.
type Paste struct {
	ID        int64      `json:"id"`
	Title     string     `json:"title"`
	Content   string     `json:"content"`
	Public    bool       `json:"public"`
	Burn      bool       `json:"burn"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Language  string     `json:"language,omitempty"`
	// Size is the content length in bytes, recomputed on every write.
	Size int `json:"size"`
	// Version starts at 1 and grows by one per content revision.
	Version  int            `json:"version"`
	Metadata map[string]any `json:"metadata,omitempty"`
	OwnerID  *int64         `json:"owner_id,omitempty"`
	UserID   *int64         `json:"user_id,omitempty"`

	IPAddress string `json:"ip_addr"`
	UserAgent string `json:"user_agent"`
}

// SetContent replaces the content and recomputes the size.
func (p *Paste) SetContent(content string) {
	p.Content = content
	p.Size = len(content)
}

// PasteVersion is an immutable snapshot of one paste content version.
type PasteVersion struct {
	ID        int64     `json:"id"`
	PasteID   int64     `json:"paste_id"`
	Content   string    `json:"content"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
}

// PasteFilter narrows paste listings.
type PasteFilter struct {
	// Public filters by visibility when set.
	Public *bool
	// Limit caps the result when positive.
	Limit int
}
