package service

import "time"

// CreateUserInput is the userData argument of createUser.
type CreateUserInput struct {
	Username string
	Email    string
	Password string
}

// CreatePasteInput holds the createPaste arguments with defaults applied.
type CreatePasteInput struct {
	Title    string
	Content  string
	Public   bool
	Burn     bool
	Language string
	Metadata map[string]any
	// ExpiresIn, when positive, sets the paste expiry relative to now.
	ExpiresIn time.Duration
}

// UpdatePasteInput changes the fields that are set.
type UpdatePasteInput struct {
	ID      int64
	Title   *string
	Content *string
}

// LoginInput is a username/password pair.
type LoginInput struct {
	Username string
	Password string
}

// PastesFilter holds the arguments of the pastes query.
type PastesFilter struct {
	Public *bool
	Limit  int
}

// PasteLookup selects one paste by id, or by title when no id is given.
type PasteLookup struct {
	ID    int64
	Title string
}

// BootstrapOptions control startup seeding.
type BootstrapOptions struct {
	AdminUsername string
	AdminPassword string
	InitialMode   string
	SeedTestData  bool
}
