// Package syscmd wraps the external macOS utilities recoverd shells out to:
// tmutil, mount_apfs, umount, diskutil, mdfind, mdls. Every short-lived
// command runs with a bounded timeout; privileged commands pipe a session
// credential to sudo -S, falling back to sudo -n when no credential is held.
package syscmd

import "sync"

// Credentials holds the admin password for the current session. It is an
// explicit object passed to whoever needs it rather than package state, so
// teardown is a single Clear and nothing can leak across sessions.
// The password is never logged.
type Credentials struct {
	mu       sync.Mutex
	password string
	held     bool
}

// NewCredentials returns an empty credential store.
func NewCredentials() *Credentials {
	return &Credentials{}
}

// Set stores the session password.
func (c *Credentials) Set(password string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.password = password
	c.held = true
}

// Get returns the stored password and whether one is held.
func (c *Credentials) Get() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.password, c.held
}

// Held reports whether a password is stored without exposing it.
func (c *Credentials) Held() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.held
}

// Clear wipes the stored password.
func (c *Credentials) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.password = ""
	c.held = false
}
