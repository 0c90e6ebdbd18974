package server

import (
	"sort"
	"sync"
)

// Directory tracks which users are logged in. A user may hold several
// sessions; the name is listed until the last one ends.
type Directory struct {
	mu    sync.RWMutex
	users map[string]int
}

// NewDirectory creates an empty user directory.
func NewDirectory() *Directory {
	return &Directory{users: make(map[string]int)}
}

// Add records one more session for username.
func (d *Directory) Add(username string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[username]++
}

// Remove drops one session for username.
func (d *Directory) Remove(username string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch n := d.users[username]; {
	case n > 1:
		d.users[username] = n - 1
	case n == 1:
		delete(d.users, username)
	}
}

// List returns the logged-in usernames in sorted order.
func (d *Directory) List() []string {
	d.mu.RLock()
	names := make([]string, 0, len(d.users))
	for name := range d.users {
		names = append(names, name)
	}
	d.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Count returns the number of distinct logged-in users.
func (d *Directory) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.users)
}
