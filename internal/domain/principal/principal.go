// Package principal defines the human actors who may resolve requests.
package principal

import "time"

// Principal is a human registered to act on requests, scoped by project.
type Principal struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Owner     bool      `json:"owner"`    // designated project owner
	Delegate  bool      `json:"delegate"` // granted delegate rights
	CreatedAt time.Time `json:"created_at"`
}

// Project is a routing scope. Principals register against a project; pool
// requests route to every registered principal.
type Project struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Principals []Principal `json:"principals"`
	CreatedAt  time.Time   `json:"created_at"`
}
