// Package spec stores named parameter bundles that scheduled jobs
// reference by id. A job carries only the specification id; the bundle is
// resolved at fire time, so editing a specification changes the next
// firing without touching the job.
package spec

import "time"

// Specification is a named bundle of work parameters, e.g. the url list a
// news spider crawls. Jobs hold a weak reference to it by id.
type Specification struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Params map[string]any `json:"params"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
