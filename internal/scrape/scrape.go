// Package scrape defines the operation contract the session core runs against
// an automation resource, and a generic rod-backed implementation. Site
// heuristics are deliberately thin; an operator can swap Operations for a
// site-specific implementation.
package scrape

import (
	"context"
	"errors"
	"time"

	"github.com/PhamornOhm/tiktok-faceboo-scrap/internal/driver"
)

// ErrSessionLost signals that the backing logical session (login state)
// became invalid mid-job. It aborts the remaining batch and is surfaced
// distinctly so the caller knows re-authentication is required.
var ErrSessionLost = errors.New("scrape: session lost")

// Target identifies one group/feed to collect from.
type Target struct {
	URL    string `json:"url"`
	Name   string `json:"name,omitempty"`
	ChatID string `json:"chat_id,omitempty"`
}

// Post is one collected item.
type Post struct {
	Text        string    `json:"text"`
	Link        string    `json:"link,omitempty"`
	CollectedAt time.Time `json:"collected_at"`
}

// GroupResult summarizes the collection from one target.
type GroupResult struct {
	GroupURL   string `json:"group_url"`
	GroupName  string `json:"group_name,omitempty"`
	ChatID     string `json:"chat_id,omitempty"`
	PostsCount int    `json:"posts_count"`
	Posts      []Post `json:"posts"`
}

// Credentials for EnsureLogin.
type Credentials struct {
	Identity string
	Password string
}

// Operations is the external operation contract consumed by the core.
// Every method runs against a resource whose session gate is held by the
// caller; implementations must not retain the resource.
type Operations interface {
	// IsLoggedIn probes whether the resource still carries a valid login.
	IsLoggedIn(ctx context.Context, res driver.Resource) (bool, error)
	// EnsureLogin logs the resource in if needed, returning the final state.
	EnsureLogin(ctx context.Context, res driver.Resource, creds Credentials) (bool, error)
	// CollectPosts visits each target and collects up to numPosts items.
	// Returns ErrSessionLost (possibly wrapped) when the login drops mid-run,
	// short-circuiting the remaining targets.
	CollectPosts(ctx context.Context, res driver.Resource, targets []Target, numPosts int) ([]GroupResult, error)
	// Warm exercises the resource to keep its logical session alive.
	Warm(ctx context.Context, res driver.Resource) error
}
