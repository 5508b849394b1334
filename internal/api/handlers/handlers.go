// Package handlers contains the HTTP handlers for the scraper API.
package handlers

import (
	"context"
	"errors"
	"log/slog"

	"github.com/danielgtaylor/huma/v2"

	"github.com/PhamornOhm/tiktok-faceboo-scrap/internal/driver"
	"github.com/PhamornOhm/tiktok-faceboo-scrap/internal/jobs"
	"github.com/PhamornOhm/tiktok-faceboo-scrap/internal/journal"
	"github.com/PhamornOhm/tiktok-faceboo-scrap/internal/scrape"
	"github.com/PhamornOhm/tiktok-faceboo-scrap/internal/service"
	"github.com/PhamornOhm/tiktok-faceboo-scrap/internal/session"
	"github.com/PhamornOhm/tiktok-faceboo-scrap/internal/version"
)

// Handler bundles the service dependencies for all endpoints.
type Handler struct {
	svc    *service.Scraper
	logger *slog.Logger
}

// New creates the API handler.
func New(svc *service.Scraper, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, logger: logger}
}

// mapError converts service errors into HTTP status errors.
func mapError(err error) error {
	switch {
	case errors.Is(err, scrape.ErrSessionLost):
		return huma.Error409Conflict("session lost: re-authentication required", err)
	case errors.Is(err, session.ErrSessionBusy):
		return huma.Error409Conflict("session is running a job; retry later or use force", err)
	case errors.Is(err, service.ErrProfileBusy):
		return huma.Error409Conflict("profile is in use by a running session; retry once the job finishes or use force", err)
	case errors.Is(err, service.ErrSessionOpen):
		return huma.Error409Conflict("identity has an open session; use force to close it first", err)
	case errors.Is(err, service.ErrNoSession):
		return huma.Error404NotFound("no live session for identity", err)
	case errors.Is(err, service.ErrNoResource):
		return huma.Error409Conflict("session has no open browser to snapshot", err)
	case errors.Is(err, session.ErrManagerClosed):
		return huma.Error503ServiceUnavailable("service is shutting down", err)
	case errors.Is(err, driver.ErrResourceUnavailable):
		return huma.Error503ServiceUnavailable("browser could not be started", err)
	default:
		return huma.Error500InternalServerError("internal error", err)
	}
}

// GroupInput identifies one group/feed to collect from.
type GroupInput struct {
	URL    string `json:"url" minLength:"1" example:"https://www.facebook.com/groups/123" doc:"Group or feed URL"`
	Name   string `json:"name,omitempty" example:"buy-sell-bangkok" doc:"Human-readable label carried through to results"`
	ChatID string `json:"chat_id,omitempty" doc:"Opaque routing key carried through to results"`
}

func toTargets(groups []GroupInput) []scrape.Target {
	targets := make([]scrape.Target, len(groups))
	for i, g := range groups {
		targets[i] = scrape.Target{URL: g.URL, Name: g.Name, ChatID: g.ChatID}
	}
	return targets
}

// HealthOutput is the health check response.
type HealthOutput struct {
	Body struct {
		Status   string `json:"status" example:"healthy"`
		Version  string `json:"version"`
		Sessions int    `json:"sessions" doc:"Number of live sessions"`
	}
}

// Health reports service liveness and the live session count.
func (h *Handler) Health(ctx context.Context, _ *struct{}) (*HealthOutput, error) {
	out := &HealthOutput{}
	out.Body.Status = "healthy"
	out.Body.Version = version.Get().Version
	out.Body.Sessions = len(h.svc.Sessions())
	return out, nil
}

// CreateProfileInput requests a persistent profile for an identity.
type CreateProfileInput struct {
	Body struct {
		User     string `json:"user" minLength:"1" example:"alice@example.com" doc:"Identity; the part before '@' becomes the profile name"`
		Password string `json:"password,omitempty" doc:"If set, log in and persist the session into the profile"`
	}
}

// CreateProfileOutput reports the created profile.
type CreateProfileOutput struct {
	Body struct {
		OK         bool   `json:"ok"`
		User       string `json:"user"`
		LoggedIn   bool   `json:"logged_in"`
		ProfileDir string `json:"profile_dir"`
	}
}

// CreateProfile opens a browser on the identity's profile, logging in when
// credentials are supplied, so later jobs start from a warm profile.
func (h *Handler) CreateProfile(ctx context.Context, input *CreateProfileInput) (*CreateProfileOutput, error) {
	loggedIn, profileDir, err := h.svc.CreateProfile(ctx, input.Body.User, input.Body.Password)
	if err != nil {
		return nil, mapError(err)
	}
	out := &CreateProfileOutput{}
	out.Body.OK = true
	out.Body.User = input.Body.User
	out.Body.LoggedIn = loggedIn
	out.Body.ProfileDir = profileDir
	return out, nil
}

// ScrapePostsInput is a synchronous posts-collection request.
type ScrapePostsInput struct {
	Body struct {
		User     string       `json:"user" minLength:"1" example:"alice@example.com"`
		Password string       `json:"password,omitempty" doc:"Used only if the profile's login has lapsed"`
		Groups   []GroupInput `json:"groups" minItems:"1"`
		NumPosts int          `json:"num_posts,omitempty" default:"10" minimum:"1" maximum:"100" doc:"Posts to collect per group"`
	}
}

// ScrapePostsOutput carries the collection results.
type ScrapePostsOutput struct {
	Body service.ScrapeResult
}

// ScrapePosts collects posts synchronously, holding the identity's session
// for the whole run. Concurrent requests for one identity are served in
// arrival order.
func (h *Handler) ScrapePosts(ctx context.Context, input *ScrapePostsInput) (*ScrapePostsOutput, error) {
	result, err := h.svc.ScrapePosts(ctx, service.ScrapeRequest{
		Identity: input.Body.User,
		Password: input.Body.Password,
		Targets:  toTargets(input.Body.Groups),
		NumPosts: numPostsOrDefault(input.Body.NumPosts),
	})
	if err != nil {
		return nil, mapError(err)
	}
	return &ScrapePostsOutput{Body: *result}, nil
}

// ScrapePostsWebhookInput is an asynchronous posts-collection request.
type ScrapePostsWebhookInput struct {
	Body struct {
		User        string       `json:"user" minLength:"1"`
		Password    string       `json:"password,omitempty"`
		Groups      []GroupInput `json:"groups" minItems:"1"`
		NumPosts    int          `json:"num_posts,omitempty" default:"10" minimum:"1" maximum:"100"`
		CallbackURL string       `json:"callback_url" format:"uri" example:"https://my-app.com/hooks/scrape-done" doc:"Receives one POST with the outcome; delivery is a single attempt"`
	}
}

// ScrapePostsWebhookOutput is the immediate ticket for an async request.
type ScrapePostsWebhookOutput struct {
	Body jobs.Ticket
}

// ScrapePostsWebhook accepts a collection job for background execution and
// returns its queue position immediately.
func (h *Handler) ScrapePostsWebhook(ctx context.Context, input *ScrapePostsWebhookInput) (*ScrapePostsWebhookOutput, error) {
	ticket, err := h.svc.ScrapePostsAsync(service.ScrapeRequest{
		Identity: input.Body.User,
		Password: input.Body.Password,
		Targets:  toTargets(input.Body.Groups),
		NumPosts: numPostsOrDefault(input.Body.NumPosts),
	}, input.Body.CallbackURL)
	if err != nil {
		return nil, mapError(err)
	}
	return &ScrapePostsWebhookOutput{Body: ticket}, nil
}

func numPostsOrDefault(n int) int {
	if n <= 0 {
		return 10
	}
	return n
}

// SessionsOutput lists live sessions.
type SessionsOutput struct {
	Body struct {
		Count    int            `json:"count"`
		Sessions []session.Info `json:"sessions"`
	}
}

// Sessions lists the live sessions with their idle and lock state.
func (h *Handler) Sessions(ctx context.Context, _ *struct{}) (*SessionsOutput, error) {
	infos := h.svc.Sessions()
	out := &SessionsOutput{}
	out.Body.Count = len(infos)
	out.Body.Sessions = infos
	return out, nil
}

// CloseSessionInput requests closing one identity's session.
type CloseSessionInput struct {
	Body struct {
		User  string `json:"user" minLength:"1"`
		Force bool   `json:"force,omitempty" doc:"Close even if a job is running; the job will fail"`
	}
}

// CloseSessionOutput confirms the close.
type CloseSessionOutput struct {
	Body struct {
		OK   bool   `json:"ok"`
		User string `json:"user"`
	}
}

// CloseSession closes the session (and its browser) for one identity.
// Closing an identity with no session succeeds.
func (h *Handler) CloseSession(ctx context.Context, input *CloseSessionInput) (*CloseSessionOutput, error) {
	if err := h.svc.CloseSession(input.Body.User, input.Body.Force); err != nil {
		return nil, mapError(err)
	}
	out := &CloseSessionOutput{}
	out.Body.OK = true
	out.Body.User = input.Body.User
	return out, nil
}

// ProfilesOutput lists on-disk browser profiles.
type ProfilesOutput struct {
	Body struct {
		Count    int                   `json:"count"`
		Profiles []service.ProfileInfo `json:"profiles"`
	}
}

// Profiles lists every profile on disk, flagging those with a live session.
func (h *Handler) Profiles(ctx context.Context, _ *struct{}) (*ProfilesOutput, error) {
	profiles, err := h.svc.Profiles()
	if err != nil {
		return nil, mapError(err)
	}
	out := &ProfilesOutput{}
	out.Body.Count = len(profiles)
	out.Body.Profiles = profiles
	return out, nil
}

// DeleteProfileInput requests removal of one identity's profile.
type DeleteProfileInput struct {
	Body struct {
		User  string `json:"user" minLength:"1"`
		Force bool   `json:"force,omitempty" doc:"Delete even if a session is running the profile"`
	}
}

// DeleteProfileOutput confirms the delete.
type DeleteProfileOutput struct {
	Body struct {
		OK   bool   `json:"ok"`
		User string `json:"user"`
	}
}

// DeleteProfile closes the identity's session and removes its profile from
// disk. A running session blocks the delete unless force is set.
func (h *Handler) DeleteProfile(ctx context.Context, input *DeleteProfileInput) (*DeleteProfileOutput, error) {
	if err := h.svc.DeleteProfile(input.Body.User, input.Body.Force); err != nil {
		return nil, mapError(err)
	}
	out := &DeleteProfileOutput{}
	out.Body.OK = true
	out.Body.User = input.Body.User
	return out, nil
}

// RandomScrapeInput requests an on-demand warm job.
type RandomScrapeInput struct {
	Body struct {
		User string `json:"user" minLength:"1"`
	}
}

// RandomScrapeOutput reports whether the warm job ran.
type RandomScrapeOutput struct {
	Body struct {
		OK        bool    `json:"ok"`
		Reason    string  `json:"reason,omitempty" example:"cooldown"`
		NextInSec float64 `json:"next_in_sec,omitempty" doc:"Seconds until the next warm job is allowed"`
	}
}

// RandomScrape runs light keep-alive traffic on the identity's session. A
// request inside the cooldown window returns ok=false with the remaining
// wait instead of queuing.
func (h *Handler) RandomScrape(ctx context.Context, input *RandomScrapeInput) (*RandomScrapeOutput, error) {
	result := h.svc.RandomScrape(ctx, input.Body.User)
	if result.Err != nil {
		return nil, mapError(result.Err)
	}
	out := &RandomScrapeOutput{}
	if result.Ran {
		out.Body.OK = true
		return out, nil
	}
	out.Body.Reason = result.Reason
	out.Body.NextInSec = result.Remaining.Seconds()
	return out, nil
}

// GetTaskInput identifies one journaled task.
type GetTaskInput struct {
	TaskID string `path:"taskID" doc:"Task ULID from an async submission"`
}

// GetTaskOutput is the journaled task state.
type GetTaskOutput struct {
	Body journal.Entry
}

// GetTask returns the journaled state of an async task.
func (h *Handler) GetTask(ctx context.Context, input *GetTaskInput) (*GetTaskOutput, error) {
	e, err := h.svc.Task(input.TaskID)
	if err != nil {
		return nil, mapError(err)
	}
	if e == nil {
		return nil, huma.Error404NotFound("unknown task")
	}
	return &GetTaskOutput{Body: *e}, nil
}

// StatusSnapshotInput identifies the live session to screenshot.
type StatusSnapshotInput struct {
	Body struct {
		User string `json:"user" minLength:"1" example:"alice@example.com"`
	}
}

// StatusSnapshotOutput carries the captured page as raw PNG bytes.
type StatusSnapshotOutput struct {
	ContentType string `header:"Content-Type"`
	Body        []byte
}

// StatusSnapshot screenshots the identity's live browser page. 404 when no
// session exists, 409 when the session has no open browser.
func (h *Handler) StatusSnapshot(ctx context.Context, input *StatusSnapshotInput) (*StatusSnapshotOutput, error) {
	img, err := h.svc.StatusSnapshot(ctx, input.Body.User)
	if err != nil {
		return nil, mapError(err)
	}
	return &StatusSnapshotOutput{ContentType: "image/png", Body: img}, nil
}

// SnapshotOutput is a point-in-time view of the whole service.
type SnapshotOutput struct {
	Body struct {
		Sessions    []session.Info   `json:"sessions"`
		RecentTasks []*journal.Entry `json:"recent_tasks"`
	}
}

// Snapshot returns live sessions plus the latest journaled tasks.
func (h *Handler) Snapshot(ctx context.Context, _ *struct{}) (*SnapshotOutput, error) {
	tasks, err := h.svc.RecentTasks(20)
	if err != nil {
		return nil, mapError(err)
	}
	out := &SnapshotOutput{}
	out.Body.Sessions = h.svc.Sessions()
	out.Body.RecentTasks = tasks
	return out, nil
}
