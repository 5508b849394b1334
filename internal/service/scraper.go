// Package service orchestrates scrape operations over the session core: it
// owns the sync and async entry points the HTTP handlers call.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/PhamornOhm/tiktok-faceboo-scrap/internal/config"
	"github.com/PhamornOhm/tiktok-faceboo-scrap/internal/driver"
	"github.com/PhamornOhm/tiktok-faceboo-scrap/internal/identity"
	"github.com/PhamornOhm/tiktok-faceboo-scrap/internal/jobs"
	"github.com/PhamornOhm/tiktok-faceboo-scrap/internal/journal"
	"github.com/PhamornOhm/tiktok-faceboo-scrap/internal/scrape"
	"github.com/PhamornOhm/tiktok-faceboo-scrap/internal/session"
)

var (
	// ErrProfileBusy is returned when a non-forced profile delete targets
	// an identity whose session is running a job right now.
	ErrProfileBusy = errors.New("profile is in use by a running session")
	// ErrSessionOpen is returned when a non-forced delete targets an
	// identity that still has an open (idle) session.
	ErrSessionOpen = errors.New("identity has an open session; use force to close it first")
	// ErrNoSession is returned when a status request targets an identity
	// with no live session.
	ErrNoSession = errors.New("no live session for identity")
	// ErrNoResource is returned when a status request reaches a live
	// session whose browser is not open.
	ErrNoResource = errors.New("session has no open browser")
)

// ScrapeRequest is one posts-collection request.
type ScrapeRequest struct {
	Identity string
	Password string
	Targets  []scrape.Target
	NumPosts int
}

// ScrapeResult is the outcome of a posts-collection run.
type ScrapeResult struct {
	OK         bool                 `json:"ok"`
	User       string               `json:"user"`
	LoggedIn   bool                 `json:"logged_in"`
	Groups     []scrape.GroupResult `json:"groups"`
	TotalPosts int                  `json:"total_posts"`
	OutputFile string               `json:"output_file,omitempty"`
	TookMs     int64                `json:"took_ms"`
}

// ProfileInfo describes one on-disk browser profile.
type ProfileInfo struct {
	IdentitySafe string `json:"identity_safe"`
	Path         string `json:"path"`
	HasData      bool   `json:"has_data"`
	LiveSession  bool   `json:"live_session"`
}

// Scraper wires the session core, the scrape operations and async dispatch.
type Scraper struct {
	cfg        *config.Config
	mgr        *session.Manager
	ops        scrape.Operations
	dispatcher *jobs.Dispatcher
	journal    *journal.Store
	logger     *slog.Logger
}

// NewScraper creates the service. journal may be nil.
func NewScraper(cfg *config.Config, mgr *session.Manager, ops scrape.Operations, dispatcher *jobs.Dispatcher, store *journal.Store, logger *slog.Logger) *Scraper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scraper{
		cfg:        cfg,
		mgr:        mgr,
		ops:        ops,
		dispatcher: dispatcher,
		journal:    store,
		logger:     logger,
	}
}

// CreateProfile opens (or reuses) the identity's browser so its persistent
// profile exists on disk, logging in when credentials are supplied.
func (sc *Scraper) CreateProfile(ctx context.Context, rawIdentity, password string) (loggedIn bool, profileDir string, err error) {
	err = sc.mgr.RunForUser(ctx, rawIdentity, func(ctx context.Context, s *session.Session) error {
		res, err := s.EnsureResource(ctx, sc.mgr.Driver())
		if err != nil {
			return err
		}
		profileDir = s.ProfileDir
		if password == "" {
			loggedIn, err = sc.ops.IsLoggedIn(ctx, res)
			return err
		}
		loggedIn, err = sc.ops.EnsureLogin(ctx, res, scrape.Credentials{Identity: rawIdentity, Password: password})
		return err
	})
	return loggedIn, profileDir, err
}

// ScrapePosts collects posts from the request's targets synchronously,
// holding the identity's gate for the whole run.
func (sc *Scraper) ScrapePosts(ctx context.Context, req ScrapeRequest) (*ScrapeResult, error) {
	var out *ScrapeResult
	err := sc.mgr.RunForUser(ctx, req.Identity, func(ctx context.Context, s *session.Session) error {
		var err error
		out, err = sc.scrapeUnderGate(ctx, s, req)
		return err
	})
	return out, err
}

// ScrapePostsAsync accepts the request for background execution and returns
// its ticket immediately. The outcome goes to callbackURL, if any.
func (sc *Scraper) ScrapePostsAsync(req ScrapeRequest, callbackURL string) (jobs.Ticket, error) {
	return sc.dispatcher.Submit(req.Identity, "scrape_posts", callbackURL, func(ctx context.Context, s *session.Session) (any, error) {
		return sc.scrapeUnderGate(ctx, s, req)
	})
}

// scrapeUnderGate is the shared job body: login check, collection, and a
// best-effort result file in the identity's output directory.
func (sc *Scraper) scrapeUnderGate(ctx context.Context, s *session.Session, req ScrapeRequest) (*ScrapeResult, error) {
	start := time.Now()
	res, err := s.EnsureResource(ctx, sc.mgr.Driver())
	if err != nil {
		return nil, err
	}

	var loggedIn bool
	if req.Password == "" {
		loggedIn, err = sc.ops.IsLoggedIn(ctx, res)
	} else {
		loggedIn, err = sc.ops.EnsureLogin(ctx, res, scrape.Credentials{Identity: req.Identity, Password: req.Password})
	}
	if err != nil {
		return nil, err
	}
	if !loggedIn {
		return nil, fmt.Errorf("%w: not logged in and no usable credentials", scrape.ErrSessionLost)
	}

	groups, err := sc.ops.CollectPosts(ctx, res, req.Targets, req.NumPosts)
	if err != nil {
		if errors.Is(err, scrape.ErrSessionLost) {
			sc.captureEvidence(ctx, s, res)
		}
		return nil, err
	}

	result := &ScrapeResult{
		OK:       true,
		User:     s.IdentitySafe,
		LoggedIn: true,
		Groups:   groups,
	}
	for _, g := range groups {
		result.TotalPosts += g.PostsCount
	}
	result.OutputFile = sc.writeOutput(s, result)
	result.TookMs = time.Since(start).Milliseconds()

	sc.logger.Info("scrape completed",
		"identity", s.IdentitySafe,
		"groups", len(groups),
		"posts", result.TotalPosts,
		"took", time.Since(start))
	return result, nil
}

// screenshotter is the optional capability a resource exposes for capturing
// its current page.
type screenshotter interface {
	Screenshot(ctx context.Context) ([]byte, error)
}

// StatusSnapshot captures the current page of the identity's live browser
// as PNG. The gate is not taken: a snapshot is a read-only peek and must
// not queue behind a long-running job.
func (sc *Scraper) StatusSnapshot(ctx context.Context, rawIdentity string) ([]byte, error) {
	s, ok := sc.mgr.Lookup(rawIdentity)
	if !ok {
		return nil, ErrNoSession
	}
	res := s.Resource()
	if res == nil {
		return nil, ErrNoResource
	}
	snap, ok := res.(screenshotter)
	if !ok {
		return nil, ErrNoResource
	}
	img, err := snap.Screenshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", s.IdentitySafe, err)
	}
	return img, nil
}

// captureEvidence saves a screenshot of the page that dropped the login, so
// an operator can tell a checkpoint from a logout. Best effort.
func (sc *Scraper) captureEvidence(ctx context.Context, s *session.Session, res driver.Resource) {
	snap, ok := res.(screenshotter)
	if !ok {
		return
	}
	img, err := snap.Screenshot(ctx)
	if err != nil {
		sc.logger.Warn("failed to capture session-lost screenshot", "identity", s.IdentitySafe, "error", err)
		return
	}
	name := fmt.Sprintf("session_lost_%s.png", time.Now().UTC().Format("20060102T150405Z"))
	path := filepath.Join(s.OutputDir, name)
	if err := os.WriteFile(path, img, 0o644); err != nil {
		sc.logger.Warn("failed to write session-lost screenshot", "identity", s.IdentitySafe, "error", err)
		return
	}
	sc.logger.Info("session-lost screenshot saved", "identity", s.IdentitySafe, "path", path)
}

// writeOutput drops the result JSON into the identity's output directory.
// Failures are logged, never fatal: the caller already has the data.
func (sc *Scraper) writeOutput(s *session.Session, result *ScrapeResult) string {
	name := fmt.Sprintf("posts_%s.json", time.Now().UTC().Format("20060102T150405Z"))
	path := filepath.Join(s.OutputDir, name)
	data, err := json.MarshalIndent(result, "", "  ")
	if err == nil {
		err = os.WriteFile(path, data, 0o644)
	}
	if err != nil {
		sc.logger.Warn("failed to write output file", "identity", s.IdentitySafe, "error", err)
		return ""
	}
	return path
}

// RandomScrape runs a warm job on demand. A cooldown result means nothing
// executed; the caller gets the remaining wait.
func (sc *Scraper) RandomScrape(ctx context.Context, rawIdentity string) session.WarmResult {
	return sc.mgr.RunWarm(ctx, rawIdentity)
}

// Sessions lists live sessions.
func (sc *Scraper) Sessions() []session.Info {
	return sc.mgr.List()
}

// CloseSession tears down one identity's session.
func (sc *Scraper) CloseSession(rawIdentity string, force bool) error {
	return sc.mgr.CloseSession(rawIdentity, force)
}

// Profiles lists every on-disk browser profile, flagging those with a live
// session.
func (sc *Scraper) Profiles() ([]ProfileInfo, error) {
	live := make(map[string]bool)
	for _, info := range sc.mgr.List() {
		live[info.IdentitySafe] = true
	}

	root := identity.ProfilesDir(sc.cfg.DataDir)
	entries, err := os.ReadDir(root)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}

	var profiles []ProfileInfo
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		safe := e.Name()
		profiles = append(profiles, ProfileInfo{
			IdentitySafe: safe,
			Path:         filepath.Join(root, safe),
			HasData:      identity.ProfileHasData(sc.cfg.DataDir, safe),
			LiveSession:  live[safe],
		})
	}
	return profiles, nil
}

// DeleteProfile removes an identity's on-disk profile. An open session
// blocks the delete unless force is set; forcing closes the session even
// while a job is running, and that job fails.
func (sc *Scraper) DeleteProfile(rawIdentity string, force bool) error {
	safe := identity.ToSafe(rawIdentity)

	open := false
	for _, info := range sc.mgr.List() {
		if info.IdentitySafe == safe {
			open = true
			break
		}
	}
	if open && !force {
		return ErrSessionOpen
	}
	if err := sc.mgr.CloseSession(safe, force); err != nil {
		if errors.Is(err, session.ErrSessionBusy) {
			return ErrProfileBusy
		}
		return err
	}
	path := filepath.Join(identity.ProfilesDir(sc.cfg.DataDir), safe)
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("delete profile %s: %w", safe, err)
	}
	sc.logger.Info("profile deleted", "identity", safe, "forced", force)
	return nil
}

// Task looks up one journaled task.
func (sc *Scraper) Task(taskID string) (*journal.Entry, error) {
	return sc.journal.Get(taskID)
}

// RecentTasks returns the latest journaled tasks.
func (sc *Scraper) RecentTasks(limit int) ([]*journal.Entry, error) {
	return sc.journal.Recent(limit)
}
