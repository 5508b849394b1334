package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/PhamornOhm/tiktok-faceboo-scrap/internal/config"
	"github.com/PhamornOhm/tiktok-faceboo-scrap/internal/driver"
	"github.com/PhamornOhm/tiktok-faceboo-scrap/internal/jobs"
	"github.com/PhamornOhm/tiktok-faceboo-scrap/internal/journal"
	"github.com/PhamornOhm/tiktok-faceboo-scrap/internal/scrape"
	"github.com/PhamornOhm/tiktok-faceboo-scrap/internal/session"
	"github.com/PhamornOhm/tiktok-faceboo-scrap/internal/webhook"
)

type stubResource struct{}

func (stubResource) Close() error  { return nil }
func (stubResource) Healthy() bool { return true }

func (stubResource) Screenshot(context.Context) ([]byte, error) {
	return []byte{0x89, 'P', 'N', 'G'}, nil
}

type stubDriver struct{}

func (stubDriver) Open(context.Context, string) (driver.Resource, error) {
	return stubResource{}, nil
}

// stubOps is a scripted Operations implementation.
type stubOps struct {
	loggedIn   bool
	loginErr   error
	collectErr error
	posts      int
	warmCalls  int
}

func (o *stubOps) IsLoggedIn(context.Context, driver.Resource) (bool, error) {
	return o.loggedIn, o.loginErr
}

func (o *stubOps) EnsureLogin(context.Context, driver.Resource, scrape.Credentials) (bool, error) {
	if o.loginErr != nil {
		return false, o.loginErr
	}
	o.loggedIn = true
	return true, nil
}

func (o *stubOps) CollectPosts(_ context.Context, _ driver.Resource, targets []scrape.Target, numPosts int) ([]scrape.GroupResult, error) {
	if o.collectErr != nil {
		return nil, o.collectErr
	}
	results := make([]scrape.GroupResult, 0, len(targets))
	for _, t := range targets {
		n := o.posts
		if n > numPosts {
			n = numPosts
		}
		posts := make([]scrape.Post, n)
		for i := range posts {
			posts[i] = scrape.Post{Text: "post", CollectedAt: time.Now()}
		}
		results = append(results, scrape.GroupResult{GroupURL: t.URL, GroupName: t.Name, PostsCount: n, Posts: posts})
	}
	return results, nil
}

func (o *stubOps) Warm(context.Context, driver.Resource) error {
	o.warmCalls++
	return nil
}

func newTestScraper(t *testing.T, ops scrape.Operations) (*Scraper, *config.Config) {
	sc, cfg, _ := newTestScraperWithManager(t, ops)
	return sc, cfg
}

func newTestScraperWithManager(t *testing.T, ops scrape.Operations) (*Scraper, *config.Config, *session.Manager) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &config.Config{
		DataDir:           t.TempDir(),
		HardIdleTimeout:   30 * time.Minute,
		WarmCooldown:      30 * time.Minute,
		WarmHitsThreshold: 100,
	}
	mgr := session.NewManager(cfg, stubDriver{}, session.Policy{}, ops.Warm, logger)
	store, err := journal.NewStore(filepath.Join(t.TempDir(), "journal.db"), logger)
	if err != nil {
		t.Fatal(err)
	}
	d := jobs.NewDispatcher(mgr, webhook.NewSender(time.Second, logger), store, logger)
	sc := NewScraper(cfg, mgr, ops, d, store, logger)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		mgr.Stop(ctx)
		store.Close()
	})
	return sc, cfg, mgr
}

func TestCreateProfile(t *testing.T) {
	sc, cfg := newTestScraper(t, &stubOps{})

	loggedIn, profileDir, err := sc.CreateProfile(context.Background(), "alice@example.com", "secret")
	if err != nil {
		t.Fatal(err)
	}
	if !loggedIn {
		t.Fatal("expected logged in after EnsureLogin")
	}
	want := filepath.Join(cfg.DataDir, "profiles", "alice")
	if profileDir != want {
		t.Fatalf("profile dir = %q, want %q", profileDir, want)
	}
	if _, err := os.Stat(profileDir); err != nil {
		t.Fatalf("profile dir not created: %v", err)
	}
}

func TestScrapePosts(t *testing.T) {
	sc, _ := newTestScraper(t, &stubOps{loggedIn: true, posts: 5})

	result, err := sc.ScrapePosts(context.Background(), ScrapeRequest{
		Identity: "alice@example.com",
		Targets:  []scrape.Target{{URL: "https://example.com/g/1"}, {URL: "https://example.com/g/2"}},
		NumPosts: 3,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !result.OK || result.User != "alice" {
		t.Fatalf("result: %+v", result)
	}
	if result.TotalPosts != 6 {
		t.Fatalf("total posts = %d, want 6", result.TotalPosts)
	}
	if result.OutputFile == "" {
		t.Fatal("no output file recorded")
	}
	if _, err := os.Stat(result.OutputFile); err != nil {
		t.Fatalf("output file not written: %v", err)
	}
}

func TestScrapePosts_SessionLost(t *testing.T) {
	sc, _ := newTestScraper(t, &stubOps{loggedIn: true, collectErr: scrape.ErrSessionLost})

	_, err := sc.ScrapePosts(context.Background(), ScrapeRequest{
		Identity: "alice",
		Targets:  []scrape.Target{{URL: "https://example.com/g/1"}},
		NumPosts: 3,
	})
	if !errors.Is(err, scrape.ErrSessionLost) {
		t.Fatalf("expected ErrSessionLost, got %v", err)
	}
}

func TestScrapePosts_NotLoggedInWithoutCredentials(t *testing.T) {
	sc, _ := newTestScraper(t, &stubOps{loggedIn: false})

	_, err := sc.ScrapePosts(context.Background(), ScrapeRequest{
		Identity: "alice",
		Targets:  []scrape.Target{{URL: "https://example.com/g/1"}},
		NumPosts: 3,
	})
	if !errors.Is(err, scrape.ErrSessionLost) {
		t.Fatalf("expected ErrSessionLost, got %v", err)
	}
}

func TestScrapePostsAsync(t *testing.T) {
	sc, _ := newTestScraper(t, &stubOps{loggedIn: true, posts: 2})

	ticket, err := sc.ScrapePostsAsync(ScrapeRequest{
		Identity: "alice",
		Targets:  []scrape.Target{{URL: "https://example.com/g/1"}},
		NumPosts: 2,
	}, "")
	if err != nil {
		t.Fatal(err)
	}
	if ticket.QueuePosition != 1 || ticket.Status != jobs.StatusRunning {
		t.Fatalf("ticket: %+v", ticket)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		e, err := sc.Task(ticket.TaskID)
		if err != nil {
			t.Fatal(err)
		}
		if e != nil && e.Status == journal.StatusDone {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("async job never reached done in the journal")
}

func TestProfilesAndDelete(t *testing.T) {
	sc, cfg := newTestScraper(t, &stubOps{loggedIn: true})

	if _, _, err := sc.CreateProfile(context.Background(), "alice", ""); err != nil {
		t.Fatal(err)
	}

	profiles, err := sc.Profiles()
	if err != nil {
		t.Fatal(err)
	}
	if len(profiles) != 1 || profiles[0].IdentitySafe != "alice" || !profiles[0].LiveSession {
		t.Fatalf("profiles: %+v", profiles)
	}

	// The idle session blocks a plain delete; force closes it first.
	if err := sc.DeleteProfile("alice", false); !errors.Is(err, ErrSessionOpen) {
		t.Fatalf("expected ErrSessionOpen, got %v", err)
	}
	if err := sc.DeleteProfile("alice", true); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(cfg.DataDir, "profiles", "alice")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("profile dir still present: %v", err)
	}
}

func TestDeleteProfile_BusySession(t *testing.T) {
	sc, cfg, mgr := newTestScraperWithManager(t, &stubOps{loggedIn: true})

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = mgr.RunForUser(context.Background(), "alice", func(ctx context.Context, s *session.Session) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	if err := sc.DeleteProfile("alice", false); !errors.Is(err, ErrSessionOpen) {
		t.Fatalf("expected ErrSessionOpen, got %v", err)
	}
	// Force closes the session out from under the running job.
	if err := sc.DeleteProfile("alice", true); err != nil {
		t.Fatal(err)
	}
	if mgr.SessionCount() != 0 {
		t.Fatal("session still registered after forced delete")
	}
	if _, err := os.Stat(filepath.Join(cfg.DataDir, "profiles", "alice")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("profile dir still present: %v", err)
	}
	close(release)
}

func TestStatusSnapshot(t *testing.T) {
	sc, _, mgr := newTestScraperWithManager(t, &stubOps{loggedIn: true})

	if _, err := sc.StatusSnapshot(context.Background(), "alice"); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}

	if _, _, err := sc.CreateProfile(context.Background(), "alice", ""); err != nil {
		t.Fatal(err)
	}
	img, err := sc.StatusSnapshot(context.Background(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(img) == 0 || img[0] != 0x89 {
		t.Fatalf("snapshot bytes: %v", img)
	}

	// A live session whose browser never opened has nothing to screenshot.
	if _, err := mgr.GetOrCreate("bob"); err != nil {
		t.Fatal(err)
	}
	if _, err := sc.StatusSnapshot(context.Background(), "bob"); !errors.Is(err, ErrNoResource) {
		t.Fatalf("expected ErrNoResource, got %v", err)
	}
}

func TestRandomScrape_Cooldown(t *testing.T) {
	ops := &stubOps{loggedIn: true}
	sc, _ := newTestScraper(t, ops)

	first := sc.RandomScrape(context.Background(), "alice")
	if !first.Ran || first.Err != nil {
		t.Fatalf("first warm: %+v", first)
	}
	second := sc.RandomScrape(context.Background(), "alice")
	if second.Ran || second.Reason != "cooldown" || second.Remaining <= 0 {
		t.Fatalf("second warm: %+v", second)
	}
	if ops.warmCalls != 1 {
		t.Fatalf("warm ran %d times", ops.warmCalls)
	}
}
