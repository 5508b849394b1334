package handlers

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/PhamornOhm/tiktok-faceboo-scrap/internal/config"
	"github.com/PhamornOhm/tiktok-faceboo-scrap/internal/driver"
	"github.com/PhamornOhm/tiktok-faceboo-scrap/internal/jobs"
	"github.com/PhamornOhm/tiktok-faceboo-scrap/internal/journal"
	"github.com/PhamornOhm/tiktok-faceboo-scrap/internal/scrape"
	"github.com/PhamornOhm/tiktok-faceboo-scrap/internal/service"
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

type stubOps struct {
	loggedIn   bool
	collectErr error
}

func (o *stubOps) IsLoggedIn(context.Context, driver.Resource) (bool, error) {
	return o.loggedIn, nil
}

func (o *stubOps) EnsureLogin(context.Context, driver.Resource, scrape.Credentials) (bool, error) {
	o.loggedIn = true
	return true, nil
}

func (o *stubOps) CollectPosts(_ context.Context, _ driver.Resource, targets []scrape.Target, numPosts int) ([]scrape.GroupResult, error) {
	if o.collectErr != nil {
		return nil, o.collectErr
	}
	results := make([]scrape.GroupResult, len(targets))
	for i, t := range targets {
		results[i] = scrape.GroupResult{GroupURL: t.URL, PostsCount: 1, Posts: []scrape.Post{{Text: "post"}}}
	}
	return results, nil
}

func (o *stubOps) Warm(context.Context, driver.Resource) error { return nil }

func newTestHandler(t *testing.T, ops scrape.Operations) (*Handler, *session.Manager) {
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
	svc := service.NewScraper(cfg, mgr, ops, d, store, logger)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		mgr.Stop(ctx)
		store.Close()
	})
	return New(svc, logger), mgr
}

func statusOf(t *testing.T, err error) int {
	t.Helper()
	se, ok := err.(huma.StatusError)
	if !ok {
		t.Fatalf("error %v is not a status error", err)
	}
	return se.GetStatus()
}

// ========================================
// Health Tests
// ========================================

func TestHealth(t *testing.T) {
	h, _ := newTestHandler(t, &stubOps{})
	out, err := h.Health(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Body.Status != "healthy" {
		t.Errorf("Status = %q, want %q", out.Body.Status, "healthy")
	}
	if out.Body.Sessions != 0 {
		t.Errorf("Sessions = %d, want 0", out.Body.Sessions)
	}
}

// ========================================
// CreateProfile Tests
// ========================================

func TestCreateProfile(t *testing.T) {
	h, _ := newTestHandler(t, &stubOps{})
	input := &CreateProfileInput{}
	input.Body.User = "alice@example.com"
	input.Body.Password = "secret"

	out, err := h.CreateProfile(context.Background(), input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Body.OK || !out.Body.LoggedIn {
		t.Errorf("unexpected body: %+v", out.Body)
	}
	if out.Body.ProfileDir == "" {
		t.Error("profile dir missing")
	}
}

// ========================================
// ScrapePosts Tests
// ========================================

func TestScrapePosts(t *testing.T) {
	h, _ := newTestHandler(t, &stubOps{loggedIn: true})
	input := &ScrapePostsInput{}
	input.Body.User = "alice"
	input.Body.Groups = []GroupInput{{URL: "https://example.com/g/1"}}
	input.Body.NumPosts = 5

	out, err := h.ScrapePosts(context.Background(), input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Body.OK || out.Body.TotalPosts != 1 {
		t.Errorf("unexpected body: %+v", out.Body)
	}
}

func TestScrapePosts_SessionLostMapsTo409(t *testing.T) {
	h, _ := newTestHandler(t, &stubOps{loggedIn: true, collectErr: scrape.ErrSessionLost})
	input := &ScrapePostsInput{}
	input.Body.User = "alice"
	input.Body.Groups = []GroupInput{{URL: "https://example.com/g/1"}}

	_, err := h.ScrapePosts(context.Background(), input)
	if err == nil {
		t.Fatal("expected error")
	}
	if got := statusOf(t, err); got != 409 {
		t.Errorf("status = %d, want 409", got)
	}
}

// ========================================
// ScrapePostsWebhook Tests
// ========================================

func TestScrapePostsWebhook(t *testing.T) {
	h, _ := newTestHandler(t, &stubOps{loggedIn: true})
	input := &ScrapePostsWebhookInput{}
	input.Body.User = "alice"
	input.Body.Groups = []GroupInput{{URL: "https://example.com/g/1"}}

	out, err := h.ScrapePostsWebhook(context.Background(), input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Body.TaskID == "" || out.Body.QueuePosition != 1 {
		t.Errorf("unexpected ticket: %+v", out.Body)
	}
}

// ========================================
// CloseSession Tests
// ========================================

func TestCloseSession_BusyMapsTo409(t *testing.T) {
	h, mgr := newTestHandler(t, &stubOps{})

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
	defer close(release)

	input := &CloseSessionInput{}
	input.Body.User = "alice"
	_, err := h.CloseSession(context.Background(), input)
	if err == nil {
		t.Fatal("expected error for busy session")
	}
	if got := statusOf(t, err); got != 409 {
		t.Errorf("status = %d, want 409", got)
	}
}

func TestCloseSession_UnknownSucceeds(t *testing.T) {
	h, _ := newTestHandler(t, &stubOps{})
	input := &CloseSessionInput{}
	input.Body.User = "nobody"
	out, err := h.CloseSession(context.Background(), input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Body.OK {
		t.Error("expected ok")
	}
}

// ========================================
// RandomScrape Tests
// ========================================

func TestRandomScrape_Cooldown(t *testing.T) {
	h, _ := newTestHandler(t, &stubOps{loggedIn: true})

	input := &RandomScrapeInput{}
	input.Body.User = "alice"

	first, err := h.RandomScrape(context.Background(), input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !first.Body.OK {
		t.Fatalf("first run: %+v", first.Body)
	}

	second, err := h.RandomScrape(context.Background(), input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.Body.OK || second.Body.Reason != "cooldown" || second.Body.NextInSec <= 0 {
		t.Errorf("second run: %+v", second.Body)
	}
}

// ========================================
// StatusSnapshot Tests
// ========================================

func TestStatusSnapshot_NoSessionMapsTo404(t *testing.T) {
	h, _ := newTestHandler(t, &stubOps{})
	input := &StatusSnapshotInput{}
	input.Body.User = "nobody"

	_, err := h.StatusSnapshot(context.Background(), input)
	if err == nil {
		t.Fatal("expected error for missing session")
	}
	if got := statusOf(t, err); got != 404 {
		t.Errorf("status = %d, want 404", got)
	}
}

func TestStatusSnapshot_ReturnsPNG(t *testing.T) {
	h, _ := newTestHandler(t, &stubOps{loggedIn: true})

	create := &CreateProfileInput{}
	create.Body.User = "alice"
	if _, err := h.CreateProfile(context.Background(), create); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	input := &StatusSnapshotInput{}
	input.Body.User = "alice"
	out, err := h.StatusSnapshot(context.Background(), input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.ContentType != "image/png" {
		t.Errorf("content type = %q, want image/png", out.ContentType)
	}
	if len(out.Body) == 0 || out.Body[0] != 0x89 {
		t.Errorf("unexpected body: %v", out.Body)
	}
}

// ========================================
// Task Tests
// ========================================

func TestGetTask_Unknown404(t *testing.T) {
	h, _ := newTestHandler(t, &stubOps{})
	_, err := h.GetTask(context.Background(), &GetTaskInput{TaskID: "nope"})
	if err == nil {
		t.Fatal("expected error")
	}
	if got := statusOf(t, err); got != 404 {
		t.Errorf("status = %d, want 404", got)
	}
}
