package scrape

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/PhamornOhm/tiktok-faceboo-scrap/internal/browser"
	"github.com/PhamornOhm/tiktok-faceboo-scrap/internal/driver"
)

// Rod implements Operations on top of the rod browser resource.
type Rod struct {
	baseURL string
	logger  *slog.Logger
}

// NewRod creates rod-backed operations targeting baseURL.
func NewRod(baseURL string, logger *slog.Logger) *Rod {
	return &Rod{baseURL: baseURL, logger: logger}
}

func asBrowser(res driver.Resource) (*browser.Browser, error) {
	b, ok := res.(*browser.Browser)
	if !ok {
		return nil, fmt.Errorf("unexpected resource type %T", res)
	}
	return b, nil
}

// IsLoggedIn navigates to the base URL and probes for a login form.
func (r *Rod) IsLoggedIn(ctx context.Context, res driver.Resource) (bool, error) {
	b, err := asBrowser(res)
	if err != nil {
		return false, err
	}
	if err := b.Navigate(ctx, r.baseURL); err != nil {
		return false, err
	}
	page := b.Page().Context(ctx)
	hasLoginForm, _, err := page.Has(`input[name="pass"], form[action*="login"]`)
	if err != nil {
		return false, err
	}
	return !hasLoginForm, nil
}

// EnsureLogin fills the login form when present and re-probes the state.
func (r *Rod) EnsureLogin(ctx context.Context, res driver.Resource, creds Credentials) (bool, error) {
	loggedIn, err := r.IsLoggedIn(ctx, res)
	if err != nil {
		return false, err
	}
	if loggedIn {
		return true, nil
	}

	b, err := asBrowser(res)
	if err != nil {
		return false, err
	}
	page := b.Page().Context(ctx)

	email, err := page.Element(`input[name="email"], input[type="email"]`)
	if err != nil {
		return false, fmt.Errorf("login form not found: %w", err)
	}
	if err := email.Input(creds.Identity); err != nil {
		return false, err
	}
	pass, err := page.Element(`input[name="pass"], input[type="password"]`)
	if err != nil {
		return false, fmt.Errorf("password field not found: %w", err)
	}
	if err := pass.Input(creds.Password); err != nil {
		return false, err
	}
	submit, err := page.Element(`button[type="submit"], button[name="login"]`)
	if err != nil {
		return false, fmt.Errorf("submit button not found: %w", err)
	}
	if err := submit.Click("left", 1); err != nil {
		return false, err
	}
	if err := page.WaitLoad(); err != nil {
		return false, err
	}
	b.Idle(ctx, humanDelay())

	return r.IsLoggedIn(ctx, res)
}

// CollectPosts visits each target and grabs visible article text. The login
// state is rechecked per target; a drop aborts the remaining batch with
// ErrSessionLost.
func (r *Rod) CollectPosts(ctx context.Context, res driver.Resource, targets []Target, numPosts int) ([]GroupResult, error) {
	b, err := asBrowser(res)
	if err != nil {
		return nil, err
	}

	results := make([]GroupResult, 0, len(targets))
	for _, target := range targets {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		if err := b.Navigate(ctx, target.URL); err != nil {
			return results, fmt.Errorf("navigate %s: %w", target.URL, err)
		}
		b.Idle(ctx, humanDelay())

		page := b.Page().Context(ctx)
		hasLoginForm, _, err := page.Has(`input[name="pass"], form[action*="login"]`)
		if err != nil {
			return results, err
		}
		if hasLoginForm {
			return results, fmt.Errorf("%w: login form shown at %s", ErrSessionLost, target.URL)
		}

		elements, err := page.Elements(`[role="article"], article`)
		if err != nil {
			return results, err
		}

		posts := make([]Post, 0, numPosts)
		for _, el := range elements {
			if len(posts) >= numPosts {
				break
			}
			text, err := el.Text()
			if err != nil || text == "" {
				continue
			}
			post := Post{Text: text, CollectedAt: time.Now()}
			if link, err := el.Element("a[href]"); err == nil {
				if href, err := link.Attribute("href"); err == nil && href != nil {
					post.Link = *href
				}
			}
			posts = append(posts, post)
		}

		results = append(results, GroupResult{
			GroupURL:   target.URL,
			GroupName:  target.Name,
			ChatID:     target.ChatID,
			PostsCount: len(posts),
			Posts:      posts,
		})
		r.logger.Debug("collected target", "url", target.URL, "posts", len(posts))
	}
	return results, nil
}

// Warm browses a light page and lets it settle, simulating organic activity.
func (r *Rod) Warm(ctx context.Context, res driver.Resource) error {
	b, err := asBrowser(res)
	if err != nil {
		return err
	}
	// A cheap page first keeps the load light before touching the feed.
	if err := b.Navigate(ctx, "https://www.google.com"); err != nil {
		return err
	}
	b.Idle(ctx, humanDelay())
	if err := b.Navigate(ctx, r.baseURL); err != nil {
		return err
	}
	b.Idle(ctx, humanDelay())
	return nil
}

func humanDelay() time.Duration {
	return time.Duration(300+rand.Intn(900)) * time.Millisecond
}
