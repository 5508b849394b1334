package handlers

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

// Register wires every endpoint into the API.
func Register(api huma.API, h *Handler) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns service health and the live session count",
		Tags:        []string{"Health"},
	}, h.Health)

	huma.Register(api, huma.Operation{
		OperationID: "createProfile",
		Method:      http.MethodPost,
		Path:        "/v1/create-profile",
		Summary:     "Create or refresh a browser profile",
		Description: "Opens a persistent browser profile for an identity, optionally logging in",
		Tags:        []string{"Profiles"},
	}, h.CreateProfile)

	huma.Register(api, huma.Operation{
		OperationID: "scrapePosts",
		Method:      http.MethodPost,
		Path:        "/v1/scrape-posts",
		Summary:     "Collect posts (synchronous)",
		Description: "Collects posts from the given groups; requests for one identity run strictly one at a time",
		Tags:        []string{"Scrape"},
	}, h.ScrapePosts)

	huma.Register(api, huma.Operation{
		OperationID:   "scrapePostsWebhook",
		Method:        http.MethodPost,
		Path:          "/v1/scrape-posts-webhook",
		Summary:       "Collect posts (async with callback)",
		Description:   "Accepts the job immediately with a queue position; the outcome is POSTed once to the callback URL",
		Tags:          []string{"Scrape"},
		DefaultStatus: http.StatusAccepted,
	}, h.ScrapePostsWebhook)

	huma.Register(api, huma.Operation{
		OperationID: "randomScrape",
		Method:      http.MethodPost,
		Path:        "/v1/random-scrape",
		Summary:     "Run a keep-alive warm job",
		Description: "Browses lightly on the identity's session; rate-limited by a per-session cooldown",
		Tags:        []string{"Scrape"},
	}, h.RandomScrape)

	huma.Register(api, huma.Operation{
		OperationID: "listSessions",
		Method:      http.MethodGet,
		Path:        "/v1/sessions",
		Summary:     "List live sessions",
		Tags:        []string{"Sessions"},
	}, h.Sessions)

	huma.Register(api, huma.Operation{
		OperationID: "closeSession",
		Method:      http.MethodPost,
		Path:        "/v1/sessions/close",
		Summary:     "Close a session",
		Description: "Closes one identity's browser session; rejected with 409 while a job is running unless forced",
		Tags:        []string{"Sessions"},
	}, h.CloseSession)

	huma.Register(api, huma.Operation{
		OperationID: "listProfiles",
		Method:      http.MethodGet,
		Path:        "/v1/profiles",
		Summary:     "List browser profiles",
		Tags:        []string{"Profiles"},
	}, h.Profiles)

	huma.Register(api, huma.Operation{
		OperationID: "deleteProfile",
		Method:      http.MethodPost,
		Path:        "/v1/profiles/delete",
		Summary:     "Delete a browser profile",
		Description: "Closes the session and removes the profile directory from disk",
		Tags:        []string{"Profiles"},
	}, h.DeleteProfile)

	huma.Register(api, huma.Operation{
		OperationID: "getTask",
		Method:      http.MethodGet,
		Path:        "/v1/tasks/{taskID}",
		Summary:     "Get async task state",
		Tags:        []string{"Tasks"},
	}, h.GetTask)

	huma.Register(api, huma.Operation{
		OperationID: "statusSnapshot",
		Method:      http.MethodPost,
		Path:        "/v1/status/snapshot",
		Summary:     "Screenshot a live browser",
		Description: "Returns a PNG of the identity's current browser page; 404 with no session, 409 with no open browser",
		Tags:        []string{"Status"},
	}, h.StatusSnapshot)

	huma.Register(api, huma.Operation{
		OperationID: "snapshot",
		Method:      http.MethodGet,
		Path:        "/v1/snapshot",
		Summary:     "Service snapshot",
		Description: "Live sessions plus the most recent journaled tasks",
		Tags:        []string{"Tasks"},
	}, h.Snapshot)
}
