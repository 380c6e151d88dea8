// Package updater checks GitHub for a newer taskr release and reports where
// it lives. It never replaces the running binary.
package updater

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/mod/semver"
)

const (
	githubRepo = "HendryAvila/taskr"

	// ReleaseURL is the GitHub API endpoint for the latest release.
	ReleaseURL = "https://api.github.com/repos/" + githubRepo + "/releases/latest"

	checkTimeout = 10 * time.Second
)

// Checker queries a release endpoint. The zero value uses ReleaseURL.
type Checker struct {
	Endpoint string
	Client   *http.Client
}

type releaseInfo struct {
	TagName string `json:"tag_name"`
	HTMLURL string `json:"html_url"`
}

// Result is the outcome of a version check.
type Result struct {
	CurrentVersion  string `json:"current_version"`
	LatestVersion   string `json:"latest_version"`
	UpdateAvailable bool   `json:"update_available"`
	ReleaseURL      string `json:"release_url,omitempty"`
}

// Check compares current against the latest published release. Development
// builds ("dev" or anything that is not semver) never report an update.
func (c Checker) Check(ctx context.Context, current string) (*Result, error) {
	endpoint := c.Endpoint
	if endpoint == "" {
		endpoint = ReleaseURL
	}
	client := c.Client
	if client == nil {
		client = &http.Client{Timeout: checkTimeout}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("updater: creating request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "taskr/"+current)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("updater: checking latest release: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("updater: GitHub API returned %d", resp.StatusCode)
	}

	var release releaseInfo
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, fmt.Errorf("updater: parsing release info: %w", err)
	}

	return &Result{
		CurrentVersion:  strings.TrimPrefix(current, "v"),
		LatestVersion:   strings.TrimPrefix(release.TagName, "v"),
		UpdateAvailable: isNewer(current, release.TagName),
		ReleaseURL:      release.HTMLURL,
	}, nil
}

// canonical adds the "v" prefix semver requires.
func canonical(v string) string {
	if v == "" || strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}

// isNewer reports whether latest is a higher semantic version than current.
func isNewer(current, latest string) bool {
	c, l := canonical(current), canonical(latest)
	if !semver.IsValid(c) || !semver.IsValid(l) {
		return false
	}
	return semver.Compare(l, c) > 0
}
