// Package version checks GitHub for newer releases of lists.
package version

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"
)

const releasesURL = "https://api.github.com/repos/marcus/lists/releases/latest"

// Release is the part of a GitHub release the checker reads.
type Release struct {
	TagName string `json:"tag_name"`
	HTMLURL string `json:"html_url"`
}

// CheckResult holds the outcome of a version check.
type CheckResult struct {
	CurrentVersion string
	LatestVersion  string
	UpdateURL      string
	HasUpdate      bool
}

// Checker fetches the latest release. URL is overridable for tests.
type Checker struct {
	URL    string
	Client *http.Client
}

// NewChecker returns a Checker with a short timeout.
func NewChecker() *Checker {
	return &Checker{URL: releasesURL, Client: &http.Client{Timeout: 5 * time.Second}}
}

// Check compares current against the latest release. Development builds are
// never reported as outdated.
func (c *Checker) Check(ctx context.Context, current string) (CheckResult, error) {
	res := CheckResult{CurrentVersion: current}
	if IsDevelopmentVersion(current) {
		return res, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return res, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	resp, err := c.Client.Do(req)
	if err != nil {
		return res, fmt.Errorf("fetch release: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return res, fmt.Errorf("github api: %s", resp.Status)
	}

	var rel Release
	if err := json.NewDecoder(resp.Body).Decode(&rel); err != nil {
		return res, fmt.Errorf("decode release: %w", err)
	}
	res.LatestVersion = rel.TagName
	res.UpdateURL = rel.HTMLURL
	res.HasUpdate = IsNewer(rel.TagName, current)
	return res, nil
}

// IsDevelopmentVersion returns true for non-release versions.
func IsDevelopmentVersion(v string) bool {
	return v == "" || v == "dev" || v == "devel" || strings.HasPrefix(v, "devel+")
}

var releaseTag = regexp.MustCompile(`^v?\d+\.\d+\.\d+(-[a-zA-Z0-9]+([.-][a-zA-Z0-9]+)*)?$`)

// UpdateCommand returns the go install line for tag, or "" for anything that
// is not a plain release tag.
func UpdateCommand(tag string) string {
	if !releaseTag.MatchString(tag) {
		return ""
	}
	return fmt.Sprintf("go install -ldflags \"-X main.Version=%s\" github.com/marcus/lists@%s", tag, tag)
}
