/*
Copyright (C) 2026 Zapper Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package version reports the running build and watches upstream releases.
package version

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Version is the running Zapper build. Release builds stamp it via
//
//	-X github.com/zapperlabs/zapper/internal/version.Version=X.Y.Z
var Version = "0.9.3"

const latestReleaseURL = "https://api.github.com/repos/zapperlabs/zapper/releases/latest"

// UpdateInfo describes the newest known release relative to this build.
type UpdateInfo struct {
	CurrentVersion  string    `json:"current_version"`
	LatestVersion   string    `json:"latest_version"`
	UpdateAvailable bool      `json:"update_available"`
	ReleaseURL      string    `json:"release_url,omitempty"`
	ReleaseNotes    string    `json:"release_notes,omitempty"`
	CheckedAt       time.Time `json:"checked_at"`
}

// Checker polls the release feed and remembers the latest answer. The
// caller's context owns the polling lifecycle.
type Checker struct {
	mu     sync.RWMutex
	info   UpdateInfo
	logger zerolog.Logger
	client *http.Client
	period time.Duration
}

// NewChecker creates a release checker that polls every six hours once
// started.
func NewChecker(logger zerolog.Logger) *Checker {
	return &Checker{
		logger: logger.With().Str("component", "update_checker").Logger(),
		client: &http.Client{Timeout: 10 * time.Second},
		period: 6 * time.Hour,
		info:   UpdateInfo{CurrentVersion: Version},
	}
}

// Start polls until ctx is cancelled. The first check happens in the
// background so startup never waits on the network.
func (c *Checker) Start(ctx context.Context) {
	go func() {
		c.check(ctx)

		ticker := time.NewTicker(c.period)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.check(ctx)
			}
		}
	}()
}

// Info returns the most recent check result.
func (c *Checker) Info() *UpdateInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info := c.info
	return &info
}

type githubRelease struct {
	TagName string `json:"tag_name"`
	HTMLURL string `json:"html_url"`
	Body    string `json:"body"`
}

func (c *Checker) check(ctx context.Context) {
	release, err := c.fetchLatest(ctx)
	if err != nil {
		// Release checks are best effort; an unreachable feed is not a
		// service problem.
		c.logger.Debug().Err(err).Msg("release check failed")
		return
	}

	latest := strings.TrimPrefix(release.TagName, "v")
	info := UpdateInfo{
		CurrentVersion:  Version,
		LatestVersion:   latest,
		UpdateAvailable: NewerThan(latest, Version),
		ReleaseURL:      release.HTMLURL,
		ReleaseNotes:    firstLine(release.Body, 200),
		CheckedAt:       time.Now(),
	}

	c.mu.Lock()
	c.info = info
	c.mu.Unlock()

	if info.UpdateAvailable {
		c.logger.Info().
			Str("current", Version).
			Str("latest", latest).
			Str("url", release.HTMLURL).
			Msg("new version available")
	}
}

func (c *Checker) fetchLatest(ctx context.Context) (*githubRelease, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, latestReleaseURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "Zapper/"+Version)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("release feed returned %d", resp.StatusCode)
	}

	var release githubRelease
	if err := json.NewDecoder(resp.Body).Decode(&release); err != nil {
		return nil, fmt.Errorf("decode release: %w", err)
	}
	return &release, nil
}

// NewerThan reports whether candidate is a strictly newer release than
// current. Prerelease suffixes (-dev, -rc1) are ignored for the numeric
// comparison, and an unparseable version never counts as newer.
func NewerThan(candidate, current string) bool {
	cand, ok := parseRelease(candidate)
	if !ok {
		return false
	}
	cur, ok := parseRelease(current)
	if !ok {
		return false
	}
	for i := 0; i < 3; i++ {
		if cand[i] != cur[i] {
			return cand[i] > cur[i]
		}
	}
	return false
}

func parseRelease(v string) ([3]int, bool) {
	v = strings.TrimPrefix(v, "v")
	if i := strings.IndexByte(v, '-'); i >= 0 {
		v = v[:i]
	}

	var out [3]int
	parts := strings.Split(v, ".")
	if len(parts) == 0 || len(parts) > 3 {
		return out, false
	}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return out, false
		}
		out[i] = n
	}
	return out, true
}

func firstLine(s string, maxLen int) string {
	line, _, _ := strings.Cut(s, "\n")
	line = strings.TrimSpace(line)
	if len(line) > maxLen {
		return line[:maxLen-3] + "..."
	}
	return line
}
