/*
Copyright (C) 2026 Zapper Labs

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package providers resolves streaming services to watch URLs.
package providers

import (
	"net/url"
	"strings"
)

// Deep link URL templates per recognized service. {title} is replaced with
// the query-escaped item title.
var deepLinkTemplates = map[string]string{
	"netflix": "https://www.netflix.com/search?q={title}",
	"disney":  "https://www.disneyplus.com/search?q={title}",
	"hbo_max": "https://play.max.com/search/result?q={title}",
	"prime":   "https://www.primevideo.com/search?phrase={title}",
}

// DeepLink returns a watch URL for the given provider and title, or empty
// when the provider is not recognized. Unknown providers are expected and
// never an error.
func DeepLink(providerName, title string) string {
	if providerName == "" {
		return ""
	}

	key := strings.ToLower(providerName)
	key = strings.ReplaceAll(key, " ", "_")
	key = strings.ReplaceAll(key, "+", "")

	var template string
	switch {
	case strings.Contains(key, "netflix"):
		template = deepLinkTemplates["netflix"]
	case strings.Contains(key, "disney"):
		template = deepLinkTemplates["disney"]
	case strings.Contains(key, "max"), strings.Contains(key, "hbo"):
		template = deepLinkTemplates["hbo_max"]
	case strings.Contains(key, "prime"), strings.Contains(key, "amazon"):
		template = deepLinkTemplates["prime"]
	default:
		return ""
	}

	return strings.Replace(template, "{title}", url.QueryEscape(title), 1)
}
