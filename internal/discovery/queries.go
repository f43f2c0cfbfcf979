package discovery

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// metroPlaceholder is the token query templates use for the rotated metro.
const metroPlaceholder = "{metro}"

// ExpandQueries renders the query templates for a metro, preserving
// template order. Blank templates are dropped; a template without the
// placeholder is used verbatim.
func ExpandQueries(templates []string, metro string) []string {
	queries := make([]string, 0, len(templates))
	for _, t := range templates {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		queries = append(queries, strings.ReplaceAll(t, metroPlaceholder, metro))
	}
	return queries
}

// QuerySeed derives a short stable hash of the template list. It feeds
// the deterministic run id, so editing the configured queries yields a
// new id for the same date and metro.
func QuerySeed(templates []string) string {
	sum := sha256.Sum256([]byte(strings.Join(templates, "\n")))
	return hex.EncodeToString(sum[:8])
}
