package lead

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// NormalizeHost canonicalizes a hostname: lowercase, no scheme, no
// leading www., no port, no trailing dot.
func NormalizeHost(raw string) string {
	h := strings.ToLower(strings.TrimSpace(raw))
	if h == "" {
		return ""
	}
	if strings.Contains(h, "://") {
		if u, err := url.Parse(h); err == nil && u.Host != "" {
			h = u.Host
		}
	}
	h = strings.TrimPrefix(h, "www.")
	if i := strings.IndexByte(h, ':'); i >= 0 {
		h = h[:i]
	}
	return strings.TrimSuffix(h, ".")
}

// NormalizeTitle canonicalizes a page title for fingerprinting: Unicode
// NFKC, case-folded, whitespace collapsed.
func NormalizeTitle(title string) string {
	t := norm.NFKC.String(title)
	t = cases.Fold().String(t)
	return strings.Join(strings.Fields(t), " ")
}

// HostOf extracts the normalized host from a search-result URL. Returns
// "" when no host can be recovered.
func HostOf(rawURL string) string {
	raw := strings.TrimSpace(rawURL)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		// Scheme-less URLs parse as bare paths; retry with one.
		u, err = url.Parse("https://" + raw)
		if err != nil {
			return ""
		}
	}
	return NormalizeHost(u.Host)
}

// Fingerprint derives the stable identity hash for a host+title pair.
// Two hits with the same normalized host and title collapse to one
// candidate.
func Fingerprint(host, title string) string {
	sum := sha256.Sum256([]byte(NormalizeHost(host) + "\n" + NormalizeTitle(title)))
	return hex.EncodeToString(sum[:16])
}
