package lead

import (
	"fmt"
	"regexp"
	"strings"
)

var phonePattern = regexp.MustCompile(`\(?\d{3}\)?[-.\s]{1,2}\d{3}[-.\s]?\d{4}`)

// Scorer produces scored candidates from raw search hits. Scoring is a
// pure function of (title, url, description) and the config: base 0,
// signed adjustments applied additively, one reason string per signal in
// a fixed evaluation order.
type Scorer struct {
	cfg ScoringConfig
}

// NewScorer creates a Scorer with the given weights.
func NewScorer(cfg ScoringConfig) *Scorer {
	return &Scorer{cfg: cfg}
}

// Score builds a Candidate from one raw search hit.
func (s *Scorer) Score(title, rawURL, description string) Candidate {
	host := HostOf(rawURL)
	c := Candidate{
		Fingerprint: Fingerprint(host, title),
		Title:       title,
		URL:         rawURL,
		Description: description,
		Host:        host,
	}

	text := strings.ToLower(title + " " + description)

	var matched []string
	for _, kw := range s.cfg.BusinessKeywords {
		if strings.Contains(text, strings.ToLower(kw)) {
			matched = append(matched, kw)
		}
	}
	if len(matched) > 0 {
		bonus := len(matched) * s.cfg.KeywordBonus
		if s.cfg.MaxKeywordBonus > 0 && bonus > s.cfg.MaxKeywordBonus {
			bonus = s.cfg.MaxKeywordBonus
		}
		c.Score += bonus
		c.Reasons = append(c.Reasons, fmt.Sprintf("keywords %s (%+d)", strings.Join(matched, ", "), bonus))
	}

	for _, kw := range s.cfg.ListicleKeywords {
		if strings.Contains(text, strings.ToLower(kw)) {
			c.Score += s.cfg.ListiclePenalty
			c.Reasons = append(c.Reasons, fmt.Sprintf("listicle term %q (%+d)", kw, s.cfg.ListiclePenalty))
			break
		}
	}

	if phonePattern.MatchString(description) {
		c.Score += s.cfg.PhoneBonus
		c.Reasons = append(c.Reasons, fmt.Sprintf("phone number present (%+d)", s.cfg.PhoneBonus))
	}

	if dir, ok := s.directoryMatch(host); ok {
		c.Score += s.cfg.DirectoryPenalty
		c.Reasons = append(c.Reasons, fmt.Sprintf("directory host %s (%+d)", dir, s.cfg.DirectoryPenalty))
	}

	return c
}

// directoryMatch reports whether host is (a subdomain of) a known
// low-quality directory host.
func (s *Scorer) directoryMatch(host string) (string, bool) {
	for _, d := range s.cfg.DirectoryHosts {
		if host == d || strings.HasSuffix(host, "."+d) {
			return d, true
		}
	}
	return "", false
}
