package lead

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScorePhoneAndDirectoryAdditive(t *testing.T) {
	s := NewScorer(DefaultScoringConfig())

	// Phone bonus and directory penalty stack on the zero base.
	c := s.Score(
		"Joe's Plumbing - Nashville",
		"https://www.yelp.com/biz/joes-plumbing-nashville",
		"Call (615) 555-0142 for a quote.",
	)

	assert.Equal(t, -15, c.Score)
	require.Len(t, c.Reasons, 2)
	assert.Contains(t, c.Reasons[0], "phone number present (+20)")
	assert.Contains(t, c.Reasons[1], "directory host yelp.com (-35)")
}

func TestScorePhonePatterns(t *testing.T) {
	s := NewScorer(DefaultScoringConfig())

	tests := []struct {
		name  string
		desc  string
		bonus bool
	}{
		{"dashes", "Call 615-555-0142 today", true},
		{"dots", "615.555.0142", true},
		{"parens", "(615) 555-0142", true},
		{"no separators", "id 6155550142", false},
		{"no phone", "A reliable local plumber", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := s.Score("Acme Plumbing", "https://acmeplumbing.com", tt.desc)
			if tt.bonus {
				assert.Equal(t, 20, c.Score)
			} else {
				assert.Equal(t, 0, c.Score)
			}
		})
	}
}

func TestScoreKeywordBonusCapped(t *testing.T) {
	s := NewScorer(DefaultScoringConfig())

	c := s.Score(
		"Acme Machining",
		"https://acmemachining.com",
		"Family owned and locally owned, established 1962, serving middle Tennessee. Founded by the Smith family.",
	)

	// Five keywords matched but the bonus caps at 30.
	assert.Equal(t, 30, c.Score)
	require.NotEmpty(t, c.Reasons)
	assert.Contains(t, c.Reasons[0], "(+30)")
}

func TestScoreListiclePenaltyOnce(t *testing.T) {
	s := NewScorer(DefaultScoringConfig())

	c := s.Score(
		"Top 10 Best Of Nashville Plumbers - List Of Pros Near You",
		"https://ranker.example.com/plumbers",
		"",
	)

	// Several listicle terms match; only the first counts.
	assert.Equal(t, -15, c.Score)
	count := 0
	for _, r := range c.Reasons {
		if strings.Contains(r, "listicle") {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestScoreDirectorySubdomain(t *testing.T) {
	s := NewScorer(DefaultScoringConfig())

	c := s.Score("Acme Plumbing", "https://m.yelp.com/biz/acme", "")
	assert.Equal(t, -35, c.Score)
}

func TestScoreDeterministic(t *testing.T) {
	s := NewScorer(DefaultScoringConfig())

	a := s.Score("Acme Co", "https://acme.com", "Family owned. Call 615-555-0142.")
	b := s.Score("Acme Co", "https://acme.com", "Family owned. Call 615-555-0142.")

	assert.Equal(t, a, b)
}

func TestScoreSetsIdentityFields(t *testing.T) {
	s := NewScorer(DefaultScoringConfig())

	c := s.Score("Acme Co", "https://www.acme.com/about", "desc")
	assert.Equal(t, "acme.com", c.Host)
	assert.Equal(t, Fingerprint("acme.com", "Acme Co"), c.Fingerprint)
	assert.Equal(t, "https://www.acme.com/about", c.URL)
}
