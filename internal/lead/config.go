package lead

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// ScoringConfig holds the signal weights and keyword lists for the
// deterministic candidate scorer. Penalties are stored signed.
type ScoringConfig struct {
	PhoneBonus       int      `yaml:"phone_bonus"`
	KeywordBonus     int      `yaml:"keyword_bonus"`
	MaxKeywordBonus  int      `yaml:"max_keyword_bonus"`
	ListiclePenalty  int      `yaml:"listicle_penalty"`
	DirectoryPenalty int      `yaml:"directory_penalty"`
	BusinessKeywords []string `yaml:"business_keywords"`
	ListicleKeywords []string `yaml:"listicle_keywords"`
	DirectoryHosts   []string `yaml:"directory_hosts"`
}

// DefaultScoringConfig returns the scoring weights used when no scoring
// file is configured.
func DefaultScoringConfig() ScoringConfig {
	return ScoringConfig{
		PhoneBonus:       20,
		KeywordBonus:     10,
		MaxKeywordBonus:  30,
		ListiclePenalty:  -15,
		DirectoryPenalty: -35,

		BusinessKeywords: []string{
			"family owned", "family-owned", "locally owned", "established",
			"founded", "years in business", "serving",
		},
		ListicleKeywords: []string{
			"top 10", "top ten", "best of", "list of", "near you", "find a",
		},
		DirectoryHosts: []string{
			"yelp.com", "yellowpages.com", "bbb.org", "manta.com",
			"linkedin.com", "facebook.com", "angi.com", "thumbtack.com",
			"chamberofcommerce.com", "mapquest.com", "foursquare.com",
			"tripadvisor.com",
		},
	}
}

// LoadScoringConfig reads a scoring config YAML, overlaying defaults.
// An empty path returns the defaults unchanged.
func LoadScoringConfig(path string) (ScoringConfig, error) {
	cfg := DefaultScoringConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, eris.Wrapf(err, "lead: read scoring config %s", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, eris.Wrapf(err, "lead: parse scoring config %s", path)
	}
	if err := ValidateScoringConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ValidateScoringConfig checks that a ScoringConfig is internally
// consistent.
func ValidateScoringConfig(c ScoringConfig) error {
	var errs []string

	if c.PhoneBonus < 0 {
		errs = append(errs, "phone_bonus must be >= 0")
	}
	if c.KeywordBonus < 0 {
		errs = append(errs, "keyword_bonus must be >= 0")
	}
	if c.MaxKeywordBonus < 0 {
		errs = append(errs, "max_keyword_bonus must be >= 0")
	}
	if c.ListiclePenalty > 0 {
		errs = append(errs, "listicle_penalty must be <= 0")
	}
	if c.DirectoryPenalty > 0 {
		errs = append(errs, "directory_penalty must be <= 0")
	}
	if len(c.BusinessKeywords) == 0 {
		errs = append(errs, "business_keywords must not be empty")
	}
	if len(c.DirectoryHosts) == 0 {
		errs = append(errs, "directory_hosts must not be empty")
	}

	if len(errs) > 0 {
		return eris.Errorf("lead: scoring config validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ConfigHash returns a short stable hash of a ScoringConfig, recorded on
// run records so scores can be traced to the weights that produced them.
func ConfigHash(c ScoringConfig) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d|%d|%d|%d|%d|", c.PhoneBonus, c.KeywordBonus,
		c.MaxKeywordBonus, c.ListiclePenalty, c.DirectoryPenalty)
	b.WriteString(strings.Join(c.BusinessKeywords, ","))
	b.WriteByte('|')
	b.WriteString(strings.Join(c.ListicleKeywords, ","))
	b.WriteByte('|')
	b.WriteString(strings.Join(c.DirectoryHosts, ","))

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:16])
}
