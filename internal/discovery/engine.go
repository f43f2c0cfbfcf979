// Package discovery implements the candidate merge engine. It walks an
// ordered list of query variants for a metro, scores every hit, and
// folds the results into a merged set keyed by fingerprint, stopping as
// soon as enough never-before-sent candidates have accumulated.
package discovery

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/prospector/internal/config"
	"github.com/sells-group/prospector/internal/lead"
	"github.com/sells-group/prospector/pkg/jina"
)

// Membership answers whether a fingerprint was committed by an earlier
// run. *ledger.Ledger satisfies it.
type Membership interface {
	Member(fingerprint string) bool
}

// Result is the outcome of one discovery pass.
type Result struct {
	// Merged is the full deduplicated candidate set, sorted by
	// descending score.
	Merged []lead.Candidate
	// Fresh is Merged minus ledger membership, in the same order.
	Fresh []lead.Candidate
	// Selected is the first FreshTarget entries of Fresh.
	Selected []lead.Candidate
	// QueriesIssued counts the query variants actually sent.
	QueriesIssued int
}

// Engine accumulates scored candidates across query variants.
type Engine struct {
	search  jina.Client
	scorer  *lead.Scorer
	limiter *rate.Limiter
	cfg     *config.DiscoveryConfig
}

// NewEngine creates an Engine. Searches are throttled by the discovery
// search rate limit (1 req/s when unset).
func NewEngine(search jina.Client, scorer *lead.Scorer, cfg *config.DiscoveryConfig) *Engine {
	rateLimit := cfg.SearchRateLimit
	if rateLimit <= 0 {
		rateLimit = 1
	}
	return &Engine{
		search:  search,
		scorer:  scorer,
		limiter: rate.NewLimiter(rate.Limit(rateLimit), 1),
		cfg:     cfg,
	}
}

// Discover issues the metro's query variants in order, folding scored
// hits into a merged set. A later hit with an already-seen fingerprint
// is discarded, keeping the first occurrence's score and reasons. After
// each query the fresh count (merged minus ledger) is recomputed; no
// further variants are issued once it reaches the configured target.
// Exhausting all variants below target is not an error — the run
// proceeds with whatever is available. A search failure is fatal.
func (e *Engine) Discover(ctx context.Context, metro string, sent Membership) (*Result, error) {
	queries := ExpandQueries(e.cfg.QueryTemplates, metro)
	if len(queries) == 0 {
		return nil, eris.New("discovery: no query templates configured")
	}

	log := zap.L().With(zap.String("metro", metro))

	var (
		merged []lead.Candidate
		seen   = make(map[string]struct{})
		issued int
	)

	freshCount := func() int {
		n := 0
		for _, c := range merged {
			if !sent.Member(c.Fingerprint) {
				n++
			}
		}
		return n
	}

	for _, q := range queries {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "discovery: rate limit wait")
		}

		opts := []jina.SearchOption{jina.WithCount(e.cfg.PerQueryLimit)}
		if e.cfg.Locale != "" {
			opts = append(opts, jina.WithLocale(e.cfg.Locale))
		}

		resp, err := e.search.Search(ctx, q, opts...)
		issued++
		if err != nil {
			return nil, eris.Wrapf(err, "discovery: search %q", q)
		}

		added := 0
		for _, hit := range resp.Data {
			c := e.scorer.Score(hit.Title, hit.URL, hit.Description)
			if _, dup := seen[c.Fingerprint]; dup {
				continue
			}
			seen[c.Fingerprint] = struct{}{}
			merged = append(merged, c)
			added++
		}

		fresh := freshCount()
		log.Info("query merged",
			zap.String("query", q),
			zap.Int("hits", len(resp.Data)),
			zap.Int("added", added),
			zap.Int("merged", len(merged)),
			zap.Int("fresh", fresh),
		)

		if fresh >= e.cfg.FreshTarget {
			break
		}
	}

	// Scores interleave across queries, so the merged set needs one
	// global re-sort. Stable to keep first-seen order within a score.
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})

	result := &Result{
		Merged:        merged,
		QueriesIssued: issued,
	}
	for _, c := range merged {
		if !sent.Member(c.Fingerprint) {
			result.Fresh = append(result.Fresh, c)
		}
	}
	result.Selected = result.Fresh
	if len(result.Selected) > e.cfg.FreshTarget {
		result.Selected = result.Selected[:e.cfg.FreshTarget]
	}

	if len(result.Fresh) < e.cfg.FreshTarget {
		log.Warn("fresh target not reached",
			zap.Int("fresh", len(result.Fresh)),
			zap.Int("target", e.cfg.FreshTarget),
			zap.Int("queries_issued", issued),
		)
	}

	log.Info("discovery complete",
		zap.Int("merged", len(result.Merged)),
		zap.Int("fresh", len(result.Fresh)),
		zap.Int("selected", len(result.Selected)),
		zap.Int("queries_issued", issued),
	)
	return result, nil
}
