// Package enrich fills in business facts for selected leads by reading
// their pages through Jina Reader and asking Claude to extract
// structured fields. Enrichment is best effort: a lead whose page
// cannot be read or whose facts Claude cannot extract ships with
// search-result data only.
package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/prospector/internal/config"
	"github.com/sells-group/prospector/internal/lead"
	"github.com/sells-group/prospector/pkg/anthropic"
	"github.com/sells-group/prospector/pkg/jina"
)

const (
	// maxPageChars is the per-lead truncation limit for page text sent to Claude.
	maxPageChars = 12000

	// maxResponseTokens bounds the extraction response.
	maxResponseTokens = 2048
)

// systemPrompt instructs Claude to extract facts as a JSON array keyed by
// the fingerprints we supply, so responses can be matched back to leads.
const systemPrompt = `You extract facts about small businesses from web page text. For each lead you are given, report only what the provided text states:
- name: the business's own name
- main_phone: the primary phone number, as printed
- address: the street address, if present
- website: the canonical site URL, if stated
- description: one sentence describing what the business does
- reason: one short phrase on why this looks like an owner-operated business, or "" if unclear

Respond with ONLY a valid JSON array, no other text. One object per lead, each carrying the lead's "fingerprint" copied verbatim from the input:
[{"fingerprint": "", "name": "", "main_phone": "", "address": "", "website": "", "description": "", "reason": ""}]
Omit leads whose text gave you nothing to report. Never invent values.`

// Enricher reads lead pages and extracts structured business facts.
type Enricher struct {
	jina    jina.Client
	ai      anthropic.Client
	model   string
	limiter *rate.Limiter
}

// New creates an Enricher. Page reads are throttled by the discovery
// read rate limit (1 req/s when unset).
func New(jc jina.Client, ai anthropic.Client, model string, cfg *config.DiscoveryConfig) *Enricher {
	rateLimit := cfg.ReadRateLimit
	if rateLimit <= 0 {
		rateLimit = 1
	}
	return &Enricher{
		jina:    jc,
		ai:      ai,
		model:   model,
		limiter: rate.NewLimiter(rate.Limit(rateLimit), 1),
	}
}

// Enrich fetches page text for each candidate and asks Claude for
// structured fields in a single message. The result covers the subset
// of candidates Claude produced facts for; fingerprints not present in
// the input are dropped.
func (e *Enricher) Enrich(ctx context.Context, candidates []lead.Candidate) ([]lead.Enrichment, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	log := zap.L().With(zap.String("phase", "enrich"))

	blocks := make([]string, 0, len(candidates))
	for _, c := range candidates {
		text := e.readPage(ctx, c.URL)
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "enrich: cancelled")
		}
		blocks = append(blocks, leadBlock(c, text))
	}

	resp, err := e.ai.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     e.model,
		MaxTokens: maxResponseTokens,
		System:    systemPrompt,
		Messages: []anthropic.Message{
			{Role: "user", Content: strings.Join(blocks, "\n\n")},
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "enrich: claude request")
	}
	resp.Usage.LogCost(e.model, "enrich")

	enrichments, err := parseEnrichments(resp.Text())
	if err != nil {
		return nil, err
	}

	// Keep only enrichments for fingerprints we actually sent.
	known := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		known[c.Fingerprint] = true
	}
	kept := enrichments[:0]
	for _, en := range enrichments {
		if !known[en.Fingerprint] {
			log.Warn("dropping enrichment for unknown fingerprint",
				zap.String("fingerprint", en.Fingerprint))
			continue
		}
		kept = append(kept, en)
	}

	log.Info("enrichment complete",
		zap.Int("candidates", len(candidates)),
		zap.Int("enriched", len(kept)))
	return kept, nil
}

// readPage fetches page text through Jina Reader, truncated to
// maxPageChars. Failures degrade to an empty page.
func (e *Enricher) readPage(ctx context.Context, url string) string {
	if err := e.limiter.Wait(ctx); err != nil {
		return ""
	}
	resp, err := e.jina.Read(ctx, url)
	if err != nil {
		zap.L().Warn("page read failed", zap.String("url", url), zap.Error(err))
		return ""
	}
	text := resp.Data.Content
	if len(text) > maxPageChars {
		text = text[:maxPageChars]
	}
	return text
}

// leadBlock renders one candidate as a prompt section.
func leadBlock(c lead.Candidate, pageText string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "fingerprint: %s\n", c.Fingerprint)
	fmt.Fprintf(&b, "title: %s\n", c.Title)
	fmt.Fprintf(&b, "url: %s\n", c.URL)
	fmt.Fprintf(&b, "search snippet: %s\n", c.Description)
	if pageText == "" {
		b.WriteString("page text: (unavailable)")
	} else {
		fmt.Fprintf(&b, "page text:\n%s", pageText)
	}
	return b.String()
}

// parseEnrichments extracts the JSON array from Claude's response text.
// The array may carry surrounding prose.
func parseEnrichments(text string) ([]lead.Enrichment, error) {
	if text == "" {
		return nil, eris.New("enrich: empty claude response")
	}

	jsonStart := strings.Index(text, "[")
	jsonEnd := strings.LastIndex(text, "]")
	if jsonStart < 0 || jsonEnd < 0 || jsonEnd <= jsonStart {
		return nil, eris.Errorf("enrich: no JSON array in response: %s", text)
	}

	var enrichments []lead.Enrichment
	if err := json.Unmarshal([]byte(text[jsonStart:jsonEnd+1]), &enrichments); err != nil {
		return nil, eris.Wrap(err, "enrich: parse response JSON")
	}
	return enrichments, nil
}
