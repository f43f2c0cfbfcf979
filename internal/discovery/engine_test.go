package discovery

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospector/internal/config"
	"github.com/sells-group/prospector/internal/lead"
	"github.com/sells-group/prospector/pkg/jina"
)

type mockJinaClient struct {
	mock.Mock
}

func (m *mockJinaClient) Read(ctx context.Context, targetURL string) (*jina.ReadResponse, error) {
	args := m.Called(ctx, targetURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*jina.ReadResponse), args.Error(1)
}

func (m *mockJinaClient) Search(ctx context.Context, query string, opts ...jina.SearchOption) (*jina.SearchResponse, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*jina.SearchResponse), args.Error(1)
}

var _ jina.Client = (*mockJinaClient)(nil)

// memberSet is a Membership fake backed by a plain set.
type memberSet map[string]struct{}

func (m memberSet) Member(fp string) bool {
	_, ok := m[fp]
	return ok
}

func testScorer() *lead.Scorer {
	return lead.NewScorer(lead.ScoringConfig{
		PhoneBonus:       20,
		KeywordBonus:     10,
		MaxKeywordBonus:  30,
		ListiclePenalty:  -15,
		DirectoryPenalty: -35,
		BusinessKeywords: []string{"family owned"},
		ListicleKeywords: []string{"top 10"},
		DirectoryHosts:   []string{"yelp.com"},
	})
}

func testEngineConfig(freshTarget int, templates ...string) *config.DiscoveryConfig {
	return &config.DiscoveryConfig{
		FreshTarget:     freshTarget,
		PerQueryLimit:   10,
		QueryTemplates:  templates,
		SearchRateLimit: 1000,
	}
}

func hit(title, url, desc string) jina.SearchResult {
	return jina.SearchResult{Title: title, URL: url, Description: desc}
}

func searchResp(hits ...jina.SearchResult) *jina.SearchResponse {
	return &jina.SearchResponse{Code: 200, Data: hits}
}

// uniqueHits fabricates n distinct search hits.
func uniqueHits(n int, prefix string) []jina.SearchResult {
	hits := make([]jina.SearchResult, n)
	for i := range hits {
		hits[i] = hit(
			fmt.Sprintf("%s Business %d", prefix, i),
			fmt.Sprintf("https://%s%d.example.com", prefix, i),
			"plain description",
		)
	}
	return hits
}

func TestDiscover_StopsOnceFreshTargetReached(t *testing.T) {
	jc := &mockJinaClient{}
	jc.On("Search", mock.Anything, "plumbers in Denver").
		Return(searchResp(uniqueHits(6, "q1")...), nil).Once()

	cfg := testEngineConfig(5, "plumbers in {metro}", "hvac in {metro}", "roofers in {metro}")
	e := NewEngine(jc, testScorer(), cfg)

	got, err := e.Discover(context.Background(), "Denver", memberSet{})
	require.NoError(t, err)

	assert.Equal(t, 1, got.QueriesIssued, "first variant alone met the target")
	assert.Len(t, got.Merged, 6)
	assert.Len(t, got.Fresh, 6)
	assert.Len(t, got.Selected, 5)
	jc.AssertNumberOfCalls(t, "Search", 1)
}

func TestDiscover_ContinuesUntilTargetOrExhaustion(t *testing.T) {
	jc := &mockJinaClient{}
	jc.On("Search", mock.Anything, "plumbers in Denver").
		Return(searchResp(uniqueHits(2, "q1")...), nil).Once()
	jc.On("Search", mock.Anything, "hvac in Denver").
		Return(searchResp(uniqueHits(2, "q2")...), nil).Once()
	jc.On("Search", mock.Anything, "roofers in Denver").
		Return(searchResp(uniqueHits(2, "q3")...), nil).Once()

	cfg := testEngineConfig(5, "plumbers in {metro}", "hvac in {metro}", "roofers in {metro}")
	e := NewEngine(jc, testScorer(), cfg)

	got, err := e.Discover(context.Background(), "Denver", memberSet{})
	require.NoError(t, err)

	// All three variants run; 6 fresh total, 5 selected.
	assert.Equal(t, 3, got.QueriesIssued)
	assert.Len(t, got.Merged, 6)
	assert.Len(t, got.Selected, 5)
}

func TestDiscover_FewerThanTargetIsNotAnError(t *testing.T) {
	jc := &mockJinaClient{}
	jc.On("Search", mock.Anything, mock.Anything).
		Return(searchResp(uniqueHits(3, "only")...), nil)

	cfg := testEngineConfig(10, "plumbers in {metro}", "hvac in {metro}")
	e := NewEngine(jc, testScorer(), cfg)

	got, err := e.Discover(context.Background(), "Denver", memberSet{})
	require.NoError(t, err)

	assert.Equal(t, 2, got.QueriesIssued, "all variants exhausted")
	// Second query repeats the same hits; dedup leaves three.
	assert.Len(t, got.Merged, 3)
	assert.Len(t, got.Selected, 3)
}

func TestDiscover_FirstOccurrenceWins(t *testing.T) {
	// Same host+title in both queries, but the second occurrence carries
	// a phone number that would score higher. The first-seen instance's
	// score and reasons must survive.
	jc := &mockJinaClient{}
	jc.On("Search", mock.Anything, "plumbers in Denver").
		Return(searchResp(
			hit("Summit Plumbing", "https://summit.example.com", "plain description"),
		), nil).Once()
	jc.On("Search", mock.Anything, "hvac in Denver").
		Return(searchResp(
			hit("Summit Plumbing", "https://summit.example.com", "call (303) 555-0121 today"),
			hit("Ridgeline HVAC", "https://ridgeline.example.com", "plain description"),
		), nil).Once()

	cfg := testEngineConfig(2, "plumbers in {metro}", "hvac in {metro}")
	e := NewEngine(jc, testScorer(), cfg)

	got, err := e.Discover(context.Background(), "Denver", memberSet{})
	require.NoError(t, err)

	require.Len(t, got.Merged, 2)
	for _, c := range got.Merged {
		if c.Host == "summit.example.com" {
			assert.Equal(t, 0, c.Score, "first-seen score kept, phone bonus from the duplicate discarded")
			assert.Empty(t, c.Reasons)
		}
	}
}

func TestDiscover_LedgerMembersExcludedFromFresh(t *testing.T) {
	jc := &mockJinaClient{}
	jc.On("Search", mock.Anything, mock.Anything).
		Return(searchResp(
			hit("Summit Plumbing", "https://summit.example.com", "plain"),
			hit("Ridgeline HVAC", "https://ridgeline.example.com", "plain"),
			hit("Creekside Roofing", "https://creekside.example.com", "plain"),
		), nil)

	sent := memberSet{
		lead.Fingerprint("summit.example.com", "Summit Plumbing"): {},
	}

	cfg := testEngineConfig(2, "plumbers in {metro}")
	e := NewEngine(jc, testScorer(), cfg)

	got, err := e.Discover(context.Background(), "Denver", sent)
	require.NoError(t, err)

	assert.Len(t, got.Merged, 3, "already-sent candidates stay in the merged set")
	require.Len(t, got.Fresh, 2)
	for _, c := range got.Fresh {
		assert.NotEqual(t, "summit.example.com", c.Host)
	}
	assert.Len(t, got.Selected, 2)
}

func TestDiscover_AlreadySentHitsForceMoreQueries(t *testing.T) {
	// Every first-query hit is already in the ledger, so the engine must
	// keep issuing variants even though the merged set looks large.
	firstHits := []jina.SearchResult{
		hit("Summit Plumbing", "https://summit.example.com", "plain"),
		hit("Ridgeline HVAC", "https://ridgeline.example.com", "plain"),
	}
	sent := memberSet{}
	for _, h := range firstHits {
		sent[lead.Fingerprint(lead.HostOf(h.URL), h.Title)] = struct{}{}
	}

	jc := &mockJinaClient{}
	jc.On("Search", mock.Anything, "plumbers in Denver").
		Return(searchResp(firstHits...), nil).Once()
	jc.On("Search", mock.Anything, "hvac in Denver").
		Return(searchResp(hit("Creekside Roofing", "https://creekside.example.com", "plain")), nil).Once()

	cfg := testEngineConfig(1, "plumbers in {metro}", "hvac in {metro}")
	e := NewEngine(jc, testScorer(), cfg)

	got, err := e.Discover(context.Background(), "Denver", sent)
	require.NoError(t, err)

	assert.Equal(t, 2, got.QueriesIssued)
	require.Len(t, got.Fresh, 1)
	assert.Equal(t, "creekside.example.com", got.Fresh[0].Host)
}

func TestDiscover_MergedSortedByDescendingScore(t *testing.T) {
	// First query returns a low scorer, second a high scorer. The final
	// merged order must be globally re-sorted, not per-query order.
	jc := &mockJinaClient{}
	jc.On("Search", mock.Anything, "plumbers in Denver").
		Return(searchResp(
			hit("Top 10 Plumbers", "https://listicle.example.com", "top 10 plumbers near you"),
		), nil).Once()
	jc.On("Search", mock.Anything, "hvac in Denver").
		Return(searchResp(
			hit("Summit Plumbing", "https://summit.example.com", "family owned, call (303) 555-0121"),
		), nil).Once()

	cfg := testEngineConfig(2, "plumbers in {metro}", "hvac in {metro}")
	e := NewEngine(jc, testScorer(), cfg)

	got, err := e.Discover(context.Background(), "Denver", memberSet{})
	require.NoError(t, err)

	require.Len(t, got.Merged, 2)
	assert.Equal(t, "summit.example.com", got.Merged[0].Host)
	assert.Greater(t, got.Merged[0].Score, got.Merged[1].Score)
	assert.Equal(t, got.Merged[0].Host, got.Selected[0].Host,
		"selection follows the sorted order")
}

func TestDiscover_SearchErrorIsFatal(t *testing.T) {
	jc := &mockJinaClient{}
	jc.On("Search", mock.Anything, mock.Anything).
		Return(nil, assert.AnError)

	cfg := testEngineConfig(5, "plumbers in {metro}")
	e := NewEngine(jc, testScorer(), cfg)

	_, err := e.Discover(context.Background(), "Denver", memberSet{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "discovery: search")
}

func TestDiscover_NoTemplatesConfigured(t *testing.T) {
	cfg := testEngineConfig(5)
	e := NewEngine(&mockJinaClient{}, testScorer(), cfg)

	_, err := e.Discover(context.Background(), "Denver", memberSet{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no query templates")
}

func TestDiscover_EmptySearchResults(t *testing.T) {
	jc := &mockJinaClient{}
	jc.On("Search", mock.Anything, mock.Anything).Return(searchResp(), nil)

	cfg := testEngineConfig(5, "plumbers in {metro}", "hvac in {metro}")
	e := NewEngine(jc, testScorer(), cfg)

	got, err := e.Discover(context.Background(), "Denver", memberSet{})
	require.NoError(t, err)
	assert.Equal(t, 2, got.QueriesIssued)
	assert.Empty(t, got.Merged)
	assert.Empty(t, got.Selected)
}

func TestExpandQueries(t *testing.T) {
	tests := []struct {
		name      string
		templates []string
		metro     string
		want      []string
	}{
		{
			name:      "placeholder replaced",
			templates: []string{"plumbers in {metro}", "family owned business {metro}"},
			metro:     "Denver",
			want:      []string{"plumbers in Denver", "family owned business Denver"},
		},
		{
			name:      "placeholder repeated in one template",
			templates: []string{"{metro} businesses {metro}"},
			metro:     "Boise",
			want:      []string{"Boise businesses Boise"},
		},
		{
			name:      "no placeholder used verbatim",
			templates: []string{"small businesses for sale"},
			metro:     "Denver",
			want:      []string{"small businesses for sale"},
		},
		{
			name:      "blank templates dropped",
			templates: []string{"", "  ", "plumbers in {metro}"},
			metro:     "Denver",
			want:      []string{"plumbers in Denver"},
		},
		{
			name:      "empty template list",
			templates: nil,
			metro:     "Denver",
			want:      []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExpandQueries(tt.templates, tt.metro))
		})
	}
}
