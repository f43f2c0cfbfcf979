package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospector/internal/config"
	"github.com/sells-group/prospector/internal/discovery"
	"github.com/sells-group/prospector/internal/lead"
	"github.com/sells-group/prospector/internal/rotation"
	"github.com/sells-group/prospector/internal/runstate"
	"github.com/sells-group/prospector/internal/store"
	"github.com/sells-group/prospector/pkg/gmail"
	"github.com/sells-group/prospector/pkg/jina"
)

type mockEngine struct {
	mock.Mock
}

func (m *mockEngine) Discover(ctx context.Context, metro string, sent discovery.Membership) (*discovery.Result, error) {
	args := m.Called(ctx, metro, sent)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*discovery.Result), args.Error(1)
}

type mockEnricher struct {
	mock.Mock
}

func (m *mockEnricher) Enrich(ctx context.Context, candidates []lead.Candidate) ([]lead.Enrichment, error) {
	args := m.Called(ctx, candidates)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]lead.Enrichment), args.Error(1)
}

type mockMailer struct {
	mock.Mock
}

func (m *mockMailer) Send(ctx context.Context, msg gmail.Message) (*gmail.SendResult, error) {
	args := m.Called(ctx, msg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gmail.SendResult), args.Error(1)
}

type mockIndex struct {
	mock.Mock
}

func (m *mockIndex) UpsertRun(ctx context.Context, rec *runstate.Record) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

func (m *mockIndex) GetRun(ctx context.Context, runID string) (*store.RunSummary, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*store.RunSummary), args.Error(1)
}

func (m *mockIndex) ListRuns(ctx context.Context, filter store.RunFilter) ([]store.RunSummary, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]store.RunSummary), args.Error(1)
}

func (m *mockIndex) Migrate(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockIndex) Close() error {
	args := m.Called()
	return args.Error(0)
}

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

// Interface compliance checks.
var (
	_ Discoverer   = (*mockEngine)(nil)
	_ Enricher     = (*mockEnricher)(nil)
	_ gmail.Client = (*mockMailer)(nil)
	_ store.Store  = (*mockIndex)(nil)
	_ jina.Client  = (*mockJinaClient)(nil)
)

// testConfig builds a config rooted in a fresh temp dir.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Data: config.DataConfig{Dir: t.TempDir()},
		Discovery: config.DiscoveryConfig{
			FreshTarget:     3,
			PerQueryLimit:   10,
			QueryTemplates:  []string{"family owned plumbers in {metro}", "hvac companies in {metro}"},
			SearchRateLimit: 1000,
			ReadRateLimit:   1000,
		},
		Gmail: config.GmailConfig{
			From: "prospector@sells.group",
			To:   []string{"deals@sells.group"},
		},
	}
}

// seedRotation writes a rotation file for the given metros.
func seedRotation(t *testing.T, cfg *config.Config, metros ...string) {
	t.Helper()
	_, err := rotation.Reseed(cfg.Data.RotationPath(), metros)
	require.NoError(t, err)
}

// cand builds a deterministic candidate for a host/title pair.
func cand(title, host string, score int) lead.Candidate {
	return lead.Candidate{
		Fingerprint: lead.Fingerprint(host, title),
		Title:       title,
		URL:         "https://" + host,
		Host:        host,
		Score:       score,
	}
}

// engineResult wraps candidates as a one-query discovery result with
// everything fresh.
func engineResult(selected ...lead.Candidate) *discovery.Result {
	return &discovery.Result{
		Merged:        selected,
		Fresh:         selected,
		Selected:      selected,
		QueriesIssued: 1,
	}
}
