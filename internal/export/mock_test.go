package export

import (
	"context"
	"time"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/mock"

	"github.com/sells-group/prospector/pkg/notion"
	"github.com/sells-group/prospector/pkg/salesforce"
)

type mockNotionClient struct {
	mock.Mock
}

func (m *mockNotionClient) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	args := m.Called(ctx, dbID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.DatabaseQueryResponse), args.Error(1)
}

func (m *mockNotionClient) CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.Page), args.Error(1)
}

func (m *mockNotionClient) UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	args := m.Called(ctx, pageID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.Page), args.Error(1)
}

// mockSFClient implements salesforce.Client with overridable funcs.
type mockSFClient struct {
	queryFn            func(ctx context.Context, soql string, out any) error
	insertCollectionFn func(ctx context.Context, sObjectName string, records []map[string]any) ([]salesforce.CollectionResult, error)
	updateCollectionFn func(ctx context.Context, sObjectName string, records []salesforce.CollectionRecord) ([]salesforce.CollectionResult, error)
	describeSObjectFn  func(ctx context.Context, name string) (*salesforce.SObjectDescription, error)
}

func (m *mockSFClient) Query(ctx context.Context, soql string, out any) error {
	if m.queryFn != nil {
		return m.queryFn(ctx, soql, out)
	}
	*out.(*[]salesforce.Account) = nil
	return nil
}

func (m *mockSFClient) InsertCollection(ctx context.Context, sObjectName string, records []map[string]any) ([]salesforce.CollectionResult, error) {
	if m.insertCollectionFn != nil {
		return m.insertCollectionFn(ctx, sObjectName, records)
	}
	results := make([]salesforce.CollectionResult, len(records))
	for i := range records {
		results[i] = salesforce.CollectionResult{ID: "001-new", Success: true}
	}
	return results, nil
}

func (m *mockSFClient) UpdateCollection(ctx context.Context, sObjectName string, records []salesforce.CollectionRecord) ([]salesforce.CollectionResult, error) {
	if m.updateCollectionFn != nil {
		return m.updateCollectionFn(ctx, sObjectName, records)
	}
	results := make([]salesforce.CollectionResult, len(records))
	for i, r := range records {
		results[i] = salesforce.CollectionResult{ID: r.ID, Success: true}
	}
	return results, nil
}

func (m *mockSFClient) DescribeSObject(ctx context.Context, name string) (*salesforce.SObjectDescription, error) {
	if m.describeSObjectFn != nil {
		return m.describeSObjectFn(ctx, name)
	}
	return &salesforce.SObjectDescription{
		Name: name,
		Fields: []salesforce.SObjectField{
			{Name: "Name"}, {Name: "Website"}, {Name: salesforce.FingerprintField},
		},
	}, nil
}

// Interface compliance checks.
var (
	_ notion.Client     = (*mockNotionClient)(nil)
	_ salesforce.Client = (*mockSFClient)(nil)
)

func exportLead(fp, title, host string) Lead {
	return Lead{
		Fingerprint: fp,
		Title:       title,
		URL:         "https://" + host,
		Host:        host,
		Metro:       "Denver",
		RunID:       "run-1",
		CommittedAt: time.Date(2025, 6, 2, 15, 0, 0, 0, time.UTC),
	}
}
