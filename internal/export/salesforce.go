package export

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospector/pkg/salesforce"
)

// SalesforceExporter pushes committed leads into Salesforce as prospect
// Accounts.
type SalesforceExporter struct {
	client salesforce.Client
}

// NewSalesforce creates a SalesforceExporter.
func NewSalesforce(client salesforce.Client) *SalesforceExporter {
	return &SalesforceExporter{client: client}
}

// Export upserts the leads as Accounts. When the org provisions the
// custom fingerprint field, matching is exact and batched; otherwise
// the exporter falls back to one-by-one website matching, which cannot
// carry the fingerprint and may miss renamed sites.
func (x *SalesforceExporter) Export(ctx context.Context, leads []Lead) (*Result, error) {
	if len(leads) == 0 {
		return &Result{}, nil
	}

	hasFP, err := salesforce.HasAccountField(ctx, x.client, salesforce.FingerprintField)
	if err != nil {
		return nil, eris.Wrap(err, "export: describe account")
	}
	if !hasFP {
		zap.L().Warn("export: fingerprint field not provisioned, matching by website",
			zap.String("field", salesforce.FingerprintField),
		)
		return x.exportByWebsite(ctx, leads)
	}

	fingerprints := make([]string, 0, len(leads))
	for _, l := range leads {
		fingerprints = append(fingerprints, l.Fingerprint)
	}
	existing, err := salesforce.FindAccountsByFingerprints(ctx, x.client, fingerprints)
	if err != nil {
		return nil, err
	}

	var inserts []map[string]any
	var updates []salesforce.AccountUpdate
	for _, l := range leads {
		fields := accountFields(l)
		if acc, found := existing[l.Fingerprint]; found {
			updates = append(updates, salesforce.AccountUpdate{ID: acc.ID, Fields: fields})
		} else {
			fields[salesforce.FingerprintField] = l.Fingerprint
			inserts = append(inserts, fields)
		}
	}

	res := &Result{}
	insertResults, err := salesforce.BulkInsertAccounts(ctx, x.client, inserts)
	if err != nil {
		return res, err
	}
	res.Created, res.Failed = tally(insertResults, res.Failed)

	updateResults, err := salesforce.BulkUpdateAccounts(ctx, x.client, updates)
	if err != nil {
		return res, err
	}
	res.Updated, res.Failed = tally(updateResults, res.Failed)

	zap.L().Info("export: salesforce complete",
		zap.Int("created", res.Created),
		zap.Int("updated", res.Updated),
		zap.Int("failed", res.Failed),
	)
	if res.Failed > 0 {
		return res, eris.Errorf("export: %d of %d accounts failed", res.Failed, len(leads))
	}
	return res, nil
}

// exportByWebsite is the degraded path for orgs without the fingerprint
// field: each lead is matched by website, one query per lead.
func (x *SalesforceExporter) exportByWebsite(ctx context.Context, leads []Lead) (*Result, error) {
	res := &Result{}

	var inserts []map[string]any
	var updates []salesforce.AccountUpdate
	for _, l := range leads {
		acc, err := salesforce.FindAccountByWebsite(ctx, x.client, website(l))
		if err != nil {
			return res, err
		}
		if acc != nil {
			updates = append(updates, salesforce.AccountUpdate{ID: acc.ID, Fields: accountFields(l)})
		} else {
			inserts = append(inserts, accountFields(l))
		}
	}

	insertResults, err := salesforce.BulkInsertAccounts(ctx, x.client, inserts)
	if err != nil {
		return res, err
	}
	res.Created, res.Failed = tally(insertResults, res.Failed)

	updateResults, err := salesforce.BulkUpdateAccounts(ctx, x.client, updates)
	if err != nil {
		return res, err
	}
	res.Updated, res.Failed = tally(updateResults, res.Failed)

	if res.Failed > 0 {
		return res, eris.Errorf("export: %d of %d accounts failed", res.Failed, len(leads))
	}
	return res, nil
}

// accountFields maps a lead onto Account columns. The fingerprint is
// added separately because only inserts may set it.
func accountFields(l Lead) map[string]any {
	fields := map[string]any{
		"Name":    displayName(l),
		"Website": website(l),
		"Type":    "Prospect",
	}
	if l.Phone != "" {
		fields["Phone"] = l.Phone
	}
	if l.Description != "" {
		fields["Description"] = l.Description
	}
	if l.Metro != "" {
		fields["BillingCity"] = l.Metro
	}
	return fields
}

// tally counts successes in results, logging and accumulating failures
// on top of the running count.
func tally(results []salesforce.CollectionResult, failed int) (int, int) {
	ok := 0
	for _, r := range results {
		if r.Success {
			ok++
			continue
		}
		failed++
		zap.L().Warn("export: account write rejected",
			zap.String("id", r.ID),
			zap.Strings("errors", r.Errors),
		)
	}
	return ok, failed
}
