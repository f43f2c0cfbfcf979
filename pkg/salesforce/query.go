package salesforce

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// FingerprintField is the custom Account field holding the lead
// fingerprint. Orgs without it fall back to website matching.
const FingerprintField = "Fingerprint__c"

// Account represents a Salesforce Account record.
type Account struct {
	ID           string `json:"Id" salesforce:"Id"`
	Name         string `json:"Name" salesforce:"Name"`
	Website      string `json:"Website" salesforce:"Website"`
	Phone        string `json:"Phone" salesforce:"Phone"`
	Description  string `json:"Description" salesforce:"Description"`
	BillingCity  string `json:"BillingCity" salesforce:"BillingCity"`
	BillingState string `json:"BillingState" salesforce:"BillingState"`
	Type         string `json:"Type" salesforce:"Type"`
	Fingerprint  string `json:"Fingerprint__c" salesforce:"Fingerprint__c"`
}

// accountFields are the SOQL fields selected for Account queries.
var accountFields = []string{
	"Id", "Name", "Website", "Phone", "Description",
	"BillingCity", "BillingState", "Type", FingerprintField,
}

// FindAccountsByFingerprints queries Salesforce for Accounts matching any of
// the given fingerprints. Queries are chunked to stay under SOQL length
// limits. The result maps fingerprint to account.
func FindAccountsByFingerprints(ctx context.Context, c Client, fingerprints []string) (map[string]Account, error) {
	found := make(map[string]Account, len(fingerprints))

	for start := 0; start < len(fingerprints); start += maxBatchSize {
		end := min(start+maxBatchSize, len(fingerprints))
		chunk := fingerprints[start:end]

		quoted := make([]string, len(chunk))
		for i, fp := range chunk {
			quoted[i] = "'" + escapeSoql(fp) + "'"
		}
		soql := fmt.Sprintf(
			"SELECT %s FROM Account WHERE %s IN (%s)",
			strings.Join(accountFields, ", "),
			FingerprintField,
			strings.Join(quoted, ", "),
		)

		var accounts []Account
		if err := c.Query(ctx, soql, &accounts); err != nil {
			return nil, eris.Wrap(err, "sf: find accounts by fingerprint")
		}
		for _, a := range accounts {
			found[a.Fingerprint] = a
		}
	}

	return found, nil
}

// FindAccountByWebsite queries Salesforce for an Account matching the given
// website. Returns nil if no account is found.
func FindAccountByWebsite(ctx context.Context, c Client, website string) (*Account, error) {
	soql := fmt.Sprintf(
		"SELECT %s FROM Account WHERE Website LIKE '%s' LIMIT 1",
		strings.Join(accountFields, ", "),
		escapeSoql(website),
	)

	var accounts []Account
	if err := c.Query(ctx, soql, &accounts); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("sf: find account by website %s", website))
	}
	if len(accounts) == 0 {
		return nil, nil
	}
	return &accounts[0], nil
}

// HasAccountField reports whether the org's Account object defines the named
// field. Used to detect whether the fingerprint custom field is provisioned.
func HasAccountField(ctx context.Context, c Client, field string) (bool, error) {
	desc, err := c.DescribeSObject(ctx, "Account")
	if err != nil {
		return false, eris.Wrap(err, "sf: describe account")
	}
	for _, f := range desc.Fields {
		if strings.EqualFold(f.Name, field) {
			return true, nil
		}
	}
	return false, nil
}

// escapeSoql escapes single quotes in SOQL string literals to prevent injection.
func escapeSoql(s string) string {
	return strings.ReplaceAll(s, "'", "\\'")
}
