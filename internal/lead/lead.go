// Package lead defines the candidate model shared by the discovery,
// enrichment, and delivery stages: stable fingerprints, deterministic
// keyword scoring, and the enrichment overlay.
package lead

// Candidate is one scored search hit. Immutable once produced; the
// fingerprint is the dedup and identity key for within-run merging and
// for the sent-ledger.
type Candidate struct {
	Fingerprint string   `json:"fingerprint"`
	Score       int      `json:"score"`
	Reasons     []string `json:"reasons,omitempty"`
	Title       string   `json:"title"`
	URL         string   `json:"url"`
	Description string   `json:"description,omitempty"`
	Host        string   `json:"host"`
}

// Enrichment is the best-effort business profile extracted for a selected
// candidate. Fingerprint ties it back to the candidate it describes.
type Enrichment struct {
	Fingerprint string `json:"fingerprint"`
	Name        string `json:"name"`
	MainPhone   string `json:"main_phone,omitempty"`
	Address     string `json:"address,omitempty"`
	Website     string `json:"website,omitempty"`
	Description string `json:"description,omitempty"`
	Reason      string `json:"reason,omitempty"`
}
