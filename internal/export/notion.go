package export

import (
	"context"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospector/pkg/notion"
)

// FingerprintProp is the rich_text property on the leads database that
// holds the lead fingerprint. It is the idempotency key: a page with a
// matching fingerprint is updated, never duplicated.
const FingerprintProp = "Fingerprint"

// NotionExporter pushes committed leads into a Notion leads database.
type NotionExporter struct {
	client notion.Client
	dbID   string
}

// NewNotion creates a NotionExporter targeting the given database.
func NewNotion(client notion.Client, dbID string) *NotionExporter {
	return &NotionExporter{client: client, dbID: dbID}
}

// Export upserts each lead as a page keyed by fingerprint. Lookup
// failures abort (they indicate bad credentials or a wrong database);
// per-page write failures are logged and tallied, and the remaining
// leads still export.
func (x *NotionExporter) Export(ctx context.Context, leads []Lead) (*Result, error) {
	log := zap.L().With(zap.String("db", x.dbID))
	res := &Result{}

	for _, l := range leads {
		pages, err := notion.FindByRichText(ctx, x.client, x.dbID, FingerprintProp, l.Fingerprint)
		if err != nil {
			return res, eris.Wrapf(err, "export: notion lookup %s", l.Fingerprint)
		}

		props := x.pageProperties(l)
		if len(pages) == 0 {
			_, err = x.client.CreatePage(ctx, &notionapi.PageCreateRequest{
				Parent: notionapi.Parent{
					Type:       notionapi.ParentTypeDatabaseID,
					DatabaseID: notionapi.DatabaseID(x.dbID),
				},
				Properties: props,
			})
			if err != nil {
				log.Warn("export: notion create failed",
					zap.String("fingerprint", l.Fingerprint),
					zap.Error(err),
				)
				res.Failed++
				continue
			}
			res.Created++
		} else {
			_, err = x.client.UpdatePage(ctx, string(pages[0].ID), &notionapi.PageUpdateRequest{
				Properties: props,
			})
			if err != nil {
				log.Warn("export: notion update failed",
					zap.String("fingerprint", l.Fingerprint),
					zap.Error(err),
				)
				res.Failed++
				continue
			}
			res.Updated++
		}
	}

	log.Info("export: notion complete",
		zap.Int("created", res.Created),
		zap.Int("updated", res.Updated),
		zap.Int("failed", res.Failed),
	)
	if res.Failed > 0 {
		return res, eris.Errorf("export: %d of %d notion pages failed", res.Failed, len(leads))
	}
	return res, nil
}

func (x *NotionExporter) pageProperties(l Lead) notionapi.Properties {
	committed := notionapi.Date(l.CommittedAt)
	props := notionapi.Properties{
		"Name": notionapi.TitleProperty{
			Type: notionapi.PropertyTypeTitle,
			Title: []notionapi.RichText{
				{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: displayName(l)}},
			},
		},
		"URL": notionapi.URLProperty{
			Type: notionapi.PropertyTypeURL,
			URL:  website(l),
		},
		FingerprintProp: richText(l.Fingerprint),
		"Metro":         richText(l.Metro),
		"Run":           richText(l.RunID),
		"Committed": notionapi.DateProperty{
			Type: notionapi.PropertyTypeDate,
			Date: &notionapi.DateObject{Start: &committed},
		},
	}

	// Optional enrichment columns only when populated, so sparse rows
	// stay blank instead of carrying empty strings.
	if l.Phone != "" {
		props["Phone"] = richText(l.Phone)
	}
	if l.Address != "" {
		props["Address"] = richText(l.Address)
	}
	if l.Description != "" {
		props["About"] = richText(l.Description)
	}
	return props
}

func richText(v string) notionapi.RichTextProperty {
	return notionapi.RichTextProperty{
		Type: notionapi.PropertyTypeRichText,
		RichText: []notionapi.RichText{
			{Type: notionapi.ObjectTypeText, Text: &notionapi.Text{Content: v}},
		},
	}
}
