package main

import (
	"context"
	"os"

	"github.com/k-capehart/go-salesforce/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospector/internal/alert"
	"github.com/sells-group/prospector/internal/discovery"
	"github.com/sells-group/prospector/internal/enrich"
	"github.com/sells-group/prospector/internal/lead"
	"github.com/sells-group/prospector/internal/pipeline"
	"github.com/sells-group/prospector/internal/store"
	anthropicpkg "github.com/sells-group/prospector/pkg/anthropic"
	"github.com/sells-group/prospector/pkg/gmail"
	"github.com/sells-group/prospector/pkg/jina"
	notionpkg "github.com/sells-group/prospector/pkg/notion"
	sfpkg "github.com/sells-group/prospector/pkg/salesforce"
)

// pipelineEnv holds the initialized clients and the pipeline needed by
// the daily/resume/commit commands.
type pipelineEnv struct {
	Index    store.Store // may be nil when indexing is disabled
	Pipeline *pipeline.Pipeline
	Notifier *alert.Notifier
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Index != nil {
		_ = pe.Index.Close()
	}
}

// initPipeline validates config, sets up the API clients and the run
// index, and builds the Pipeline. Callers should defer env.Close().
func initPipeline(ctx context.Context, sending bool) (*pipelineEnv, error) {
	if err := cfg.Validate("daily"); err != nil {
		return nil, err
	}
	if sending {
		if err := cfg.Validate("send"); err != nil {
			return nil, err
		}
	}

	jinaOpts := []jina.Option{jina.WithBaseURL(cfg.Jina.BaseURL)}
	if cfg.Jina.SearchBaseURL != "" {
		jinaOpts = append(jinaOpts, jina.WithSearchBaseURL(cfg.Jina.SearchBaseURL))
	}
	jinaClient := jina.NewClient(cfg.Jina.Key, jinaOpts...)

	scoringCfg, err := lead.LoadScoringConfig(cfg.Discovery.ScoringPath)
	if err != nil {
		return nil, err
	}
	engine := discovery.NewEngine(jinaClient, lead.NewScorer(scoringCfg), &cfg.Discovery)

	anthropicClient := anthropicpkg.NewClient(cfg.Anthropic.Key)
	enricher := enrich.New(jinaClient, anthropicClient, cfg.Anthropic.Model, &cfg.Discovery)

	mailer := gmail.NewClient(gmail.Credentials{
		ClientID:     cfg.Gmail.ClientID,
		ClientSecret: cfg.Gmail.ClientSecret,
		RefreshToken: cfg.Gmail.RefreshToken,
	})

	// The JSON run record stays authoritative; a broken index only
	// costs the runs list/show commands, never a run.
	index, err := store.Open(ctx, cfg.Index)
	if err != nil {
		zap.L().Warn("run index unavailable, continuing without it", zap.Error(err))
		index = nil
	}

	p := pipeline.New(cfg, engine, enricher, mailer, index)

	return &pipelineEnv{
		Index:    index,
		Pipeline: p,
		Notifier: alert.NewNotifier(cfg.Alert),
	}, nil
}

// initIndex opens just the run index for the read-only commands.
func initIndex(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate("index"); err != nil {
		return nil, err
	}
	st, err := store.Open(ctx, cfg.Index)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, eris.New("run index is disabled (index.driver is empty)")
	}
	return st, nil
}

func initNotion() (notionpkg.Client, error) {
	if err := cfg.Validate("export-notion"); err != nil {
		return nil, err
	}
	return notionpkg.NewClient(cfg.Notion.Token), nil
}

func initSalesforce() (sfpkg.Client, error) {
	if err := cfg.Validate("export-salesforce"); err != nil {
		return nil, err
	}

	pemData, err := os.ReadFile(cfg.Salesforce.KeyPath)
	if err != nil {
		return nil, eris.Wrap(err, "read salesforce JWT private key")
	}

	sf, err := salesforce.Init(salesforce.Creds{
		Domain:         cfg.Salesforce.LoginURL,
		Username:       cfg.Salesforce.Username,
		ConsumerKey:    cfg.Salesforce.ClientID,
		ConsumerRSAPem: string(pemData),
	})
	if err != nil {
		return nil, eris.Wrap(err, "init salesforce")
	}

	return sfpkg.NewClient(sf), nil
}
