package main

import (
	"fmt"
	"log"

	"github.com/pario-ai/formwork/pkg/config"
	"github.com/pario-ai/formwork/pkg/engine"
	"github.com/pario-ai/formwork/pkg/metrics"
	"github.com/pario-ai/formwork/pkg/provider"
	"github.com/pario-ai/formwork/pkg/provider/anthropic"
	"github.com/pario-ai/formwork/pkg/provider/openai"
	"github.com/pario-ai/formwork/pkg/tracker"
)

// buildProvider turns a provider entry into the Basic or Streaming variant
// its config asks for.
func buildProvider(pc config.ProviderConfig) provider.Provider {
	var exec provider.StreamExecutor
	switch pc.Type {
	case "anthropic":
		exec = anthropic.New(anthropic.Config{Name: pc.Name, URL: pc.URL, APIKey: pc.APIKey, Model: pc.Model})
	default:
		exec = openai.New(openai.Config{Name: pc.Name, URL: pc.URL, APIKey: pc.APIKey, Model: pc.Model})
	}
	if pc.Stream {
		return provider.Streaming(pc.Name, exec)
	}
	return provider.Basic(pc.Name, exec)
}

// runtime is everything a command needs to execute requests.
type runtime struct {
	engine  *engine.Engine
	tracker tracker.Tracker // nil when db_path is empty
}

func (r *runtime) Close() {
	if r.tracker != nil {
		if err := r.tracker.Close(); err != nil {
			log.Printf("close tracker: %v", err)
		}
	}
}

func newRuntime(cfg *config.Config, providerName string, collector metrics.Collector) (*runtime, error) {
	pc, err := cfg.Provider(providerName)
	if err != nil {
		return nil, err
	}

	rt := &runtime{}
	opts := engine.Options{
		Metrics:        collector,
		DefaultTimeout: cfg.Defaults.Timeout,
		RetryDelay:     cfg.Defaults.RetryDelay,
	}
	if cfg.DBPath != "" {
		tr, err := tracker.New(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("init tracker: %w", err)
		}
		rt.tracker = tr
		opts.Recorder = tr
	}

	rt.engine = engine.New(buildProvider(pc), opts)
	return rt, nil
}
