package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pario-ai/formwork/pkg/config"
	"github.com/pario-ai/formwork/pkg/engine"
	"github.com/pario-ai/formwork/pkg/models"
	"github.com/pario-ai/formwork/pkg/shape"
)

func newRunCmd() *cobra.Command {
	var (
		configPath   string
		providerName string
		task         string
		contextPath  string
		schemaPath   string
		fallback     string
		stream       bool
		noCache      bool
		retry        int
		timeout      time.Duration
		temperature  float64
		maxTokens    int
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one request and print the validated result as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			req := cfg.Defaults.Request()
			req.Task = task
			if req.Shape, err = loadShape(schemaPath); err != nil {
				return err
			}
			if contextPath != "" {
				if req.Context, err = loadContext(contextPath); err != nil {
					return err
				}
			}
			if fallback != "" {
				var v any
				if err := json.Unmarshal([]byte(fallback), &v); err != nil {
					return fmt.Errorf("parse fallback: %w", err)
				}
				req.Fallback = engine.FallbackValue(v)
			}

			flags := cmd.Flags()
			if flags.Changed("retry") {
				req.Retry = retry
			}
			if flags.Changed("timeout") {
				req.Timeout = timeout
			}
			if flags.Changed("temperature") {
				req.Temperature = temperature
			}
			if flags.Changed("max-tokens") {
				req.MaxTokens = maxTokens
			}
			if noCache {
				req.Cache = engine.CacheNone
			}

			rt, err := newRuntime(cfg, providerName, nil)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var result *models.Result
			if stream {
				errOut := cmd.ErrOrStderr()
				result, err = rt.engine.ExecuteStream(ctx, req, func(c engine.Chunk) {
					if c.Done {
						fmt.Fprintln(errOut)
						return
					}
					fmt.Fprint(errOut, c.Delta)
				})
			} else {
				result, err = rt.engine.Execute(ctx, req)
			}
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&configPath, "config", "c", "formwork.yaml", "path to config file")
	f.StringVarP(&providerName, "provider", "p", "", "provider name from config (default: first)")
	f.StringVarP(&task, "task", "t", "", "what the model should produce")
	f.StringVar(&contextPath, "context", "", "file with input data (JSON, YAML or text)")
	f.StringVarP(&schemaPath, "schema", "s", "", "JSON Schema file (JSON or YAML)")
	f.StringVar(&fallback, "fallback", "", "JSON value returned when every attempt fails")
	f.BoolVar(&stream, "stream", false, "stream output to stderr while it arrives")
	f.BoolVar(&noCache, "no-cache", false, "bypass the session cache")
	f.IntVar(&retry, "retry", 0, "extra attempts after the first")
	f.DurationVar(&timeout, "timeout", 0, "per-attempt timeout")
	f.Float64Var(&temperature, "temperature", 0, "sampling temperature")
	f.IntVar(&maxTokens, "max-tokens", 0, "output token cap")
	_ = cmd.MarkFlagRequired("task")
	_ = cmd.MarkFlagRequired("schema")
	return cmd
}

func loadShape(path string) (shape.Shape, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	s, err := shape.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	return s, nil
}

// loadContext decodes JSON or YAML documents; anything else is passed on as
// text.
func loadContext(path string) (any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read context: %w", err)
	}
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return string(data), nil
	}
	switch v.(type) {
	case map[string]any, []any:
		return v, nil
	}
	return string(data), nil
}
