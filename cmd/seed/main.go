// Package main seeds an intake directory with example definitions.
//
// The server loads intake definitions from submission.intake_dir at boot.
// This command writes a known-good starter set there and validates each
// one through the same registry used at runtime, so a bad seed fails here
// instead of at server startup.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/amitpaz1/formbridge-sub001/internal/approval"
	"github.com/amitpaz1/formbridge-sub001/internal/config"
	"github.com/amitpaz1/formbridge-sub001/internal/domain"
	"github.com/amitpaz1/formbridge-sub001/internal/pkg/logger"
	"github.com/amitpaz1/formbridge-sub001/internal/registry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "seed error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	dir := cfg.Submission.IntakeDir
	if dir == "" {
		dir = "intakes"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create intake dir: %w", err)
	}

	reg := registry.New()
	reg.SetConditionValidator(approval.NewConditionEvaluator())

	for _, def := range sampleIntakes() {
		if err := reg.Register(def); err != nil {
			return fmt.Errorf("validate intake %s: %w", def.ID, err)
		}
		data, err := json.MarshalIndent(def, "", "  ")
		if err != nil {
			return fmt.Errorf("encode intake %s: %w", def.ID, err)
		}
		path := filepath.Join(dir, def.ID+".json")
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		logger.Info("intake seeded",
			zap.String("intake", def.ID),
			zap.String("path", path),
		)
	}
	return nil
}

func intp(v int) *int           { return &v }
func floatp(v float64) *float64 { return &v }

func sampleIntakes() []*domain.IntakeDefinition {
	return []*domain.IntakeDefinition{
		{
			ID:      "vendor_onboarding",
			Version: "1.0.0",
			Title:   "Vendor Onboarding",
			Schema: &domain.FieldSchema{
				Type: "object",
				Properties: map[string]*domain.FieldSchema{
					"legal_name":     {Type: "string", MinLength: intp(1)},
					"country":        {Type: "string", Pattern: "^[A-Z]{2}$"},
					"tax_id":         {Type: "string"},
					"annual_revenue": {Type: "number", Minimum: floatp(0)},
					"contract":       {Type: "file", MaxSize: 10 << 20, AllowedTypes: []string{"application/pdf"}},
				},
				Required: []string{"legal_name", "country"},
			},
			Destination: &domain.Destination{URL: "https://crm.example.com/webhooks/vendors"},
			ApprovalGates: []domain.ApprovalGate{
				{ID: "high_revenue_approval", Condition: "annual_revenue > 1000000", Required: true},
			},
		},
		{
			ID:      "support_request",
			Version: "1.0.0",
			Title:   "Support Request",
			Schema: &domain.FieldSchema{
				Type: "object",
				Properties: map[string]*domain.FieldSchema{
					"subject":  {Type: "string", MinLength: intp(1), MaxLength: intp(200)},
					"body":     {Type: "string"},
					"severity": {Type: "string", Enum: []any{"low", "normal", "high", "urgent"}},
					"email":    {Type: "string", Format: "email"},
				},
				Required: []string{"subject", "email"},
			},
			Destination: &domain.Destination{URL: "https://helpdesk.example.com/hooks/intake"},
		},
	}
}
