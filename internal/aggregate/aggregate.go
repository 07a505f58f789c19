// Package aggregate normalizes heterogeneous per-provider payloads from a
// completed job into a unified summary plus per-provider render views.
package aggregate

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/casedesk/intel-cli/internal/model"
)

// keyFindingFields is the fixed set of cross-provider fields of interest,
// in extraction priority order.
var keyFindingFields = []string{"name", "email", "location"}

// maxKeyFindings caps the summary's key-finding list.
const maxKeyFindings = 5

// ConfidenceBucket is the display classification of a provider confidence.
type ConfidenceBucket string

const (
	BucketHigh   ConfidenceBucket = "high"
	BucketMedium ConfidenceBucket = "medium"
	BucketLow    ConfidenceBucket = "low"
)

// Bucket classifies a confidence score: high >= 0.8, medium >= 0.5,
// low below that.
func Bucket(confidence float64) ConfidenceBucket {
	switch {
	case confidence >= 0.8:
		return BucketHigh
	case confidence >= 0.5:
		return BucketMedium
	default:
		return BucketLow
	}
}

// KeyFinding is one deduplicated cross-provider field of interest.
type KeyFinding struct {
	Field    string `json:"field"`
	Value    string `json:"value"`
	Provider string `json:"provider"` // first provider that reported it
}

// ProviderView is the per-provider rendering of a result: confidence
// bucket and extracted fields on success, the error text on failure.
type ProviderView struct {
	ProviderKey string            `json:"provider_key"`
	Success     bool              `json:"success"`
	Bucket      ConfidenceBucket  `json:"bucket,omitempty"`
	Fields      map[string]string `json:"fields,omitempty"`
	Error       string            `json:"error,omitempty"`
}

// Summary is the unified view over all provider results.
type Summary struct {
	SuccessCount int            `json:"success_count"`
	FailureCount int            `json:"failure_count"`
	KeyFindings  []KeyFinding   `json:"key_findings"`
	Providers    []ProviderView `json:"providers"`
}

// Aggregate partitions provider results, extracts key findings from
// successful payloads, and builds per-provider views. Malformed payloads
// never fail aggregation; such providers simply contribute no fields.
func Aggregate(results []model.ProviderResult) Summary {
	s := Summary{
		KeyFindings: []KeyFinding{},
		Providers:   make([]ProviderView, 0, len(results)),
	}

	seen := make(map[[2]string]bool) // (field, value) dedup across providers

	for _, r := range results {
		if !r.Success {
			s.FailureCount++
			s.Providers = append(s.Providers, ProviderView{
				ProviderKey: r.ProviderKey,
				Error:       r.Error,
			})
			continue
		}

		s.SuccessCount++
		fields := extractFields(r)
		s.Providers = append(s.Providers, ProviderView{
			ProviderKey: r.ProviderKey,
			Success:     true,
			Bucket:      Bucket(r.Confidence),
			Fields:      fields,
		})

		for _, field := range keyFindingFields {
			value, ok := fields[field]
			if !ok || value == "" {
				continue
			}
			key := [2]string{field, value}
			if seen[key] {
				continue
			}
			seen[key] = true
			if len(s.KeyFindings) < maxKeyFindings {
				s.KeyFindings = append(s.KeyFindings, KeyFinding{
					Field:    field,
					Value:    value,
					Provider: r.ProviderKey,
				})
			}
		}
	}

	return s
}

// extractFields pulls the string-renderable fields of interest out of a
// provider payload. A payload that is not a JSON object is tolerated and
// yields no fields.
func extractFields(r model.ProviderResult) map[string]string {
	if len(r.Payload) == 0 {
		return nil
	}

	var payload map[string]any
	if err := json.Unmarshal(r.Payload, &payload); err != nil {
		zap.L().Warn("aggregate: malformed provider payload, ignoring",
			zap.String("provider", r.ProviderKey),
			zap.Error(err),
		)
		return nil
	}

	fields := make(map[string]string)
	for _, key := range keyFindingFields {
		v, ok := payload[key]
		if !ok || v == nil {
			continue
		}
		switch val := v.(type) {
		case string:
			if val != "" {
				fields[key] = val
			}
		case float64, bool:
			fields[key] = fmt.Sprintf("%v", val)
		default:
			// Nested structures are provider-specific detail, not a
			// cross-provider finding.
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}
