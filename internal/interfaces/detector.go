package interfaces

import (
	"context"

	"github.com/ternarybob/capto/internal/models"
)

// AuthDetector classifies whether a URL requires authentication before its
// media can be downloaded. Detection never fails hard: network errors during
// probing degrade confidence instead of returning an error.
type AuthDetector interface {
	// DetectAuthRequirement runs the full staged classification, including
	// the optional network probe. opts may be nil for the configured probe
	// defaults.
	DetectAuthRequirement(ctx context.Context, rawURL string, opts *models.DetectOptions) *models.AuthRequirementResult

	// QuickCheck runs only the offline stages (URL patterns, known
	// platforms, domain heuristics). Never touches the network.
	QuickCheck(rawURL string) *models.AuthRequirementResult
}
