package scorer

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"github.com/sells-group/opportunity-cli/internal/model"
)

// ConfigHash returns a short SHA-256 digest of the scoring configuration so
// that persisted runs can be grouped by the settings that produced them.
func ConfigHash(w model.Weights, normalization string) string {
	data, err := json.Marshal(struct {
		Weights       model.Weights `json:"weights"`
		Normalization string        `json:"normalization"`
	}{w, normalization})
	if err != nil {
		return ""
	}
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:16])
}

// ConfigHash returns the digest of this scorer's weights and normalization.
func (s *OpportunityScorer) ConfigHash() string {
	return ConfigHash(s.weights, s.norm.Name())
}
