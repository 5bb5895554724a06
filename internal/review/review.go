package review

import (
	"time"

	"github.com/zombor/estimate-analyzer/internal/classify"
	"github.com/zombor/estimate-analyzer/internal/normalize"
	"github.com/zombor/estimate-analyzer/internal/scanning"
)

// DocumentRef points at an uploaded estimate in Storage
type DocumentRef struct {
	Key         string `json:"key"`
	ContentType string `json:"contentType"`
	Filename    string `json:"filename"`
}

// Review is one analyzed estimate. Analysis.DocumentType is the extractor's
// own hint; Classification is the keyword classifier's verdict.
type Review struct {
	ID             string                   `json:"id"`
	Document       DocumentRef              `json:"document"`
	Source         scanning.DocumentType    `json:"source"`
	Analysis       normalize.AnalysisResult `json:"analysis"`
	Classification classify.Verdict         `json:"classification"`
	CreatedAt      time.Time                `json:"createdAt"`
	UpdatedAt      time.Time                `json:"updatedAt"`
}
