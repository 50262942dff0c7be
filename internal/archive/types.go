package archive

import (
	"time"

	"github.com/wolfman30/wellness-booking/internal/credits"
)

// Record is one archived ledger line. Descriptions are scrubbed of contact details.
type Record struct {
	Version string `json:"version"`
	credits.Transaction
}

// ManifestEntry is one JSONL line in the archive manifest.
type ManifestEntry struct {
	Month            string    `json:"month"`
	S3Key            string    `json:"s3_key"`
	TransactionCount int       `json:"transaction_count"`
	NetAmount        string    `json:"net_amount"`
	ArchivedAt       time.Time `json:"archived_at"`
}

// Result summarizes one monthly archive run.
type Result struct {
	Month            string `json:"month"`
	S3Key            string `json:"s3_key"`
	TransactionCount int    `json:"transaction_count"`
	NetAmount        string `json:"net_amount"`
}
