package inventory

import "time"

// Pointer is the durable local record of which remote document is believed
// to hold the mapping record, plus the owner identity used to scope
// discovery. There is exactly one per installation. It is overwritten when
// discovery adopts a different document and never deleted automatically.
type Pointer struct {
	DocumentID string    `json:"document_id"`
	Owner      string    `json:"owner,omitempty"`
	AdoptedAt  time.Time `json:"adopted_at"`
}
