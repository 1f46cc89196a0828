package feed

import (
	"context"
	"fmt"

	"github.com/feedpoll/feedpoll/app/store"
)

// Detector computes the minimal write set for a batch of normalized items:
// records that are new or whose stored attribute document differs. Running
// detection twice on identical input yields an empty write set the second
// time.
type Detector struct {
	gateway *store.Gateway
}

func NewDetector(gateway *store.Gateway) *Detector {
	return &Detector{gateway: gateway}
}

// Detect reads the stored records for exactly the incoming key set in one
// batched lookup and returns the records requiring persistence. Output
// order is not significant.
func (d *Detector) Detect(ctx context.Context, records []store.Record) ([]store.Record, error) {
	if len(records) == 0 {
		return nil, nil
	}

	keys := make([]store.Key, 0, len(records))
	for _, record := range records {
		keys = append(keys, record.Key)
	}

	existing, err := d.gateway.BatchGet(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("failed to read stored items: %w", err)
	}

	var writeSet []store.Record
	for _, record := range records {
		stored, ok := existing[record.Key]
		if !ok || !stored.Attrs.Equal(record.Attrs) {
			writeSet = append(writeSet, record)
		}
	}

	return writeSet, nil
}
