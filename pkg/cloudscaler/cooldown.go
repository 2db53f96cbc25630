package cloudscaler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stackguardian/runner-autoscaler/pkg/blobstore"
)

// timeLayout is the ISO-8601 microsecond-precision format the original
// Python implementation writes with datetime.isoformat() (e.g.
// "2024-01-15T10:30:00.123456"). Go's time.RFC3339Nano would append a
// "Z"/offset and use nanosecond precision; we match the original wire
// format exactly so cross-implementation blobs stay compatible.
const timeLayout = "2006-01-02T15:04:05.000000"

// cooldownLedger is the single, correct implementation of the four
// cooldown-persistence operations, shared by AWSScaler and AzureScaler.
//
// The original source duplicates this logic once per cloud provider and
// inverts it in places (the Azure variant's get_last_scale_in_event
// returns a value only when the blob is *absent*, and
// _is_vm_scale_in_protected returns the protection flag only when the
// policy is *None*). Sharing one implementation here removes the
// duplication and the cooldown-read inversion; the protection-check
// inversion is corrected separately, in azureInstanceProtected.
type cooldownLedger struct {
	store        blobstore.BlobStore
	scaleOutBlob string
	scaleInBlob  string
}

func newCooldownLedger(store blobstore.BlobStore, scaleOutBlobName, scaleInBlobName string) cooldownLedger {
	return cooldownLedger{
		store:        store,
		scaleOutBlob: scaleOutBlobName,
		scaleInBlob:  scaleInBlobName,
	}
}

func (l cooldownLedger) GetLastScaleOutEvent(ctx context.Context) (time.Time, bool, error) {
	return l.getEvent(ctx, l.scaleOutBlob)
}

func (l cooldownLedger) SetLastScaleOutEvent(ctx context.Context, t time.Time) error {
	return l.setEvent(ctx, l.scaleOutBlob, t)
}

func (l cooldownLedger) GetLastScaleInEvent(ctx context.Context) (time.Time, bool, error) {
	return l.getEvent(ctx, l.scaleInBlob)
}

func (l cooldownLedger) SetLastScaleInEvent(ctx context.Context, t time.Time) error {
	return l.setEvent(ctx, l.scaleInBlob, t)
}

// getEvent parses and returns the timestamp when the blob is present;
// returns (zero, false, nil) when the blob is absent. This is the
// corrected behavior spec.md §9 calls for: the original Azure variant
// has this backwards.
func (l cooldownLedger) getEvent(ctx context.Context, blobName string) (time.Time, bool, error) {
	content, err := l.store.Get(ctx, blobName)
	if errors.Is(err, blobstore.ErrNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("cloudscaler: read cooldown blob %s: %w", blobName, err)
	}

	t, err := time.Parse(timeLayout, string(content))
	if err != nil {
		return time.Time{}, false, fmt.Errorf("cloudscaler: parse cooldown blob %s: %w", blobName, err)
	}
	return t, true, nil
}

func (l cooldownLedger) setEvent(ctx context.Context, blobName string, t time.Time) error {
	if err := l.store.Put(ctx, blobName, []byte(t.UTC().Format(timeLayout))); err != nil {
		return fmt.Errorf("cloudscaler: write cooldown blob %s: %w", blobName, err)
	}
	return nil
}
