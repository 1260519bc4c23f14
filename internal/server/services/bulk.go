package services

import (
	"context"
	"sync"

	"github.com/avolkovs/vaultshare/internal/common"
)

// BulkFailure reports one share id that could not be transitioned, with its
// taxonomy code.
type BulkFailure struct {
	ShareID string `json:"share_id"`
	Error   string `json:"error"`
}

// BulkResult partitions a bulk request's ids into successes and failures.
// Every input id lands in exactly one of the two lists.
type BulkResult struct {
	Successful []string      `json:"successful"`
	Failed     []BulkFailure `json:"failed"`
}

// bulkWorkers caps the number of transitions a single bulk request runs
// concurrently.
const bulkWorkers = 8

// BulkAccept accepts each share independently. A failed item never aborts
// the rest of the batch.
func (s *ShareService) BulkAccept(ctx context.Context, actor Identity, shareIDs []string) *BulkResult {
	return s.bulk(ctx, shareIDs, func(ctx context.Context, id string) error {
		return s.Accept(ctx, actor, id)
	})
}

// BulkDecline declines each share independently.
func (s *ShareService) BulkDecline(ctx context.Context, actor Identity, shareIDs []string) *BulkResult {
	return s.bulk(ctx, shareIDs, func(ctx context.Context, id string) error {
		return s.Decline(ctx, actor, id)
	})
}

// BulkRevoke revokes each share independently.
func (s *ShareService) BulkRevoke(ctx context.Context, actor Identity, shareIDs []string) *BulkResult {
	return s.bulk(ctx, shareIDs, func(ctx context.Context, id string) error {
		return s.Revoke(ctx, actor, id)
	})
}

func (s *ShareService) bulk(ctx context.Context, shareIDs []string, op func(ctx context.Context, id string) error) *BulkResult {
	type outcome struct {
		id  string
		err error
	}
	outcomes := make([]outcome, len(shareIDs))

	var wg sync.WaitGroup
	sem := make(chan struct{}, bulkWorkers)
	for i, id := range shareIDs {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			outcomes[i] = outcome{id: id, err: op(ctx, id)}
		}(i, id)
	}
	wg.Wait()

	result := &BulkResult{
		Successful: make([]string, 0, len(shareIDs)),
		Failed:     make([]BulkFailure, 0),
	}
	for _, o := range outcomes {
		if o.err != nil {
			result.Failed = append(result.Failed, BulkFailure{
				ShareID: o.id,
				Error:   string(common.Classify(o.err).Kind),
			})
			continue
		}
		result.Successful = append(result.Successful, o.id)
	}
	return result
}
