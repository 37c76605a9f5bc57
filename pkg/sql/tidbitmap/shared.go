// Copyright 2018 The Cockroach Authors.
//
// Use of this software is governed by the Business Source License
// included in the file licenses/BSL.txt.
//
// As of the Change Date specified in that file, in accordance with
// the Business Source License, use of this software will be governed
// by the Apache License, Version 2.0, included in the file
// licenses/APL.txt.

package tidbitmap

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/physprops/pkg/util/log"
	"github.com/cockroachdb/physprops/pkg/util/syncutil"
	"github.com/cockroachdb/redact"
	"github.com/panjf2000/ants/v2"
)

// SharedIterState is a single iteration over a frozen bitmap that any number
// of SharedIterators advance together. Each page is produced exactly once
// across all of them.
type SharedIterState struct {
	refs atomic.Int32

	mu struct {
		syncutil.Mutex
		c       cursor
		spages  []*pageEntry
		schunks []*pageEntry
	}
}

// PrepareSharedIterate freezes the bitmap and returns the state that
// iterators attach to.
func (b *Bitmap) PrepareSharedIterate() *SharedIterState {
	b.freeze()
	s := &SharedIterState{}
	s.mu.spages = b.spages
	s.mu.schunks = b.schunks
	return s
}

// Attach returns a new iterator reading from the shared state.
func (s *SharedIterState) Attach() *SharedIterator {
	s.refs.Add(1)
	return &SharedIterator{
		state:   s,
		offsets: make([]OffsetNumber, MaxTuplesPerPage),
	}
}

// SharedIterator is one participant in a shared iteration. It is not safe
// for concurrent use; give each goroutine its own.
type SharedIterator struct {
	state    *SharedIterState
	detached bool
	entry    pageEntry
	offsets  []OffsetNumber
}

// Next advances the shared cursor by one page and returns that page.
func (it *SharedIterator) Next() (IterateResult, bool) {
	if it.detached {
		panic(errors.AssertionFailedf("shared iterator used after Detach"))
	}
	s := it.state
	s.mu.Lock()
	page, ok := s.mu.c.next(s.mu.spages, s.mu.schunks, &it.entry)
	if ok {
		it.entry = *page
	}
	s.mu.Unlock()
	if !ok {
		return IterateResult{}, false
	}
	return expandPage(&it.entry, it.offsets), true
}

// Detach releases the iterator. The last iterator to detach drops the shared
// arrays, after which the state produces no more pages.
func (it *SharedIterator) Detach() {
	if it.detached {
		return
	}
	it.detached = true
	s := it.state
	refs := s.refs.Add(-1)
	if refs < 0 {
		panic(errors.AssertionFailedf("shared iteration refcount went negative: %d", redact.Safe(refs)))
	}
	if refs == 0 {
		s.mu.Lock()
		s.mu.spages, s.mu.schunks = nil, nil
		s.mu.Unlock()
		log.VEventf(context.TODO(), 3, "shared bitmap iteration released")
	}
}

// ScanFunc processes one page during a parallel scan.
type ScanFunc func(ctx context.Context, res IterateResult) error

// ParallelScan runs workers goroutines, each attached to state, calling fn
// for every page until the bitmap is exhausted, fn fails or ctx is canceled.
// fn is called concurrently. The first error is returned.
func ParallelScan(ctx context.Context, state *SharedIterState, workers int, fn ScanFunc) error {
	if workers < 1 {
		return errors.Newf("invalid number of workers: %d", workers)
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return errors.Wrap(err, "creating scan pool")
	}
	defer pool.Release()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	setErr := func(err error) {
		once.Do(func() {
			firstErr = err
			cancel()
		})
	}
	for i := 0; i < workers; i++ {
		it := state.Attach()
		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			defer it.Detach()
			for {
				if err := ctx.Err(); err != nil {
					setErr(err)
					return
				}
				res, ok := it.Next()
				if !ok {
					return
				}
				if err := fn(ctx, res); err != nil {
					setErr(err)
					return
				}
			}
		}); err != nil {
			wg.Done()
			it.Detach()
			setErr(errors.Wrap(err, "submitting scan worker"))
			break
		}
	}
	wg.Wait()
	return firstErr
}
