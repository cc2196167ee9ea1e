package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestInflightGroup_Coalesces(t *testing.T) {
	group := newInflightGroup()

	var executions int32
	started := make(chan struct{})
	release := make(chan struct{})

	fn := func() (*Result, error) {
		atomic.AddInt32(&executions, 1)
		close(started)
		<-release
		return &Result{Data: json.RawMessage(`{"n":1}`)}, nil
	}

	var wg sync.WaitGroup
	shared := make([]bool, 5)
	results := make([]*Result, 5)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], shared[0], _ = group.Do(context.Background(), "k", fn)
	}()
	<-started

	for i := 1; i < 5; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			results[n], shared[n], _ = group.Do(context.Background(), "k", fn)
		}(i)
	}
	time.Sleep(20 * time.Millisecond) // let waiters attach
	close(release)
	wg.Wait()

	if got := atomic.LoadInt32(&executions); got != 1 {
		t.Errorf("executions = %d, want 1", got)
	}

	sharedCount := 0
	for i, r := range results {
		if r == nil || string(r.Data) != `{"n":1}` {
			t.Errorf("results[%d] = %+v", i, r)
		}
		if shared[i] {
			sharedCount++
		}
	}
	if sharedCount != 4 {
		t.Errorf("shared callers = %d, want 4", sharedCount)
	}
}

func TestInflightGroup_DistinctKeys(t *testing.T) {
	group := newInflightGroup()

	_, sharedA, _ := group.Do(context.Background(), "a", func() (*Result, error) {
		return &Result{}, nil
	})
	_, sharedB, _ := group.Do(context.Background(), "b", func() (*Result, error) {
		return &Result{}, nil
	})

	if sharedA || sharedB {
		t.Error("sequential calls on distinct keys reported shared")
	}
}

func TestInflightGroup_ErrorIsShared(t *testing.T) {
	group := newInflightGroup()

	boom := errors.New("boom")
	started := make(chan struct{})
	release := make(chan struct{})

	go group.Do(context.Background(), "k", func() (*Result, error) {
		close(started)
		<-release
		return nil, boom
	})
	<-started

	errCh := make(chan error, 1)
	go func() {
		_, _, err := group.Do(context.Background(), "k", func() (*Result, error) {
			t.Error("waiter executed fn")
			return nil, nil
		})
		errCh <- err
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)

	if err := <-errCh; !errors.Is(err, boom) {
		t.Errorf("waiter error = %v, want boom", err)
	}
}

func TestInflightGroup_WaiterHonorsContext(t *testing.T) {
	group := newInflightGroup()

	started := make(chan struct{})
	release := make(chan struct{})
	defer close(release)

	go group.Do(context.Background(), "k", func() (*Result, error) {
		close(started)
		<-release
		return &Result{}, nil
	})
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, _, err := group.Do(ctx, "k", func() (*Result, error) { return &Result{}, nil })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("waiter error = %v, want context.DeadlineExceeded", err)
	}
}
