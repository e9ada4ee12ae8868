package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Fetcher stages replicated backup artifacts from object storage into a
// local directory, downloading in parallel and skipping artifacts that
// are already staged.
type Fetcher struct {
	storage     ObjectStorage
	concurrency int
	stageDir    string
}

// FetchResult contains the outcome of a staging operation.
type FetchResult struct {
	LocalPaths map[string]string
	Errors     map[string]error
	Skipped    int
	Downloads  int
}

// NewFetcher creates a new fetcher.
// storage: the ObjectStorage implementation to download from
// concurrency: maximum number of parallel downloads
// stageDir: directory to stage downloaded artifacts (empty = working directory)
func NewFetcher(storage ObjectStorage, concurrency int, stageDir string) *Fetcher {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Fetcher{
		storage:     storage,
		concurrency: concurrency,
		stageDir:    stageDir,
	}
}

// Fetch downloads the given objects in parallel. Artifact names embed
// their creation timestamp, so descending name order stages the newest
// backup first and a restore can begin before older ones arrive.
func (f *Fetcher) Fetch(ctx context.Context, objectPaths []string) (*FetchResult, error) {
	result := &FetchResult{
		LocalPaths: make(map[string]string),
		Errors:     make(map[string]error),
	}
	if len(objectPaths) == 0 {
		return result, nil
	}

	paths := make([]string, len(objectPaths))
	copy(paths, objectPaths)
	sort.Sort(sort.Reverse(sort.StringSlice(paths)))

	// Separate already-staged artifacts from downloads
	type staged struct {
		object string
		local  string
	}
	var queue []staged
	for _, p := range paths {
		local := f.localPath(p)
		if f.stageDir != "" {
			if _, err := os.Stat(local); err == nil {
				result.LocalPaths[p] = local
				result.Skipped++
				continue
			}
		}
		queue = append(queue, staged{object: p, local: local})
	}

	if f.stageDir != "" {
		if err := os.MkdirAll(f.stageDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create stage directory: %w", err)
		}
	}

	// Process downloads with semaphore
	sem := semaphore.NewWeighted(int64(f.concurrency))
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, s := range queue {
		if err := sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			result.Errors[s.object] = fmt.Errorf("semaphore acquire failed: %w", err)
			mu.Unlock()
			continue
		}

		wg.Add(1)
		go func(object, local string) {
			defer sem.Release(1)
			defer wg.Done()

			if err := f.storage.Download(ctx, object, local); err != nil {
				mu.Lock()
				result.Errors[object] = err
				mu.Unlock()
				return
			}

			mu.Lock()
			result.LocalPaths[object] = local
			result.Downloads++
			mu.Unlock()
		}(s.object, s.local)
	}

	wg.Wait()

	return result, nil
}

// FetchPrefix stages every object under the given prefix.
func (f *Fetcher) FetchPrefix(ctx context.Context, prefix string) (*FetchResult, error) {
	objects, err := f.storage.ListObjects(ctx, prefix)
	if err != nil {
		return nil, err
	}
	return f.Fetch(ctx, objects)
}

// localPath returns the staging path for an object. Only the base name
// is used so object keys cannot escape the stage directory.
func (f *Fetcher) localPath(objectPath string) string {
	name := filepath.Base(filepath.FromSlash(objectPath))
	if f.stageDir == "" {
		return name
	}
	return filepath.Join(f.stageDir, name)
}
