package transfer

import (
	"context"
	"errors"
	"os"
	"sync"
)

// fakeStore is an in-memory ObjectStore with per-URI failure injection.
type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte

	copyFails     map[string]*failure
	downloadFails map[string]*failure
	uploadFails   map[string]*failure

	copyCalls     map[string]int
	downloadCalls map[string]int
	uploadCalls   map[string]int
	existsCalls   map[string]int
}

// failure fails an operation the given number of times; negative means
// always.
type failure struct {
	err   error
	times int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		objects:       make(map[string][]byte),
		copyFails:     make(map[string]*failure),
		downloadFails: make(map[string]*failure),
		uploadFails:   make(map[string]*failure),
		copyCalls:     make(map[string]int),
		downloadCalls: make(map[string]int),
		uploadCalls:   make(map[string]int),
		existsCalls:   make(map[string]int),
	}
}

func (f *fakeStore) put(uri string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[uri] = data
}

func (f *fakeStore) has(uri string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[uri]
	return ok
}

func (f *fakeStore) failCopy(src string, err error, times int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.copyFails[src] = &failure{err: err, times: times}
}

func (f *fakeStore) failUpload(dst string, err error, times int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploadFails[dst] = &failure{err: err, times: times}
}

func (f *fakeStore) copies(src string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.copyCalls[src]
}

func (f *fakeStore) downloads(src string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.downloadCalls[src]
}

func (fl *failure) take() error {
	if fl == nil {
		return nil
	}
	if fl.times < 0 {
		return fl.err
	}
	if fl.times > 0 {
		fl.times--
		return fl.err
	}
	return nil
}

func (f *fakeStore) Copy(ctx context.Context, src, dst string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.copyCalls[src]++
	if err := f.copyFails[src].take(); err != nil {
		return err
	}

	data, ok := f.objects[src]
	if !ok {
		return &NotFoundError{URI: src}
	}
	f.objects[dst] = data
	return nil
}

func (f *fakeStore) Download(ctx context.Context, src, localPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.downloadCalls[src]++
	if err := f.downloadFails[src].take(); err != nil {
		return err
	}

	data, ok := f.objects[src]
	if !ok {
		return &NotFoundError{URI: src}
	}
	return os.WriteFile(localPath, data, 0600)
}

func (f *fakeStore) Upload(ctx context.Context, localPath, dst string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.uploadCalls[dst]++
	if err := f.uploadFails[dst].take(); err != nil {
		return err
	}

	data, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	f.objects[dst] = data
	return nil
}

func (f *fakeStore) Exists(ctx context.Context, uri string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.existsCalls[uri]++
	_, ok := f.objects[uri]
	return ok, nil
}

// errTransient is a reusable injected backend failure.
var errTransient = &BackendError{URI: "s3://src/x", Op: "copy", Err: errors.New("503")}
