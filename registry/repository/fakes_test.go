package repository

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/ioutil"
	"sync"
	"time"
)

type storedItem struct {
	content      []byte
	lastModified time.Time
}

type fakeStorage struct {
	mu    sync.Mutex
	items map[RepoPath]storedItem
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{items: make(map[RepoPath]storedItem)}
}

func (s *fakeStorage) put(p RepoPath, content string, lastModified time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[p] = storedItem{content: []byte(content), lastModified: lastModified}
}

func (s *fakeStorage) Info(_ context.Context, p RepoPath) (RepoResource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[p]
	if !ok {
		return NotFound(p), nil
	}
	return RepoResource{RepoPath: p, Found: true, LastModified: item.lastModified, Size: int64(len(item.content))}, nil
}

func (s *fakeStorage) Open(_ context.Context, p RepoPath) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[p]
	if !ok {
		return nil, errors.New("not found")
	}
	return ioutil.NopCloser(bytes.NewReader(item.content)), nil
}

func (s *fakeStorage) WriteCached(_ context.Context, p RepoPath, r io.Reader, lastModified time.Time) (RepoResource, error) {
	b, err := ioutil.ReadAll(r)
	if err != nil {
		return RepoResource{}, err
	}
	s.put(p, string(b), lastModified)
	return RepoResource{RepoPath: p, Found: true, LastModified: lastModified, Size: int64(len(b))}, nil
}

type fakeUpstream struct {
	items map[string]storedItem
	heads int
	gets  int
	err   error
}

func (u *fakeUpstream) Head(_ context.Context, path string) (UpstreamInfo, error) {
	u.heads++
	if u.err != nil {
		return UpstreamInfo{}, u.err
	}
	item, ok := u.items[path]
	if !ok {
		return UpstreamInfo{}, nil
	}
	return UpstreamInfo{Found: true, LastModified: item.lastModified, Size: int64(len(item.content))}, nil
}

func (u *fakeUpstream) Get(_ context.Context, path string) (io.ReadCloser, UpstreamInfo, error) {
	u.gets++
	item, ok := u.items[path]
	if !ok {
		return nil, UpstreamInfo{}, errors.New("not found upstream")
	}
	info := UpstreamInfo{Found: true, LastModified: item.lastModified, Size: int64(len(item.content))}
	return ioutil.NopCloser(bytes.NewReader(item.content)), info, nil
}

type fakeTracker struct {
	stored     []RepoPath
	downloaded []RepoPath
}

func (t *fakeTracker) ItemStored(_ context.Context, res RepoResource) error {
	t.stored = append(t.stored, res.RepoPath)
	return nil
}

func (t *fakeTracker) ItemDownloaded(_ context.Context, p RepoPath, _ time.Time) error {
	t.downloaded = append(t.downloaded, p)
	return nil
}

type cachedInfo struct {
	res RepoResource
	ttl time.Duration
}

type fakeInfoCache struct {
	entries map[RepoPath]cachedInfo
}

func (c *fakeInfoCache) Get(_ context.Context, p RepoPath) (RepoResource, bool, error) {
	e, ok := c.entries[p]
	return e.res, ok, nil
}

func (c *fakeInfoCache) Set(_ context.Context, res RepoResource, ttl time.Duration) error {
	c.entries[res.RepoPath] = cachedInfo{res: res, ttl: ttl}
	return nil
}
