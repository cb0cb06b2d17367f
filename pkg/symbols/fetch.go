// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package symbols

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/openttd/crash-analyzer/pkg/gcs"
	"github.com/openttd/crash-analyzer/pkg/log"
)

// Symbol files of large binaries run into hundreds of megabytes.
const maxSymbolSize = 1 << 30

// HTTPFetcher downloads symbol files over HTTP(S).
// Anything but 200 OK is treated as absence, as are files over MaxSize bytes.
type HTTPFetcher struct {
	Client  *http.Client
	MaxSize int64
}

func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{
		Client:  &http.Client{Timeout: timeout},
		MaxSize: maxSymbolSize,
	}
}

// readLimited reads all of r, failing if it holds more than limit bytes.
// A truncated symbol file can still parse, so it must never be returned.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("file is larger than %v bytes", limit)
	}
	return data, nil
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string, done func([]byte)) {
	go func() {
		data, err := f.get(ctx, url)
		if err != nil {
			log.Logf(1, "%v", err)
		}
		done(data)
	}()
}

func (f *HTTPFetcher) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %v: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch %v: %v", url, resp.Status)
	}
	data, err := readLimited(resp.Body, f.MaxSize)
	if err != nil {
		return nil, fmt.Errorf("failed to read %v: %w", url, err)
	}
	return data, nil
}

// GCSFetcher reads symbol files from a gs://bucket/prefix archive.
type GCSFetcher struct {
	client  *gcs.Client
	maxSize int64
}

func NewGCSFetcher(client *gcs.Client) *GCSFetcher {
	return &GCSFetcher{client: client, maxSize: maxSymbolSize}
}

func (f *GCSFetcher) Fetch(ctx context.Context, url string, done func([]byte)) {
	go func() {
		data, err := f.get(ctx, url)
		if err != nil {
			log.Logf(1, "%v", err)
		}
		done(data)
	}()
}

func (f *GCSFetcher) get(ctx context.Context, url string) ([]byte, error) {
	r, err := f.client.FileReader(ctx, url)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	data, err := readLimited(r, f.maxSize)
	if err != nil {
		return nil, fmt.Errorf("failed to read %v: %w", url, err)
	}
	return data, nil
}

// NewFetcher picks the fetcher for the archive root's scheme.
// The returned close function releases the fetcher's resources.
func NewFetcher(ctx context.Context, root string, timeout time.Duration, anonymousGCS bool) (
	SymbolFetcher, func() error, error) {
	u, err := url.Parse(root)
	if err != nil {
		return nil, nil, fmt.Errorf("bad symbol root %q: %w", root, err)
	}
	switch u.Scheme {
	case "http", "https":
		return NewHTTPFetcher(timeout), func() error { return nil }, nil
	case "gs":
		client, err := gcs.NewClient(ctx, anonymousGCS)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create GCS client: %w", err)
		}
		return NewGCSFetcher(client), client.Close, nil
	}
	return nil, nil, fmt.Errorf("unsupported symbol root %q: want http, https or gs", root)
}
