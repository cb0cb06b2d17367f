// Copyright 2026 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package symbols

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/openttd/crash-analyzer/pkg/oneshot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fetch(t *testing.T, f SymbolFetcher, url string) []byte {
	res := oneshot.New[[]byte]()
	f.Fetch(context.Background(), url, res.Send)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	data, err := res.Recv(ctx)
	require.NoError(t, err)
	return data
}

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/app.pdb/ABCDEF0123/app.sym":
			w.Write([]byte(appSymbols))
		case "/broken.pdb/1/broken.sym":
			http.Error(w, "internal error", http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewHTTPFetcher(5 * time.Second)
	assert.Equal(t, appSymbols, string(fetch(t, f, srv.URL+"/app.pdb/ABCDEF0123/app.sym")))
	assert.Empty(t, fetch(t, f, srv.URL+"/missing.pdb/1/missing.sym"))
	assert.Empty(t, fetch(t, f, srv.URL+"/broken.pdb/1/broken.sym"))
}

func TestHTTPFetcherOversized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(appSymbols))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(5 * time.Second)
	f.MaxSize = int64(len(appSymbols)) - 1
	// Cut at a line boundary the file would still parse, so it must not arrive at all.
	assert.Empty(t, fetch(t, f, srv.URL+"/app.pdb/ABCDEF0123/app.sym"))
	f.MaxSize = int64(len(appSymbols))
	assert.Equal(t, appSymbols, string(fetch(t, f, srv.URL+"/app.pdb/ABCDEF0123/app.sym")))
}

func TestReadLimited(t *testing.T) {
	data, err := readLimited(strings.NewReader("0123456789"), 10)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(data))
	_, err = readLimited(strings.NewReader("0123456789"), 9)
	assert.Error(t, err)
	data, err = readLimited(strings.NewReader(""), 0)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestHTTPFetcherUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	assert.Empty(t, fetch(t, NewHTTPFetcher(time.Second), url+"/app.pdb/1/app.sym"))
}

func TestSupplierOverHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/app.pdb/ABCDEF0123/app.sym" {
			w.Write([]byte(appSymbols))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	fetcher, closeFetcher, err := NewFetcher(context.Background(), srv.URL, time.Second, false)
	require.NoError(t, err)
	defer closeFetcher()
	table, err := NewSupplier(srv.URL, fetcher).LocateSymbols(context.Background(), appModule)
	require.NoError(t, err)
	assert.Equal(t, "ABCDEF0123", table.ID)
}

func TestNewFetcherBadRoot(t *testing.T) {
	for _, root := range []string{"ftp://symbols.example.com", "symbols", "://"} {
		_, _, err := NewFetcher(context.Background(), root, time.Second, false)
		assert.Error(t, err, root)
	}
}
