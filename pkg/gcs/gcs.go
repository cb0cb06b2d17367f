// Copyright 2017 syzkaller project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package gcs provides read access to symbol archives stored in Google Cloud Storage (GCS).
// By default the package uses Application Default Credentials; public buckets
// can be read anonymously.
//
// See the following links for details and API reference:
// https://cloud.google.com/go/getting-started/using-cloud-storage
// https://godoc.org/cloud.google.com/go/storage
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// ErrNotExist is returned for objects that are missing from the bucket.
var ErrNotExist = errors.New("object does not exist")

type Client struct {
	client *storage.Client
}

func NewClient(ctx context.Context, anonymous bool) (*Client, error) {
	var opts []option.ClientOption
	if anonymous {
		opts = append(opts, option.WithoutAuthentication())
	}
	storageClient, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{client: storageClient}, nil
}

func (client *Client) Close() error {
	return client.client.Close()
}

// FileReader opens "bucket/path/to/object" for reading.
func (client *Client) FileReader(ctx context.Context, gcsFile string) (io.ReadCloser, error) {
	bucket, filename, err := Split(gcsFile)
	if err != nil {
		return nil, err
	}
	r, err := client.client.Bucket(bucket).Object(filename).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return nil, fmt.Errorf("%v: %w", gcsFile, ErrNotExist)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %v: %w", gcsFile, err)
	}
	return r, nil
}

// Split separates "bucket/object" and tolerates a gs:// prefix.
func Split(file string) (bucket, filename string, err error) {
	file = strings.TrimPrefix(file, "gs://")
	pos := strings.IndexByte(file, '/')
	if pos <= 0 || pos == len(file)-1 {
		return "", "", fmt.Errorf("invalid GCS file name: %v", file)
	}
	return file[:pos], file[pos+1:], nil
}
