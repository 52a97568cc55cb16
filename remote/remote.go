// Copyright 2021 Airbus Defence and Space
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package remote makes gs:// objects readable by gdal through an osio adapter, and
// provides writers for local or gs:// outputs.
package remote

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"cloud.google.com/go/storage"
	"github.com/airbusgeo/godal"
	"github.com/airbusgeo/osio"
	"github.com/airbusgeo/osio/gcs"
	"google.golang.org/api/option"
)

// GSPrefix is the prefix handled by Register
const GSPrefix = "gs://"

type handlerOpts struct {
	prefix         string
	client         *storage.Client
	blockSize      string
	numBlocks      int
	billingProject string
	anonymous      bool
	verbose        bool
}

// Option is an option that can be passed to Register
type Option func(o *handlerOpts)

// Prefix overrides the prefix a file must have in order to be handled. Defaults to "gs://"
func Prefix(prefix string) Option {
	return func(o *handlerOpts) {
		o.prefix = prefix
	}
}

// Client sets the storage client to use instead of creating one
func Client(cl *storage.Client) Option {
	return func(o *handlerOpts) {
		o.client = cl
	}
}

// BlockSize sets the size of requests that will go out to the storage API, e.g. "512k" or "1M"
func BlockSize(bs string) Option {
	return func(o *handlerOpts) {
		o.blockSize = bs
	}
}

// NumCachedBlocks sets the number of blocks kept in the adapter's lru cache
func NumCachedBlocks(n int) Option {
	return func(o *handlerOpts) {
		o.numBlocks = n
	}
}

// BillingProject sets the project billed for requests on requester-pays buckets
func BillingProject(projectID string) Option {
	return func(o *handlerOpts) {
		o.billingProject = projectID
	}
}

// Anonymous creates the storage client without credentials, for public buckets
func Anonymous(anon bool) Option {
	return func(o *handlerOpts) {
		o.anonymous = anon
	}
}

// Verbose makes the osio adapter log its requests to the standard logger
func Verbose(v bool) Option {
	return func(o *handlerOpts) {
		o.verbose = v
	}
}

var registerMu sync.Mutex

// Register registers a vsi handler to gdal so that datasets under the gs:// prefix
// are read through an osio block cache. Calling Register for an already handled
// prefix is a no-op.
func Register(ctx context.Context, opts ...Option) error {
	ho := handlerOpts{
		prefix:    GSPrefix,
		blockSize: "512k",
		numBlocks: 512,
	}
	for _, o := range opts {
		o(&ho)
	}
	if _, err := ParseBlockSize(ho.blockSize); err != nil {
		return err
	}
	if ho.numBlocks <= 0 {
		return fmt.Errorf("invalid number of cached blocks %d", ho.numBlocks)
	}

	registerMu.Lock()
	defer registerMu.Unlock()
	if godal.HasVSIHandler(ho.prefix) {
		return nil
	}
	cl, err := ho.storageClient(ctx)
	if err != nil {
		return err
	}
	gopts := []gcs.Option{gcs.GCSClient(cl)}
	if ho.billingProject != "" {
		gopts = append(gopts, gcs.GCSBillingProject(ho.billingProject))
	}
	gh, err := gcs.Handle(ctx, gopts...)
	if err != nil {
		return fmt.Errorf("gcs.handle: %w", err)
	}
	aopts := []osio.AdapterOption{osio.BlockSize(ho.blockSize), osio.NumCachedBlocks(ho.numBlocks)}
	if ho.verbose {
		aopts = append(aopts, osio.WithLogger(osio.StdLogger))
	}
	adapter, err := osio.NewAdapter(gh, aopts...)
	if err != nil {
		return fmt.Errorf("osio.newadapter: %w", err)
	}
	if err := godal.RegisterVSIHandler(ho.prefix, adapter, godal.VSIHandlerStripPrefix(true)); err != nil {
		return fmt.Errorf("godal.registervsihandler: %w", err)
	}
	return nil
}

func (ho handlerOpts) storageClient(ctx context.Context) (*storage.Client, error) {
	if ho.client != nil {
		return ho.client, nil
	}
	return NewClient(ctx, ho.anonymous)
}

// NewClient creates a storage client, optionally without authentication
func NewClient(ctx context.Context, anonymous bool) (*storage.Client, error) {
	var copts []option.ClientOption
	if anonymous {
		copts = append(copts, option.WithoutAuthentication())
	}
	cl, err := storage.NewClient(ctx, copts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcs storage client: %w", err)
	}
	return cl, nil
}

// ParseGS splits a gs://bucket/object uri. Both values are empty if file is not a
// valid gs uri pointing to an object.
func ParseGS(file string) (bucket, object string) {
	if !strings.HasPrefix(file, GSPrefix) {
		return
	}
	file = file[len(GSPrefix):]
	firstSlash := strings.Index(file, "/")
	if firstSlash == -1 {
		return
	}
	obj := strings.Trim(file[firstSlash:], "/")
	if obj == "" {
		return
	}
	bucket = file[0:firstSlash]
	object = obj
	return
}

// IsRemote returns true if path designates a gs:// object
func IsRemote(path string) bool {
	b, _ := ParseGS(path)
	return b != ""
}

// NewWriter returns a writer to path, which is either a local file or a gs:// object.
// cl may be nil when path is local.
func NewWriter(ctx context.Context, cl *storage.Client, path string) (io.WriteCloser, error) {
	bucket, object := ParseGS(path)
	if bucket == "" {
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", path, err)
		}
		return f, nil
	}
	if cl == nil {
		return nil, fmt.Errorf("no storage client to write %s", path)
	}
	return cl.Bucket(bucket).Object(object).NewWriter(ctx), nil
}

// ParseBlockSize parses human readable byte sizes such as "512k", "1MB", "2GiB" or "1024"
func ParseBlockSize(s string) (int, error) {
	const (
		BYTE = 1 << (10 * iota)
		KILOBYTE
		MEGABYTE
		GIGABYTE
	)
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) == 0 {
		return 0, fmt.Errorf("empty block size")
	}
	i := strings.IndexFunc(s, unicode.IsLetter)
	if i == -1 {
		ii, err := strconv.Atoi(s)
		if err != nil || ii <= 0 {
			return 0, fmt.Errorf("failed to parse block size %s", s)
		}
		return ii, nil
	}
	bytesString, multiple := s[:i], s[i:]
	bytes, err := strconv.ParseFloat(bytesString, 64)
	if err != nil || bytes <= 0 {
		return 0, fmt.Errorf("failed to parse block size %s", s)
	}
	switch multiple {
	case "G", "GB", "GIB":
		return int(bytes * GIGABYTE), nil
	case "M", "MB", "MIB":
		return int(bytes * MEGABYTE), nil
	case "K", "KB", "KIB":
		return int(bytes * KILOBYTE), nil
	case "B":
		return int(bytes), nil
	default:
		return 0, fmt.Errorf("failed to parse block size %s", s)
	}
}
