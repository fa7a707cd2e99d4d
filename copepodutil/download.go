/*
Copyright © 2020 the copepod authors.
This file is part of copepod.

copepod is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

copepod is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with copepod.  If not, see <http://www.gnu.org/licenses/>.
*/

package copepodutil

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/cenkalti/backoff"
	"github.com/ctessum/requestcache"
	"github.com/google/go-cloud/blob"
	"github.com/google/go-cloud/blob/fileblob"
	"github.com/google/go-cloud/blob/gcsblob"
	"github.com/google/go-cloud/blob/s3blob"
	"github.com/google/go-cloud/gcp"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/copepod/internal/hash"
)

func init() {
	gob.Register(download{})
}

// download holds the contents of a downloaded file.
type download struct {
	// Name is the base name of the remote file.
	Name string
	Data []byte
}

// memoryCacheSize is the number of downloads held in memory.
const memoryCacheSize = 20

// Fetcher retrieves raw data files from local paths, web servers, and
// blob storage, caching the results.
type Fetcher struct {
	// Member is the path.Match pattern used to choose the file to
	// extract from zip archives.
	Member string

	// MaxRetries is the number of times failed HTTP requests are retried.
	MaxRetries uint64

	// Client is the client used for HTTP requests.
	Client *http.Client

	// Log receives progress messages.
	Log logrus.FieldLogger

	// dir holds the fetched files. It is removed by Close if temp is true.
	dir   string
	temp  bool
	cache *requestcache.Cache
}

// NewFetcher returns a new Fetcher. If cacheDir is not empty, downloads
// are stored there and are not repeated by later Fetchers that use the
// same directory, and fetched files are kept in cacheDir/files.
// Otherwise fetched files are written to a temporary directory that
// is removed by Close. log can be nil, in which case the standard
// logger is used.
func NewFetcher(cacheDir, member string, maxRetries uint64, log logrus.FieldLogger) (*Fetcher, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	f := &Fetcher{
		Member:     member,
		MaxRetries: maxRetries,
		Client:     http.DefaultClient,
		Log:        log,
	}
	if cacheDir == "" {
		var err error
		f.dir, err = ioutil.TempDir("", "copepod")
		if err != nil {
			return nil, fmt.Errorf("copepodutil: creating temporary download directory: %v", err)
		}
		f.temp = true
		f.cache = requestcache.NewCache(f.process, 1, requestcache.Deduplicate(),
			requestcache.Memory(memoryCacheSize))
		return f, nil
	}
	f.dir = filepath.Join(cacheDir, "files")
	if err := os.MkdirAll(f.dir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("copepodutil: creating download cache directory: %v", err)
	}
	f.cache = requestcache.NewCache(f.process, 1, requestcache.Deduplicate(),
		requestcache.Memory(memoryCacheSize),
		requestcache.Disk(cacheDir, requestcache.MarshalGob, requestcache.UnmarshalGob))
	return f, nil
}

// Close removes the files fetched by f unless they are kept in a cache
// directory. Paths returned by f are invalid after Close is called.
func (f *Fetcher) Close() error {
	if !f.temp {
		return nil
	}
	return os.RemoveAll(f.dir)
}

// Fetch retrieves the files at the given locations and returns their
// local paths, in the same order. Locations can be local files, http://
// or https:// URLs, or blob storage URLs (see IsBlob). Members matching
// f.Member are extracted from zip archives.
func (f *Fetcher) Fetch(ctx context.Context, locations ...string) ([]string, error) {
	if len(locations) == 0 {
		return nil, fmt.Errorf("copepodutil: no source locations specified")
	}
	paths := make([]string, len(locations))
	for i, loc := range locations {
		var err error
		paths[i], err = f.fetch(ctx, loc, f.Member)
		if err != nil {
			return nil, err
		}
	}
	return paths, nil
}

// fetch retrieves a single file, extracting the member matching pattern
// if it is a zip archive.
func (f *Fetcher) fetch(ctx context.Context, loc, pattern string) (string, error) {
	key := hash.Hash(loc)
	var d download
	if _, err := os.Stat(loc); err == nil {
		if !isZip(loc) {
			return loc, nil
		}
		b, err := ioutil.ReadFile(loc)
		if err != nil {
			return "", fmt.Errorf("copepodutil: reading %s: %v", loc, err)
		}
		d = download{Name: filepath.Base(loc), Data: b}
	} else if isRemote(loc) {
		r, err := f.cache.NewRequest(ctx, loc, key).Result()
		if err != nil {
			return "", err
		}
		d = r.(download)
	} else {
		return "", fmt.Errorf("copepodutil: source file %s does not exist", loc)
	}

	if isZip(d.Name) {
		name, data, err := extractMember(d.Data, pattern)
		if err != nil {
			return "", fmt.Errorf("copepodutil: %s: %v", loc, err)
		}
		d = download{Name: name, Data: data}
	}
	dir := filepath.Join(f.dir, key)
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return "", fmt.Errorf("copepodutil: creating download directory: %v", err)
	}
	p := filepath.Join(dir, d.Name)
	if err := ioutil.WriteFile(p, d.Data, 0644); err != nil {
		return "", fmt.Errorf("copepodutil: writing downloaded file: %v", err)
	}
	f.Log.WithFields(logrus.Fields{
		"url":   loc,
		"file":  p,
		"bytes": len(d.Data),
	}).Info("fetched file")
	return p, nil
}

// process downloads the file at the location specified by request, which
// must be a string. It fulfills the requestcache.ProcessFunc interface.
func (f *Fetcher) process(ctx context.Context, request interface{}) (interface{}, error) {
	loc := request.(string)
	u, err := url.Parse(loc)
	if err != nil {
		return nil, fmt.Errorf("copepodutil: parsing url %s: %v", loc, err)
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" {
		name = "download"
	}
	var b []byte
	if IsBlob(loc) {
		b, err = readBlob(ctx, u)
	} else {
		b, err = f.get(ctx, loc)
	}
	if err != nil {
		return nil, err
	}
	return download{Name: name, Data: b}, nil
}

// get downloads the file at the given URL, retrying failed requests with
// exponential backoff. Client errors other than timeouts and rate
// limiting are not retried.
func (f *Fetcher) get(ctx context.Context, loc string) ([]byte, error) {
	var b []byte
	var policy backoff.BackOff = &backoff.StopBackOff{}
	if f.MaxRetries > 0 {
		policy = backoff.WithMaxRetries(backoff.NewExponentialBackOff(), f.MaxRetries)
	}
	err := backoff.RetryNotify(
		func() error {
			req, err := http.NewRequest("GET", loc, nil)
			if err != nil {
				return err
			}
			resp, err := f.Client.Do(req.WithContext(ctx))
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode < 200 || resp.StatusCode > 299 {
				err := fmt.Errorf("%s: %s", loc, resp.Status)
				if resp.StatusCode >= 400 && resp.StatusCode < 500 &&
					resp.StatusCode != http.StatusRequestTimeout && resp.StatusCode != http.StatusTooManyRequests {
					return backoff.Permanent(err)
				}
				return err
			}
			b, err = ioutil.ReadAll(resp.Body)
			return err
		},
		backoff.WithContext(policy, ctx),
		func(err error, d time.Duration) {
			f.Log.WithFields(logrus.Fields{
				"url":   loc,
				"retry": d,
			}).WithError(err).Warn("download failed")
		},
	)
	if err != nil {
		return nil, fmt.Errorf("copepodutil: downloading %s: %v", loc, err)
	}
	return b, nil
}

// extractMember returns the name and contents of the single file in the
// zip archive b whose base name matches pattern.
func extractMember(b []byte, pattern string) (string, []byte, error) {
	r, err := zip.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return "", nil, fmt.Errorf("opening zip archive: %v", err)
	}
	var match *zip.File
	for _, zf := range r.File {
		if zf.FileInfo().IsDir() {
			continue
		}
		ok, err := path.Match(pattern, path.Base(zf.Name))
		if err != nil {
			return "", nil, fmt.Errorf("invalid archive member pattern %q: %v", pattern, err)
		}
		if !ok {
			continue
		}
		if match != nil {
			return "", nil, fmt.Errorf("more than one archive member matches %q: %s and %s",
				pattern, match.Name, zf.Name)
		}
		match = zf
	}
	if match == nil {
		return "", nil, fmt.Errorf("no archive member matches %q", pattern)
	}
	rc, err := match.Open()
	if err != nil {
		return "", nil, fmt.Errorf("opening archive member %s: %v", match.Name, err)
	}
	defer rc.Close()
	data, err := ioutil.ReadAll(rc)
	if err != nil {
		return "", nil, fmt.Errorf("reading archive member %s: %v", match.Name, err)
	}
	return path.Base(match.Name), data, nil
}

// LocalPath returns a local copy of the file at p, fetching it first
// if it is not a local file. Remote zip archives must hold a single file.
func (f *Fetcher) LocalPath(ctx context.Context, p string) (string, error) {
	if _, err := os.Stat(p); err == nil || !isRemote(p) {
		return p, nil
	}
	return f.fetch(ctx, p, "*")
}

func isZip(name string) bool {
	return strings.EqualFold(path.Ext(name), ".zip")
}

func isRemote(loc string) bool {
	return strings.HasPrefix(loc, "http://") || strings.HasPrefix(loc, "https://") || IsBlob(loc)
}

// IsBlob returns whether the given filename represents a blob.
// (i.e., if it starts with `gs://`, 's3://', or 'file://').
func IsBlob(path string) bool {
	return strings.HasPrefix(path, "gs://") || strings.HasPrefix(path, "s3://") || strings.HasPrefix(path, "file://")
}

// OpenBucket returns the blob storage bucket specified by bucketName,
// where bucketName must be in the format 'provider://name' where provider
// is the name of the storage provider and name is the name of the bucket.
// The currently accepted storage providers are "file" for the local filesystem
// (where name is a directory relative to the working directory),
// "gs" for Google Cloud Storage, and "s3" for AWS S3.
func OpenBucket(ctx context.Context, bucketName string) (*blob.Bucket, error) {
	url, err := url.Parse(bucketName)
	if err != nil {
		return nil, fmt.Errorf("copepodutil.OpenBucket: %v", err)
	}
	switch url.Scheme {
	case "file":
		return fileblob.NewBucket(url.Hostname())
	case "gs":
		return gsBucket(ctx, url.Hostname())
	case "s3":
		return s3Bucket(ctx, url.Hostname())
	default:
		return nil, fmt.Errorf("copepodutil.OpenBucket: invalid provider %s", url.Scheme)
	}
}

func gsBucket(ctx context.Context, name string) (*blob.Bucket, error) {
	creds, err := gcp.DefaultCredentials(ctx)
	if err != nil {
		return nil, err
	}
	c, err := gcp.NewHTTPClient(gcp.DefaultTransport(), gcp.CredentialsTokenSource(creds))
	if err != nil {
		return nil, err
	}
	return gcsblob.OpenBucket(ctx, name, c)
}

// s3Bucket opens an s3 storage bucket. It assumes the following
// environment variables are set: AWS_REGION, AWS_ACCESS_KEY_ID, and
// AWS_SECRET_ACCESS_KEY.
func s3Bucket(ctx context.Context, name string) (*blob.Bucket, error) {
	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = "us-east-2"
	}
	c := &aws.Config{
		Region:      aws.String(region),
		Credentials: credentials.NewEnvCredentials(),
	}
	s, err := session.NewSession(c)
	if err != nil {
		return nil, err
	}
	return s3blob.OpenBucket(ctx, s, name)
}

// readBlob reads the contents of the blob at u.
func readBlob(ctx context.Context, u *url.URL) ([]byte, error) {
	bucket, err := OpenBucket(ctx, u.Scheme+"://"+u.Host)
	if err != nil {
		return nil, err
	}
	r, err := bucket.NewReader(ctx, strings.TrimPrefix(u.Path, "/"))
	if err != nil {
		return nil, fmt.Errorf("copepodutil: opening %s: %v", u, err)
	}
	defer r.Close()
	b, err := ioutil.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("copepodutil: reading %s: %v", u, err)
	}
	return b, nil
}
