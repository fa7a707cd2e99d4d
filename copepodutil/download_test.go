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
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

const testCSV = `# COPEPOD global biomass fields
# values in mg m-3
Latitude,Longitude,Biomass
-45.0,-135.0,1.5
-45.0,315.0,3
45.0,135.0,-999
45.0,-45.0,
-45.0,45.0,NaN
`

// testServer serves files from a map of paths to contents and counts the
// number of requests it receives.
type testServer struct {
	files    map[string][]byte
	requests int32
	// failures is the number of requests that fail before the server
	// starts responding normally.
	failures int32
}

func (s *testServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n := atomic.AddInt32(&s.requests, 1)
	if n <= s.failures {
		http.Error(w, "try again later", http.StatusServiceUnavailable)
		return
	}
	b, ok := s.files[r.URL.Path]
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Write(b)
}

func testZip(t *testing.T, files map[string]string) []byte {
	b := bytes.NewBuffer(nil)
	z := zip.NewWriter(b)
	for name, contents := range files {
		w, err := z.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(contents)); err != nil {
			t.Fatal(err)
		}
	}
	if err := z.Close(); err != nil {
		t.Fatal(err)
	}
	return b.Bytes()
}

func newTestFetcher(t *testing.T, cacheDir, member string, maxRetries uint64) *Fetcher {
	f, err := NewFetcher(cacheDir, member, maxRetries, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

func checkContents(t *testing.T, path, want string) {
	b, err := ioutil.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != want {
		t.Errorf("%s contents: %q != %q", path, string(b), want)
	}
}

func TestFetchLocal(t *testing.T) {
	f, err := ioutil.TempFile("", "copepod")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	defer os.Remove(f.Name())
	paths, err := newTestFetcher(t, "", "*.csv", 0).Fetch(context.Background(), f.Name())
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(paths, []string{f.Name()}) {
		t.Errorf("paths: %v", paths)
	}
}

func TestFetchLocalMissing(t *testing.T) {
	if _, err := newTestFetcher(t, "", "*.csv", 0).Fetch(context.Background(), "/blah/test.csv"); err == nil {
		t.Error("expected an error for a missing file")
	}
	if _, err := newTestFetcher(t, "", "*.csv", 0).Fetch(context.Background()); err == nil {
		t.Error("expected an error for no locations")
	}
}

func TestFetchHTTP(t *testing.T) {
	s := &testServer{files: map[string][]byte{"/biomass.csv": []byte(testCSV)}}
	srv := httptest.NewServer(s)
	defer srv.Close()

	cacheDir, err := ioutil.TempDir("", "copepodcache")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(cacheDir)

	f := newTestFetcher(t, cacheDir, "*.csv", 0)
	for i := 0; i < 2; i++ {
		paths, err := f.Fetch(context.Background(), srv.URL+"/biomass.csv")
		if err != nil {
			t.Fatal(err)
		}
		if !strings.HasSuffix(paths[0], "biomass.csv") {
			t.Errorf("path: %s", paths[0])
		}
		checkContents(t, paths[0], testCSV)
	}
	if atomic.LoadInt32(&s.requests) != 1 {
		t.Errorf("the memory cache should prevent repeated downloads, but there were %d requests", atomic.LoadInt32(&s.requests))
	}

	// A new fetcher using the same cache directory should not download
	// the file again.
	paths, err := newTestFetcher(t, cacheDir, "*.csv", 0).Fetch(context.Background(), srv.URL+"/biomass.csv")
	if err != nil {
		t.Fatal(err)
	}
	checkContents(t, paths[0], testCSV)
	if atomic.LoadInt32(&s.requests) != 1 {
		t.Errorf("the disk cache should prevent repeated downloads, but there were %d requests", atomic.LoadInt32(&s.requests))
	}
}

func TestFetchHTTPNotFound(t *testing.T) {
	s := &testServer{files: map[string][]byte{}}
	srv := httptest.NewServer(s)
	defer srv.Close()
	if _, err := newTestFetcher(t, "", "*.csv", 0).Fetch(context.Background(), srv.URL+"/biomass.csv"); err == nil {
		t.Error("expected an error for a missing remote file")
	}
	// Client errors are not retried.
	start := time.Now()
	if _, err := newTestFetcher(t, "", "*.csv", 3).Fetch(context.Background(), srv.URL+"/biomass.csv"); err == nil {
		t.Error("expected an error for a missing remote file")
	}
	if n := atomic.LoadInt32(&s.requests); n != 2 {
		t.Errorf("there should have been 2 requests but there were %d", n)
	}
	if d := time.Since(start); d > 5*time.Second {
		t.Errorf("a missing file should fail quickly but took %v", d)
	}
}

func TestFetchHTTPNoRetries(t *testing.T) {
	s := &testServer{
		files:    map[string][]byte{"/biomass.csv": []byte(testCSV)},
		failures: 1,
	}
	srv := httptest.NewServer(s)
	defer srv.Close()
	if _, err := newTestFetcher(t, "", "*.csv", 0).Fetch(context.Background(), srv.URL+"/biomass.csv"); err == nil {
		t.Error("expected an error when retries are disabled")
	}
	if n := atomic.LoadInt32(&s.requests); n != 1 {
		t.Errorf("there should have been 1 request but there were %d", n)
	}
}

func TestFetchHTTPRetry(t *testing.T) {
	s := &testServer{
		files:    map[string][]byte{"/biomass.csv": []byte(testCSV)},
		failures: 2,
	}
	srv := httptest.NewServer(s)
	defer srv.Close()

	paths, err := newTestFetcher(t, "", "*.csv", 2).Fetch(context.Background(), srv.URL+"/biomass.csv")
	if err != nil {
		t.Fatal(err)
	}
	checkContents(t, paths[0], testCSV)
	if atomic.LoadInt32(&s.requests) != 3 {
		t.Errorf("there should have been 3 requests but there were %d", atomic.LoadInt32(&s.requests))
	}
}

func TestFetchZip(t *testing.T) {
	b := testZip(t, map[string]string{
		"copepod/biomass.csv": testCSV,
		"copepod/README.txt":  "biomass data",
	})
	s := &testServer{files: map[string][]byte{"/copepod.zip": b}}
	srv := httptest.NewServer(s)
	defer srv.Close()

	paths, err := newTestFetcher(t, "", "*.csv", 0).Fetch(context.Background(), srv.URL+"/copepod.zip")
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(paths[0]) != "biomass.csv" {
		t.Errorf("path: %s", paths[0])
	}
	checkContents(t, paths[0], testCSV)

	for _, member := range []string{"*", "*.nc", "[", ""} {
		if _, err := newTestFetcher(t, "", member, 0).Fetch(context.Background(), srv.URL+"/copepod.zip"); err == nil {
			t.Errorf("member %q: expected an error", member)
		}
	}
}

func TestFetchLocalZip(t *testing.T) {
	dir, err := ioutil.TempDir("", "copepod")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	zipFile := filepath.Join(dir, "copepod.zip")
	if err := ioutil.WriteFile(zipFile, testZip(t, map[string]string{"biomass.csv": testCSV}), 0644); err != nil {
		t.Fatal(err)
	}
	paths, err := newTestFetcher(t, "", "*.csv", 0).Fetch(context.Background(), zipFile)
	if err != nil {
		t.Fatal(err)
	}
	checkContents(t, paths[0], testCSV)
}

func TestFetchBlob(t *testing.T) {
	// File buckets are directories in the working directory.
	dir, err := ioutil.TempDir(".", "bucket")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	if err := ioutil.WriteFile(filepath.Join(dir, "biomass.csv"), []byte(testCSV), 0644); err != nil {
		t.Fatal(err)
	}
	loc := "file://" + filepath.Base(dir) + "/biomass.csv"
	paths, err := newTestFetcher(t, "", "*.csv", 0).Fetch(context.Background(), loc)
	if err != nil {
		t.Fatal(err)
	}
	checkContents(t, paths[0], testCSV)
}

func TestFetcherClose(t *testing.T) {
	s := &testServer{files: map[string][]byte{"/biomass.csv": []byte(testCSV)}}
	srv := httptest.NewServer(s)
	defer srv.Close()

	f := newTestFetcher(t, "", "*.csv", 0)
	p, err := f.LocalPath(context.Background(), srv.URL+"/biomass.csv")
	if err != nil {
		t.Fatal(err)
	}
	checkContents(t, p, testCSV)
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(p); !os.IsNotExist(err) {
		t.Errorf("%s should have been removed: %v", p, err)
	}

	// Files in a cache directory are kept.
	cacheDir, err := ioutil.TempDir("", "copepodcache")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(cacheDir)
	f = newTestFetcher(t, cacheDir, "*.csv", 0)
	paths, err := f.Fetch(context.Background(), srv.URL+"/biomass.csv")
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	checkContents(t, paths[0], testCSV)
	if !strings.HasPrefix(paths[0], cacheDir) {
		t.Errorf("%s is not in the cache directory %s", paths[0], cacheDir)
	}
}

func TestLocalPath(t *testing.T) {
	f := newTestFetcher(t, "", "*.csv", 0)
	defer f.Close()
	for _, p := range []string{"/blah/copepod.nc", "copepod.nc"} {
		lp, err := f.LocalPath(context.Background(), p)
		if err != nil {
			t.Fatal(err)
		}
		if lp != p {
			t.Errorf("local path %s should be returned unchanged but got %s", p, lp)
		}
	}
}

func TestIsBlob(t *testing.T) {
	for path, want := range map[string]bool{
		"gs://bucket/file.nc":  true,
		"s3://bucket/file.nc":  true,
		"file://bucket/file":   true,
		"http://example.com/x": false,
		"/tmp/file.nc":         false,
	} {
		if IsBlob(path) != want {
			t.Errorf("IsBlob(%s) != %v", path, want)
		}
	}
}
