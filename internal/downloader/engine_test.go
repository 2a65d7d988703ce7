package downloader

import (
	"archive/zip"
	"bytes"
	"context"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "artsync/pkg/errors"
	"artsync/pkg/logger"
	"artsync/pkg/models"
)

type stdGetter struct{ c *http.Client }

func (g stdGetter) HTTPGet(ctx context.Context, url, referer string, headOnly bool) (*http.Response, error) {
	method := http.MethodGet
	if headOnly {
		method = http.MethodHead
	}
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Referer", referer)
	return g.c.Do(req)
}

// fileServer serves body, answering HEAD with its length. heads and gets
// count the requests seen.
type fileServer struct {
	*httptest.Server
	heads, gets atomic.Int32
}

func newFileServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request, get int32)) *fileServer {
	fs := &fileServer{}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			fs.heads.Add(1)
		} else {
			fs.gets.Add(1)
		}
		handler(w, r, fs.gets.Load())
	}))
	t.Cleanup(fs.Close)
	return fs
}

func serveBytes(body []byte) func(http.ResponseWriter, *http.Request, int32) {
	return func(w http.ResponseWriter, r *http.Request, _ int32) {
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		if r.Method == http.MethodHead {
			return
		}
		w.Write(body)
	}
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))))
	return buf.Bytes()
}

type sleepRecorder struct{ waits []time.Duration }

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return nil
}

func newTestEngine(t *testing.T, opts Options) (*Engine, *sleepRecorder) {
	t.Helper()
	e := New(stdGetter{c: &http.Client{Timeout: 5 * time.Second}}, opts, logger.NewNopLogger())
	rec := &sleepRecorder{}
	e.sleep = rec.sleep
	return e, rec
}

type countingObserver struct {
	outcomes []string
	retries  []string
}

func (o *countingObserver) ObserveDownload(outcome string, _ int64, _ time.Duration) {
	o.outcomes = append(o.outcomes, outcome)
}
func (o *countingObserver) ObserveRetry(fault string) { o.retries = append(o.retries, fault) }

func TestFetchDownloadsAndVerifies(t *testing.T) {
	body := pngBytes(t)
	srv := newFileServer(t, serveBytes(body))
	dir := t.TempDir()
	created := time.Date(2023, 5, 1, 10, 0, 0, 0, time.UTC)

	e, _ := newTestEngine(t, Options{
		MaxRetries:      2,
		Verify:          true,
		SetLastModified: true,
		DownloadListDir: dir,
	})
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	e.now = func() time.Time { return fixed }
	obs := &countingObserver{}
	e.SetObserver(obs)

	dest := filepath.Join(dir, "42", "100_p0.png")
	res, err := e.Fetch(context.Background(), Request{URL: srv.URL + "/100_p0.png", Dest: dest, Created: created})
	require.NoError(t, err)

	assert.Equal(t, models.OK, res.Outcome)
	assert.Equal(t, dest, res.Path)
	assert.Equal(t, int64(len(body)), res.Size)
	assert.Equal(t, 1, res.Attempts)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, body, got)
	assert.NoFileExists(t, dest+".tmp")

	fi, err := os.Stat(dest)
	require.NoError(t, err)
	assert.True(t, fi.ModTime().Equal(created))

	list, err := os.ReadFile(filepath.Join(dir, "Downloaded_on_2024-01-02.txt"))
	require.NoError(t, err)
	assert.Equal(t, dest+"\n", string(list))
	assert.Equal(t, []string{"ok"}, obs.outcomes)
}

func TestFetchSkipsExistingFileWithoutRequest(t *testing.T) {
	srv := newFileServer(t, serveBytes([]byte("remote")))
	dest := filepath.Join(t.TempDir(), "a.jpg")
	require.NoError(t, os.WriteFile(dest, []byte("local"), 0o644))

	e, _ := newTestEngine(t, Options{})
	res, err := e.Fetch(context.Background(), Request{URL: srv.URL, Dest: dest})
	require.NoError(t, err)

	assert.Equal(t, models.SkipDuplicate, res.Outcome)
	assert.Zero(t, srv.heads.Load())
	assert.Zero(t, srv.gets.Load())
}

func TestFetchKeepsLargerLocalFile(t *testing.T) {
	srv := newFileServer(t, serveBytes([]byte("short")))
	dest := filepath.Join(t.TempDir(), "a.jpg")
	local := bytes.Repeat([]byte("x"), 100)
	require.NoError(t, os.WriteFile(dest, local, 0o644))

	e, _ := newTestEngine(t, Options{AlwaysCheckFileSize: true})
	res, err := e.Fetch(context.Background(), Request{URL: srv.URL, Dest: dest, BackupOnConflict: true})
	require.NoError(t, err)

	assert.Equal(t, models.SkipLocalLarger, res.Outcome)
	assert.Zero(t, srv.gets.Load())
	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, local, got)
}

func TestCheckExisting(t *testing.T) {
	tests := []struct {
		name      string
		remote    int64
		local     int64
		overwrite bool
		want      models.Outcome
		removed   bool
	}{
		{name: "same size", remote: 10, local: 10, want: models.SkipDuplicate},
		{name: "local larger", remote: 5, local: 10, want: models.SkipLocalLarger},
		{name: "remote unknown", remote: -1, local: 10, want: models.SkipLocalLarger},
		{name: "remote larger", remote: 20, local: 10, want: models.OK, removed: true},
		{name: "overwrite", remote: 10, local: 10, overwrite: true, want: models.OK, removed: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "f.png")
			require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte("x"), int(tt.local)), 0o644))

			e, _ := newTestEngine(t, Options{})
			got, err := e.checkExisting(path, tt.remote, tt.local, Request{Dest: path, Overwrite: tt.overwrite})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			if tt.removed {
				assert.NoFileExists(t, path)
			} else {
				assert.FileExists(t, path)
			}
		})
	}
}

func TestFetchBacksUpReplacedFile(t *testing.T) {
	srv := newFileServer(t, serveBytes([]byte("new content")))
	dir := t.TempDir()
	dest := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(dest, []byte("old"), 0o644))

	e, _ := newTestEngine(t, Options{})
	now := time.Unix(1700000000, 0)
	e.now = func() time.Time { return now }

	res, err := e.Fetch(context.Background(), Request{URL: srv.URL, Dest: dest, Overwrite: true, BackupOnConflict: true})
	require.NoError(t, err)
	assert.Equal(t, models.OK, res.Outcome)

	backup := filepath.Join(dir, "a.1700000000.txt")
	old, err := os.ReadFile(backup)
	require.NoError(t, err)
	assert.Equal(t, "old", string(old))

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "new content", string(got))
}

func TestFetchStoredPathDuplicate(t *testing.T) {
	srv := newFileServer(t, serveBytes([]byte("12345")))
	dir := t.TempDir()
	stored := filepath.Join(dir, "old name.jpg")
	require.NoError(t, os.WriteFile(stored, []byte("12345"), 0o644))

	e, _ := newTestEngine(t, Options{})
	res, err := e.Fetch(context.Background(), Request{
		URL:        srv.URL,
		Dest:       filepath.Join(dir, "new name.jpg"),
		StoredPath: stored,
	})
	require.NoError(t, err)

	assert.Equal(t, models.SkipDuplicate, res.Outcome)
	assert.Equal(t, stored, res.Path)
	assert.Zero(t, srv.gets.Load())
}

func TestFetchRetryBound(t *testing.T) {
	srv := newFileServer(t, func(w http.ResponseWriter, r *http.Request, _ int32) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	e, rec := newTestEngine(t, Options{MaxRetries: 3, RetryWait: 7 * time.Second})
	obs := &countingObserver{}
	e.SetObserver(obs)

	res, err := e.Fetch(context.Background(), Request{URL: srv.URL, Dest: filepath.Join(t.TempDir(), "a.jpg")})
	require.Error(t, err)

	assert.Equal(t, models.NotOK, res.Outcome)
	assert.Equal(t, 4, res.Attempts)
	assert.Equal(t, int32(4), srv.heads.Load())
	assert.Equal(t, []time.Duration{7 * time.Second, 7 * time.Second, 7 * time.Second}, rec.waits)
	assert.Len(t, obs.retries, 3)
	assert.True(t, errs.Is(err, errs.ErrorTypeNetwork))
}

func TestFetchPermanentStatusNotRetried(t *testing.T) {
	srv := newFileServer(t, func(w http.ResponseWriter, r *http.Request, _ int32) {
		w.WriteHeader(http.StatusNotFound)
	})

	e, rec := newTestEngine(t, Options{MaxRetries: 3})
	res, err := e.Fetch(context.Background(), Request{URL: srv.URL, Dest: filepath.Join(t.TempDir(), "a.jpg")})
	require.NoError(t, err)

	assert.Equal(t, models.NotOK, res.Outcome)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, int32(1), srv.gets.Load())
	assert.Empty(t, rec.waits)
	assert.True(t, errs.Is(res.Fault, errs.ErrorTypePermanentHTTP))
}

func TestFetchSizeMismatchIsRetried(t *testing.T) {
	full := bytes.Repeat([]byte("y"), 100)
	srv := newFileServer(t, func(w http.ResponseWriter, r *http.Request, get int32) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", "100")
			return
		}
		if get == 1 {
			w.Write(full[:10])
			return
		}
		w.Write(full)
	})

	dest := filepath.Join(t.TempDir(), "a.bin")
	e, rec := newTestEngine(t, Options{MaxRetries: 2})
	obs := &countingObserver{}
	e.SetObserver(obs)

	res, err := e.Fetch(context.Background(), Request{URL: srv.URL, Dest: dest})
	require.NoError(t, err)

	assert.Equal(t, models.OK, res.Outcome)
	assert.Equal(t, 2, res.Attempts)
	assert.Len(t, rec.waits, 1)
	assert.Equal(t, []string{string(errs.ErrorTypeSizeMismatch)}, obs.retries)
	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Len(t, got, 100)
}

func TestFetchIntegrityFailureDeletesFile(t *testing.T) {
	srv := newFileServer(t, serveBytes([]byte("this is not a png")))
	dest := filepath.Join(t.TempDir(), "a.png")

	e, _ := newTestEngine(t, Options{MaxRetries: 1, Verify: true})
	res, err := e.Fetch(context.Background(), Request{URL: srv.URL, Dest: dest})
	require.Error(t, err)

	assert.Equal(t, models.NotOK, res.Outcome)
	assert.Equal(t, int32(2), srv.gets.Load())
	assert.True(t, errs.Is(err, errs.ErrorTypeIntegrity))
	assert.NoFileExists(t, dest)
	assert.NoFileExists(t, dest+".tmp")
}

func TestFetchAbortedOnCancel(t *testing.T) {
	srv := newFileServer(t, serveBytes([]byte("data")))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e, _ := newTestEngine(t, Options{MaxRetries: 5})
	res, err := e.Fetch(ctx, Request{URL: srv.URL, Dest: filepath.Join(t.TempDir(), "a.jpg")})
	require.NoError(t, err)
	assert.Equal(t, models.Aborted, res.Outcome)
	assert.Equal(t, 1, res.Attempts)
}

func TestVerifyArchive(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "frames.zip")
	f, err := os.Create(good)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("000000.jpg")
	require.NoError(t, err)
	_, err = w.Write([]byte("frame"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	assert.NoError(t, Verify(good, ".zip"))

	bad := filepath.Join(dir, "broken.zip")
	require.NoError(t, os.WriteFile(bad, []byte("PK nope"), 0o644))
	assert.Error(t, Verify(bad, ".zip"))

	assert.NoError(t, Verify(bad, ".txt"))
}

func TestVerifyToleratesTruncatedImage(t *testing.T) {
	body := pngBytes(t)
	path := filepath.Join(t.TempDir(), "cut.png")
	require.NoError(t, os.WriteFile(path, body[:len(body)-12], 0o644))
	assert.NoError(t, Verify(path, ".png"))
}

func TestBackupName(t *testing.T) {
	now := time.Unix(1700000000, 0)
	assert.Equal(t, filepath.Join("d", "123_p0.1700000000.jpg"), BackupName(filepath.Join("d", "123_p0.jpg"), now))
	assert.Equal(t, "noext.1700000000", BackupName("noext", now))
}
