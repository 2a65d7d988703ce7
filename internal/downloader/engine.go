package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	errs "artsync/pkg/errors"
	"artsync/pkg/logger"
	"artsync/pkg/models"
	"artsync/pkg/retry"
)

// HTTPGetter is the transport the engine downloads through. It returns the
// raw response whatever the status; the engine classifies it.
type HTTPGetter interface {
	HTTPGet(ctx context.Context, url, referer string, headOnly bool) (*http.Response, error)
}

// Observer receives download measurements
type Observer interface {
	ObserveDownload(outcome string, bytes int64, elapsed time.Duration)
	ObserveRetry(fault string)
}

// Options are the engine-wide settings taken from configuration
type Options struct {
	// MaxRetries is the number of retries after the first attempt
	MaxRetries          int
	RetryWait           time.Duration
	Verify              bool
	SetLastModified     bool
	AlwaysCheckFileSize bool
	// DownloadListDir receives Downloaded_on_<date>.txt; empty disables it
	DownloadListDir string
}

// Request is one file to fetch
type Request struct {
	URL              string
	Dest             string
	Referer          string
	Overwrite        bool
	BackupOnConflict bool
	// StoredPath is where the store says this file was saved last time
	StoredPath string
	// Created is applied as the file's modification time
	Created time.Time
}

// Result is what Fetch did. Fault is set for NOT_OK outcomes that were
// decided without exhausting retries.
type Result struct {
	Outcome  models.Outcome
	Path     string
	Size     int64
	Attempts int
	Fault    error
}

// Engine fetches single files with retry, size checks and verification
type Engine struct {
	client   HTTPGetter
	opts     Options
	log      logger.Logger
	observer Observer
	// onDiskFull is told about a full disk before the file is given up
	onDiskFull func(path string, err error)
	sleep      func(ctx context.Context, d time.Duration) error
	now        func() time.Time
}

// New creates an engine
func New(client HTTPGetter, opts Options, log logger.Logger) *Engine {
	return &Engine{
		client: client,
		opts:   opts,
		log:    logger.Or(log),
		sleep:  retry.Wait,
		now:    time.Now,
	}
}

// SetObserver attaches a metrics observer
func (e *Engine) SetObserver(o Observer) { e.observer = o }

// SetDiskFullHandler installs the callback used when a write hits ENOSPC
func (e *Engine) SetDiskFullHandler(fn func(path string, err error)) { e.onDiskFull = fn }

// Fetch downloads req.URL to req.Dest. An error is returned only when every
// attempt failed; permanent HTTP statuses and storage faults end in NOT_OK,
// cancellation of ctx ends in ABORTED.
func (e *Engine) Fetch(ctx context.Context, req Request) (Result, error) {
	start := e.now()
	log := e.log.WithFields(map[string]interface{}{"url": req.URL, "dest": req.Dest})

	var res Result
	attempts := 0
	err := retry.Do(ctx, retry.Config{
		MaxAttempts: e.opts.MaxRetries + 1,
		Backoff:     retry.ConstantBackoff{Delay: e.opts.RetryWait},
		Sleep:       e.sleep,
		Logger:      log,
		OnRetry: func(_ int, err error, _ time.Duration) {
			if e.observer != nil {
				e.observer.ObserveRetry(string(errs.TypeOf(err)))
			}
		},
	}, func(ctx context.Context, attempt int) error {
		attempts = attempt
		r, err := e.attempt(ctx, req, log)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	res.Attempts = attempts

	switch {
	case err == nil:
	case ctx.Err() != nil:
		log.Info("download aborted")
		res = Result{Outcome: models.Aborted, Attempts: attempts}
		err = nil
	case errs.Is(err, errs.ErrorTypePermanentHTTP):
		log.WithError(err).Warn("download not retried")
		res = Result{Outcome: models.NotOK, Attempts: attempts, Fault: err}
		err = nil
	case errs.Is(err, errs.ErrorTypeStorage):
		log.WithError(err).Error("cannot write download")
		if e.onDiskFull != nil && errors.Is(err, syscall.ENOSPC) {
			e.onDiskFull(req.Dest, err)
		}
		res = Result{Outcome: models.NotOK, Attempts: attempts, Fault: err}
		err = nil
	default:
		res = Result{Outcome: models.NotOK, Attempts: attempts}
	}

	if e.observer != nil {
		e.observer.ObserveDownload(res.Outcome.String(), res.Size, e.now().Sub(start))
	}
	return res, err
}

func (e *Engine) attempt(ctx context.Context, req Request, log logger.Logger) (Result, error) {
	if !req.Overwrite && !e.opts.AlwaysCheckFileSize && isFile(req.Dest) {
		log.Debug("local file exists")
		return Result{Outcome: models.SkipDuplicate, Path: req.Dest}, nil
	}

	remote, err := e.probe(ctx, req)
	if err != nil {
		return Result{}, err
	}

	for _, existing := range candidates(req) {
		local, ok := fileSize(existing)
		if !ok {
			continue
		}
		outcome, err := e.checkExisting(existing, remote, local, req)
		if err != nil {
			return Result{}, err
		}
		if outcome != models.OK {
			log.DebugWithFields("existing file kept", map[string]interface{}{
				"path":    existing,
				"local":   local,
				"remote":  remote,
				"outcome": outcome.String(),
			})
			return Result{Outcome: outcome, Path: existing, Size: local}, nil
		}
	}

	n, err := e.transfer(ctx, req, remote)
	if err != nil {
		return Result{}, err
	}

	if e.opts.SetLastModified && !req.Created.IsZero() {
		if err := os.Chtimes(req.Dest, req.Created, req.Created); err != nil {
			log.WithError(err).Warn("cannot set modification time")
		}
	}
	if e.opts.DownloadListDir != "" {
		if err := e.appendDownloadList(req.Dest); err != nil {
			log.WithError(err).Warn("cannot update download list")
		}
	}
	return Result{Outcome: models.OK, Path: req.Dest, Size: n}, nil
}

// candidates are the local paths that may already hold this file
func candidates(req Request) []string {
	out := []string{req.Dest}
	if req.StoredPath != "" && req.StoredPath != req.Dest {
		out = append(out, req.StoredPath)
	}
	return out
}

// probe returns the remote size, or -1 when the server does not say
func (e *Engine) probe(ctx context.Context, req Request) (int64, error) {
	resp, err := e.client.HTTPGet(ctx, req.URL, req.Referer, true)
	if err != nil {
		if ctx.Err() != nil {
			return -1, ctx.Err()
		}
		return -1, errs.NewNetwork(err, req.URL)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusInternalServerError:
		return -1, nil
	case resp.StatusCode >= 400:
		return -1, statusFault(resp.StatusCode, req.URL)
	}
	if resp.ContentLength < 0 {
		e.log.DebugWithFields("no file size information", map[string]interface{}{"url": req.URL})
	}
	return resp.ContentLength, nil
}

// checkExisting compares a file already on disk with the remote size. OK
// means the transfer should go ahead; the old file has been moved or removed.
func (e *Engine) checkExisting(path string, remote, local int64, req Request) (models.Outcome, error) {
	if !req.Overwrite {
		if remote == local {
			return models.SkipDuplicate, nil
		}
		if local > 0 && (remote < 0 || local > remote) {
			return models.SkipLocalLarger, nil
		}
	}
	if path != req.Dest {
		// A copy under an older name is left where it is.
		return models.OK, nil
	}
	if req.BackupOnConflict {
		backup := BackupName(path, e.now())
		if err := os.Rename(path, backup); err != nil {
			return models.NotOK, errs.NewStorage(err, backup)
		}
		e.log.InfoWithFields("old file backed up", map[string]interface{}{"path": path, "backup": backup})
		return models.OK, nil
	}
	if err := os.Remove(path); err != nil {
		return models.NotOK, errs.NewStorage(err, path)
	}
	return models.OK, nil
}

// transfer streams the body to a temp file next to Dest, checks it and
// renames it into place.
func (e *Engine) transfer(ctx context.Context, req Request, remote int64) (int64, error) {
	resp, err := e.client.HTTPGet(ctx, req.URL, req.Referer, false)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, errs.NewNetwork(err, req.URL)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return 0, statusFault(resp.StatusCode, req.URL)
	}
	if remote < 0 {
		remote = resp.ContentLength
	}

	if err := os.MkdirAll(filepath.Dir(req.Dest), 0o755); err != nil {
		return 0, errs.NewStorage(err, filepath.Dir(req.Dest))
	}
	tmp := req.Dest + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return 0, errs.NewStorage(err, tmp)
	}

	n, copyErr := io.Copy(f, resp.Body)
	closeErr := f.Close()
	if copyErr != nil || closeErr != nil {
		os.Remove(tmp)
		if ctx.Err() != nil {
			return n, ctx.Err()
		}
		if copyErr == nil {
			return n, errs.NewStorage(closeErr, tmp)
		}
		var pathErr *os.PathError
		if errors.As(copyErr, &pathErr) {
			return n, errs.NewStorage(copyErr, tmp)
		}
		return n, errs.NewNetwork(copyErr, req.URL)
	}

	if remote > 0 && n != remote {
		os.Remove(tmp)
		return n, errs.NewSizeMismatch(remote, n, req.URL)
	}

	if e.opts.Verify {
		if err := Verify(tmp, filepath.Ext(req.Dest)); err != nil {
			os.Remove(tmp)
			e.log.WithError(err).WarnWithFields("downloaded file invalid, deleted", map[string]interface{}{"dest": req.Dest})
			return n, errs.NewIntegrity(err, req.Dest)
		}
	}

	if err := os.Rename(tmp, req.Dest); err != nil {
		os.Remove(tmp)
		return n, errs.NewStorage(err, req.Dest)
	}
	return n, nil
}

func statusFault(code int, url string) error {
	if errs.IsPermanentStatus(code) {
		return errs.NewPermanentHTTP(code, url)
	}
	t := errs.ErrorTypeNetwork
	if code == http.StatusTooManyRequests {
		t = errs.ErrorTypeRateLimit
	}
	return &errs.Error{Type: t, Code: code, Message: fmt.Sprintf("%s returned %d", url, code)}
}

// BackupName is the name an existing file is moved to before it is replaced:
// "dir/name.ext" becomes "dir/name.<unix seconds>.ext".
func BackupName(path string, now time.Time) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "." + strconv.FormatInt(now.Unix(), 10) + ext
}

func (e *Engine) appendDownloadList(path string) error {
	if err := os.MkdirAll(e.opts.DownloadListDir, 0o755); err != nil {
		return err
	}
	name := filepath.Join(e.opts.DownloadListDir, "Downloaded_on_"+e.now().Format("2006-01-02")+".txt")
	f, err := os.OpenFile(name, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintln(f, path); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func isFile(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}

func fileSize(path string) (int64, bool) {
	fi, err := os.Stat(path)
	if err != nil || !fi.Mode().IsRegular() {
		return 0, false
	}
	return fi.Size(), true
}
