package mirror

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/GLZ-gaoxiaoling/ArchLinuxARM-Image-Converter/pkg/errors"
)

// TransferError wraps a failed archive transfer.
type TransferError struct {
	URL string
	Err error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer failed: %s: %v", e.URL, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// FetchResult describes a successfully fetched archive.
type FetchResult struct {
	Path   string
	SHA256 string
	Size   int64
}

// Fetcher downloads archives over http(s) or s3.
type Fetcher struct {
	http     *http.Client
	s3Region string
	log      *slog.Logger
}

// NewFetcher builds a fetcher whose HTTP transport retries transient
// failures up to retryMax times per request.
func NewFetcher(s3Region string, retryMax int, log *slog.Logger) *Fetcher {
	if log == nil {
		log = slog.Default()
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = retryMax
	rc.Logger = nil

	return &Fetcher{
		http:     rc.StandardClient(),
		s3Region: s3Region,
		log:      log,
	}
}

// Fetch downloads rawURL to dest, computing the archive SHA-256 on the way.
// On any failure after dest was created the partial file is removed before
// the error surfaces, so a corrupt archive is never left looking present.
func (f *Fetcher) Fetch(ctx context.Context, rawURL, dest string) (*FetchResult, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.Wrapf(err, "parse mirror url %s", rawURL)
	}

	switch u.Scheme {
	case "http", "https":
		return f.fetchHTTP(ctx, rawURL, dest)
	case "s3":
		return f.fetchS3(ctx, u, dest)
	default:
		return nil, fmt.Errorf("unsupported mirror scheme %q in %s", u.Scheme, rawURL)
	}
}

func (f *Fetcher) fetchHTTP(ctx context.Context, rawURL, dest string) (*FetchResult, error) {
	f.log.Info("fetch_started", "url", rawURL, "dest", dest)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, &TransferError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &TransferError{URL: rawURL, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	return f.writeArchive(rawURL, dest, resp.Body)
}

// writeArchive streams body to dest under the partial-file cleanup contract.
func (f *Fetcher) writeArchive(rawURL, dest string, body io.Reader) (*FetchResult, error) {
	out, err := os.Create(dest)
	if err != nil {
		return nil, errors.Wrapf(err, "create %s", dest)
	}

	hash := sha256.New()
	size, err := io.Copy(io.MultiWriter(out, hash), body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = validateArchive(dest, size)
	}
	if err != nil {
		os.Remove(dest)
		return nil, &TransferError{URL: rawURL, Err: err}
	}

	checksum := hex.EncodeToString(hash.Sum(nil))
	f.log.Info("fetch_complete",
		"dest", dest,
		"size_mb", size/1024/1024,
		"sha256", checksum[:16]+"...",
	)

	return &FetchResult{Path: dest, SHA256: checksum, Size: size}, nil
}

// validateArchive rejects transfers that finished without a transport error
// but cannot be a gzip archive, so truncated bodies and HTML error pages
// are not kept as "present".
func validateArchive(path string, size int64) error {
	if size == 0 {
		return fmt.Errorf("archive is empty")
	}

	fh, err := os.Open(path)
	if err != nil {
		return err
	}
	defer fh.Close()

	var magic [2]byte
	if _, err := io.ReadFull(fh, magic[:]); err != nil {
		return fmt.Errorf("read archive header: %w", err)
	}
	if magic[0] != 0x1f || magic[1] != 0x8b {
		return fmt.Errorf("not a gzip archive (bad magic %x)", magic)
	}
	return nil
}
