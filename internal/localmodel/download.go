package localmodel

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/dustin/go-humanize"

	fserrors "fission/internal/errors"
	"fission/internal/httpclient"
)

// download fetches the weights from Hugging Face into a temp file next to
// the target and renames it into place once complete and verified.
func (p *Provisioner) download(ctx context.Context, onStatus StatusFunc, onProgress ProgressFunc) error {
	if p.opts.Repo == "" {
		return fmt.Errorf("weights missing at %s and no model repo configured", p.path)
	}
	resolveURL, err := buildHFResolveURL(p.opts.HFBaseURL, p.opts.Repo, p.opts.Revision, p.opts.File)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resolveURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/octet-stream")
	req.Header.Set("User-Agent", "fission-localmodel")
	if token := strings.TrimSpace(p.opts.HFToken); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body := httpclient.ErrorBody(resp.Body, maxErrorBodyBytes)
		return fmt.Errorf("download weights: %w", fserrors.FromHTTPStatus("huggingface", resp.StatusCode, body))
	}

	tmp, err := os.CreateTemp(p.opts.Dir, p.opts.File+".partial-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	hasher := sha256.New()
	counter := &progressWriter{
		total:      resp.ContentLength,
		onStatus:   onStatus,
		onProgress: onProgress,
	}

	written, err := io.Copy(io.MultiWriter(tmp, hasher, counter), resp.Body)
	p.opts.Metrics.RecordDownload(ctx, written)
	if err != nil {
		return fmt.Errorf("write temp: %w", err)
	}
	if resp.ContentLength > 0 && written != resp.ContentLength {
		return fmt.Errorf("download truncated: got %d of %d bytes", written, resp.ContentLength)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}

	if err := p.install(tmpPath, hex.EncodeToString(hasher.Sum(nil))); err != nil {
		return err
	}
	p.logger.Info("Downloaded %s (%s)", p.opts.File, humanize.Bytes(uint64(written)))
	return nil
}

// progressWriter reports progress at most once per whole percent.
type progressWriter struct {
	total      int64
	written    int64
	lastPct    int
	onStatus   StatusFunc
	onProgress ProgressFunc
}

func (w *progressWriter) Write(b []byte) (int, error) {
	w.written += int64(len(b))
	if w.total <= 0 {
		return len(b), nil
	}
	pct := int(w.written * 100 / w.total)
	if pct > w.lastPct {
		w.lastPct = pct
		w.onProgress(float64(w.written) / float64(w.total))
		w.onStatus(fmt.Sprintf("Downloading Neural Core: %s / %s",
			humanize.Bytes(uint64(w.written)), humanize.Bytes(uint64(w.total))))
	}
	return len(b), nil
}

func buildHFResolveURL(base, repo, revision, file string) (string, error) {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		base = defaultHFBaseURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse hf base url: %w", err)
	}

	repo = strings.Trim(strings.TrimSpace(repo), "/")
	file = strings.Trim(strings.TrimSpace(file), "/")
	if repo == "" || file == "" {
		return "", fmt.Errorf("repo and file are required")
	}
	if revision = strings.TrimSpace(revision); revision == "" {
		revision = defaultRevision
	}

	pathPrefix := strings.TrimRight(u.Path, "/")
	rawPrefix := strings.TrimRight(u.EscapedPath(), "/")
	u.Path = pathPrefix + "/" + repo + "/resolve/" + revision + "/" + file
	u.RawPath = rawPrefix + "/" + escapeURLPath(repo) + "/resolve/" + url.PathEscape(revision) + "/" + escapeURLPath(file)
	return u.String(), nil
}

func escapeURLPath(raw string) string {
	parts := strings.Split(raw, "/")
	escaped := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		escaped = append(escaped, url.PathEscape(part))
	}
	return strings.Join(escaped, "/")
}

func validateSHA256(digest string) error {
	if digest == "" {
		return nil
	}
	if _, err := hex.DecodeString(digest); err != nil {
		return fmt.Errorf("sha256 must be hex: %w", err)
	}
	if len(digest) != 64 {
		return fmt.Errorf("sha256 must be 64 hex chars, got %d", len(digest))
	}
	return nil
}

func fileSHA256Matches(path string, wantHex string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return false, fmt.Errorf("hash file: %w", err)
	}
	return strings.EqualFold(hex.EncodeToString(hasher.Sum(nil)), wantHex), nil
}
