// Package media implements the orchestrator's local, non-vendored stage
// sub-steps: resolving a remote page to a direct media URL, streaming a
// bounded download to a temporary file, and normalizing audio with
// ffmpeg. Unlike the upload_storage/transcribe/summarize stages, these
// never go through the Smart Selector — there is no provider to choose.
package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"regexp"
	"time"
)

// DefaultMaxDownloadBytes is the download stage's size ceiling (§4.9.1).
const DefaultMaxDownloadBytes int64 = 500 * 1024 * 1024

// Resolver extracts a direct media URL from a page URL.
type Resolver struct {
	client *http.Client
}

func NewResolver() *Resolver {
	return &Resolver{client: &http.Client{Timeout: 30 * time.Second}}
}

var directMediaExt = regexp.MustCompile(`\.(mp3|wav|m4a|mp4|mov|webm|flac)(\?|$)`)
var mediaSrcAttr = regexp.MustCompile(`(?i)(?:src|href)=["']([^"']+\.(?:mp3|wav|m4a|mp4|mov|webm|flac))["']`)

// Resolve fetches url; if it already points at a media file it is
// returned unchanged, otherwise the page body is scanned for the first
// tag carrying a direct media link.
func (r *Resolver) Resolve(ctx context.Context, url string) (string, error) {
	if directMediaExt.MatchString(url) {
		return url, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("can't build request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("can't fetch page: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("page fetch failed: %s", resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 5*1024*1024))
	if err != nil {
		return "", fmt.Errorf("can't read page: %w", err)
	}
	m := mediaSrcAttr.FindSubmatch(body)
	if m == nil {
		return "", fmt.Errorf("no direct media link found on page")
	}
	return string(m[1]), nil
}

// Downloader streams a URL to a local temporary file, enforcing a size
// ceiling by refusing to write past it.
type Downloader struct {
	client       *http.Client
	maxBytes     int64
}

func NewDownloader(maxBytes int64) *Downloader {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxDownloadBytes
	}
	return &Downloader{client: &http.Client{}, maxBytes: maxBytes}
}

// Download streams url into a fresh temp file under dir and returns its
// path. Caller owns cleanup.
func (d *Downloader) Download(ctx context.Context, url, dir string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("can't build request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("can't download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download failed: %s", resp.Status)
	}

	f, err := os.CreateTemp(dir, "voxsum_dl_*")
	if err != nil {
		return "", fmt.Errorf("can't create temp file: %w", err)
	}
	defer f.Close()

	lr := &io.LimitedReader{R: resp.Body, N: d.maxBytes + 1}
	written, err := io.Copy(f, lr)
	if err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("can't write download: %w", err)
	}
	if written > d.maxBytes {
		os.Remove(f.Name())
		return "", fmt.Errorf("download exceeds size limit of %d bytes", d.maxBytes)
	}
	return f.Name(), nil
}

// Transcoder normalizes an input media file into a canonical audio
// format (mono, fixed sample rate, fixed codec) via an ffmpeg subprocess.
type Transcoder struct {
	ffmpegBin    string
	sampleRateHz int
	codec        string
}

// NewTranscoder wires a transcoder against the ffmpeg binary on PATH
// (overridable for container images that vendor it elsewhere).
func NewTranscoder(ffmpegBin string) (*Transcoder, error) {
	if ffmpegBin == "" {
		ffmpegBin = "ffmpeg"
	}
	if _, err := exec.LookPath(ffmpegBin); err != nil {
		return nil, fmt.Errorf("ffmpeg binary not found: %s", ffmpegBin)
	}
	return &Transcoder{ffmpegBin: ffmpegBin, sampleRateHz: 16000, codec: "pcm_s16le"}, nil
}

// Transcode runs ffmpeg against inputPath, writing a mono 16kHz WAV next
// to it (inputPath + "_out.wav"), and returns its path plus measured
// duration. dir is not used.
func (t *Transcoder) Transcode(ctx context.Context, inputPath, dir string) (string, float64, error) {
	outPath := inputPath + "_out.wav"
	args := []string{"-y", "-i", inputPath, "-ac", "1", "-ar", fmt.Sprintf("%d", t.sampleRateHz),
		"-acodec", t.codec, outPath}
	cmd := exec.CommandContext(ctx, t.ffmpegBin, args...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		os.Remove(outPath)
		return "", 0, fmt.Errorf("ffmpeg transcode failed: %w: %s", err, out.String())
	}
	dur, err := probeDuration(ctx, t.ffmpegBin, outPath)
	if err != nil {
		os.Remove(outPath)
		return "", 0, fmt.Errorf("can't measure duration: %w", err)
	}
	return outPath, dur, nil
}

var durationLine = regexp.MustCompile(`Duration:\s*(\d+):(\d+):(\d+\.\d+)`)

// probeDuration shells out to ffmpeg itself (no output file given) to read the
// "Duration: HH:MM:SS.ss" line ffmpeg prints for any input file — avoids
// a separate ffprobe dependency for this one figure.
func probeDuration(ctx context.Context, ffmpegBin, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, ffmpegBin, "-i", path)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	_ = cmd.Run() // ffmpeg exits non-zero with no output file; output still has Duration
	m := durationLine.FindStringSubmatch(out.String())
	if m == nil {
		return 0, fmt.Errorf("duration not found in ffmpeg output")
	}
	var h, min int
	var sec float64
	fmt.Sscanf(m[1], "%d", &h)
	fmt.Sscanf(m[2], "%d", &min)
	fmt.Sscanf(m[3], "%f", &sec)
	return float64(h)*3600 + float64(min)*60 + sec, nil
}
