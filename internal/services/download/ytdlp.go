package download

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/capto/internal/common"
)

// Runner invokes the external download utility once. It exists as an
// interface so the retry loop can be tested without a yt-dlp binary.
type Runner interface {
	Run(ctx context.Context, url, cookieFile, quality string) (*RunOutput, error)
}

// RunOutput is the metadata one utility invocation yields on success.
type RunOutput struct {
	Filename  string
	Size      int64
	MimeType  string
	Platform  string
	SourceURL string
}

// ytdlpRunner shells out to yt-dlp with a Netscape cookie file and parses
// the JSON metadata it prints after the download.
type ytdlpRunner struct {
	config *common.DownloadConfig
	logger arbor.ILogger
}

// NewRunner creates the yt-dlp backed runner.
func NewRunner(config *common.DownloadConfig, logger arbor.ILogger) Runner {
	return &ytdlpRunner{config: config, logger: logger}
}

// ytdlpInfo is the subset of yt-dlp's info JSON the orchestrator records.
type ytdlpInfo struct {
	Filename       string `json:"_filename"`
	Filesize       int64  `json:"filesize"`
	FilesizeApprox int64  `json:"filesize_approx"`
	Ext            string `json:"ext"`
	ExtractorKey   string `json:"extractor_key"`
	WebpageURL     string `json:"webpage_url"`
}

func (r *ytdlpRunner) Run(ctx context.Context, url, cookieFile, quality string) (*RunOutput, error) {
	if quality == "" {
		quality = r.config.Quality
	}

	args := []string{
		"-f", quality,
		"-o", filepath.Join(r.config.OutputDir, r.config.OutputTemplate),
		"--max-filesize", r.config.MaxFileSize,
		"--print-json",
		"--no-warnings",
		"--no-progress",
	}
	if cookieFile != "" {
		args = append(args, "--cookies", cookieFile)
	}
	args = append(args, url)

	runCtx := ctx
	if r.config.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.config.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, r.config.UtilityPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.Debug().
		Str("url", url).
		Str("quality", quality).
		Bool("cookies", cookieFile != "").
		Msg("Invoking download utility")

	if err := cmd.Run(); err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("download timed out after %s", r.config.Timeout)
		}
		message := strings.TrimSpace(stderr.String())
		if message == "" {
			message = err.Error()
		}
		return nil, fmt.Errorf("%s", message)
	}

	info, err := parseInfoJSON(stdout.Bytes())
	if err != nil {
		r.logger.Warn().Err(err).Str("url", url).Msg("Download succeeded but metadata parse failed")
		info = &ytdlpInfo{WebpageURL: url}
	}
	return r.toOutput(url, info), nil
}

// parseInfoJSON finds the info object in the utility's stdout. Playlist
// invocations print one JSON document per line; the first one wins.
func parseInfoJSON(out []byte) (*ytdlpInfo, error) {
	for _, line := range bytes.Split(out, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		var info ytdlpInfo
		if err := json.Unmarshal(line, &info); err != nil {
			return nil, fmt.Errorf("invalid metadata JSON: %w", err)
		}
		return &info, nil
	}
	return nil, fmt.Errorf("no metadata JSON in utility output")
}

func (r *ytdlpRunner) toOutput(url string, info *ytdlpInfo) *RunOutput {
	output := &RunOutput{
		Filename:  filepath.Base(info.Filename),
		Size:      info.Filesize,
		Platform:  info.ExtractorKey,
		SourceURL: info.WebpageURL,
	}
	if output.SourceURL == "" {
		output.SourceURL = url
	}
	if output.Size == 0 {
		output.Size = info.FilesizeApprox
	}
	if output.Size == 0 && info.Filename != "" {
		if stat, err := os.Stat(info.Filename); err == nil {
			output.Size = stat.Size()
		}
	}
	if info.Ext != "" {
		output.MimeType = mime.TypeByExtension("." + info.Ext)
	}
	if output.MimeType == "" {
		output.MimeType = "application/octet-stream"
	}
	return output
}
