package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/ternarybob/arbor"
	"github.com/veoflow/veoflow/internal/common"
	"github.com/veoflow/veoflow/internal/models"
)

// Downloader fetches rendered video artifacts into the output tree. One
// artifact per scene: output/<project>/scene_<scene>.mp4.
type Downloader struct {
	client    *resty.Client
	outputDir string
	logger    arbor.ILogger
}

// NewDownloader creates an artifact downloader
func NewDownloader(cfg common.RenderConfig, outputDir string, logger arbor.ILogger) *Downloader {
	client := resty.New().
		SetTimeout(cfg.DownloadTimeout).
		SetRetryCount(cfg.DownloadRetries).
		SetRetryWaitTime(2 * time.Second).
		SetRetryMaxWaitTime(10 * time.Second)

	return &Downloader{
		client:    client,
		outputDir: outputDir,
		logger:    logger,
	}
}

// Download fetches the artifact for a task and returns its path on disk
func (d *Downloader) Download(ctx context.Context, task *models.RenderTask, videoURL string) (string, error) {
	dir := filepath.Join(d.outputDir, task.ProjectID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("scene_%s.mp4", task.SceneID))

	resp, err := d.client.R().
		SetContext(ctx).
		SetOutput(path).
		Get(videoURL)
	if err != nil {
		return "", fmt.Errorf("artifact download failed: %w", err)
	}
	if resp.StatusCode() >= 400 {
		os.Remove(path)
		return "", fmt.Errorf("artifact download failed with status %d", resp.StatusCode())
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("downloaded artifact missing: %w", err)
	}
	if info.Size() == 0 {
		os.Remove(path)
		return "", fmt.Errorf("downloaded artifact is empty")
	}

	d.logger.Info().
		Str("task_id", task.ID).
		Str("path", path).
		Int64("bytes", info.Size()).
		Msg("Artifact downloaded")
	return path, nil
}
