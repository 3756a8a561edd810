package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
)

// ErrDownloadFailed wraps any failure to fetch or store the model binary.
var ErrDownloadFailed = errors.New("artifact download failed")

const maxArtifactBytes = 256 * 1024 * 1024

// Store persists vendor-hosted artifacts into our own storage. Paths are
// deterministic per (owner, task), so re-persisting the same task overwrites
// in place instead of duplicating.
type Store struct {
	root       string
	publicBase string
	httpClient *http.Client
	logger     *zap.Logger
}

type PersistResult struct {
	ModelURL         string
	ThumbnailURL     string
	ThumbnailSkipped bool
}

func NewStore(root, publicBase string, timeout time.Duration, logger *zap.Logger) *Store {
	return &Store{
		root:       root,
		publicBase: publicBase,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Persist downloads the model (required) and thumbnail (best-effort) and
// writes them under {owner}/models/{task}.glb and {owner}/thumbnails/{task}.png.
func (s *Store) Persist(ctx context.Context, ownerID, taskID, modelURL, thumbnailURL string) (*PersistResult, error) {
	modelRel := path.Join(ownerID, "models", taskID+".glb")

	modelData, err := s.fetch(ctx, modelURL)
	if err != nil {
		return nil, fmt.Errorf("%w: model: %v", ErrDownloadFailed, err)
	}
	if err := s.write(modelRel, modelData); err != nil {
		return nil, fmt.Errorf("%w: model: %v", ErrDownloadFailed, err)
	}

	result := &PersistResult{ModelURL: s.publicURL(modelRel)}

	s.logger.Info("Model artifact persisted",
		zap.String("task_id", taskID),
		zap.String("path", modelRel),
		zap.Int("bytes", len(modelData)),
	)

	if thumbnailURL == "" {
		return result, nil
	}

	thumbRel := path.Join(ownerID, "thumbnails", taskID+".png")
	if err := s.persistThumbnail(ctx, thumbnailURL, thumbRel); err != nil {
		s.logger.Warn("Thumbnail persistence skipped",
			zap.String("task_id", taskID),
			zap.Error(err),
		)
		result.ThumbnailSkipped = true
		return result, nil
	}

	result.ThumbnailURL = s.publicURL(thumbRel)
	return result, nil
}

func (s *Store) persistThumbnail(ctx context.Context, url, rel string) error {
	data, err := s.fetch(ctx, url)
	if err != nil {
		return err
	}

	// normalize whatever format the vendor serves to PNG
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decode thumbnail: %w", err)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return fmt.Errorf("encode thumbnail: %w", err)
	}

	return s.write(rel, buf.Bytes())
}

func (s *Store) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxArtifactBytes))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("fetch %s: empty body", url)
	}

	return data, nil
}

// write lands the bytes at the deterministic path via temp file + rename, so
// concurrent writers for the same task race to an identical final state.
func (s *Store) write(rel string, data []byte) error {
	dst := filepath.Join(s.root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".tmp-*")
	if err != nil {
		return err
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}

	return os.Rename(tmp.Name(), dst)
}

func (s *Store) publicURL(rel string) string {
	return s.publicBase + "/" + rel
}
