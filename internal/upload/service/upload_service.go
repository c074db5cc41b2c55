package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"

	"github.com/skurakin/account-service/internal/common/crypto"
	commonerrors "github.com/skurakin/account-service/internal/common/errors"
	"github.com/skurakin/account-service/internal/common/logger"
	"github.com/skurakin/account-service/internal/observability/metrics"
)

// allowedTypes maps accepted MIME types to the extension stored files get.
// Detection works on content, never on the client-supplied filename.
var allowedTypes = map[string]string{
	"image/png":       ".png",
	"image/jpeg":      ".jpg",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"application/pdf": ".pdf",
}

type StoredFile struct {
	FileName     string
	OriginalName string
	MimeType     string
	Size         int64
}

type UploadService struct {
	dir     string
	minSize int64
	maxSize int64
	idGen   crypto.IDGenerator
	log     *logger.Logger
}

func NewUploadService(dir string, minSize, maxSize int64, idGen crypto.IDGenerator, log *logger.Logger) *UploadService {
	return &UploadService{
		dir:     dir,
		minSize: minSize,
		maxSize: maxSize,
		idGen:   idGen,
		log:     log,
	}
}

// Store drains src into a temporary file under the upload directory,
// validates size and detected content type, then renames the file to its
// final UUID-based name. The temporary file is removed on every rejection.
func (s *UploadService) Store(ctx context.Context, src io.Reader, originalName string) (StoredFile, error) {
	tmp, err := os.CreateTemp(s.dir, "upload-*")
	if err != nil {
		return StoredFile{}, commonerrors.ErrInternalError.WithCause(fmt.Errorf("create temp file: %w", err))
	}
	tmpPath := tmp.Name()

	written, err := io.Copy(tmp, io.LimitReader(src, s.maxSize+1))
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		s.discard(ctx, tmpPath)
		return StoredFile{}, commonerrors.ErrInternalError.WithCause(fmt.Errorf("write upload: %w", err))
	}

	if written < s.minSize {
		s.discard(ctx, tmpPath)
		metrics.UploadsRejected.WithLabelValues("too_small").Inc()
		return StoredFile{}, commonerrors.ErrFileTooSmall
	}
	if written > s.maxSize {
		s.discard(ctx, tmpPath)
		metrics.UploadsRejected.WithLabelValues("too_large").Inc()
		return StoredFile{}, commonerrors.ErrFileTooLarge
	}

	detected, err := mimetype.DetectFile(tmpPath)
	if err != nil {
		s.discard(ctx, tmpPath)
		return StoredFile{}, commonerrors.ErrInternalError.WithCause(fmt.Errorf("detect mime type: %w", err))
	}

	ext, ok := allowedTypes[detected.String()]
	if !ok {
		s.discard(ctx, tmpPath)
		metrics.UploadsRejected.WithLabelValues("mime_type").Inc()
		s.log.WithFields(ctx, logger.Fields{"mime_type": detected.String()}).Warn("upload rejected by content type")
		return StoredFile{}, commonerrors.ErrMimeTypeNotAllowed
	}

	id, err := s.idGen.NewID()
	if err != nil {
		s.discard(ctx, tmpPath)
		return StoredFile{}, commonerrors.ErrInternalError.WithCause(fmt.Errorf("generate file id: %w", err))
	}

	fileName := id + ext
	finalPath := filepath.Join(s.dir, fileName)
	if err := os.Rename(tmpPath, finalPath); err != nil {
		s.discard(ctx, tmpPath)
		return StoredFile{}, commonerrors.ErrInternalError.WithCause(fmt.Errorf("finalize upload: %w", err))
	}

	metrics.UploadsAccepted.Inc()
	metrics.UploadBytes.Observe(float64(written))
	s.log.WithFields(ctx, logger.Fields{
		"file_name": fileName,
		"mime_type": detected.String(),
		"size":      written,
	}).Info("upload stored")

	return StoredFile{
		FileName:     fileName,
		OriginalName: originalName,
		MimeType:     detected.String(),
		Size:         written,
	}, nil
}

func (s *UploadService) discard(ctx context.Context, path string) {
	if err := os.Remove(path); err != nil {
		s.log.WithFields(ctx, logger.Fields{"path": path, "error": err.Error()}).Warn("failed to remove rejected upload")
	}
}
