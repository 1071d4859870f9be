package services

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"pinetree/internal/database"
	"pinetree/internal/models"
	"pinetree/internal/security"
)

// allowedImageTypes maps sniffed MIME types to stored extensions
var allowedImageTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// ImageService stores pictures attached to notes on local disk
type ImageService struct {
	db        *database.DB
	pinecones *PineconeService
	tiers     *TierService
	limiter   *UsageLimiterService
	audit     *AuditService
	uploadDir string
}

// NewImageService creates an image service writing under uploadDir
func NewImageService(db *database.DB, pinecones *PineconeService, tiers *TierService, limiter *UsageLimiterService, audit *AuditService, uploadDir string) *ImageService {
	return &ImageService{
		db:        db,
		pinecones: pinecones,
		tiers:     tiers,
		limiter:   limiter,
		audit:     audit,
		uploadDir: uploadDir,
	}
}

// Upload stores an image for a node the user owns. The content type is
// sniffed from the data; the client's claim is ignored.
func (s *ImageService) Upload(ctx context.Context, userName string, pineconeGuid uuid.UUID, filename string, r io.Reader) (*models.Image, error) {
	if _, err := s.pinecones.OwnsNode(ctx, userName, pineconeGuid); err != nil {
		return nil, err
	}
	if err := s.limiter.CheckImageUploadLimit(ctx, userName); err != nil {
		recordImageUpload("limited")
		return nil, err
	}

	maxBytes := s.tiers.GetLimits(ctx, userName).MaxImageBytes
	reader := r
	if maxBytes >= 0 {
		reader = io.LimitReader(r, maxBytes+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if maxBytes >= 0 && int64(len(data)) > maxBytes {
		recordImageUpload("too_large")
		return nil, fmt.Errorf("%w: image exceeds %d bytes", ErrQuotaExceeded, maxBytes)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty upload", ErrValidation)
	}

	mimeType := http.DetectContentType(data)
	ext, ok := allowedImageTypes[mimeType]
	if !ok {
		recordImageUpload("rejected")
		return nil, fmt.Errorf("%w: unsupported image type %s", ErrValidation, mimeType)
	}

	id := uuid.New()
	dir, err := security.SafeJoin(s.uploadDir, security.UserDirName(userName))
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	path := filepath.Join(dir, id.String()+ext)

	hash, size, err := security.HashReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return nil, fmt.Errorf("failed to write image: %w", err)
	}

	img := &models.Image{
		ID:           id,
		PineconeGuid: pineconeGuid,
		UserName:     userName,
		Filename:     filepath.Base(filename),
		MimeType:     mimeType,
		Size:         size,
		Hash:         hash.String(),
		StoragePath:  path,
		CreatedAt:    time.Now().UTC(),
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO images (id, pinecone_guid, user_name, filename, mime_type, size, hash, storage_path, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		img.ID.String(), img.PineconeGuid.String(), img.UserName, img.Filename, img.MimeType,
		img.Size, img.Hash, img.StoragePath, img.CreatedAt); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to save image record: %w", err)
	}

	if err := s.limiter.IncrementImageUploadCount(ctx, userName); err != nil {
		log.Printf("⚠️  [IMAGES] Failed to count upload for %s: %v", userName, err)
	}
	recordImageUpload("ok")
	s.audit.Record(ctx, AuditUploadImage, userName, uuid.Nil, pineconeGuid, map[string]any{"image": id.String(), "size": size})
	log.Printf("🖼️  [IMAGES] %s uploaded %s (%s, %d bytes) to %s", userName, id, mimeType, size, pineconeGuid)
	return img, nil
}

const imageColumns = `id, pinecone_guid, user_name, filename, mime_type, size, hash, storage_path, created_at`

func scanImage(row rowScanner) (*models.Image, error) {
	var (
		img        models.Image
		id, parent string
	)
	if err := row.Scan(&id, &parent, &img.UserName, &img.Filename, &img.MimeType,
		&img.Size, &img.Hash, &img.StoragePath, &img.CreatedAt); err != nil {
		return nil, err
	}
	var err error
	if img.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("corrupt image id %q: %w", id, err)
	}
	if img.PineconeGuid, err = uuid.Parse(parent); err != nil {
		return nil, fmt.Errorf("corrupt pinecone guid %q on image %s: %w", parent, id, err)
	}
	return &img, nil
}

func (s *ImageService) find(ctx context.Context, id uuid.UUID) (*models.Image, error) {
	img, err := scanImage(s.db.QueryRowContext(ctx,
		`SELECT `+imageColumns+` FROM images WHERE id = ?`, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("image %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load image %s: %w", id, err)
	}
	return img, nil
}

// Get returns an image the user owns, or any image attached to a public
// node. Anonymous callers pass an empty user name.
func (s *ImageService) Get(ctx context.Context, userName string, id uuid.UUID) (*models.Image, error) {
	img, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if userName != "" && img.UserName == userName {
		return img, nil
	}
	if _, err := s.pinecones.GetPublic(ctx, img.PineconeGuid); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("image %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return img, nil
}

// Delete removes an image owned by the user
func (s *ImageService) Delete(ctx context.Context, userName string, id uuid.UUID) error {
	img, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if img.UserName != userName {
		return fmt.Errorf("image %s: %w", id, ErrUnauthorized)
	}
	if err := s.remove(ctx, img); err != nil {
		return err
	}
	s.audit.Record(ctx, AuditDeleteImage, userName, uuid.Nil, img.PineconeGuid, map[string]any{"image": id.String()})
	return nil
}

func (s *ImageService) remove(ctx context.Context, img *models.Image) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM images WHERE id = ?`, img.ID.String()); err != nil {
		return fmt.Errorf("failed to delete image %s: %w", img.ID, err)
	}
	if err := os.Remove(img.StoragePath); err != nil && !os.IsNotExist(err) {
		log.Printf("⚠️  [IMAGES] Failed to remove file %s: %v", img.StoragePath, err)
	}
	return nil
}

// PurgeOrphans removes images whose node no longer exists
func (s *ImageService) PurgeOrphans(ctx context.Context) (int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.id, i.pinecone_guid, i.user_name, i.filename, i.mime_type, i.size, i.hash, i.storage_path, i.created_at
		FROM images i LEFT JOIN pinecones p ON p.guid = i.pinecone_guid
		WHERE p.id IS NULL`)
	if err != nil {
		return 0, fmt.Errorf("failed to find orphaned images: %w", err)
	}
	var orphans []*models.Image
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			rows.Close()
			return 0, err
		}
		orphans = append(orphans, img)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	purged := 0
	for _, img := range orphans {
		if err := ctx.Err(); err != nil {
			return purged, err
		}
		if err := s.remove(ctx, img); err != nil {
			return purged, err
		}
		purged++
	}
	if purged > 0 {
		log.Printf("🧹 [IMAGES] Purged %d orphaned images", purged)
	}
	return purged, nil
}
