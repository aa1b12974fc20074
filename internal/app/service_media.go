package app

import (
	"context"
	"net/http"
	"strings"

	"lamprey/api/internal/store"
	"lamprey/api/internal/util"
)

type MediaInput struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

// MediaUpload pairs a media record with the presigned URL the client
// PUTs the bytes to.
type MediaUpload struct {
	Media     store.Media `json:"media"`
	UploadURL string      `json:"upload_url"`
}

// CreateMedia registers an upload and hands back a presigned PUT URL.
// The object lands directly in the bucket; the API never proxies bytes.
func (s *Service) CreateMedia(ctx context.Context, session Session, input MediaInput) (MediaUpload, error) {
	if s.media == nil {
		return MediaUpload{}, domainError(http.StatusServiceUnavailable, "MEDIA_UNAVAILABLE", "Object storage is not configured", nil)
	}
	filename := strings.TrimSpace(input.Filename)
	if filename == "" {
		return MediaUpload{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Filename is required", nil)
	}

	m := store.Media{
		ID:       util.NewID(),
		UserID:   session.UserID,
		Filename: filename,
		Size:     input.Size,
	}
	if err := s.store.InsertMedia(ctx, m); err != nil {
		return MediaUpload{}, err
	}
	url, err := s.media.UploadURL(ctx, m.ID)
	if err != nil {
		return MediaUpload{}, err
	}
	return MediaUpload{Media: m, UploadURL: url}, nil
}

// MediaDownload is a media record plus a short-lived download URL.
type MediaDownload struct {
	Media       store.Media `json:"media"`
	DownloadURL string      `json:"download_url"`
}

func (s *Service) GetMediaDownload(ctx context.Context, _ Session, mediaID string) (MediaDownload, error) {
	if s.media == nil {
		return MediaDownload{}, domainError(http.StatusServiceUnavailable, "MEDIA_UNAVAILABLE", "Object storage is not configured", nil)
	}
	m, err := s.store.GetMedia(ctx, mediaID)
	if err != nil {
		return MediaDownload{}, domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
	url, err := s.media.DownloadURL(ctx, m.ID, m.Filename)
	if err != nil {
		return MediaDownload{}, err
	}
	return MediaDownload{Media: m, DownloadURL: url}, nil
}

// ConfirmMedia finalizes an upload: the record's size is replaced with
// what actually landed in the bucket. Only the uploader can confirm.
func (s *Service) ConfirmMedia(ctx context.Context, session Session, mediaID string) (store.Media, error) {
	if s.media == nil {
		return store.Media{}, domainError(http.StatusServiceUnavailable, "MEDIA_UNAVAILABLE", "Object storage is not configured", nil)
	}
	m, err := s.store.GetMedia(ctx, mediaID)
	if err != nil {
		return store.Media{}, domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
	if m.UserID != session.UserID {
		return store.Media{}, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	size, err := s.media.ObjectSize(ctx, mediaID)
	if err != nil {
		return store.Media{}, domainError(http.StatusUnprocessableEntity, "UPLOAD_INCOMPLETE", "Object not found in storage", nil)
	}
	if err := s.store.UpdateMediaSize(ctx, mediaID, size); err != nil {
		return store.Media{}, err
	}
	m.Size = size
	return m, nil
}

// DeleteMedia removes the object and its record. Only the uploader can
// delete; messages referencing the id keep the opaque reference.
func (s *Service) DeleteMedia(ctx context.Context, session Session, mediaID string) error {
	if s.media == nil {
		return domainError(http.StatusServiceUnavailable, "MEDIA_UNAVAILABLE", "Object storage is not configured", nil)
	}
	m, err := s.store.GetMedia(ctx, mediaID)
	if err != nil {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
	if m.UserID != session.UserID {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden", nil)
	}
	if err := s.media.Delete(ctx, mediaID); err != nil {
		return err
	}
	return s.store.DeleteMedia(ctx, mediaID)
}
