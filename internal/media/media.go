// Package media stores uploaded images in object storage
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	storage "github.com/supabase-community/storage-go"
)

const (
	GalleryBucket = "gallery"
	BackupBucket  = "backups"
)

var (
	ErrDisabled    = errors.New("object storage is not configured")
	ErrUnsupported = errors.New("unsupported file type")
)

// Object is a stored file
type Object struct {
	Bucket string
	Path   string
	URL    string
}

// Storage uploads and removes objects
type Storage interface {
	Upload(ctx context.Context, bucket, name, contentType string, r io.Reader) (Object, error)
	Remove(ctx context.Context, bucket string, paths []string) error
	PublicURL(bucket, objectPath string) string
}

var imageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// ImageExt returns the file extension for an accepted image content type
func ImageExt(contentType string) (string, error) {
	ct := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	if ext, ok := imageTypes[ct]; ok {
		return ext, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupported, contentType)
}

// ObjectName builds a collision-free object path under prefix, keeping the
// extension of name
func ObjectName(prefix, name string) string {
	ext := strings.ToLower(path.Ext(name))
	return path.Join(prefix, uuid.NewString()+ext)
}

// Supabase is Storage backed by Supabase Storage
type Supabase struct {
	client *storage.Client
	log    zerolog.Logger
}

func NewSupabase(client *storage.Client, log zerolog.Logger) *Supabase {
	return &Supabase{client: client, log: log}
}

func (s *Supabase) Upload(ctx context.Context, bucket, name, contentType string, r io.Reader) (Object, error) {
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}
	upsert := false
	_, err := s.client.UploadFile(bucket, name, r, storage.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	})
	if err != nil {
		return Object{}, fmt.Errorf("upload %s/%s: %w", bucket, name, err)
	}
	s.log.Info().Str("bucket", bucket).Str("path", name).Msg("object uploaded")
	return Object{Bucket: bucket, Path: name, URL: s.PublicURL(bucket, name)}, nil
}

func (s *Supabase) Remove(ctx context.Context, bucket string, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.client.RemoveFile(bucket, paths); err != nil {
		return fmt.Errorf("remove from %s: %w", bucket, err)
	}
	s.log.Info().Str("bucket", bucket).Strs("paths", paths).Msg("objects removed")
	return nil
}

func (s *Supabase) PublicURL(bucket, objectPath string) string {
	return s.client.GetPublicUrl(bucket, objectPath).SignedURL
}

// Disabled is used when no storage backend is configured
type Disabled struct{}

func (Disabled) Upload(context.Context, string, string, string, io.Reader) (Object, error) {
	return Object{}, ErrDisabled
}

func (Disabled) Remove(context.Context, string, []string) error { return ErrDisabled }

func (Disabled) PublicURL(string, string) string { return "" }
