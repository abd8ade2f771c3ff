package uploads

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/chryzcode/ycsyh-site/pkg/enums"
	pkgerrors "github.com/chryzcode/ycsyh-site/pkg/errors"
	"github.com/chryzcode/ycsyh-site/pkg/logger"
	"github.com/chryzcode/ycsyh-site/pkg/storage/s3"
)

const mb = 1024 * 1024

var maxBytesByKind = map[enums.UploadKind]int64{
	enums.UploadKindImage: 10 * mb,
	enums.UploadKindAudio: 100 * mb,
	enums.UploadKindZip:   200 * mb,
	enums.UploadKindRaw:   100 * mb,
}

var folderByKind = map[enums.UploadKind]string{
	enums.UploadKindImage: "beats/images",
	enums.UploadKindAudio: "beats/audio",
	enums.UploadKindZip:   "beats/trackouts",
	enums.UploadKindRaw:   "beats",
}

var presignFolderByResource = map[string]string{
	"image": "beats/images",
	"video": "beats/audio",
	"audio": "beats/audio",
	"raw":   "beats/trackouts",
	"auto":  "beats",
	"":      "beats",
}

type objectStore interface {
	Put(ctx context.Context, in s3.PutInput) (*s3.Object, error)
	PresignPut(ctx context.Context, key, contentType string) (*s3.PresignedPut, error)
	PublicURL(key string) string
}

// Service stores admin media uploads in the bucket.
type Service interface {
	Upload(ctx context.Context, input UploadInput) (*UploadResult, error)
	Presign(ctx context.Context, input PresignInput) (*PresignResult, error)
}

// UploadInput is a file received through the multipart form. Kind may be
// empty, in which case it is inferred from ContentType.
type UploadInput struct {
	Kind        enums.UploadKind
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

type UploadResult struct {
	URL      string `json:"url"`
	PublicID string `json:"publicId"`
	Format   string `json:"format"`
	Bytes    int64  `json:"bytes"`
}

type PresignInput struct {
	Folder       string `json:"folder"`
	ResourceType string `json:"resourceType"`
	FileName     string `json:"fileName" validate:"required"`
	ContentType  string `json:"contentType"`
}

type PresignResult struct {
	URL       string            `json:"url"`
	Method    string            `json:"method"`
	PublicID  string            `json:"publicId"`
	PublicURL string            `json:"publicUrl"`
	ExpiresAt time.Time         `json:"expiresAt"`
	Headers   map[string]string `json:"headers"`
}

type service struct {
	store objectStore
	logg  *logger.Logger
}

func NewService(store objectStore, logg *logger.Logger) (Service, error) {
	if store == nil {
		return nil, fmt.Errorf("object store required")
	}
	return &service{store: store, logg: logg}, nil
}

// MaxBytes is the size limit for kind.
func MaxBytes(kind enums.UploadKind) int64 {
	if limit, ok := maxBytesByKind[kind]; ok {
		return limit
	}
	return maxBytesByKind[enums.UploadKindRaw]
}

// KindFor picks the upload kind from a MIME type.
func KindFor(contentType string) enums.UploadKind {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	switch {
	case strings.HasPrefix(ct, "image/"):
		return enums.UploadKindImage
	case strings.HasPrefix(ct, "audio/"):
		return enums.UploadKindAudio
	case strings.Contains(ct, "zip"):
		return enums.UploadKindZip
	default:
		return enums.UploadKindRaw
	}
}

func (s *service) Upload(ctx context.Context, input UploadInput) (*UploadResult, error) {
	if input.Body == nil || input.Size <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "No file provided")
	}
	kind := input.Kind
	if kind == "" || kind == enums.UploadKindRaw {
		kind = KindFor(input.ContentType)
	}
	if limit := MaxBytes(kind); input.Size > limit {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "File size exceeds maximum allowed size of %dMB", limit/mb)
	}

	key := objectKey(folderByKind[kind], input.FileName)
	obj, err := s.store.Put(ctx, s3.PutInput{
		Key:         key,
		Body:        io.LimitReader(input.Body, input.Size),
		ContentType: input.ContentType,
		PublicRead:  true,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "Failed to upload file")
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"key":   obj.Key,
			"kind":  string(kind),
			"bytes": input.Size,
		}), "upload.stored")
	}
	return &UploadResult{
		URL:      obj.URL,
		PublicID: obj.Key,
		Format:   formatOf(input.FileName, input.ContentType),
		Bytes:    input.Size,
	}, nil
}

func (s *service) Presign(ctx context.Context, input PresignInput) (*PresignResult, error) {
	if strings.TrimSpace(input.FileName) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "fileName is required")
	}
	folder, err := presignFolder(input.Folder, input.ResourceType)
	if err != nil {
		return nil, err
	}
	key := objectKey(folder, input.FileName)
	signed, err := s.store.PresignPut(ctx, key, strings.TrimSpace(input.ContentType))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "Failed to generate upload signature")
	}
	return &PresignResult{
		URL:       signed.URL,
		Method:    signed.Method,
		PublicID:  key,
		PublicURL: s.store.PublicURL(key),
		ExpiresAt: signed.ExpiresAt,
		Headers:   signed.Headers,
	}, nil
}

func presignFolder(folder, resourceType string) (string, error) {
	folder = strings.Trim(strings.TrimSpace(folder), "/")
	if folder == "" {
		mapped, ok := presignFolderByResource[strings.ToLower(strings.TrimSpace(resourceType))]
		if !ok {
			return "", pkgerrors.Newf(pkgerrors.CodeValidation, "unsupported resource type %q", resourceType)
		}
		return mapped, nil
	}
	for _, allowed := range folderByKind {
		if folder == allowed {
			return folder, nil
		}
	}
	return "", pkgerrors.Newf(pkgerrors.CodeValidation, "folder %q is not allowed", folder)
}

func objectKey(folder, fileName string) string {
	id := uuid.NewString()
	clean := sanitizeFileName(fileName)
	if clean == "" {
		return folder + "/" + id
	}
	return folder + "/" + id + "-" + clean
}

func formatOf(fileName, contentType string) string {
	if ext := strings.TrimPrefix(path.Ext(sanitizeFileName(fileName)), "."); ext != "" {
		return strings.ToLower(ext)
	}
	if _, sub, ok := strings.Cut(strings.ToLower(contentType), "/"); ok {
		sub, _, _ = strings.Cut(sub, ";")
		return strings.TrimSpace(sub)
	}
	return ""
}

func sanitizeFileName(name string) string {
	clean := path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if clean == "." || clean == "/" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(clean))
	for _, r := range clean {
		switch {
		case unicode.IsControl(r):
			continue
		case unicode.IsSpace(r):
			b.WriteRune('-')
		default:
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), "-_.")
}
