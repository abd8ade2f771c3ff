package controllers

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/chryzcode/ycsyh-site/internal/uploads"
	"github.com/chryzcode/ycsyh-site/pkg/enums"
)

type stubUploadService struct {
	input   *uploads.UploadInput
	body    []byte
	presign *uploads.PresignInput
}

func (s *stubUploadService) Upload(_ context.Context, input uploads.UploadInput) (*uploads.UploadResult, error) {
	s.input = &input
	data, _ := io.ReadAll(input.Body)
	s.body = data
	return &uploads.UploadResult{URL: "https://cdn.example.com/beats/images/cover.png", PublicID: "beats/images/cover.png", Format: "png", Bytes: input.Size}, nil
}

func (s *stubUploadService) Presign(_ context.Context, input uploads.PresignInput) (*uploads.PresignResult, error) {
	s.presign = &input
	return &uploads.PresignResult{URL: "https://bucket.example.com/signed", Method: http.MethodPut, PublicID: "beats/audio/a.wav", ExpiresAt: time.Now().Add(15 * time.Minute)}, nil
}

func multipartRequest(t *testing.T, kind, fileName, contentType string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if kind != "" {
		if err := writer.WriteField("type", kind); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if fileName != "" {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", `form-data; name="file"; filename="`+fileName+`"`)
		header.Set("Content-Type", contentType)
		part, err := writer.CreatePart(header)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		part.Write(content)
	}
	writer.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/upload", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestUploadForwardsFile(t *testing.T) {
	svc := &stubUploadService{}
	content := []byte("\x89PNG fake image")
	rec := httptest.NewRecorder()
	Upload(svc, testLogger()).ServeHTTP(rec, multipartRequest(t, "image", "cover.png", "image/png", content))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.input.Kind != enums.UploadKindImage || svc.input.FileName != "cover.png" || svc.input.ContentType != "image/png" {
		t.Fatalf("unexpected input %+v", svc.input)
	}
	if svc.input.Size != int64(len(content)) || !bytes.Equal(svc.body, content) {
		t.Fatalf("file content not forwarded")
	}
	var got uploads.UploadResult
	decodeData(t, rec, &got)
	if got.Format != "png" || got.URL == "" {
		t.Fatalf("unexpected result %+v", got)
	}
}

func TestUploadRejectsMissingFileAndBadType(t *testing.T) {
	svc := &stubUploadService{}

	rec := httptest.NewRecorder()
	Upload(svc, testLogger()).ServeHTTP(rec, multipartRequest(t, "image", "", "", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without file, got %d", rec.Code)
	}
	if msg := decodeError(t, rec).Error.Message; msg != "No file provided" {
		t.Fatalf("unexpected message %q", msg)
	}

	rec = httptest.NewRecorder()
	Upload(svc, testLogger()).ServeHTTP(rec, multipartRequest(t, "video", "clip.mp4", "video/mp4", []byte("x")))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown type, got %d", rec.Code)
	}
	if svc.input != nil {
		t.Fatalf("service should not be called")
	}
}

func TestUploadSignature(t *testing.T) {
	svc := &stubUploadService{}
	body := `{"folder":"beats/audio","resourceType":"video","fileName":"a.wav","contentType":"audio/wav"}`
	rec := httptest.NewRecorder()
	UploadSignature(svc, testLogger()).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/upload/signature", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.presign == nil || svc.presign.FileName != "a.wav" || svc.presign.Folder != "beats/audio" {
		t.Fatalf("unexpected presign input %+v", svc.presign)
	}

	rec = httptest.NewRecorder()
	UploadSignature(&stubUploadService{}, testLogger()).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/upload/signature", strings.NewReader(`{"folder":"beats/audio"}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without fileName, got %d", rec.Code)
	}
}
