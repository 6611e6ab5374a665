package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"sentinal-widget/internal/config"
	"sentinal-widget/internal/domain"
	widget_errors "sentinal-widget/pkg/errors"
	"sentinal-widget/pkg/logger"
)

// maxConcurrentUploads bounds parallel upload requests per send.
const maxConcurrentUploads = 3

// LocalFile is a binary payload selected in the widget, not yet uploaded.
type LocalFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// Result pairs one input file with its outcome. Exactly one of
// Attachment and Err is set.
type Result struct {
	Name       string
	Attachment *domain.Attachment
	Err        error
}

func (r Result) OK() bool {
	return r.Err == nil
}

// Uploader resolves local files into server-assigned attachment
// references via the out-of-band upload endpoint.
type Uploader struct {
	baseURL     string
	token       string
	maxBytes    int64
	allowedExts map[string]struct{}
	http        *http.Client
	log         *logger.Logger
}

func New(baseURL, token string, cfg config.UploadConfig, log *logger.Logger) *Uploader {
	exts := make(map[string]struct{}, len(cfg.AllowedExtensions))
	for _, ext := range cfg.AllowedExtensions {
		exts[strings.ToLower(strings.TrimPrefix(ext, "."))] = struct{}{}
	}
	return &Uploader{
		baseURL:     strings.TrimRight(baseURL, "/"),
		token:       token,
		maxBytes:    cfg.MaxBytes,
		allowedExts: exts,
		http:        &http.Client{Timeout: 60 * time.Second},
		log:         log,
	}
}

// Upload validates and uploads each file, returning one result per
// input in input order. Validation failures never reach the network.
// Partial failure is reported per file; the caller decides whether the
// owning send proceeds.
func (u *Uploader) Upload(ctx context.Context, conversationID string, files []LocalFile) []Result {
	results := make([]Result, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentUploads)
	for i, f := range files {
		i, f := i, f
		results[i].Name = f.Name
		if err := u.validate(f); err != nil {
			results[i].Err = err
			continue
		}
		g.Go(func() error {
			att, err := u.uploadOne(gctx, conversationID, f)
			if err != nil {
				u.log.Warnf("upload %s failed: %v", f.Name, err)
				results[i].Err = fmt.Errorf("%w: %s: %v", widget_errors.ErrUploadFailed, f.Name, err)
				return nil
			}
			results[i].Attachment = att
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (u *Uploader) validate(f LocalFile) error {
	if int64(len(f.Data)) > u.maxBytes {
		return fmt.Errorf("%w: %s exceeds %d bytes", widget_errors.ErrInvalidAttachment, f.Name, u.maxBytes)
	}
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(f.Name), "."))
	if _, ok := u.allowedExts[ext]; !ok {
		return fmt.Errorf("%w: extension %q not allowed", widget_errors.ErrInvalidAttachment, ext)
	}
	return nil
}

type uploadResponse struct {
	Attachment domain.Attachment `json:"attachment"`
	Error      string            `json:"error,omitempty"`
}

func (u *Uploader) uploadOne(ctx context.Context, conversationID string, f LocalFile) (*domain.Attachment, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("conversation_id", conversationID); err != nil {
		return nil, err
	}
	part, err := mw.CreateFormFile("file", f.Name)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(f.Data); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.baseURL+"/api/v1/uploads", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if u.token != "" {
		req.Header.Set("Authorization", "Bearer "+u.token)
	}

	resp, err := u.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("upload returned status %d", resp.StatusCode)
	}

	var decoded uploadResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decode upload response: %w", err)
	}
	if decoded.Error != "" {
		return nil, fmt.Errorf("server rejected upload: %s", decoded.Error)
	}
	if decoded.Attachment.ID == "" {
		return nil, fmt.Errorf("upload response missing attachment id")
	}
	att := decoded.Attachment
	if att.Kind == "" {
		att.Kind = KindForContentType(f.ContentType)
	}
	return &att, nil
}

// KindForContentType maps a MIME type onto the declared media kind.
// Anything unrecognized counts as a document.
func KindForContentType(contentType string) domain.AttachmentKind {
	switch {
	case strings.HasPrefix(contentType, "image/"):
		return domain.AttachmentImage
	case strings.HasPrefix(contentType, "audio/"):
		return domain.AttachmentAudio
	case strings.HasPrefix(contentType, "video/"):
		return domain.AttachmentVideo
	default:
		return domain.AttachmentDocument
	}
}
