package uploader_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sentinal-widget/internal/config"
	"sentinal-widget/internal/domain"
	"sentinal-widget/internal/uploader"
	"sentinal-widget/pkg/logger"
	widget_errors "sentinal-widget/pkg/errors"
)

func newUploadServer(t *testing.T, hits *int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(hits, 1)
		require.NoError(t, r.ParseMultipartForm(32<<20))
		assert.Equal(t, "conv-1", r.FormValue("conversation_id"))

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()

		if strings.HasPrefix(header.Filename, "bad") {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"attachment": domain.Attachment{
				ID:        uuid.NewString(),
				Kind:      domain.AttachmentImage,
				Filename:  header.Filename,
				SizeBytes: header.Size,
				URL:       "/files/" + header.Filename,
			},
		})
	}))
}

func testConfig() config.UploadConfig {
	return config.UploadConfig{
		MaxBytes:          1024,
		AllowedExtensions: []string{"png", "txt"},
	}
}

func TestUploader_Success(t *testing.T) {
	var hits int64
	srv := newUploadServer(t, &hits)
	defer srv.Close()

	u := uploader.New(srv.URL, "token", testConfig(), logger.Nop())
	results := u.Upload(context.Background(), "conv-1", []uploader.LocalFile{
		{Name: "pic.png", ContentType: "image/png", Data: []byte("pngdata")},
	})

	require.Len(t, results, 1)
	require.True(t, results[0].OK())
	assert.Equal(t, "pic.png", results[0].Attachment.Filename)
	assert.Equal(t, domain.AttachmentImage, results[0].Attachment.Kind)
	assert.NotEmpty(t, results[0].Attachment.ID)
	assert.EqualValues(t, 1, atomic.LoadInt64(&hits))
}

func TestUploader_OversizeRejectedBeforeNetwork(t *testing.T) {
	var hits int64
	srv := newUploadServer(t, &hits)
	defer srv.Close()

	u := uploader.New(srv.URL, "", testConfig(), logger.Nop())
	results := u.Upload(context.Background(), "conv-1", []uploader.LocalFile{
		{Name: "huge.png", ContentType: "image/png", Data: make([]byte, 2048)},
	})

	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0].Err, widget_errors.ErrInvalidAttachment)
	assert.Nil(t, results[0].Attachment)
	assert.EqualValues(t, 0, atomic.LoadInt64(&hits), "validation failures must not reach the network")
}

func TestUploader_DisallowedExtensionRejected(t *testing.T) {
	var hits int64
	srv := newUploadServer(t, &hits)
	defer srv.Close()

	u := uploader.New(srv.URL, "", testConfig(), logger.Nop())
	results := u.Upload(context.Background(), "conv-1", []uploader.LocalFile{
		{Name: "payload.exe", ContentType: "application/octet-stream", Data: []byte("x")},
	})

	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0].Err, widget_errors.ErrInvalidAttachment)
	assert.EqualValues(t, 0, atomic.LoadInt64(&hits))
}

func TestUploader_PartialFailureReportedPerFile(t *testing.T) {
	var hits int64
	srv := newUploadServer(t, &hits)
	defer srv.Close()

	u := uploader.New(srv.URL, "", testConfig(), logger.Nop())
	results := u.Upload(context.Background(), "conv-1", []uploader.LocalFile{
		{Name: "good.txt", ContentType: "text/plain", Data: []byte("ok")},
		{Name: "bad.txt", ContentType: "text/plain", Data: []byte("boom")},
	})

	require.Len(t, results, 2)
	assert.Equal(t, "good.txt", results[0].Name)
	assert.True(t, results[0].OK())
	assert.Equal(t, "bad.txt", results[1].Name)
	assert.ErrorIs(t, results[1].Err, widget_errors.ErrUploadFailed)
}

func TestKindForContentType(t *testing.T) {
	assert.Equal(t, domain.AttachmentImage, uploader.KindForContentType("image/png"))
	assert.Equal(t, domain.AttachmentAudio, uploader.KindForContentType("audio/mpeg"))
	assert.Equal(t, domain.AttachmentVideo, uploader.KindForContentType("video/mp4"))
	assert.Equal(t, domain.AttachmentDocument, uploader.KindForContentType("application/pdf"))
	assert.Equal(t, domain.AttachmentDocument, uploader.KindForContentType(""))
}
