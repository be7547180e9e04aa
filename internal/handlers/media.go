package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/PortNumber53/fashion-shoot/backend/internal/apperr"
	"github.com/PortNumber53/fashion-shoot/backend/internal/credits"
	"github.com/PortNumber53/fashion-shoot/backend/internal/models"
	"github.com/PortNumber53/fashion-shoot/backend/internal/webhook"
)

const refundTimeout = 5 * time.Second

// Scriptable formats are refused even though they sniff as images.
var rejectedUploadTypes = []string{"image/svg+xml"}

// CreditStore spends and returns credits.
type CreditStore interface {
	ConsumeCredits(ctx context.Context, userID int64, n int) error
	RefundCredits(ctx context.Context, userID int64, n int) error
	RecordGeneration(ctx context.Context, userID int64, field credits.UsageField) error
}

// ImageEditor runs the image-edit workflow. *webhook.Client satisfies it.
type ImageEditor interface {
	EditImage(ctx context.Context, url, prompt, imageURL string) (map[string]any, error)
}

// ImageEditHandler charges one image credit per edit and refunds it when the
// workflow fails.
type ImageEditHandler struct {
	Credits  CreditStore
	Resolver *webhook.Resolver
	Editor   ImageEditor
}

// ServeHTTP implements http.Handler.
func (h *ImageEditHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	me, err := caller(r)
	if err != nil {
		fail(w, "ImageEdit", err)
		return
	}

	var req models.ImageEditRequest
	if err := decode(r, &req); err != nil {
		var ae *apperr.Error
		if errors.As(err, &ae) && ae.Kind == apperr.KindBadRequest {
			err = apperr.MalformedBody()
		}
		fail(w, "ImageEdit", err)
		return
	}

	url, err := h.Resolver.ImageEdit()
	if err != nil {
		log.Printf("ImageEdit: %v", err)
		apperr.Write(w, apperr.Upstream(http.StatusServiceUnavailable, "Image edit service is not configured", err))
		return
	}

	cost := credits.CostOf(credits.UsageImages)
	if err := h.Credits.ConsumeCredits(r.Context(), me.UserID, cost); err != nil {
		fail(w, "ImageEdit: consume credits", err)
		return
	}

	result, err := h.Editor.EditImage(r.Context(), url, strings.TrimSpace(req.Prompt), strings.TrimSpace(req.ImageURL))
	if err != nil {
		// Refund on a fresh context: the request one may be what failed.
		refundCtx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), refundTimeout)
		defer cancel()
		if rerr := h.Credits.RefundCredits(refundCtx, me.UserID, cost); rerr != nil {
			log.Printf("ImageEdit: refund for user %d failed: %v", me.UserID, rerr)
		}
		apperr.Write(w, upstreamError("Image edit failed", err))
		return
	}

	if err := h.Credits.RecordGeneration(r.Context(), me.UserID, credits.UsageImages); err != nil {
		log.Printf("ImageEdit: failed to record generation for user %d: %v", me.UserID, err)
	}
	respond(w, http.StatusOK, result)
}

func upstreamError(fallback string, err error) *apperr.Error {
	var se *webhook.StatusError
	switch {
	case errors.As(err, &se):
		return apperr.Upstream(http.StatusBadGateway, se.Message, err)
	case errors.Is(err, context.DeadlineExceeded):
		return apperr.Timeout("Upstream service timed out", err)
	}
	return apperr.Upstream(http.StatusBadGateway, fallback, err)
}

// UploadStore records stored files.
type UploadStore interface {
	CreateUpload(ctx context.Context, u *models.Upload) error
}

// UploadHandler stores media files on local disk.
type UploadHandler struct {
	Store    UploadStore
	Dir      string
	BaseURL  string
	MaxBytes int64
}

// Upload accepts one multipart "file" of the given kind.
func (h *UploadHandler) Upload(kind models.UploadKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		me, err := caller(r)
		if err != nil {
			fail(w, "Upload", err)
			return
		}

		// Leave room for the multipart envelope around the file itself.
		r.Body = http.MaxBytesReader(w, r.Body, h.MaxBytes+1<<20)
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				apperr.Write(w, apperr.TooLarge(fmt.Sprintf("File exceeds the %d byte limit", h.MaxBytes)))
				return
			}
			apperr.Write(w, apperr.BadRequest("invalid multipart form"))
			return
		}
		defer func() {
			_ = r.MultipartForm.RemoveAll()
		}()

		file, header, err := r.FormFile("file")
		if err != nil {
			apperr.Write(w, apperr.Validation("Validation failed", map[string]string{"file": "file is required"}))
			return
		}
		defer file.Close()

		if header.Size > h.MaxBytes {
			apperr.Write(w, apperr.TooLarge(fmt.Sprintf("File exceeds the %d byte limit", h.MaxBytes)))
			return
		}

		mtype, err := mimetype.DetectReader(file)
		if err != nil {
			fail(w, "Upload: detect type", err)
			return
		}
		if !strings.HasPrefix(mtype.String(), string(kind)+"/") || isRejectedUpload(mtype) {
			apperr.Write(w, apperr.Validation("Validation failed", map[string]string{
				"file": fmt.Sprintf("must be an %s file, got %s", kind, mtype.String()),
			}))
			return
		}
		if _, err := file.Seek(0, io.SeekStart); err != nil {
			fail(w, "Upload: rewind", err)
			return
		}

		id := uuid.New().String()
		name := id + mtype.Extension()
		subdir := string(kind) + "s"
		path := filepath.Join(h.Dir, subdir, name)

		size, err := saveFile(path, file)
		if err != nil {
			fail(w, "Upload: save file", err)
			return
		}

		upload := &models.Upload{
			ID:          id,
			UserID:      me.UserID,
			Kind:        kind,
			Filename:    header.Filename,
			ContentType: mtype.String(),
			SizeBytes:   size,
			URL:         strings.TrimRight(h.BaseURL, "/") + "/" + subdir + "/" + name,
		}
		if err := h.Store.CreateUpload(r.Context(), upload); err != nil {
			_ = os.Remove(path)
			fail(w, "Upload: record", err)
			return
		}

		log.Printf("Upload: user %d stored %s (%s, %d bytes)", me.UserID, name, upload.ContentType, size)
		respond(w, http.StatusCreated, map[string]any{
			"id":          upload.ID,
			"url":         upload.URL,
			"contentType": upload.ContentType,
			"size":        upload.SizeBytes,
		})
	}
}

func isRejectedUpload(mtype *mimetype.MIME) bool {
	for _, t := range rejectedUploadTypes {
		if mtype.Is(t) {
			return true
		}
	}
	return false
}

func saveFile(path string, src io.Reader) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, err
	}
	dst, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return 0, err
	}
	return n, nil
}
