package umkm

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/desacikupa/umkmdesa/internal/imagestore"
	"github.com/desacikupa/umkmdesa/internal/telemetry/tracing"
	"github.com/desacikupa/umkmdesa/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

const (
	msgNoFile            = "No file provided"
	msgFileTooLarge      = "File terlalu besar"
	msgNotAnImage        = "File harus berupa gambar (JPEG, PNG, GIF atau WebP)"
	msgImageIDRequired   = "gambarId harus diisi"
	msgImageNotFound     = "Gambar tidak ditemukan"
	msgUploadFailed      = "Failed to upload image"
	msgDeleteImageFailed = "Failed to delete image"

	multipartMemory = 8 << 20
)

type deleteImageRequest struct {
	GambarID string `json:"gambarId"`
	// URL is accepted for compatibility; the stored url of the image is what gets deleted.
	URL string `json:"url"`
}

func (handler *Handler) handleUploadImage(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.umkm.uploadImage")
	defer span.End()

	umkmID := mux.Vars(r)["id"]
	span.SetAttributes(attribute.String("umkm.id", umkmID))

	if handler.maxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, handler.maxUploadBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			pkg.WriteJSONError(w, msgFileTooLarge, http.StatusRequestEntityTooLarge)
			return
		}
		log.Tracef("upload image, parse multipart form: %s", err)
		pkg.WriteJSONError(w, msgNoFile, http.StatusBadRequest)
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			log.Warnf("upload image, remove multipart temp files: %s", err)
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		pkg.WriteJSONError(w, msgNoFile, http.StatusBadRequest)
		return
	}
	defer file.Close()

	head := make([]byte, imagestore.SniffLen)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		log.Errorf("upload image, read file head: %s", err)
		pkg.WriteJSONError(w, msgUploadFailed, http.StatusInternalServerError)
		return
	}
	contentType, ext, err := imagestore.DetectImageType(head[:n])
	if err != nil {
		log.Tracef("upload image, rejected [%s]: %s", header.Filename, err)
		pkg.WriteJSONError(w, msgNotAnImage, http.StatusBadRequest)
		return
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		log.Errorf("upload image, rewind file: %s", err)
		pkg.WriteJSONError(w, msgUploadFailed, http.StatusInternalServerError)
		return
	}

	exists, err := handler.repo.Exists(ctx, umkmID)
	if err != nil {
		log.Errorf("upload image, check umkm %s: %s", umkmID, err)
		pkg.WriteJSONError(w, msgUploadFailed, http.StatusInternalServerError)
		return
	}
	if !exists {
		pkg.WriteJSONError(w, msgNotFound, http.StatusNotFound)
		return
	}

	key := imagestore.ObjectKey(umkmID, header.Filename, ext)
	url, err := handler.images.Put(ctx, key, contentType, header.Size, file)
	if err != nil {
		log.Errorf("upload image, store object [%s]: %s", key, err)
		pkg.WriteJSONError(w, msgUploadFailed, http.StatusInternalServerError)
		return
	}

	image, err := handler.repo.AddImage(ctx, umkmID, url)
	if err != nil {
		if delErr := handler.images.Delete(ctx, url); delErr != nil {
			log.Warnf("upload image, remove orphaned object [%s]: %s", url, delErr)
		}
		if errors.Is(err, ErrUMKMNotFound) {
			pkg.WriteJSONError(w, msgNotFound, http.StatusNotFound)
			return
		}
		log.Errorf("upload image, save image row: %s", err)
		pkg.WriteJSONError(w, msgUploadFailed, http.StatusInternalServerError)
		return
	}

	handler.metricsManager.ImageUploaded()
	log.Tracef("umkm %s: new image %s [%s]", umkmID, image.ID, url)

	pkg.WriteJSON(w, image, http.StatusCreated)
}

func (handler *Handler) handleDeleteImage(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.umkm.deleteImage")
	defer span.End()

	umkmID := mux.Vars(r)["id"]
	span.SetAttributes(attribute.String("umkm.id", umkmID))

	var req deleteImageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.GambarID == "" {
		pkg.WriteJSONError(w, msgImageIDRequired, http.StatusBadRequest)
		return
	}

	image, err := handler.repo.GetImage(ctx, umkmID, req.GambarID)
	if err != nil {
		if errors.Is(err, ErrImageNotFound) {
			pkg.WriteJSONError(w, msgImageNotFound, http.StatusNotFound)
			return
		}
		log.Errorf("delete image %s: %s", req.GambarID, err)
		pkg.WriteJSONError(w, msgDeleteImageFailed, http.StatusInternalServerError)
		return
	}
	if req.URL != "" && req.URL != image.URL {
		log.Debugf("delete image %s: client url [%s] differs from stored [%s]", image.ID, req.URL, image.URL)
	}

	if err := handler.images.Delete(ctx, image.URL); err != nil {
		log.Errorf("delete image %s, remove stored object: %s", image.ID, err)
		pkg.WriteJSONError(w, msgDeleteImageFailed, http.StatusInternalServerError)
		return
	}

	if err := handler.repo.DeleteImage(ctx, umkmID, image.ID); err != nil && !errors.Is(err, ErrImageNotFound) {
		log.Errorf("delete image %s, remove row: %s", image.ID, err)
		pkg.WriteJSONError(w, msgDeleteImageFailed, http.StatusInternalServerError)
		return
	}

	log.Tracef("umkm %s: image %s deleted", umkmID, image.ID)
	pkg.WriteSuccess(w)
}
