package umkm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/desacikupa/umkmdesa/internal/auth"
	"github.com/desacikupa/umkmdesa/internal/imagestore"
	"github.com/desacikupa/umkmdesa/internal/middleware"
	"github.com/desacikupa/umkmdesa/internal/telemetry/metrics"
	"github.com/desacikupa/umkmdesa/internal/telemetry/tracing"
	"github.com/desacikupa/umkmdesa/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

const (
	msgNameRequired    = "Nama UMKM harus diisi"
	msgUnknownCategory = "Kategori tidak ditemukan"
	msgNotFound        = "UMKM not found"
	msgFetchFailed     = "Failed to fetch UMKM"
	msgCreateFailed    = "Failed to create UMKM"
	msgUpdateFailed    = "Failed to update UMKM"
	msgDeleteFailed    = "Failed to delete UMKM"
)

type umkmRequest struct {
	NamaUMKM       string   `json:"namaUmkm"`
	Deskripsi      string   `json:"deskripsi"`
	AlamatFisik    string   `json:"alamatFisik"`
	URLGoogleMaps  string   `json:"urlGoogleMaps"`
	KontakWhatsapp string   `json:"kontakWhatsapp"`
	KategoriIDs    []string `json:"kategoriIds"`
}

func (req umkmRequest) fields() Fields {
	kategoriIDs := req.KategoriIDs
	if kategoriIDs == nil {
		kategoriIDs = []string{}
	}
	return Fields{
		NamaUMKM:       strings.TrimSpace(req.NamaUMKM),
		Deskripsi:      pkg.NullIfEmpty(req.Deskripsi),
		AlamatFisik:    pkg.NullIfEmpty(req.AlamatFisik),
		URLGoogleMaps:  pkg.NullIfEmpty(req.URLGoogleMaps),
		KontakWhatsapp: pkg.NullIfEmpty(req.KontakWhatsapp),
		KategoriIDs:    kategoriIDs,
	}
}

type umkmRepo interface {
	List(ctx context.Context, filter ListFilter) ([]*Business, error)
	Get(ctx context.Context, id string) (*Business, error)
	Create(ctx context.Context, fields Fields) (*Business, error)
	Update(ctx context.Context, id string, fields Fields) (*Business, error)
	Delete(ctx context.Context, id string) ([]string, error)
	Exists(ctx context.Context, id string) (bool, error)
	AddImage(ctx context.Context, umkmID, url string) (*Image, error)
	GetImage(ctx context.Context, umkmID, imageID string) (*Image, error)
	DeleteImage(ctx context.Context, umkmID, imageID string) error
}

// categoryListInvalidator drops the cached public category list, whose usage
// counts change with UMKM membership.
type categoryListInvalidator interface {
	Invalidate()
}

type Handler struct {
	repo           umkmRepo
	images         imagestore.Store
	categoryList   categoryListInvalidator
	metricsManager *metrics.Manager
	maxUploadBytes int64
}

func NewHandler(
	repo umkmRepo,
	images imagestore.Store,
	categoryList categoryListInvalidator,
	metricsManager *metrics.Manager,
	maxUploadBytes int64,
) *Handler {
	return &Handler{
		repo:           repo,
		images:         images,
		categoryList:   categoryList,
		metricsManager: metricsManager,
		maxUploadBytes: maxUploadBytes,
	}
}

func (handler *Handler) SetupRoutes(router *mux.Router) {
	router.HandleFunc("/api/umkm", handler.handleList).Methods("GET", "OPTIONS").Name("list-umkm")
	router.HandleFunc("/api/umkm/{id}", handler.handleGet).Methods("GET", "OPTIONS").Name("get-umkm")
	router.Handle("/api/umkm", middleware.Protect(auth.AnyAdmin, handler.handleCreate)).Methods("POST", "OPTIONS").Name("new-umkm")
	router.Handle("/api/umkm/{id}", middleware.Protect(auth.AnyAdmin, handler.handleUpdate)).Methods("PUT", "OPTIONS").Name("update-umkm")
	router.Handle("/api/umkm/{id}", middleware.Protect(auth.AnyAdmin, handler.handleDelete)).Methods("DELETE", "OPTIONS").Name("delete-umkm")
	router.Handle("/api/umkm/{id}/gambar", middleware.Protect(auth.AnyAdmin, handler.handleUploadImage)).Methods("POST", "OPTIONS").Name("upload-umkm-image")
	router.Handle("/api/umkm/{id}/gambar", middleware.Protect(auth.AnyAdmin, handler.handleDeleteImage)).Methods("DELETE", "OPTIONS").Name("delete-umkm-image")
}

func (handler *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.umkm.list")
	defer span.End()

	filter := ListFilter{
		KategoriID: r.URL.Query().Get("kategori"),
		Search:     strings.TrimSpace(r.URL.Query().Get("search")),
	}

	businesses, err := handler.repo.List(ctx, filter)
	if err != nil {
		log.Errorf("list umkm: %s", err)
		pkg.WriteJSONError(w, msgFetchFailed, http.StatusInternalServerError)
		return
	}

	pkg.WriteJSONOK(w, businesses)
}

func (handler *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.umkm.get")
	defer span.End()

	id := mux.Vars(r)["id"]
	span.SetAttributes(attribute.String("umkm.id", id))

	business, err := handler.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrUMKMNotFound) {
			pkg.WriteJSONError(w, msgNotFound, http.StatusNotFound)
			return
		}
		log.Errorf("get umkm %s: %s", id, err)
		pkg.WriteJSONError(w, msgFetchFailed, http.StatusInternalServerError)
		return
	}

	pkg.WriteJSONOK(w, business)
}

func (handler *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.umkm.create")
	defer span.End()

	fields, ok := readFields(w, r)
	if !ok {
		return
	}

	business, err := handler.repo.Create(ctx, fields)
	if err != nil {
		if errors.Is(err, ErrUnknownCategory) {
			pkg.WriteJSONError(w, msgUnknownCategory, http.StatusBadRequest)
			return
		}
		log.Errorf("create umkm: %s", err)
		pkg.WriteJSONError(w, msgCreateFailed, http.StatusInternalServerError)
		return
	}

	handler.categoryList.Invalidate()
	log.Tracef("new umkm %s: [%s] added", business.ID, business.NamaUMKM)

	pkg.WriteJSON(w, business, http.StatusCreated)
}

func (handler *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.umkm.update")
	defer span.End()

	id := mux.Vars(r)["id"]
	span.SetAttributes(attribute.String("umkm.id", id))

	fields, ok := readFields(w, r)
	if !ok {
		return
	}

	business, err := handler.repo.Update(ctx, id, fields)
	if err != nil {
		switch {
		case errors.Is(err, ErrUMKMNotFound):
			pkg.WriteJSONError(w, msgNotFound, http.StatusNotFound)
		case errors.Is(err, ErrUnknownCategory):
			pkg.WriteJSONError(w, msgUnknownCategory, http.StatusBadRequest)
		default:
			log.Errorf("update umkm %s: %s", id, err)
			pkg.WriteJSONError(w, msgUpdateFailed, http.StatusInternalServerError)
		}
		return
	}

	handler.categoryList.Invalidate()
	pkg.WriteJSONOK(w, business)
}

func (handler *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.umkm.delete")
	defer span.End()

	id := mux.Vars(r)["id"]
	span.SetAttributes(attribute.String("umkm.id", id))

	imageURLs, err := handler.repo.Delete(ctx, id)
	if err != nil {
		if errors.Is(err, ErrUMKMNotFound) {
			pkg.WriteJSONError(w, msgNotFound, http.StatusNotFound)
			return
		}
		log.Errorf("delete umkm %s: %s", id, err)
		pkg.WriteJSONError(w, msgDeleteFailed, http.StatusInternalServerError)
		return
	}

	// the rows are gone already, a leftover object is only wasted space
	for _, url := range imageURLs {
		if err := handler.images.Delete(ctx, url); err != nil {
			log.Warnf("delete umkm %s, remove stored image [%s]: %s", id, url, err)
		}
	}

	handler.categoryList.Invalidate()
	log.Tracef("umkm %s deleted, %d images removed", id, len(imageURLs))
	pkg.WriteSuccess(w)
}

func readFields(w http.ResponseWriter, r *http.Request) (Fields, bool) {
	var req umkmRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		log.Tracef("umkm request, unmarshal json params: %s", err)
		pkg.WriteJSONError(w, msgNameRequired, http.StatusBadRequest)
		return Fields{}, false
	}

	fields := req.fields()
	if fields.NamaUMKM == "" {
		pkg.WriteJSONError(w, msgNameRequired, http.StatusBadRequest)
		return Fields{}, false
	}
	return fields, true
}
