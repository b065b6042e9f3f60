package category

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/desacikupa/umkmdesa/internal/auth"
	"github.com/desacikupa/umkmdesa/internal/middleware"
	"github.com/desacikupa/umkmdesa/internal/telemetry/tracing"
	"github.com/desacikupa/umkmdesa/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

const (
	msgNameRequired   = "Nama kategori harus diisi"
	msgCategoryExists = "Kategori sudah ada"
	msgNotFound       = "Kategori tidak ditemukan"
	msgFetchFailed    = "Failed to fetch kategori"
	msgCreateFailed   = "Failed to create kategori"
	msgUpdateFailed   = "Failed to update kategori"
	msgDeleteFailed   = "Failed to delete kategori"
)

type categoryRequest struct {
	Nama string `json:"nama"`
}

type categoryRepo interface {
	List(ctx context.Context) ([]*WithCount, error)
	Create(ctx context.Context, nama string) (*Category, error)
	Update(ctx context.Context, id, nama string) (*Category, error)
	Delete(ctx context.Context, id string) error
	NameTaken(ctx context.Context, nama, excludeID string) (bool, error)
}

type Handler struct {
	repo      categoryRepo
	listCache *ListCache
}

func NewHandler(repo categoryRepo, listCache *ListCache) *Handler {
	return &Handler{
		repo:      repo,
		listCache: listCache,
	}
}

func (handler *Handler) SetupRoutes(router *mux.Router) {
	router.HandleFunc("/api/kategori", handler.handleList).Methods("GET", "OPTIONS").Name("list-categories")
	router.Handle("/api/kategori", middleware.Protect(auth.AnyAdmin, handler.handleCreate)).Methods("POST", "OPTIONS").Name("new-category")
	router.Handle("/api/kategori/{id}", middleware.Protect(auth.AnyAdmin, handler.handleUpdate)).Methods("PUT", "OPTIONS").Name("update-category")
	router.Handle("/api/kategori/{id}", middleware.Protect(auth.AnyAdmin, handler.handleDelete)).Methods("DELETE", "OPTIONS").Name("delete-category")
}

func (handler *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.kategori.list")
	defer span.End()

	if cached, ok := handler.listCache.Get(); ok {
		pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, cached)
		return
	}

	categories, err := handler.repo.List(ctx)
	if err != nil {
		log.Errorf("list categories: %s", err)
		pkg.WriteJSONError(w, msgFetchFailed, http.StatusInternalServerError)
		return
	}

	respJson, err := json.Marshal(categories)
	if err != nil {
		log.Errorf("marshal categories: %s", err)
		pkg.WriteJSONError(w, msgFetchFailed, http.StatusInternalServerError)
		return
	}

	handler.listCache.Set(respJson)
	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, respJson)
}

func (handler *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.kategori.create")
	defer span.End()

	nama, ok := readName(w, r)
	if !ok {
		return
	}

	taken, err := handler.repo.NameTaken(ctx, nama, "")
	if err != nil {
		log.Errorf("create category, check name: %s", err)
		pkg.WriteJSONError(w, msgCreateFailed, http.StatusInternalServerError)
		return
	}
	if taken {
		pkg.WriteJSONError(w, msgCategoryExists, http.StatusBadRequest)
		return
	}

	category, err := handler.repo.Create(ctx, nama)
	if err != nil {
		if errors.Is(err, ErrCategoryExists) {
			pkg.WriteJSONError(w, msgCategoryExists, http.StatusBadRequest)
			return
		}
		log.Errorf("create category: %s", err)
		pkg.WriteJSONError(w, msgCreateFailed, http.StatusInternalServerError)
		return
	}

	handler.listCache.Invalidate()
	log.Tracef("new category %s: [%s] added", category.ID, category.Nama)

	pkg.WriteJSON(w, category, http.StatusCreated)
}

func (handler *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.kategori.update")
	defer span.End()

	id := mux.Vars(r)["id"]

	nama, ok := readName(w, r)
	if !ok {
		return
	}

	taken, err := handler.repo.NameTaken(ctx, nama, id)
	if err != nil {
		log.Errorf("update category, check name: %s", err)
		pkg.WriteJSONError(w, msgUpdateFailed, http.StatusInternalServerError)
		return
	}
	if taken {
		pkg.WriteJSONError(w, msgCategoryExists, http.StatusBadRequest)
		return
	}

	category, err := handler.repo.Update(ctx, id, nama)
	if err != nil {
		switch {
		case errors.Is(err, ErrCategoryNotFound):
			pkg.WriteJSONError(w, msgNotFound, http.StatusNotFound)
		case errors.Is(err, ErrCategoryExists):
			pkg.WriteJSONError(w, msgCategoryExists, http.StatusBadRequest)
		default:
			log.Errorf("update category %s: %s", id, err)
			pkg.WriteJSONError(w, msgUpdateFailed, http.StatusInternalServerError)
		}
		return
	}

	handler.listCache.Invalidate()
	pkg.WriteJSONOK(w, category)
}

func (handler *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.kategori.delete")
	defer span.End()

	id := mux.Vars(r)["id"]
	if err := handler.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrCategoryNotFound) {
			pkg.WriteJSONError(w, msgNotFound, http.StatusNotFound)
			return
		}
		log.Errorf("delete category %s: %s", id, err)
		pkg.WriteJSONError(w, msgDeleteFailed, http.StatusInternalServerError)
		return
	}

	handler.listCache.Invalidate()
	log.Tracef("category %s deleted", id)
	pkg.WriteSuccess(w)
}

func readName(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req categoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Tracef("category request, unmarshal json params: %s", err)
		pkg.WriteJSONError(w, msgNameRequired, http.StatusBadRequest)
		return "", false
	}
	nama := strings.TrimSpace(req.Nama)
	if nama == "" {
		pkg.WriteJSONError(w, msgNameRequired, http.StatusBadRequest)
		return "", false
	}
	return nama, true
}
