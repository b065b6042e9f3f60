package admins

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/desacikupa/umkmdesa/internal/auth"
	"github.com/desacikupa/umkmdesa/internal/middleware"
	"github.com/desacikupa/umkmdesa/internal/telemetry/tracing"
	"github.com/desacikupa/umkmdesa/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
)

const (
	msgAllFieldsRequired = "Semua field harus diisi"
	msgEmailRegistered   = "Email sudah terdaftar"
	msgEmailNameRequired = "Email dan nama harus diisi"
	msgEmailInUse        = "Email sudah digunakan"
	msgAdminNotFound     = "Admin tidak ditemukan"
	msgFetchFailed       = "Failed to fetch admins"
	msgCreateFailed      = "Failed to create admin"
	msgUpdateFailed      = "Failed to update admin"
	msgDeleteFailed      = "Failed to delete admin"
	msgStatsFailed       = "Failed to fetch stats"
)

type adminRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Nama     string `json:"nama"`
}

// Admin is the public view of an admin account.
type Admin struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Nama      string    `json:"nama"`
	CreatedAt time.Time `json:"createdAt"`
}

func newAdmin(u *auth.User) *Admin {
	return &Admin{
		ID:        u.ID,
		Email:     u.Email,
		Nama:      u.Nama,
		CreatedAt: u.CreatedAt,
	}
}

type adminRepo interface {
	FindByID(ctx context.Context, id string) (*auth.User, error)
	Create(ctx context.Context, user *auth.User) error
	Update(ctx context.Context, user *auth.User) error
	Delete(ctx context.Context, id string) error
	ListByRole(ctx context.Context, role auth.Role) ([]*auth.User, error)
	EmailTaken(ctx context.Context, email, excludeID string) (bool, error)
}

type Handler struct {
	repo         adminRepo
	hashPassword func(password string) (string, error)
	stats        *StatsService
}

func NewHandler(repo adminRepo, stats *StatsService) *Handler {
	return &Handler{
		repo:         repo,
		hashPassword: auth.HashPassword,
		stats:        stats,
	}
}

func (handler *Handler) SetupRoutes(router *mux.Router) {
	router.Handle("/api/admin/stats", middleware.Protect(auth.AnyAdmin, handler.handleStats)).Methods("GET", "OPTIONS").Name("admin-stats")
	router.Handle("/api/admin", middleware.Protect(auth.SuperAdminOnly, handler.handleList)).Methods("GET", "OPTIONS").Name("list-admins")
	router.Handle("/api/admin", middleware.Protect(auth.SuperAdminOnly, handler.handleCreate)).Methods("POST", "OPTIONS").Name("new-admin")
	router.Handle("/api/admin/{id}", middleware.Protect(auth.SuperAdminOnly, handler.handleUpdate)).Methods("PUT", "OPTIONS").Name("update-admin")
	router.Handle("/api/admin/{id}", middleware.Protect(auth.SuperAdminOnly, handler.handleDelete)).Methods("DELETE", "OPTIONS").Name("delete-admin")
}

func (handler *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.admins.list")
	defer span.End()

	users, err := handler.repo.ListByRole(ctx, auth.RoleAdmin)
	if err != nil {
		log.Errorf("list admins: %s", err)
		pkg.WriteJSONError(w, msgFetchFailed, http.StatusInternalServerError)
		return
	}

	admins := make([]*Admin, 0, len(users))
	for _, u := range users {
		admins = append(admins, newAdmin(u))
	}

	pkg.WriteJSONOK(w, admins)
}

func (handler *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.admins.create")
	defer span.End()

	var req adminRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Tracef("create admin, unmarshal json params: %s", err)
		pkg.WriteJSONError(w, msgAllFieldsRequired, http.StatusBadRequest)
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	req.Nama = strings.TrimSpace(req.Nama)
	if req.Email == "" || req.Password == "" || req.Nama == "" {
		pkg.WriteJSONError(w, msgAllFieldsRequired, http.StatusBadRequest)
		return
	}

	taken, err := handler.repo.EmailTaken(ctx, req.Email, "")
	if err != nil {
		log.Errorf("create admin, check email: %s", err)
		pkg.WriteJSONError(w, msgCreateFailed, http.StatusInternalServerError)
		return
	}
	if taken {
		pkg.WriteJSONError(w, msgEmailRegistered, http.StatusBadRequest)
		return
	}

	hash, err := handler.hashPassword(req.Password)
	if err != nil {
		log.Errorf("create admin, hash password: %s", err)
		pkg.WriteJSONError(w, msgCreateFailed, http.StatusInternalServerError)
		return
	}

	user := &auth.User{
		Email:        req.Email,
		PasswordHash: hash,
		Nama:         req.Nama,
		Role:         auth.RoleAdmin,
	}
	if err := handler.repo.Create(ctx, user); err != nil {
		if errors.Is(err, auth.ErrEmailTaken) {
			pkg.WriteJSONError(w, msgEmailRegistered, http.StatusBadRequest)
			return
		}
		log.Errorf("create admin: %s", err)
		pkg.WriteJSONError(w, msgCreateFailed, http.StatusInternalServerError)
		return
	}

	log.Debugf("new admin %s: [%s] added", user.ID, user.Email)
	pkg.WriteJSON(w, newAdmin(user), http.StatusCreated)
}

func (handler *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.admins.update")
	defer span.End()

	id := mux.Vars(r)["id"]
	span.SetAttributes(attribute.String("user.id", id))

	var req adminRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Tracef("update admin, unmarshal json params: %s", err)
		pkg.WriteJSONError(w, msgEmailNameRequired, http.StatusBadRequest)
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	req.Nama = strings.TrimSpace(req.Nama)
	if req.Email == "" || req.Nama == "" {
		pkg.WriteJSONError(w, msgEmailNameRequired, http.StatusBadRequest)
		return
	}

	taken, err := handler.repo.EmailTaken(ctx, req.Email, id)
	if err != nil {
		log.Errorf("update admin, check email: %s", err)
		pkg.WriteJSONError(w, msgUpdateFailed, http.StatusInternalServerError)
		return
	}
	if taken {
		pkg.WriteJSONError(w, msgEmailInUse, http.StatusBadRequest)
		return
	}

	user, err := handler.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			pkg.WriteJSONError(w, msgAdminNotFound, http.StatusNotFound)
			return
		}
		log.Errorf("update admin %s, find: %s", id, err)
		pkg.WriteJSONError(w, msgUpdateFailed, http.StatusInternalServerError)
		return
	}

	user.Email = req.Email
	user.Nama = req.Nama
	// an empty password keeps the current one
	if req.Password != "" {
		hash, err := handler.hashPassword(req.Password)
		if err != nil {
			log.Errorf("update admin %s, hash password: %s", id, err)
			pkg.WriteJSONError(w, msgUpdateFailed, http.StatusInternalServerError)
			return
		}
		user.PasswordHash = hash
	}

	if err := handler.repo.Update(ctx, user); err != nil {
		switch {
		case errors.Is(err, auth.ErrUserNotFound):
			pkg.WriteJSONError(w, msgAdminNotFound, http.StatusNotFound)
		case errors.Is(err, auth.ErrEmailTaken):
			pkg.WriteJSONError(w, msgEmailInUse, http.StatusBadRequest)
		default:
			log.Errorf("update admin %s: %s", id, err)
			pkg.WriteJSONError(w, msgUpdateFailed, http.StatusInternalServerError)
		}
		return
	}

	pkg.WriteJSONOK(w, newAdmin(user))
}

func (handler *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.admins.delete")
	defer span.End()

	id := mux.Vars(r)["id"]
	span.SetAttributes(attribute.String("user.id", id))

	if err := handler.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			pkg.WriteJSONError(w, msgAdminNotFound, http.StatusNotFound)
			return
		}
		log.Errorf("delete admin %s: %s", id, err)
		pkg.WriteJSONError(w, msgDeleteFailed, http.StatusInternalServerError)
		return
	}

	log.Debugf("admin %s deleted", id)
	pkg.WriteSuccess(w)
}

func (handler *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.admins.stats")
	defer span.End()

	stats, err := handler.stats.Get(ctx)
	if err != nil {
		log.Errorf("dashboard stats: %s", err)
		pkg.WriteJSONError(w, msgStatsFailed, http.StatusInternalServerError)
		return
	}

	pkg.WriteJSONOK(w, stats)
}
