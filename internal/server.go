package internal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/IBM/pgxpoolprometheus"
	"github.com/getsentry/sentry-go"
	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redis_rate/v9"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"

	"github.com/desacikupa/umkmdesa/internal/admins"
	"github.com/desacikupa/umkmdesa/internal/auth"
	"github.com/desacikupa/umkmdesa/internal/cache"
	"github.com/desacikupa/umkmdesa/internal/category"
	"github.com/desacikupa/umkmdesa/internal/config"
	"github.com/desacikupa/umkmdesa/internal/db"
	"github.com/desacikupa/umkmdesa/internal/imagestore"
	"github.com/desacikupa/umkmdesa/internal/middleware"
	"github.com/desacikupa/umkmdesa/internal/misc"
	"github.com/desacikupa/umkmdesa/internal/telemetry/metrics"
	"github.com/desacikupa/umkmdesa/internal/telemetry/tracing"
	"github.com/desacikupa/umkmdesa/internal/umkm"
	"github.com/desacikupa/umkmdesa/pkg"
)

const (
	loginRateLimitRouterName = "login"
	categoryCacheSizeMB      = 16
)

type userStore interface {
	auth.CredentialStore
	ListByRole(ctx context.Context, role auth.Role) ([]*auth.User, error)
	CountByRole(ctx context.Context, role auth.Role) (int, error)
	EmailTaken(ctx context.Context, email, excludeID string) (bool, error)
}

type categoryStore interface {
	List(ctx context.Context) ([]*category.WithCount, error)
	Create(ctx context.Context, nama string) (*category.Category, error)
	Update(ctx context.Context, id, nama string) (*category.Category, error)
	Delete(ctx context.Context, id string) error
	NameTaken(ctx context.Context, nama, excludeID string) (bool, error)
	Count(ctx context.Context) (int, error)
}

type umkmStore interface {
	List(ctx context.Context, filter umkm.ListFilter) ([]*umkm.Business, error)
	Get(ctx context.Context, id string) (*umkm.Business, error)
	Create(ctx context.Context, fields umkm.Fields) (*umkm.Business, error)
	Update(ctx context.Context, id string, fields umkm.Fields) (*umkm.Business, error)
	Delete(ctx context.Context, id string) ([]string, error)
	Exists(ctx context.Context, id string) (bool, error)
	Count(ctx context.Context) (int, error)
	AddImage(ctx context.Context, umkmID, url string) (*umkm.Image, error)
	GetImage(ctx context.Context, umkmID, imageID string) (*umkm.Image, error)
	DeleteImage(ctx context.Context, umkmID, imageID string) error
}

type Server struct {
	httpServer        *http.Server
	metricsHttpServer *http.Server
	versionInfo       string

	config      *config.Config
	dbPool      *pgxpool.Pool
	redisClient *redis.Client
	rateLimiter middleware.RequestRateLimiter
	clientIPs   *pkg.ClientIPResolver

	users        userStore
	categories   categoryStore
	businesses   umkmStore
	images       imagestore.Store
	diskImages   *imagestore.DiskStore // set only when images are kept on local disk
	tokenIssuer  *auth.TokenIssuer
	categoryList *category.ListCache

	// metrics
	metricsManager *metrics.Manager
	promRegistry   *prometheus.Registry
	otelShutdown   func()
}

type NewServerParams struct {
	Config                  *config.Config
	VersionInfo             string
	JWTSecret               string
	PostgresPassword        string
	RedisPassword           string
	S3AccessKey             string
	S3SecretKey             string
	HoneycombTracingEnabled bool
}

func NewServer(
	ctx context.Context,
	params NewServerParams,
) (*Server, error) {
	tokenIssuer, err := auth.NewTokenIssuer(params.JWTSecret, auth.DefaultTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("new token issuer: %w", err)
	}

	dbPool, err := db.NewDBPool(ctx, db.NewDBPoolParams{
		DBHost:         params.Config.PostgresHost,
		DBPort:         params.Config.PostgresPort,
		DBName:         params.Config.PostgresDBName,
		DBUser:         params.Config.PostgresUser,
		DBPassword:     params.PostgresPassword,
		TracingEnabled: params.HoneycombTracingEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("new db pool: %w", err)
	}

	if err := dbPool.Ping(ctx); err != nil {
		log.Warnf("failed to ping db: %s", err)
	}

	if err := db.Migrate(ctx, dbPool); err != nil {
		dbPool.Close()
		return nil, fmt.Errorf("migrate db: %w", err)
	}

	pgxpoolCollector := pgxpoolprometheus.NewCollector(
		dbPool,
		map[string]string{"db_name": params.Config.PostgresDBName},
	)
	promRegistry := metrics.SetupPrometheus(pgxpoolCollector)
	metricsManager := metrics.NewManager("backend", "main", promRegistry)
	metricsManager.GaugeLifeSignal.Set(0)

	rdb := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(params.Config.RedisHost, params.Config.RedisPort),
		Password: params.RedisPassword,
		DB:       0, // use default DB
	})

	rdbStatus := rdb.Ping(ctx)
	if err := rdbStatus.Err(); err != nil {
		log.Errorf("--> failed to ping redis: %s", err)
	} else {
		log.Debugf("redis ping: %s", rdbStatus.Val())
	}

	clientIPs, err := pkg.NewClientIPResolver(params.Config.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("new client ip resolver: %w", err)
	}

	// use honeycomb distro to setup OpenTelemetry SDK
	otelShutdown, err := tracing.HoneycombSetup(params.HoneycombTracingEnabled, "umkm-desa-backend", rdb)
	if err != nil {
		return nil, err
	}

	s := &Server{
		config:      params.Config,
		versionInfo: params.VersionInfo,
		dbPool:      dbPool,
		redisClient: rdb,
		rateLimiter: redis_rate.NewLimiter(rdb),
		clientIPs:   clientIPs,

		users:       auth.NewRepo(dbPool),
		categories:  category.NewRepo(dbPool),
		businesses:  umkm.NewRepo(dbPool),
		tokenIssuer: tokenIssuer,
		categoryList: category.NewListCache(
			cache.NewFreeCache(categoryCacheSizeMB),
			time.Duration(params.Config.CategoryCacheSeconds)*time.Second,
		),

		// telemetry
		metricsManager: metricsManager,
		promRegistry:   promRegistry,
		otelShutdown:   otelShutdown,
	}

	if err := s.setupImageStore(ctx, params); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Server) setupImageStore(ctx context.Context, params NewServerParams) error {
	switch s.config.ImageStore {
	case config.ImageStoreS3:
		s3Store, err := imagestore.NewS3Store(ctx, imagestore.S3Params{
			Endpoint:      s.config.S3Endpoint,
			Region:        s.config.S3Region,
			Bucket:        s.config.S3Bucket,
			AccessKey:     params.S3AccessKey,
			SecretKey:     params.S3SecretKey,
			PublicBaseURL: s.config.S3PublicBaseURL,
		})
		if err != nil {
			return fmt.Errorf("new s3 image store: %w", err)
		}
		s.images = s3Store
		log.Debugf("image store: s3 bucket [%s]", s.config.S3Bucket)
	default:
		diskStore, err := imagestore.NewDiskStore(s.config.ImagesRootPath, s.config.ImagesBaseURL)
		if err != nil {
			return fmt.Errorf("new disk image store: %w", err)
		}
		s.images = diskStore
		s.diskImages = diskStore
		log.Debugf("image store: disk [%s]", s.config.ImagesRootPath)
	}
	return nil
}

func (s *Server) routerSetup() (*mux.Router, error) {
	r := mux.NewRouter()
	r.Use(otelmux.Middleware("main-router"))

	miscHandler := misc.NewHandler(s.versionInfo)
	miscHandler.SetupRoutes(r)

	authHandler := auth.NewHandler(
		s.users,
		s.tokenIssuer,
		s.metricsManager,
		s.config.IsProduction(),
	)
	authHandler.SetupRoutes(r, middleware.RateLimit(
		s.rateLimiter,
		s.clientIPs,
		loginRateLimitRouterName,
		s.config.LoginRateLimitAllowedPerMin,
		s.metricsManager,
	))

	categoryHandler := category.NewHandler(s.categories, s.categoryList)
	categoryHandler.SetupRoutes(r)

	umkmHandler := umkm.NewHandler(
		s.businesses,
		s.images,
		s.categoryList,
		s.metricsManager,
		int64(s.config.MaxUploadSizeMB)<<20,
	)
	umkmHandler.SetupRoutes(r)

	adminsHandler := admins.NewHandler(
		s.users,
		admins.NewStatsService(s.businesses, s.categories, s.users),
	)
	adminsHandler.SetupRoutes(r)

	if s.diskImages != nil {
		r.PathPrefix(imagestore.DiskFilesPathPrefix).Handler(s.diskImages.Handler()).Methods("GET").Name("files")
	}

	// all the rest - unhandled paths
	r.HandleFunc("/{unknown}", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}).Methods("GET", "POST", "PUT", "DELETE", "OPTIONS").Name("unknown")

	sessionResolver := auth.NewSessionResolver(s.users, s.tokenIssuer)

	r.Use(middleware.PanicRecovery(s.metricsManager))
	r.Use(middleware.LogRequest(s.clientIPs))
	r.Use(middleware.RequestMetrics(s.metricsManager))
	r.Use(middleware.Cors(s.config.AllowedOrigins))
	r.Use(middleware.Session(sessionResolver))
	r.Use(middleware.DrainAndCloseRequest())
	// uploads are limited again, more tightly, by the image handler
	r.Use(middleware.LimitRequestBody(int64(s.config.MaxUploadSizeMB+1) << 20))

	return r, nil
}

func (s *Server) Serve(host string, port int) {
	router, err := s.routerSetup()
	if err != nil {
		log.Fatalf("failed to setup router: %s", err)
	}

	ipAndPort := net.JoinHostPort(host, strconv.Itoa(port))
	s.httpServer = &http.Server{
		Handler:      router,
		Addr:         ipAndPort,
		WriteTimeout: time.Minute,
		ReadTimeout:  time.Minute,
		ConnState:    s.connStateMetrics,
	}

	metricsRouter := mux.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.InstrumentMetricHandler(
		s.promRegistry,
		promhttp.HandlerFor(s.promRegistry, promhttp.HandlerOpts{}),
	))
	metricsAddr := net.JoinHostPort(s.config.PrometheusMetricsHost, s.config.PrometheusMetricsPort)
	s.metricsHttpServer = &http.Server{
		Addr:              metricsAddr,
		Handler:           metricsRouter,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof(" > server listening on: [%s]", ipAndPort)
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("main service, listen and serve: %s", err)
		}
	}()

	go func() {
		log.Debugf(" > metrics listening on: [%s]", metricsAddr)
		err := s.metricsHttpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("metrics service, listen and serve: %s", err)
		}
	}()

	s.metricsManager.GaugeLifeSignal.Set(1)
}

func (s *Server) GracefulShutdown() {
	log.Debug("graceful shutdown initiated ...")

	s.metricsManager.GaugeLifeSignal.Set(0)

	maxWaitDuration := time.Second * 15
	ctx, timeoutCancel := context.WithTimeout(context.Background(), maxWaitDuration)
	defer timeoutCancel()

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			log.Error(" >>> failed to gracefully shutdown http server")
		}
		log.Warnln("server shut down")
	}

	if s.metricsHttpServer != nil {
		if err := s.metricsHttpServer.Shutdown(ctx); err != nil {
			log.Error(" >>> failed to gracefully shutdown metrics http server")
		}
		log.Warnln("metrics server shut down")
	}

	if s.otelShutdown != nil {
		s.otelShutdown()
		log.Trace("otel shut down ...")
	}

	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			log.Errorf("failed to close redis client conn: %s", err)
		}
	}

	if s.dbPool != nil {
		log.Debugln("closing db pool ...")
		s.dbPool.Close() // blocking operation
		log.Debugln("db pool closed")
	}

	if ok := sentry.Flush(5 * time.Second); ok {
		log.Debugf("sentry flush ok: %t", ok)
	}
}

func (s *Server) connStateMetrics(_ net.Conn, state http.ConnState) {
	switch state {
	case http.StateNew:
		s.metricsManager.GaugeRequests.Add(1)
	case http.StateClosed:
		s.metricsManager.GaugeRequests.Add(-1)
	default:
		// do nothing
	}
}
