package router

import (
	"time"

	"clubpos/internal/config"
	"clubpos/internal/handler"
	"clubpos/internal/infra"
	"clubpos/internal/middleware"
	"clubpos/internal/repository"
	"clubpos/internal/service"
	"clubpos/internal/worker"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Deps are the long-lived collaborators built by the composition root.
type Deps struct {
	DB          *gorm.DB
	Redis       *redis.Client
	Mesas       *infra.MesasClient
	Dispatcher  *worker.Dispatcher
	RateLimiter *middleware.RateLimiter
}

// Services are the domain services shared by the HTTP layer and the workers.
type Services struct {
	Pagos service.PagoService
	Caja  service.CajaService
}

// NewServices builds the repositories and services over deps.
// Dependency graph: Service ← Repository ← DB/Redis
func NewServices(cfg *config.Config, deps Deps) Services {
	pagoRepo := repository.NewPagoRepository(deps.DB)
	ledgerRepo := repository.NewLedgerRepository(deps.DB)
	logRepo := repository.NewLogPagoRepository(deps.DB)
	cajaRepo := repository.NewCajaRepository(deps.DB)
	usuarioRepo := repository.NewUsuarioRepository(deps.DB)

	minimo, porcentaje := cfg.UmbralDesvio()
	autorizador := service.NewAutorizador(usuarioRepo)
	notificador := worker.NewNotificador(deps.Mesas, deps.Dispatcher, cfg.MesasTimeout())
	alertador := worker.NewAlertador(deps.Dispatcher, cfg.Destinatarios())

	return Services{
		Pagos: service.NewPagoService(pagoRepo, ledgerRepo, logRepo, cajaRepo, deps.Mesas, notificador, service.PagoConfig{
			MesasTimeout:  cfg.MesasTimeout(),
			MonedaDefault: cfg.MonedaDefault,
		}),
		Caja: service.NewCajaService(cajaRepo, autorizador, deps.Mesas, alertador, service.CajaConfig{
			DesvioMinimo:     minimo,
			DesvioPorcentaje: porcentaje,
			MesasTimeout:     cfg.MesasTimeout(),
		}),
	}
}

// New returns a configured Gin engine serving svcs.
// Dependency graph: Handler ← Service
func New(cfg *config.Config, deps Deps, svcs Services) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	allowOrigin := "*"
	if cfg.Env == "production" {
		allowOrigin = ""
	}

	// Global middleware chain (order matters)
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.CORS(allowOrigin))
	r.Use(middleware.ErrorHandler())

	limiter := deps.RateLimiter
	if limiter == nil {
		limiter = middleware.NewRateLimiter(600, time.Minute)
	}

	// ── Handlers ─────────────────────────────────────────────────────────────
	pagosH := handler.NewPagosHandler(svcs.Pagos)
	cajaH := handler.NewCajaHandler(svcs.Caja)

	// ── Routes ───────────────────────────────────────────────────────────────

	// Public
	r.GET("/health", handler.Health(deps.DB, deps.Redis, deps.Mesas.Breaker()))

	// Protected routes; the limiter runs after JWT so it keys on the user.
	v1 := r.Group("/v1", middleware.JWTAuth(cfg.JWTSecret), limiter.Handler())
	{
		staff := middleware.RequireRole("cajero", "mozo", "supervisor", "administrador")
		gerencia := middleware.RequireRole("supervisor", "administrador")

		v1.POST("/pagos", staff, pagosH.Registrar)
		v1.GET("/pagos", gerencia, pagosH.ListarTodos)

		cuentas := v1.Group("/cuentas/:ref", staff)
		{
			cuentas.GET("/ledger", pagosH.Ledger)
			cuentas.GET("/pagos", pagosH.PagosCuenta)
			cuentas.GET("/logs", pagosH.Logs)
			cuentas.POST("/descuento", pagosH.Descuento)
			cuentas.POST("/reembolso", gerencia, pagosH.Reembolso)
			cuentas.POST("/cerrar", pagosH.Cerrar)
		}

		// Drawer permissions are checked per user by the service.
		caja := v1.Group("/caja", middleware.RequireRole("cajero", "supervisor", "administrador"))
		{
			caja.POST("/abrir", cajaH.Abrir)
			caja.POST("/cerrar", cajaH.Cerrar)
			caja.POST("/movimiento", cajaH.RegistrarMovimiento)
			caja.GET("/activa", cajaH.GetActiva)
			caja.GET("/historial", cajaH.Historial)
			caja.GET("/:id", cajaH.ObtenerSesion)
			caja.GET("/:id/reporte", cajaH.ObtenerReporte)
		}
	}

	// Swagger UI, outside production only
	if cfg.Env != "production" {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	return r
}
