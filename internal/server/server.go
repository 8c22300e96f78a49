package server

import (
	"context"
	"net/http"
	"time"

	chargedomain "github.com/comfortstays/pgbilling/internal/charge/domain"
	"github.com/comfortstays/pgbilling/internal/config"
	obsmiddleware "github.com/comfortstays/pgbilling/internal/observability/logger"
	obsmetrics "github.com/comfortstays/pgbilling/internal/observability/metrics"
	obstracing "github.com/comfortstays/pgbilling/internal/observability/tracing"
	occupancydomain "github.com/comfortstays/pgbilling/internal/occupancy/domain"
	"github.com/comfortstays/pgbilling/internal/providers/pdf"
	readingdomain "github.com/comfortstays/pgbilling/internal/reading/domain"
	roomdomain "github.com/comfortstays/pgbilling/internal/room/domain"
	transactiondomain "github.com/comfortstays/pgbilling/internal/transaction/domain"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(cfg config.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine         *gin.Engine
	cfg            config.Config
	roomSvc        roomdomain.Service
	occupancySvc   occupancydomain.Service
	readingSvc     readingdomain.Service
	chargeSvc      chargedomain.Service
	transactionSvc transactiondomain.Service
	pdf            pdf.Provider
}

type ServerParams struct {
	fx.In

	Gin            *gin.Engine
	Cfg            config.Config
	RoomSvc        roomdomain.Service
	OccupancySvc   occupancydomain.Service
	ReadingSvc     readingdomain.Service
	ChargeSvc      chargedomain.Service
	TransactionSvc transactiondomain.Service
	PDF            pdf.Provider
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:         p.Gin,
		cfg:            p.Cfg,
		roomSvc:        p.RoomSvc,
		occupancySvc:   p.OccupancySvc,
		readingSvc:     p.ReadingSvc,
		chargeSvc:      p.ChargeSvc,
		transactionSvc: p.TransactionSvc,
		pdf:            p.PDF,
	}

	svc.registerAPIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Rooms & beds --------
	api.GET("/rooms", s.ListRooms)
	api.GET("/rooms/:id/beds", s.ListBeds)
	api.GET("/rooms/:id/history", s.ListBedHistory)
	api.GET("/rooms/:id/spans", s.ListRoomSpans)
	api.GET("/beds/:id", s.GetBed)
	api.PUT("/beds/:id/occupant", s.AssignOccupant)
	api.POST("/beds/:id/vacate", s.VacateBed)

	// -------- Readings --------
	api.POST("/readings", s.CreateReading)
	api.GET("/readings", s.ListReadings)
	api.GET("/readings/:id", s.GetReading)
	api.PUT("/readings/:id", s.UpdateReading)
	api.POST("/readings/:id/recompute", s.RecomputeReading)

	// -------- Charges --------
	api.GET("/charges", s.ListCharges)
	api.GET("/charges/:id/receipt", s.GetChargeReceipt)
	api.POST("/charges/:id/collect", s.CollectCharge)
	api.GET("/billing/summary", s.GetBillingSummary)

	// -------- Transactions --------
	api.POST("/transactions", s.CreateTransaction)
	api.GET("/transactions", s.ListTransactions)
	api.GET("/transactions/summary", s.GetTransactionSummary)
	api.GET("/transactions/:id", s.GetTransaction)
	api.PUT("/transactions/:id/status", s.SetTransactionStatus)
	api.DELETE("/transactions/:id", s.DeleteTransaction)

	api.POST("/proration/preview", s.PreviewProration)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
