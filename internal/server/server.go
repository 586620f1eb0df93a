package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/MariuszDW/BuyBuy-sub001/internal/handler"
	"github.com/MariuszDW/BuyBuy-sub001/internal/middleware"
	"github.com/MariuszDW/BuyBuy-sub001/internal/store"
	ws "github.com/MariuszDW/BuyBuy-sub001/internal/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Options struct {
	TrashRetention time.Duration
	// Origins are the host patterns allowed to open the change feed from a
	// browser on another origin.
	Origins []string
	// WritesPerMinute caps mutating requests per client. Zero disables it.
	WritesPerMinute int
}

type Server struct {
	engine    *store.Engine
	hub       *ws.Hub
	gatherer  prometheus.Gatherer
	shoppingH *handler.ShoppingHandler
	limiter   *middleware.WriteLimiter
	origins   []string
	logger    *slog.Logger
}

func New(engine *store.Engine, shopping *store.ShoppingStore, hub *ws.Hub, gatherer prometheus.Gatherer, opts Options, logger *slog.Logger) *Server {
	s := &Server{
		engine:    engine,
		hub:       hub,
		gatherer:  gatherer,
		shoppingH: handler.NewShoppingHandler(shopping, opts.TrashRetention, logger.With("component", "shopping")),
		origins:   opts.Origins,
		logger:    logger,
	}
	if opts.WritesPerMinute > 0 {
		s.limiter = middleware.NewWriteLimiter(opts.WritesPerMinute, time.Minute)
	}
	return s
}

// Limiter returns the write limiter for periodic pruning, or nil.
func (s *Server) Limiter() *middleware.WriteLimiter {
	return s.limiter
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)
	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("GET /ws", ws.HandleWatch(s.hub, s.origins...))

	api := http.NewServeMux()
	s.registerAPIRoutes(api)
	var apiHandler http.Handler = api
	if s.limiter != nil {
		apiHandler = middleware.LimitWrites(s.limiter)(api)
	}
	mux.Handle("/api/", apiHandler)

	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}

func (s *Server) registerAPIRoutes(mux *http.ServeMux) {
	// Lists
	mux.HandleFunc("GET /api/lists", s.shoppingH.ListLists)
	mux.HandleFunc("POST /api/lists", s.shoppingH.CreateList)
	mux.HandleFunc("PUT /api/lists/order", s.shoppingH.ReorderLists)
	mux.HandleFunc("GET /api/lists/{id}", s.shoppingH.GetList)
	mux.HandleFunc("PUT /api/lists/{id}", s.shoppingH.UpdateList)
	mux.HandleFunc("DELETE /api/lists/{id}", s.shoppingH.DeleteList)

	// Items
	mux.HandleFunc("GET /api/lists/{id}/items", s.shoppingH.ListItems)
	mux.HandleFunc("POST /api/lists/{id}/items", s.shoppingH.CreateItem)
	mux.HandleFunc("PUT /api/lists/{id}/items/order", s.shoppingH.ReorderItems)
	mux.HandleFunc("GET /api/items/{id}", s.shoppingH.GetItem)
	mux.HandleFunc("PUT /api/items/{id}", s.shoppingH.UpdateItem)
	mux.HandleFunc("DELETE /api/items/{id}", s.shoppingH.DeleteItem)
	mux.HandleFunc("POST /api/items/{id}/trash", s.shoppingH.TrashItem)
	mux.HandleFunc("POST /api/items/{id}/restore", s.shoppingH.RestoreItem)

	// Trash
	mux.HandleFunc("GET /api/trash", s.shoppingH.ListTrash)
	mux.HandleFunc("POST /api/trash/clean", s.shoppingH.CleanTrash)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := s.engine.DB().PingContext(r.Context()); err != nil {
		s.logger.Error("health check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "unavailable"})
		return
	}
	json.NewEncoder(w).Encode(map[string]any{"status": "ok", "watchers": s.hub.ClientCount()})
}
