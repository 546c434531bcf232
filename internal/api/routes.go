// 文件: internal/api/routes.go
package api

import (
	"log/slog"
	"net/http"
	"path"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"thiepcuoi/pkg/logger"
)

// RegisterRoutes 注册所有API路由
func RegisterRoutes(deps Deps) *chi.Mux {
	r := chi.NewRouter()

	// --- 中间件 ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link", "Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	handlers := NewAPIHandlers(deps)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", handleHealth)

		r.Route("/images", func(r chi.Router) {
			r.Post("/upload", handlers.HandleUploadImage)
			r.Get("/wedding/{weddingId}", handlers.HandleListByWedding)
			r.Get("/wedding/{weddingId}/{category}", handlers.HandleListByCategory)
			r.Get("/{id}/download", handlers.HandleDownloadImage)
			r.Get("/{id}/similar", handlers.HandleSimilarImages)
			r.Put("/{id}", handlers.HandleUpdateImage)
			r.Delete("/{id}", handlers.HandleDeleteImage)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Get("/health", handleHealth)
			r.Post("/tasks/optimize", handlers.HandleStartOptimizeTask)
			r.Get("/tasks/{taskId}", handlers.HandleGetTaskStatus)
			r.Delete("/tasks/{taskId}", handlers.HandleCancelTask)
			r.Get("/audit", handlers.HandleAudit)
			r.Get("/config", handlers.HandleGetConfig)
			r.Put("/config", handlers.HandleUpdateConfig)
		})
	})

	// 静态文件
	prefix := path.Join("/", deps.Config.Upload.PublicPrefix)
	fileServer := http.StripPrefix(prefix+"/", http.FileServer(http.Dir(deps.Config.Upload.Dir)))
	r.Handle(prefix+"/*", fileServer)

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}

// requestLogger 把带有请求ID的 logger 放入 context，流水线中的日志都能关联到具体请求。
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		l := slog.Default().With("requestId", middleware.GetReqID(r.Context()))
		next.ServeHTTP(w, r.WithContext(logger.WithContext(r.Context(), l)))
	})
}
