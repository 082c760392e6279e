package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Rbruno/PokeCapture/internal/api/handlers"
	"github.com/Rbruno/PokeCapture/internal/config"
	"github.com/Rbruno/PokeCapture/internal/metrics"
	"github.com/Rbruno/PokeCapture/internal/services"
)

// Services bundles what the HTTP API serves
type Services struct {
	Catalog    *services.CatalogService
	Lookups    *services.LookupManager
	Collection *services.CollectionService
}

func SetupRouter(cfg *config.Config, svc Services, logger *zap.Logger) *gin.Engine {
	router := gin.Default()
	router.Use(metrics.GinMiddleware())

	frontendPath := cfg.Server.FrontendDistPath
	serveFrontend := frontendPath != "" && dirExists(frontendPath)

	catalogHandler := handlers.NewCatalogHandler(svc.Catalog, svc.Collection)
	lookupHandler := handlers.NewLookupHandler(svc.Lookups, svc.Catalog)
	collectionHandler := handlers.NewCollectionHandler(svc.Collection, svc.Catalog, svc.Lookups)
	proxyHandler := handlers.NewProxyHandler(cfg.Providers, logger)

	// The proxy answers its own preflight and sets a wildcard origin
	router.Any("/proxy", proxyHandler.Handle)

	// API routes
	api := router.Group("/api")
	api.Use(cors.New(corsConfig(cfg.Server.CORSAllowedOrigins)))
	{
		// Preflights for any /api path reach the CORS middleware
		api.OPTIONS("/*any", func(c *gin.Context) { c.Status(http.StatusNoContent) })

		catalog := api.Group("/catalog")
		{
			catalog.GET("", catalogHandler.ListEntries)
			catalog.GET("/:id", catalogHandler.GetEntry)
		}

		lookup := api.Group("/lookup")
		{
			lookup.POST("", lookupHandler.OpenLookup)
			lookup.GET("/:session", lookupHandler.GetLookup)
			lookup.POST("/:session/more", lookupHandler.LoadMore)
			lookup.DELETE("/:session", lookupHandler.CloseLookup)
		}

		collection := api.Group("/collection")
		{
			collection.GET("", collectionHandler.GetCollection)
			collection.POST("/select", collectionHandler.SelectCard)
			collection.GET("/export", collectionHandler.ExportCollection)
			collection.POST("/import", collectionHandler.ImportCollection)
		}
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if serveFrontend {
		indexPath := filepath.Join(frontendPath, "index.html")

		router.Static("/assets", filepath.Join(frontendPath, "assets"))
		router.GET("/", func(c *gin.Context) {
			c.File(indexPath)
		})

		// SPA fallback for non-API routes
		router.NoRoute(func(c *gin.Context) {
			if strings.HasPrefix(c.Request.URL.Path, "/api") {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			c.File(indexPath)
		})
	}

	return router
}

// SetupProxyRouter serves only the reverse proxy and a health check
func SetupProxyRouter(cfg *config.Config, logger *zap.Logger) *gin.Engine {
	router := gin.Default()
	router.Use(metrics.GinMiddleware())

	proxyHandler := handlers.NewProxyHandler(cfg.Providers, logger)
	router.Any("/proxy", proxyHandler.Handle)
	router.Any("/api/proxy", proxyHandler.Handle)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return router
}

func corsConfig(origins []string) cors.Config {
	config := cors.DefaultConfig()
	if len(origins) > 0 {
		config.AllowOrigins = origins
	} else {
		config.AllowOrigins = []string{"http://localhost:5173", "http://localhost:3000"}
	}
	config.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	config.AllowCredentials = false
	return config
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}
