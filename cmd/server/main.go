package main

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/icco/gutil/logging"
	"github.com/microcosm-cc/bluemonday"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/unrolled/render"
	"github.com/unrolled/secure"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/icco/taverna"
	"github.com/icco/taverna/cmd/server/docs"
)

var (
	// Renderer is a renderer for all occasions. These are our preferred default options.
	// See:
	//  - https://github.com/unrolled/render/blob/v1/README.md
	Renderer = render.New(render.Options{
		Charset:                   "UTF-8",
		DisableHTTPErrorRendering: false,
		IndentJSON:                false,
	})

	log           = logging.Must(logging.NewLogger(taverna.Service))
	ugcPolicy     = bluemonday.StrictPolicy()
	contentPolicy = bluemonday.UGCPolicy()
)

var (
	conf   Config
	roller taverna.Roller
)

// HealthResponse is the body of /healthz.
type HealthResponse struct {
	Healthy  string `json:"healthy" example:"true"`
	Revision string `json:"revision,omitempty"`
	Tag      string `json:"tag,omitempty"`
	Branch   string `json:"branch,omitempty"`
}

// @title Taverna API
// @version 1.0
// @description Run tabletop role-playing campaigns online: characters, sessions, initiative, dice, chat, maps and lore.
// @contact.name API Support
// @contact.url http://github.com/icco/taverna
// @license.name MIT
// @host taverna.app
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT token in format: Bearer {token}

func main() {
	var err error
	conf, err = loadConfig()
	if err != nil {
		log.Fatalw("could not load config", zap.Error(err))
	}
	log.Infow("Starting up", "host", conf.AuthURL, "env", conf.Env)

	roller, err = taverna.NewRoller()
	if err != nil {
		log.Fatalw("could not seed dice", zap.Error(err))
	}

	if _, err := getDB(); err != nil {
		log.Panicw("could not get db", zap.Error(err))
		return
	}

	authService = newAuthService(conf)
	stats()

	if conf.RedisURL != "" {
		opts, err := redis.ParseURL(conf.RedisURL)
		if err != nil {
			log.Fatalw("invalid REDIS_URL", zap.Error(err))
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		b, err := newRedisBroker(ctx, redis.NewClient(opts), hub)
		cancel()
		if err != nil {
			log.Fatalw("could not start event broker", zap.Error(err))
		}
		defer b.Close()
		events = b
		log.Infow("live events use redis")
	}

	server := &http.Server{
		Addr:           ":" + conf.Port,
		Handler:        otelhttp.NewHandler(newRouter(), taverna.Service),
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1MB
	}
	if err := server.ListenAndServe(); err != nil {
		log.Errorw("server stopped", zap.Error(err))
	}
}

func newRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(logging.Middleware(log.Desugar()))

	r.Use(cors.New(cors.Options{
		AllowCredentials:   true,
		OptionsPassthrough: true,
		AllowedOrigins:     conf.AllowedOrigins,
		AllowedMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:     []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:     []string{"Link"},
		MaxAge:             300, // Maximum value not ignored by any of major browsers
	}).Handler)

	r.NotFound(notFoundHandler)

	r.Group(func(r chi.Router) {
		r.Use(secure.New(secure.Options{
			BrowserXssFilter:     true,
			ContentTypeNosniff:   true,
			FrameDeny:            true,
			HostsProxyHeaders:    []string{"X-Forwarded-Host"},
			IsDevelopment:        conf.IsDev(),
			SSLProxyHeaders:      map[string]string{"X-Forwarded-Proto": "https"},
			SSLRedirect:          !conf.IsDev(),
			STSIncludeSubdomains: true,
			STSPreload:           true,
			STSSeconds:           315360000,
		}).Handler)

		// Public routes
		r.Get("/", rootHandler)
		r.Get("/healthz", healthCheckHandler)
		r.Mount("/metrics", promhttp.Handler())
		r.Get("/swagger/*", httpSwagger.Handler(
			httpSwagger.URL("/swagger/doc.json"),
		))

		r.Mount("/auth", AuthRoutes())
		r.Mount("/admin", AdminRoutes())

		// Everything else needs a user
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware)

			r.Route("/campaigns", func(r chi.Router) {
				r.Get("/", listCampaignsHandler)
				r.Post("/", createCampaignHandler)
				r.Post("/join", joinCampaignHandler)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", getCampaignHandler)
					r.Patch("/", updateCampaignHandler)
					r.Delete("/", deleteCampaignHandler)
					r.Post("/invite-code", regenerateInviteHandler)
					r.Get("/members", listMembersHandler)
					r.Delete("/members/{userId}", removeMemberHandler)
					r.Get("/ws", campaignSocketHandler)

					r.Get("/characters", listCharactersHandler)
					r.Post("/characters", createCharacterHandler)
					r.Get("/sessions", listSessionsHandler)
					r.Post("/sessions", createSessionHandler)
					r.Get("/messages", listMessagesHandler)
					r.Post("/messages", sendMessageHandler)
					r.Get("/messages/pinned", pinnedMessagesHandler)
					r.Get("/scenes", listScenesHandler)
					r.Post("/scenes", createSceneHandler)
					r.Get("/quests", listQuestsHandler)
					r.Post("/quests", createQuestHandler)
					r.Get("/lore", listLoreHandler)
					r.Post("/lore", createLoreHandler)
				})
			})

			r.Route("/characters/{id}", func(r chi.Router) {
				r.Get("/", getCharacterHandler)
				r.Patch("/", updateCharacterHandler)
				r.Delete("/", deleteCharacterHandler)
			})

			r.Route("/sessions/{id}", func(r chi.Router) {
				r.Get("/", getSessionHandler)
				r.Delete("/", deleteSessionHandler)
				r.Post("/status", sessionStatusHandler)
				r.Post("/join", joinSessionHandler)
				r.Post("/leave", leaveSessionHandler)
				r.Post("/next-turn", nextTurnHandler)
				r.Get("/initiative", listInitiativeHandler)
				r.Post("/initiative", createInitiativeHandler)
				r.Patch("/initiative/{entryId}", updateInitiativeHandler)
				r.Delete("/initiative/{entryId}", deleteInitiativeHandler)
				r.Get("/log", listLogHandler)
				r.Post("/log", createLogHandler)
				r.Get("/recap", recapHandler)

				r.Group(func(r chi.Router) {
					r.Use(middleware.Throttle(50))
					r.Post("/roll", rollHandler)
					r.Post("/roll-table", rollTableHandler)
				})
			})

			r.Route("/messages/{id}", func(r chi.Router) {
				r.Patch("/", editMessageHandler)
				r.Delete("/", deleteMessageHandler)
				r.Post("/reactions", reactHandler)
				r.Post("/pin", pinMessageHandler)
			})

			r.Route("/scenes/{id}", func(r chi.Router) {
				r.Get("/", getSceneHandler)
				r.Patch("/", updateSceneHandler)
				r.Delete("/", deleteSceneHandler)
				r.Post("/fog", revealFogHandler)
				r.Delete("/fog", resetFogHandler)
				r.Post("/tokens", createTokenHandler)
				r.Patch("/tokens/{tokenId}", updateTokenHandler)
				r.Delete("/tokens/{tokenId}", deleteTokenHandler)
				r.Post("/drawings", createDrawingHandler)
				r.Delete("/drawings/{drawingId}", deleteDrawingHandler)
			})

			r.Route("/quests/{id}", func(r chi.Router) {
				r.Patch("/", updateQuestHandler)
				r.Delete("/", deleteQuestHandler)
			})

			r.Route("/lore/{id}", func(r chi.Router) {
				r.Get("/", getLoreHandler)
				r.Patch("/", updateLoreHandler)
				r.Delete("/", deleteLoreHandler)
			})
		})
	})

	return r
}

// @Summary Get API information
// @Description Returns basic API information and available endpoints
// @Tags info
// @Produce html
// @Success 200 {string} string "HTML page with API information"
// @Router / [get]
func rootHandler(w http.ResponseWriter, r *http.Request) {
	spec, err := docs.GetSwaggerSpec()
	if err != nil {
		log.Errorw("failed to parse swagger.json", zap.Error(err))
		spec = &docs.SwaggerSpec{}
	}

	var b strings.Builder
	b.WriteString(`<html>
  <head>
    <title>Taverna API</title>
    <style>
      body { font-family: Arial, sans-serif; max-width: 800px; margin: 40px auto; padding: 20px; }
      .endpoint { margin: 12px 0; padding: 10px 15px; border-left: 4px solid #8b4513; background: #faf6f0; }
      .method { font-weight: bold; color: #8b4513; text-transform: uppercase; }
      .path { font-family: monospace; }
      .description { color: #666; }
    </style>
  </head>
  <body>
    <h1>Taverna API</h1>
    <p>Run tabletop role-playing campaigns online.</p>
    <p><a href="/swagger/">View Swagger Documentation</a></p>
    <h2>Available Endpoints</h2>
`)

	for _, e := range spec.Endpoints() {
		fmt.Fprintf(&b, `    <div class="endpoint"><span class="method">%s</span> <span class="path">%s</span> <div class="description">%s</div></div>
`, e.Method, html.EscapeString(e.Path), html.EscapeString(e.Summary))
	}
	b.WriteString("  </body>\n</html>\n")

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write([]byte(b.String())); err != nil {
		log.Errorw("failed to write response", zap.Error(err))
	}
}

// @Summary Health check
// @Description Returns service health status
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /healthz [get]
func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	if err := Renderer.JSON(w, http.StatusOK, HealthResponse{
		Healthy:  "true",
		Revision: os.Getenv("GIT_REVISION"),
		Tag:      os.Getenv("GIT_TAG"),
		Branch:   os.Getenv("GIT_BRANCH"),
	}); err != nil {
		log.Errorw("failed to render JSON", zap.Error(err))
	}
}

func notFoundHandler(w http.ResponseWriter, r *http.Request) {
	if err := Renderer.JSON(w, http.StatusNotFound, Response{
		Error: "404: This page could not be found",
	}); err != nil {
		log.Errorw("failed to render JSON", zap.Error(err))
	}
}
