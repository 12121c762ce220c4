package api

import (
	"log/slog"
	"net/http"
	"time"

	"tle_zone_judge/internal/api/handler"
	"tle_zone_judge/internal/app/service"
	"tle_zone_judge/internal/common/security"
	"tle_zone_judge/internal/platform/logger"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v2"
	"github.com/go-chi/jwtauth/v5"
)

type Services struct {
	Submissions *service.SubmissionService
	Contests    *service.ContestService
	Problems    *service.ProblemService
	Ratings     *service.RatingService
	Admin       *service.AdminService
}

type Options struct {
	CORSOrigins []string
	LogLevel    slog.Level
	LogJSON     bool
	// RequestTimeout must exceed the submit wait, or waiting requests are cut off.
	RequestTimeout time.Duration
}

func NewRouter(svc Services, opts Options) http.Handler {
	r := chi.NewRouter()

	reqLogger := httplog.NewLogger("tle-zone-judge", httplog.Options{
		JSON:             opts.LogJSON,
		LogLevel:         opts.LogLevel,
		Concise:          true,
		MessageFieldName: "message",
		QuietDownRoutes:  []string{"/health"},
		QuietDownPeriod:  time.Minute,
	})

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(httplog.RequestLogger(reqLogger))
	r.Use(requestScopedLogger)
	r.Use(chiMiddleware.Recoverer)
	if opts.RequestTimeout > 0 {
		r.Use(chiMiddleware.Timeout(opts.RequestTimeout))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Puts verified claims in the context; middleware.Authenticator enforces them.
	r.Use(jwtauth.Verifier(security.TokenAuth))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	r.Route("/api/v1", func(v1 chi.Router) {
		submissionHandler := handler.NewSubmissionHandler(svc.Submissions)
		v1.Route("/submissions", submissionHandler.RegisterRoutes)
		v1.Route("/run", submissionHandler.RegisterRunRoutes)

		contestHandler := handler.NewContestHandler(svc.Contests, svc.Submissions)
		v1.Route("/contests", contestHandler.RegisterRoutes)

		problemHandler := handler.NewProblemHandler(svc.Problems)
		v1.Route("/problems", problemHandler.RegisterRoutes)

		adminHandler := handler.NewAdminHandler(svc.Admin, svc.Contests, svc.Ratings)
		v1.Route("/admin", adminHandler.RegisterRoutes)
	})

	return r
}

// requestScopedLogger hands the request logger to the services, which log
// through logger.FromContext.
func requestScopedLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logger.WithLogger(r.Context(), httplog.LogEntry(r.Context()))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
