package server

import (
	"context"
	"embed"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/m-mizutani/bookworm/pkg/model"
	"github.com/m-mizutani/bookworm/pkg/usecase/pipeline"
	"golang.org/x/time/rate"
)

//go:embed templates/index.html
var templateFS embed.FS

//go:embed static/script.js
var recorderScript []byte

// UseCase is the part of the pipeline served over HTTP
type UseCase interface {
	Ask(ctx context.Context, input *pipeline.AskInput) (*pipeline.AskResult, error)
	UploadDocument(ctx context.Context, input *pipeline.DocumentInput) (*pipeline.DocumentResult, error)
	ListSessions(ctx context.Context, opts pipeline.ListOptions) ([]*model.Session, error)
	ArtifactPath(ctx context.Context, name string) (string, error)
	ContextStatus() pipeline.ContextStatus
}

// Server is the web front of the pipeline
type Server struct {
	router  *gin.Engine
	uc      UseCase
	logger  *slog.Logger
	limiter *rate.Limiter
}

// Option is a functional option for Server
type Option func(*Server)

// WithLogger sets the base logger used for request logs
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithQuestionLimit caps POST /upload to r questions per second with the given burst.
// A non-positive rate leaves questions unlimited.
func WithQuestionLimit(r float64, burst int) Option {
	return func(s *Server) {
		if r <= 0 {
			s.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(r), burst)
	}
}

// New builds the router
func New(uc UseCase, opts ...Option) *Server {
	s := &Server{
		uc: uc,
	}
	for _, opt := range opts {
		opt(s)
	}

	r := gin.New()
	r.Use(requestLogger(s.logger), gin.Recovery())
	r.SetHTMLTemplate(template.Must(template.ParseFS(templateFS, "templates/index.html")))

	r.GET("/", s.index)
	r.GET("/script.js", s.script)
	r.GET("/favicon.ico", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.POST("/upload", questionLimit(s.limiter), s.uploadAudio)
	r.POST("/upload_pdf", s.uploadDocument)
	r.GET("/results/:filename", s.result)

	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
