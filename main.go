package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nubank/csvchat-backend/internal"
	"github.com/nubank/csvchat-backend/internal/config"
	"github.com/nubank/csvchat-backend/internal/conversation"
	"github.com/nubank/csvchat-backend/internal/dataset"
	"github.com/nubank/csvchat-backend/internal/logging"
	"github.com/nubank/csvchat-backend/internal/provider"
	"github.com/nubank/csvchat-backend/internal/query"
	"github.com/nubank/csvchat-backend/internal/store"
	"github.com/nubank/csvchat-backend/internal/upload"
)

const previewRows = 5

// newTransport picks the agent runtime when an endpoint is configured, then
// OpenAI if there is a key, and the offline mock otherwise.
func newTransport(cfg config.Config, log *zap.Logger) provider.AgentTransport {
	if cfg.EndpointID != "" {
		p, err := provider.NewAgentRuntimeProvider(provider.AgentRuntimeOptions{
			EndpointID: cfg.EndpointID,
			Region:     cfg.Region,
			BaseURL:    cfg.BaseURL,
			Tokens:     provider.StaticToken(cfg.Token),
		})
		if err == nil {
			return p
		}
		log.Warn("agent runtime disabled", zap.Error(err))
	}
	if cfg.OpenAIKey != "" {
		p, err := provider.NewOpenAIProvider(cfg.OpenAIKey, cfg.OpenAIModel)
		if err == nil {
			return p
		}
		log.Warn("openai provider disabled", zap.Error(err))
	}
	return provider.NewMockProvider()
}

// readDataset accepts a multipart upload (field "file") or a JSON body with the CSV text.
func readDataset(c *gin.Context) (string, *dataset.Dataset, int, error) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fh, err := c.FormFile("file")
		if err != nil {
			return "", nil, 0, errBadRequest("file requerido")
		}
		f, err := fh.Open()
		if err != nil {
			return "", nil, 0, err
		}
		defer f.Close()
		maxChars := 0
		if v := c.PostForm("max_chars"); v != "" {
			if maxChars, err = strconv.Atoi(v); err != nil {
				return "", nil, 0, errBadRequest("max_chars inválido")
			}
		}
		ds, err := dataset.Parse(f)
		return fh.Filename, ds, maxChars, err
	}

	var req internal.UploadCSVRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		return "", nil, 0, errBadRequest("text requerido")
	}
	if req.Name == "" {
		req.Name = "upload.csv"
	}
	ds, err := dataset.Parse(strings.NewReader(req.Text))
	return req.Name, ds, req.MaxChars, err
}

type badRequest string

func (e badRequest) Error() string { return string(e) }

func errBadRequest(msg string) error { return badRequest(msg) }

// errorResponse maps the error taxonomy onto HTTP statuses.
func errorResponse(err error) (int, gin.H) {
	var (
		br badRequest
		ue *upload.UploadError
		qe *query.QueryError
	)
	switch {
	case errors.As(err, &br):
		return http.StatusBadRequest, gin.H{"error": br.Error()}
	case errors.As(err, &ue):
		body := gin.H{"error": err.Error(), "chunk": ue.ChunkIndex, "total": ue.Total}
		if errors.Is(err, upload.ErrEnvelopeTooLarge) {
			body["hint"] = "reduce max_chars y vuelve a subir el CSV"
			return http.StatusUnprocessableEntity, body
		}
		return http.StatusBadGateway, body
	case errors.Is(err, dataset.ErrMalformed), errors.Is(err, conversation.ErrNoRows):
		return http.StatusUnprocessableEntity, gin.H{"error": err.Error()}
	case errors.Is(err, query.ErrNoSession):
		return http.StatusConflict, gin.H{"error": "no hay un CSV cargado"}
	case errors.Is(err, query.ErrEmptyQuestion):
		return http.StatusBadRequest, gin.H{"error": "content requerido"}
	case errors.As(err, &qe):
		return http.StatusBadGateway, gin.H{"error": err.Error()}
	default:
		return http.StatusUnprocessableEntity, gin.H{"error": err.Error()}
	}
}

// singleFlight rejects a request while another one is still in flight.
func singleFlight(mem *store.MemoryStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !mem.TryBegin() {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "hay una solicitud en curso"})
			return
		}
		defer mem.End()
		c.Next()
	}
}

func newRouter(svc *conversation.Service, cfg config.Config, log *zap.Logger) *gin.Engine {
	r := gin.Default()

	// CORS con credenciales
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", cfg.CORSOrigin)
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "*")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	mem := svc.State()
	gate := singleFlight(mem)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"ok": true, "uptime": time.Now().Format(time.RFC3339)})
	})

	r.GET("/api/model", func(c *gin.Context) {
		c.JSON(200, gin.H{"model": svc.Model()})
	})

	r.GET("/api/session", func(c *gin.Context) {
		h := mem.Handle()
		c.JSON(200, internal.SessionResponse{
			Loaded:    h.Valid(),
			SessionID: h.SessionID,
			Dataset:   mem.Dataset(),
			Turns:     len(mem.All()),
		})
	})

	r.GET("/api/messages", func(c *gin.Context) {
		c.JSON(200, internal.ChatHistory{Messages: svc.History()})
	})

	r.POST("/api/csv/preview", func(c *gin.Context) {
		_, ds, _, err := readDataset(c)
		if err != nil {
			c.JSON(errorResponse(err))
			return
		}
		c.JSON(200, internal.PreviewResponse{Columns: ds.Columns, Rows: ds.Preview(previewRows), Total: len(ds.Rows)})
	})

	r.POST("/api/csv", gate, func(c *gin.Context) {
		name, ds, maxChars, err := readDataset(c)
		if err != nil {
			c.JSON(errorResponse(err))
			return
		}
		// una subida iniciada no se cancela si el cliente se desconecta
		ctx := context.WithoutCancel(c.Request.Context())
		res, err := svc.Load(ctx, name, ds, maxChars, func(p upload.Progress) {
			log.Info("uploading chunk", zap.Int("chunk", p.Index), zap.Int("total", p.Total), zap.Int("chars", p.Chars))
		})
		if err != nil {
			c.JSON(errorResponse(err))
			return
		}
		c.JSON(200, res)
	})

	r.POST("/api/messages", gate, func(c *gin.Context) {
		var req internal.SendMessageRequest
		if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Content) == "" {
			c.JSON(400, gin.H{"error": "content requerido"})
			return
		}
		reply, result, err := svc.Ask(c.Request.Context(), req.Content)
		if err != nil {
			c.JSON(errorResponse(err))
			return
		}
		c.JSON(200, internal.SendMessageResponse{
			Reply:  reply,
			Answer: conversation.ToAnswer(result),
			Model:  svc.Model(),
		})
	})

	r.POST("/api/reset", gate, func(c *gin.Context) {
		// El estado local se limpia aunque falle el borrado remoto
		if err := svc.Reset(c.Request.Context()); err != nil {
			c.JSON(200, gin.H{"ok": true, "warning": err.Error()})
			return
		}
		c.JSON(200, gin.H{"ok": true})
	})

	return r
}

func main() {
	cfg, err := config.Load() // carga .env si existe
	if err != nil {
		panic(err)
	}
	log, err := logging.New(cfg.Debug)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	transport := newTransport(cfg, log)
	svc := conversation.NewService(transport, store.NewMemoryStore(), conversation.Options{
		MaxChars: cfg.MaxChars,
		Overhead: cfg.Overhead,
		Upload: upload.Options{
			DisplayName: cfg.SessionName,
			Description: cfg.SessionDescription,
		},
	}, log)
	log.Info("starting", zap.String("model", transport.Model()), zap.String("port", cfg.Port))

	r := newRouter(svc, cfg, log)
	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server stopped", zap.Error(err))
		}
	}()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	// the agent session does not outlive the process
	if err := svc.Reset(shutdownCtx); err != nil {
		log.Warn("session cleanup failed", zap.Error(err))
	}
}
