// Package controlapi is the optional HTTP status/control surface of
// SPEC_FULL §1.2/§4.4: a second transport for the same LifecycleDispatcher
// operations (status, stop, restart) a CLI invocation or `kill` would
// perform, plus a read-only log tail. It introduces no new command
// semantics and touches no persistent state.
//
// Structure (gin engine, zap request logging, CORS/security headers,
// session-backed admin auth, CSRF on mutating routes) is grounded on the
// teacher's cmd/zmux-server/main.go.
package controlapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/secure"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/nodewatch/daemonctl/internal/controlapi/logtail"
)

// Status is a point-in-time snapshot of supervisor state, exposed at
// GET /status.
type Status struct {
	Realm     string `json:"realm"`
	LockHeld  bool   `json:"lock_held"`
	Children  int    `json:"children"`
	Aggregate int    `json:"aggregate_exit"`
	Launching bool   `json:"launching"`
	// RedisOK reports the session store's Redis backend reachability;
	// omitted (false, absent from callers' expectations) when the control
	// plane runs on the in-memory cookie store.
	RedisOK *bool `json:"redis_ok,omitempty"`
}

// StatusProvider is implemented by the daemon realm; kept as a narrow
// interface here so this package never imports the root daemonctl package
// (which imports controlapi to start the server).
type StatusProvider interface {
	Status() Status
}

// Commander issues the same stop/restart operations the CLI dispatcher
// performs, via the daemon's own lifecycle code.
type Commander interface {
	Stop() int
	Restart() int
}

// Server is the control plane's gin-backed HTTP server.
type Server struct {
	log    *zap.Logger
	engine *gin.Engine
	http   *http.Server

	status StatusProvider
	cmds   Commander
	logs   *logtail.Buffer

	// csrfSecret keys the derived CSRF double-submit token (see
	// ValidateSessionCSRF); generated fresh per server, so a restart
	// invalidates any token a client had cached.
	csrfSecret []byte

	sf singleflight.Group
}

// NewServer builds the gin engine and wires every route. sessionStore
// backs the admin session cookie (in-memory or Redis — see
// internal/controlapi/session).
func NewServer(log *zap.Logger, addr string, status StatusProvider, cmds Commander, logs *logtail.Buffer, creds Credentials, sessionStore sessions.Store) *Server {
	log = log.Named("controlapi")
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	engine.Use(requestID())
	engine.Use(zapLogger(log))
	engine.Use(gin.Recovery())
	engine.Use(cors.Default())
	engine.Use(secure.New(secure.Options{
		SSLRedirect:           false,
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ContentSecurityPolicy: "default-src 'none'",
	}))
	engine.Use(sessions.Sessions("daemonctl_admin", sessionStore))

	s := &Server{
		log:        log,
		engine:     engine,
		status:     status,
		cmds:       cmds,
		logs:       logs,
		csrfSecret: securecookie.GenerateRandomKey(32),
	}

	authed := engine.Group("/")
	authed.Use(Authentication(creds))
	authed.Use(ValidateSessionCSRF(s.csrfSecret))

	authed.GET("/status", s.handleStatus)
	authed.GET("/logs", s.handleLogs)
	authed.POST("/commands/stop", s.handleStop)
	authed.POST("/commands/restart", s.handleRestart)

	s.http = &http.Server{
		Addr:           addr,
		Handler:        engine,
		ReadTimeout:    5 * time.Second,
		WriteTimeout:   10 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 16,
		ErrorLog:       zap.NewStdLog(log),
	}

	return s
}

// ListenAndServe blocks serving the control plane. Intended to be run in
// its own goroutine by the embedding Daemon; it never touches the
// supervisor loop's own goroutine.
func (s *Server) ListenAndServe() error {
	s.log.Info("control plane listening", zap.String("addr", s.http.Addr))
	return s.http.ListenAndServe()
}

func (s *Server) handleStatus(c *gin.Context) {
	if p := GetPrincipal(c); p != nil && p.Kind == CredSession {
		c.Writer.Header().Set("X-CSRF-Token", CSRFToken(p.ID, s.csrfSecret))
	}
	v, _, _ := s.sf.Do("status", func() (any, error) {
		return s.status.Status(), nil
	})
	c.JSON(http.StatusOK, v)
}

func (s *Server) handleLogs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"lines": s.logs.Read(200)})
}

func (s *Server) handleStop(c *gin.Context) {
	code := s.cmds.Stop()
	c.JSON(http.StatusOK, gin.H{"exit_code": code})
}

func (s *Server) handleRestart(c *gin.Context) {
	code := s.cmds.Restart()
	c.JSON(http.StatusOK, gin.H{"exit_code": code})
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Writer.Header().Set("X-Request-ID", id)
		c.Next()
	}
}

// zapLogger mirrors the teacher's cmd/zmux-server/main.go ZapLogger gin
// middleware: method/route/status/latency/errors, one line per request.
func zapLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", c.GetString("request_id")),
		}
		if len(c.Errors) > 0 {
			log.Error("request", append(fields, zap.String("errors", c.Errors.String()))...)
			return
		}
		log.Info("request", fields...)
	}
}
