package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/alecthomas/units"
	"github.com/canopy-network/aedpos/consensus"
	"github.com/canopy-network/aedpos/lib"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"
)

const (
	colon = ":"

	SoftwareVersion = "0.1.0-alpha"
	ContentType     = "Content-Type"
	ApplicationJSON = "application/json; charset=utf-8"
	localhost       = "localhost"
)

// Server represents an aedpos RPC server
type Server struct {
	// the round scheduler
	engine *consensus.Engine

	// node configuration
	config lib.Config

	logger lib.LoggerI
}

// NewServer constructs and returns a new aedpos RPC server
func NewServer(engine *consensus.Engine, config lib.Config, logger lib.LoggerI) *Server {
	return &Server{
		engine: engine,
		config: config,
		logger: logger,
	}
}

// Handler() returns the query router behind the CORS policy and the request timeout
func (s *Server) Handler() http.Handler { return s.wrap(createRouter(s)) }

// AdminHandler() returns the operator router behind the CORS policy and the request timeout
func (s *Server) AdminHandler() http.Handler { return s.wrap(createAdminRouter(s)) }

// wrap() applies the CORS policy and the request timeout
func (s *Server) wrap(h http.Handler) http.Handler {
	// Create CORS policy
	cor := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS", "POST"},
	})

	// Create a default timeout for HTTP requests
	timeout := time.Duration(s.config.TimeoutS) * time.Second
	return cor.Handler(http.TimeoutHandler(h, timeout, lib.ErrServerTimeout().Error()))
}

// Start() serves the query and admin RPC until the context is cancelled or one of them fails
func (s *Server) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.serve(ctx, s.config.RPCPort, s.Handler()) })
	if s.config.AdminPort != "" {
		g.Go(func() error { return s.serve(ctx, s.config.AdminPort, s.AdminHandler()) })
	}
	return g.Wait()
}

// serve() listens on a port until the context is done
func (s *Server) serve(ctx context.Context, port string, h http.Handler) error {
	server := &http.Server{
		Addr:              colon + port,
		Handler:           h,
		ReadHeaderTimeout: time.Duration(s.config.TimeoutS) * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(err.Error())
		}
	}()
	ln, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return err
	}
	// cap the concurrent connections of a single server
	if s.config.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.config.MaxConnections)
	}
	s.logger.Infof("Starting RPC server at 0.0.0.0:%s", port)
	if err = server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// logHandler serves as a middleware that logs incoming RPC calls at debug level
type logHandler struct {
	path   string
	h      httprouter.Handle
	logger lib.LoggerI
}

// Handle
func (h logHandler) Handle(resp http.ResponseWriter, req *http.Request, p httprouter.Params) {
	h.logger.Debugf("RPC %s %s", req.Method, h.path)
	h.h(resp, req, p)
}

// unmarshal reads request body and unmarshals it into ptr
func unmarshal(w http.ResponseWriter, r *http.Request, ptr interface{}) bool {
	bz, err := io.ReadAll(io.LimitReader(r.Body, int64(units.MB)))
	if err != nil {
		write(w, ErrReadBody(err), http.StatusBadRequest)
		return false
	}
	defer func() { _ = r.Body.Close() }()
	if err = json.Unmarshal(bz, ptr); err != nil {
		write(w, lib.ErrJSONUnmarshal(err), http.StatusBadRequest)
		return false
	}
	return true
}

// write marshaled payload to w
func write(w http.ResponseWriter, payload interface{}, code int) {
	w.Header().Set(ContentType, ApplicationJSON)
	w.WriteHeader(code)

	// Marshal and indent the payload
	bz, _ := json.MarshalIndent(payload, "", "  ")
	_, _ = w.Write(bz)
}

// writeError() writes an error with the status code that fits its module
func writeError(w http.ResponseWriter, err lib.ErrorI) {
	code := http.StatusInternalServerError
	switch {
	case err.Module() == lib.RPCModule && err.Code() == lib.CodeInvalidParam:
		code = http.StatusBadRequest
	case err.Module() == lib.StorageModule && err.Code() == lib.CodeRoundNotFound:
		code = http.StatusNotFound
	case err.Module() == lib.ConsensusModule && err.Code() == lib.CodePermissionDenied:
		code = http.StatusNotFound
	case err.Module() == lib.ConsensusModule && err.Code() == lib.CodeNoGenesis:
		code = http.StatusServiceUnavailable
	case err.Module() == lib.MainModule && err.Code() == lib.CodeInvalidArgument:
		code = http.StatusBadRequest
	}
	write(w, err, code)
}
