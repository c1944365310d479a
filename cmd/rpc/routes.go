package rpc

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
)

// adminPathPrefix is the path prefix of the routes served by the admin server
const adminPathPrefix = "/v1/admin/"

// aedpos RPC Paths
const (
	VersionRoutePath         = "/v1/"
	TxRoutePath              = "/v1/tx"
	RoundRoutePath           = "/v1/query/round"
	PreviousRoundRoutePath   = "/v1/query/previous-round"
	RoundByNumberRoutePath   = "/v1/query/round/:number"
	CommandRoutePath         = "/v1/query/command/:pubkey"
	LibRoutePath             = "/v1/query/lib"
	MiningStatusRoutePath    = "/v1/query/mining-status"
	TermBlocksRoutePath      = "/v1/query/term-blocks/:term"
	ConsensusParamsRoutePath = "/v1/query/consensus-params"
	RoundDiffRoutePath       = "/v1/query/round-diff/:from/:to"
	// admin
	ResourceUsageRoutePath = "/v1/admin/resource-usage"
	ConfigRoutePath        = "/v1/admin/config"
	LogsRoutePath          = "/v1/admin/log"
)

const (
	VersionRouteName         = "version"
	TxRouteName              = "tx"
	RoundRouteName           = "round"
	PreviousRoundRouteName   = "previous-round"
	RoundByNumberRouteName   = "round-by-number"
	CommandRouteName         = "command"
	LibRouteName             = "lib"
	MiningStatusRouteName    = "mining-status"
	TermBlocksRouteName      = "term-blocks"
	ConsensusParamsRouteName = "consensus-params"
	RoundDiffRouteName       = "round-diff"
	// admin
	ResourceUsageRouteName = "resource-usage"
	ConfigRouteName        = "config"
	LogsRouteName          = "log"
)

// routes contains the method and path for an aedpos RPC route
type routes map[string]struct {
	Method string
	Path   string
}

// routePaths is a mapping from route names to their corresponding HTTP methods and paths
var routePaths = routes{
	VersionRouteName:         {Method: http.MethodGet, Path: VersionRoutePath},
	TxRouteName:              {Method: http.MethodPost, Path: TxRoutePath},
	RoundRouteName:           {Method: http.MethodGet, Path: RoundRoutePath},
	PreviousRoundRouteName:   {Method: http.MethodGet, Path: PreviousRoundRoutePath},
	RoundByNumberRouteName:   {Method: http.MethodGet, Path: RoundByNumberRoutePath},
	CommandRouteName:         {Method: http.MethodGet, Path: CommandRoutePath},
	LibRouteName:             {Method: http.MethodGet, Path: LibRoutePath},
	MiningStatusRouteName:    {Method: http.MethodGet, Path: MiningStatusRoutePath},
	TermBlocksRouteName:      {Method: http.MethodGet, Path: TermBlocksRoutePath},
	ConsensusParamsRouteName: {Method: http.MethodGet, Path: ConsensusParamsRoutePath},
	RoundDiffRouteName:       {Method: http.MethodGet, Path: RoundDiffRoutePath},
	ResourceUsageRouteName:   {Method: http.MethodGet, Path: ResourceUsageRoutePath},
	ConfigRouteName:          {Method: http.MethodGet, Path: ConfigRoutePath},
	LogsRouteName:            {Method: http.MethodGet, Path: LogsRoutePath},
}

// httpRouteHandlers is a custom type that maps strings to httprouter handle functions
type httpRouteHandlers map[string]httprouter.Handle

// createRouter initializes and returns a new HTTP router with predefined route handlers
func createRouter(s *Server) *httprouter.Router {
	var r = httpRouteHandlers{
		VersionRouteName:         s.Version,
		TxRouteName:              s.Transaction,
		RoundRouteName:           s.Round,
		PreviousRoundRouteName:   s.PreviousRound,
		RoundByNumberRouteName:   s.RoundByNumber,
		CommandRouteName:         s.Command,
		LibRouteName:             s.LIB,
		MiningStatusRouteName:    s.MiningStatus,
		TermBlocksRouteName:      s.TermBlocks,
		ConsensusParamsRouteName: s.ConsensusParams,
		RoundDiffRouteName:       s.RoundDiff,
	}
	return s.newRouter(r)
}

// createAdminRouter initializes and returns a new HTTP router with the operator route handlers
func createAdminRouter(s *Server) *httprouter.Router {
	var r = httpRouteHandlers{
		ResourceUsageRouteName: s.ResourceUsage,
		ConfigRouteName:        s.Config,
		LogsRouteName:          s.Logs,
	}
	return s.newRouter(r)
}

// newRouter() registers the handlers at their route paths
func (s *Server) newRouter(r httpRouteHandlers) *httprouter.Router {
	// Initialize a new router using the httprouter package.
	router := httprouter.New()

	for name, handler := range r {
		// Retrieve the path configuration for the current route name.
		path := routePaths[name]

		// Add the handler for the specific path and HTTP method to the router.
		router.Handle(path.Method, path.Path, logHandler{path.Path, handler, s.logger}.Handle)
	}

	return router
}
