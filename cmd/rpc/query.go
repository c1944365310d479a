package rpc

import (
	"net/http"
	"strconv"

	"github.com/canopy-network/aedpos/lib"
	"github.com/julienschmidt/httprouter"
	"github.com/nsf/jsondiff"
)

// Version writes the software version
func (s *Server) Version(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	write(w, SoftwareVersion, http.StatusOK)
}

// Transaction submits a signed transaction and responds with its synchronous outcome.
// A rejected transaction is a valid answer: the result carries the code and category of the rejection
func (s *Server) Transaction(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	// Create a new instance of lib.Transaction to hold the incoming transaction data.
	tx := new(lib.Transaction)
	// Unmarshal the HTTP request body into the transaction instance.
	if ok := unmarshal(w, r, tx); !ok {
		return
	}
	result, _ := s.engine.Submit(r.Context(), tx)
	write(w, result, http.StatusOK)
}

// Round responds with the current round
func (s *Server) Round(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	respond(w, s.engine.GetCurrentRound)
}

// PreviousRound responds with the round before the current one
func (s *Server) PreviousRound(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	respond(w, s.engine.GetPreviousRound)
}

// RoundByNumber responds with any round inside the history window
func (s *Server) RoundByNumber(w http.ResponseWriter, _ *http.Request, p httprouter.Params) {
	number, err := uint64Param(p, "number")
	if err != nil {
		writeError(w, err)
		return
	}
	respond(w, func() (*lib.Round, lib.ErrorI) { return s.engine.GetRound(number) })
}

// Command responds with what a miner may produce next and when
func (s *Server) Command(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	cmd, err := s.engine.ConsensusCommand(r.Context(), p.ByName("pubkey"))
	if err != nil {
		writeError(w, err)
		return
	}
	write(w, cmd, http.StatusOK)
}

// LIB responds with the last irreversible block
func (s *Server) LIB(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	height, round, err := s.engine.LIB()
	if err != nil {
		writeError(w, err)
		return
	}
	write(w, LibResponse{Height: height, Round: round}, http.StatusOK)
}

// MiningStatus responds with the mining status of the current round
func (s *Server) MiningStatus(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	status, maxBlocks, err := s.engine.MiningStatus()
	if err != nil {
		writeError(w, err)
		return
	}
	current, err := s.engine.GetCurrentRound()
	if err != nil {
		writeError(w, err)
		return
	}
	write(w, MiningStatusResponse{Status: status.String(), MaxBlocks: maxBlocks, RoundNumber: current.RoundNumber}, http.StatusOK)
}

// TermBlocks responds with the blocks every miner produced in a term
func (s *Server) TermBlocks(w http.ResponseWriter, _ *http.Request, p httprouter.Params) {
	term, err := uint64Param(p, "term")
	if err != nil {
		writeError(w, err)
		return
	}
	blocks, err := s.engine.TermProducedBlocks(term)
	if err != nil {
		writeError(w, err)
		return
	}
	write(w, TermBlocksResponse{Term: term, Blocks: blocks}, http.StatusOK)
}

// ConsensusParams responds with the protocol parameters of the node
func (s *Server) ConsensusParams(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	write(w, ConsensusParamsResponse{s.config.ConsensusConfig}, http.StatusOK)
}

// RoundDiff responds with the json difference of two rounds inside the history window
func (s *Server) RoundDiff(w http.ResponseWriter, _ *http.Request, p httprouter.Params) {
	from, err := uint64Param(p, "from")
	if err != nil {
		writeError(w, err)
		return
	}
	to, err := uint64Param(p, "to")
	if err != nil {
		writeError(w, err)
		return
	}
	r1, err := s.engine.GetRound(from)
	if err != nil {
		writeError(w, err)
		return
	}
	r2, err := s.engine.GetRound(to)
	if err != nil {
		writeError(w, err)
		return
	}
	j1, err := lib.MarshalJSON(r1)
	if err != nil {
		writeError(w, err)
		return
	}
	j2, err := lib.MarshalJSON(r2)
	if err != nil {
		writeError(w, err)
		return
	}
	opts := jsondiff.DefaultJSONOptions()
	_, differ := jsondiff.Compare(j1, j2, &opts)
	w.Header().Set(ContentType, ApplicationJSON)
	if _, e := w.Write([]byte(differ)); e != nil {
		s.logger.Error(e.Error())
	}
}

// respond() writes the round a getter returns
func respond(w http.ResponseWriter, get func() (*lib.Round, lib.ErrorI)) {
	round, err := get()
	if err != nil {
		writeError(w, err)
		return
	}
	write(w, round, http.StatusOK)
}

// uint64Param() parses a path parameter
func uint64Param(p httprouter.Params, name string) (uint64, lib.ErrorI) {
	u, err := strconv.ParseUint(p.ByName(name), 10, 64)
	if err != nil {
		return 0, ErrInvalidParam(name, err)
	}
	return u, nil
}
