package rpc

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gluwa/creditcoin-pow-consensus/consensus"
	"github.com/gluwa/creditcoin-pow-consensus/database"
	"github.com/gluwa/creditcoin-pow-consensus/interfaces"
	"github.com/gluwa/creditcoin-pow-consensus/security"
	"github.com/gorilla/mux"
)

type Config struct {
	Host string
	Port int
}

// Server exposes a small JSON-RPC surface over the consensus engine:
// remaining publish time, the difficulty of a stored block given its id,
// and a stored block's fields. It does not expose block submission — that stays with
// the host harness's own block-completion callback.
type Server struct {
	config    *Config
	publisher *consensus.BlockPublisher
	store     *database.BlockStore
	security  *security.SecurityManager
	server    *http.Server
}

type JSONRPCRequest struct {
	ID      interface{}   `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
	Version string        `json:"jsonrpc"`
}

type JSONRPCResponse struct {
	ID      interface{}   `json:"id"`
	Result  interface{}   `json:"result,omitempty"`
	Error   *JSONRPCError `json:"error,omitempty"`
	Version string        `json:"jsonrpc"`
}

type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func NewServer(config *Config, publisher *consensus.BlockPublisher, store *database.BlockStore, sec *security.SecurityManager) *Server {
	return &Server{
		config:    config,
		publisher: publisher,
		store:     store,
		security:  sec,
	}
}

func (s *Server) Start() error {
	router := mux.NewRouter()
	router.HandleFunc("/", s.handleRPC).Methods("POST")
	router.HandleFunc("/health", s.handleHealth).Methods("GET")

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("RPC server error: %v\n", err)
		}
	}()

	fmt.Printf("status RPC server started on %s\n", addr)
	return nil
}

func (s *Server) Stop() {
	if s.server != nil {
		s.server.Close()
		fmt.Println("status RPC server stopped")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

	if r.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	if s.security != nil && !s.security.IsAllowed(s.security.ValidateClientIP(r.RemoteAddr)) {
		s.sendError(w, nil, -32000, "rate limit exceeded")
		return
	}

	var req JSONRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, nil, -32700, "parse error")
		return
	}

	result, err := s.handleMethod(req.Method, req.Params)
	if err != nil {
		s.sendError(w, req.ID, -32603, err.Error())
		return
	}

	response := JSONRPCResponse{
		ID:      req.ID,
		Result:  result,
		Version: "2.0",
	}

	json.NewEncoder(w).Encode(response)
}

func (s *Server) handleMethod(method string, params []interface{}) (interface{}, error) {
	switch method {
	case "pow_getRemainingTime":
		return s.powGetRemainingTime()
	case "pow_getTipDifficulty":
		return s.powGetTipDifficulty(params)
	case "pow_getBlock":
		return s.powGetBlock(params)
	case "web3_clientVersion":
		return "powconsensusd/1.0.0", nil
	default:
		return nil, fmt.Errorf("method not found: %s", method)
	}
}

func (s *Server) powGetRemainingTime() (interface{}, error) {
	return s.publisher.GetRemainingTime(), nil
}

func (s *Server) powGetTipDifficulty(params []interface{}) (interface{}, error) {
	if len(params) < 1 {
		return nil, fmt.Errorf("missing block id parameter")
	}
	id, ok := params[0].(string)
	if !ok {
		return nil, fmt.Errorf("block id must be a string")
	}
	block, err := s.store.Block(id)
	if err != nil {
		return nil, err
	}
	if !consensus.IsPoWBlock(block.Consensus()) {
		return nil, fmt.Errorf("block %s is not a PoW block", id)
	}
	fields, err := consensus.ParseFields(block.Consensus())
	if err != nil {
		return nil, err
	}
	return hexutil.Uint(fields.Difficulty), nil
}

func (s *Server) powGetBlock(params []interface{}) (interface{}, error) {
	if len(params) < 1 {
		return nil, fmt.Errorf("missing block id parameter")
	}
	id, ok := params[0].(string)
	if !ok {
		return nil, fmt.Errorf("block id must be a string")
	}
	block, err := s.store.Block(id)
	if err == interfaces.ErrUnknownBlock {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"number":            block.BlockNum(),
		"previous_block_id": block.PreviousBlockID(),
		"signer_public_key": hexutil.Encode(block.SignerPublicKey()),
		"consensus":         string(block.Consensus()),
	}, nil
}

func (s *Server) sendError(w http.ResponseWriter, id interface{}, code int, message string) {
	response := JSONRPCResponse{
		ID:      id,
		Error:   &JSONRPCError{Code: code, Message: message},
		Version: "2.0",
	}
	json.NewEncoder(w).Encode(response)
}
