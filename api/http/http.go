// Package http is the devnet's legacy REST control plane: the same JSON
// bodies as the devnet_* RPC methods, exposed as plain POST/GET paths,
// converging on the identical rpc.Devnet handlers so the two surfaces can
// never drift apart.
package http

import (
	"encoding/json"
	"net/http"

	devnetrpc "github.com/NethermindEth/starknet-devnet-go/api/rpc"
	"github.com/NethermindEth/starknet-devnet-go/jsonrpc"
	"github.com/NethermindEth/starknet-devnet-go/metrics"
	"github.com/NethermindEth/starknet-devnet-go/utils"
	"github.com/go-playground/validator/v10"
	"github.com/jinzhu/copier"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server mounts the REST control-plane routes.
type Server struct {
	devnet      *devnetrpc.Devnet
	restrictive *devnetrpc.RestrictiveMode
	metrics     *metrics.Registry
	log         utils.SimpleLogger
	validate    *validator.Validate
}

func New(devnet *devnetrpc.Devnet, restrictive *devnetrpc.RestrictiveMode, reg *metrics.Registry, log utils.SimpleLogger) *Server {
	return &Server{
		devnet:      devnet,
		restrictive: restrictive,
		metrics:     reg,
		log:         log,
		validate:    validator.New(),
	}
}

// Register attaches every control-plane route to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /mint", s.gated("/mint", s.handleMint))
	mux.HandleFunc("POST /dump", s.gated("/dump", s.handleDump))
	mux.HandleFunc("POST /load", s.gated("/load", s.handleLoad))
	mux.HandleFunc("POST /restart", s.gated("/restart", s.handleRestart))
	mux.HandleFunc("POST /set_time", s.gated("/set_time", s.handleSetTime))
	mux.HandleFunc("POST /increase_time", s.gated("/increase_time", s.handleIncreaseTime))
	mux.HandleFunc("POST /create_block", s.gated("/create_block", s.handleCreateBlock))
	mux.HandleFunc("POST /abort_blocks", s.gated("/abort_blocks", s.handleAbortBlocks))
	mux.HandleFunc("POST /postman/load_l1_messaging_contract", s.gated("/postman/load_l1_messaging_contract", s.handlePostmanLoad))
	mux.HandleFunc("POST /postman/flush", s.gated("/postman/flush", s.handlePostmanFlush))
	mux.HandleFunc("POST /postman/send_message_to_l2", s.gated("/postman/send_message_to_l2", s.handlePostmanSend))
	mux.HandleFunc("POST /postman/consume_message_from_l2", s.gated("/postman/consume_message_from_l2", s.handlePostmanConsume))
	mux.HandleFunc("GET /account_balance", s.gated("/account_balance", s.handleAccountBalance))
	mux.HandleFunc("GET /predeployed_accounts", s.gated("/predeployed_accounts", s.handlePredeployedAccounts))
	mux.HandleFunc("GET /config", s.gated("/config", s.handleConfig))
	mux.HandleFunc("GET /is_alive", s.handleIsAlive)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.metrics.Gatherer(), promhttp.HandlerOpts{}))
}

// gated enforces restrictive-mode path policy before the real handler
// runs: a forbidden path fails with 403.
func (s *Server) gated(path string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.restrictive.ForbiddenPath(path) {
			writeError(w, http.StatusForbidden, "path is forbidden in the current configuration")
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

// writeRPCResult maps a devnet handler's (result, *jsonrpc.Error) pair to
// an HTTP response: forbidden methods map to 403, everything else to 400.
func writeRPCResult(w http.ResponseWriter, result any, rerr *jsonrpc.Error) {
	if rerr != nil {
		status := http.StatusBadRequest
		if rerr.Code == devnetrpc.CodeMethodForbidden {
			status = http.StatusForbidden
		}
		writeJSON(w, status, map[string]any{"error": rerr.Message, "code": rerr.Code, "data": rerr.Data})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// decode unmarshals and validates a JSON request body.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return false
	}
	return true
}

type mintRequest struct {
	Address string      `json:"address" validate:"required"`
	Amount  json.Number `json:"amount" validate:"required"`
	Unit    string      `json:"unit"`
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	var body mintRequest
	if !s.decode(w, r, &body) {
		return
	}
	var params devnetrpc.MintParams
	if err := copier.Copy(&params, &body); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	result, rerr := s.devnet.Mint(params)
	writeRPCResult(w, result, rerr)
}

type pathRequest struct {
	Path string `json:"path"`
}

func (s *Server) handleDump(w http.ResponseWriter, r *http.Request) {
	var body pathRequest
	if r.ContentLength > 0 && !s.decode(w, r, &body) {
		return
	}
	result, rerr := s.devnet.Dump(devnetrpc.DumpParams{Path: body.Path})
	writeRPCResult(w, result, rerr)
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Path string `json:"path" validate:"required"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	result, rerr := s.devnet.Load(devnetrpc.LoadParams{Path: body.Path})
	writeRPCResult(w, result, rerr)
}

func (s *Server) handleRestart(w http.ResponseWriter, _ *http.Request) {
	result, rerr := s.devnet.Restart()
	writeRPCResult(w, result, rerr)
}

type setTimeRequest struct {
	Time          uint64 `json:"time" validate:"required"`
	GenerateBlock bool   `json:"generate_block"`
}

func (s *Server) handleSetTime(w http.ResponseWriter, r *http.Request) {
	var body setTimeRequest
	if !s.decode(w, r, &body) {
		return
	}
	var params devnetrpc.SetTimeParams
	if err := copier.Copy(&params, &body); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	result, rerr := s.devnet.SetTime(params)
	writeRPCResult(w, result, rerr)
}

func (s *Server) handleIncreaseTime(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Time int64 `json:"time" validate:"required"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	result, rerr := s.devnet.IncreaseTime(devnetrpc.IncreaseTimeParams{Amount: body.Time})
	writeRPCResult(w, result, rerr)
}

func (s *Server) handleCreateBlock(w http.ResponseWriter, _ *http.Request) {
	result, rerr := s.devnet.CreateBlock()
	writeRPCResult(w, result, rerr)
}

func (s *Server) handleAbortBlocks(w http.ResponseWriter, r *http.Request) {
	var body struct {
		StartingBlockHash   string  `json:"starting_block_hash"`
		StartingBlockNumber *uint64 `json:"starting_block_number"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	var params devnetrpc.AbortBlocksParams
	if err := copier.Copy(&params, &body); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	result, rerr := s.devnet.AbortBlocks(params)
	writeRPCResult(w, result, rerr)
}

func (s *Server) handlePostmanLoad(w http.ResponseWriter, r *http.Request) {
	var body struct {
		NetworkURL string `json:"network_url"`
		Address    string `json:"address" validate:"required"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	result, rerr := s.devnet.PostmanLoad(body.NetworkURL, body.Address)
	writeRPCResult(w, result, rerr)
}

func (s *Server) handlePostmanFlush(w http.ResponseWriter, _ *http.Request) {
	result, rerr := s.devnet.PostmanFlush()
	writeRPCResult(w, result, rerr)
}

func (s *Server) handlePostmanSend(w http.ResponseWriter, r *http.Request) {
	var body struct {
		L2ContractAddress  string   `json:"l2_contract_address" validate:"required"`
		EntryPointSelector string   `json:"entry_point_selector" validate:"required"`
		L1ContractAddress  string   `json:"l1_contract_address" validate:"required"`
		Payload            []string `json:"payload"`
		PaidFeeOnL1        string   `json:"paid_fee_on_l1"`
		Nonce              string   `json:"nonce"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	result, rerr := s.devnet.PostmanSendMessageToL2(
		body.L2ContractAddress, body.EntryPointSelector, body.L1ContractAddress,
		body.Payload, body.PaidFeeOnL1, body.Nonce,
	)
	writeRPCResult(w, result, rerr)
}

func (s *Server) handlePostmanConsume(w http.ResponseWriter, r *http.Request) {
	var body struct {
		FromAddress string   `json:"from_address" validate:"required"`
		ToAddress   string   `json:"to_address" validate:"required"`
		Payload     []string `json:"payload"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	result, rerr := s.devnet.PostmanConsumeMessageFromL2(body.FromAddress, body.ToAddress, body.Payload)
	writeRPCResult(w, result, rerr)
}

func (s *Server) handleAccountBalance(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	result, rerr := s.devnet.GetAccountBalance(devnetrpc.AccountBalanceParams{
		Address: q.Get("address"),
		Unit:    q.Get("unit"),
	})
	writeRPCResult(w, result, rerr)
}

func (s *Server) handlePredeployedAccounts(w http.ResponseWriter, _ *http.Request) {
	result, rerr := s.devnet.GetPredeployedAccounts()
	writeRPCResult(w, result, rerr)
}

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	result, rerr := s.devnet.GetConfig()
	writeRPCResult(w, result, rerr)
}

func (s *Server) handleIsAlive(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Alive!!!"))
}
