package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/exchangecity/exchanged/pkg/app/core/book"
	"github.com/exchangecity/exchanged/pkg/app/core/engine"
	"github.com/exchangecity/exchanged/pkg/app/core/ledger"
	"github.com/exchangecity/exchanged/pkg/app/core/vault"
	"github.com/exchangecity/exchanged/pkg/events"
)

// Server exposes the exchange over REST and streams the audit log
// over WebSocket. The wallet layer in front of it is trusted to have
// authenticated each caller identity it forwards.
type Server struct {
	ledger *ledger.Ledger
	vault  *vault.Vault
	book   *book.Book
	engine *engine.Engine
	log    *events.Log

	router *mux.Router
	hub    *Hub
	logger *zap.SugaredLogger
}

func NewServer(l *ledger.Ledger, v *vault.Vault, b *book.Book, e *engine.Engine, log *events.Log, logger *zap.SugaredLogger) *Server {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &Server{
		ledger: l,
		vault:  v,
		book:   b,
		engine: e,
		log:    log,
		router: mux.NewRouter(),
		hub:    NewHub(logger),
		logger: logger,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Token (asset ledger)
	api.HandleFunc("/token", s.handleTokenInfo).Methods("GET")
	api.HandleFunc("/token/balance/{address}", s.handleTokenBalance).Methods("GET")
	api.HandleFunc("/token/allowance/{owner}/{spender}", s.handleAllowance).Methods("GET")
	api.HandleFunc("/token/transfer", s.handleTransfer).Methods("POST")
	api.HandleFunc("/token/approve", s.handleApprove).Methods("POST")
	api.HandleFunc("/token/transfer-from", s.handleTransferFrom).Methods("POST")

	// Custody vault
	api.HandleFunc("/vault/balance/{asset}/{user}", s.handleVaultBalance).Methods("GET")
	api.HandleFunc("/vault/deposit-native", s.handleDepositNative).Methods("POST")
	api.HandleFunc("/vault/withdraw-native", s.handleWithdrawNative).Methods("POST")
	api.HandleFunc("/vault/deposit-token", s.handleDepositToken).Methods("POST")
	api.HandleFunc("/vault/withdraw-token", s.handleWithdrawToken).Methods("POST")

	// Orders
	api.HandleFunc("/orders", s.handleOpenOrders).Methods("GET")
	api.HandleFunc("/orders", s.handleMakeOrder).Methods("POST")
	api.HandleFunc("/orders/count", s.handleOrderCount).Methods("GET")
	api.HandleFunc("/orders/{id:[0-9]+}", s.handleGetOrder).Methods("GET")
	api.HandleFunc("/orders/{id:[0-9]+}/cancel", s.handleCancelOrder).Methods("POST")
	api.HandleFunc("/orders/{id:[0-9]+}/fill", s.handleFillOrder).Methods("POST")

	// Audit log
	api.HandleFunc("/events", s.handleEvents).Methods("GET")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start runs the hub, bridges the audit log into it, and serves HTTP.
func (s *Server) Start(addr string) error {
	go s.hub.Run()
	go s.pumpEvents()

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:3001"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	s.logger.Infow("api_listening", "addr", addr)
	return http.ListenAndServe(addr, c.Handler(s.router))
}

// pumpEvents forwards every appended record to WebSocket subscribers:
// the "events" firehose plus a per-kind channel like "events:trade".
func (s *Server) pumpEvents() {
	ch, cancel := s.log.Subscribe(256)
	defer cancel()
	for r := range ch {
		s.hub.BroadcastToChannel("events", r)
		s.hub.BroadcastToChannel("events:"+string(r.Kind), r)
	}
}

// ==============================
// Token handlers
// ==============================

func (s *Server) handleTokenInfo(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, TokenInfo{
		Name:        ledger.Name,
		Symbol:      ledger.Symbol,
		Decimals:    ledger.Decimals,
		TotalSupply: s.ledger.TotalSupply().String(),
	})
}

func (s *Server) handleTokenBalance(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress(mux.Vars(r)["address"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid address", err.Error())
		return
	}
	respondJSON(w, BalanceResponse{Balance: s.ledger.BalanceOf(addr).String()})
}

func (s *Server) handleAllowance(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	owner, err := parseAddress(vars["owner"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid owner", err.Error())
		return
	}
	spender, err := parseAddress(vars["spender"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid spender", err.Error())
		return
	}
	respondJSON(w, AllowanceResponse{Allowance: s.ledger.Allowance(owner, spender).String()})
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	from, to, amount, err := parseMove(req.From, req.To, req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	if err := s.ledger.Transfer(from, to, amount); err != nil {
		respondCoreError(w, err)
		return
	}
	respondJSON(w, StatusResponse{Status: "ok"})
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req ApproveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	owner, spender, amount, err := parseMove(req.Owner, req.Spender, req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	if err := s.ledger.Approve(owner, spender, amount); err != nil {
		respondCoreError(w, err)
		return
	}
	respondJSON(w, StatusResponse{Status: "ok"})
}

func (s *Server) handleTransferFrom(w http.ResponseWriter, r *http.Request) {
	var req TransferFromRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	spender, err := parseAddress(req.Spender)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid spender", err.Error())
		return
	}
	owner, to, amount, err := parseMove(req.Owner, req.To, req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	if err := s.ledger.TransferFrom(spender, owner, to, amount); err != nil {
		respondCoreError(w, err)
		return
	}
	respondJSON(w, StatusResponse{Status: "ok"})
}

// ==============================
// Vault handlers
// ==============================

func (s *Server) handleVaultBalance(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	asset, err := parseAsset(vars["asset"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid asset", err.Error())
		return
	}
	user, err := parseAddress(vars["user"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid user", err.Error())
		return
	}
	respondJSON(w, BalanceResponse{Balance: s.vault.Balance(asset, user).String()})
}

func (s *Server) handleDepositNative(w http.ResponseWriter, r *http.Request) {
	user, amount, ok := s.decodeNativeFunds(w, r)
	if !ok {
		return
	}
	if err := s.vault.DepositNative(user, amount); err != nil {
		respondCoreError(w, err)
		return
	}
	respondJSON(w, StatusResponse{Status: "ok"})
}

func (s *Server) handleWithdrawNative(w http.ResponseWriter, r *http.Request) {
	user, amount, ok := s.decodeNativeFunds(w, r)
	if !ok {
		return
	}
	if err := s.vault.WithdrawNative(user, amount); err != nil {
		respondCoreError(w, err)
		return
	}
	respondJSON(w, StatusResponse{Status: "ok"})
}

func (s *Server) decodeNativeFunds(w http.ResponseWriter, r *http.Request) (common.Address, *big.Int, bool) {
	var req NativeFundsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return common.Address{}, nil, false
	}
	user, err := parseAddress(req.User)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid user", err.Error())
		return common.Address{}, nil, false
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid amount", err.Error())
		return common.Address{}, nil, false
	}
	return user, amount, true
}

func (s *Server) handleDepositToken(w http.ResponseWriter, r *http.Request) {
	user, asset, amount, ok := s.decodeTokenFunds(w, r)
	if !ok {
		return
	}
	if err := s.vault.DepositToken(user, asset, amount); err != nil {
		respondCoreError(w, err)
		return
	}
	respondJSON(w, StatusResponse{Status: "ok"})
}

func (s *Server) handleWithdrawToken(w http.ResponseWriter, r *http.Request) {
	user, asset, amount, ok := s.decodeTokenFunds(w, r)
	if !ok {
		return
	}
	if err := s.vault.WithdrawToken(user, asset, amount); err != nil {
		respondCoreError(w, err)
		return
	}
	respondJSON(w, StatusResponse{Status: "ok"})
}

func (s *Server) decodeTokenFunds(w http.ResponseWriter, r *http.Request) (common.Address, common.Address, *big.Int, bool) {
	var req TokenFundsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return common.Address{}, common.Address{}, nil, false
	}
	user, err := parseAddress(req.User)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid user", err.Error())
		return common.Address{}, common.Address{}, nil, false
	}
	asset, err := parseAsset(req.Asset)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid asset", err.Error())
		return common.Address{}, common.Address{}, nil, false
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid amount", err.Error())
		return common.Address{}, common.Address{}, nil, false
	}
	return user, asset, amount, true
}

// ==============================
// Order handlers
// ==============================

func (s *Server) handleOpenOrders(w http.ResponseWriter, r *http.Request) {
	open := s.book.Open()
	out := make([]OrderInfo, len(open))
	for i, o := range open {
		out[i] = s.orderInfo(o)
	}
	respondJSON(w, out)
}

func (s *Server) handleOrderCount(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, OrderCountResponse{Count: s.book.Count()})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	o, err := s.book.Get(id)
	if err != nil {
		respondCoreError(w, err)
		return
	}
	respondJSON(w, s.orderInfo(o))
}

func (s *Server) handleMakeOrder(w http.ResponseWriter, r *http.Request) {
	var req MakeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	maker, err := parseAddress(req.Maker)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid maker", err.Error())
		return
	}
	tokenGet, err := parseAsset(req.TokenGet)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid tokenGet", err.Error())
		return
	}
	tokenGive, err := parseAsset(req.TokenGive)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid tokenGive", err.Error())
		return
	}
	amountGet, err := parseAmount(req.AmountGet)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid amountGet", err.Error())
		return
	}
	amountGive, err := parseAmount(req.AmountGive)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid amountGive", err.Error())
		return
	}

	o, err := s.book.Make(maker, tokenGet, amountGet, tokenGive, amountGive)
	if err != nil {
		respondCoreError(w, err)
		return
	}
	respondJSON(w, s.orderInfo(o))
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	var req CancelOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	caller, err := parseAddress(req.Caller)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid caller", err.Error())
		return
	}
	if err := s.book.Cancel(caller, id); err != nil {
		respondCoreError(w, err)
		return
	}
	respondJSON(w, StatusResponse{Status: "cancelled"})
}

func (s *Server) handleFillOrder(w http.ResponseWriter, r *http.Request) {
	id, _ := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	var req FillOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	taker, err := parseAddress(req.Taker)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid taker", err.Error())
		return
	}
	if err := s.engine.FillOrder(taker, id); err != nil {
		respondCoreError(w, err)
		return
	}
	respondJSON(w, StatusResponse{Status: "filled"})
}

func (s *Server) orderInfo(o book.Order) OrderInfo {
	return OrderInfo{
		ID:         o.ID,
		Maker:      o.Maker.Hex(),
		TokenGet:   o.TokenGet.Hex(),
		AmountGet:  o.AmountGet.String(),
		TokenGive:  o.TokenGive.Hex(),
		AmountGive: o.AmountGive.String(),
		Timestamp:  o.Timestamp,
		Filled:     s.book.Filled(o.ID),
		Cancelled:  s.book.Cancelled(o.ID),
	}
}

// ==============================
// Event handlers
// ==============================

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	after, _ := strconv.ParseUint(q.Get("after"), 10, 64)
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	recs := s.log.Records(after, limit)
	if recs == nil {
		recs = []events.Record{}
	}
	respondJSON(w, recs)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Helpers
// ==============================

func parseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("not a hex address: %q", s)
	}
	return common.HexToAddress(s), nil
}

// parseAsset accepts "native" or the zero address for the native
// sentinel, otherwise a token address.
func parseAsset(s string) (common.Address, error) {
	if s == "native" {
		return common.Address{}, nil
	}
	return parseAddress(s)
}

func parseAmount(s string) (*big.Int, error) {
	n, ok := math.ParseBig256(s)
	if !ok || n == nil {
		return nil, fmt.Errorf("not an amount: %q", s)
	}
	if n.Sign() < 0 {
		return nil, fmt.Errorf("negative amount: %q", s)
	}
	return n, nil
}

func parseMove(fromStr, toStr, amountStr string) (common.Address, common.Address, *big.Int, error) {
	from, err := parseAddress(fromStr)
	if err != nil {
		return common.Address{}, common.Address{}, nil, err
	}
	// The zero address is a legal *target* in requests only so the
	// core can report InvalidRecipient itself.
	var to common.Address
	if common.IsHexAddress(toStr) {
		to = common.HexToAddress(toStr)
	} else if toStr != "" {
		return common.Address{}, common.Address{}, nil, fmt.Errorf("not a hex address: %q", toStr)
	}
	amount, err := parseAmount(amountStr)
	if err != nil {
		return common.Address{}, common.Address{}, nil, err
	}
	return from, to, amount, nil
}

func respondCoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, book.ErrNotFound):
		respondError(w, http.StatusNotFound, "not found", err.Error())
	case errors.Is(err, book.ErrUnauthorized):
		respondError(w, http.StatusForbidden, "unauthorized", err.Error())
	case errors.Is(err, book.ErrAlreadyFilled), errors.Is(err, book.ErrAlreadyCancelled):
		respondError(w, http.StatusConflict, "order closed", err.Error())
	case errors.Is(err, ledger.ErrInsufficientBalance), errors.Is(err, ledger.ErrInsufficientAllowance):
		respondError(w, http.StatusUnprocessableEntity, "insufficient funds", err.Error())
	case errors.Is(err, vault.ErrInvalidAsset), errors.Is(err, ledger.ErrInvalidRecipient), errors.Is(err, ledger.ErrInvalidAmount):
		respondError(w, http.StatusBadRequest, "invalid request", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal error", err.Error())
	}
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}
