package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/escrowd/pkg/app/core/mempool"
	"github.com/uhyunpark/escrowd/pkg/app/core/transaction"
	"github.com/uhyunpark/escrowd/pkg/app/swap"
	"github.com/uhyunpark/escrowd/pkg/eventlog"
	"github.com/uhyunpark/escrowd/pkg/util"
)

const maxBodyBytes = 64 << 10

// Server handles REST API and WebSocket connections
type Server struct {
	app     *swap.App
	journal *eventlog.Journal // nil when the journal is disabled
	chainID int64
	router  *mux.Router
	hub     *Hub
	logger  *zap.Logger
}

// NewServer wires routes over app. journal may be nil.
func NewServer(app *swap.App, journal *eventlog.Journal, hub *Hub, chainID int64, logger *zap.Logger) *Server {
	s := &Server{
		app:     app,
		journal: journal,
		chainID: chainID,
		router:  mux.NewRouter(),
		hub:     hub,
		logger:  logger,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Transactions
	api.HandleFunc("/txs", s.handleSubmitTx).Methods("POST")
	api.HandleFunc("/txs/{hash}", s.handleGetReceipt).Methods("GET")

	// Orders
	api.HandleFunc("/orders/{address}", s.handleGetOrder).Methods("GET")
	api.HandleFunc("/orders/{address}/events", s.handleGetOrderEvents).Methods("GET")
	api.HandleFunc("/assets/{asset}/orders", s.handleGetCatalog).Methods("GET")

	// Accounts
	api.HandleFunc("/accounts/{address}", s.handleGetAccount).Methods("GET")
	api.HandleFunc("/accounts/{address}/fills", s.handleGetFills).Methods("GET")
	api.HandleFunc("/accounts/{address}/allowances/{asset}/{spender}", s.handleGetAllowance).Methods("GET")

	// Chain
	api.HandleFunc("/chain/status", s.handleGetChainStatus).Methods("GET")
	api.HandleFunc("/blocks", s.handleGetBlocks).Methods("GET")
	api.HandleFunc("/blocks/{height}", s.handleGetBlock).Methods("GET")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the router wrapped with CORS.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:3001"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Start serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go s.hub.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api server starting", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleSubmitTx(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read body", err)
		return
	}
	if len(body) > maxBodyBytes {
		respondError(w, http.StatusRequestEntityTooLarge, "transaction too large", nil)
		return
	}

	if sync, _ := strconv.ParseBool(r.URL.Query().Get("sync")); sync {
		rc, err := s.app.Apply(r.Context(), body)
		if err != nil {
			respondError(w, rejectStatus(err), "transaction rejected", err)
			return
		}
		respondJSON(w, SubmitTxResponse{Status: rc.Status, TxHash: rc.TxHash.Hex(), Receipt: &rc})
		return
	}

	hash, err := s.app.Submit(body)
	if err != nil {
		respondError(w, rejectStatus(err), "transaction rejected", err)
		return
	}
	s.logger.Debug("tx submitted", zap.String("hash", hash.Hex()), zap.Int("bytes", len(body)))
	respondJSONStatus(w, http.StatusAccepted, SubmitTxResponse{Status: "queued", TxHash: hash.Hex()})
}

func rejectStatus(err error) int {
	switch {
	case errors.Is(err, mempool.ErrFull):
		return http.StatusServiceUnavailable
	case errors.Is(err, transaction.ErrNonceTooLow):
		return http.StatusConflict
	case errors.Is(err, transaction.ErrInvalidSignature):
		return http.StatusUnauthorized
	case errors.Is(err, transaction.ErrMalformed), errors.Is(err, swap.ErrNonceExhausted):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	raw := mux.Vars(r)["hash"]
	if len(strings.TrimPrefix(raw, "0x")) != 2*common.HashLength {
		respondError(w, http.StatusBadRequest, "invalid tx hash", nil)
		return
	}
	rc, ok, err := s.app.Receipt(common.HexToHash(raw))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "receipt lookup failed", err)
		return
	}
	if !ok {
		respondError(w, http.StatusNotFound, "receipt not found", nil)
		return
	}
	respondJSON(w, rc)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	ref, ok := addressVar(w, r, "address")
	if !ok {
		return
	}
	snap, err := s.app.Order(ref)
	if errors.Is(err, swap.ErrOrderNotFound) {
		respondError(w, http.StatusNotFound, "order not found", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "order lookup failed", err)
		return
	}
	respondJSON(w, newOrderInfo(snap))
}

func (s *Server) handleGetOrderEvents(w http.ResponseWriter, r *http.Request) {
	ref, ok := addressVar(w, r, "address")
	if !ok || !s.requireJournal(w) {
		return
	}
	rows, err := s.journal.ByOrder(r.Context(), ref, limitParam(r))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "journal query failed", err)
		return
	}
	respondJSON(w, newJournalEntries(rows))
}

func (s *Server) handleGetCatalog(w http.ResponseWriter, r *http.Request) {
	asset, ok := addressVar(w, r, "asset")
	if !ok {
		return
	}
	entries, err := s.app.Catalog(asset, limitParam(r))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "catalog query failed", err)
		return
	}
	out := make([]CatalogEntry, len(entries))
	for i, e := range entries {
		out[i] = CatalogEntry{Entry: e, UnitPriceDisplay: util.FormatUnits(e.UnitPrice)}
	}
	respondJSON(w, out)
}

// handleGetAccount returns native balance and nonce, plus token balances for
// the comma-separated ?assets= list.
func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressVar(w, r, "address")
	if !ok {
		return
	}
	var assets []common.Address
	if list := r.URL.Query().Get("assets"); list != "" {
		for _, a := range strings.Split(list, ",") {
			a = strings.TrimSpace(a)
			if !common.IsHexAddress(a) {
				respondError(w, http.StatusBadRequest, "invalid asset address", errors.New(a))
				return
			}
			assets = append(assets, common.HexToAddress(a))
		}
	}
	acct, err := s.app.Account(addr, assets...)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "account lookup failed", err)
		return
	}
	respondJSON(w, AccountInfo{Account: acct, NativeDisplay: util.FormatUnits(acct.Native)})
}

func (s *Server) handleGetFills(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressVar(w, r, "address")
	if !ok || !s.requireJournal(w) {
		return
	}
	rows, err := s.journal.ByCounterparty(r.Context(), addr, limitParam(r))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "journal query failed", err)
		return
	}
	respondJSON(w, newJournalEntries(rows))
}

func (s *Server) handleGetAllowance(w http.ResponseWriter, r *http.Request) {
	owner, ok := addressVar(w, r, "address")
	if !ok {
		return
	}
	asset, ok := addressVar(w, r, "asset")
	if !ok {
		return
	}
	spender, ok := addressVar(w, r, "spender")
	if !ok {
		return
	}
	n, err := s.app.Allowance(asset, owner, spender)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "allowance lookup failed", err)
		return
	}
	respondJSON(w, AllowanceInfo{Asset: asset.Hex(), Owner: owner.Hex(), Spender: spender.Hex(), Allowance: n})
}

func (s *Server) handleGetChainStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, ChainStatus{
		ChainID:     s.chainID,
		Height:      s.app.LastHeight(),
		MempoolSize: s.app.PendingTxs(),
		WSClients:   s.hub.Len(),
	})
}

func (s *Server) handleGetBlocks(w http.ResponseWriter, r *http.Request) {
	limit := limitParam(r)
	if limit <= 0 {
		limit = 20
	}
	blocks, err := s.app.Blocks(limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "block query failed", err)
		return
	}
	if blocks == nil {
		blocks = []swap.Block{}
	}
	respondJSON(w, blocks)
}

func (s *Server) handleGetBlock(w http.ResponseWriter, r *http.Request) {
	height, err := strconv.ParseUint(mux.Vars(r)["height"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid height", err)
		return
	}
	blk, ok, err := s.app.Block(height)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "block lookup failed", err)
		return
	}
	if !ok {
		respondError(w, http.StatusNotFound, "block not found", nil)
		return
	}
	respondJSON(w, blk)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Helper Functions
// ==============================

func (s *Server) requireJournal(w http.ResponseWriter) bool {
	if s.journal == nil {
		respondError(w, http.StatusNotImplemented, "journal disabled", nil)
		return false
	}
	return true
}

func addressVar(w http.ResponseWriter, r *http.Request, name string) (common.Address, bool) {
	raw := mux.Vars(r)[name]
	if !common.IsHexAddress(raw) {
		respondError(w, http.StatusBadRequest, "invalid "+name, nil)
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

// limitParam reads ?limit=, returning 0 (no limit) when absent or invalid.
func limitParam(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	respondJSONStatus(w, http.StatusOK, data)
}

func respondJSONStatus(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, msg string, err error) {
	resp := ErrorResponse{Error: msg}
	if err != nil {
		resp.Message = err.Error()
		resp.Kind = errorKind(err)
	}
	respondJSONStatus(w, status, resp)
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, transaction.ErrNonceTooLow):
		return "NonceTooLow"
	case errors.Is(err, transaction.ErrInvalidSignature):
		return "InvalidSignature"
	case errors.Is(err, transaction.ErrMalformed):
		return "Malformed"
	case errors.Is(err, mempool.ErrFull):
		return "MempoolFull"
	default:
		return ""
	}
}
