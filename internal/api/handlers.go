package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/abkawan/banking-transfers/internal/models"
	"github.com/abkawan/banking-transfers/internal/service"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Handler is for handling api requests
type Handler struct {
	accountService  *service.AccountService
	transferService *service.TransferService
	logger          *zap.Logger
}

func NewHandler(accountService *service.AccountService, transferService *service.TransferService, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		accountService:  accountService,
		transferService: transferService,
		logger:          logger,
	}
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// for error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondServiceError maps domain errors to status codes. Unknown errors
// are logged and reported generically.
func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidTransfer):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrAccountNotFound):
		respondError(w, http.StatusNotFound, "account not found")
	case errors.Is(err, models.ErrUserNotFound):
		respondError(w, http.StatusNotFound, "user not found")
	case errors.Is(err, models.ErrUserExists):
		respondError(w, http.StatusConflict, "user already exists")
	case errors.Is(err, models.ErrNoPendingTransfer):
		respondError(w, http.StatusConflict, "no pending transfer")
	case errors.Is(err, models.ErrNotAccountOwner):
		respondError(w, http.StatusForbidden, "source account does not belong to user")
	case errors.Is(err, service.ErrHistoryUnavailable):
		respondError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, models.ErrAtomicCommitFailure):
		h.logger.Error("transfer failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "transfer failed")
	default:
		h.logger.Error("request failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func paging(r *http.Request) (limit, offset int) {
	// default limit is set to 10
	limit = 10
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v >= 0 {
		offset = v
	}
	return limit, offset
}

// customer onboarding
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req models.CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	account, err := h.accountService.CreateAccount(r.Context(), &req)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, account)
}

func (h *Handler) CreateCashAccount(w http.ResponseWriter, r *http.Request) {
	var req models.CreateCashAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	account, err := h.accountService.CreateCashAccount(r.Context(), &req)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, account)
}

func (h *Handler) CreateCreditAccount(w http.ResponseWriter, r *http.Request) {
	var req models.CreateCreditAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	account, err := h.accountService.CreateCreditAccount(r.Context(), &req)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, account)
}

func (h *Handler) GetCashAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.accountService.CashAccounts(r.Context(), mux.Vars(r)["username"])
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, accounts)
}

func (h *Handler) GetCreditAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.accountService.CreditAccounts(r.Context(), mux.Vars(r)["username"])
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, accounts)
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := h.accountService.Balance(r.Context(), mux.Vars(r)["number"])
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, balance)
}

func (h *Handler) GetActivity(w http.ResponseWriter, r *http.Request) {
	limit, offset := paging(r)
	records, err := h.accountService.Activity(r.Context(), mux.Vars(r)["number"], limit, offset)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, records)
}

func (h *Handler) GetTransferHistory(w http.ResponseWriter, r *http.Request) {
	limit, offset := paging(r)
	events, err := h.accountService.History(r.Context(), mux.Vars(r)["number"], limit, offset)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, events)
}

// GetTransfers lists the transfers made by the caller.
func (h *Handler) GetTransfers(w http.ResponseWriter, r *http.Request) {
	limit, offset := paging(r)
	transfers, err := h.accountService.Transfers(r.Context(), usernameFrom(r.Context()), limit, offset)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, transfers)
}

// ProposeTransfer answers 202 when the transfer awaits confirmation and
// 201 when it was committed.
func (h *Handler) ProposeTransfer(w http.ResponseWriter, r *http.Request) {
	var req models.TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	res, err := h.transferService.Propose(r.Context(), sessionFrom(r.Context()), usernameFrom(r.Context()), &req, requiresReview(r, req.RequiresReview))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	status := http.StatusCreated
	if res.State == models.Pending {
		status = http.StatusAccepted
	}
	respondJSON(w, status, res)
}

func (h *Handler) ConfirmTransfer(w http.ResponseWriter, r *http.Request) {
	var req models.ConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	if req.Action != "confirm" {
		respondError(w, http.StatusBadRequest, "unsupported action")
		return
	}

	res, err := h.transferService.Confirm(r.Context(), sessionFrom(r.Context()))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, res)
}

// handles health check
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// sets up the API routes
func SetupRoutes(r *mux.Router, h *Handler) {
	// Health check (check if API is working)
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Onboarding and dashboard
	r.HandleFunc("/accounts", h.CreateAccount).Methods("POST")
	r.HandleFunc("/cash-accounts", h.CreateCashAccount).Methods("POST")
	r.HandleFunc("/credit-accounts", h.CreateCreditAccount).Methods("POST")
	r.HandleFunc("/users/{username}/cash-accounts", h.GetCashAccounts).Methods("GET")
	r.HandleFunc("/users/{username}/credit-accounts", h.GetCreditAccounts).Methods("GET")
	r.HandleFunc("/accounts/{number}/balance", h.GetBalance).Methods("GET")
	r.HandleFunc("/accounts/{number}/activity", h.GetActivity).Methods("GET")
	r.HandleFunc("/accounts/{number}/transfers", h.GetTransferHistory).Methods("GET")

	// Transfer routes
	tr := r.PathPrefix("/transfers").Subrouter()
	tr.Use(requireIdentity, withSession)
	tr.HandleFunc("", h.ProposeTransfer).Methods("POST")
	tr.HandleFunc("", h.GetTransfers).Methods("GET")
	tr.HandleFunc("/confirm", h.ConfirmTransfer).Methods("POST")
}
