package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hearthside/chorebank/internal/model"
	"github.com/hearthside/chorebank/internal/quota"
	"github.com/hearthside/chorebank/internal/store"
	"github.com/hearthside/chorebank/internal/websocket"
)

type LedgerHandler struct {
	ledger  *store.LedgerStore
	members *store.FamilyMemberStore
	hub     *websocket.Hub
	logger  *slog.Logger
}

func NewLedgerHandler(ls *store.LedgerStore, ms *store.FamilyMemberStore, hub *websocket.Hub, logger *slog.Logger) *LedgerHandler {
	return &LedgerHandler{ledger: ls, members: ms, hub: hub, logger: logger}
}

func (h *LedgerHandler) broadcast(msg websocket.Message) {
	if h.hub != nil {
		h.hub.Broadcast(msg)
	}
}

// Balance returns the live sum over the member's transactions.
func (h *LedgerHandler) Balance(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	member, err := h.members.GetByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get member")
		return
	}
	if member == nil {
		writeError(w, http.StatusNotFound, "member not found")
		return
	}

	balance, err := h.ledger.BalanceForMember(id)
	if err != nil {
		h.logger.Error("balance", "member_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to compute balance")
		return
	}

	writeJSON(w, http.StatusOK, model.Balance{
		MemberID:   member.ID,
		MemberName: member.Name,
		Balance:    balance,
	})
}

func (h *LedgerHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	txns, err := h.ledger.ListByMember(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list transactions")
		return
	}
	if txns == nil {
		txns = []model.LedgerTransaction{}
	}
	writeJSON(w, http.StatusOK, txns)
}

type postingRequest struct {
	ActorID     int64           `json:"actor_id"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

// Payout records money leaving a member's account (allowance paid out in
// cash). Parent only; the stored amount is always negative.
func (h *LedgerHandler) Payout(w http.ResponseWriter, r *http.Request) {
	h.post(w, r, model.TxPayout, true)
}

// Adjustment posts a signed manual correction. Parent only.
func (h *LedgerHandler) Adjustment(w http.ResponseWriter, r *http.Request) {
	h.post(w, r, model.TxAdjustment, false)
}

func (h *LedgerHandler) post(w http.ResponseWriter, r *http.Request, txType model.TransactionType, forceNegative bool) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	var req postingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Amount.IsZero() {
		writeError(w, http.StatusBadRequest, "amount is required")
		return
	}

	actor, err := h.members.GetByID(req.ActorID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get actor")
		return
	}
	if actor == nil || !actor.Role.Privileged() {
		writeError(w, http.StatusForbidden, "parent role required")
		return
	}

	member, err := h.members.GetByID(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get member")
		return
	}
	if member == nil {
		writeError(w, http.StatusNotFound, "member not found")
		return
	}

	amount := req.Amount.Round(2)
	if forceNegative {
		amount = amount.Abs().Neg()
	}

	account, err := h.ledger.EnsureDefaultAccount(h.ledger.DB(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to resolve account")
		return
	}

	txn, err := h.ledger.CreateTransaction(h.ledger.DB(), &model.LedgerTransaction{
		AccountID:       account.ID,
		MemberID:        id,
		Amount:          amount,
		Type:            txType,
		Description:     req.Description,
		TransactionDate: time.Now().Format(quota.DateLayout),
	})
	if err != nil {
		h.logger.Error("post transaction", "member_id", id, "type", txType, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to post transaction")
		return
	}

	h.broadcast(websocket.NewMessage(websocket.EntityLedger, websocket.ActionPosted, txn.ID, map[string]any{
		"member_id": id,
		"type":      string(txType),
	}))
	writeJSON(w, http.StatusCreated, txn)
}
