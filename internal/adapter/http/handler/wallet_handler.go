package handler

import (
	"strconv"

	"custodial-wallet-backend/internal/adapter/gateway/paystack"
	"custodial-wallet-backend/internal/adapter/http/dto"
	"custodial-wallet-backend/internal/adapter/http/middleware"
	"custodial-wallet-backend/internal/core/ports"
	"custodial-wallet-backend/pkg/apperror"
	"custodial-wallet-backend/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// WalletHandler handles wallet, transfer and deposit endpoints.
type WalletHandler struct {
	ledgerSvc  ports.LedgerService
	depositSvc ports.DepositService
	userRepo   ports.UserRepository
	verifier   ports.WebhookVerifier
	currency   string
	log        zerolog.Logger
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(
	ledgerSvc ports.LedgerService,
	depositSvc ports.DepositService,
	userRepo ports.UserRepository,
	verifier ports.WebhookVerifier,
	currency string,
	log zerolog.Logger,
) *WalletHandler {
	return &WalletHandler{
		ledgerSvc:  ledgerSvc,
		depositSvc: depositSvc,
		userRepo:   userRepo,
		verifier:   verifier,
		currency:   currency,
		log:        log,
	}
}

// GetBalance handles GET /api/v1/wallet/balance.
func (h *WalletHandler) GetBalance(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperror.ErrAuthenticationRequired())
		return
	}

	wallet, err := h.ledgerSvc.GetWallet(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.BalanceResponse{
		WalletNumber: wallet.WalletNumber,
		Balance:      wallet.Balance,
		Currency:     h.currency,
		IsActive:     wallet.IsActive,
	})
}

// Transfer handles POST /api/v1/wallet/transfer.
func (h *WalletHandler) Transfer(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperror.ErrAuthenticationRequired())
		return
	}

	var req dto.TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	result, err := h.ledgerSvc.Transfer(c.Request.Context(), ports.TransferRequest{
		UserID:              userID,
		DestinationWalletNo: req.RecipientWalletNumber,
		Amount:              req.Amount,
		Description:         req.Description,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.TransferResponse{
		Reference:     result.Reference,
		TransactionID: result.Debit.ID.String(),
		Amount:        result.Debit.Amount,
		Status:        string(result.Debit.Status),
	})
}

// Deposit handles POST /api/v1/wallet/deposit.
func (h *WalletHandler) Deposit(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperror.ErrAuthenticationRequired())
		return
	}

	var req dto.DepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	// The gateway needs the account email for its hosted checkout page.
	user, err := h.userRepo.GetByID(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, apperror.InternalError(err))
		return
	}
	if user == nil {
		response.Error(c, apperror.ErrNotFound("User"))
		return
	}

	intent, err := h.depositSvc.InitiateDeposit(c.Request.Context(), ports.DepositRequest{
		UserID: userID,
		Email:  user.Email,
		Amount: req.Amount,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.DepositResponse{
		TransactionID:    intent.Transaction.ID.String(),
		Reference:        intent.Reference,
		AuthorizationURL: intent.AuthorizationURL,
		Amount:           intent.Transaction.Amount,
		Message:          "Deposit initiated. Complete payment at the authorization URL.",
	})
}

// History handles GET /api/v1/wallet/transactions?offset=&limit=.
func (h *WalletHandler) History(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperror.ErrAuthenticationRequired())
		return
	}

	offset, limit := parsePagination(c)

	items, total, err := h.ledgerSvc.GetHistory(c.Request.Context(), ports.TransactionListParams{
		UserID: userID,
		Offset: offset,
		Limit:  limit,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	resp := dto.TransactionListResponse{
		Items:  make([]dto.TransactionResponse, 0, len(items)),
		Total:  total,
		Offset: offset,
		Limit:  limit,
	}
	for i := range items {
		resp.Items = append(resp.Items, dto.ToTransactionResponse(&items[i]))
	}
	response.OK(c, resp)
}

// VerifyDeposit handles GET /api/v1/wallet/deposit/verify/:reference.
// It queries the gateway directly, covering the case where the webhook was
// delayed or lost.
func (h *WalletHandler) VerifyDeposit(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperror.ErrAuthenticationRequired())
		return
	}

	tx, err := h.depositSvc.VerifyDeposit(c.Request.Context(), userID, c.Param("reference"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.ToTransactionResponse(tx))
}

// Webhook handles POST /api/v1/wallet/paystack/webhook. The signature is
// verified against the raw body before anything is parsed; a bad signature
// mutates nothing.
func (h *WalletHandler) Webhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		response.Error(c, apperror.Validation("cannot read request body"))
		return
	}

	signature := c.GetHeader("x-paystack-signature")
	if signature == "" || !h.verifier.Verify(body, signature) {
		h.log.Warn().Str("client_ip", c.ClientIP()).Msg("webhook signature verification failed")
		response.Error(c, apperror.ErrInvalidWebhookSignature())
		return
	}

	event, err := paystack.ParseWebhook(body)
	if err != nil {
		response.Error(c, apperror.Validation("malformed webhook payload"))
		return
	}

	if err := h.depositSvc.ProcessWebhook(c.Request.Context(), *event); err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.WebhookAck{Status: "success"})
}

func parsePagination(c *gin.Context) (offset, limit int) {
	offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))
	if offset < 0 {
		offset = 0
	}
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultHistoryLimit)))
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return offset, limit
}
