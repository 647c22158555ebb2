package integration

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"custodial-wallet-backend/internal/adapter/gateway/paystack"
	httpHandler "custodial-wallet-backend/internal/adapter/http/handler"
	redisStorage "custodial-wallet-backend/internal/adapter/storage/redis"
	"custodial-wallet-backend/internal/core/domain"
	"custodial-wallet-backend/internal/core/ports"
	"custodial-wallet-backend/internal/service"
	"custodial-wallet-backend/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testApp builds the full application stack on in-memory repositories, a fake
// gateway and miniredis. The real HTTP layer, middleware, handlers and
// services are exercised end-to-end.

const integrationWebhookSecret = "sk_test_integration_secret"

type testApp struct {
	server  *httptest.Server
	redis   *miniredis.Miniredis
	gateway *fakeGateway
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	log := logger.New("error", false)

	// In-memory repos
	userRepo := newInMemoryUserRepo()
	walletRepo := newInMemoryWalletRepo()
	txRepo := newInMemoryTransactionRepo()
	auditRepo := newInMemoryAuditRepo()
	keyRepo := newInMemoryAPIKeyRepo()
	transactor := newInMemoryTransactor()
	gateway := newFakeGateway()

	// Core services with real implementations
	hashSvc := service.NewArgon2HashService()
	tokenSvc := service.NewJWTTokenService("test-jwt-secret-key-32bytes!!", 24*time.Hour, "test-issuer")
	verifier := paystack.NewSignatureVerifier(integrationWebhookSecret)

	// Business services
	authSvc := service.NewAuthService(userRepo, walletRepo, tokenSvc, log)
	ledgerSvc := service.NewLedgerService(walletRepo, txRepo, auditRepo, transactor, log)
	depositSvc := service.NewDepositService(walletRepo, txRepo, auditRepo, transactor, gateway, service.DepositConfig{
		MinDeposit:  decimal.RequireFromString("50.00"),
		Currency:    "NGN",
		CallbackURL: "https://app.example.com/wallet/callback",
	}, log)
	apikeySvc := service.NewAPIKeyService(keyRepo, userRepo, hashSvc, transactor, log)

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		AuthSvc:         authSvc,
		LedgerSvc:       ledgerSvc,
		DepositSvc:      depositSvc,
		APIKeySvc:       apikeySvc,
		TokenSvc:        tokenSvc,
		UserRepo:        userRepo,
		WebhookVerifier: verifier,
		RateLimitStore:  redisStorage.NewRateLimitStore(rdb),
		HealthCheckers:  []ports.HealthChecker{redisStorage.NewHealthCheck(rdb)},
		Currency:        "NGN",
		Logger:          log,
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testApp{server: server, redis: mr, gateway: gateway}
}

// --- helpers ---

type envelope struct {
	Data      json.RawMessage `json:"data"`
	ErrorCode string          `json:"error_code"`
	Message   string          `json:"message"`
}

func (a *testApp) do(t *testing.T, method, path, token string, body interface{}) (*http.Response, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, a.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp, env
}

func (a *testApp) login(t *testing.T, sub, email string) string {
	t.Helper()
	resp, env := a.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"google_sub": sub,
		"email":      email,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var data struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.NotEmpty(t, data.Token)
	return data.Token
}

type balanceData struct {
	WalletNumber string `json:"wallet_number"`
	Balance      string `json:"balance"`
	Currency     string `json:"currency"`
}

func (a *testApp) balance(t *testing.T, token string) balanceData {
	t.Helper()
	resp, env := a.do(t, http.MethodGet, "/api/v1/wallet/balance", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var data balanceData
	require.NoError(t, json.Unmarshal(env.Data, &data))
	return data
}

func (a *testApp) initiateDeposit(t *testing.T, token, amount string) string {
	t.Helper()
	resp, env := a.do(t, http.MethodPost, "/api/v1/wallet/deposit", token, map[string]string{
		"amount": amount,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var data struct {
		Reference        string `json:"reference"`
		AuthorizationURL string `json:"authorization_url"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.NotEmpty(t, data.Reference)
	require.NotEmpty(t, data.AuthorizationURL)
	return data.Reference
}

func signWebhook(body []byte) string {
	mac := hmac.New(sha512.New, []byte(integrationWebhookSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func chargeSuccessBody(reference string, amountKobo int64) []byte {
	body, _ := json.Marshal(map[string]interface{}{
		"event": "charge.success",
		"data": map[string]interface{}{
			"reference": reference,
			"status":    "success",
			"amount":    amountKobo,
			"currency":  "NGN",
		},
	})
	return body
}

func (a *testApp) deliverWebhook(t *testing.T, body []byte, signature string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, a.server.URL+"/api/v1/wallet/paystack/webhook", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set("x-paystack-signature", signature)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	return resp
}

// fund settles a deposit of the given amount into the token's wallet via the
// full deposit + webhook path.
func (a *testApp) fund(t *testing.T, token, amount string) {
	t.Helper()
	reference := a.initiateDeposit(t, token, amount)
	kobo := decimal.RequireFromString(amount).Shift(2).IntPart()
	body := chargeSuccessBody(reference, kobo)
	resp := a.deliverWebhook(t, body, signWebhook(body))
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

// --- Integration Tests ---

func TestIntegration_HealthCheck(t *testing.T) {
	app := newTestApp(t)

	resp, err := http.Get(app.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
}

func TestIntegration_LoginProvisionsWallet(t *testing.T) {
	app := newTestApp(t)

	token := app.login(t, "google-sub-1", "alice@example.com")
	bal := app.balance(t, token)

	assert.Len(t, bal.WalletNumber, 9)
	assert.Equal(t, "WAL", bal.WalletNumber[:3])
	assert.True(t, decimal.RequireFromString(bal.Balance).IsZero())
	assert.Equal(t, "NGN", bal.Currency)

	// Second login with the same subject reuses the wallet.
	token2 := app.login(t, "google-sub-1", "alice@example.com")
	bal2 := app.balance(t, token2)
	assert.Equal(t, bal.WalletNumber, bal2.WalletNumber)
}

func TestIntegration_DepositWebhookSettles(t *testing.T) {
	app := newTestApp(t)

	token := app.login(t, "google-sub-1", "alice@example.com")
	reference := app.initiateDeposit(t, token, "100.00")

	body := chargeSuccessBody(reference, 10000)
	resp := app.deliverWebhook(t, body, signWebhook(body))
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	bal := app.balance(t, token)
	assert.True(t, decimal.RequireFromString(bal.Balance).Equal(decimal.RequireFromString("100.00")))

	// Redelivery is a no-op: the wallet is credited exactly once.
	for i := 0; i < 3; i++ {
		resp := app.deliverWebhook(t, body, signWebhook(body))
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
	bal = app.balance(t, token)
	assert.True(t, decimal.RequireFromString(bal.Balance).Equal(decimal.RequireFromString("100.00")))

	// Verification endpoint reports the settled transaction.
	verifyResp, env := app.do(t, http.MethodGet, "/api/v1/wallet/deposit/verify/"+reference, token, nil)
	assert.Equal(t, http.StatusOK, verifyResp.StatusCode)
	var tx struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &tx))
	assert.Equal(t, string(domain.TransactionStatusCompleted), tx.Status)
}

func TestIntegration_WebhookAmountMismatch(t *testing.T) {
	app := newTestApp(t)

	token := app.login(t, "google-sub-1", "alice@example.com")
	reference := app.initiateDeposit(t, token, "100.00")

	// Gateway claims 99.99 for a 100.00 deposit.
	body := chargeSuccessBody(reference, 9999)
	resp := app.deliverWebhook(t, body, signWebhook(body))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	bal := app.balance(t, token)
	assert.True(t, decimal.RequireFromString(bal.Balance).IsZero(), "mismatched amount must never be credited")

	// The deposit is now terminal; even a correct redelivery cannot revive it.
	correct := chargeSuccessBody(reference, 10000)
	resp = app.deliverWebhook(t, correct, signWebhook(correct))
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	bal = app.balance(t, token)
	assert.True(t, decimal.RequireFromString(bal.Balance).IsZero())
}

func TestIntegration_WebhookBadSignature(t *testing.T) {
	app := newTestApp(t)

	token := app.login(t, "google-sub-1", "alice@example.com")
	reference := app.initiateDeposit(t, token, "100.00")

	body := chargeSuccessBody(reference, 10000)

	resp := app.deliverWebhook(t, body, "deadbeef")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = app.deliverWebhook(t, body, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	bal := app.balance(t, token)
	assert.True(t, decimal.RequireFromString(bal.Balance).IsZero())
}

func TestIntegration_TransferConservesFunds(t *testing.T) {
	app := newTestApp(t)

	tokenA := app.login(t, "google-sub-a", "alice@example.com")
	tokenB := app.login(t, "google-sub-b", "bob@example.com")
	app.fund(t, tokenA, "500.00")

	walletB := app.balance(t, tokenB).WalletNumber

	resp, env := app.do(t, http.MethodPost, "/api/v1/wallet/transfer", tokenA, map[string]interface{}{
		"recipient_wallet_number": walletB,
		"amount":                  "200.00",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var transfer struct {
		Reference string `json:"reference"`
		Status    string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &transfer))
	assert.Contains(t, transfer.Reference, "transfer_")
	assert.Equal(t, string(domain.TransactionStatusCompleted), transfer.Status)

	balA := decimal.RequireFromString(app.balance(t, tokenA).Balance)
	balB := decimal.RequireFromString(app.balance(t, tokenB).Balance)
	assert.True(t, balA.Equal(decimal.RequireFromString("300.00")))
	assert.True(t, balB.Equal(decimal.RequireFromString("200.00")))
	assert.True(t, balA.Add(balB).Equal(decimal.RequireFromString("500.00")), "transfers move money, never create it")

	// Both sides see the transfer in their history.
	for _, token := range []string{tokenA, tokenB} {
		resp, env := app.do(t, http.MethodGet, "/api/v1/wallet/transactions", token, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var page struct {
			Items []struct {
				Reference string `json:"reference"`
			} `json:"items"`
			Total int64 `json:"total"`
		}
		require.NoError(t, json.Unmarshal(env.Data, &page))
		found := false
		for _, item := range page.Items {
			if item.Reference == transfer.Reference {
				found = true
			}
		}
		assert.True(t, found, "transfer should appear in history")
	}
}

func TestIntegration_TransferRejections(t *testing.T) {
	app := newTestApp(t)

	tokenA := app.login(t, "google-sub-a", "alice@example.com")
	tokenB := app.login(t, "google-sub-b", "bob@example.com")
	app.fund(t, tokenA, "100.00")

	walletA := app.balance(t, tokenA).WalletNumber
	walletB := app.balance(t, tokenB).WalletNumber

	// Insufficient funds
	resp, env := app.do(t, http.MethodPost, "/api/v1/wallet/transfer", tokenA, map[string]interface{}{
		"recipient_wallet_number": walletB,
		"amount":                  "100.01",
	})
	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	assert.Equal(t, "WAL_001", env.ErrorCode)

	// Self transfer
	resp, env = app.do(t, http.MethodPost, "/api/v1/wallet/transfer", tokenA, map[string]interface{}{
		"recipient_wallet_number": walletA,
		"amount":                  "10.00",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "WAL_003", env.ErrorCode)

	// Unknown destination
	resp, env = app.do(t, http.MethodPost, "/api/v1/wallet/transfer", tokenA, map[string]interface{}{
		"recipient_wallet_number": "WALZZZZZZ",
		"amount":                  "10.00",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "WAL_002", env.ErrorCode)

	// Failed transfers move nothing.
	bal := app.balance(t, tokenA)
	assert.True(t, decimal.RequireFromString(bal.Balance).Equal(decimal.RequireFromString("100.00")))
}

func TestIntegration_APIKeyLifecycle(t *testing.T) {
	app := newTestApp(t)

	token := app.login(t, "google-sub-1", "alice@example.com")
	app.fund(t, token, "100.00")
	tokenB := app.login(t, "google-sub-2", "bob@example.com")
	walletB := app.balance(t, tokenB).WalletNumber

	// Mint a key with write permission.
	resp, env := app.do(t, http.MethodPost, "/api/v1/keys/create", token, map[string]interface{}{
		"name":        "ci-deploy",
		"permissions": []string{domain.PermissionWalletWrite},
		"expiry":      "30D",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created struct {
		Key struct {
			ID string `json:"id"`
		} `json:"key"`
		Secret string `json:"secret"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))
	require.NotEmpty(t, created.Secret)
	assert.Equal(t, "cwk_", created.Secret[:4])

	// The key authenticates reads and permitted writes.
	req, _ := http.NewRequest(http.MethodGet, app.server.URL+"/api/v1/wallet/balance", nil)
	req.Header.Set("x-api-key", created.Secret)
	r, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	r.Body.Close()
	assert.Equal(t, http.StatusOK, r.StatusCode)

	transferBody, _ := json.Marshal(map[string]interface{}{
		"recipient_wallet_number": walletB,
		"amount":                  "25.00",
	})
	req, _ = http.NewRequest(http.MethodPost, app.server.URL+"/api/v1/wallet/transfer", bytes.NewReader(transferBody))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", created.Secret)
	r, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	r.Body.Close()
	assert.Equal(t, http.StatusCreated, r.StatusCode)

	// A key cannot manage keys.
	req, _ = http.NewRequest(http.MethodGet, app.server.URL+"/api/v1/keys", nil)
	req.Header.Set("x-api-key", created.Secret)
	r, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	r.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, r.StatusCode)

	// Revoked keys stop working immediately.
	resp, _ = app.do(t, http.MethodPost, "/api/v1/keys/"+created.Key.ID+"/revoke", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	req, _ = http.NewRequest(http.MethodGet, app.server.URL+"/api/v1/wallet/balance", nil)
	req.Header.Set("x-api-key", created.Secret)
	r, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	r.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, r.StatusCode)
}

func TestIntegration_APIKeyCeiling(t *testing.T) {
	app := newTestApp(t)

	token := app.login(t, "google-sub-1", "alice@example.com")

	for i := 0; i < domain.MaxActiveAPIKeys; i++ {
		resp, _ := app.do(t, http.MethodPost, "/api/v1/keys/create", token, map[string]interface{}{
			"name":        fmt.Sprintf("key-%d", i),
			"permissions": []string{"wallet:read"},
			"expiry":      "1M",
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	// The sixth active key is rejected.
	resp, env := app.do(t, http.MethodPost, "/api/v1/keys/create", token, map[string]interface{}{
		"name":        "one-too-many",
		"permissions": []string{"wallet:read"},
		"expiry":      "1M",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "KEY_001", env.ErrorCode)
}

func TestIntegration_DepositBelowMinimum(t *testing.T) {
	app := newTestApp(t)

	token := app.login(t, "google-sub-1", "alice@example.com")

	resp, env := app.do(t, http.MethodPost, "/api/v1/wallet/deposit", token, map[string]string{
		"amount": "49.99",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "PAY_002", env.ErrorCode)
}

func TestIntegration_UnknownWebhookReference(t *testing.T) {
	app := newTestApp(t)

	token := app.login(t, "google-sub-1", "alice@example.com")

	// A well-signed event whose reference we never issued is refused, and no
	// wallet is touched.
	body := chargeSuccessBody("dep_never_initiated_0000", 10000)
	resp := app.deliverWebhook(t, body, signWebhook(body))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	bal := app.balance(t, token)
	assert.True(t, decimal.RequireFromString(bal.Balance).IsZero())
}
