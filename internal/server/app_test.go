package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sudo-init-do/servicehub/internal/clock"
	"github.com/sudo-init-do/servicehub/internal/config"
	"github.com/sudo-init-do/servicehub/internal/tasks"
	"github.com/sudo-init-do/servicehub/internal/user"
)

func testConfig(policy string) *config.Config {
	cfg := &config.Config{}
	cfg.Server.Origin = "*"
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Auth.TokenTTL = time.Hour
	cfg.Auth.AdminPhones = []string{"0190000000"}
	cfg.Payments.Policy = policy
	cfg.Payments.CommissionRate = "0.10"
	cfg.Payments.SettlementDelay = 2 * time.Second
	cfg.Payments.WithdrawalDelay = 3 * time.Second
	cfg.Payments.VerificationCodes = []string{"1234", "2024"}
	cfg.Payments.MerchantNumbers = map[string]string{"mtn": "0166344282", "celtis": "0144110208"}
	return cfg
}

type testApp struct {
	*App
	clock *clock.Manual
}

func setupApp(t *testing.T, policy string) *testApp {
	t.Helper()
	c := clock.NewManual(time.Now())
	app, err := NewApp(Options{
		Config:    testConfig(policy),
		Clock:     c,
		Scheduler: tasks.NewClockScheduler(c, zerolog.Nop()),
		Hasher:    user.BcryptHasher{Cost: bcrypt.MinCost},
		Log:       zerolog.Nop(),
	})
	require.NoError(t, err)
	return &testApp{App: app, clock: c}
}

func (a *testApp) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		b, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.Echo.ServeHTTP(w, req)
	return w
}

type session struct {
	Success bool      `json:"success"`
	Token   string    `json:"token"`
	User    user.User `json:"user"`
}

func (a *testApp) register(t *testing.T, name, phone string, role user.Role) session {
	t.Helper()
	w := a.do(http.MethodPost, "/register", "", echoMap{"fullName": name, "phone": phone, "password": "secret", "userType": role})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var s session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &s))
	require.True(t, s.Success)
	require.NotEmpty(t, s.Token)
	return s
}

type echoMap = map[string]interface{}

func decode(t *testing.T, w *httptest.ResponseRecorder) echoMap {
	t.Helper()
	var m echoMap
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m), w.Body.String())
	return m
}

func TestAuthFlow(t *testing.T) {
	a := setupApp(t, "deferred")
	a.register(t, "Ama", "0100000001", user.RoleProvider)

	w := a.do(http.MethodPost, "/register", "", echoMap{"fullName": "Ama 2", "phone": "0100000001", "password": "x"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "DUPLICATE_IDENTITY", decode(t, w)["code"])

	w = a.do(http.MethodPost, "/login", "", echoMap{"phone": "0100000001", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = a.do(http.MethodPost, "/login", "", echoMap{"phone": "0199999999", "password": "secret"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = a.do(http.MethodPost, "/login", "", echoMap{"phone": "0100000001", "password": "secret"})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.NotEmpty(t, body["token"])
	assert.NotContains(t, w.Body.String(), "passwordHash")

	w = a.do(http.MethodGet, "/me", body["token"].(string), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = a.do(http.MethodGet, "/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMarketplaceScenario(t *testing.T) {
	a := setupApp(t, "deferred")
	provider := a.register(t, "Ama", "0100000001", user.RoleProvider)
	client := a.register(t, "Kofi", "0100000002", user.RoleClient)

	w := a.do(http.MethodPost, "/listings", client.Token, echoMap{"title": "Nope", "price": 10})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = a.do(http.MethodPost, "/listings", provider.Token, echoMap{"title": "Plumbing", "price": 1000, "category": "home", "location": "Cotonou"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	listingID := decode(t, w)["service"].(map[string]interface{})["id"].(string)

	w = a.do(http.MethodGet, "/listings?category=home&location=coto", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var found []echoMap
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &found))
	require.Len(t, found, 1)

	w = a.do(http.MethodPost, "/transactions/payment", client.Token, echoMap{"serviceId": listingID, "amount": 1000, "operator": "mtn", "userNumber": "0160000000"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	tx := decode(t, w)["transaction"].(map[string]interface{})
	assert.Equal(t, "pending", tx["status"])
	assert.Equal(t, float64(100), tx["commission"])
	assert.Equal(t, float64(900), tx["providerAmount"])

	w = a.do(http.MethodPost, "/listings/"+listingID+"/complete", provider.Token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "MISSING_SETTLEMENT", decode(t, w)["code"])

	a.clock.Advance(2 * time.Second)

	w = a.do(http.MethodGet, "/me", provider.Token, nil)
	assert.Equal(t, float64(900), decode(t, w)["balance"])

	w = a.do(http.MethodGet, "/listings", "", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &found))
	assert.Empty(t, found, "in-progress listings leave the search")

	w = a.do(http.MethodPost, "/listings/"+listingID+"/complete", provider.Token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "completed", decode(t, w)["service"].(map[string]interface{})["status"])

	w = a.do(http.MethodGet, "/me", provider.Token, nil)
	me := decode(t, w)
	assert.Equal(t, float64(1), me["completedServices"])
	assert.Equal(t, 5.0, me["rating"])

	w = a.do(http.MethodGet, "/stats", provider.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode(t, w)
	assert.Equal(t, float64(100), stats["platform"].(map[string]interface{})["totalCommission"])
	assert.Equal(t, float64(900), stats["user"].(map[string]interface{})["totalEarnings"])

	w = a.do(http.MethodPost, "/withdraw", provider.Token, echoMap{"amount": 900, "operator": "mtn", "withdrawalNumber": "0161111111"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	a.clock.Advance(3 * time.Second)

	w = a.do(http.MethodGet, "/me", provider.Token, nil)
	assert.Equal(t, float64(0), decode(t, w)["balance"])

	w = a.do(http.MethodPost, "/withdraw", provider.Token, echoMap{"amount": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INSUFFICIENT_BALANCE", decode(t, w)["code"])

	w = a.do(http.MethodGet, "/me/transactions", provider.Token, nil)
	var history []echoMap
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
	require.Len(t, history, 2)
	assert.Equal(t, "withdrawal", history[0]["type"])
}

func TestVerificationSoftFailure(t *testing.T) {
	a := setupApp(t, "verification")
	provider := a.register(t, "Ama", "0100000001", user.RoleProvider)
	client := a.register(t, "Kofi", "0100000002", user.RoleClient)
	admin := a.register(t, "Ops", "0190000000", user.RoleClient)

	w := a.do(http.MethodPost, "/listings", provider.Token, echoMap{"title": "Plumbing", "price": 1000})
	listingID := decode(t, w)["service"].(map[string]interface{})["id"].(string)

	w = a.do(http.MethodPost, "/transactions/payment", client.Token, echoMap{"serviceId": listingID, "amount": 1000, "confirmCode": "9999"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["success"])

	w = a.do(http.MethodGet, "/me/transactions", client.Token, nil)
	assert.JSONEq(t, "[]", w.Body.String())

	w = a.do(http.MethodPost, "/transactions/payment", client.Token, echoMap{"serviceId": listingID, "amount": 1000, "confirmCode": "1234", "operator": "celtis"})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	txID := body["transaction"].(map[string]interface{})["id"].(string)
	assert.Equal(t, "awaiting_confirmation", body["transaction"].(map[string]interface{})["status"])
	assert.Equal(t, "0144110208", body["instructions"].(map[string]interface{})["merchantNumbers"].(map[string]interface{})["celtis"])

	w = a.do(http.MethodPost, "/admin/transactions/"+txID+"/confirm", client.Token, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = a.do(http.MethodPost, "/admin/transactions/"+txID+"/confirm", admin.Token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	a.clock.Advance(2 * time.Second)

	w = a.do(http.MethodGet, "/me", provider.Token, nil)
	assert.Equal(t, float64(900), decode(t, w)["balance"])
}

func TestConversationRoutes(t *testing.T) {
	a := setupApp(t, "deferred")
	provider := a.register(t, "Ama", "0100000001", user.RoleProvider)
	client := a.register(t, "Kofi", "0100000002", user.RoleClient)
	outsider := a.register(t, "Yao", "0100000003", user.RoleClient)

	w := a.do(http.MethodPost, "/conversations", client.Token, echoMap{"otherUserId": provider.User.ID, "initialMessage": "bonjour"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	convID := decode(t, w)["conversation"].(map[string]interface{})["id"].(string)

	w = a.do(http.MethodPost, "/conversations", provider.Token, echoMap{"otherUserId": client.User.ID})
	assert.Equal(t, convID, decode(t, w)["conversation"].(map[string]interface{})["id"])

	w = a.do(http.MethodPost, "/conversations/"+convID+"/messages", outsider.Token, echoMap{"content": "hi"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = a.do(http.MethodGet, "/conversations", provider.Token, nil)
	var inbox []echoMap
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &inbox))
	require.Len(t, inbox, 1)
	assert.Equal(t, float64(1), inbox[0]["unreadCount"])
	assert.Equal(t, "Kofi", inbox[0]["otherUser"].(map[string]interface{})["fullName"])

	w = a.do(http.MethodGet, "/conversations/"+convID+"/messages", provider.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = a.do(http.MethodGet, "/conversations/unread", provider.Token, nil)
	assert.Equal(t, float64(0), decode(t, w)["unread"])

	w = a.do(http.MethodPost, "/conversations/"+convID+"/read", provider.Token, nil)
	assert.Equal(t, float64(0), decode(t, w)["marked"])
}

func TestHealth(t *testing.T) {
	a := setupApp(t, "deferred")
	w := a.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = a.do(http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
