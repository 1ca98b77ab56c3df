package accounting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavitra93/voice-agent-saas/shared/apperr"
	"github.com/pavitra93/voice-agent-saas/shared/config"
	"github.com/pavitra93/voice-agent-saas/shared/utils"
)

func newTestClient(url string) *Client {
	return NewClient(&config.AccountingConfig{BaseURL: url, APIKey: "key-123", Timeout: 2 * time.Second}, nil)
}

func TestClient_CreateContact(t *testing.T) {
	var got map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/contacts", r.URL.Path)
		assert.Equal(t, "Bearer key-123", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"contact-42","version":1}`))
	}))
	defer server.Close()

	id, err := newTestClient(server.URL).CreateContact(context.Background(), Contact{
		CompanyName: "Praxis Dr. Weber",
		Email:       "info@weber.de",
		Street:      "Hauptstraße",
		HouseNumber: "5",
		PostalCode:  "10115",
		City:        "Berlin",
		VatID:       "DE123456789",
	})
	require.NoError(t, err)
	assert.Equal(t, "contact-42", id)

	company := got["company"].(map[string]interface{})
	assert.Equal(t, "Praxis Dr. Weber", company["name"])
	assert.Equal(t, "DE123456789", company["vatRegistrationId"])
	billing := got["addresses"].(map[string]interface{})["billing"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "Hauptstraße 5", billing["street"])
	assert.Equal(t, "DE", billing["countryCode"])
}

func TestClient_CreateInvoice(t *testing.T) {
	var got map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/invoices", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"inv-ext-1"}`))
	}))
	defer server.Close()

	id, err := newTestClient(server.URL).CreateInvoice(context.Background(), InvoiceDocument{
		ContactID:   "contact-42",
		VoucherDate: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		Title:       "Rechnung INV-2024-00001",
		Currency:    "EUR",
		LineItems: []LineItem{{
			Name:              "Voice Agent Service 01.03.2024 - 31.03.2024",
			Quantity:          decimal.NewFromInt(1),
			UnitName:          "Pauschale",
			UnitPriceNet:      decimal.RequireFromString("31.00"),
			TaxRatePercentage: decimal.NewFromInt(19),
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, "inv-ext-1", id)

	assert.Equal(t, "contact-42", got["address"].(map[string]interface{})["contactId"])
	items := got["lineItems"].([]interface{})
	require.Len(t, items, 1)
	price := items[0].(map[string]interface{})["unitPrice"].(map[string]interface{})
	assert.Equal(t, "31", price["netAmount"])
	assert.Equal(t, "19", price["taxRatePercentage"])
}

func TestClient_ErrorsCarryUpstreamBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"contactId unknown"}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	_, err := client.CreateInvoice(context.Background(), InvoiceDocument{Currency: "EUR"})

	require.Error(t, err)
	assert.True(t, apperr.IsExternal(err))
	assert.Equal(t, `{"message":"contactId unknown"}`, apperr.DetailsOf(err))
	assert.Equal(t, utils.StateClosed, client.breaker.GetState(), "client errors do not trip the breaker")
}

func TestClient_BreakerOpensOnServerErrors(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	for i := 0; i < 5; i++ {
		_, err := client.CreateContact(context.Background(), Contact{CompanyName: "x"})
		assert.True(t, apperr.IsExternal(err))
	}
	assert.Equal(t, utils.StateOpen, client.breaker.GetState())

	_, err := client.CreateContact(context.Background(), Contact{CompanyName: "x"})
	assert.True(t, apperr.IsExternal(err))
	assert.ErrorIs(t, err, utils.ErrCircuitOpen)
	assert.Equal(t, int32(5), atomic.LoadInt32(&hits))
	assert.Equal(t, "open", string(client.GetStatus()["circuit_state"].(utils.CircuitState)))
}

func TestClient_RespectsContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newTestClient(server.URL).CreateContact(ctx, Contact{CompanyName: "x"})
	assert.True(t, apperr.IsExternal(err))
}

func TestClient_RejectsResponseWithoutID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).CreateContact(context.Background(), Contact{CompanyName: "x"})
	assert.True(t, apperr.IsExternal(err))
}
