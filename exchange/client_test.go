package exchange

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRESTClientCreateOrder(t *testing.T) {
	var gotPath string
	var gotSign, gotKey string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotSign = r.Header.Get("X-BAPI-SIGN")
		gotKey = r.Header.Get("X-BAPI-API-KEY")
		io.WriteString(w, `{"retCode":0,"retMsg":"OK","result":{"orderId":"1001","orderLinkId":"lk-1"}}`)
	}))
	defer ts.Close()

	cli := &RESTClient{
		BaseURL:    ts.URL,
		APIKey:     "key",
		Secret:     "secret",
		HTTPClient: ts.Client(),
	}
	res, err := cli.CreateOrder(context.Background(), CreateOrderRequest{
		Symbol:    "BTCUSDT",
		Side:      SideBuy,
		OrderType: OrderTypeMarket,
		Qty:       0.04,
	})
	if err != nil {
		t.Fatalf("create err: %v", err)
	}
	if res.OrderID != "1001" || res.OrderLinkID != "lk-1" {
		t.Fatalf("unexpected result %+v", res)
	}
	if gotPath != "/v5/order/create" {
		t.Fatalf("path %s", gotPath)
	}
	if gotSign == "" || gotKey != "key" {
		t.Fatalf("missing auth headers")
	}
}

func TestRESTClientAPIError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"retCode":110043,"retMsg":"Set leverage has not been modified"}`)
	}))
	defer ts.Close()

	cli := &RESTClient{BaseURL: ts.URL, APIKey: "k", Secret: "s", HTTPClient: ts.Client()}
	err := cli.SetLeverage(context.Background(), "BTCUSDT", 3)
	if err == nil {
		t.Fatalf("expected APIError")
	}
	if !IsNotModified(err) {
		t.Fatalf("110043 should classify not-modified: %v", err)
	}
}

func TestRESTClientServerErrorIsTransport(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	cli := &RESTClient{BaseURL: ts.URL, HTTPClient: ts.Client()}
	_, err := cli.Ticker(context.Background(), "BTCUSDT")
	if !IsRetryable(err) {
		t.Fatalf("5xx should be retryable transport error, got %v", err)
	}
}

func TestRESTClientInstrumentInfo(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v5/market/instruments-info" {
			t.Fatalf("path %s", r.URL.Path)
		}
		io.WriteString(w, `{"retCode":0,"result":{"list":[{"symbol":"BTCUSDT",
			"priceFilter":{"tickSize":"0.1"},
			"lotSizeFilter":{"qtyStep":"0.001","minOrderQty":"0.001","minNotionalValue":"5"}}]}}`)
	}))
	defer ts.Close()

	cli := &RESTClient{BaseURL: ts.URL, HTTPClient: ts.Client()}
	info, err := cli.InstrumentInfo(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	if info.TickSize != 0.1 || info.StepSize != 0.001 || info.MinNotional != 5 {
		t.Fatalf("unexpected info %+v", info)
	}
}

func TestRESTClientPositionsFlat(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"retCode":0,"result":{"list":[{"symbol":"BTCUSDT","side":"","size":"0","avgPrice":"0","leverage":"3"}]}}`)
	}))
	defer ts.Close()

	cli := &RESTClient{BaseURL: ts.URL, APIKey: "k", Secret: "s", HTTPClient: ts.Client()}
	poss, err := cli.Positions(context.Background(), []string{"BTCUSDT"})
	if err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	if len(poss) != 1 || poss[0].Size != 0 || poss[0].Leverage != 3 {
		t.Fatalf("unexpected positions %+v", poss)
	}
}
