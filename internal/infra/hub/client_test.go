package hub

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"castgate/internal/domain"
)

func testMessage(t *testing.T) SignedMessage {
	t.Helper()
	key, err := domain.ParseSigningKey(domain.Secret(rfc8032Seed))
	if err != nil {
		t.Fatalf("parse key: %v", err)
	}
	data, err := EncodeMessageData(5, NetworkMainnet, testTime, domain.LinkAdd{TargetFID: 6})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	msg, err := Sign(key, data)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return msg
}

func TestSubmitFailsOverToNextHub(t *testing.T) {
	var firstCalls int32
	first := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&firstCalls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"errCode":"unavailable","message":"down"}`))
	}))
	defer first.Close()
	msg := testMessage(t)
	second := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/submitMessage" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Content-Type") != "application/octet-stream" || r.Header.Get("api_key") != "secret" {
			t.Errorf("unexpected headers %v", r.Header)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != string(msg.Encode()) {
			t.Error("body does not match encoded message")
		}
		_, _ = w.Write([]byte(`{"hash":"0xfromhub"}`))
	}))
	defer second.Close()

	client, err := NewClient(ClientConfig{HubURLs: []string{first.URL, second.URL + "/"}, APIKey: "secret"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	hash, err := client.Submit(context.Background(), msg)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if hash != "0xfromhub" {
		t.Fatalf("expected hub hash, got %s", hash)
	}
	if atomic.LoadInt32(&firstCalls) != 1 {
		t.Fatalf("expected exactly one attempt on first hub, got %d", firstCalls)
	}
}

func TestSubmitFallsBackToLocalHash(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()
	msg := testMessage(t)
	client, _ := NewClient(ClientConfig{HubURLs: []string{srv.URL}})
	hash, err := client.Submit(context.Background(), msg)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if hash != msg.Hash.String() {
		t.Fatalf("expected local hash %s, got %s", msg.Hash, hash)
	}
}

func TestSubmitAllHubsFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()
	client, _ := NewClient(ClientConfig{HubURLs: []string{srv.URL, srv.URL}})
	_, err := client.Submit(context.Background(), testMessage(t))
	if domain.CodeOf(err) != domain.CodeHubSubmissionFailed {
		t.Fatalf("expected HUB_SUBMISSION_FAILED, got %v", err)
	}
}

func TestSubmitTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	client, _ := NewClient(ClientConfig{HubURLs: []string{srv.URL}, Timeout: 50 * time.Millisecond})
	start := time.Now()
	_, err := client.Submit(context.Background(), testMessage(t))
	if domain.CodeOf(err) != domain.CodeHubSubmissionFailed {
		t.Fatalf("expected HUB_SUBMISSION_FAILED, got %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatal("submit did not honor timeout")
	}
}

func TestNewClientRequiresHub(t *testing.T) {
	if _, err := NewClient(ClientConfig{HubURLs: []string{" "}}); err == nil {
		t.Fatal("expected error without hubs")
	}
}

func TestSubmitterZeroesKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"hash":"0x01"}`))
	}))
	defer srv.Close()
	client, _ := NewClient(ClientConfig{HubURLs: []string{srv.URL}})
	sub := NewSubmitter(client, NetworkMainnet)
	sub.Now = func() time.Time { return testTime }

	key, _ := domain.ParseSigningKey(domain.Secret(rfc8032Seed))
	res, err := sub.SignAndSubmit(context.Background(), domain.SigningAccount{FID: 5, Key: key}, domain.LinkAdd{TargetFID: 6})
	if err != nil {
		t.Fatalf("sign and submit: %v", err)
	}
	if res.Hash != "0x01" || res.FID != 5 {
		t.Fatalf("unexpected result %+v", res)
	}
	if key.Seed() != nil {
		t.Fatal("expected key to be zeroed")
	}
}

func TestSubmitterRejectsMalformedOperation(t *testing.T) {
	client, _ := NewClient(ClientConfig{HubURLs: []string{"http://127.0.0.1:1"}})
	sub := NewSubmitter(client, NetworkMainnet)
	key, _ := domain.ParseSigningKey(domain.Secret(rfc8032Seed))
	_, err := sub.SignAndSubmit(context.Background(), domain.SigningAccount{FID: 5, Key: key}, domain.CastRemove{})
	if domain.CodeOf(err) != domain.CodeInvalidMessage {
		t.Fatalf("expected INVALID_MESSAGE, got %v", err)
	}
}
