package tunnel

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCreateSendsAPIKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != "key-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var req CreateRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.LocalPort != 4936 {
			t.Errorf("localPort = %d, want default 4936", req.LocalPort)
		}
		json.NewEncoder(w).Encode(Subdomain{
			Subdomain: "deck-ab12cd34",
			PublicURL: "https://deck-ab12cd34.example.com",
			TunnelID:  "tun-1",
		})
	}))
	defer server.Close()

	c := NewClient(server.URL, "key-1")
	sub, err := c.Create(context.Background(), CreateRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if sub.PublicURL != "https://deck-ab12cd34.example.com" {
		t.Errorf("publicUrl = %q", sub.PublicURL)
	}
}

func TestInvalidAPIKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	c := NewClient(server.URL, "bad")
	_, err := c.List(context.Background())
	if !errors.Is(err, ErrInvalidAPIKey) {
		t.Errorf("err = %v, want ErrInvalidAPIKey", err)
	}
}

func TestDeleteConveysDetail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"detail": "Subdomain 'gone' not found"})
	}))
	defer server.Close()

	c := NewClient(server.URL, "key-1")
	err := c.Delete(context.Background(), "gone")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("err = %v", err)
	}
}

func TestCheckAvailability(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/subdomain/check/myname" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{"available": true, "message": "ok"})
	}))
	defer server.Close()

	c := NewClient(server.URL, "key-1")
	available, err := c.Check(context.Background(), "myname")
	if err != nil || !available {
		t.Errorf("available = %v, err = %v", available, err)
	}
}
