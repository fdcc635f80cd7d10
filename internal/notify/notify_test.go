// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.astrophena.name/base/testutil"
)

type payload struct {
	Message string `json:"message"`
	OK      bool   `json:"ok"`
}

func TestSend(t *testing.T) {
	var got payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		testutil.AssertEqual(t, r.Method, http.MethodPost)
		testutil.AssertEqual(t, r.Header.Get("Content-Type"), "application/json")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Error(err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	want := payload{Message: "Daily NewsMap Update: 2024-03-15", OK: true}
	if err := Send(context.Background(), srv.Client(), srv.URL, want); err != nil {
		t.Fatal(err)
	}
	testutil.AssertEqual(t, got, want)
}

func TestSendFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "hook is down", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := Send(context.Background(), srv.Client(), srv.URL, payload{})
	if err == nil {
		t.Fatal("want error")
	}
	if !strings.Contains(err.Error(), "502") || !strings.Contains(err.Error(), "hook is down") {
		t.Fatalf("error should carry status and body, got %v", err)
	}
}

func TestSendBadURL(t *testing.T) {
	if err := Send(context.Background(), nil, "://nope", payload{}); err == nil {
		t.Fatal("want error")
	}
}
