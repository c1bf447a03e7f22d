package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"health-kb/db"
)

func newTestServer(t *testing.T) (*Server, *db.Store) {
	logger := log.New()
	logger.SetOutput(io.Discard)

	store, err := db.Open(context.Background(), db.WithDimensions(64), db.WithLogger(logger))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	return NewServer(store, logger), store
}

func TestDocumentEndpoints(t *testing.T) {
	server, store := newTestServer(t)
	handler := server.Handler()

	// Test document creation
	body, _ := json.Marshal(map[string]interface{}{
		"text":     "Heart disease prevention focuses on diet and exercise.",
		"metadata": map[string]interface{}{"title": "Heart", "year": 2024, "reviewed": true},
	})
	req := httptest.NewRequest("POST", "/api/documents", bytes.NewBuffer(body))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	var created addResponse
	if err := json.NewDecoder(w.Body).Decode(&created); err != nil || created.ID == "" {
		t.Fatalf("Failed to decode id: %v", err)
	}

	// Test validation
	req = httptest.NewRequest("POST", "/api/documents", strings.NewReader(`{"text":"  "}`))
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for empty text, got %d", w.Code)
	}

	req = httptest.NewRequest("POST", "/api/documents", strings.NewReader(`{"text":"x","metadata":{"tags":["a"]}}`))
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for nested metadata, got %d", w.Code)
	}

	// Test document listing
	req = httptest.NewRequest("GET", "/api/documents", nil)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	var docs []documentView
	if err := json.NewDecoder(w.Body).Decode(&docs); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(docs) != 1 || docs[0].ID != created.ID || docs[0].Metadata["title"] != "Heart" {
		t.Errorf("Unexpected documents: %+v", docs)
	}
	if docs[0].Metadata["year"] != 2024.0 {
		t.Errorf("Expected numeric year, got %v", docs[0].Metadata["year"])
	}

	// Test single document fetch
	req = httptest.NewRequest("GET", "/api/documents/"+created.ID, nil)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	var doc documentView
	json.NewDecoder(w.Body).Decode(&doc)
	if w.Code != http.StatusOK || len(doc.Vector) != 64 {
		t.Errorf("Expected document with 64-dim vector, got %d %+v", w.Code, doc)
	}

	// Test single document deletion
	req = httptest.NewRequest("DELETE", "/api/documents/"+created.ID, nil)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", w.Code)
	}
	req = httptest.NewRequest("DELETE", "/api/documents/"+created.ID, nil)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}

	// Test clear
	store.Add(context.Background(), "one", nil)
	req = httptest.NewRequest("DELETE", "/api/documents", nil)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent || store.Len() != 0 {
		t.Errorf("Expected cleared store, got %d with %d records", w.Code, store.Len())
	}
}

func TestSearchEndpoint(t *testing.T) {
	server, store := newTestServer(t)
	handler := server.Handler()
	ctx := context.Background()

	// Empty store returns an empty array
	req := httptest.NewRequest("POST", "/api/search", strings.NewReader(`{"query":"diet"}`))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("Expected empty array, got %s", w.Body.String())
	}

	store.Add(ctx, "Diabetes risk factors include obesity and family history.", db.Metadata{"title": db.String("Diabetes")})
	store.Add(ctx, "Heart disease prevention focuses on diet and exercise.", db.Metadata{"title": db.String("Heart")})

	req = httptest.NewRequest("POST", "/api/search", strings.NewReader(`{"query":"exercise and diet for heart health","top_k":1}`))
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	var results []resultView
	if err := json.NewDecoder(w.Body).Decode(&results); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(results))
	}

	req = httptest.NewRequest("POST", "/api/search", strings.NewReader(`{"query":""}`))
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400 for empty query, got %d", w.Code)
	}

	req = httptest.NewRequest("GET", "/api/search", nil)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405, got %d", w.Code)
	}
}

func TestWebSocket(t *testing.T) {
	server, _ := newTestServer(t)
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	// Test WebSocket connection
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Failed to connect to WebSocket: %v", err)
	}
	defer conn.Close()

	roundTrip := func(msg map[string]interface{}) map[string]interface{} {
		t.Helper()
		if err := conn.WriteJSON(msg); err != nil {
			t.Fatalf("Failed to send %v: %v", msg["type"], err)
		}
		var response map[string]interface{}
		if err := conn.ReadJSON(&response); err != nil {
			t.Fatalf("Failed to read response: %v", err)
		}
		return response
	}

	// Test document addition through WebSocket
	response := roundTrip(map[string]interface{}{
		"type":     "add",
		"text":     "Heart disease prevention focuses on diet and exercise.",
		"metadata": map[string]interface{}{"title": "Heart"},
	})
	if response["error"] != nil || response["id"] == "" {
		t.Fatalf("Unexpected add response: %v", response)
	}

	// Test search through WebSocket
	response = roundTrip(map[string]interface{}{"type": "search", "query": "heart", "top_k": 5})
	if response["error"] != nil {
		t.Errorf("Received error in response: %v", response["error"])
	}
	if results, _ := response["results"].([]interface{}); len(results) != 1 {
		t.Errorf("Expected 1 result, got %v", response["results"])
	}

	// Test validation through WebSocket
	response = roundTrip(map[string]interface{}{"type": "search", "query": ""})
	if response["error"] == nil {
		t.Error("Expected error for empty query")
	}

	response = roundTrip(map[string]interface{}{"type": "clear"})
	if response["type"] != "cleared" {
		t.Errorf("Unexpected clear response: %v", response)
	}

	response = roundTrip(map[string]interface{}{"type": "list"})
	if docs, _ := response["documents"].([]interface{}); len(docs) != 0 {
		t.Errorf("Expected no documents after clear, got %v", docs)
	}

	response = roundTrip(map[string]interface{}{"type": "bogus"})
	if response["error"] != "Unknown message type" {
		t.Errorf("Unexpected response: %v", response)
	}
}
