package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"health-kb/db"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins
	},
}

const wsReadTimeout = 60 * time.Second

/*
Server represents the API server
*/
type Server struct {
	store  *db.Store
	logger log.FieldLogger
	http   *http.Server
}

/*
NewServer creates a new API server
*/
func NewServer(store *db.Store, logger log.FieldLogger) *Server {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Server{
		store:  store,
		logger: logger,
	}
}

/*
Handler returns the routes served by the API
*/
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/api/documents", s.HandleDocuments)
	mux.HandleFunc("/api/documents/", s.handleDocument)
	mux.HandleFunc("/api/search", s.HandleSearch)
	mux.HandleFunc("/api/ws", s.handleWebSocket)
	return mux
}

/*
Start starts the HTTP server and blocks until it stops
*/
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

/*
Shutdown stops a server started with Start
*/
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

type addRequest struct {
	Text     string                 `json:"text"`
	Metadata map[string]interface{} `json:"metadata"`
}

type addResponse struct {
	ID string `json:"id"`
}

type searchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

/*
documentView is the JSON shape of a record with plain metadata values
*/
type documentView struct {
	ID       string                 `json:"id"`
	Text     string                 `json:"text"`
	Vector   []float64              `json:"vector,omitempty"`
	Metadata map[string]interface{} `json:"metadata"`
}

type resultView struct {
	Record documentView `json:"record"`
	Score  float64      `json:"score"`
}

func viewOf(rec db.VectorRecord, withVector bool) documentView {
	v := documentView{ID: rec.ID, Text: rec.Text, Metadata: rec.Metadata.Map()}
	if withVector {
		v.Vector = rec.Vector
	}
	return v
}

func viewsOf(records []db.VectorRecord, withVector bool) []documentView {
	out := make([]documentView, len(records))
	for i, rec := range records {
		out[i] = viewOf(rec, withVector)
	}
	return out
}

func resultsOf(results []db.Result) []resultView {
	out := make([]resultView, len(results))
	for i, r := range results {
		out[i] = resultView{Record: viewOf(r.Record, false), Score: r.Score}
	}
	return out
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "documents": s.store.Len()})
}

/*
HandleDocuments handles document list, creation and clearing
*/
func (s *Server) HandleDocuments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		withVector := r.URL.Query().Get("vectors") == "true"
		writeJSON(w, http.StatusOK, viewsOf(s.store.List(), withVector))
	case http.MethodPost:
		s.addDocument(w, r)
	case http.MethodDelete:
		s.store.Clear(r.Context())
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

/*
handleDocument handles operations on a single document
*/
func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/documents/")
	if id == "" {
		s.HandleDocuments(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		rec, err := s.store.Get(id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, viewOf(rec, true))
	case http.MethodDelete:
		if err := s.store.Delete(r.Context(), id); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) addDocument(w http.ResponseWriter, r *http.Request) {
	var request addRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	id, err := s.add(r.Context(), request)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, addResponse{ID: id})
}

/*
HandleSearch ranks documents against a free-text query
*/
func (s *Server) HandleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var request searchRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	results, err := s.store.Search(r.Context(), request.Query, request.TopK)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resultsOf(results))
}

func (s *Server) add(ctx context.Context, request addRequest) (string, error) {
	metadata, err := db.MetadataFromMap(request.Metadata)
	if err != nil {
		return "", err
	}
	return s.store.Add(ctx, request.Text, metadata)
}

/*
wsMessage is a request received over the WebSocket
*/
type wsMessage struct {
	Type     string                 `json:"type"`
	Text     string                 `json:"text"`
	Metadata map[string]interface{} `json:"metadata"`
	Query    string                 `json:"query"`
	TopK     int                    `json:"top_k"`
}

/*
handleWebSocket handles WebSocket connections
*/
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Debug("websocket upgrade failed")
		return
	}
	defer conn.Close()

	// Set read deadline
	conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	// Handle WebSocket messages
	for {
		messageType, p, err := conn.ReadMessage()
		if err != nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

		var request wsMessage
		if err := json.Unmarshal(p, &request); err != nil {
			s.writeWS(conn, messageType, map[string]string{"error": "Invalid JSON"})
			continue
		}

		// Handle different message types
		switch request.Type {
		case "add":
			id, err := s.add(r.Context(), addRequest{Text: request.Text, Metadata: request.Metadata})
			if err != nil {
				s.writeWS(conn, messageType, map[string]string{"error": err.Error()})
				continue
			}
			s.writeWS(conn, messageType, map[string]string{"type": "added", "id": id})
		case "search":
			results, err := s.store.Search(r.Context(), request.Query, request.TopK)
			if err != nil {
				s.writeWS(conn, messageType, map[string]string{"error": err.Error()})
				continue
			}
			s.writeWS(conn, messageType, map[string]interface{}{"type": "results", "results": resultsOf(results)})
		case "list":
			s.writeWS(conn, messageType, map[string]interface{}{"type": "documents", "documents": viewsOf(s.store.List(), false)})
		case "clear":
			s.store.Clear(r.Context())
			s.writeWS(conn, messageType, map[string]string{"type": "cleared"})
		default:
			s.writeWS(conn, messageType, map[string]string{"error": "Unknown message type"})
		}
	}
}

func (s *Server) writeWS(conn *websocket.Conn, messageType int, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.WithError(err).Error("failed to encode websocket reply")
		return
	}
	if err := conn.WriteMessage(messageType, data); err != nil {
		s.logger.WithError(err).Debug("failed to write websocket reply")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

/*
writeError maps store errors to HTTP status codes
*/
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, db.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, db.ErrRecordNotFound):
		status = http.StatusNotFound
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
