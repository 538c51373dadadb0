package liveview

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"doorcam/internal/config"
	"doorcam/internal/logger"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// frameMessage is the JSON payload pushed to viewers for every annotated
// detection frame.
type frameMessage struct {
	Camera    string `json:"camera"`
	Image     string `json:"image"` // base64 JPEG
	Timestamp string `json:"timestamp"`
}

// Server exposes the live detection feed over a websocket endpoint. It is
// optional: when live view is disabled in config, the pipeline simply runs
// without a broadcaster.
type Server struct {
	hub    *Hub
	srv    *http.Server
	log    *logger.Logger
	camera string
}

func NewServer(cfg *config.Config, log *logger.Logger) *Server {
	s := &Server{
		hub:    NewHub(log),
		log:    log,
		camera: cfg.CameraName,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws/view", s.viewHandler)

	s.srv = &http.Server{
		Addr:    cfg.LiveViewAddr,
		Handler: mux,
	}
	return s
}

// Start runs the hub and the HTTP listener in the background.
func (s *Server) Start() {
	go s.hub.Run()
	go func() {
		s.log.Info("📺 Live view listening on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("Live view server error: %v", err)
		}
	}()
}

// Shutdown stops the HTTP listener and the hub, closing any connected
// viewers.
func (s *Server) Shutdown(ctx context.Context) error {
	defer s.hub.Stop()
	return s.srv.Shutdown(ctx)
}

// Publish encodes the annotated frame and queues it for all viewers.
func (s *Server) Publish(jpeg []byte) {
	msg := frameMessage{
		Camera:    s.camera,
		Image:     base64.StdEncoding.EncodeToString(jpeg),
		Timestamp: time.Now().Format(time.RFC3339),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		s.log.Error("Error encoding live view frame: %v", err)
		return
	}
	s.hub.Broadcast(payload)
}

func (s *Server) viewHandler(w http.ResponseWriter, r *http.Request) {
	connection, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("WebSocket upgrade error: %v", err)
		return
	}
	connection.SetReadLimit(512)
	connection.SetReadDeadline(time.Now().Add(60 * time.Second))
	connection.SetPongHandler(func(appData string) error {
		connection.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	defer connection.Close()

	s.hub.Register(connection)
	defer s.hub.Unregister(connection)

	for {
		if _, _, err := connection.ReadMessage(); err != nil {
			break
		}
	}
}
