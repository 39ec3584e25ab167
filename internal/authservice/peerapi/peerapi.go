// Package peerapi exposes the authorisation service to other nodes
// over HTTP: the push/pull surface peers use to exchange RoomNode
// subgraphs for reconciliation. Row-level authority is still decided
// entirely by the signed Ed25519 rows the request carries; the bearer
// token this package checks only establishes that the caller is a
// node this cluster trusts to open a connection at all, the same
// separation the teacher draws between S3 signature auth and the
// console's session JWT.
package peerapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/sirupsen/logrus"

	"github.com/discretgraph/graphauth/internal/authservice"
	"github.com/discretgraph/graphauth/internal/metrics"
	"github.com/discretgraph/graphauth/internal/roomsync"
)

// peerClaims is the JWT claim set a node presents to authenticate
// itself to a peer; it carries no row-level authority of its own.
type peerClaims struct {
	NodeID string `json:"node_id"`
	jwt.RegisteredClaims
}

// Server is the HTTP peer transport in front of an authservice.Service.
type Server struct {
	svc       *authservice.Service
	jwtSecret []byte
	metrics   *metrics.Recorder
	metricsOn bool
	http      *http.Server
	log       *logrus.Entry
}

// NewServer builds a peerapi.Server listening on addr. jwtSecret
// authenticates incoming peer tokens; rec, if non-nil and
// enableMetrics is true, is mounted at /metrics without bearer auth,
// mirroring the teacher's unauthenticated Prometheus endpoint.
func NewServer(svc *authservice.Service, addr string, jwtSecret []byte, rec *metrics.Recorder, enableMetrics bool) *Server {
	s := &Server{
		svc:       svc,
		jwtSecret: jwtSecret,
		metrics:   rec,
		metricsOn: enableMetrics,
		log:       logrus.WithField("component", "peerapi"),
	}
	s.http = &http.Server{
		Addr:         addr,
		Handler:      handlers.RecoveryHandler()(s.router()),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// GenerateToken mints a bearer token for nodeID valid for ttl, signed
// with jwtSecret. Used by operator tooling (cmd/graphauthd's
// issue-peer-token) to provision a new peer.
func GenerateToken(jwtSecret []byte, nodeID string, ttl time.Duration) (string, error) {
	claims := peerClaims{
		NodeID: nodeID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(jwtSecret)
	if err != nil {
		return "", fmt.Errorf("peerapi: sign token: %w", err)
	}
	return signed, nil
}

func (s *Server) router() *mux.Router {
	r := mux.NewRouter()

	if s.metricsOn && s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	peers := r.PathPrefix("/peer").Subrouter()
	peers.Use(s.requestLogging)
	peers.Use(s.authenticate)
	peers.HandleFunc("/rooms/{roomID}/node", s.handleGetRoomNode).Methods(http.MethodGet)
	peers.HandleFunc("/rooms/{roomID}/node", s.handlePostRoomNode).Methods(http.MethodPost)

	return r
}

// Start begins serving until ctx is cancelled, at which point it
// attempts a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", s.http.Addr).Info("peer API listening")
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start),
			"remote":   r.RemoteAddr,
		}).Info("peer request")
	})
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		tokenString := strings.TrimPrefix(header, "Bearer ")
		if tokenString == "" || tokenString == header {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}

		claims := &peerClaims{}
		_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("peerapi: unexpected signing method %v", t.Method.Alg())
			}
			return s.jwtSecret, nil
		})
		if err != nil {
			http.Error(w, "invalid peer token", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	vm, _ := mem.VirtualMemory()
	info, _ := host.Info()

	resp := map[string]interface{}{
		"status": "ok",
	}
	if vm != nil {
		resp["mem_used_percent"] = vm.UsedPercent
	}
	if info != nil {
		resp["uptime_seconds"] = info.Uptime
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleGetRoomNode(w http.ResponseWriter, r *http.Request) {
	roomID, err := decodeRoomID(mux.Vars(r)["roomID"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	reply := make(chan authservice.RoomNodeGetReply, 1)
	if err := s.svc.Submit(r.Context(), authservice.RoomNodeGet{RoomID: roomID, Reply: reply}); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	res := <-reply
	if res.Err != nil {
		http.Error(w, res.Err.Error(), http.StatusInternalServerError)
		return
	}
	if res.RoomNode == nil {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(res.RoomNode)
}

func (s *Server) handlePostRoomNode(w http.ResponseWriter, r *http.Request) {
	roomID, err := decodeRoomID(mux.Vars(r)["roomID"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var remote roomsync.RoomNode
	if err := json.NewDecoder(r.Body).Decode(&remote); err != nil {
		http.Error(w, fmt.Sprintf("peerapi: decode room node: %v", err), http.StatusBadRequest)
		return
	}

	reply := make(chan authservice.RoomNodeAddReply, 1)
	if err := s.svc.Submit(r.Context(), authservice.RoomNodeAdd{RoomID: roomID, Remote: &remote, Reply: reply}); err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	res := <-reply
	if res.Err != nil {
		http.Error(w, res.Err.Error(), http.StatusConflict)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"needs_update": res.NeedsUpdate,
		"room_node":    res.RoomNode,
	})
}

func decodeRoomID(raw string) ([]byte, error) {
	id, err := base64.URLEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("peerapi: invalid room id: %w", err)
	}
	return id, nil
}
