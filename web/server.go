// Package web serves the operator-facing status API: last pass outcome per
// group, the latest drift report, and cached group summaries.
package web

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"f0oster/adsync/syncer"
)

const requestTimeout = 10 * time.Second

// Server handles HTTP requests for the status interface.
type Server struct {
	syncer *syncer.Syncer
	store  syncer.Store
	mux    *http.ServeMux
	addr   string
	logger *zap.SugaredLogger
}

func NewServer(s *syncer.Syncer, store syncer.Store, addr string, logger *zap.SugaredLogger) *Server {
	srv := &Server{
		syncer: s,
		store:  store,
		mux:    http.NewServeMux(),
		addr:   addr,
		logger: logger,
	}
	srv.registerRoutes()
	return srv
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.HandleFunc("GET /api/groups", s.handleGroups)
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.logger.Infow("starting status server", "addr", s.addr)
	return http.ListenAndServe(s.addr, s.mux)
}

// Handler returns the HTTP handler for use with custom servers.
func (s *Server) Handler() http.Handler {
	return s.mux
}

type statusResponse struct {
	Passes []syncer.PassResult `json:"passes"`
	Scan   *syncer.DriftReport `json:"scan,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, statusResponse{
		Passes: s.syncer.LastResults(),
		Scan:   s.syncer.LastScan(),
	})
}

type groupSummary struct {
	GroupGUID   string `json:"group_guid"`
	EntriesHash string `json:"entries_hash"`
	MemberCount int    `json:"member_count"`
}

func (s *Server) handleGroups(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	groups, err := s.store.ListGroups(ctx)
	if err != nil {
		s.logger.Errorw("listing cached groups failed", "error", err)
		http.Error(w, "failed to list groups", http.StatusInternalServerError)
		return
	}

	summaries := make([]groupSummary, 0, len(groups))
	for _, group := range groups {
		summaries = append(summaries, groupSummary{
			GroupGUID:   group.ObjectGUID.String(),
			EntriesHash: group.EntriesHash.Hex(),
			MemberCount: len(group.Members),
		})
	}
	s.writeJSON(w, summaries)
}

func (s *Server) writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Errorw("encoding response failed", "error", err)
	}
}
