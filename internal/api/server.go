package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lemonphresh/osrsbingo-sub001/internal/auth"
	"github.com/lemonphresh/osrsbingo-sub001/internal/hunt"
	"github.com/lemonphresh/osrsbingo-sub001/internal/mapfile"
)

type contextKey string

const identityContextKey contextKey = "identity"

type Server struct {
	log      *slog.Logger
	verifier *auth.Verifier
	hunt     *hunt.Service
	mux      *chi.Mux
}

func New(logger *slog.Logger, verifier *auth.Verifier, huntSvc *hunt.Service) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		log:      logger,
		verifier: verifier,
		hunt:     huntSvc,
		mux:      chi.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	r := s.mux
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/me", s.handleMe)

		r.Route("/events", func(r chi.Router) {
			r.With(requireAdmin).Post("/", s.handleCreateEvent)

			r.Route("/{event_id}", func(r chi.Router) {
				r.Get("/", s.handleEvent)
				r.Get("/me", s.handleMyTeam)
				r.Get("/teams", s.handleTeams)
				r.Get("/teams/{team_id}", s.handleTeam)

				r.Post("/teams/{team_id}/complete", s.handleComplete)
				r.Post("/teams/{team_id}/buffs", s.handleApplyBuff)
				r.Post("/teams/{team_id}/inn", s.handlePurchase)

				r.Group(func(r chi.Router) {
					r.Use(requireAdmin)
					r.Put("/graph", s.handleReplaceGraph)
					r.Post("/teams", s.handleAddTeam)
					r.Post("/launch", s.handleLaunch)
					r.Post("/end", s.handleEnd)
					r.Post("/reconcile", s.handleReconcile)
					r.Post("/teams/{team_id}/admin/complete", s.handleAdminComplete)
					r.Post("/teams/{team_id}/admin/uncomplete", s.handleAdminUncomplete)
				})
			})
		})
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "missing bearer token")
			return
		}
		id, err := s.verifier.Verify(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", err.Error())
			return
		}
		ctx := context.WithValue(r.Context(), identityContextKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := identityFromContext(r.Context())
		if err != nil {
			writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", err.Error())
			return
		}
		if !id.Admin {
			writeError(w, http.StatusForbidden, "FORBIDDEN", "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func identityFromContext(ctx context.Context) (auth.Identity, error) {
	id, ok := ctx.Value(identityContextKey).(auth.Identity)
	if !ok || id.UserID == "" {
		return auth.Identity{}, errors.New("missing auth context")
	}
	return id, nil
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	id, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":    id.UserID,
		"email":      id.Email,
		"discord_id": id.DiscordID,
		"member_id":  id.MemberID(),
		"admin":      id.Admin,
	})
}

// graphInput carries a map either as a JSON node list or as a YAML map file.
type graphInput struct {
	Graph   *hunt.Graph `json:"graph"`
	MapYAML string      `json:"map_yaml"`
}

func (in graphInput) resolve() (*mapfile.Map, error) {
	if strings.TrimSpace(in.MapYAML) != "" {
		m, err := mapfile.Parse([]byte(in.MapYAML))
		if err != nil {
			return nil, err
		}
		return &m, nil
	}
	if in.Graph != nil {
		return &mapfile.Map{Graph: in.Graph}, nil
	}
	return nil, nil
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name      string           `json:"name"`
		PrizePool int64            `json:"prize_pool"`
		TeamCaps  map[string]int64 `json:"team_caps"`
		graphInput
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error())
		return
	}
	m, err := in.resolve()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	create := hunt.CreateEventInput{Name: in.Name, PrizePool: in.PrizePool, TeamCaps: in.TeamCaps}
	if m != nil {
		create.Graph = m.Graph
		if create.Name == "" {
			create.Name = m.Name
		}
		if create.PrizePool == 0 {
			create.PrizePool = m.PrizePool
		}
		if create.TeamCaps == nil {
			create.TeamCaps = m.TeamCaps
		}
	}
	ev, err := s.hunt.CreateEvent(r.Context(), create)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := s.hunt.Event(r.Context(), chi.URLParam(r, "event_id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) handleReplaceGraph(w http.ResponseWriter, r *http.Request) {
	var in graphInput
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error())
		return
	}
	m, err := in.resolve()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if m == nil {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", "graph or map_yaml is required")
		return
	}
	ev, err := s.hunt.ReplaceGraph(r.Context(), chi.URLParam(r, "event_id"), m.Graph)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) handleAddTeam(w http.ResponseWriter, r *http.Request) {
	var in struct {
		TeamID  string   `json:"team_id"`
		Name    string   `json:"name"`
		Members []string `json:"members"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error())
		return
	}
	view, err := s.hunt.AddTeam(r.Context(), hunt.AddTeamInput{
		EventID: chi.URLParam(r, "event_id"),
		TeamID:  in.TeamID,
		Name:    in.Name,
		Members: in.Members,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (s *Server) handleLaunch(w http.ResponseWriter, r *http.Request) {
	ev, err := s.hunt.LaunchEvent(r.Context(), chi.URLParam(r, "event_id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	ev, err := s.hunt.EndEvent(r.Context(), chi.URLParam(r, "event_id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	report, err := s.hunt.Reconcile(r.Context(), chi.URLParam(r, "event_id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleTeams(w http.ResponseWriter, r *http.Request) {
	teams, err := s.hunt.Teams(r.Context(), chi.URLParam(r, "event_id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"teams": teams})
}

func (s *Server) handleTeam(w http.ResponseWriter, r *http.Request) {
	view, err := s.hunt.TeamView(r.Context(), chi.URLParam(r, "event_id"), chi.URLParam(r, "team_id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleMyTeam(w http.ResponseWriter, r *http.Request) {
	id, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", err.Error())
		return
	}
	view, err := s.hunt.TeamForMember(r.Context(), chi.URLParam(r, "event_id"), id.MemberID())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	id, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", err.Error())
		return
	}
	var in struct {
		NodeID string `json:"node_id"`
		Proof  string `json:"proof"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error())
		return
	}
	view, err := s.hunt.CompleteNode(r.Context(), hunt.CompleteNodeInput{
		EventID:     chi.URLParam(r, "event_id"),
		TeamID:      chi.URLParam(r, "team_id"),
		NodeID:      in.NodeID,
		Proof:       in.Proof,
		SubmittedBy: id.MemberID(),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleApplyBuff(w http.ResponseWriter, r *http.Request) {
	id, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", err.Error())
		return
	}
	var in struct {
		NodeID string `json:"node_id"`
		BuffID string `json:"buff_id"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error())
		return
	}
	view, err := s.hunt.ApplyBuff(r.Context(), hunt.ApplyBuffInput{
		EventID: chi.URLParam(r, "event_id"),
		TeamID:  chi.URLParam(r, "team_id"),
		NodeID:  in.NodeID,
		BuffID:  in.BuffID,
		Caller:  id.MemberID(),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	id, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", err.Error())
		return
	}
	var in struct {
		NodeID   string `json:"node_id"`
		RewardID string `json:"reward_id"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error())
		return
	}
	view, err := s.hunt.PurchaseInnReward(r.Context(), hunt.PurchaseInput{
		EventID:  chi.URLParam(r, "event_id"),
		TeamID:   chi.URLParam(r, "team_id"),
		NodeID:   in.NodeID,
		RewardID: in.RewardID,
		Caller:   id.MemberID(),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleAdminComplete(w http.ResponseWriter, r *http.Request) {
	s.handleAdmin(w, r, s.hunt.AdminComplete)
}

func (s *Server) handleAdminUncomplete(w http.ResponseWriter, r *http.Request) {
	s.handleAdmin(w, r, s.hunt.AdminUncomplete)
}

func (s *Server) handleAdmin(w http.ResponseWriter, r *http.Request, op func(context.Context, hunt.AdminInput) (hunt.TeamView, error)) {
	id, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", err.Error())
		return
	}
	var in struct {
		NodeID string `json:"node_id"`
		Note   string `json:"note"`
	}
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error())
		return
	}
	view, err := op(r.Context(), hunt.AdminInput{
		EventID: chi.URLParam(r, "event_id"),
		TeamID:  chi.URLParam(r, "team_id"),
		NodeID:  in.NodeID,
		AdminID: id.UserID,
		Note:    in.Note,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func writeDomainError(w http.ResponseWriter, err error) {
	code := hunt.CodeOf(err)
	switch {
	case errors.Is(err, hunt.ErrNodeNotFound), errors.Is(err, hunt.ErrTeamNotFound),
		errors.Is(err, hunt.ErrEventNotFound), errors.Is(err, hunt.ErrBuffNotFound),
		errors.Is(err, hunt.ErrInnRewardNotFound):
		writeError(w, http.StatusNotFound, code, err.Error())
	case errors.Is(err, hunt.ErrNotTeamMember):
		writeError(w, http.StatusForbidden, code, err.Error())
	case errors.Is(err, hunt.ErrAlreadyCompleted), errors.Is(err, hunt.ErrAlreadyPurchased),
		errors.Is(err, hunt.ErrBuffAlreadyAppliedToNode), errors.Is(err, hunt.ErrTeamExists),
		errors.Is(err, hunt.ErrEventLaunched), errors.Is(err, hunt.ErrEventNotActive),
		errors.Is(err, hunt.ErrTxConflict):
		writeError(w, http.StatusConflict, code, err.Error())
	case errors.Is(err, hunt.ErrInvalidInput), errors.Is(err, hunt.ErrInvalidGraph):
		writeError(w, http.StatusBadRequest, code, err.Error())
	case code != "UNKNOWN":
		writeError(w, http.StatusUnprocessableEntity, code, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, code, err.Error())
	}
}

func decodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{"error": strings.TrimSpace(message), "code": code})
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
