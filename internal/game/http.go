package game

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "Game server is running",
	})
}

// requireAdmin checks HTTP basic auth against the configured user and bcrypt
// password hash.
func (s *Server) requireAdmin(next http.Handler) http.Handler {
	hash := []byte(s.cfg.Admin.PasswordHash)
	user := []byte(s.cfg.Admin.User)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(u), user) != 1 ||
			bcrypt.CompareHashAndPassword(hash, []byte(p)) != nil {
			w.Header().Set("WWW-Authenticate", `Basic realm="realmrelay admin"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// tunables are the runtime-adjustable settings. Absent fields are left alone
// on update.
type tunables struct {
	RateLimit       *int     `json:"rateLimit,omitempty"`
	BroadcastRadius *float64 `json:"broadcastRadius,omitempty"`
	LobbyDefaultMax *int     `json:"lobbyDefaultMaxPlayers,omitempty"`
}

func (s *Server) currentTunables() tunables {
	cfg := s.deps.Config
	rate := s.deps.Limiter.Limit()
	radius := cfg.World.BroadcastRadius
	lobbyMax := s.deps.World.Lobbies.DefaultMax()
	return tunables{RateLimit: &rate, BroadcastRadius: &radius, LobbyDefaultMax: &lobbyMax}
}

// GET /admin/config returns the tunables, POST /admin/config updates them.
func (s *Server) handleAdminConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		var cur tunables
		if err := s.Exec(r.Context(), func() { cur = s.currentTunables() }); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, cur)

	case http.MethodPost:
		var body tunables
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if body.RateLimit != nil && *body.RateLimit <= 0 {
			http.Error(w, "rateLimit must be positive", http.StatusBadRequest)
			return
		}
		if body.BroadcastRadius != nil && *body.BroadcastRadius <= 0 {
			http.Error(w, "broadcastRadius must be positive", http.StatusBadRequest)
			return
		}
		if body.LobbyDefaultMax != nil && (*body.LobbyDefaultMax <= 0 || *body.LobbyDefaultMax > s.cfg.Lobby.MaxPlayersCap) {
			http.Error(w, "lobbyDefaultMaxPlayers out of range", http.StatusBadRequest)
			return
		}

		var cur tunables
		err := s.Exec(r.Context(), func() {
			s.applyTunables(body)
			cur = s.currentTunables()
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		s.log.Info("config updated",
			zap.Int("rate_limit", *cur.RateLimit),
			zap.Float64("broadcast_radius", *cur.BroadcastRadius),
			zap.Int("lobby_default_max", *cur.LobbyDefaultMax),
		)
		writeJSON(w, http.StatusOK, cur)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// applyTunables runs on the game loop.
func (s *Server) applyTunables(t tunables) {
	cfg := s.deps.Config
	if t.RateLimit != nil {
		s.deps.Limiter.SetLimit(*t.RateLimit)
		cfg.RateLimit.MessagesPerSecond = *t.RateLimit
	}
	if t.BroadcastRadius != nil {
		cfg.World.BroadcastRadius = *t.BroadcastRadius
	}
	if t.LobbyDefaultMax != nil {
		s.deps.World.Lobbies.SetDefaultMax(*t.LobbyDefaultMax)
		cfg.Lobby.DefaultMaxPlayers = s.deps.World.Lobbies.DefaultMax()
	}
}

func (s *Server) handleAdminMetrics(w http.ResponseWriter, r *http.Request) {
	var (
		players, sessions, lobbies int
		host                       string
	)
	err := s.Exec(r.Context(), func() {
		host = s.deps.World.Host()
		players = s.deps.World.Players.Len()
		sessions = s.deps.Sessions.Len()
		lobbies = s.deps.World.Lobbies.Len()
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"players":  players,
		"sessions": sessions,
		"lobbies":  lobbies,
		"host":     host,
		"metrics":  s.metrics.Snapshot(),
	})
}
