package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-devhub/internal/assistant"
	"github.com/npezzotti/go-devhub/internal/database"
	"github.com/npezzotti/go-devhub/internal/server"
	"github.com/npezzotti/go-devhub/internal/types"
)

const (
	probeTimeout     = 5 * time.Second
	statsCacheKey    = "stats"
	recentUsersLimit = 10
	maxTitleLength   = 120
	maxPromptLength  = 4000
)

type CreateProjectRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	RepoUrl     string   `json:"repo_url"`
	DemoUrl     string   `json:"demo_url"`
	Tags        []string `json:"tags"`
}

type SubmitApiRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	BaseUrl     string `json:"base_url"`
	Category    string `json:"category"`
	AuthType    string `json:"auth_type"`
}

type AssistantRequest struct {
	Mode   string `json:"mode"`
	Prompt string `json:"prompt"`
}

type ApiTestResult struct {
	Ok         bool   `json:"ok"`
	StatusCode int    `json:"status_code,omitempty"`
	LatencyMs  int64  `json:"latency_ms"`
	Error      string `json:"error,omitempty"`
}

type AdminDashboard struct {
	Stats       types.Stats  `json:"stats"`
	RecentUsers []types.User `json:"recent_users"`
}

func (s *DevHubApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *DevHubApp) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(); err != nil {
		s.log.Printf("health check: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func validHttpUrl(raw string) bool {
	u, err := url.ParseRequestURI(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func projectFromRecord(p database.Project) types.Project {
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}

	return types.Project{
		Id:          p.Id,
		Title:       p.Title,
		Description: p.Description,
		RepoUrl:     p.RepoUrl,
		DemoUrl:     p.DemoUrl,
		Tags:        tags,
		Owner: types.Author{
			Id:          p.OwnerId,
			DisplayName: p.OwnerName,
			Avatar:      p.OwnerAvatar,
		},
		CreatedAt: p.CreatedAt,
	}
}

func (s *DevHubApp) listProjects(w http.ResponseWriter, r *http.Request) {
	dbProjects, err := s.db.ListProjects(r.Context())
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	projects := make([]types.Project, 0, len(dbProjects))
	for _, p := range dbProjects {
		projects = append(projects, projectFromRecord(p))
	}

	s.writeJson(w, http.StatusOK, projects)
}

func (s *DevHubApp) createProject(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req CreateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" || len(req.Title) > maxTitleLength {
		errResp := NewValidationError("title is required")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	for _, link := range []string{req.RepoUrl, req.DemoUrl} {
		if link != "" && !validHttpUrl(link) {
			errResp := NewValidationError("invalid url: " + link)
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	owner, err := s.db.GetUserById(r.Context(), userId)
	if err != nil {
		errResp := lookupError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	dbProject, err := s.db.CreateProject(r.Context(), database.CreateProjectParams{
		Title:       req.Title,
		Description: strings.TrimSpace(req.Description),
		RepoUrl:     req.RepoUrl,
		DemoUrl:     req.DemoUrl,
		Tags:        req.Tags,
		OwnerId:     owner.Id,
	})
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	dbProject.OwnerName = owner.DisplayName
	dbProject.OwnerAvatar = owner.Avatar

	s.writeJson(w, http.StatusCreated, projectFromRecord(dbProject))
}

func (s *DevHubApp) askAssistant(w http.ResponseWriter, r *http.Request) {
	var req AssistantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if len(req.Prompt) > maxPromptLength {
		errResp := NewValidationError("prompt is too long")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	answer, err := s.assistant.Ask(r.Context(), assistant.ParseMode(req.Mode), req.Prompt)
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, assistant.ErrEmptyPrompt) {
			errResp = NewValidationError(err.Error())
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, answer)
}

func apiFromRecord(a database.ApiEntry) types.ApiEntry {
	return types.ApiEntry{
		Id:          a.Id,
		Name:        a.Name,
		Description: a.Description,
		BaseUrl:     a.BaseUrl,
		Category:    a.Category,
		AuthType:    a.AuthType,
		SubmittedBy: a.SubmittedBy,
		Approved:    a.Approved,
		CreatedAt:   a.CreatedAt,
	}
}

func (s *DevHubApp) listApis(w http.ResponseWriter, r *http.Request) {
	dbApis, err := s.db.ListApis(r.Context())
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	apis := make([]types.ApiEntry, 0, len(dbApis))
	for _, a := range dbApis {
		apis = append(apis, apiFromRecord(a))
	}

	s.writeJson(w, http.StatusOK, apis)
}

func (s *DevHubApp) submitApi(w http.ResponseWriter, r *http.Request) {
	userId, ok := UserId(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req SubmitApiRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		errResp := NewValidationError("name is required")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	if !validHttpUrl(req.BaseUrl) {
		errResp := NewValidationError("base_url must be an http(s) url")
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	if req.AuthType == "" {
		req.AuthType = "none"
	}

	dbApi, err := s.db.CreateApi(r.Context(), database.CreateApiParams{
		Name:        req.Name,
		Description: strings.TrimSpace(req.Description),
		BaseUrl:     req.BaseUrl,
		Category:    req.Category,
		AuthType:    req.AuthType,
		SubmittedBy: userId,
	})
	if err != nil {
		var errResp *ApiError
		if errors.Is(err, database.ErrDuplicate) {
			errResp = NewConflictError("api already submitted")
		} else {
			errResp = NewInternalServerError(err)
		}
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, apiFromRecord(dbApi))
}

// testApi probes the entry's base url and reports reachability; upstream
// failures are part of the result, not an error response.
func (s *DevHubApp) testApi(w http.ResponseWriter, r *http.Request) {
	apiId, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	dbApi, err := s.db.GetApiById(r.Context(), apiId)
	if err != nil {
		errResp := lookupError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, dbApi.BaseUrl, nil)
	if err != nil {
		s.writeJson(w, http.StatusOK, ApiTestResult{Error: err.Error()})
		return
	}

	start := time.Now()
	resp, err := s.probe.Do(req)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		s.writeJson(w, http.StatusOK, ApiTestResult{LatencyMs: latency, Error: err.Error()})
		return
	}
	resp.Body.Close()

	s.writeJson(w, http.StatusOK, ApiTestResult{
		Ok:         resp.StatusCode < http.StatusInternalServerError,
		StatusCode: resp.StatusCode,
		LatencyMs:  latency,
	})
}

func (s *DevHubApp) listLessons(w http.ResponseWriter, r *http.Request) {
	dbLessons, err := s.db.ListLessons(r.Context())
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	lessons := make([]types.Lesson, 0, len(dbLessons))
	for _, l := range dbLessons {
		lessons = append(lessons, types.Lesson{
			Id:       l.Id,
			Title:    l.Title,
			Summary:  l.Summary,
			Content:  l.Content,
			Level:    l.Level,
			Position: l.Position,
		})
	}

	s.writeJson(w, http.StatusOK, lessons)
}

func (s *DevHubApp) listHackathons(w http.ResponseWriter, r *http.Request) {
	dbHackathons, err := s.db.ListHackathons(r.Context())
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	hackathons := make([]types.Hackathon, 0, len(dbHackathons))
	for _, h := range dbHackathons {
		hackathons = append(hackathons, types.Hackathon{
			Id:          h.Id,
			Title:       h.Title,
			Description: h.Description,
			Prize:       h.Prize,
			StartsAt:    h.StartsAt,
			EndsAt:      h.EndsAt,
		})
	}

	s.writeJson(w, http.StatusOK, hackathons)
}

func (s *DevHubApp) listMessages(w http.ResponseWriter, r *http.Request) {
	room := r.URL.Query().Get("room")
	if room == "" {
		room = server.DefaultRoom
	}

	var limit int
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		var err error
		limit, err = strconv.Atoi(limitStr)
		if err != nil || limit < 0 {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	dbMessages, err := s.db.ListMessages(r.Context(), room, limit)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	messages := make([]types.Message, 0, len(dbMessages))
	for _, m := range dbMessages {
		messages = append(messages, server.MessageFromRecord(m))
	}

	s.writeJson(w, http.StatusOK, messages)
}

// countStats reads the aggregate counts through the cache when one is configured.
// Cache failures fall through to the store.
func (s *DevHubApp) countStats(ctx context.Context) (types.Stats, error) {
	var st types.Stats
	if s.cache != nil {
		found, err := s.cache.Get(ctx, statsCacheKey, &st)
		if err != nil {
			s.log.Printf("stats cache: %v", err)
		}
		if found {
			st.OnlineUsers = s.cs.OnlineCount()
			return st, nil
		}
	}

	counts, err := s.db.CountStats(ctx)
	if err != nil {
		return types.Stats{}, err
	}

	st = types.Stats{
		Users:    counts.Users,
		Projects: counts.Projects,
		Messages: counts.Messages,
		Apis:     counts.Apis,
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, statsCacheKey, st); err != nil {
			s.log.Printf("stats cache: %v", err)
		}
	}

	st.OnlineUsers = s.cs.OnlineCount()
	return st, nil
}

func (s *DevHubApp) getStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.countStats(r.Context())
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, st)
}

func (s *DevHubApp) adminDashboard(w http.ResponseWriter, r *http.Request) {
	st, err := s.countStats(r.Context())
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	dbUsers, err := s.db.ListRecentUsers(r.Context(), recentUsersLimit)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	users := make([]types.User, 0, len(dbUsers))
	for _, u := range dbUsers {
		users = append(users, userFromRecord(u))
	}

	s.writeJson(w, http.StatusOK, AdminDashboard{Stats: st, RecentUsers: users})
}

func (s *DevHubApp) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		// non-browser clients
		return true
	}

	return slices.Contains(s.allowedOrigins, origin)
}

// serveWs upgrades the request and hands the connection to the relay. The
// channel itself is unauthenticated; identity arrives with user_joined.
func (s *DevHubApp) serveWs(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{CheckOrigin: s.checkOrigin}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	client, err := server.NewClient(conn, s.cs, s.log)
	if err != nil {
		s.log.Println("error creating client:", err)
		conn.Close()
		return
	}

	s.cs.RegisterClient(client)
	go client.Write()
	go client.Read()
}
