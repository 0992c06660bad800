package console

import (
	"context"
	"log/slog"
	"net/url"

	"github.com/voxdeck/voxdeck/internal/backend"
)

// Scope types for the agent list.
const (
	ScopeSelf = "self"
	ScopeUser = "user"
)

// Scope selects which backend listing endpoint agent fetches use: the
// caller's own agents, or a specific user's (the super-admin drill-down).
type Scope struct {
	Type  string `json:"type"`
	Email string `json:"email,omitempty"`
}

// SetScope switches the agent scope. Bumping the generation invalidates
// every in-flight fetch that captured the old one.
func (s *Store) SetScope(ctx context.Context, scope Scope) {
	s.mu.Lock()
	s.scope = scope
	s.scopeGen++
	s.mu.Unlock()
	s.persistPreferences(ctx)
}

// InitScope resolves the starting scope from navigation context: a
// user drill-down when both flags are present, self otherwise.
func (s *Store) InitScope(ctx context.Context, fromUser bool, urlEmail string) Scope {
	scope := Scope{Type: ScopeSelf}
	if fromUser && urlEmail != "" {
		scope = Scope{Type: ScopeUser, Email: urlEmail}
	}
	s.SetScope(ctx, scope)
	return scope
}

// CurrentScope returns the active scope.
func (s *Store) CurrentScope() Scope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scope
}

// captureScope snapshots the scope and its generation before a fetch.
func (s *Store) captureScope() (Scope, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scope, s.scopeGen
}

// commitIfCurrent applies fn only if the scope generation still matches
// the one captured at fetch launch. A mismatch means the scope changed
// mid-flight: the result is dropped, never raced into the cache.
func (s *Store) commitIfCurrent(gen uint64, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scopeGen != gen {
		return false
	}
	fn()
	return true
}

func (s *Store) dropStale(scope Scope) Result {
	if s.metrics != nil {
		s.metrics.IncStaleScopeDrop()
	}
	slog.Debug("dropping stale agent fetch result", "scope_type", scope.Type, "scope_email", scope.Email)
	return Result{Canceled: true}
}

type userAgentsResponse struct {
	Agents      []agentWire `json:"agents"`
	UserEmail   string      `json:"user_email"`
	UserName    string      `json:"user_name"`
	UserID      string      `json:"user_id"`
	TotalAgents *int        `json:"total_agents"`
}

type individualAnalyticsResponse struct {
	IndividualResults []agentWire `json:"individual_results"`
}

// LoadAgentsForCurrentScope fetches the agent list for whichever scope
// is active. Last-matching-scope-wins: a result whose launch generation
// no longer matches is discarded with a canceled sentinel.
func (s *Store) LoadAgentsForCurrentScope(ctx context.Context) Result {
	scope, gen := s.captureScope()

	s.mu.Lock()
	s.agentsLoaded = false
	s.mu.Unlock()

	if scope.Type == ScopeUser && scope.Email != "" {
		return s.fetchUserAgents(ctx, scope, gen)
	}
	return s.fetchSelfAgents(ctx, gen)
}

// FetchAgents refreshes the self-scoped agent list. Calls made while a
// user scope is active are ignored rather than clobbering it.
func (s *Store) FetchAgents(ctx context.Context) Result {
	scope, gen := s.captureScope()
	if scope.Type != ScopeSelf {
		return Result{Ignored: true}
	}

	s.mu.Lock()
	s.agentsLoaded = false
	s.mu.Unlock()

	return s.fetchSelfAgents(ctx, gen)
}

// FetchAgentsForUser refreshes a user-scoped agent list. The scope must
// already point at that user; otherwise the call is ignored.
func (s *Store) FetchAgentsForUser(ctx context.Context, userEmail string) Result {
	if userEmail == "" {
		return failure("email is required")
	}
	scope, gen := s.captureScope()
	if scope.Type != ScopeUser || scope.Email != userEmail {
		return Result{Ignored: true}
	}

	s.mu.Lock()
	s.agentsLoaded = false
	s.mu.Unlock()

	return s.fetchUserAgents(ctx, scope, gen)
}

func (s *Store) fetchSelfAgents(ctx context.Context, gen uint64) Result {
	var resp individualAnalyticsResponse
	err := s.client.PostJSON(ctx, "/analysis/training/agent-individual-analytics", map[string]any{}, &resp)

	scope, _ := s.captureScope()
	if err != nil {
		if !s.commitIfCurrent(gen, func() { s.agentsLoaded = true }) {
			return s.dropStale(scope)
		}
		return failure(errMessage(err))
	}

	agents := make([]Agent, 0, len(resp.IndividualResults))
	for _, w := range resp.IndividualResults {
		agents = append(agents, normalizeAgent(w))
	}

	if !s.commitIfCurrent(gen, func() {
		s.agents = agents
		s.adminUserInfo = nil
		s.agentsLoaded = true
	}) {
		return s.dropStale(scope)
	}
	return Result{Success: true}
}

func (s *Store) fetchUserAgents(ctx context.Context, scope Scope, gen uint64) Result {
	query := url.Values{}
	query.Set("email", scope.Email)

	var resp userAgentsResponse
	err := s.client.GetJSON(ctx, "/auth/admin/user-agents", query, &resp)

	if err != nil {
		if !s.commitIfCurrent(gen, func() { s.agentsLoaded = true }) {
			return s.dropStale(scope)
		}
		return failure(errMessage(err))
	}

	agents := make([]Agent, 0, len(resp.Agents))
	for _, w := range resp.Agents {
		agents = append(agents, normalizeAgent(w))
	}
	total := len(agents)
	if resp.TotalAgents != nil {
		total = *resp.TotalAgents
	}
	info := &AdminUserInfo{
		UserEmail:   resp.UserEmail,
		UserName:    resp.UserName,
		UserID:      resp.UserID,
		TotalAgents: total,
	}

	if !s.commitIfCurrent(gen, func() {
		s.agents = agents
		s.adminUserInfo = info
		s.agentsLoaded = true
	}) {
		return s.dropStale(scope)
	}
	return Result{Success: true}
}

// AgentInput carries the fields for agent create and update calls. The
// voice sample and knowledge document attachments are optional.
type AgentInput struct {
	AgentName          string
	FirstMessage       string
	Prompt             string
	Email              string
	LLM                string
	BusinessName       string
	AgentType          string
	SpeakingStyle      string
	ContactPhoneNumber string

	KnowledgeFile *FileUpload
	VoiceFile     *FileUpload
}

// FileUpload is a single uploaded attachment.
type FileUpload struct {
	Filename string
	Content  []byte
}

func agentForm(in AgentInput) *backend.Form {
	f := backend.NewForm().
		AddField("email", in.Email).
		AddField("agent_name", in.AgentName).
		AddField("first_message", in.FirstMessage).
		AddField("prompt", in.Prompt).
		AddField("llm", in.LLM).
		AddField("business_name", in.BusinessName).
		AddField("agent_type", in.AgentType).
		AddField("speaking_style", in.SpeakingStyle).
		AddField("contact_phone_number", normalizePhone(in.ContactPhoneNumber))
	if in.KnowledgeFile != nil {
		f.AddFile(&backend.FilePart{Field: "file", Filename: in.KnowledgeFile.Filename, Content: in.KnowledgeFile.Content})
	}
	if in.VoiceFile != nil {
		f.AddFile(&backend.FilePart{Field: "voice_file", Filename: in.VoiceFile.Filename, Content: in.VoiceFile.Content})
	}
	return f
}

// CreateAgent validates required fields, posts the multipart payload,
// and reloads the current scope on success.
func (s *Store) CreateAgent(ctx context.Context, in AgentInput) Result {
	switch {
	case in.AgentName == "":
		return failure("agent_name is required")
	case in.FirstMessage == "":
		return failure("first_message is required")
	case in.Prompt == "":
		return failure("prompt is required")
	case in.Email == "":
		return failure("email is required")
	case in.LLM == "":
		return failure("llm (model) is required")
	}

	if err := s.client.PostMultipart(ctx, "/auth/agent/create-agent", agentForm(in), nil); err != nil {
		return failure(errMessage(err))
	}

	if res := s.LoadAgentsForCurrentScope(ctx); !res.Success {
		slog.Warn("agent list reload after create failed", "error", res.Error)
	}
	return Result{Success: true}
}

// UpdateAgentExact updates an agent addressed by owner email and exact
// agent name, sending only the fields that are set, and reloads the
// current scope on success.
func (s *Store) UpdateAgentExact(ctx context.Context, in AgentInput) Result {
	switch {
	case in.Email == "":
		return failure("email is required")
	case in.AgentName == "":
		return failure("agent_name is required")
	}

	if err := s.client.PutMultipart(ctx, "/auth/agent/update-agent", agentForm(in), nil); err != nil {
		return failure(errMessage(err))
	}

	if res := s.LoadAgentsForCurrentScope(ctx); !res.Success {
		slog.Warn("agent list reload after update failed", "error", res.Error)
	}
	return Result{Success: true}
}

// DeleteAgent deletes an agent and removes it from the cache under
// either identifier field.
func (s *Store) DeleteAgent(ctx context.Context, agentID string) Result {
	if agentID == "" {
		return failure("missing agent id")
	}
	if err := s.client.Delete(ctx, "/auth/agent/delete-agent/"+url.PathEscape(agentID)); err != nil {
		return failure(errMessage(err))
	}

	s.mu.Lock()
	kept := s.agents[:0]
	for _, a := range s.agents {
		if !a.Matches(agentID) {
			kept = append(kept, a)
		}
	}
	s.agents = kept
	s.mu.Unlock()

	return Result{Success: true}
}

// PauseAgent pauses an agent's number and patches the cached row's
// active flag locally; no refetch.
func (s *Store) PauseAgent(ctx context.Context, agentID string) Result {
	return s.setAgentActive(ctx, agentID, "/auth/agent/pause-twilio-number/", false)
}

// ResumeAgent resumes an agent's number and patches the cached row's
// active flag locally; no refetch.
func (s *Store) ResumeAgent(ctx context.Context, agentID string) Result {
	return s.setAgentActive(ctx, agentID, "/auth/agent/resume-twilio-number/", true)
}

func (s *Store) setAgentActive(ctx context.Context, agentID, pathPrefix string, active bool) Result {
	if agentID == "" {
		return failure("missing agent id")
	}
	if err := s.client.Patch(ctx, pathPrefix+url.PathEscape(agentID), nil); err != nil {
		return failure(errMessage(err))
	}

	status := "inactive"
	if active {
		status = "active"
	}

	s.mu.Lock()
	for i := range s.agents {
		if s.agents[i].Matches(agentID) {
			s.agents[i].IsActive = active
			s.agents[i].Status = status
		}
	}
	s.mu.Unlock()

	return Result{Success: true}
}
