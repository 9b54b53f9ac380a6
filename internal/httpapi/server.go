// Package httpapi is the reference HTTP surface translating REST calls
// into Society core operations, matching the external collaborator
// contract: submitTask, sendToAgent, listAgents/listRoles,
// getAgentMessages, abortAgentLlmCall, deleteAgent/deleteRole, updateRole.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/agentsociety/runtime/pkg/apperr"
	"github.com/agentsociety/runtime/pkg/bus"
	"github.com/agentsociety/runtime/pkg/orgregistry"
	"github.com/agentsociety/runtime/pkg/society"
)

// Server is the chi-routed HTTP surface over a Society.
type Server struct {
	society *society.Society
	router  chi.Router
	http    *http.Server
}

// NewServer builds the router and wraps it in an http.Server bound to addr.
func NewServer(s *society.Society, addr string) *Server {
	srv := &Server{society: s}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(srv.loggingMiddleware)
	r.Use(corsMiddleware)

	r.Get("/health", srv.handleHealth)
	r.Post("/tasks", srv.handleSubmitTask)
	r.Post("/agents/{agentId}/messages", srv.handleSendToAgent)
	r.Get("/agents", srv.handleListAgents)
	r.Get("/roles", srv.handleListRoles)
	r.Get("/agents/{agentId}/messages", srv.handleGetAgentMessages)
	r.Post("/agents/{agentId}/abort", srv.handleAbortAgentLlmCall)
	r.Delete("/agents/{agentId}", srv.handleDeleteAgent)
	r.Delete("/roles/{roleId}", srv.handleDeleteRole)
	r.Patch("/roles/{roleId}", srv.handleUpdateRole)

	srv.router = r
	srv.http = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return srv
}

// Start runs the server until ctx is cancelled, then shuts it down.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	slog.Info("httpapi: server starting", "addr", s.http.Addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSubmitTask(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, apperr.New(apperr.InvalidArgs))
		return
	}
	taskID, err := s.society.SubmitTask(body.Text)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"taskId": taskID})
}

func (s *Server) handleSendToAgent(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentId")
	var body struct {
		TaskID      string            `json:"taskId"`
		Text        string            `json:"text"`
		Attachments []bus.Attachment  `json:"attachments"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, apperr.New(apperr.InvalidArgs))
		return
	}
	messageID, err := s.society.SendToAgent(agentID, body.TaskID, body.Text, body.Attachments)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"messageId": messageID})
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"agents": s.society.ListAgents()})
}

func (s *Server) handleListRoles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"roles": s.society.ListRoles()})
}

func (s *Server) handleGetAgentMessages(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentId")
	turns, err := s.society.GetAgentMessages(agentID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": turns})
}

func (s *Server) handleAbortAgentLlmCall(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentId")
	result := s.society.AbortAgentLlmCall(agentID)
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentId")
	reason := r.URL.Query().Get("reason")
	if err := s.society.DeleteAgent(agentID, reason); err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleDeleteRole(w http.ResponseWriter, r *http.Request) {
	roleID := chi.URLParam(r, "roleId")
	affectedAgents, affectedRoles, err := s.society.DeleteRole(roleID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"affectedAgents": affectedAgents,
		"affectedRoles":  affectedRoles,
	})
}

func (s *Server) handleUpdateRole(w http.ResponseWriter, r *http.Request) {
	roleID := chi.URLParam(r, "roleId")
	var patch struct {
		RolePrompt   *string   `json:"rolePrompt"`
		LLMServiceID *string   `json:"llmServiceId"`
		ToolGroups   *[]string `json:"toolGroups"`
	}
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, apperr.New(apperr.InvalidArgs))
		return
	}
	role, err := s.society.UpdateRole(roleID, orgregistry.RolePatch{
		RolePrompt:   patch.RolePrompt,
		LLMServiceID: patch.LLMServiceID,
		ToolGroups:   patch.ToolGroups,
	})
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, role)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("httpapi: request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// writeAppError maps a domain apperr.Code to an HTTP status the way a REST
// collaborator would: not-found codes -> 404, validation -> 400,
// policy -> 403, everything else -> 500.
func writeAppError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case apperr.Is(err, apperr.AgentNotFound), apperr.Is(err, apperr.RoleNotFound):
		status = http.StatusNotFound
	case apperr.Is(err, apperr.MissingAgentID), apperr.Is(err, apperr.MissingText),
		apperr.Is(err, apperr.MissingTo), apperr.Is(err, apperr.InvalidArgs),
		apperr.Is(err, apperr.InvalidParentAgentID), apperr.Is(err, apperr.InvalidMethod):
		status = http.StatusBadRequest
	case apperr.Is(err, apperr.CrossTaskCommunicationDenied), apperr.Is(err, apperr.NotChildAgent),
		apperr.Is(err, apperr.NotChildRole), apperr.Is(err, apperr.CannotDeleteSystemAgent),
		apperr.Is(err, apperr.CannotDeleteSystemRole), apperr.Is(err, apperr.ToolNotAllowedForRole):
		status = http.StatusForbidden
	}
	writeError(w, status, err)
}
