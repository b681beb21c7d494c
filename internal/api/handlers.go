package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/replyflow/replyflow/internal/models"
)

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("ok", nil))
}

// messagesHandler is the engine's single runtime entry point: one inbound
// customer message in, the automated responses out.
func (s *Server) messagesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.messagesHandler: processing inbound message", "path", r.URL.Path)

	var msg models.InboundMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		slog.Warn("Server.messagesHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if msg.ConversationID == "" || msg.CompanyID == "" {
		slog.Warn("Server.messagesHandler: missing required fields", "conversationID", msg.ConversationID, "companyID", msg.CompanyID)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("conversationId and companyId are required"))
		return
	}

	result, err := s.engine.HandleInboundMessage(r.Context(), msg)
	if err != nil {
		slog.Error("Server.messagesHandler: message handling failed", "error", err, "conversationID", msg.ConversationID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to process message"))
		return
	}

	slog.Info("Server.messagesHandler: message processed", "conversationID", msg.ConversationID, "outbound", len(result.OutboundMessages), "escalated", result.Escalated)
	writeJSONResponse(w, http.StatusOK, models.Success(result))
}

// registerScenarioHandler registers a new scenario. Authoring errors come
// back as 400 with the validation reason; scenarios are immutable, so a
// duplicate id is an authoring error too.
func (s *Server) registerScenarioHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.registerScenarioHandler: processing scenario registration")

	var sc models.Scenario
	if err := json.NewDecoder(r.Body).Decode(&sc); err != nil {
		slog.Warn("Server.registerScenarioHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	if err := s.scenarios.Register(&sc); err != nil {
		var defErr *models.ScenarioDefinitionError
		if errors.As(err, &defErr) {
			slog.Warn("Server.registerScenarioHandler: invalid scenario", "error", err, "scenarioID", sc.ID)
			writeJSONResponse(w, http.StatusBadRequest, models.Error(defErr.Error()))
			return
		}
		slog.Error("Server.registerScenarioHandler: registration failed", "error", err, "scenarioID", sc.ID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to register scenario"))
		return
	}

	slog.Info("Server.registerScenarioHandler: scenario registered", "scenarioID", sc.ID, "companyID", sc.CompanyID)
	writeJSONResponse(w, http.StatusCreated, models.SuccessWithMessage("Scenario registered", map[string]string{"id": sc.ID}))
}

// listScenariosHandler returns a company's active scenarios in matching order.
func (s *Server) listScenariosHandler(w http.ResponseWriter, r *http.Request) {
	companyID := r.URL.Query().Get("companyId")
	if companyID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("companyId query parameter is required"))
		return
	}

	scenarios := s.scenarios.ListActive(companyID)
	slog.Debug("Server.listScenariosHandler: listed scenarios", "companyID", companyID, "count", len(scenarios))
	writeJSONResponse(w, http.StatusOK, models.Success(scenarios))
}

// activeFlowHandler exposes a conversation's active flow for the agent UI.
func (s *Server) activeFlowHandler(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	flow, err := s.engine.ActiveFlow(conversationID)
	if errors.Is(err, models.ErrFlowNotFound) {
		writeJSONResponse(w, http.StatusNotFound, models.Error("No active flow for conversation"))
		return
	}
	if err != nil {
		slog.Error("Server.activeFlowHandler: lookup failed", "error", err, "conversationID", conversationID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to look up flow"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(flow))
}

// cancelFlowHandler abandons a conversation's active flow, the agent-takeover
// path. The flow never resumes afterwards.
func (s *Server) cancelFlowHandler(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")

	err := s.engine.CancelFlow(r.Context(), conversationID)
	if errors.Is(err, models.ErrFlowNotFound) {
		writeJSONResponse(w, http.StatusNotFound, models.Error("No active flow for conversation"))
		return
	}
	if err != nil {
		slog.Error("Server.cancelFlowHandler: cancel failed", "error", err, "conversationID", conversationID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to cancel flow"))
		return
	}

	slog.Info("Server.cancelFlowHandler: flow cancelled", "conversationID", conversationID)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Flow cancelled", nil))
}
