/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/tranductrinh/kube-medic/internal/investigation"
	"github.com/tranductrinh/kube-medic/internal/memory"
)

const defaultQueryThread = "default"

type queryRequest struct {
	Question string `json:"question"`
	ThreadID string `json:"threadId"`
}

type queryResponse struct {
	Response string `json:"response"`
	ThreadID string `json:"threadId"`
}

type syncResponse struct {
	InvestigationID string               `json:"investigationId"`
	Response        string               `json:"response"`
	ThreadID        string               `json:"threadId"`
	Status          investigation.Status `json:"status"`
	Inconclusive    bool                 `json:"inconclusive"`
}

type ackResponse struct {
	Status          investigation.Status `json:"status"`
	InvestigationID string               `json:"investigationId"`
	ThreadID        string               `json:"threadId,omitempty"`
}

type statsResponse struct {
	Pipeline investigation.Stats `json:"pipeline"`
	Memory   *memory.Stats       `json:"memory,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error(err, "Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// readBody returns the limited request body, or writes the error response
// and returns false.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		} else {
			writeError(w, http.StatusBadRequest, "failed to read request body")
		}
		return nil, false
	}
	return body, true
}

// readPayload reads a body that must be valid JSON.
func readPayload(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, ok := readBody(w, r)
	if !ok {
		return nil, false
	}
	if !json.Valid(body) {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return nil, false
	}
	return body, true
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"agentReady": s.pipeline.Ready(),
	})
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, ok := readPayload(w, r)
	if !ok {
		return
	}
	res, err := s.pipeline.Submit(r.Context(), investigation.Request{
		Payload:  body,
		Mode:     investigation.ModeAsync,
		ThreadID: r.URL.Query().Get("threadId"),
	})
	switch {
	case errors.Is(err, investigation.ErrQueueFull), errors.Is(err, investigation.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	case res.Status == investigation.StatusSkipped:
		writeJSON(w, http.StatusOK, ackResponse{Status: res.Status, InvestigationID: res.InvestigationID})
	default:
		writeJSON(w, http.StatusAccepted, ackResponse{
			Status:          res.Status,
			InvestigationID: res.InvestigationID,
			ThreadID:        res.ThreadID,
		})
	}
}

func (s *Server) handleWebhookSync(w http.ResponseWriter, r *http.Request) {
	body, ok := readPayload(w, r)
	if !ok {
		return
	}
	res, err := s.pipeline.Submit(r.Context(), investigation.Request{
		Payload:  body,
		Mode:     investigation.ModeSync,
		ThreadID: r.URL.Query().Get("threadId"),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, syncResponse{
		InvestigationID: res.InvestigationID,
		Response:        res.Text(),
		ThreadID:        res.ThreadID,
		Status:          res.Status,
		Inconclusive:    res.Inconclusive,
	})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	var req queryRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}
	if req.ThreadID == "" {
		req.ThreadID = defaultQueryThread
	}

	res := s.pipeline.Ask(r.Context(), req.Question, req.ThreadID)
	writeJSON(w, http.StatusOK, queryResponse{Response: res.Text(), ThreadID: req.ThreadID})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	resp := statsResponse{Pipeline: s.pipeline.Stats()}
	if s.memory != nil {
		ms := s.memory.Stats()
		resp.Memory = &ms
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListDeadLetters(w http.ResponseWriter, _ *http.Request) {
	dead := s.pipeline.DeadLetters()
	if dead == nil {
		dead = []investigation.DeadLetter{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":  len(dead),
		"failed": dead,
	})
}

func (s *Server) handleClearDeadLetters(w http.ResponseWriter, _ *http.Request) {
	n := s.pipeline.ClearDeadLetters()
	log.Info("Dead letters cleared", "count", n)
	writeJSON(w, http.StatusOK, map[string]int{"cleared": n})
}

func (s *Server) handleRetryDeadLetter(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil || index < 0 {
		writeError(w, http.StatusBadRequest, "index must be a non-negative integer")
		return
	}
	res, err := s.pipeline.RetryDeadLetter(r.Context(), index)
	switch {
	case errors.Is(err, investigation.ErrDeadLetterNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, investigation.ErrQueueFull), errors.Is(err, investigation.ErrClosed):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusAccepted, ackResponse{
			Status:          res.Status,
			InvestigationID: res.InvestigationID,
			ThreadID:        res.ThreadID,
		})
	}
}
