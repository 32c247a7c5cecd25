package httpapi

import (
	"fmt"
	"net/http"

	"github.com/architectagent/architect/internal/service"
	"github.com/architectagent/architect/internal/session"
)

func (h *handlers) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) handleRunStart(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxBodyBytes)
	var req service.StartRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeMappedError(w, err)
		return
	}

	runID, err := h.svc.Start(r.Context(), req)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	w.Header().Set("Location", "/v1/runs/"+runID)
	writeJSON(w, http.StatusAccepted, startResponse{RunID: runID, Status: session.StatusRunning})
}

func (h *handlers) handleRunList(w http.ResponseWriter, r *http.Request) {
	runs, err := h.svc.List(r.Context())
	if err != nil {
		writeMappedError(w, err)
		return
	}
	if runs == nil {
		runs = []session.Summary{}
	}
	writeJSON(w, http.StatusOK, listResponse{Runs: runs})
}

func (h *handlers) handleRunQuery(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Status(r.Context(), r.PathValue("run_id"))
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *handlers) handleRunCancel(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")
	if err := h.svc.Cancel(r.Context(), runID); err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, actionResponse{RunID: runID, Action: "cancel"})
}

func (h *handlers) handleRunResume(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")
	if err := h.svc.Resume(r.Context(), runID); err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, actionResponse{RunID: runID, Action: "resume"})
}

func (h *handlers) handleBlueprint(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")
	md, err := h.svc.Blueprint(r.Context(), runID)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	if r.URL.Query().Get("download") != "" {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "blueprint-"+runID+".md"))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(md))
}

func (h *handlers) handlePatterns(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Patterns())
}

type analyzeRequest struct {
	Requirements string `json:"requirements"`
}

func (h *handlers) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxBodyBytes)
	var req analyzeRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeMappedError(w, err)
		return
	}
	if len([]rune(req.Requirements)) < service.MinRequirementsLength {
		writeError(w, http.StatusBadRequest, errorCodeInvalidRequest,
			fmt.Sprintf("requirements must be at least %d characters", service.MinRequirementsLength))
		return
	}
	writeJSON(w, http.StatusOK, h.svc.Analyze(req.Requirements))
}
