// Package httpapi exposes the thin control surface spec.md describes: a
// handful of system/ASR/TTS/settings routes plus the websocket upgrade,
// all on a stdlib net/http mux. This is deliberately not a full REST API —
// see spec.md §1's Non-goals.
package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/lokutor-ai/dialogue-orchestrator/pkg/promptstore"
	"github.com/lokutor-ai/dialogue-orchestrator/pkg/service"
	"github.com/lokutor-ai/dialogue-orchestrator/pkg/task"
	"github.com/lokutor-ai/dialogue-orchestrator/pkg/wsgateway"
)

// CaptureControl is the subset of *audio.Capture the system routes drive.
type CaptureControl interface {
	Pause()
	Resume()
}

// PlaybackControl is the subset of *audio.Player the system routes drive.
type PlaybackControl interface {
	Stop()
	Resume()
}

// TTSSwapper replaces the active TTS engine with one configured for a
// different voice/language. The entrypoint backs it with an in-place engine
// swap; the "tts" service itself keeps running and is not restarted.
type TTSSwapper func(voice task.Voice, lang task.Language) error

// Server holds everything the control routes need. All fields besides
// Manager and Registry are optional; a nil one degrades its routes to a
// 503, rather than a panic, so a partially wired Server is still safe to
// serve during startup.
type Server struct {
	Manager  *service.Manager
	Registry *task.StateRegistry
	Prompts  *promptstore.Store
	Gateway  *wsgateway.Gateway

	Capture CaptureControl
	Player  PlaybackControl
	SwapTTS TTSSwapper
}

// Mux builds the route table described in spec.md §6's HTTP/WebSocket
// surface summary.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /system/status", s.handleStatus)
	mux.HandleFunc("POST /system/start", s.handleStart)
	mux.HandleFunc("POST /system/stop", s.handleStop)
	mux.HandleFunc("POST /system/pause", s.handlePause)
	mux.HandleFunc("POST /system/resume", s.handleResume)
	mux.HandleFunc("POST /system/restart", s.handleRestart)

	mux.HandleFunc("GET /asr/languages", s.handleASRLanguages)

	mux.HandleFunc("GET /tts/models", s.handleTTSModels)
	mux.HandleFunc("POST /tts/models/{id}/load", s.handleTTSLoad)
	mux.HandleFunc("GET /tts/models/{id}/status", s.handleTTSStatus)

	withPrompts := func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if s.Prompts == nil {
				writeError(w, http.StatusServiceUnavailable, fmt.Errorf("prompt store not wired"))
				return
			}
			h(w, r)
		}
	}
	mux.HandleFunc("GET /settings/prompts", withPrompts(s.handleGetPrompts))
	mux.HandleFunc("PUT /settings/prompts/{lang}", withPrompts(s.handleUpdatePrompt))
	mux.HandleFunc("DELETE /settings/prompts", withPrompts(s.handleResetPrompts))
	mux.HandleFunc("GET /settings/prompts/defaults", withPrompts(s.handleDefaults))

	mux.HandleFunc("GET /ws/{session_id}", s.handleWebSocket)

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

type systemStatusResponse struct {
	Services []service.Status `json:"services"`
	Errors   map[string]error `json:"startup_errors,omitempty"`
	Session  string           `json:"current_session_id"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, systemStatusResponse{
		Services: s.Manager.Status(),
		Errors:   s.Manager.StartupErrors(),
		Session:  s.Registry.CurrentSessionID(),
	})
}

type systemActionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if s.Capture == nil || s.Player == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("capture/playback not wired"))
		return
	}
	s.Capture.Resume()
	s.Player.Resume()
	writeJSON(w, http.StatusOK, systemActionResponse{Success: true, Message: "system started"})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if s.Capture == nil || s.Player == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("capture/playback not wired"))
		return
	}
	s.Capture.Pause()
	s.Player.Stop()
	writeJSON(w, http.StatusOK, systemActionResponse{Success: true, Message: "system stopped"})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if s.Capture == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("capture not wired"))
		return
	}
	s.Capture.Pause()
	writeJSON(w, http.StatusOK, systemActionResponse{Success: true, Message: "capture paused"})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if s.Capture == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("capture not wired"))
		return
	}
	s.Capture.Resume()
	writeJSON(w, http.StatusOK, systemActionResponse{Success: true, Message: "capture resumed"})
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	if s.Capture == nil || s.Player == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("capture/playback not wired"))
		return
	}
	s.Capture.Pause()
	s.Player.Stop()
	s.Capture.Resume()
	s.Player.Resume()
	writeJSON(w, http.StatusOK, systemActionResponse{Success: true, Message: "system restarted"})
}

func (s *Server) handleASRLanguages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, []task.Language{task.LanguageZH, task.LanguageEN})
}

func (s *Server) handleTTSModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, []task.Voice{
		task.VoiceF1, task.VoiceF2, task.VoiceF3,
		task.VoiceM1, task.VoiceM2, task.VoiceM3,
	})
}

type ttsLoadRequest struct {
	Language task.Language `json:"language"`
}

func (s *Server) handleTTSLoad(w http.ResponseWriter, r *http.Request) {
	if s.SwapTTS == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("tts engine swap not wired"))
		return
	}
	voice := task.Voice(r.PathValue("id"))

	var req ttsLoadRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req)
	}
	lang := req.Language
	if lang == "" {
		lang = task.LanguageEN
	}

	if err := s.SwapTTS(voice, lang); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, systemActionResponse{Success: true, Message: fmt.Sprintf("loaded voice %s", voice)})
}

func (s *Server) handleTTSStatus(w http.ResponseWriter, r *http.Request) {
	svc, ok := s.Manager.Get("tts")
	if !ok {
		writeJSON(w, http.StatusOK, map[string]bool{"ready": false})
		return
	}
	ready := true
	if rc, ok := svc.(service.ReadinessChecker); ok {
		ready = rc.IsReady()
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ready": ready})
}

type promptsResponse struct {
	Chinese string `json:"chinese_prompt"`
	English string `json:"english_prompt"`
}

func (s *Server) handleGetPrompts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, promptsResponse{
		Chinese: s.Prompts.RawPrompt(task.LanguageZH),
		English: s.Prompts.RawPrompt(task.LanguageEN),
	})
}

type updatePromptRequest struct {
	Prompt string `json:"prompt"`
}

func (s *Server) handleUpdatePrompt(w http.ResponseWriter, r *http.Request) {
	lang := task.Language(r.PathValue("lang"))

	var req updatePromptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.Prompts.Update(lang, req.Prompt); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, systemActionResponse{Success: true, Message: "prompt updated"})
}

func (s *Server) handleResetPrompts(w http.ResponseWriter, r *http.Request) {
	if err := s.Prompts.Reset(); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, systemActionResponse{Success: true, Message: "prompts reset"})
}

func (s *Server) handleDefaults(w http.ResponseWriter, r *http.Request) {
	defaults := s.Prompts.Defaults()
	writeJSON(w, http.StatusOK, promptsResponse{
		Chinese: defaults[task.LanguageZH],
		English: defaults[task.LanguageEN],
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.Gateway == nil {
		writeError(w, http.StatusServiceUnavailable, fmt.Errorf("websocket gateway not wired"))
		return
	}
	s.Gateway.ServeHTTP(w, r, r.PathValue("session_id"))
}
