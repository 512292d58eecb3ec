package pipeline

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/lokutor-ai/dialogue-orchestrator/pkg/llmseg"
	"github.com/lokutor-ai/dialogue-orchestrator/pkg/providers/llm"
	"github.com/lokutor-ai/dialogue-orchestrator/pkg/task"
)

// PromptProvider resolves the system prompt for a language, including any
// user override, at the moment a task enters the LLM stage.
type PromptProvider interface {
	SystemPrompt(lang task.Language) string
}

// LLMStage streams the assistant's answer and segments it into playable
// sentences, optimizing for time-to-first-sentence.
type LLMStage struct {
	engine   llm.Engine
	registry *task.StateRegistry
	prompts  PromptProvider
	history  *task.HistoryCache

	in  <-chan task.VoiceTask
	out chan<- task.VoiceTask

	ready atomic.Bool
}

func NewLLMStage(engine llm.Engine, registry *task.StateRegistry, prompts PromptProvider, history *task.HistoryCache, in <-chan task.VoiceTask, out chan<- task.VoiceTask) *LLMStage {
	return &LLMStage{
		engine:   engine,
		registry: registry,
		prompts:  prompts,
		history:  history,
		in:       in,
		out:      out,
	}
}

func (s *LLMStage) IsReady() bool { return s.ready.Load() }

func (s *LLMStage) Run(ctx context.Context) error {
	s.ready.Store(true)

	for {
		select {
		case <-ctx.Done():
			return nil
		case vt, ok := <-s.in:
			if !ok {
				return nil
			}
			s.process(ctx, vt)
		case <-time.After(time.Second):
		}
	}
}

func (s *LLMStage) process(ctx context.Context, vt task.VoiceTask) {
	if !s.registry.IsValid(vt) {
		return
	}

	systemPrompt := s.prompts.SystemPrompt(vt.Language)
	history := s.history.Get(vt.SessionID).Window()

	llmStart := time.Now()
	chunks, errs := s.engine.Stream(ctx, systemPrompt, history, vt.TranscribedText)

	seg := llmseg.New()
	answerIndex := 0
	aborted := false

	emit := func(sentence string) {
		out := vt
		out.AnswerIndex = answerIndex
		out.AnswerSentence = sentence
		out.LLMStartTime = llmStart
		out.LLMEndTime = time.Now()

		select {
		case s.out <- out:
		case <-ctx.Done():
		}

		answerIndex++
		llmStart = time.Now()
	}

	for chunks != nil || errs != nil {
		select {
		case c, ok := <-chunks:
			if !ok {
				chunks = nil
				continue
			}
			if aborted {
				continue
			}
			if !s.registry.IsValid(vt) {
				aborted = true
				continue
			}
			if isControlChunk(c.Text) {
				continue
			}
			if sentence, emitted := seg.Feed(c.Text); emitted {
				emit(sentence)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil {
				log.Printf("pipeline: llm stream error: %v", err)
				aborted = true
				s.registry.ResetTaskID()
			}
		}
	}

	if !aborted {
		if sentence, ok := seg.Flush(); ok {
			emit(sentence)
		}
	}
}

func isControlChunk(text string) bool {
	switch text {
	case "", "<think>", "</think>", "\n\n":
		return true
	default:
		return false
	}
}
