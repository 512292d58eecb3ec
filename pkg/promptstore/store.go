// Package promptstore persists the user's per-language system prompt
// overrides as a small write-through JSON document, the one piece of state
// the dialogue engine keeps across restarts.
package promptstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/lokutor-ai/dialogue-orchestrator/pkg/task"
)

// Default system prompts, used whenever the user has not overridden a
// language.
const (
	DefaultChinesePrompt = "你是AI助手。请以自然流畅的中文口语化表达直接回答问题，避免冗余的思考过程。" +
		"你的回答第一句话必须少于十个字。每段回答控制在二到三句话，既不要过短也不要过长，以适应对话语境。" +
		"回答应准确、精炼且有依据。"

	DefaultEnglishPrompt = "You are an AI assistant. " +
		"Please answer directly and naturally, using conversational English, without showing your thinking process. " +
		"Your first sentence must be less than 10 words. " +
		"Your responses should be accurate, concise, and well-supported, ideally around 2-3 sentences long to ensure a good conversational flow."

	// noThinkDirective is appended to every system prompt sent to the LLM
	// (never to the raw, user-facing value) so reasoning-capable models
	// skip their visible chain-of-thought.
	noThinkDirective = "/no_think"

	configDirName  = "dialogue-orchestrator"
	promptsFile    = "prompts.json"
)

const (
	keyChinese = "chinese_prompt"
	keyEnglish = "english_prompt"
)

// Store loads, caches, and write-through persists user prompt overrides.
// Safe for concurrent use; the LLM stage reads SystemPrompt from its own
// goroutine while an HTTP handler may concurrently call Update/Reset.
type Store struct {
	mu     sync.RWMutex
	path   string
	loaded bool
	prompts map[string]string
}

// New builds a Store rooted at os.UserConfigDir()/dialogue-orchestrator/prompts.json.
func New() (*Store, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("%w: resolve user config dir: %v", task.ErrConfig, err)
	}
	return NewAtPath(filepath.Join(dir, configDirName, promptsFile)), nil
}

// NewAtPath builds a Store at an explicit path, primarily for tests.
func NewAtPath(path string) *Store {
	return &Store{path: path, prompts: make(map[string]string)}
}

func (s *Store) ensureLoaded() {
	if s.loaded {
		return
	}
	s.loaded = true

	data, err := os.ReadFile(s.path)
	if err != nil {
		return
	}
	var prompts map[string]string
	if err := json.Unmarshal(data, &prompts); err != nil {
		return
	}
	s.prompts = prompts
}

// RawPrompt returns the stored or default prompt for a language, with no
// /no_think directive appended; used by the settings API to show the user
// what they are actually editing.
func (s *Store) RawPrompt(lang task.Language) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()
	return s.rawLocked(lang)
}

func (s *Store) rawLocked(lang task.Language) string {
	key, def := keyAndDefault(lang)
	if v, ok := s.prompts[key]; ok {
		return v
	}
	return def
}

// SystemPrompt implements pipeline.PromptProvider: the raw prompt with
// /no_think appended if not already present.
func (s *Store) SystemPrompt(lang task.Language) string {
	raw := s.RawPrompt(lang)
	if strings.Contains(raw, noThinkDirective) {
		return raw
	}
	return strings.TrimRight(raw, " \t\n") + "\n" + noThinkDirective
}

// Defaults returns the built-in prompts, unaffected by any override.
func (s *Store) Defaults() map[task.Language]string {
	return map[task.Language]string{
		task.LanguageZH: DefaultChinesePrompt,
		task.LanguageEN: DefaultEnglishPrompt,
	}
}

// Update overrides lang's prompt and persists the whole document.
func (s *Store) Update(lang task.Language, prompt string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoaded()

	key, _ := keyAndDefault(lang)
	next := make(map[string]string, len(s.prompts)+1)
	for k, v := range s.prompts {
		next[k] = v
	}
	next[key] = prompt

	if err := s.persist(next); err != nil {
		return err
	}
	s.prompts = next
	return nil
}

// Reset removes every override, reverting both languages to their
// defaults, and deletes the persisted file.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: reset prompts: %v", task.ErrConfig, err)
	}
	s.prompts = make(map[string]string)
	s.loaded = true
	return nil
}

func (s *Store) persist(prompts map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("%w: create config dir: %v", task.ErrConfig, err)
	}
	data, err := json.MarshalIndent(prompts, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal prompts: %v", task.ErrConfig, err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("%w: write prompts: %v", task.ErrConfig, err)
	}
	return nil
}

func keyAndDefault(lang task.Language) (key, def string) {
	if lang == task.LanguageZH {
		return keyChinese, DefaultChinesePrompt
	}
	return keyEnglish, DefaultEnglishPrompt
}
