package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/lokutor-ai/dialogue-orchestrator/pkg/audio"
	"github.com/lokutor-ai/dialogue-orchestrator/pkg/httpapi"
	"github.com/lokutor-ai/dialogue-orchestrator/pkg/monitor"
	"github.com/lokutor-ai/dialogue-orchestrator/pkg/pipeline"
	"github.com/lokutor-ai/dialogue-orchestrator/pkg/promptstore"
	asrProvider "github.com/lokutor-ai/dialogue-orchestrator/pkg/providers/asr"
	llmProvider "github.com/lokutor-ai/dialogue-orchestrator/pkg/providers/llm"
	ttsProvider "github.com/lokutor-ai/dialogue-orchestrator/pkg/providers/tts"
	"github.com/lokutor-ai/dialogue-orchestrator/pkg/service"
	"github.com/lokutor-ai/dialogue-orchestrator/pkg/task"
	"github.com/lokutor-ai/dialogue-orchestrator/pkg/wsgateway"
)

// echoThreshold is the RMS gate Capture applies before handing a frame to
// the Monitor; tuned for a quiet room with the speaker audible in the mic.
const echoThreshold = 0.02

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("agent: no .env file found, using process environment")
	}

	groqKey := os.Getenv("GROQ_API_KEY")
	openaiKey := os.Getenv("OPENAI_API_KEY")
	anthropicKey := os.Getenv("ANTHROPIC_API_KEY")
	googleKey := os.Getenv("GOOGLE_API_KEY")
	deepgramKey := os.Getenv("DEEPGRAM_API_KEY")
	assemblyKey := os.Getenv("ASSEMBLYAI_API_KEY")
	lokutorKey := os.Getenv("LOKUTOR_API_KEY")
	if lokutorKey == "" {
		log.Fatal("agent: LOKUTOR_API_KEY must be set")
	}

	asrEngine := buildASREngine(os.Getenv("ASR_PROVIDER"), groqKey, openaiKey, deepgramKey, assemblyKey)
	llmEngine := buildLLMEngine(os.Getenv("LLM_PROVIDER"), groqKey, openaiKey, anthropicKey, googleKey)

	lang := task.Language(os.Getenv("AGENT_LANGUAGE"))
	if lang != task.LanguageZH {
		lang = task.LanguageEN
	}
	voice := task.Voice(os.Getenv("AGENT_VOICE"))
	if voice == "" {
		voice = task.VoiceF1
	}
	ttsEngine := swappableTTS{current: ttsProvider.NewLokutorTTS(lokutorKey, voice, lang)}

	httpAddr := os.Getenv("AGENT_HTTP_ADDR")
	if httpAddr == "" {
		httpAddr = ":8080"
	}

	registry := task.NewStateRegistry()
	history := task.NewHistoryCache()
	silenceOverThreshold := task.NewSignal()
	userStillSpeaking := task.NewSignal()
	queues := pipeline.NewQueues()

	prompts, err := promptstore.New()
	if err != nil {
		log.Fatalf("agent: loading prompt store: %v", err)
	}

	suppressor := audio.NewEchoSuppressor()
	capture := audio.NewCapture(audio.NewEchoCancelledCapture(suppressor, echoThreshold), queues.Frames)
	player := audio.NewPlayer(suppressor)

	mon := monitor.New(monitor.DefaultConfig(), registry, silenceOverThreshold, userStillSpeaking, queues.Frames, queues.ASR)
	asrStage := pipeline.NewASRStage(asrEngine, registry, userStillSpeaking, queues.ASR, queues.LLM)
	llmStage := pipeline.NewLLMStage(llmEngine, registry, prompts, history, queues.LLM, queues.TTS)
	ttsStage := pipeline.NewTTSStage(&ttsEngine, registry, userStillSpeaking, queues.TTS, queues.Playback)
	playbackStage := pipeline.NewPlaybackStage(player, registry, silenceOverThreshold, userStillSpeaking, history, queues.Playback, queues.UIEvents)
	gateway := wsgateway.New(queues.UIEvents)

	manager := service.NewManager()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	definitions := []service.Definition{
		{Name: "asr", Factory: func() (service.Service, error) { return asrStage, nil }, Required: true},
		{Name: "llm", Factory: func() (service.Service, error) { return llmStage, nil }, Required: true, StartupTimeout: 180 * time.Second},
		{Name: "tts", Factory: func() (service.Service, error) { return ttsStage, nil }, Required: true, StartupTimeout: 120 * time.Second},
		{Name: "player", Factory: func() (service.Service, error) { return player, nil }, Required: true},
		{Name: "playback", Factory: func() (service.Service, error) { return playbackStage, nil }, Required: true, Dependencies: []string{"tts", "player"}},
		{Name: "monitor", Factory: func() (service.Service, error) { return mon, nil }, Required: true, Dependencies: []string{"asr"}},
		{Name: "capture", Factory: func() (service.Service, error) { return capture, nil }, Required: true, Dependencies: []string{"monitor"}},
		{Name: "wsgateway", Factory: func() (service.Service, error) { return gateway, nil }, Required: false},
	}
	for _, def := range definitions {
		if err := manager.Start(ctx, def); err != nil {
			log.Fatalf("agent: %v", err)
		}
	}

	api := &httpapi.Server{
		Manager:  manager,
		Registry: registry,
		Prompts:  prompts,
		Gateway:  gateway,
		Capture:  capture,
		Player:   player,
		SwapTTS: func(voice task.Voice, lang task.Language) error {
			next := ttsProvider.NewLokutorTTS(lokutorKey, voice, lang)
			if err := next.Setup(ctx); err != nil {
				return err
			}
			old := ttsEngine.swap(next)
			if err := old.Abort(); err != nil {
				log.Printf("agent: closing previous tts connection: %v", err)
			}
			return nil
		},
	}

	httpServer := &http.Server{Addr: httpAddr, Handler: api.Mux()}
	go func() {
		log.Printf("agent: http control surface listening on %s", httpAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("agent: http server error: %v", err)
		}
	}()

	fmt.Printf("Dialogue orchestrator running (asr=%s llm=%s tts=%s). Press Ctrl+C to exit.\n", asrEngine.Name(), llmEngine.Name(), ttsEngine.Name())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	fmt.Println("\nagent: shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)

	manager.Stop()
	cancel()
}

// swappableTTS lets the control surface hot-swap the active voice/language
// without restarting the TTS stage's Run loop, since the ServiceManager has
// no single-service restart primitive: every Synthesize call reads the
// current engine pointer under a lock.
type swappableTTS struct {
	mu      sync.RWMutex
	current ttsProvider.Engine
}

func (s *swappableTTS) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Name()
}

func (s *swappableTTS) Setup(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Setup(ctx)
}

func (s *swappableTTS) Warmup(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Warmup(ctx)
}

func (s *swappableTTS) Synthesize(ctx context.Context, text string) ([]float32, int, error) {
	s.mu.RLock()
	engine := s.current
	s.mu.RUnlock()
	return engine.Synthesize(ctx, text)
}

func (s *swappableTTS) Abort() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Abort()
}

// swap installs next as the active engine and returns the engine it
// replaced, so the caller can close its connection (e.g. Abort the
// outgoing LokutorTTS's websocket). A Synthesize call that already picked
// up the old engine keeps using it, and closing that engine may cut it
// short.
func (s *swappableTTS) swap(next ttsProvider.Engine) ttsProvider.Engine {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.current
	s.current = next
	return old
}

func buildASREngine(name, groqKey, openaiKey, deepgramKey, assemblyKey string) asrProvider.Engine {
	switch name {
	case "openai":
		if openaiKey == "" {
			log.Fatal("agent: OPENAI_API_KEY must be set for openai ASR")
		}
		return asrProvider.NewOpenAIEngine(openaiKey, "whisper-1")
	case "deepgram":
		if deepgramKey == "" {
			log.Fatal("agent: DEEPGRAM_API_KEY must be set for deepgram ASR")
		}
		return asrProvider.NewDeepgramEngine(deepgramKey)
	case "assemblyai":
		if assemblyKey == "" {
			log.Fatal("agent: ASSEMBLYAI_API_KEY must be set for assemblyai ASR")
		}
		return asrProvider.NewAssemblyAIEngine(assemblyKey)
	case "groq", "":
		if groqKey == "" {
			log.Fatal("agent: GROQ_API_KEY must be set for groq ASR")
		}
		model := os.Getenv("GROQ_ASR_MODEL")
		if model == "" {
			model = "whisper-large-v3-turbo"
		}
		return asrProvider.NewGroqEngine(groqKey, model)
	default:
		log.Fatalf("agent: unknown ASR_PROVIDER %q", name)
		return nil
	}
}

func buildLLMEngine(name, groqKey, openaiKey, anthropicKey, googleKey string) llmProvider.Engine {
	switch name {
	case "openai":
		if openaiKey == "" {
			log.Fatal("agent: OPENAI_API_KEY must be set for openai LLM")
		}
		return llmProvider.NewOpenAILLM(openaiKey, "gpt-4o")
	case "anthropic":
		if anthropicKey == "" {
			log.Fatal("agent: ANTHROPIC_API_KEY must be set for anthropic LLM")
		}
		return llmProvider.NewAnthropicLLM(anthropicKey, "claude-3-5-sonnet-20241022")
	case "google":
		if googleKey == "" {
			log.Fatal("agent: GOOGLE_API_KEY must be set for google LLM")
		}
		return llmProvider.NewGoogleLLM(googleKey, "gemini-1.5-flash")
	case "groq", "":
		if groqKey == "" {
			log.Fatal("agent: GROQ_API_KEY must be set for groq LLM")
		}
		return llmProvider.NewGroqLLM(groqKey, "llama-3.3-70b-versatile")
	default:
		log.Fatalf("agent: unknown LLM_PROVIDER %q", name)
		return nil
	}
}
