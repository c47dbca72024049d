// Command callengine is the reference entrypoint: it wires configuration,
// logging, the call-record store, the SIP transport, the hosted
// media-stream listener, and the metrics endpoint into one running process.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/code-100-precent/LingEcho/internal/models"
	"github.com/code-100-precent/LingEcho/pkg/config"
	"github.com/code-100-precent/LingEcho/pkg/llm"
	"github.com/code-100-precent/LingEcho/pkg/logger"
	"github.com/code-100-precent/LingEcho/pkg/media"
	"github.com/code-100-precent/LingEcho/pkg/media/hosted"
	"github.com/code-100-precent/LingEcho/pkg/metrics"
	"github.com/code-100-precent/LingEcho/pkg/orchestrator"
	"github.com/code-100-precent/LingEcho/pkg/recognizer"
	"github.com/code-100-precent/LingEcho/pkg/recording"
	"github.com/code-100-precent/LingEcho/pkg/sip"
	"github.com/code-100-precent/LingEcho/pkg/synthesizer"
)

func main() {
	envFile := flag.String("env", "", "path to .env file")
	mode := flag.String("mode", "production", "dev|production")
	flag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		panic(err)
	}

	if err := logger.Init(&cfg.Log, *mode); err != nil {
		panic(err)
	}
	defer logger.Sync()
	logger.Info("callengine starting", zap.String("addr", cfg.Server.Addr))

	db, err := gorm.Open(sqlite.Open(cfg.Database.DSN), &gorm.Config{})
	if err != nil {
		logger.Fatal("open call record store failed", zap.Error(err))
	}
	if err := db.AutoMigrate(&models.CallRecord{}); err != nil {
		logger.Fatal("migrate call record store failed", zap.Error(err))
	}

	metrics.MustRegister(prometheus.DefaultRegisterer)

	recordings := recording.NewRegistry(nil)
	router := media.NewDialogRouter()
	llmHistory := llm.NewRegistry()

	transport, err := sip.NewTransport(sip.Config{
		ListenAddr:    cfg.Server.Addr,
		TrunkHost:     cfg.SIP.TrunkHost,
		TrunkPort:     cfg.SIP.TrunkPort,
		Username:      cfg.SIP.Username,
		Password:      cfg.SIP.Password,
		DisplayName:   cfg.SIP.DisplayName,
		RegisterEvery: time.Duration(cfg.SIP.RegisterEvery) * time.Second,
	})
	if err != nil {
		logger.Fatal("create sip transport failed", zap.Error(err))
	}
	transport.OnDialogEnded = router.Dispatch

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go transport.RunRegistrationLoop(ctx)

	engine := &callEngine{cfg: cfg, db: db, recordings: recordings, transport: transport, router: router, llmHistory: llmHistory}

	mux := http.NewServeMux()
	mux.Handle(cfg.Server.MetricsPath, promhttp.Handler())
	mux.HandleFunc(cfg.Server.MediaStreamURL, engine.handleMediaStream)
	mux.HandleFunc("/calls", engine.handlePlaceCall)

	srv := &http.Server{Addr: cfg.Server.Addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("callengine shutting down")
	cancel()
	_ = srv.Close()
	_ = transport.Close()
}

// callEngine holds the process-wide collaborators each inbound call wires
// an orchestrator session against.
type callEngine struct {
	cfg        *config.Config
	db         *gorm.DB
	recordings *recording.Registry
	transport  *sip.Transport
	router     *media.DialogRouter
	llmHistory *llm.Registry
}

// newSession builds a fresh STT/LLM/TTS pipeline and orchestrator session
// for one call, per the default (agent-CRUD-free) process-wide settings in
// cfg.Call/cfg.Transcriber/cfg.LLM/cfg.TTS. The chat client's summarization
// notes are tracked in the process-wide llmHistory registry keyed by callID.
func (e *callEngine) newSession(ctx context.Context, callID string) (*orchestrator.Session, error) {
	sttProvider, err := recognizer.NewFactory().Create(e.cfg.Transcriber.Provider, e.cfg.Transcriber.APIKey, recognizer.Options{
		SampleRate:     8000,
		Language:       e.cfg.Transcriber.Language,
		InterimResults: true,
		EndpointingMs:  300,
		UtteranceEndMs: 1000,
	})
	if err != nil {
		return nil, err
	}

	ttsProvider, err := synthesizer.NewFactory().Create(e.cfg.TTS.Provider, synthesizer.Config{
		APIKey:          e.cfg.TTS.APIKey,
		VoiceID:         e.cfg.TTS.VoiceID,
		ModelID:         e.cfg.TTS.ModelID,
		Region:          e.cfg.TTS.Region,
		SampleRate:      8000,
		Stability:       e.cfg.TTS.Stability,
		SimilarityBoost: e.cfg.TTS.SimilarityBoost,
		Speed:           e.cfg.TTS.Speed,
		UseSpeakerBoost: e.cfg.TTS.UseSpeakerBoost,
		LanguageCode:    e.cfg.TTS.LanguageCode,
	})
	if err != nil {
		return nil, err
	}

	llmProvider := llm.NewProvider(ctx, e.cfg.LLM.Provider, e.cfg.LLM.APIKey, e.cfg.LLM.BaseURL, e.cfg.LLM.SystemPrompt)
	if openAI, ok := llmProvider.(*llm.OpenAIProvider); ok {
		openAI.WithModel(e.cfg.LLM.Model).WithTemperature(e.cfg.LLM.Temperature).WithMaxTokens(e.cfg.LLM.MaxTokens)
	}
	chatClient := llm.NewClient(llmProvider, e.cfg.LLM.HistoryLimit, e.cfg.LLM.RetainedTurns)
	chatClient.Bind(e.llmHistory, callID)

	var sess *orchestrator.Session
	var sttErrMu sync.Mutex
	var lastSTTErr time.Time
	utt := recognizer.NewUtterance(sttProvider, time.Duration(e.cfg.Call.UtteranceFallbackMs)*time.Millisecond,
		func(text string) { sess.ResetSilenceTimer() },
		func(text string) { sess.CommitUtterance(text) },
		func(err error) {
			logrus.WithError(err).Warn("callengine: recognizer stream failed")
			// A single recognizer error is logged and the call continues; a
			// second one within 5 s ends the call.
			sttErrMu.Lock()
			repeated := !lastSTTErr.IsZero() && time.Since(lastSTTErr) < 5*time.Second
			lastSTTErr = time.Now()
			sttErrMu.Unlock()
			if repeated {
				sess.End(orchestrator.EndReasonError)
			}
		})

	mode := orchestrator.FirstMessageModeUserSpeaksFirst
	if e.cfg.Call.FirstMessageMode == string(orchestrator.FirstMessageModeAssistantSpeaksFirst) {
		mode = orchestrator.FirstMessageModeAssistantSpeaksFirst
	}

	sess = orchestrator.New(ctx, orchestrator.Config{
		FirstMessageMode:      mode,
		FirstMessage:          e.cfg.Call.FirstMessage,
		SilenceTimeoutSeconds: e.cfg.Call.SilenceTimeoutSeconds,
		MaxDurationSeconds:    e.cfg.Call.MaxDurationSeconds,
		ResponseDelaySeconds:  e.cfg.Call.ResponseDelaySeconds,
	}, utt, chatClient, ttsProvider)

	if err := utt.Start(ctx); err != nil {
		return nil, err
	}
	return sess, nil
}

// handleMediaStream accepts one hosted WebSocket media-stream connection
// (§6.2) and wires it to a fresh per-call orchestrator session once the
// start event names an agent, buffering media until then.
func (e *callEngine) handleMediaStream(w http.ResponseWriter, r *http.Request) {
	conn, err := hosted.Accept(w, r)
	if err != nil {
		logrus.WithError(err).Warn("callengine: websocket upgrade failed")
		return
	}

	conn.OnStart = func(agentID, callSID string) {
		callID := callSID
		if callID == "" {
			callID = uuid.NewString()
		}
		if err := models.CreateCallRecord(e.db, &models.CallRecord{
			ID:        callID,
			Status:    models.CallRecordStatusInProgress,
			StartedAt: time.Now(),
			AgentID:   agentID,
		}); err != nil {
			logrus.WithError(err).WithField("call_id", callID).Warn("callengine: create call record failed")
		}

		sess, err := e.newSession(context.Background(), callID)
		if err != nil {
			logrus.WithError(err).WithField("call_id", callID).Error("callengine: build session failed")
			conn.Close()
			return
		}
		media.NewHostedBridge(e.db, e.recordings, conn, sess, callID)
		sess.Start()
		conn.Ready()
	}

	go conn.ReadLoop()
}

// placeCallRequest is the JSON body accepted by the call-origination
// endpoint: a target SIP URI plus the agent identifier used only for the
// persisted call record, since agent configuration CRUD is out of scope.
type placeCallRequest struct {
	TargetURI string `json:"targetUri"`
	AgentID   string `json:"agentId"`
}

// handlePlaceCall originates an outbound SIP call (§4.6 INVITE flow) and
// wires the resulting dialog to a fresh orchestrator session.
func (e *callEngine) handlePlaceCall(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req placeCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TargetURI == "" {
		http.Error(w, "targetUri required", http.StatusBadRequest)
		return
	}

	callID := uuid.NewString()
	rtpPort := e.cfg.RTP.PortMin + int(time.Now().UnixNano()%int64(e.cfg.RTP.PortMax-e.cfg.RTP.PortMin+1))

	ctx := context.Background()
	result, err := e.transport.PlaceCall(ctx, req.TargetURI, rtpPort)
	if err != nil {
		logrus.WithError(err).WithField("target", req.TargetURI).Warn("callengine: place call failed")
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	if err := models.CreateCallRecord(e.db, &models.CallRecord{
		ID:             callID,
		Status:         models.CallRecordStatusInProgress,
		StartedAt:      time.Now(),
		AgentID:        req.AgentID,
		CustomerNumber: req.TargetURI,
	}); err != nil {
		logrus.WithError(err).WithField("call_id", callID).Warn("callengine: create call record failed")
	}

	sess, err := e.newSession(ctx, callID)
	if err != nil {
		logrus.WithError(err).WithField("call_id", callID).Error("callengine: build session failed")
		_ = e.transport.Hangup(result.Dialog)
		http.Error(w, "pipeline init failed", http.StatusInternalServerError)
		return
	}

	if _, err := media.NewSIPBridge(ctx, e.db, e.recordings, e.transport, e.router, result.Dialog, sess, callID); err != nil {
		logrus.WithError(err).WithField("call_id", callID).Error("callengine: wire sip bridge failed")
		_ = e.transport.Hangup(result.Dialog)
		http.Error(w, "bridge init failed", http.StatusInternalServerError)
		return
	}
	sess.Start()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"callId": callID})
}
