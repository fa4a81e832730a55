// Package session wires one connected device's pipeline together: frame
// routing, the VAD gate, ASR, intent shortcuts, LLM generation with
// tool-call dispatch, text segmentation, and paced TTS playback, all
// scoped to the lifetime of one WebSocket connection.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/code-100-precent/lingecho-voice/internal/memory"
	"github.com/code-100-precent/lingecho-voice/internal/voice/asr"
	"github.com/code-100-precent/lingecho-voice/internal/voice/devices"
	"github.com/code-100-precent/lingecho-voice/internal/voice/intent"
	"github.com/code-100-precent/lingecho-voice/internal/voice/llmdriver"
	"github.com/code-100-precent/lingecho-voice/internal/voice/model"
	"github.com/code-100-precent/lingecho-voice/internal/voice/router"
	"github.com/code-100-precent/lingecho-voice/internal/voice/segmenter"
	"github.com/code-100-precent/lingecho-voice/internal/voice/ttsqueue"
	"github.com/code-100-precent/lingecho-voice/internal/voice/vadgate"
	"github.com/code-100-precent/lingecho-voice/internal/voiceerr"
	providerllm "github.com/code-100-precent/lingecho-voice/pkg/providers/llm"
	providertts "github.com/code-100-precent/lingecho-voice/pkg/providers/tts"
)

// musicFrameBytes chunks a local music file into fixed-size units the
// same paced queue used for TTS audio can drain, mirroring how every
// other outbound audio source in this package hands the queue opaque
// frames rather than decoding a codec.
const musicFrameBytes = 960

// Deps bundles the already-constructed collaborators a session needs;
// callers build these from configuration once per connection.
type Deps struct {
	Conn    *websocket.Conn
	Model   *model.Session
	ASR     *asr.Driver
	Gate    *vadgate.Gate
	Intent  *intent.Classifier
	LLM     *llmdriver.Driver
	// Provider is the raw chat-completion provider backing LLM, used
	// directly for tool dispatch (InvokeTool) and classifier-mode intent
	// calls, both of which sit outside llmdriver's segmented-speech path.
	Provider providerllm.Provider
	TTS      providertts.Synthesizer

	DeviceReg   *devices.Registry
	MemoryStore *memory.Store

	// SystemPrompt is the configured initial prompt; MemorySummary, if
	// non-empty, is appended to it as the "相关记忆:" block per §4.6.
	SystemPrompt  string
	MemorySummary string

	// WelcomeBody is sent verbatim (plus session_id) as the welcome frame
	// on connect and whenever the client resends hello, per §6's
	// "xiaozhi — welcome frame body" configuration key.
	WelcomeBody map[string]interface{}

	// UseLLMIntent enables the §4.5 Classifier mode: utterances the local
	// shortcut layer doesn't resolve are given one more pass through the
	// LLM with an intent-only prompt before falling through to generation.
	UseLLMIntent bool

	DefaultSpeakerVolume int
	IdleTimeout          time.Duration
	TTSTimeout           time.Duration

	Probe  func(data []byte) (haveVoice bool, voiceStop bool, speechProb float64, err error)
	Logger *zap.Logger
}

// Session owns the per-connection goroutines and state for one device.
type Session struct {
	deps   Deps
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	outMu   sync.Mutex
	queue   *ttsqueue.Queue
	emitter *connEmitter

	stopMu        sync.Mutex
	stopSent      bool
	idleTriggered atomic.Bool
}

// New builds a session bound to Deps, sending the welcome frame
// immediately so the client never has to round-trip a hello first before
// it knows the negotiated configuration (§6). Call Run to start its
// message loop.
func New(parent context.Context, deps Deps) *Session {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)
	s := &Session{deps: deps, logger: logger, ctx: ctx, cancel: cancel}
	s.emitter = newConnEmitter(deps.Conn, &s.outMu, logger)
	s.queue = ttsqueue.New(s.emitter, deps.Model.Audio.FrameDuration, logger)

	systemContent := deps.SystemPrompt
	if deps.MemorySummary != "" {
		systemContent += "\n相关记忆:\n" + deps.MemorySummary
	}
	deps.Model.EnsureSystemTurn(systemContent)

	if err := s.sendWelcome(); err != nil {
		logger.Warn("failed to send welcome frame", zap.Error(err))
	}
	return s
}

// connEmitter adapts the raw websocket connection to ttsqueue.Emitter. A
// single writer goroutine drains outFrames so a slow client connection
// backs up the channel instead of blocking the pacer's caller; its
// length is the backlog the pacer speeds up to recover from. It shares
// outMu with sendJSON since gorilla's Conn forbids concurrent writers
// regardless of message type.
type connEmitter struct {
	conn      *websocket.Conn
	outMu     *sync.Mutex
	outFrames chan []byte
	writeErr  atomic.Value
	logger    *zap.Logger
}

func newConnEmitter(conn *websocket.Conn, outMu *sync.Mutex, logger *zap.Logger) *connEmitter {
	e := &connEmitter{conn: conn, outMu: outMu, outFrames: make(chan []byte, 256), logger: logger}
	go e.writeLoop()
	return e
}

func (e *connEmitter) writeLoop() {
	for data := range e.outFrames {
		e.outMu.Lock()
		err := e.conn.WriteMessage(websocket.BinaryMessage, data)
		e.outMu.Unlock()
		if err != nil {
			e.writeErr.Store(err)
			e.logger.Warn("audio frame write failed", zap.Error(err))
		}
	}
}

func (e *connEmitter) SendAudio(data []byte) error {
	if v := e.writeErr.Load(); v != nil {
		return v.(error)
	}
	e.outFrames <- data
	return nil
}

func (e *connEmitter) PendingCount() int {
	return len(e.outFrames)
}

func (e *connEmitter) close() {
	close(e.outFrames)
}

// Run drives the session's read loop until the connection closes or the
// context is cancelled, then tears down.
func (s *Session) Run() {
	defer s.teardown()
	go s.idleWatcher()

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}
		msgType, data, err := s.deps.Conn.ReadMessage()
		if err != nil {
			s.logger.Info("connection closed", zap.Error(err))
			return
		}
		switch msgType {
		case websocket.BinaryMessage:
			s.handleAudio(data)
		case websocket.TextMessage:
			if err := s.handleText(data); err != nil {
				s.logger.Warn("frame handling failed", zap.Error(err))
			}
		}
	}
}

func (s *Session) handleText(data []byte) error {
	return router.Dispatch(data, router.Handlers{
		OnHello:     s.onHello,
		OnListen:    s.onListen,
		OnAbort:     s.onAbort,
		OnIOTDescs:  s.onIOTDescriptors,
		OnIOTStates: s.onIOTStates,
		OnEcho:      s.echoRaw,
	})
}

// onHello resends the welcome frame. The handshake itself is already
// authorized by the HTTP upgrade handler from transport headers before
// this session ever exists, so hello carries no auth payload of its own.
func (s *Session) onHello(map[string]interface{}) error {
	return s.sendWelcome()
}

func (s *Session) sendWelcome() error {
	body := make(map[string]interface{}, len(s.deps.WelcomeBody)+1)
	for k, v := range s.deps.WelcomeBody {
		body[k] = v
	}
	body["session_id"] = s.deps.Model.ID
	return s.sendJSON(body)
}

func (s *Session) onListen(raw map[string]interface{}) error {
	mode, _ := raw["mode"].(string)
	if mode != "" {
		s.deps.Gate.SetMode(mode)
	}
	state, _ := raw["state"].(string)
	switch state {
	case "start":
		s.deps.Gate.SetManualListening(true)
	case "stop":
		s.deps.Gate.SetManualListening(false)
		s.finalizeTurn()
	case "detect":
		s.deps.Gate.SetManualListening(false)
		s.deps.ASR.Reset()
		if text, ok := raw["text"].(string); ok && text != "" && !s.deps.Model.LLMBusy() {
			s.dispatchRecognizedText(text)
		}
	}
	return nil
}

// onAbort cancels the reply in flight, if any, and sends the one stop
// frame this reply will ever emit: if a generation is mid-stream it will
// observe Cancelled and skip sending its own.
func (s *Session) onAbort() error {
	s.deps.Model.SetCancelled(true)
	s.deps.LLM.Interrupt()
	s.queue.Interrupt()
	s.sendStopOnce()
	return nil
}

func (s *Session) onIOTDescriptors(raw map[string]interface{}) error {
	descs := parseDescriptors(raw)
	s.deps.DeviceReg.ApplyDescriptors(descs, s.deps.DefaultSpeakerVolume)

	for _, d := range descs {
		if d.Name != "Speaker" || !hasMethod(d, "SetVolume") {
			continue
		}
		cmd := map[string]interface{}{
			"type": "iot",
			"commands": []interface{}{
				map[string]interface{}{
					"name":       "Speaker",
					"method":     "SetVolume",
					"parameters": map[string]interface{}{"volume": s.deps.DefaultSpeakerVolume},
				},
			},
		}
		if err := s.sendJSON(cmd); err != nil {
			s.logger.Warn("failed to send default volume command", zap.Error(err))
		}
	}
	return nil
}

func (s *Session) onIOTStates(raw map[string]interface{}) error {
	list, _ := raw["states"].([]interface{})
	for _, item := range list {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		name, _ := m["name"].(string)
		state, ok := m["state"].(map[string]interface{})
		if name == "" || !ok {
			continue
		}
		d, ok := s.deps.Model.Device(name)
		if !ok {
			continue
		}
		for prop, value := range state {
			desc, ok := propertyDescriptor(d, prop)
			if !ok || !devices.TypeMatches(desc.Type, value) {
				s.logger.Warn("dropping iot state update",
					zap.String("device", name), zap.String("property", prop))
				continue
			}
			s.deps.Model.SetProperty(name, prop, value)
		}
	}
	return nil
}

func (s *Session) echoRaw(raw []byte) error {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	return s.deps.Conn.WriteMessage(websocket.TextMessage, raw)
}

func hasMethod(d *model.DeviceDescriptor, name string) bool {
	for _, m := range d.Methods {
		if m.Name == name {
			return true
		}
	}
	return false
}

func propertyDescriptor(d *model.DeviceDescriptor, name string) (model.PropertyDescriptor, bool) {
	for _, p := range d.Properties {
		if p.Name == name {
			return p, true
		}
	}
	return model.PropertyDescriptor{}, false
}

// parseDescriptors reads the §4.9 device capability shape: a list of
// {name, properties: {prop: {type, description}}, methods: {method:
// {description, parameters: {...}}}} entries.
func parseDescriptors(raw map[string]interface{}) []*model.DeviceDescriptor {
	list, _ := raw["descriptors"].([]interface{})
	var out []*model.DeviceDescriptor
	for _, item := range list {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		name, _ := m["name"].(string)
		if name == "" {
			continue
		}
		d := &model.DeviceDescriptor{Name: name}

		if props, ok := m["properties"].(map[string]interface{}); ok {
			for pname, pv := range props {
				pm, _ := pv.(map[string]interface{})
				ptype, _ := pm["type"].(string)
				switch ptype {
				case "number":
					ptype = string(model.PropertyInt)
				case "boolean":
					ptype = string(model.PropertyBool)
				}
				d.Properties = append(d.Properties, model.PropertyDescriptor{
					Name:     pname,
					Type:     model.PropertyType(ptype),
					Writable: true,
				})
			}
		}
		if methods, ok := m["methods"].(map[string]interface{}); ok {
			for mname, mv := range methods {
				mm, _ := mv.(map[string]interface{})
				desc, _ := mm["description"].(string)
				var params []string
				if pm, ok := mm["parameters"].(map[string]interface{}); ok {
					for pname := range pm {
						params = append(params, pname)
					}
				}
				d.Methods = append(d.Methods, model.MethodDescriptor{
					Name:        mname,
					Description: desc,
					Parameters:  params,
				})
			}
		}
		out = append(out, d)
	}
	return out
}

func (s *Session) handleAudio(data []byte) {
	dec, err := s.deps.Gate.Feed(s.ctx, data, s.probe)
	if err != nil {
		s.logger.Warn("vad probe failed", zap.Error(err))
		return
	}
	if len(dec.PreRoll) > 0 {
		s.deps.ASR.Feed(dec.PreRoll...)
	}
	if dec.HaveVoice {
		s.deps.ASR.Feed(data)
		s.deps.Model.SetTTSPlaying(false)
	}
	if dec.VoiceStopNow {
		s.finalizeTurn()
	}
}

// probe delegates to the VAD client supplied in Deps. Absent one (e.g.
// in tests that never touch audio frames), it reports voice present so
// callers exercising only the text-frame path aren't blocked on it.
func (s *Session) probe(data []byte) (bool, bool, float64, error) {
	if s.deps.Probe == nil {
		return true, false, 1.0, nil
	}
	return s.deps.Probe(data)
}

func (s *Session) finalizeTurn() {
	if s.deps.Model.LLMBusy() {
		return
	}
	result, err := s.deps.ASR.Finalize(s.ctx)
	if err != nil {
		if err != voiceerr.ErrRecognitionEmpty {
			s.logger.Warn("recognition failed", zap.Error(err))
		}
		return
	}
	s.dispatchRecognizedText(result.Text)
}

// dispatchRecognizedText runs a finalized utterance (from ASR or an
// explicit listen.detect text) through the §4.4/§4.5 pipeline: echo it
// as an stt frame, try the local shortcut layer, optionally fall back to
// the LLM-backed classifier, then either end the conversation, play
// music directly, or hand off to full generation.
func (s *Session) dispatchRecognizedText(text string) {
	if err := s.sendJSON(map[string]interface{}{"type": "stt", "text": text, "session_id": s.deps.Model.ID}); err != nil {
		s.logger.Warn("failed to send stt frame", zap.Error(err))
	}

	classified := s.deps.Intent.Classify(text)
	if classified.Kind == intent.KindNone && s.deps.UseLLMIntent && s.deps.Provider != nil {
		if llmResult, err := s.deps.Intent.ClassifyWithLLM(s.ctx, s.deps.Provider, s.deps.Model.LastTurns(2), text); err != nil {
			s.logger.Warn("llm intent classification failed", zap.Error(err))
		} else {
			classified = llmResult
		}
	}

	switch classified.Kind {
	case intent.KindExit:
		s.beginGoodbye("")
	case intent.KindMusic:
		s.playMusicDirect(classified)
	default:
		if err := s.sendJSON(map[string]interface{}{"type": "llm", "text": "😊", "emotion": "happy", "session_id": s.deps.Model.ID}); err != nil {
			s.logger.Warn("failed to send llm cue frame", zap.Error(err))
		}
		s.deps.Model.SetLLMBusy(true)
		go s.runGeneration(text)
	}
}

// runGeneration drives one full reply, including any number of re-entrant
// tool-call round trips (§4.6/§4.8): each ActionReqLLM result is folded
// into the transcript and fed straight back into the model; ActionResponse
// and ActionNotFound are spoken directly and end the turn.
func (s *Session) runGeneration(userText string) {
	defer s.deps.Model.SetLLMBusy(false)
	s.deps.Model.SetCancelled(false)
	s.resetStopGate()

	segCh := make(chan segmenter.Segment, 8)
	seg := segmenter.New(segCh, s.logger)

	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		for sg := range segCh {
			s.synthesizeAndSend(sg)
		}
		s.sendStopOnce()
		if s.deps.Model.CloseAfterReply() {
			s.Close()
		}
	}()

	s.deps.Model.AppendTurn(model.Turn{Role: model.RoleUser, Content: userText})

genLoop:
	for {
		turns := s.deps.Model.Turns()
		history := make([]providerllm.ChatMessage, 0, len(turns))
		for _, t := range turns {
			msg := providerllm.ChatMessage{Role: string(t.Role), Content: t.Content, ToolCallID: t.ToolCallID}
			for _, tc := range t.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, providerllm.ToolCall{ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments})
			}
			history = append(history, msg)
		}
		result, err := s.deps.LLM.Generate(s.ctx, "", providerllm.QueryOptions{Stream: true, History: history}, seg)
		if err != nil {
			s.logger.Warn("generation failed", zap.Error(err))
			break genLoop
		}
		if result.Outcome == llmdriver.OutcomeText {
			s.deps.Model.AppendTurn(model.Turn{Role: model.RoleAssistant, Content: result.Text})
			break genLoop
		}

		call := result.ToolCall
		if call == nil {
			break genLoop
		}
		if call.ID == "" {
			call.ID = uuid.NewString()
		}
		s.deps.Model.AppendTurn(model.Turn{
			Role:      model.RoleAssistant,
			ToolCalls: []model.ToolCallRecord{{ID: call.ID, Name: call.Name, Arguments: call.Arguments}},
		})

		var args map[string]interface{}
		if call.Arguments != "" {
			if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
				s.logger.Warn("tool call arguments did not parse as JSON", zap.String("tool", call.Name), zap.Error(err))
			}
		}

		if s.deps.Provider == nil {
			break genLoop
		}
		action, err := s.deps.Provider.InvokeTool(call.Name, args)
		if err != nil {
			s.logger.Warn("tool invocation failed", zap.String("tool", call.Name), zap.Error(err))
			seg.OnToken("抱歉，这个功能暂时无法使用")
			seg.Flush()
			break genLoop
		}

		switch action.Kind {
		case providerllm.ActionResponse:
			s.deps.Model.AppendTurn(model.Turn{Role: model.RoleAssistant, Content: action.Text})
			seg.OnToken(action.Text)
			seg.Flush()
			break genLoop
		case providerllm.ActionReqLLM:
			s.deps.Model.AppendTurn(model.Turn{Role: model.RoleTool, ToolCallID: call.ID, Content: action.Text})
			continue genLoop
		case providerllm.ActionNotFound:
			seg.OnToken(action.Text)
			seg.Flush()
			break genLoop
		default:
			break genLoop
		}
	}

	close(segCh)
	<-consumerDone
}

// synthesizeAndSend speaks one segment, bracketing synthesis with the
// sentence_start/sentence_end frames §6 specifies and recording which
// chunk index was actually spoken so a barge-in mid-reply can report an
// accurate spoken range.
func (s *Session) synthesizeAndSend(sg segmenter.Segment) {
	if s.deps.Model.Cancelled() {
		return
	}
	if err := s.sendJSON(map[string]interface{}{"type": "tts", "state": "sentence_start", "text": sg.Text, "session_id": s.deps.Model.ID}); err != nil {
		s.logger.Warn("failed to send sentence_start frame", zap.Error(err))
	}

	ctx := s.ctx
	if s.deps.TTSTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(s.ctx, s.deps.TTSTimeout)
		defer cancel()
	}

	s.deps.Model.SetTTSPlaying(true)
	err := s.deps.TTS.Synthesize(ctx, sg.Text, func(frame []byte) error {
		if s.deps.Model.Cancelled() {
			return context.Canceled
		}
		return s.queue.Send(ctx, frame)
	})
	s.deps.Model.SetTTSPlaying(false)

	if err != nil && err != context.Canceled {
		if ctx.Err() == context.DeadlineExceeded {
			s.logger.Warn("tts synthesis timed out, skipping segment", zap.Int("index", sg.Index))
		} else {
			s.logger.Warn("synthesis failed", zap.Error(err))
		}
	}
	if s.deps.Model.Cancelled() {
		return
	}
	s.deps.Model.RecordSpokenIndex(sg.Index)
	if err := s.sendJSON(map[string]interface{}{"type": "tts", "state": "sentence_end", "text": sg.Text, "session_id": s.deps.Model.ID}); err != nil {
		s.logger.Warn("failed to send sentence_end frame", zap.Error(err))
	}
}

// playMusicDirect speaks a short confirmation, then streams the matched
// library file straight to the device, bypassing the LLM entirely — this
// is the §4.5 local shortcut path; the LLM tool-call path to the same
// library goes through the play_music tool instead.
func (s *Session) playMusicDirect(result intent.Result) {
	if s.deps.Model.LLMBusy() {
		return
	}
	s.deps.Model.SetLLMBusy(true)

	go func() {
		defer s.deps.Model.SetLLMBusy(false)
		s.deps.Model.SetCancelled(false)
		s.resetStopGate()

		segCh := make(chan segmenter.Segment, 2)
		seg := segmenter.New(segCh, s.logger)
		done := make(chan struct{})
		go func() {
			defer close(done)
			for sg := range segCh {
				s.synthesizeAndSend(sg)
			}
			s.sendStopOnce()
		}()

		announce := fmt.Sprintf("正在播放%s", filepath.Base(result.SongPath))
		s.deps.Model.AppendTurn(model.Turn{Role: model.RoleAssistant, Content: announce})
		seg.OnToken(announce)
		seg.Flush()
		close(segCh)
		<-done

		if err := s.playMusicFile(result.SongPath); err != nil {
			s.logger.Warn("music playback failed", zap.Error(err), zap.String("path", result.SongPath))
		}
		if s.deps.Model.CloseAfterReply() {
			s.Close()
		}
	}()
}

// PlayMusicTool is the tools.MusicPlayer passed to tools.RegisterPlayMusic:
// the LLM-driven play_music tool speaks its own confirmation via
// ActionResponse, so this only needs to stream the resolved file.
func (s *Session) PlayMusicTool(path, name string) error {
	return s.playMusicFile(path)
}

// playMusicFile streams a resolved library file's bytes through the same
// paced queue TTS audio uses, in fixed-size chunks — the codec is opaque
// to this package throughout, same as every provider boundary.
func (s *Session) playMusicFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read music file: %w", err)
	}
	for i := 0; i < len(data); i += musicFrameBytes {
		if s.deps.Model.Cancelled() {
			return nil
		}
		end := i + musicFrameBytes
		if end > len(data) {
			end = len(data)
		}
		if err := s.queue.Send(s.ctx, data[i:end]); err != nil {
			return err
		}
	}
	return nil
}

// beginGoodbye speaks a farewell and tears the connection down once it
// finishes playing — used by the local direct-exit shortcut. The
// LLM-driven goodbye tool instead uses ArrangeGoodbye, since its farewell
// text is spoken through the normal generation reply path.
func (s *Session) beginGoodbye(reason string) {
	if s.deps.Model.LLMBusy() {
		return
	}
	s.deps.Model.SetLLMBusy(true)
	s.deps.Model.SetCloseAfterReply(true)

	go func() {
		defer s.deps.Model.SetLLMBusy(false)
		s.deps.Model.SetCancelled(false)
		s.resetStopGate()

		farewell := "好的，再见"
		if reason != "" {
			farewell = fmt.Sprintf("好的，%s，再见", reason)
		}
		s.deps.Model.AppendTurn(model.Turn{Role: model.RoleAssistant, Content: farewell})

		segCh := make(chan segmenter.Segment, 2)
		seg := segmenter.New(segCh, s.logger)
		done := make(chan struct{})
		go func() {
			defer close(done)
			for sg := range segCh {
				s.synthesizeAndSend(sg)
			}
			s.sendStopOnce()
			s.Close()
		}()
		seg.OnToken(farewell)
		seg.Flush()
		close(segCh)
		<-done
	}()
}

// ArrangeGoodbye is the GoodbyeCallback passed to tools.RegisterGoodbye:
// the farewell text itself is spoken through the normal ActionResponse
// path in runGeneration, so this only needs to arrange teardown once that
// reply finishes.
func (s *Session) ArrangeGoodbye(reason string) error {
	s.deps.Model.SetCloseAfterReply(true)
	return nil
}

// PushDeviceProperty emits the §6 outbound iot.commands frame announcing
// a property the model just changed via set_device_property, so the
// physical device actually receives the update.
func (s *Session) PushDeviceProperty(device, property string, value interface{}) error {
	return s.sendJSON(map[string]interface{}{
		"type": "iot",
		"commands": []interface{}{
			map[string]interface{}{
				"name":       device,
				"method":     "Set" + property,
				"parameters": map[string]interface{}{property: value},
			},
		},
	})
}

// idleWatcher closes the connection after a configured period of silence.
// Per §4.3, it doesn't tear down immediately: it composes a valedictory
// prompt and feeds it through the dispatcher as if the user had spoken
// it, so the model gets to say goodbye in its own voice before the
// connection actually closes.
func (s *Session) idleWatcher() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if s.deps.Model.TTSPlaying() || s.deps.Model.LLMBusy() {
				continue
			}
			if s.deps.Gate.IdleFor() < s.deps.Gate.IdleTimeout() {
				continue
			}
			if !s.idleTriggered.CompareAndSwap(false, true) {
				return
			}
			s.logger.Info("idle timeout reached, composing valedictory prompt")
			s.deps.Model.SetCloseAfterReply(true)
			s.dispatchRecognizedText("请你礼貌地结束这场对话，开头说“时光飞逝”。")
			return
		}
	}
}

// resetStopGate runs at the start of every reply: it re-arms the single
// stop frame and clears the paced queue's state, including an earlier
// abort's interrupt.
func (s *Session) resetStopGate() {
	s.stopMu.Lock()
	s.stopSent = false
	s.stopMu.Unlock()
	s.queue.Reset()
}

// sendStopOnce sends the single {type:"tts",state:"stop"} frame a reply
// ever emits, whichever of its several possible endings (abort, natural
// completion, goodbye) gets there first.
func (s *Session) sendStopOnce() {
	s.stopMu.Lock()
	if s.stopSent {
		s.stopMu.Unlock()
		return
	}
	s.stopSent = true
	s.stopMu.Unlock()
	if err := s.sendJSON(map[string]interface{}{"type": "tts", "state": "stop", "session_id": s.deps.Model.ID}); err != nil {
		s.logger.Warn("failed to send tts stop frame", zap.Error(err))
	}
}

func (s *Session) sendJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	s.outMu.Lock()
	defer s.outMu.Unlock()
	return s.deps.Conn.WriteMessage(websocket.TextMessage, data)
}

// Close tears the session down exactly once, persisting memory before the
// connection is closed.
func (s *Session) Close() {
	if !s.deps.Model.MarkClosing() {
		return
	}
	if s.deps.MemoryStore != nil {
		if err := s.deps.MemoryStore.Save(context.Background(), s.deps.Model.DeviceID, s.deps.Model.Turns()); err != nil {
			s.logger.Warn("memory save failed", zap.Error(err))
		}
	}
	s.cancel()
	_ = s.deps.Conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	s.emitter.close()
	s.deps.Conn.Close()
}

func (s *Session) teardown() {
	s.Close()
}
