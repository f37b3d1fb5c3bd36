package voice

import (
	"strings"
	"sync"
)

// TriggerPhrase 开启语音命令。
const TriggerPhrase = "aura"

// State 是识别会话的状态。
type State int

const (
	StateIdle State = iota
	StateListening
	StateListeningWithDictation
)

func (s State) String() string {
	switch s {
	case StateListening:
		return "listening"
	case StateListeningWithDictation:
		return "dictating"
	default:
		return "idle"
	}
}

// Command 是识别出的语音命令。
type Command string

const (
	CommandNone         Command = ""
	CommandAnalyze      Command = "analyze"
	CommandVisualize    Command = "visualize"
	CommandUpdateMemory Command = "update"
	CommandToggleVoice  Command = "tts"
	CommandSend         Command = "send"
)

// Result 是识别引擎给出的一个片段。
type Result struct {
	Transcript string `json:"transcript"`
	Final      bool   `json:"final"`
}

// Actions 由表现层实现。
type Actions interface {
	Analyze()
	Visualize()
	UpdateMemory()
	ToggleVoice()
	Submit(text string)
}

// Outcome 描述一次事件处理的结果。
type Outcome struct {
	State   State
	Command Command
	Ack     string
	Input   string
}

type predicate struct {
	command  Command
	keywords []string
	ack      string
}

// 按优先级排列。
var predicates = []predicate{
	{CommandAnalyze, []string{"analyze"}, "Analyzing conflicts"},
	{CommandVisualize, []string{"visualize"}, "Visualizing dynamics"},
	{CommandUpdateMemory, []string{"update memory"}, "Updating memory"},
	{CommandToggleVoice, []string{"toggle voice", "toggle sound"}, "Voice Toggled"},
	{CommandSend, []string{"send", "submit"}, "Sending message"},
}

// Recognizer 把连续识别结果转换为命令或听写文本。
type Recognizer struct {
	mu      sync.Mutex
	actions Actions
	state   State
	base    string
	input   string
}

func NewRecognizer(actions Actions) *Recognizer {
	return &Recognizer{actions: actions}
}

// State 返回当前状态。
func (r *Recognizer) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Input 返回输入框当前内容。
func (r *Recognizer) Input() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.input
}

// Start 开始监听，inputText 为此刻输入框里的文字。
func (r *Recognizer) Start(inputText string) Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == StateIdle {
		r.state = StateListening
		r.base = inputText
		r.input = inputText
	}
	return r.outcome(CommandNone, "")
}

// HandleResults 处理自监听开始以来的全部识别结果。
func (r *Recognizer) HandleResults(results []Result) Outcome {
	r.mu.Lock()
	if r.state == StateIdle {
		defer r.mu.Unlock()
		return r.outcome(CommandNone, "")
	}

	var final, interim strings.Builder
	for _, res := range results {
		if res.Final {
			final.WriteString(res.Transcript)
		} else {
			interim.WriteString(res.Transcript)
		}
	}

	if p, ok := match(final.String()); ok {
		input := r.input
		r.state = StateIdle
		if p.command == CommandSend {
			r.input = ""
		}
		out := r.outcome(p.command, p.ack)
		r.mu.Unlock()

		r.fire(p.command, input)
		return out
	}

	defer r.mu.Unlock()
	sep := " "
	if r.base == "" || strings.HasSuffix(r.base, " ") {
		sep = ""
	}
	r.input = r.base + sep + strings.TrimSpace(final.String()) + " " + interim.String()
	r.state = StateListeningWithDictation
	return r.outcome(CommandNone, "")
}

// Fail 在识别出错时回到空闲，不触发命令。
func (r *Recognizer) Fail(error) Outcome {
	return r.End()
}

// End 结束监听。
func (r *Recognizer) End() Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = StateIdle
	return r.outcome(CommandNone, "")
}

// SetInput 同步客户端手动编辑的输入。
func (r *Recognizer) SetInput(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.input = text
}

func (r *Recognizer) outcome(cmd Command, ack string) Outcome {
	return Outcome{State: r.state, Command: cmd, Ack: ack, Input: r.input}
}

// fire 在锁外调用，Actions 可能回调 Recognizer。
func (r *Recognizer) fire(cmd Command, input string) {
	if r.actions == nil {
		return
	}
	switch cmd {
	case CommandAnalyze:
		r.actions.Analyze()
	case CommandVisualize:
		r.actions.Visualize()
	case CommandUpdateMemory:
		r.actions.UpdateMemory()
	case CommandToggleVoice:
		r.actions.ToggleVoice()
	case CommandSend:
		if text := strings.TrimSpace(input); text != "" {
			r.actions.Submit(text)
		}
	}
}

func match(final string) (predicate, bool) {
	transcript := strings.TrimSpace(strings.ToLower(final))
	if !strings.HasPrefix(transcript, TriggerPhrase) {
		return predicate{}, false
	}
	command := strings.TrimSpace(transcript[len(TriggerPhrase):])
	for _, p := range predicates {
		for _, kw := range p.keywords {
			if strings.Contains(command, kw) {
				return p, true
			}
		}
	}
	return predicate{}, false
}
