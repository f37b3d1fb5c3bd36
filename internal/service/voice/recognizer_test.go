package voice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedActions struct {
	calls     []Command
	submitted []string
}

func (a *recordedActions) Analyze()      { a.calls = append(a.calls, CommandAnalyze) }
func (a *recordedActions) Visualize()    { a.calls = append(a.calls, CommandVisualize) }
func (a *recordedActions) UpdateMemory() { a.calls = append(a.calls, CommandUpdateMemory) }
func (a *recordedActions) ToggleVoice()  { a.calls = append(a.calls, CommandToggleVoice) }
func (a *recordedActions) Submit(text string) {
	a.calls = append(a.calls, CommandSend)
	a.submitted = append(a.submitted, text)
}

func TestDictationSplicesInput(t *testing.T) {
	r := NewRecognizer(&recordedActions{})
	r.Start("We argued")

	out := r.HandleResults([]Result{{Transcript: "about money", Final: false}})
	assert.Equal(t, "We argued  about money", out.Input)
	assert.Equal(t, StateListeningWithDictation, out.State)

	out = r.HandleResults([]Result{{Transcript: " about money ", Final: true}, {Transcript: "again", Final: false}})
	assert.Equal(t, "We argued about money again", out.Input)

	r.End()
	r.Start("Hello ")
	out = r.HandleResults([]Result{{Transcript: "there", Final: true}})
	assert.Equal(t, "Hello there ", out.Input)
}

func TestCommandsFireOnce(t *testing.T) {
	cases := []struct {
		transcript string
		want       Command
	}{
		{"Aura, analyze our fights", CommandAnalyze},
		{"aura visualize", CommandVisualize},
		{"AURA update memory please", CommandUpdateMemory},
		{"aura toggle sound", CommandToggleVoice},
		{"aura toggle voice", CommandToggleVoice},
		{"aura analyze and visualize", CommandAnalyze},
	}
	for _, tc := range cases {
		t.Run(tc.transcript, func(t *testing.T) {
			actions := &recordedActions{}
			r := NewRecognizer(actions)
			r.Start("")

			out := r.HandleResults([]Result{{Transcript: tc.transcript, Final: true}})
			assert.Equal(t, tc.want, out.Command)
			assert.NotEmpty(t, out.Ack)
			assert.Equal(t, StateIdle, out.State)
			assert.Equal(t, []Command{tc.want}, actions.calls)

			// 会话已结束，再来的结果不会重复触发。
			r.HandleResults([]Result{{Transcript: tc.transcript, Final: true}})
			assert.Len(t, actions.calls, 1)
		})
	}
}

func TestInterimNeverFiresCommand(t *testing.T) {
	actions := &recordedActions{}
	r := NewRecognizer(actions)
	r.Start("")

	out := r.HandleResults([]Result{{Transcript: "aura analyze", Final: false}})
	assert.Equal(t, CommandNone, out.Command)
	assert.Empty(t, actions.calls)
	assert.Equal(t, StateListeningWithDictation, out.State)
}

func TestSendSubmitsDictatedInput(t *testing.T) {
	actions := &recordedActions{}
	r := NewRecognizer(actions)
	r.Start("I feel unheard")

	out := r.HandleResults([]Result{{Transcript: "aura send", Final: true}})
	assert.Equal(t, CommandSend, out.Command)
	assert.Equal(t, []string{"I feel unheard"}, actions.submitted)
	assert.Empty(t, out.Input)
}

func TestSendWithBlankInputIsConsumed(t *testing.T) {
	actions := &recordedActions{}
	r := NewRecognizer(actions)
	r.Start("   ")

	out := r.HandleResults([]Result{{Transcript: "aura submit", Final: true}})
	assert.Equal(t, CommandSend, out.Command)
	assert.Equal(t, StateIdle, out.State)
	assert.Empty(t, actions.calls)
}

func TestUnknownCommandDictates(t *testing.T) {
	actions := &recordedActions{}
	r := NewRecognizer(actions)
	r.Start("")

	out := r.HandleResults([]Result{{Transcript: "aura is lovely", Final: true}})
	assert.Equal(t, CommandNone, out.Command)
	assert.Equal(t, "aura is lovely ", out.Input)
	assert.Empty(t, actions.calls)
}

func TestFailAndEndReturnToIdle(t *testing.T) {
	actions := &recordedActions{}
	r := NewRecognizer(actions)

	r.Start("")
	r.HandleResults([]Result{{Transcript: "hello", Final: false}})
	out := r.Fail(assert.AnError)
	require.Equal(t, StateIdle, out.State)

	r.Start("")
	assert.Equal(t, StateListening, r.State())
	r.End()
	assert.Equal(t, StateIdle, r.State())

	out = r.HandleResults([]Result{{Transcript: "aura analyze", Final: true}})
	assert.Equal(t, CommandNone, out.Command)
	assert.Empty(t, actions.calls)
}
