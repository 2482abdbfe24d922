package interview

import "github.com/dshills/analyst-agent/graph/model"

// ExpertName marks answers written by the expert.
const ExpertName = "expert"

// State is the interview graph state. Messages, Context and Sections
// accumulate; the other fields are replaced when a node sets them.
type State struct {
	Messages    []model.Message `json:"messages"`
	MaxNumTurns int             `json:"max_num_turns,omitempty"`

	// Context holds formatted source documents, one entry per search.
	Context   []string `json:"context,omitempty"`
	Analyst   Analyst  `json:"analyst"`
	Interview string   `json:"interview,omitempty"`
	Sections  []string `json:"sections,omitempty"`
}

// Reduce merges a node delta into the interview state.
func Reduce(prev, delta State) State {
	prev.Messages = append(prev.Messages, delta.Messages...)
	prev.Context = append(prev.Context, delta.Context...)
	prev.Sections = append(prev.Sections, delta.Sections...)
	if delta.MaxNumTurns != 0 {
		prev.MaxNumTurns = delta.MaxNumTurns
	}
	if !delta.Analyst.IsZero() {
		prev.Analyst = delta.Analyst
	}
	if delta.Interview != "" {
		prev.Interview = delta.Interview
	}
	return prev
}

// expertAnswers counts the assistant messages named ExpertName.
func expertAnswers(messages []model.Message) int {
	n := 0
	for _, m := range messages {
		if m.Role == model.RoleAssistant && m.Name == ExpertName {
			n++
		}
	}
	return n
}
