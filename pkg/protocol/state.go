package protocol

import "fmt"

// WorkflowStep tracks where a turn is in the supervisor -> formatter graph.
type WorkflowStep string

const (
	StepSupervisor WorkflowStep = "supervisor"
	StepFormatter  WorkflowStep = "formatter"
	StepComplete   WorkflowStep = "complete"
	StepError      WorkflowStep = "error"
)

// ChatbotState is the value flowing through the two-node graph for one turn.
//
// Messages grow monotonically except at summarization boundaries, where a
// prefix is replaced by exactly one system summary message. AgentResults is
// set exactly once by the supervisor node before the formatter runs, and is
// never appended to Messages — only the formatted reply is.
type ChatbotState struct {
	Messages        []Message    `json:"messages"`
	UserQuery       string       `json:"user_query"`
	AgentResults    string       `json:"agent_results"`
	ChatbotResponse string       `json:"chatbot_response"`
	WorkflowStep    WorkflowStep `json:"workflow_step"`
}

// NewChatbotState starts a turn for the given query, carrying forward the
// prior conversation history.
func NewChatbotState(history []Message, query string) *ChatbotState {
	messages := make([]Message, len(history), len(history)+1)
	copy(messages, history)
	messages = append(messages, CreateUserMessage(query))

	return &ChatbotState{
		Messages:     messages,
		UserQuery:    query,
		WorkflowStep: StepSupervisor,
	}
}

// Transition moves the state to the next workflow step, enforcing the legal
// order supervisor -> formatter -> complete. Error is reachable from any step.
func (s *ChatbotState) Transition(next WorkflowStep) error {
	if next == StepError {
		s.WorkflowStep = StepError
		return nil
	}

	valid := map[WorkflowStep]WorkflowStep{
		StepSupervisor: StepFormatter,
		StepFormatter:  StepComplete,
	}

	if expected, ok := valid[s.WorkflowStep]; !ok || expected != next {
		return fmt.Errorf("invalid workflow transition: %s -> %s", s.WorkflowStep, next)
	}
	s.WorkflowStep = next
	return nil
}

// AppendMessage appends one message; messages are never mutated in place.
func (s *ChatbotState) AppendMessage(m Message) {
	s.Messages = append(s.Messages, m)
}
