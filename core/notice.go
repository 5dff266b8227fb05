package core

// NoticeKind enumerates low-level activity produced while a run executes.
type NoticeKind int

const (
	NoticeTextChunk NoticeKind = iota
	NoticeToolStarted
	NoticeToolFinished
	NoticeHandoff
	NoticeHandoffReturn
)

// String returns the notice kind name.
func (k NoticeKind) String() string {
	switch k {
	case NoticeTextChunk:
		return "text_chunk"
	case NoticeToolStarted:
		return "tool_started"
	case NoticeToolFinished:
		return "tool_finished"
	case NoticeHandoff:
		return "handoff"
	case NoticeHandoffReturn:
		return "handoff_return"
	default:
		return "unknown"
	}
}

// Notice is one activity record. Fields are populated according to Kind:
// text chunks carry Text; tool notices carry CallID, ToolName and Input or
// Output/Status; handoff notices carry Target and Input (the task) or Output
// (the agent result).
type Notice struct {
	Kind     NoticeKind
	Author   string
	Text     string
	CallID   string
	ToolName string
	Target   string
	Input    string
	Output   string
	Status   ToolStatus
}
