package client

// State is what the client currently expects: operator input (interactive
// states) or a server answer (waiting states, where only /cancel and /quit
// are accepted).
type State int32

const (
	Disconnected State = iota
	Connecting
	Reconnecting
	ConnectedIdle
	HostTypeSelection
	CaseSelection
	LanguageSelection
	SendingHostRequest
	HostingLobbyWaiting
	JoinTypeSelection
	PublicGamesList
	SendingJoinRequest
	EnteringPrivateCode
	InLobbyAwaitingStart
	InGame
	ExamAnswering
	ExamAwaitingResult
	Exiting
)

var stateNames = [...]string{
	Disconnected:         "Disconnected",
	Connecting:           "Connecting",
	Reconnecting:         "Reconnecting",
	ConnectedIdle:        "ConnectedIdle",
	HostTypeSelection:    "HostTypeSelection",
	CaseSelection:        "CaseSelection",
	LanguageSelection:    "LanguageSelection",
	SendingHostRequest:   "SendingHostRequest",
	HostingLobbyWaiting:  "HostingLobbyWaiting",
	JoinTypeSelection:    "JoinTypeSelection",
	PublicGamesList:      "PublicGamesList",
	SendingJoinRequest:   "SendingJoinRequest",
	EnteringPrivateCode:  "EnteringPrivateCode",
	InLobbyAwaitingStart: "InLobbyAwaitingStart",
	InGame:               "InGame",
	ExamAnswering:        "ExamAnswering",
	ExamAwaitingResult:   "ExamAwaitingResult",
	Exiting:              "Exiting",
}

// States lists every client state.
var States = []State{
	Disconnected, Connecting, Reconnecting, ConnectedIdle,
	HostTypeSelection, CaseSelection, LanguageSelection, SendingHostRequest, HostingLobbyWaiting,
	JoinTypeSelection, PublicGamesList, SendingJoinRequest, EnteringPrivateCode,
	InLobbyAwaitingStart, InGame, ExamAnswering, ExamAwaitingResult, Exiting,
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "Unknown"
	}

	return stateNames[s]
}

// Interactive reports whether the state expects operator input.
func (s State) Interactive() bool {
	switch s {
	case Connecting, Reconnecting, SendingHostRequest, HostingLobbyWaiting,
		SendingJoinRequest, ExamAwaitingResult, Exiting:
		return false
	default:
		return s >= Disconnected && s <= Exiting
	}
}

// awaitsReply reports whether the state waits for the answer to a request,
// and is therefore bounded by the request timeout.
func (s State) awaitsReply() bool {
	return s == SendingHostRequest || s == SendingJoinRequest || s == ExamAwaitingResult
}

// inSession reports whether the client believes it holds a seat in a match.
func (s State) inSession() bool {
	switch s {
	case HostingLobbyWaiting, InLobbyAwaitingStart, InGame, ExamAnswering, ExamAwaitingResult:
		return true
	default:
		return false
	}
}
