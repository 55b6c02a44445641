package protocol

// Kind discriminates the message variants on the wire. Commands occupy the
// low range and notifications start at 64; values are part of the wire
// format and must never be renumbered.
type Kind uint8

const (
	KindListCases Kind = iota + 1
	KindListPublicGames
	KindHostGame
	KindJoinPublic
	KindJoinByCode
	KindSetName
	KindStart
	KindCancel
	KindExit
	KindEnd
	KindChat
	KindAction
)

const (
	KindWelcome Kind = iota + 64
	KindNameChanged
	KindCaseList
	KindPublicGames
	KindHosted
	KindLobbyReady
	KindPlayerLeft
	KindReturnToLobby
	KindRejected
	KindFailure
	KindChatMessage
	KindRoom
	KindExamQuestion
	KindExamResult
)

// Commands lists every command kind, in wire order.
var Commands = []Kind{
	KindListCases, KindListPublicGames, KindHostGame, KindJoinPublic, KindJoinByCode, KindSetName,
	KindStart, KindCancel, KindExit, KindEnd, KindChat, KindAction,
}

var kindNames = map[Kind]string{
	KindListCases:       "ListCases",
	KindListPublicGames: "ListPublicGames",
	KindHostGame:        "HostGame",
	KindJoinPublic:      "JoinPublic",
	KindJoinByCode:      "JoinByCode",
	KindSetName:         "SetName",
	KindStart:           "Start",
	KindCancel:          "Cancel",
	KindExit:            "Exit",
	KindEnd:             "End",
	KindChat:            "Chat",
	KindAction:          "Action",
	KindWelcome:         "Welcome",
	KindNameChanged:     "NameChanged",
	KindCaseList:        "CaseList",
	KindPublicGames:     "PublicGames",
	KindHosted:          "Hosted",
	KindLobbyReady:      "LobbyReady",
	KindPlayerLeft:      "PlayerLeft",
	KindReturnToLobby:   "ReturnToLobby",
	KindRejected:        "Rejected",
	KindFailure:         "Failure",
	KindChatMessage:     "ChatMessage",
	KindRoom:            "Room",
	KindExamQuestion:    "ExamQuestion",
	KindExamResult:      "ExamResult",
}

// String returns the variant name for k.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}

	return "Unknown"
}

// IsCommand reports whether k is a known client-to-server kind.
func (k Kind) IsCommand() bool {
	return k >= KindListCases && k <= KindAction
}

// IsNotification reports whether k is a known server-to-client kind.
func (k Kind) IsNotification() bool {
	return k >= KindWelcome && k <= KindExamResult
}

// newMessage returns a pointer to a zero value of the variant for k, or nil
// if k is not a known kind.
func newMessage(k Kind) Message {
	switch k {
	case KindListCases:
		return &ListCases{}
	case KindListPublicGames:
		return &ListPublicGames{}
	case KindHostGame:
		return &HostGame{}
	case KindJoinPublic:
		return &JoinPublic{}
	case KindJoinByCode:
		return &JoinByCode{}
	case KindSetName:
		return &SetName{}
	case KindStart:
		return &Start{}
	case KindCancel:
		return &Cancel{}
	case KindExit:
		return &Exit{}
	case KindEnd:
		return &End{}
	case KindChat:
		return &Chat{}
	case KindAction:
		return &Action{}
	case KindWelcome:
		return &Welcome{}
	case KindNameChanged:
		return &NameChanged{}
	case KindCaseList:
		return &CaseList{}
	case KindPublicGames:
		return &PublicGames{}
	case KindHosted:
		return &Hosted{}
	case KindLobbyReady:
		return &LobbyReady{}
	case KindPlayerLeft:
		return &PlayerLeft{}
	case KindReturnToLobby:
		return &ReturnToLobby{}
	case KindRejected:
		return &Rejected{}
	case KindFailure:
		return &Failure{}
	case KindChatMessage:
		return &ChatMessage{}
	case KindRoom:
		return &Room{}
	case KindExamQuestion:
		return &ExamQuestion{}
	case KindExamResult:
		return &ExamResult{}
	default:
		return nil
	}
}
