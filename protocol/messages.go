package protocol

// CaseInfo describes one piece of playable content.
type CaseInfo struct {
	ID        string   `cbor:"id"`
	Title     string   `cbor:"title"`
	Languages []string `cbor:"langs,omitempty"`
}

// GameListing is the lobby-visible summary of a session.
type GameListing struct {
	SessionID string `cbor:"sid"`
	CaseTitle string `cbor:"title"`
	HostName  string `cbor:"host"`
	Public    bool   `cbor:"public"`
	Code      string `cbor:"code,omitempty"`
	Players   int    `cbor:"players"`
}

// ListCases asks for the content available for hosting.
type ListCases struct{}

// ListPublicGames asks for the sessions currently open to anyone.
type ListPublicGames struct{}

// HostGame asks the server to create a session for CaseID. A private session
// gets a join code; a public one is listed in the lobby.
type HostGame struct {
	CaseID   string `cbor:"case"`
	Language string `cbor:"lang,omitempty"`
	Public   bool   `cbor:"public"`
}

// JoinPublic joins a listed session by id.
type JoinPublic struct {
	SessionID string `cbor:"sid"`
}

// JoinByCode joins a private session by its short code.
type JoinByCode struct {
	Code string `cbor:"code"`
}

// SetName changes the sender's display name. Only legal outside a session.
type SetName struct {
	Name string `cbor:"name"`
}

// Start begins a match whose seats are both filled. Host only.
type Start struct{}

// Cancel backs out of a session lobby. For the host it tears the session down.
type Cancel struct{}

// Exit leaves the current session.
type Exit struct{}

// End finishes an active match normally. Host only.
type End struct{}

// Chat sends a line of text to the other seat.
type Chat struct {
	Text string `cbor:"text"`
}

// Action is a gameplay command handed to the session's world.
type Action struct {
	Verb string   `cbor:"verb"`
	Args []string `cbor:"args,omitempty"`
}

// Welcome assigns the connection its identity right after accept.
type Welcome struct {
	ConnectionID uint32 `cbor:"id"`
	Name         string `cbor:"name"`
}

// NameChanged confirms a SetName.
type NameChanged struct {
	Name string `cbor:"name"`
}

// CaseList answers ListCases.
type CaseList struct {
	Cases []CaseInfo `cbor:"cases"`
}

// PublicGames answers ListPublicGames.
type PublicGames struct {
	Games []GameListing `cbor:"games"`
}

// Hosted tells the host its session is ready and waiting for a guest.
type Hosted struct {
	SessionID string `cbor:"sid"`
	CaseTitle string `cbor:"title"`
	Public    bool   `cbor:"public"`
	Code      string `cbor:"code,omitempty"`
}

// LobbyReady tells both seats that the session is full and awaiting start.
type LobbyReady struct {
	SessionID string `cbor:"sid"`
	HostName  string `cbor:"host"`
	GuestName string `cbor:"guest"`
	IsHost    bool   `cbor:"is_host"`
}

// PlayerLeft tells the remaining seat that the other one departed.
type PlayerLeft struct {
	Name string `cbor:"name"`
	Role string `cbor:"role"`
}

// ReturnToLobby detaches the receiver from its session.
type ReturnToLobby struct {
	Reason string `cbor:"reason"`
}

// Rejected answers a command that was not accepted. State is unchanged.
type Rejected struct {
	Command Kind   `cbor:"cmd"`
	Reason  string `cbor:"reason"`
}

// Failure reports a server-side problem, such as content that failed to load.
type Failure struct {
	Message string `cbor:"msg"`
}

// ChatMessage relays a Chat.
type ChatMessage struct {
	From string `cbor:"from"`
	Text string `cbor:"text"`
}

// Room describes the player's current location in the game world.
type Room struct {
	Title       string   `cbor:"title"`
	Description string   `cbor:"desc"`
	Exits       []string `cbor:"exits,omitempty"`
	Occupants   []string `cbor:"occupants,omitempty"`
}

// ExamQuestion asks the receiver to answer one exam prompt.
type ExamQuestion struct {
	Index  int    `cbor:"i"`
	Total  int    `cbor:"n"`
	Prompt string `cbor:"prompt"`
}

// ExamResult closes an exam.
type ExamResult struct {
	Passed  bool   `cbor:"passed"`
	Summary string `cbor:"summary"`
}

func (*ListCases) Kind() Kind       { return KindListCases }
func (*ListPublicGames) Kind() Kind { return KindListPublicGames }
func (*HostGame) Kind() Kind        { return KindHostGame }
func (*JoinPublic) Kind() Kind      { return KindJoinPublic }
func (*JoinByCode) Kind() Kind      { return KindJoinByCode }
func (*SetName) Kind() Kind         { return KindSetName }
func (*Start) Kind() Kind           { return KindStart }
func (*Cancel) Kind() Kind          { return KindCancel }
func (*Exit) Kind() Kind            { return KindExit }
func (*End) Kind() Kind             { return KindEnd }
func (*Chat) Kind() Kind            { return KindChat }
func (*Action) Kind() Kind          { return KindAction }

func (*ListCases) command()       {}
func (*ListPublicGames) command() {}
func (*HostGame) command()        {}
func (*JoinPublic) command()      {}
func (*JoinByCode) command()      {}
func (*SetName) command()         {}
func (*Start) command()           {}
func (*Cancel) command()          {}
func (*Exit) command()            {}
func (*End) command()             {}
func (*Chat) command()            {}
func (*Action) command()          {}

func (*Welcome) Kind() Kind       { return KindWelcome }
func (*NameChanged) Kind() Kind   { return KindNameChanged }
func (*CaseList) Kind() Kind      { return KindCaseList }
func (*PublicGames) Kind() Kind   { return KindPublicGames }
func (*Hosted) Kind() Kind        { return KindHosted }
func (*LobbyReady) Kind() Kind    { return KindLobbyReady }
func (*PlayerLeft) Kind() Kind    { return KindPlayerLeft }
func (*ReturnToLobby) Kind() Kind { return KindReturnToLobby }
func (*Rejected) Kind() Kind      { return KindRejected }
func (*Failure) Kind() Kind       { return KindFailure }
func (*ChatMessage) Kind() Kind   { return KindChatMessage }
func (*Room) Kind() Kind          { return KindRoom }
func (*ExamQuestion) Kind() Kind  { return KindExamQuestion }
func (*ExamResult) Kind() Kind    { return KindExamResult }

func (*Welcome) notification()       {}
func (*NameChanged) notification()   {}
func (*CaseList) notification()      {}
func (*PublicGames) notification()   {}
func (*Hosted) notification()        {}
func (*LobbyReady) notification()    {}
func (*PlayerLeft) notification()    {}
func (*ReturnToLobby) notification() {}
func (*Rejected) notification()      {}
func (*Failure) notification()       {}
func (*ChatMessage) notification()   {}
func (*Room) notification()          {}
func (*ExamQuestion) notification()  {}
func (*ExamResult) notification()    {}

// NewCommand returns a zero value of the command variant for k. It is used
// by tests and tooling that need one instance of every command.
func NewCommand(k Kind) (Command, bool) {
	cmd, ok := newMessage(k).(Command)
	return cmd, ok
}
