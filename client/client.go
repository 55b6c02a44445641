package client

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cyberinferno/sleuthnet/logger"
	"github.com/cyberinferno/sleuthnet/protocol"
)

// DialFunc opens a connection to the server.
type DialFunc func(ctx context.Context) (Conn, error)

// View is the operator-facing surface. All calls come from the control
// goroutine.
type View interface {
	// StateChanged reports a transition.
	StateChanged(from, to State)

	// Notification shows a server notification.
	Notification(n protocol.Notification)

	// Message shows a local status line.
	Message(text string)
}

type nopView struct{}

func (nopView) StateChanged(State, State)          {}
func (nopView) Notification(protocol.Notification) {}
func (nopView) Message(string)                     {}

// Config holds the client parameters.
type Config struct {
	// Dial opens the server connection. Required.
	Dial DialFunc
	// ReconnectDelay is the pause before each automatic reconnect attempt.
	ReconnectDelay time.Duration
	// MaxAttempts is the number of automatic reconnect attempts before the
	// client falls back to Disconnected.
	MaxAttempts int
	// RequestTimeout bounds a waiting state that expects a reply; 0 disables it.
	RequestTimeout time.Duration

	// LAN delivers games announced on the local network; nil disables it.
	LAN <-chan LANGame

	View   View
	Logger logger.Logger
}

// LANGame is a session announced on the local network.
type LANGame struct {
	// Addr is the "host:port" of the announcing server.
	Addr      string
	SessionID string
	CaseTitle string
	HostName  string
	Public    bool
	Code      string
}

func (g LANGame) String() string {
	access := "public"
	if !g.Public {
		access = "code " + g.Code
	}

	return fmt.Sprintf("%s at %s hosted by %s (%s)", g.CaseTitle, g.Addr, g.HostName, access)
}

// session holds everything scoped to the current server connection.
type session struct {
	connID    uint32
	name      string
	cases     []protocol.CaseInfo
	games     []protocol.GameListing
	sessionID string
	code      string
	hostName  string
	isHost    bool
	room      *protocol.Room

	hostPublic bool
	caseID     string
}

// Client is the player-side control loop. Run owns every field except
// state, which observers read through State.
type Client struct {
	cfg  Config
	view View
	log  logger.Logger

	state atomic.Int32

	conn     Conn
	attempts int
	prior    State
	deadline *time.Timer
	sess     session

	// lan outlives connections: it describes other servers too.
	lan map[string]LANGame
}

// New creates a Client in the Disconnected state.
func New(cfg Config) *Client {
	view := cfg.View
	if view == nil {
		view = nopView{}
	}

	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}

	if cfg.MaxAttempts < 0 {
		cfg.MaxAttempts = 0
	}

	c := &Client{cfg: cfg, view: view, log: log, lan: make(map[string]LANGame)}
	c.state.Store(int32(Disconnected))
	return c
}

// State returns the current state. Safe to call from any goroutine.
func (c *Client) State() State {
	return State(c.state.Load())
}

func (c *Client) setState(to State) {
	from := c.State()
	if from == to {
		return
	}

	c.state.Store(int32(to))
	c.log.Debug("state changed", logger.Field{Key: "from", Value: from.String()}, logger.Field{Key: "to", Value: to.String()})
	c.view.StateChanged(from, to)

	c.stopDeadline()
	if to.awaitsReply() && c.cfg.RequestTimeout > 0 {
		c.deadline = time.NewTimer(c.cfg.RequestTimeout)
	}
}

// await moves to a waiting state and remembers where to return on failure.
func (c *Client) await(to State) {
	c.prior = c.State()
	c.setState(to)
}

func (c *Client) stopDeadline() {
	if c.deadline != nil {
		c.deadline.Stop()
		c.deadline = nil
	}
}

// Run connects and drives the control loop until the operator quits, the
// input ends or ctx is cancelled.
//
// Parameters:
//   - ctx: Cancels the loop
//   - in: The operator input source
//
// Returns:
//   - nil on /quit or end of input; ctx.Err() on cancellation
func (c *Client) Run(ctx context.Context, in Input) error {
	defer c.disconnect()
	defer c.stopDeadline()

	lines := in.Lines()
	lan := c.cfg.LAN
	c.setState(Connecting)
	if !c.dial(ctx) {
		c.attempts = 0
		c.setState(Reconnecting)
	}

	for {
		if c.State() == Exiting {
			return nil
		}

		if c.State() == Reconnecting {
			if err := c.reconnect(ctx, lines); err != nil {
				return err
			}
			continue
		}

		var incoming <-chan protocol.Notification
		var done <-chan struct{}
		if c.conn != nil {
			incoming = c.conn.Incoming()
			done = c.conn.Done()
		}

		var timeout <-chan time.Time
		if c.deadline != nil {
			timeout = c.deadline.C
		}

		select {
		case <-ctx.Done():
			return ctx.Err()

		case line, ok := <-lines:
			if !ok {
				c.quit()
				continue
			}
			c.input(strings.TrimSpace(line))

		case n := <-incoming:
			c.notification(n)

		case g, ok := <-lan:
			if !ok {
				lan = nil
				continue
			}
			c.lanGame(g)

		case <-done:
			c.drainIncoming()
			c.connectionLost()

		case <-timeout:
			c.deadline = nil
			c.view.Message("the server did not answer in time")
			c.setState(c.prior)
		}
	}
}

// reconnect performs one automatic attempt after the fixed delay, or falls
// back to Disconnected once the attempts are used up.
func (c *Client) reconnect(ctx context.Context, lines <-chan string) error {
	if c.attempts >= c.cfg.MaxAttempts {
		c.view.Message("could not reach the server; type /connect to try again")
		c.setState(Disconnected)
		return nil
	}

	delay := time.NewTimer(c.cfg.ReconnectDelay)
	defer delay.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case line, ok := <-lines:
		switch {
		case !ok || strings.TrimSpace(line) == "/quit":
			c.quit()
		case strings.TrimSpace(line) == "/cancel":
			c.setState(Disconnected)
		}
		return nil
	case <-delay.C:
	}

	c.attempts++
	c.log.Info("reconnecting", logger.Field{Key: "attempt", Value: c.attempts}, logger.Field{Key: "max", Value: c.cfg.MaxAttempts})
	if c.dial(ctx) {
		c.attempts = 0
	}

	return nil
}

func (c *Client) dial(ctx context.Context) bool {
	conn, err := c.cfg.Dial(ctx)
	if err != nil {
		c.log.Warn("connection failed", logger.Err(err))
		return false
	}

	c.conn = conn
	c.sess = session{}
	c.setState(ConnectedIdle)
	return true
}

func (c *Client) disconnect() {
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) drainIncoming() {
	if c.conn == nil {
		return
	}

	for {
		select {
		case n := <-c.conn.Incoming():
			c.notification(n)
		default:
			return
		}
	}
}

// connectionLost tears the connection down and forgets everything that was
// scoped to it.
func (c *Client) connectionLost() {
	c.log.Warn("connection lost", logger.Field{Key: "state", Value: c.State().String()})
	c.disconnect()
	c.sess = session{}
	c.attempts = 0
	if c.State() != Exiting {
		c.view.Message("connection lost")
		c.setState(Reconnecting)
	}
}

func (c *Client) quit() {
	if c.conn != nil && c.State().inSession() {
		_ = c.conn.Send(&protocol.Exit{})
	}

	c.setState(Exiting)
}

func (c *Client) send(cmd protocol.Command) bool {
	if c.conn == nil {
		c.view.Message("not connected")
		return false
	}

	if err := c.conn.Send(cmd); err != nil {
		c.log.Warn("send failed", logger.Field{Key: "command", Value: cmd.Kind().String()}, logger.Err(err))
		return false
	}

	return true
}

// input dispatches one operator line: global slash commands first, then the
// handler of the current state.
func (c *Client) input(line string) {
	if line == "" {
		return
	}

	if strings.HasPrefix(line, "/") {
		c.global(line)
		return
	}

	state := c.State()
	if !state.Interactive() {
		c.view.Message("waiting for the server; /cancel to abort")
		return
	}

	switch state {
	case Disconnected:
		c.view.Message("not connected; type /connect")
	case ConnectedIdle:
		c.idle(line)
	case HostTypeSelection:
		c.hostType(line)
	case CaseSelection:
		c.chooseCase(line)
	case LanguageSelection:
		c.chooseLanguage(line)
	case JoinTypeSelection:
		c.joinType(line)
	case PublicGamesList:
		c.chooseGame(line)
	case EnteringPrivateCode:
		if strings.EqualFold(line, "back") {
			c.setState(JoinTypeSelection)
			return
		}
		if c.send(&protocol.JoinByCode{Code: line}) {
			c.await(SendingJoinRequest)
		}
	case InLobbyAwaitingStart:
		c.lobby(line)
	case InGame:
		c.play(line)
	case ExamAnswering:
		if c.send(&protocol.Action{Verb: "answer", Args: strings.Fields(line)}) {
			c.await(ExamAwaitingResult)
		}
	}
}

func (c *Client) global(line string) {
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/quit":
		c.quit()
	case "/name":
		if arg == "" {
			c.view.Message("usage: /name <new name>")
			return
		}
		c.send(&protocol.SetName{Name: arg})
	case "/chat":
		c.send(&protocol.Chat{Text: arg})
	case "/cancel":
		c.cancel()
	case "/lan":
		c.listLAN()
	case "/connect":
		if c.State() != Disconnected {
			c.view.Message("already connected")
			return
		}
		c.setState(Connecting)
		if !c.dial(context.Background()) {
			c.attempts = 0
			c.setState(Reconnecting)
		}
	default:
		c.view.Message(fmt.Sprintf("unknown command %s", cmd))
	}
}

func (c *Client) lanGame(g LANGame) {
	key := g.Addr + "/" + g.SessionID
	if _, ok := c.lan[key]; ok {
		return
	}

	c.lan[key] = g
	c.view.Message("LAN game: " + g.String())
}

func (c *Client) listLAN() {
	if len(c.lan) == 0 {
		c.view.Message("no games found on the local network")
		return
	}

	keys := make([]string, 0, len(c.lan))
	for k := range c.lan {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for i, k := range keys {
		c.view.Message(fmt.Sprintf("%d) %s", i+1, c.lan[k]))
	}
}

// cancel escapes the current wait or menu.
func (c *Client) cancel() {
	switch state := c.State(); {
	case state.awaitsReply():
		c.setState(c.prior)
	case state == HostingLobbyWaiting || state == InLobbyAwaitingStart:
		c.send(&protocol.Cancel{})
		c.leaveSession()
	case state == InGame || state == ExamAnswering:
		c.send(&protocol.Exit{})
		c.leaveSession()
	case state == Connecting || state == Reconnecting:
		c.setState(Disconnected)
	case state.Interactive() && state != Disconnected:
		c.setState(ConnectedIdle)
	}
}

func (c *Client) leaveSession() {
	c.sess.sessionID = ""
	c.sess.code = ""
	c.sess.hostName = ""
	c.sess.isHost = false
	c.sess.room = nil
	c.setState(ConnectedIdle)
}

func (c *Client) idle(line string) {
	switch strings.ToLower(line) {
	case "1", "host":
		c.setState(HostTypeSelection)
	case "2", "join":
		c.setState(JoinTypeSelection)
	case "cases":
		c.send(&protocol.ListCases{})
	default:
		c.view.Message("choose host or join")
	}
}

func (c *Client) hostType(line string) {
	switch strings.ToLower(line) {
	case "1", "public":
		c.sess.hostPublic = true
	case "2", "private":
		c.sess.hostPublic = false
	case "back":
		c.setState(ConnectedIdle)
		return
	default:
		c.view.Message("choose public or private")
		return
	}

	if c.send(&protocol.ListCases{}) {
		c.setState(CaseSelection)
	}
}

func (c *Client) chooseCase(line string) {
	if strings.EqualFold(line, "back") {
		c.setState(HostTypeSelection)
		return
	}

	info, ok := pick(c.sess.cases, line, func(ci protocol.CaseInfo) string { return ci.ID })
	if !ok {
		c.view.Message("unknown case")
		return
	}
	c.sess.caseID = info.ID

	if len(info.Languages) > 1 {
		c.setState(LanguageSelection)
		return
	}

	language := ""
	if len(info.Languages) == 1 {
		language = info.Languages[0]
	}
	c.requestHost(language)
}

func (c *Client) chooseLanguage(line string) {
	if strings.EqualFold(line, "back") {
		c.setState(CaseSelection)
		return
	}

	info, ok := pick(c.sess.cases, c.sess.caseID, func(ci protocol.CaseInfo) string { return ci.ID })
	if !ok {
		c.setState(CaseSelection)
		return
	}

	language, ok := pick(info.Languages, line, func(l string) string { return l })
	if !ok {
		c.view.Message("unknown language")
		return
	}
	c.requestHost(language)
}

func (c *Client) requestHost(language string) {
	if c.send(&protocol.HostGame{CaseID: c.sess.caseID, Language: language, Public: c.sess.hostPublic}) {
		c.await(SendingHostRequest)
	}
}

func (c *Client) joinType(line string) {
	switch strings.ToLower(line) {
	case "1", "public":
		if c.send(&protocol.ListPublicGames{}) {
			c.setState(PublicGamesList)
		}
	case "2", "private", "code":
		c.setState(EnteringPrivateCode)
	case "back":
		c.setState(ConnectedIdle)
	default:
		c.view.Message("choose public or private")
	}
}

func (c *Client) chooseGame(line string) {
	switch strings.ToLower(line) {
	case "back":
		c.setState(JoinTypeSelection)
		return
	case "refresh":
		c.send(&protocol.ListPublicGames{})
		return
	}

	game, ok := pick(c.sess.games, line, func(g protocol.GameListing) string { return g.SessionID })
	if !ok {
		c.view.Message("unknown game")
		return
	}

	if c.send(&protocol.JoinPublic{SessionID: game.SessionID}) {
		c.await(SendingJoinRequest)
	}
}

func (c *Client) lobby(line string) {
	switch strings.ToLower(line) {
	case "start":
		c.send(&protocol.Start{})
	case "leave", "exit":
		c.send(&protocol.Exit{})
		c.leaveSession()
	default:
		c.view.Message("the game has not started; type start, or leave")
	}
}

func (c *Client) play(line string) {
	fields := strings.Fields(line)
	switch verb := strings.ToLower(fields[0]); verb {
	case "say":
		c.send(&protocol.Chat{Text: strings.TrimSpace(line[len(fields[0]):])})
	case "end":
		c.send(&protocol.End{})
	case "exit", "leave":
		c.send(&protocol.Exit{})
		c.leaveSession()
	default:
		c.send(&protocol.Action{Verb: verb, Args: fields[1:]})
	}
}

// notification applies a server notification to the cached session data
// and performs the transitions it forces.
func (c *Client) notification(n protocol.Notification) {
	c.view.Notification(n)
	state := c.State()

	switch m := n.(type) {
	case *protocol.Welcome:
		c.sess.connID = m.ConnectionID
		c.sess.name = m.Name

	case *protocol.NameChanged:
		c.sess.name = m.Name

	case *protocol.CaseList:
		c.sess.cases = m.Cases

	case *protocol.PublicGames:
		c.sess.games = m.Games

	case *protocol.Hosted:
		if state != SendingHostRequest {
			// The operator gave up on this request before the reply arrived,
			// but the server attached us as host. Withdraw the session.
			c.log.Info("withdrawing abandoned host request", logger.Field{Key: "session", Value: m.SessionID})
			c.send(&protocol.Cancel{})
			c.view.Message("the abandoned game was withdrawn")
			return
		}
		c.sess.sessionID = m.SessionID
		c.sess.code = m.Code
		c.sess.isHost = true
		c.sess.hostName = c.sess.name
		c.setState(HostingLobbyWaiting)

	case *protocol.LobbyReady:
		c.sess.sessionID = m.SessionID
		c.sess.hostName = m.HostName
		c.sess.isHost = m.IsHost
		c.setState(InLobbyAwaitingStart)

	case *protocol.PlayerLeft:
		if state == InLobbyAwaitingStart && c.sess.isHost {
			c.setState(HostingLobbyWaiting)
		}

	case *protocol.ReturnToLobby:
		if state.inSession() {
			c.leaveSession()
		}

	case *protocol.Rejected, *protocol.Failure:
		if state.awaitsReply() {
			c.setState(c.prior)
		}

	case *protocol.Room:
		c.sess.room = m
		c.setState(InGame)

	case *protocol.ExamQuestion:
		c.setState(ExamAnswering)

	case *protocol.ExamResult:
		c.setState(InGame)
	}
}

// pick selects an element by 1-based index or by key.
func pick[T any](items []T, choice string, key func(T) string) (T, bool) {
	var zero T
	if i, err := strconv.Atoi(choice); err == nil {
		if i < 1 || i > len(items) {
			return zero, false
		}
		return items[i-1], true
	}

	for _, item := range items {
		if strings.EqualFold(key(item), choice) {
			return item, true
		}
	}

	return zero, false
}
