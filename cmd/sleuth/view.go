package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/cyberinferno/sleuthnet/client"
	"github.com/cyberinferno/sleuthnet/protocol"
)

// textView renders client events as plain lines.
type textView struct {
	w io.Writer
}

var prompts = map[client.State]string{
	client.Disconnected:         "not connected; /connect to retry, /quit to leave",
	client.ConnectedIdle:        "1) host a game  2) join a game",
	client.HostTypeSelection:    "1) public  2) private  (back)",
	client.CaseSelection:        "pick a case by number or id (back)",
	client.LanguageSelection:    "pick a language by number or code (back)",
	client.JoinTypeSelection:    "1) public game  2) private code  (back)",
	client.PublicGamesList:      "pick a game by number (refresh, back)",
	client.EnteringPrivateCode:  "enter the game code (back)",
	client.InLobbyAwaitingStart: "start, or leave",
	client.InGame:               "type a command; say <text>, end, leave",
	client.ExamAnswering:        "type your answer",
}

func (v textView) StateChanged(_, to client.State) {
	if p, ok := prompts[to]; ok {
		fmt.Fprintf(v.w, "[%s] %s\n", to, p)
	}
}

func (v textView) Message(text string) {
	fmt.Fprintf(v.w, "* %s\n", text)
}

func (v textView) Notification(n protocol.Notification) {
	switch n := n.(type) {
	case *protocol.Welcome:
		fmt.Fprintf(v.w, "connected as %s (#%d)\n", n.Name, n.ConnectionID)
	case *protocol.NameChanged:
		fmt.Fprintf(v.w, "you are now %s\n", n.Name)
	case *protocol.CaseList:
		for i, c := range n.Cases {
			fmt.Fprintf(v.w, "  %d) %s [%s]\n", i+1, c.Title, strings.Join(c.Languages, ", "))
		}
	case *protocol.PublicGames:
		if len(n.Games) == 0 {
			fmt.Fprintln(v.w, "  no public games")
		}
		for i, g := range n.Games {
			fmt.Fprintf(v.w, "  %d) %s hosted by %s\n", i+1, g.CaseTitle, g.HostName)
		}
	case *protocol.Hosted:
		if n.Public {
			fmt.Fprintf(v.w, "hosting %s, waiting for a partner\n", n.CaseTitle)
		} else {
			fmt.Fprintf(v.w, "hosting %s, share the code %s\n", n.CaseTitle, n.Code)
		}
	case *protocol.LobbyReady:
		fmt.Fprintf(v.w, "%s and %s are in the lobby\n", n.HostName, n.GuestName)
	case *protocol.PlayerLeft:
		fmt.Fprintf(v.w, "%s (%s) left\n", n.Name, n.Role)
	case *protocol.ReturnToLobby:
		fmt.Fprintf(v.w, "back in the lobby: %s\n", n.Reason)
	case *protocol.Rejected:
		fmt.Fprintf(v.w, "%s rejected: %s\n", n.Command, n.Reason)
	case *protocol.Failure:
		fmt.Fprintf(v.w, "server error: %s\n", n.Message)
	case *protocol.ChatMessage:
		fmt.Fprintf(v.w, "<%s> %s\n", n.From, n.Text)
	case *protocol.Room:
		fmt.Fprintf(v.w, "\n== %s ==\n%s\n", n.Title, n.Description)
		if len(n.Exits) > 0 {
			fmt.Fprintf(v.w, "exits: %s\n", strings.Join(n.Exits, ", "))
		}
		if len(n.Occupants) > 0 {
			fmt.Fprintf(v.w, "here: %s\n", strings.Join(n.Occupants, ", "))
		}
	case *protocol.ExamQuestion:
		fmt.Fprintf(v.w, "question %d/%d: %s\n", n.Index, n.Total, n.Prompt)
	case *protocol.ExamResult:
		verdict := "failed"
		if n.Passed {
			verdict = "passed"
		}
		fmt.Fprintf(v.w, "exam %s: %s\n", verdict, n.Summary)
	}
}
