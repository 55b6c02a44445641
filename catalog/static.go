package catalog

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/cyberinferno/sleuthnet/game"
	"github.com/cyberinferno/sleuthnet/protocol"
)

// RoomDef is one location of a case.
type RoomDef struct {
	Title       string
	Description string
	// Exits maps an exit name to the id of the room it leads to.
	Exits map[string]string
}

// CaseFile is the full content of one case.
type CaseFile struct {
	Info  protocol.CaseInfo
	Start string
	Rooms map[string]RoomDef
	Exam  []string
}

// Static is a Provider over content compiled into the binary.
type Static struct {
	files map[string]CaseFile
	order []string
}

// NewStatic creates a Static provider. Cases are listed in argument order.
func NewStatic(files ...CaseFile) *Static {
	s := &Static{files: make(map[string]CaseFile, len(files))}
	for _, f := range files {
		s.files[f.Info.ID] = f
		s.order = append(s.order, f.Info.ID)
	}

	return s
}

// Cases implements Provider.
func (s *Static) Cases(ctx context.Context) ([]protocol.CaseInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cases := make([]protocol.CaseInfo, 0, len(s.order))
	for _, id := range s.order {
		cases = append(cases, s.files[id].Info)
	}

	return cases, nil
}

// Open implements Provider.
func (s *Static) Open(ctx context.Context, caseID, language string) (game.World, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	file, ok := s.files[caseID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCase, caseID)
	}

	if _, ok := file.Rooms[file.Start]; !ok {
		return nil, fmt.Errorf("case %s: start room %q is not defined", caseID, file.Start)
	}

	return &world{
		file:      file,
		positions: make(map[uint32]string),
		exams:     make(map[uint32]int),
	}, nil
}

// world moves players between rooms and walks them through the exam
// questions. Answers are recorded, not graded.
type world struct {
	file      CaseFile
	positions map[uint32]string
	exams     map[uint32]int
}

func (w *world) Start(host, guest game.Actor) []game.Outbound {
	w.positions[host.ID] = w.file.Start
	if guest.Role == game.RoleGuest {
		w.positions[guest.ID] = w.file.Start
	}

	return []game.Outbound{{To: game.ToAll, Message: w.room(w.file.Start)}}
}

func (w *world) Apply(actor game.Actor, action *protocol.Action) ([]game.Outbound, error) {
	here, ok := w.positions[actor.ID]
	if !ok {
		here = w.file.Start
		w.positions[actor.ID] = here
	}

	switch action.Verb {
	case "look":
		return toActor(w.room(here)), nil

	case "go":
		if len(action.Args) != 1 {
			return nil, fmt.Errorf("go where?")
		}
		next, ok := w.file.Rooms[here].Exits[action.Args[0]]
		if !ok {
			return nil, fmt.Errorf("there is no exit %q here", action.Args[0])
		}
		w.positions[actor.ID] = next
		return toActor(w.room(next)), nil

	case "exam":
		if len(w.file.Exam) == 0 {
			return nil, fmt.Errorf("this case has no exam")
		}
		w.exams[actor.ID] = 0
		return toActor(w.question(0)), nil

	case "answer":
		index, ok := w.exams[actor.ID]
		if !ok {
			return nil, fmt.Errorf("no exam in progress")
		}
		if index+1 < len(w.file.Exam) {
			w.exams[actor.ID] = index + 1
			return toActor(w.question(index + 1)), nil
		}
		delete(w.exams, actor.ID)
		return toActor(&protocol.ExamResult{Passed: true, Summary: fmt.Sprintf("%d answers recorded", len(w.file.Exam))}), nil

	default:
		return nil, fmt.Errorf("unknown action %q", action.Verb)
	}
}

func (w *world) room(id string) *protocol.Room {
	def := w.file.Rooms[id]
	return &protocol.Room{
		Title:       def.Title,
		Description: def.Description,
		Exits:       slices.Sorted(maps.Keys(def.Exits)),
	}
}

func (w *world) question(index int) *protocol.ExamQuestion {
	return &protocol.ExamQuestion{Index: index + 1, Total: len(w.file.Exam), Prompt: w.file.Exam[index]}
}

func toActor(n protocol.Notification) []game.Outbound {
	return []game.Outbound{{To: game.ToActor, Message: n}}
}

// Demo returns the built-in cases shipped with the server binary.
func Demo() *Static {
	return NewStatic(
		CaseFile{
			Info:  protocol.CaseInfo{ID: "harbor", Title: "Death at the Harbor", Languages: []string{"en", "de"}},
			Start: "pier",
			Rooms: map[string]RoomDef{
				"pier": {
					Title:       "Pier",
					Description: "Fog rolls over the planks. A rope is cut clean.",
					Exits:       map[string]string{"office": "office", "warehouse": "warehouse"},
				},
				"office": {
					Title:       "Harbor Office",
					Description: "The logbook is open at yesterday's page.",
					Exits:       map[string]string{"pier": "pier"},
				},
				"warehouse": {
					Title:       "Warehouse",
					Description: "Crates stamped with a foreign seal.",
					Exits:       map[string]string{"pier": "pier"},
				},
			},
			Exam: []string{"Who cut the rope?", "Why was the logbook left open?"},
		},
		CaseFile{
			Info:  protocol.CaseInfo{ID: "manor", Title: "The Silent Manor", Languages: []string{"en"}},
			Start: "hall",
			Rooms: map[string]RoomDef{
				"hall": {
					Title:       "Great Hall",
					Description: "The clock stopped at a quarter past nine.",
					Exits:       map[string]string{"study": "study"},
				},
				"study": {
					Title:       "Study",
					Description: "A letter lies half burned in the grate.",
					Exits:       map[string]string{"hall": "hall"},
				},
			},
			Exam: []string{"Who wrote the letter?"},
		},
	)
}
