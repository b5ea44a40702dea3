package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/gorilla/websocket"

	"fragmatch/internal/game/match"
	"fragmatch/internal/game/roomcode"
	"fragmatch/internal/menu"
	"fragmatch/internal/network"
	"fragmatch/internal/session"
)

var (
	title   = color.New(color.FgCyan, color.Bold)
	okText  = color.New(color.FgGreen)
	errText = color.New(color.FgRed)
	info    = color.New(color.FgYellow)
)

// terminal é o renderizador passivo: mostra eventos e traduz escolhas do
// menu em comandos. Nenhum estado de jogo é decidido aqui.
type terminal struct {
	conn *websocket.Conn

	writeMu sync.Mutex
	mu      sync.Mutex
	me      string
}

func main() {
	addr := flag.String("addr", "localhost:8080", "endereço do servidor")
	flag.Parse()

	u := url.URL{Scheme: "ws", Host: *addr, Path: "/ws"}
	conn, resp, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		if resp != nil {
			log.Printf("Status da resposta: %s", resp.Status)
		}
		log.Fatalf("Não foi possível conectar a %s: %v", u.String(), err)
	}
	defer conn.Close()

	t := &terminal{conn: conn}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	done := make(chan struct{})
	go t.readLoop(done)

	quit := make(chan struct{})
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			if !t.handleInput(scanner, strings.TrimSpace(scanner.Text())) {
				close(quit)
				return
			}
		}
	}()

	printMenu()
	select {
	case <-done:
		log.Println("Desconectado do servidor.")
	case <-interrupt:
	case <-quit:
	}
	t.writeMu.Lock()
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	t.writeMu.Unlock()
}

func printMenu() {
	title.Println("\n=== FRAGMATCH ===")
	fmt.Println("1. Host game")
	fmt.Println("2. Find sessions")
	fmt.Println("3. Join by room code")
	fmt.Println("4. Join from list")
	fmt.Println("5. Leave session")
	fmt.Println("6. Status")
	fmt.Println("7. Record elimination (host)")
	fmt.Println("0. Quit")
	fmt.Print("> ")
}

func (t *terminal) send(msgType string, payload any) {
	msg, err := network.NewMessage(msgType, payload)
	if err != nil {
		errText.Println(err)
		return
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := t.conn.WriteJSON(msg); err != nil {
		errText.Printf("Erro ao enviar: %v\n", err)
	}
}

func ask(scanner *bufio.Scanner, prompt string) string {
	fmt.Print(prompt)
	if !scanner.Scan() {
		return ""
	}
	return strings.TrimSpace(scanner.Text())
}

// handleInput devolve false quando o usuário pede para sair.
func (t *terminal) handleInput(scanner *bufio.Scanner, choice string) bool {
	switch choice {
	case "1":
		n, _ := strconv.Atoi(ask(scanner, "Max players (enter = default): "))
		t.send(menu.CmdHostGame, menu.HostGameRequest{MaxParticipants: n})
	case "2":
		t.send(menu.CmdFindSessions, nil)
	case "3":
		code := ask(scanner, "Room code: ")
		if _, ok := roomcode.Normalize(code); !ok {
			errText.Println("Room code must be exactly 4 digits.")
			break
		}
		t.send(menu.CmdJoinRoom, menu.JoinRoomRequest{RoomCode: code})
	case "4":
		n, err := strconv.Atoi(ask(scanner, "Session number: "))
		if err != nil || n < 1 {
			errText.Println("Invalid session number.")
			break
		}
		index := n - 1
		t.send(menu.CmdJoinIndex, menu.JoinIndexRequest{Index: &index})
	case "5":
		t.send(menu.CmdLeaveSession, nil)
	case "6":
		t.send(menu.CmdStatus, nil)
	case "7":
		victim := ask(scanner, "Victim id: ")
		t.send(menu.CmdRecordElimination, menu.EliminationRequest{Victim: victim})
	case "0":
		return false
	case "":
	default:
		errText.Println("Unknown option.")
	}
	printMenu()
	return true
}

func (t *terminal) readLoop(done chan struct{}) {
	defer close(done)
	for {
		var msg network.Message
		if err := t.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("Erro de leitura: %v", err)
			}
			return
		}
		t.render(msg)
	}
}

func (t *terminal) render(msg network.Message) {
	fmt.Println()
	switch msg.Type {
	case menu.EvtWelcome:
		var p menu.WelcomePayload
		msg.Decode(&p)
		t.mu.Lock()
		t.me = p.ClientID
		t.mu.Unlock()
		okText.Printf("Connected as %s (state: %s)\n", p.ClientID, p.State)

	case menu.EvtSessionCreated:
		var p menu.CreatedPayload
		msg.Decode(&p)
		if p.OK {
			okText.Printf("Session created. Room code: %s\n", p.RoomCode)
		} else {
			errText.Println("Could not create an online session.")
		}

	case menu.EvtSearchComplete:
		var p menu.SearchCompletePayload
		msg.Decode(&p)
		if len(p.Sessions) == 0 {
			info.Println("No sessions found.")
			break
		}
		title.Println("Sessions:")
		for _, s := range p.Sessions {
			fmt.Printf("  %s  [room %s]\n", s.Info, s.RoomCode)
		}

	case menu.EvtSessionJoined:
		var p menu.JoinedPayload
		msg.Decode(&p)
		if p.OK {
			okText.Println("Joined session.")
		} else {
			errText.Println("Join failed.")
		}

	case menu.EvtRoomNotFound:
		var p menu.RoomNotFoundPayload
		msg.Decode(&p)
		errText.Printf("Room %q not found.\n", p.RoomCode)

	case menu.EvtTravel:
		var d session.Destination
		msg.Decode(&d)
		switch {
		case d.Local:
			info.Printf("Playing offline on %s (room %s)\n", d.Level, d.RoomCode)
		case d.Host:
			okText.Printf("Hosting %s at %s (room %s)\n", d.Level, d.ConnectString, d.RoomCode)
		default:
			okText.Printf("Travelling to %s at %s\n", d.Level, d.ConnectString)
		}

	case menu.EvtScoreChanged:
		var p menu.ScorePayload
		msg.Decode(&p)
		fmt.Printf("Score %s%s: %d\n", t.label(p.Participant), teamSuffix(p.Team), p.Score)

	case menu.EvtMatchState:
		var s match.Snapshot
		msg.Decode(&s)
		fmt.Printf("Match %s (%s left)\n", s.Phase, s.Remaining.Round(time.Second))
		for _, e := range s.Scores {
			fmt.Printf("  %s: %d\n", t.label(e.ID), e.Score)
		}

	case menu.EvtMatchEnded:
		var s match.Summary
		msg.Decode(&s)
		title.Println("Match over!")
		if s.Draw {
			info.Println("Draw.")
		} else {
			okText.Printf("Winner: %s\n", t.label(s.Winner))
		}
		for _, e := range s.Scores {
			fmt.Printf("  %s: %d\n", t.label(e.ID), e.Score)
		}

	case menu.EvtInputFrozen:
		var p menu.FrozenPayload
		msg.Decode(&p)
		info.Printf("Input frozen for %s\n", t.label(p.Participant))

	case menu.EvtStatus:
		var p menu.StatusPayload
		msg.Decode(&p)
		fmt.Printf("State: %s  Room: %s  Host: %v\n", p.State, p.RoomCode, p.Host)
		if p.Phase != nil {
			fmt.Printf("Match: %s  Remaining: %s\n", *p.Phase, p.Remaining)
		}

	case menu.EvtError:
		var p menu.ErrorPayload
		msg.Decode(&p)
		errText.Println(p.Error)

	default:
		fmt.Printf("[%s] %s\n", msg.Type, string(msg.Payload))
	}
	fmt.Print("> ")
}

func (t *terminal) label(id string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id == t.me {
		return id + " (you)"
	}
	return id
}

func teamSuffix(team bool) string {
	if team {
		return " [team]"
	}
	return ""
}
