package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/tsarna/parley/pkg/parley/api"
	"github.com/tsarna/parley/pkg/parley/session"
)

const inputHelp = `Commands:
  /rooms             list your rooms
  /members           list members of the current room
  /join <title>      switch to the room with this title
  /file <path> [msg] send a file, with an optional message
  /help              show this help
  /exit              leave the session`

// runInputLoop reads lines from stdin for the life of the session. Plain
// lines are posted to the focused room; /-prefixed lines are commands. Stdin
// reads cannot be interrupted, so they happen on a helper goroutine and the
// loop selects between new lines and cancellation.
func runInputLoop(ctx context.Context, client *api.Client, controller *session.Controller) error {
	scanner := bufio.NewScanner(os.Stdin)
	lines := make(chan string)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return scanner.Err()
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if strings.HasPrefix(line, "/") {
				leave, err := handleCommand(ctx, client, controller, line)
				if err != nil {
					fmt.Printf("error: %v\n", err)
				}
				if leave {
					return nil
				}
				continue
			}
			if _, err := client.CreateMessage(ctx, controller.Focus().Get(), line, ""); err != nil {
				fmt.Printf("send failed: %v\n", err)
			}
		}
	}
}

// handleCommand executes one /-command. leave is true when the session
// should end.
func handleCommand(ctx context.Context, client *api.Client, controller *session.Controller, line string) (leave bool, err error) {
	fields := strings.Fields(line)

	switch fields[0] {
	case "/exit", "/quit":
		return true, nil

	case "/help":
		fmt.Println(inputHelp)
		return false, nil

	case "/rooms":
		rooms, err := client.ListRooms(ctx, 30)
		if err != nil {
			return false, err
		}
		for _, room := range rooms {
			fmt.Printf("  %s\n", room.Title)
		}
		return false, nil

	case "/members":
		members, err := client.ListMemberships(ctx, controller.Focus().Get(), 100)
		if err != nil {
			return false, err
		}
		for _, m := range members {
			name := m.PersonDisplayName
			if name == "" {
				name = m.PersonEmail
			}
			if m.IsModerator {
				name += " (moderator)"
			}
			fmt.Printf("  %s\n", name)
		}
		return false, nil

	case "/join":
		if len(fields) < 2 {
			return false, fmt.Errorf("usage: /join <room title>")
		}
		title := strings.TrimSpace(strings.TrimPrefix(line, "/join"))
		room, err := client.RoomByName(ctx, title)
		if err != nil {
			return false, err
		}
		if err := controller.SwitchRoom(room.ID); err != nil {
			return false, err
		}
		fmt.Printf("Now in %s.\n", room.Title)
		return false, nil

	case "/file":
		if len(fields) < 2 {
			return false, fmt.Errorf("usage: /file <path> [message]")
		}
		path := fields[1]
		text := strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(line, "/file"), " "+path))
		if _, err := client.CreateMessageWithFile(ctx, controller.Focus().Get(), path, text); err != nil {
			return false, err
		}
		return false, nil

	default:
		return false, fmt.Errorf("unknown command %q, try /help", fields[0])
	}
}
