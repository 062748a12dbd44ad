// Package ui renders incoming messages to the terminal.
package ui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/tsarna/parley/pkg/parley/api"
)

// PersonDirectory resolves person ids into profiles. Satisfied by *api.Client.
type PersonDirectory interface {
	GetPerson(ctx context.Context, personID string) (*api.Person, error)
}

// unknownSender is shown when a sender's profile cannot be resolved.
const unknownSender = "Unknown"

// Printer renders each incoming message as a single terminal line. The
// session's own messages are suppressed since the user already saw themselves
// type them. Sender names are resolved through the directory once and cached
// for the life of the printer.
type Printer struct {
	directory PersonDirectory
	selfID    string
	out       io.Writer
	logger    *zap.Logger

	mu    sync.Mutex
	names map[string]string

	timeStyle lipgloss.Style
	nameStyle lipgloss.Style
	fileStyle lipgloss.Style
}

// NewPrinter creates a printer writing to out. selfID is the authenticated
// user's person id; messages from it are dropped.
func NewPrinter(directory PersonDirectory, selfID string, out io.Writer, logger *zap.Logger) *Printer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Printer{
		directory: directory,
		selfID:    selfID,
		out:       out,
		logger:    logger,
		names:     make(map[string]string),
		timeStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		nameStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true),
		fileStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Italic(true),
	}
}

// OnMessage renders one live message. It never fails the pipeline: rendering
// problems degrade rather than error. The session's own messages are skipped.
func (p *Printer) OnMessage(ctx context.Context, msg *api.Message) error {
	if msg.PersonID == p.selfID {
		return nil
	}
	p.Print(ctx, msg)
	return nil
}

// Print renders a message unconditionally, own messages included. Used for
// room history, where the user's side of the conversation belongs too.
func (p *Printer) Print(ctx context.Context, msg *api.Message) {
	name := p.senderName(ctx, msg)
	stamp := msg.Created.Local().Format("15:04")

	var line strings.Builder
	line.WriteString(p.timeStyle.Render(stamp))
	line.WriteString(" ")
	line.WriteString(p.nameStyle.Render(name + ":"))
	if msg.Text != "" {
		line.WriteString(" ")
		line.WriteString(msg.Text)
	}
	if n := len(msg.Files); n > 0 {
		line.WriteString(" ")
		line.WriteString(p.fileStyle.Render(fmt.Sprintf("[%d attachment(s)]", n)))
	}
	line.WriteString("\n")

	if _, err := io.WriteString(p.out, line.String()); err != nil {
		p.logger.Warn("writing message to terminal", zap.Error(err))
	}
}

func (p *Printer) senderName(ctx context.Context, msg *api.Message) string {
	p.mu.Lock()
	name, ok := p.names[msg.PersonID]
	p.mu.Unlock()
	if ok {
		return name
	}

	name = p.lookupName(ctx, msg)

	p.mu.Lock()
	p.names[msg.PersonID] = name
	p.mu.Unlock()

	return name
}

func (p *Printer) lookupName(ctx context.Context, msg *api.Message) string {
	person, err := p.directory.GetPerson(ctx, msg.PersonID)
	if err != nil {
		p.logger.Debug("sender lookup failed",
			zap.String("person_id", msg.PersonID),
			zap.Error(err),
		)
		if msg.PersonEmail != "" {
			return msg.PersonEmail
		}
		return unknownSender
	}
	if person.DisplayName != "" {
		return person.DisplayName
	}
	if len(person.Emails) > 0 {
		return person.Emails[0]
	}
	return unknownSender
}
