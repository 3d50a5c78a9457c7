package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"golang.org/x/term"

	"github.com/ammar1510/mesh/internal/chat"
	"github.com/ammar1510/mesh/internal/models"
	"github.com/ammar1510/mesh/internal/render"
)

var errQuit = errors.New("quit")

const helpText = `Commands:
  /older                 load earlier messages (or replies in an open thread)
  /reply <id>            quote a message in the next send
  /edit <id> [text]      edit one of your messages
  /cancel                leave edit or reply mode
  /react <id> <emoji>    toggle a reaction
  /retry <id>            resend a failed message
  /thread <id>           open the thread rooted at a message
  /close                 close the thread panel
  /search <text>         find messages containing text
  /voice <file> [secs]   send an audio file as a voice note
  /switch <user-id>      open another conversation
  /quit                  exit
Anything else is sent as a message.`

// terminal drives a conversation from line-oriented input and redraws
// the screen whenever the conversation changes.
type terminal struct {
	conv     *chat.Conversation
	self     string
	out      io.Writer
	maxVoice uint64

	mu      sync.Mutex
	notice  string
	query   string
	results []models.Message
}

func newTerminal(conv *chat.Conversation, self string, out io.Writer, maxVoice uint64) *terminal {
	return &terminal{conv: conv, self: self, out: out, maxVoice: maxVoice}
}

func (t *terminal) run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	t.draw()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.conv.Changes():
			t.draw()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			err := t.handle(ctx, line)
			if errors.Is(err, errQuit) {
				return nil
			}
			t.setNotice(err)
			t.draw()
		}
	}
}

// parseCommand splits "/name rest" into its parts. Lines that do not
// start with a slash are not commands.
func parseCommand(line string) (name, arg string, ok bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return "", "", false
	}
	name, arg, _ = strings.Cut(line[1:], " ")
	return strings.ToLower(name), strings.TrimSpace(arg), true
}

func (t *terminal) handle(ctx context.Context, line string) error {
	name, arg, ok := parseCommand(line)
	if !ok {
		if strings.TrimSpace(line) == "" {
			return nil
		}
		t.conv.SetDraft(line)
		m, err := t.conv.Submit(ctx)
		if err != nil {
			return err
		}
		if m.Status == models.StatusFailed {
			return fmt.Errorf("message not delivered, /retry %s", m.ID)
		}
		return nil
	}

	t.mu.Lock()
	t.results, t.query = nil, ""
	t.mu.Unlock()

	switch name {
	case "quit", "q", "exit":
		return errQuit
	case "help", "h":
		t.info(helpText)
		return nil
	case "older":
		return t.older(ctx)
	case "reply":
		return t.conv.ReplyTo(arg)
	case "edit":
		id, text, _ := strings.Cut(arg, " ")
		if strings.TrimSpace(text) == "" {
			return t.conv.BeginEdit(id)
		}
		_, err := t.conv.Edit(ctx, id, text)
		return err
	case "cancel":
		t.conv.CancelEdit()
		t.conv.CancelReply()
		return nil
	case "react":
		id, emoji, _ := strings.Cut(arg, " ")
		if strings.TrimSpace(emoji) == "" {
			return errors.New("usage: /react <id> <emoji>")
		}
		return t.conv.React(ctx, id, strings.TrimSpace(emoji))
	case "retry":
		m, err := t.conv.Retry(ctx, arg)
		if err != nil {
			return err
		}
		if m.Status == models.StatusFailed {
			return fmt.Errorf("still not delivered, /retry %s", m.ID)
		}
		return nil
	case "thread":
		return t.conv.OpenThread(ctx, arg)
	case "close":
		t.conv.CloseThread()
		return nil
	case "search":
		if arg == "" {
			return errors.New("usage: /search <text>")
		}
		results := t.conv.Search(chat.Filter{Query: arg})
		t.mu.Lock()
		t.results, t.query = results, arg
		t.mu.Unlock()
		return nil
	case "voice":
		return t.voice(ctx, arg)
	case "switch":
		if arg == "" {
			return errors.New("usage: /switch <user-id>")
		}
		return t.conv.Switch(ctx, arg)
	}
	return fmt.Errorf("unknown command /%s, try /help", name)
}

func (t *terminal) older(ctx context.Context) error {
	if t.conv.Snapshot().Thread != nil {
		return t.conv.LoadOlderThread(ctx)
	}
	n, err := t.conv.LoadOlder(ctx)
	switch {
	case errors.Is(err, chat.ErrNoMoreHistory):
		t.info("No earlier messages")
		return nil
	case err != nil:
		return err
	}
	t.info(fmt.Sprintf("Loaded %d earlier %s", n, pluralize(n, "message", "messages")))
	return nil
}

// parseVoiceArgs reads "<file> [seconds]".
func parseVoiceArgs(arg string) (string, float64, error) {
	fields := strings.Fields(arg)
	if len(fields) == 0 || len(fields) > 2 {
		return "", 0, errors.New("usage: /voice <file> [seconds]")
	}
	var secs float64
	if len(fields) == 2 {
		v, err := strconv.ParseFloat(fields[1], 64)
		if err != nil || v < 0 {
			return "", 0, fmt.Errorf("invalid duration %q", fields[1])
		}
		secs = v
	}
	return fields[0], secs, nil
}

func (t *terminal) voice(ctx context.Context, arg string) error {
	path, secs, err := parseVoiceArgs(arg)
	if err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if t.maxVoice > 0 && uint64(info.Size()) > t.maxVoice {
		return fmt.Errorf("%s is %s, the limit is %s", filepath.Base(path), humanize.Bytes(uint64(info.Size())), humanize.Bytes(t.maxVoice))
	}
	audio, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	snap := t.conv.Snapshot()
	m, err := t.conv.SendVoiceNote(ctx, chat.VoiceNote{
		Audio:    audio,
		FileName: filepath.Base(path),
		Duration: secs,
		LocalURL: "file://" + path,
		ReplyTo:  snap.Composer.ReplyTo,
	})
	if err != nil {
		return err
	}
	if snap.Composer.ReplyTo != nil {
		t.conv.CancelReply()
	}
	if m.Status == models.StatusFailed {
		return fmt.Errorf("voice note not delivered, /retry %s", m.ID)
	}
	return nil
}

func (t *terminal) info(msg string) {
	t.mu.Lock()
	t.notice = msg
	t.mu.Unlock()
}

func (t *terminal) setNotice(err error) {
	if err == nil {
		return
	}
	log.Debug("Command failed: %v", err)
	t.info(err.Error())
}

// draw repaints the whole screen from a fresh snapshot.
func (t *terminal) draw() {
	width, height := t.size()
	snap := t.conv.Snapshot()
	opts := render.Options{Width: width, Self: t.self}

	var buf bytes.Buffer
	if err := render.Conversation(&buf, snap, opts); err != nil {
		log.Error("Render failed: %v", err)
		return
	}
	if snap.Thread != nil {
		render.Thread(&buf, snap.Thread, opts)
	}

	t.mu.Lock()
	if t.results != nil {
		render.Results(&buf, t.query, t.results, opts)
	}
	notice := t.notice
	t.notice = ""
	t.mu.Unlock()

	switch {
	case snap.Composer.EditingID != "":
		fmt.Fprintf(&buf, "editing [%s], /cancel to stop\n", snap.Composer.EditingID)
	case snap.Composer.ReplyTo != nil:
		fmt.Fprintf(&buf, "replying to %s, /cancel to stop\n", snap.Composer.ReplyTo.Sender.DisplayName)
	}
	if notice != "" {
		buf.WriteString(notice + "\n")
	}

	t.conv.Layout(float64(bytes.Count(buf.Bytes(), []byte("\n"))), float64(height))

	if t.interactive() {
		io.WriteString(t.out, "\033[H\033[2J")
	}
	buf.WriteString("> ")
	t.out.Write(buf.Bytes())
}

func (t *terminal) interactive() bool {
	f, ok := t.out.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func (t *terminal) size() (int, int) {
	if f, ok := t.out.(*os.File); ok {
		if w, h, err := term.GetSize(int(f.Fd())); err == nil {
			return w, h
		}
	}
	return 80, 24
}

func pluralize(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
