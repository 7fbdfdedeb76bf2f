// Package telegram implements the destination client and the configuration
// command surface on top of telebot.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"flightwatch/internal/storage"
	"flightwatch/internal/transport"
	logx "flightwatch/pkg/logx"
)

type Config struct {
	Token        string
	AdminUserIDs []int64
	PollTimeout  time.Duration
}

type Adapter struct {
	cfg   Config
	log   logx.Logger
	bot   *tele.Bot
	store storage.Store

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	runWG   sync.WaitGroup
}

func New(cfg Config, store storage.Store, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{cfg: cfg, log: log.With(logx.String("comp", "telegram")), bot: b, store: store}
	a.registerCommands()
	return a, nil
}

// Start begins the command long-poll loop. Safe to call once.
func (a *Adapter) Start(ctx context.Context) {
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return
	}
	a.running = true
	rctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.runWG.Add(1)
	a.runMu.Unlock()

	go func() {
		defer a.runWG.Done()
		go func() {
			<-rctx.Done()
			a.bot.Stop()
		}()
		a.log.Info("command polling started")
		a.bot.Start() // blocks until Stop() called
	}()
}

// Stop shuts the loop down, bounded by ctx so a hung long-poll can't stall
// process shutdown.
func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	cancel := a.cancel
	a.cancel = nil
	wasRunning := a.running
	a.running = false
	a.runMu.Unlock()

	if !wasRunning {
		return nil
	}
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		a.runWG.Wait()
		close(done)
	}()

	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	t := time.NewTimer(grace)
	defer t.Stop()

	select {
	case <-done:
		a.log.Info("command polling stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		a.log.Warn("telegram stop grace elapsed; continuing shutdown")
		return nil
	}
}

// Send implements transport.Client. Telegram has no embed colors, so the
// notification renders as an HTML message; a configured image goes out as a
// photo caption instead.
func (a *Adapter) Send(ctx context.Context, destinationID int64, n transport.Notification) error {
	text := renderHTML(n)
	chat := &tele.Chat{ID: destinationID}
	opts := &tele.SendOptions{ParseMode: tele.ModeHTML, DisableWebPagePreview: true}

	var err error
	if n.Image != "" {
		photo := &tele.Photo{File: tele.FromURL(n.Image), Caption: text}
		_, err = a.bot.Send(chat, photo, opts)
	} else {
		_, err = a.bot.Send(chat, text, opts)
	}
	return classifySendErr(err)
}

func classifySendErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, tele.ErrChatNotFound) {
		return fmt.Errorf("%w: %v", transport.ErrNotFound, err)
	}
	var te *tele.Error
	if errors.As(err, &te) {
		switch {
		case te.Code == 403:
			return fmt.Errorf("%w: %v", transport.ErrPermissionDenied, err)
		case te.Code == 400 && strings.Contains(strings.ToLower(te.Description), "not found"):
			return fmt.Errorf("%w: %v", transport.ErrNotFound, err)
		case strings.Contains(strings.ToLower(te.Description), "rights"):
			return fmt.Errorf("%w: %v", transport.ErrPermissionDenied, err)
		}
	}
	return err
}

func renderHTML(n transport.Notification) string {
	var b strings.Builder
	if n.Title != "" {
		b.WriteString("<b>")
		b.WriteString(html.EscapeString(n.Title))
		b.WriteString("</b>\n")
	}
	if n.Body != "" {
		b.WriteString(html.EscapeString(n.Body))
		b.WriteString("\n")
	}
	for _, f := range n.Fields {
		b.WriteString("\n<b>")
		b.WriteString(html.EscapeString(f.Name))
		b.WriteString(":</b> ")
		b.WriteString(html.EscapeString(f.Value))
	}
	if n.Footer != "" {
		b.WriteString("\n\n<i>")
		b.WriteString(html.EscapeString(n.Footer))
		b.WriteString("</i>")
	}
	return b.String()
}
