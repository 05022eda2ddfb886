// Package tui is the terminal front end. It renders the conversation list
// and message pane from session state and repaints on bus events, never by
// polling the server itself.
package tui

import (
	"context"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"dormchat/internal/bus"
	"dormchat/internal/models"
	"dormchat/internal/status"
	"dormchat/internal/tui/views"
)

// Chat is the slice of the session the TUI consumes.
type Chat interface {
	Send(ctx context.Context, receiverID int64, content string) (string, error)
	OpenConversation(ctx context.Context, peer int64) ([]models.Message, error)
	CloseConversation()
	Conversation(peer int64) []models.Message
	Contacts() []models.Contact
}

// App is the main TUI application shell.
type App struct {
	app       *tview.Application
	pages     *tview.Pages
	chat      Chat
	bus       *bus.Bus
	machine   *status.Machine
	statusBar *views.StatusBar
	contacts  *views.ContactList
	msgView   *views.MessageView
	composer  *views.Composer

	me         int64
	activePeer int64
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewApp creates the TUI application for the given local user.
func NewApp(chat Chat, me int64, b *bus.Bus, machine *status.Machine, profileName string) *App {
	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		me:        me,
		app:       tview.NewApplication(),
		pages:     tview.NewPages(),
		chat:      chat,
		bus:       b,
		machine:   machine,
		statusBar: views.NewStatusBar(),
		contacts:  views.NewContactList(),
		msgView:   views.NewMessageView(),
		composer:  views.NewComposer(),
		ctx:       ctx,
		cancel:    cancel,
	}

	a.statusBar.SetProfile(profileName)
	a.statusBar.SetStatus(string(machine.Current()))
	a.setupCallbacks()
	a.setupLayout()

	return a
}

func (a *App) setupCallbacks() {
	a.contacts.SetSelectedFunc(func(row, col int) {
		if peer := a.contacts.SelectedContact(); peer != 0 {
			a.openChat(peer)
		}
	})

	a.composer.SetOnSend(func(text string) {
		peer := a.activePeer
		if peer == 0 {
			return
		}
		go func() {
			if _, err := a.chat.Send(a.ctx, peer, text); err != nil {
				a.flash("Send failed: " + err.Error())
			}
			a.app.QueueUpdateDraw(func() {
				a.msgView.Update(a.me, a.chat.Conversation(peer))
			})
		}()
	})
}

func (a *App) setupLayout() {
	chatFlex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.msgView, 0, 1, false).
		AddItem(a.composer, 1, 0, false)

	a.pages.AddPage("contacts", a.contacts, true, true)
	a.pages.AddPage("chat", chatFlex, true, false)

	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetRoot(root, true)

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		currentPage, _ := a.pages.GetFrontPage()

		if event.Key() == tcell.KeyEscape && currentPage == "chat" {
			a.activePeer = 0
			a.chat.CloseConversation()
			a.pages.SwitchToPage("contacts")
			a.contacts.Update(a.chat.Contacts())
			a.app.SetFocus(a.contacts)
			return nil
		}

		// Let text input widgets handle all keys normally.
		focused := a.app.GetFocus()
		if _, ok := focused.(*tview.InputField); ok {
			return event
		}

		if event.Key() == tcell.KeyRune {
			switch event.Rune() {
			case 'q':
				a.app.Stop()
				return nil
			case 'i':
				if currentPage == "chat" {
					a.app.SetFocus(a.composer.InputField)
					return nil
				}
			}
		}

		return event
	})
}

func (a *App) openChat(peer int64) {
	go func() {
		msgs, err := a.chat.OpenConversation(a.ctx, peer)
		if err != nil {
			a.flash("Load failed: " + err.Error())
			return
		}
		name := ""
		for _, c := range a.chat.Contacts() {
			if c.ID == peer {
				name = c.DisplayName
				break
			}
		}
		a.app.QueueUpdateDraw(func() {
			a.activePeer = peer
			a.msgView.SetPeerName(name)
			a.msgView.Update(a.me, msgs)
			a.pages.SwitchToPage("chat")
			a.app.SetFocus(a.composer.InputField)
		})
	}()
}

func (a *App) flash(msg string) {
	a.app.QueueUpdateDraw(func() {
		a.statusBar.SetFlash(msg)
	})
	time.AfterFunc(5*time.Second, func() {
		a.app.QueueUpdateDraw(func() {
			a.statusBar.SetFlash("")
		})
	})
}

// Run starts the event loop and the bus-driven refresh.
func (a *App) Run() error {
	go a.watchBus()

	a.contacts.Update(a.chat.Contacts())
	return a.app.Run()
}

// watchBus repaints the affected view whenever the session publishes a
// change. Buffered generously; a missed event only delays a repaint until
// the next one.
func (a *App) watchBus() {
	events, unsub := a.bus.Subscribe("", 256)
	defer unsub()

	for {
		select {
		case evt := <-events:
			a.handleEvent(evt)
		case <-a.ctx.Done():
			return
		}
	}
}

func (a *App) handleEvent(evt bus.Event) {
	switch evt.Kind {
	case bus.KindMessageUpserted, bus.KindMessageSendFailed:
		a.app.QueueUpdateDraw(func() {
			if a.activePeer != 0 {
				a.msgView.Update(a.me, a.chat.Conversation(a.activePeer))
			}
			a.contacts.Update(a.chat.Contacts())
		})

	case bus.KindContactUpdated, bus.KindPresenceUpdated:
		a.app.QueueUpdateDraw(func() {
			a.contacts.Update(a.chat.Contacts())
		})

	case bus.KindStatusChanged:
		a.app.QueueUpdateDraw(func() {
			a.statusBar.SetStatus(string(a.machine.Current()))
		})
	}
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}
