package views

import (
	"fmt"

	"github.com/rivo/tview"

	"dormchat/internal/models"
)

// MessageView displays the messages of one conversation.
type MessageView struct {
	*tview.TextView
	peerName string
}

// NewMessageView creates the message pane.
func NewMessageView() *MessageView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	tv.SetBorder(true).SetTitle(" Messages ")

	return &MessageView{TextView: tv}
}

// SetPeerName updates the title with the chat partner's name.
func (mv *MessageView) SetPeerName(name string) {
	mv.peerName = name
	mv.SetTitle(fmt.Sprintf(" %s ", sanitizeForTerminal(name)))
}

// Update renders the conversation oldest first. Pending messages carry a
// sending marker, failed ones a red failure marker.
func (mv *MessageView) Update(me int64, msgs []models.Message) {
	mv.Clear()

	for _, m := range msgs {
		sender := mv.peerName
		if m.SenderID == me {
			sender = "You"
		}

		marker := ""
		switch m.Status {
		case models.StatusPending:
			marker = " [::d](sending...)[-:-:-]"
		case models.StatusFailed:
			marker = " [red](failed)[-]"
		}

		line := fmt.Sprintf("[::b]%s[-:-:-] [::d]%s[-:-:-]%s\n%s\n\n",
			sanitizeForTerminal(sender), m.DisplayTime, marker, sanitizeForTerminal(m.Content))
		_, _ = fmt.Fprint(mv, line)
	}

	mv.ScrollToEnd()
}
