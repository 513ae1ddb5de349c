package dashboard

import (
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

const noticePage = "notice"

// tui draws a View in the terminal and reloads it on demand.
type tui struct {
	app       *tview.Application
	pages     *tview.Pages
	status    *tview.TextView
	cards     *tview.TextView
	chartView *tview.TextView
	view      *View
	fetcher   Fetcher
	ctx       context.Context
}

// RunTUI shows the interactive dashboard until the user quits or ctx is
// cancelled. r refetches the snapshot; q or Esc quits.
func RunTUI(ctx context.Context, fetcher Fetcher) error {
	return newTUI(ctx, fetcher, nil).run()
}

func newTUI(ctx context.Context, fetcher Fetcher, screen tcell.Screen) *tui {
	status := tview.NewTextView().SetDynamicColors(true).SetWrap(false)
	status.SetTextColor(tcell.ColorYellow)

	cards := tview.NewTextView().SetDynamicColors(true).SetWrap(false)
	cards.SetBorder(true).SetTitle(" Dashboard ").SetTitleAlign(tview.AlignLeft)

	chartView := tview.NewTextView().SetDynamicColors(true).SetWrap(false)
	chartView.SetBorder(true).SetTitle(" " + ChartTitle + " ").SetTitleAlign(tview.AlignLeft)

	layout := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(status, 1, 0, false).
		AddItem(cards, 9, 0, false).
		AddItem(chartView, 0, 1, false)

	pages := tview.NewPages().AddPage("main", layout, true, true)

	app := tview.NewApplication().SetRoot(pages, true).EnableMouse(false)
	if screen != nil {
		app.SetScreen(screen)
	}

	t := &tui{
		app:       app,
		pages:     pages,
		status:    status,
		cards:     cards,
		chartView: chartView,
		view:      NewView(),
		fetcher:   fetcher,
		ctx:       ctx,
	}
	t.view.Subscribe(func(st State) {
		t.app.QueueUpdateDraw(func() { t.draw(st) })
	})
	app.SetInputCapture(t.handleKey)
	return t
}

func (t *tui) run() error {
	ctx, cancel := context.WithCancel(t.ctx)
	defer cancel()
	t.ctx = ctx

	go func() {
		<-ctx.Done()
		t.app.Stop()
	}()

	t.draw(t.view.State())
	go t.reload()
	return t.app.Run()
}

// reload runs one load cycle. Fetch failures surface as a notice and a
// reload while one is in flight is dropped, so the error is not needed here.
func (t *tui) reload() {
	_ = t.view.Load(t.ctx, t.fetcher)
}

func (t *tui) handleKey(ev *tcell.EventKey) *tcell.EventKey {
	if t.pages.HasPage(noticePage) {
		// The modal owns input until dismissed.
		return ev
	}
	switch {
	case ev.Key() == tcell.KeyEscape, ev.Rune() == 'q':
		t.app.Stop()
		return nil
	case ev.Rune() == 'r':
		go t.reload()
		return nil
	}
	return ev
}

func (t *tui) draw(st State) {
	if st.Loading {
		t.status.SetText("Loading statistics...")
	} else {
		t.status.SetText("[::d]r[-:-:-] refresh  [::d]q[-:-:-] quit")
	}

	var b strings.Builder
	for _, c := range CardsFor(st.Snapshot) {
		fmt.Fprintf(&b, " [::b]%-15s[-:-:-] %s\n", c.Title, c.Value)
	}
	if st.Snapshot != nil {
		fmt.Fprintf(&b, "\n [::d]%s on disk[-:-:-]\n", humanize.IBytes(uint64(max(st.Snapshot.DBSize, 0))))
	}
	t.cards.SetText(b.String())

	_, _, width, _ := t.chartView.GetInnerRect()
	barWidth := width - 30
	if barWidth < 10 {
		barWidth = 40
	}
	t.chartView.SetText(tview.Escape(TextBars(BarsFor(st.Snapshot), barWidth)))

	if st.Notice != nil && !t.pages.HasPage(noticePage) {
		modal := tview.NewModal().
			SetText(st.Notice.Title + "\n\n" + st.Notice.Description).
			AddButtons([]string{"OK"}).
			SetDoneFunc(func(int, string) {
				t.pages.RemovePage(noticePage)
			})
		t.pages.AddPage(noticePage, modal, true, true)
		t.app.SetFocus(modal)
	}
}
