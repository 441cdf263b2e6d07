// Package tui provides a terminal UI for browsing an Inkwell server.
package tui

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	v1 "github.com/klubi/inkwell/pkg/apis/v1"
	"github.com/klubi/inkwell/pkg/client"
)

// Views, in header order.
const (
	viewKeys     = "keys"
	viewProjects = "projects"
	viewBlobs    = "blobs"
	viewEvents   = "events"
)

// maxEvents bounds the event log kept in memory.
const maxEvents = 500

// App is the main TUI application. It polls the Inkwell REST API and shows
// keys, projects and blobs in a navigable table, plus a live event log.
type App struct {
	app         *tview.Application
	pages       *tview.Pages
	header      *tview.TextView
	footer      *tview.TextView
	table       *tview.Table
	filterInput *tview.InputField
	detailView  *tview.TextView
	layout      *tview.Flex

	client      *client.Client
	currentView string
	filter      string

	// Cached data from the last successful refresh.
	keys     []string
	projects []string
	blobs    []string
	events   []v1.Event
	status   *v1.Status
	lastErr  error

	mu sync.Mutex

	// mainFlex is the outermost vertical flex (header + content + footer).
	mainFlex *tview.Flex

	// describeOpen tracks whether the detail panel is visible.
	describeOpen bool
	// filterOpen tracks whether the filter input is visible.
	filterOpen bool
}

// NewApp creates a new TUI application that talks to the server through c.
func NewApp(c *client.Client) *App {
	a := &App{
		app:         tview.NewApplication(),
		client:      c,
		currentView: viewKeys,
	}

	// -- Header --
	a.header = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	a.header.SetBackgroundColor(tcell.ColorDarkBlue)

	// -- Footer --
	a.footer = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	a.footer.SetBackgroundColor(tcell.ColorDarkBlue)

	// -- Table --
	a.table = tview.NewTable().
		SetSelectable(true, false).
		SetFixed(1, 0). // header row stays fixed
		SetSeparator(tview.Borders.Vertical)
	a.table.SetBorder(false)
	a.table.SetBorderPadding(0, 0, 1, 1)

	// -- Filter input --
	a.filterInput = tview.NewInputField().
		SetLabel(" Filter: ").
		SetFieldWidth(40).
		SetFieldBackgroundColor(tcell.ColorBlack).
		SetLabelColor(tcell.ColorYellow)

	a.filterInput.SetDoneFunc(func(key tcell.Key) {
		switch key {
		case tcell.KeyEnter:
			a.mu.Lock()
			a.filter = a.filterInput.GetText()
			a.mu.Unlock()
		case tcell.KeyEscape:
			a.mu.Lock()
			a.filter = ""
			a.mu.Unlock()
			a.filterInput.SetText("")
		}
		a.hideFilter()
		a.updateHeader()
		a.updateTable()
		a.app.SetFocus(a.table)
	})

	// -- Detail view --
	a.detailView = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWrap(true)
	a.detailView.SetBorder(true).
		SetTitle(" Value ").
		SetBorderColor(tcell.ColorDodgerBlue)

	// -- Build the main layout --
	contentFlex := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(a.table, 0, 1, true)

	a.mainFlex = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.header, 1, 0, false).
		AddItem(contentFlex, 0, 1, true).
		AddItem(a.footer, 1, 0, false)

	a.layout = contentFlex

	// Pages allows switching between the main view and overlays.
	a.pages = tview.NewPages().
		AddPage("main", a.mainFlex, true, true)

	a.updateHeader()
	a.updateFooter()
	a.setupKeyBindings()

	a.app.SetRoot(a.pages, true).SetFocus(a.table)

	return a
}

// Run starts the background refresh and event goroutines and runs the TUI
// event loop until the user quits or ctx ends.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Perform an initial synchronous refresh so the table is populated
	// before the first render.
	a.refresh(ctx)
	a.updateHeader()
	a.updateTable()

	// Background poller.
	go func() {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			a.refresh(ctx)
			a.app.QueueUpdateDraw(func() {
				a.updateHeader()
				a.updateTable()
			})
		}
	}()

	go a.followEvents(ctx)

	go func() {
		<-ctx.Done()
		a.app.Stop()
	}()

	return a.app.Run()
}

// followEvents appends server events to the event log.
func (a *App) followEvents(ctx context.Context) {
	events, err := a.client.Events(ctx)
	if err != nil {
		a.mu.Lock()
		a.lastErr = err
		a.mu.Unlock()
		return
	}
	for evt := range events {
		a.mu.Lock()
		a.events = appendEvent(a.events, evt)
		showing := a.currentView == viewEvents
		a.mu.Unlock()

		if showing {
			a.app.QueueUpdateDraw(a.updateTable)
		}
	}
}

func appendEvent(events []v1.Event, evt v1.Event) []v1.Event {
	events = append(events, evt)
	if len(events) > maxEvents {
		events = events[len(events)-maxEvents:]
	}
	return events
}

// ---------------------------------------------------------------------------
// Key bindings
// ---------------------------------------------------------------------------

func (a *App) setupKeyBindings() {
	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		// When the filter input has focus, let it handle its own keys.
		if a.filterOpen {
			return event
		}

		// When the detail panel is open, Escape closes it.
		if a.describeOpen && event.Key() == tcell.KeyEscape {
			a.hideDescribe()
			return nil
		}

		switch event.Key() {
		case tcell.KeyRune:
			switch event.Rune() {
			case '1':
				a.switchView(viewKeys)
				return nil
			case '2':
				a.switchView(viewProjects)
				return nil
			case '3':
				a.switchView(viewBlobs)
				return nil
			case '4':
				a.switchView(viewEvents)
				return nil
			case '/':
				a.showFilter()
				return nil
			case 'q':
				a.app.Stop()
				return nil
			case 'r':
				a.refreshAsync()
				return nil
			case 'd':
				a.confirmDelete()
				return nil
			case 'j':
				// Move selection down (vim-style).
				row, _ := a.table.GetSelection()
				if row < a.table.GetRowCount()-1 {
					a.table.Select(row+1, 0)
				}
				return nil
			case 'k':
				// Move selection up (vim-style).
				row, _ := a.table.GetSelection()
				if row > 1 { // row 0 is the header
					a.table.Select(row-1, 0)
				}
				return nil
			}
		case tcell.KeyEnter:
			a.showDescribe()
			return nil
		case tcell.KeyEscape:
			if a.filter != "" {
				a.mu.Lock()
				a.filter = ""
				a.mu.Unlock()
				a.updateHeader()
				a.updateTable()
			}
			return nil
		}

		return event
	})
}

// ---------------------------------------------------------------------------
// View switching
// ---------------------------------------------------------------------------

func (a *App) switchView(view string) {
	a.mu.Lock()
	a.currentView = view
	a.mu.Unlock()

	a.hideDescribe()
	a.updateHeader()
	a.updateTable()
	a.refreshAsync()
}

// ---------------------------------------------------------------------------
// Data refresh
// ---------------------------------------------------------------------------

func (a *App) refreshAsync() {
	go func() {
		a.refresh(context.Background())
		a.app.QueueUpdateDraw(func() {
			a.updateHeader()
			a.updateTable()
		})
	}()
}

func (a *App) refresh(ctx context.Context) {
	a.mu.Lock()
	view := a.currentView
	a.mu.Unlock()

	status, statusErr := a.client.Status(ctx)

	var (
		items []string
		err   error
	)
	switch view {
	case viewKeys:
		items, err = a.client.Keys(ctx, "")
	case viewProjects:
		items, err = a.client.ListProjects(ctx)
	case viewBlobs:
		items, err = a.client.ListBlobs(ctx)
	}
	if err == nil {
		err = statusErr
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastErr = err
	if status != nil {
		a.status = status
	}
	switch view {
	case viewKeys:
		a.keys = items
	case viewProjects:
		a.projects = items
	case viewBlobs:
		a.blobs = items
	}
}

// ---------------------------------------------------------------------------
// Table rendering
// ---------------------------------------------------------------------------

func (a *App) updateTable() {
	a.table.Clear()

	a.mu.Lock()
	view := a.currentView
	filter := strings.ToLower(a.filter)
	err := a.lastErr
	var rows []string
	switch view {
	case viewKeys:
		rows = a.keys
	case viewProjects:
		rows = a.projects
	case viewBlobs:
		rows = a.blobs
	}
	events := append([]v1.Event(nil), a.events...)
	a.mu.Unlock()

	if err != nil && view != viewEvents {
		a.setTableHeaders([]string{"ERROR"})
		a.table.SetCell(1, 0,
			tview.NewTableCell(fmt.Sprintf("Error: %v", err)).
				SetTextColor(tcell.ColorRed))
		return
	}

	switch view {
	case viewEvents:
		a.renderEvents(events, filter)
	default:
		a.renderNames(strings.ToUpper(strings.TrimSuffix(view, "s")), rows, filter)
	}

	// Ensure a row is selected.
	if a.table.GetRowCount() > 1 {
		a.table.Select(1, 0)
	}
}

func (a *App) setTableHeaders(headers []string) {
	for col, h := range headers {
		cell := tview.NewTableCell(h).
			SetTextColor(tcell.ColorWhite).
			SetBackgroundColor(tcell.ColorDarkCyan).
			SetAttributes(tcell.AttrBold).
			SetSelectable(false).
			SetExpansion(1)
		a.table.SetCell(0, col, cell)
	}
}

// matchesFilter returns true if any of the values contain the filter string.
func matchesFilter(filter string, values ...string) bool {
	if filter == "" {
		return true
	}
	for _, v := range values {
		if strings.Contains(strings.ToLower(v), filter) {
			return true
		}
	}
	return false
}

func (a *App) renderNames(header string, names []string, filter string) {
	a.setTableHeaders([]string{header})
	row := 1
	for _, name := range names {
		if !matchesFilter(filter, name) {
			continue
		}
		a.table.SetCell(row, 0, tview.NewTableCell(name).SetExpansion(1))
		row++
	}
}

func (a *App) renderEvents(events []v1.Event, filter string) {
	a.setTableHeaders([]string{"TIME", "TYPE", "KEY", "MESSAGE"})
	row := 1
	// Newest first.
	for i := len(events) - 1; i >= 0; i-- {
		evt := events[i]
		if !matchesFilter(filter, string(evt.Type), evt.Key, evt.Message) {
			continue
		}
		a.table.SetCell(row, 0, tview.NewTableCell(evt.Time.Format("15:04:05")))
		a.table.SetCell(row, 1, tview.NewTableCell(string(evt.Type)).SetTextColor(eventColor(evt.Type)))
		a.table.SetCell(row, 2, tview.NewTableCell(evt.Key))
		a.table.SetCell(row, 3, tview.NewTableCell(evt.Message).SetExpansion(1))
		row++
	}
}

// ---------------------------------------------------------------------------
// Detail panel
// ---------------------------------------------------------------------------

func (a *App) showDescribe() {
	row, _ := a.table.GetSelection()
	if row < 1 || row >= a.table.GetRowCount() {
		return
	}

	a.mu.Lock()
	view := a.currentView
	a.mu.Unlock()
	if view == viewEvents {
		return
	}

	name := a.table.GetCell(row, 0).Text
	ctx := context.Background()

	var detail string
	switch view {
	case viewKeys:
		value, ok, err := a.client.GetItem(ctx, name, true)
		switch {
		case err != nil:
			detail = fmt.Sprintf("[red]Error: %v[-]", err)
		case !ok:
			detail = "[gray]<deleted>[-]"
		default:
			detail = tview.Escape(value)
		}
	case viewProjects:
		p, err := a.client.GetProject(ctx, name)
		if err != nil {
			detail = fmt.Sprintf("[red]Error: %v[-]", err)
		} else {
			detail = formatProject(p)
		}
	case viewBlobs:
		data, mimeType, err := a.client.GetBlob(ctx, name)
		if err != nil {
			detail = fmt.Sprintf("[red]Error: %v[-]", err)
		} else {
			detail = fmt.Sprintf("[yellow]Key:[-]  %s\n[yellow]Type:[-] %s\n[yellow]Size:[-] %d bytes\n",
				tview.Escape(name), mimeType, len(data))
		}
	}

	a.detailView.Clear()
	a.detailView.SetTitle(" " + tview.Escape(name) + " ")
	a.detailView.SetText(detail)

	if !a.describeOpen {
		a.layout.AddItem(a.detailView, 0, 1, false)
		a.describeOpen = true
	}
}

func (a *App) hideDescribe() {
	if a.describeOpen {
		a.layout.RemoveItem(a.detailView)
		a.describeOpen = false
		a.app.SetFocus(a.table)
	}
}

func formatProject(p *v1.Project) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[yellow]ID:[-]      %s\n", p.ID)
	fmt.Fprintf(&b, "[yellow]Size:[-]    %d bytes\n", len(p.Data))
	fmt.Fprintf(&b, "[yellow]Updated:[-] %s\n\n", formatAge(p.UpdatedAt))
	b.WriteString(tview.Escape(p.Data))
	return b.String()
}

// ---------------------------------------------------------------------------
// Filter
// ---------------------------------------------------------------------------

func (a *App) showFilter() {
	if a.filterOpen {
		return
	}
	a.filterOpen = true
	a.filterInput.SetText(a.filter)

	// Replace footer with filter input in the main vertical flex.
	a.mainFlex.RemoveItem(a.footer)
	a.mainFlex.AddItem(a.filterInput, 1, 0, true)
	a.app.SetFocus(a.filterInput)
}

func (a *App) hideFilter() {
	if !a.filterOpen {
		return
	}
	a.filterOpen = false

	// Restore footer in place of filter input.
	a.mainFlex.RemoveItem(a.filterInput)
	a.mainFlex.AddItem(a.footer, 1, 0, false)
	a.app.SetFocus(a.table)
}

// ---------------------------------------------------------------------------
// Delete with confirmation
// ---------------------------------------------------------------------------

func (a *App) confirmDelete() {
	row, _ := a.table.GetSelection()
	if row < 1 || row >= a.table.GetRowCount() || a.currentView == viewEvents {
		return
	}

	name := a.table.GetCell(row, 0).Text
	kind := strings.TrimSuffix(a.currentView, "s")

	modal := tview.NewModal().
		SetText(fmt.Sprintf("Delete %s %q?", kind, name)).
		AddButtons([]string{"Delete", "Cancel"}).
		SetDoneFunc(func(buttonIndex int, buttonLabel string) {
			if buttonLabel == "Delete" {
				a.deleteEntry(name)
			}
			a.pages.RemovePage("confirm")
			a.app.SetFocus(a.table)
		})
	modal.SetBackgroundColor(tcell.ColorDarkRed)

	a.pages.AddPage("confirm", modal, true, true)
}

func (a *App) deleteEntry(name string) {
	a.mu.Lock()
	view := a.currentView
	a.mu.Unlock()

	ctx := context.Background()
	var err error
	switch view {
	case viewKeys:
		err = a.client.RemoveItem(ctx, name)
	case viewProjects:
		err = a.client.DeleteProject(ctx, name)
	case viewBlobs:
		err = a.client.DeleteBlob(ctx, name)
	}

	if err != nil {
		a.footer.SetText(fmt.Sprintf(" [red]Delete failed: %v[-]", err))
		go func() {
			time.Sleep(3 * time.Second)
			a.app.QueueUpdateDraw(a.updateFooter)
		}()
		return
	}

	a.hideDescribe()
	a.refreshAsync()
}

// ---------------------------------------------------------------------------
// Header & Footer
// ---------------------------------------------------------------------------

func (a *App) updateHeader() {
	views := []struct {
		key  string
		view string
		name string
	}{
		{"1", viewKeys, "Keys"},
		{"2", viewProjects, "Projects"},
		{"3", viewBlobs, "Blobs"},
		{"4", viewEvents, "Events"},
	}

	a.mu.Lock()
	current := a.currentView
	filter := a.filter
	status := a.status
	a.mu.Unlock()

	var parts []string
	for _, v := range views {
		if v.view == current {
			parts = append(parts, fmt.Sprintf("[::b]<%s>[%s][::-]", v.key, v.name))
		} else {
			parts = append(parts, fmt.Sprintf("<%s>%s", v.key, v.name))
		}
	}

	filterInfo := ""
	if filter != "" {
		filterInfo = fmt.Sprintf(" | [yellow]filter: %s[-]", tview.Escape(filter))
	}

	a.header.SetText(fmt.Sprintf(" [::b]Inkwell[::-] | %s | %s%s",
		statusLine(status), strings.Join(parts, "  "), filterInfo))
}

// statusLine summarizes the service state for the header.
func statusLine(st *v1.Status) string {
	if st == nil {
		return "[gray]connecting[-]"
	}
	mode := "[green]durable[-]"
	if st.FallbackMode {
		mode = "[yellow]fallback[-]"
	}
	cache := "[yellow]hydrating[-]"
	if st.Hydrated {
		cache = fmt.Sprintf("%d keys", st.CachedKeys)
	}
	line := mode + " " + cache
	if st.QueueDepth > 0 {
		line += fmt.Sprintf(" [yellow]%d queued[-]", st.QueueDepth)
	}
	return line
}

func (a *App) updateFooter() {
	a.footer.SetText(" [yellow]<enter>[white]View  [yellow]<d>[white]Delete  [yellow]</>[white]Filter  [yellow]<q>[white]Quit  [yellow]<r>[white]Refresh  [yellow]<esc>[white]Back")
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// formatAge returns a human-readable duration string since the given time.
func formatAge(t time.Time) string {
	if t.IsZero() {
		return "-"
	}

	d := time.Since(t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}

// eventColor returns the tcell color for an event type.
func eventColor(t v1.EventType) tcell.Color {
	switch t {
	case v1.EventReady, v1.EventMigrated:
		return tcell.ColorGreen
	case v1.EventFallback, v1.EventQuotaExceeded:
		return tcell.ColorYellow
	case v1.EventWriteFailed:
		return tcell.ColorRed
	default:
		return tcell.ColorWhite
	}
}
