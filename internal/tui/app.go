// Package tui is the terminal UI. It renders what the daemon holds and
// forwards user actions to it; all chat state lives in the daemon.
package tui

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/matheus3301/rishta/internal/rpc"
	"github.com/matheus3301/rishta/internal/tui/client"
	"github.com/matheus3301/rishta/internal/tui/keys"
	"github.com/matheus3301/rishta/internal/tui/model"
	"github.com/matheus3301/rishta/internal/tui/ui"
	"github.com/matheus3301/rishta/internal/tui/views"
)

// Page names.
const (
	pageAuth          = "auth"
	pageConversations = "conversations"
	pageThread        = "thread"
	pageDetails       = "details"
	pageSearch        = "search"
	pageHelp          = "help"
	pageMatches       = "matches"
	pageRequests      = "requests"
	pageProfile       = "profile"
)

const callTimeout = 15 * time.Second

// App is the main TUI application shell.
type App struct {
	app      *tview.Application
	theme    *ui.Theme
	vm       *model.ViewModel
	registry *keys.Registry
	session  string

	root        *tview.Flex
	pages       *ui.Pages
	crumbs      *ui.Crumbs
	menu        *ui.Menu
	info        *ui.SessionInfo
	prompt      *ui.Prompt
	flash       *ui.FlashBar
	promptShown bool

	components    map[string]ui.Component
	conversations *views.ConversationList
	thread        *views.MessageThread
	details       *views.ConversationInfo
	search        *views.SearchView
	auth          *views.AuthView
	help          *views.HelpView
	matches       *views.MatchesView
	requests      *views.RequestsView
	profile       *views.ProfileView

	pendingMu sync.Mutex
	pending   model.Refresh
	kick      chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
}

// NewApp creates the TUI application.
func NewApp(c *client.Client, sessionName string) *App {
	ctx, cancel := context.WithCancel(context.Background())
	theme := ui.DefaultTheme()
	vm := model.NewViewModel(c)

	a := &App{
		app:           tview.NewApplication(),
		theme:         theme,
		vm:            vm,
		registry:      keys.NewRegistry(),
		session:       sessionName,
		pages:         ui.NewPages(),
		crumbs:        ui.NewCrumbs(theme),
		menu:          ui.NewMenu(theme),
		info:          ui.NewSessionInfo(theme),
		prompt:        ui.NewPrompt(theme),
		flash:         ui.NewFlashBar(theme),
		conversations: views.NewConversationList(theme),
		thread:        views.NewMessageThread(theme),
		details:       views.NewConversationInfo(theme),
		search:        views.NewSearchView(theme, vm.DisplayName),
		auth:          views.NewAuthView(theme),
		help:          views.NewHelpView(theme),
		matches:       views.NewMatchesView(theme),
		requests:      views.NewRequestsView(theme),
		profile:       views.NewProfileView(theme),
		kick:          make(chan struct{}, 1),
		ctx:           ctx,
		cancel:        cancel,
	}
	a.components = map[string]ui.Component{
		pageAuth:          a.auth,
		pageConversations: a.conversations,
		pageThread:        a.thread,
		pageDetails:       a.details,
		pageSearch:        a.search,
		pageHelp:          a.help,
		pageMatches:       a.matches,
		pageRequests:      a.requests,
		pageProfile:       a.profile,
	}

	a.setupLayout()
	a.setupBindings()
	a.setupCallbacks()
	return a
}

func (a *App) setupLayout() {
	a.pages.AddPage(pageAuth, a.auth, true, false)
	a.pages.AddPage(pageConversations, a.conversations, true, false)
	a.pages.AddPage(pageThread, a.thread, true, false)
	a.pages.AddPage(pageDetails, a.details, true, false)
	a.pages.AddPage(pageSearch, a.search, true, false)
	a.pages.AddPage(pageHelp, a.help, true, false)
	a.pages.AddPage(pageMatches, a.matches, true, false)
	a.pages.AddPage(pageRequests, a.requests, true, false)
	a.pages.AddPage(pageProfile, a.profile, true, false)
	a.pages.SetOnChange(func(stack []string) {
		titles := make([]string, len(stack))
		for i, name := range stack {
			titles[i] = a.components[name].Name()
		}
		a.crumbs.Update(titles)
		current := a.pages.Current()
		a.menu.Update(append(a.components[current].Hints(), a.registry.Hints(current)...))
	})

	header := tview.NewFlex().
		AddItem(a.info, 0, 2, false).
		AddItem(a.menu, 0, 3, false).
		AddItem(ui.NewLogo(a.theme), 20, 0, false)

	a.root = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(header, 7, 0, false).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.crumbs, 1, 0, false).
		AddItem(a.flash, 1, 0, false)
	a.app.SetRoot(a.root, true)

	a.app.SetInputCapture(a.capture)
}

func (a *App) setupBindings() {
	a.registry.AddGlobal(&keys.Action{Key: tcell.KeyRune, Rune: 'q', Description: "Quit", Visible: true, Handler: a.Stop})
	a.registry.AddGlobal(&keys.Action{Key: tcell.KeyRune, Rune: '?', Description: "Help", Visible: true, Handler: func() { a.show(pageHelp) }})
	a.registry.AddGlobal(&keys.Action{Key: tcell.KeyRune, Rune: 'm', Description: "Matches", Visible: true, Handler: a.showMatches})
	a.registry.AddGlobal(&keys.Action{Key: tcell.KeyRune, Rune: 'r', Description: "Requests", Visible: true, Handler: a.showRequests})
	a.registry.AddGlobal(&keys.Action{Key: tcell.KeyRune, Rune: ':', Description: "Command", Visible: true, Handler: func() { a.showPrompt(ui.PromptCommand) }})

	a.registry.AddView(pageConversations, &keys.Action{Key: tcell.KeyRune, Rune: '/', Description: "Filter", Handler: func() { a.showPrompt(ui.PromptFilter) }})
	a.registry.AddView(pageConversations, &keys.Action{Key: tcell.KeyRune, Rune: '0', Handler: a.conversations.ClearFilter})
	a.registry.AddView(pageConversations, &keys.Action{Key: tcell.KeyRune, Rune: 'D', Description: "Delete chat", Visible: true, Handler: func() {
		conv, ok := a.conversations.Selected()
		if !ok {
			return
		}
		a.async("delete chat", func(ctx context.Context) error { return a.vm.DeleteConversation(ctx, conv.PeerID) }, func() {
			a.vm.Flash.Info("deleted chat with " + conv.Name)
		})
	}})
	for n := '1'; n <= '9'; n++ {
		a.registry.AddView(pageConversations, &keys.Action{Key: tcell.KeyRune, Rune: n, Handler: func() {
			if peer := a.conversations.PeerByIndex(int(n - '0')); peer != "" {
				a.open(peer)
			}
		}})
	}

	a.registry.AddView(pageThread, &keys.Action{Key: tcell.KeyRune, Rune: 'i', Description: "Compose", Handler: func() { a.app.SetFocus(a.thread.Composer()) }})
	a.registry.AddView(pageThread, &keys.Action{Key: tcell.KeyCtrlR, Label: "Ctrl-R", Description: "Retry", Visible: true, Handler: a.retryFailed})
	a.registry.AddView(pageThread, &keys.Action{Key: tcell.KeyCtrlX, Label: "Ctrl-X", Description: "Discard", Visible: true, Handler: a.discardFailed})
	a.registry.AddView(pageThread, &keys.Action{Key: tcell.KeyRune, Rune: 'd', Description: "Details", Handler: a.showDetails})
	a.registry.AddView(pageThread, &keys.Action{Key: tcell.KeyRune, Rune: 'p', Description: "Profile", Handler: func() { a.showProfile(a.thread.Peer()) }})

	a.registry.AddView(pageMatches, &keys.Action{Key: tcell.KeyTab, Description: "Next tab", Handler: func() { a.matches.NextTab(); a.loadMatches() }})
	a.registry.AddView(pageMatches, &keys.Action{Key: tcell.KeyRune, Rune: 'n', Description: "Next page", Handler: func() {
		if a.matches.NextPage() {
			a.loadMatches()
		}
	}})
	a.registry.AddView(pageMatches, &keys.Action{Key: tcell.KeyRune, Rune: 'b', Description: "Prev page", Handler: func() {
		if a.matches.PrevPage() {
			a.loadMatches()
		}
	}})
	a.addProfileActions(pageMatches, func() string {
		p, _ := a.matches.Selected()
		return p.ID
	}, a.loadMatches)

	a.registry.AddView(pageRequests, &keys.Action{Key: tcell.KeyTab, Description: "Next box", Handler: func() { a.requests.NextBox(); a.loadRequests() }})
	for _, act := range []struct {
		r      rune
		action string
	}{{'a', "accept"}, {'x', "reject"}, {'u', "restore"}, {'D', "delete"}} {
		a.registry.AddView(pageRequests, &keys.Action{Key: tcell.KeyRune, Rune: act.r, Description: act.action, Handler: func() {
			req, ok := a.requests.Selected()
			if !ok {
				return
			}
			a.async(act.action, func(ctx context.Context) error {
				return a.vm.RequestAction(ctx, req.ID, act.action)
			}, func() {
				a.vm.Flash.Info("request " + act.action + "ed")
				a.loadRequests()
			})
		}})
	}

	a.addProfileActions(pageProfile, func() string {
		if p := a.profile.Profile(); p != nil {
			return p.ID
		}
		return ""
	}, func() {
		if p := a.profile.Profile(); p != nil {
			a.showProfile(p.ID)
		}
	})
	a.registry.AddView(pageProfile, &keys.Action{Key: tcell.KeyEnter, Label: "Enter", Description: "Chat", Handler: func() {
		if p := a.profile.Profile(); p != nil {
			a.open(p.ID)
		}
	}})
}

// addProfileActions binds like, shortlist and connect on a view listing
// profiles. target returns the profile the action applies to.
func (a *App) addProfileActions(page string, target func() string, reload func()) {
	toggle := func(label string, fn func(context.Context, string, bool) error, undo bool) func() {
		return func() {
			id := target()
			if id == "" {
				return
			}
			a.async(label, func(ctx context.Context) error { return fn(ctx, id, undo) }, func() {
				a.vm.Flash.Info(label + " done")
				reload()
			})
		}
	}
	a.registry.AddView(page, &keys.Action{Key: tcell.KeyRune, Rune: 'l', Description: "Like", Handler: toggle("like", a.vm.Like, false)})
	a.registry.AddView(page, &keys.Action{Key: tcell.KeyRune, Rune: 'L', Description: "Unlike", Handler: toggle("unlike", a.vm.Like, true)})
	a.registry.AddView(page, &keys.Action{Key: tcell.KeyRune, Rune: 's', Description: "Shortlist", Handler: toggle("shortlist", a.vm.Shortlist, false)})
	a.registry.AddView(page, &keys.Action{Key: tcell.KeyRune, Rune: 'S', Description: "Unshortlist", Handler: toggle("unshortlist", a.vm.Shortlist, true)})
	a.registry.AddView(page, &keys.Action{Key: tcell.KeyRune, Rune: 'c', Description: "Connect", Handler: func() {
		id := target()
		if id == "" {
			return
		}
		a.async("connect", func(ctx context.Context) error { return a.vm.Connect(ctx, id) }, func() {
			a.vm.Flash.Info("connection request sent")
			reload()
		})
	}})
}

func (a *App) setupCallbacks() {
	a.conversations.SetSelectedFunc(func(row, _ int) {
		if peer := a.conversations.PeerByIndex(row); peer != "" {
			a.open(peer)
		}
	})

	a.thread.SetOnSend(func(text string) {
		a.async("send", func(ctx context.Context) error { return a.vm.Send(ctx, text) }, nil)
	})
	a.thread.SetOnType(func() {
		go func() {
			ctx, cancel := context.WithTimeout(a.ctx, callTimeout)
			defer cancel()
			_ = a.vm.Typing(ctx)
		}()
	})

	a.search.SetOnQuery(func(query string) {
		var results []rpc.SearchResult
		a.async("search", func(ctx context.Context) (err error) {
			results, err = a.vm.Search(ctx, query)
			return err
		}, func() {
			a.search.Update(results)
			a.app.SetFocus(a.search.Results())
		})
	})
	a.search.Results().SetSelectedFunc(func(_, _ int) {
		if r, ok := a.search.SelectedResult(); ok {
			a.open(r.PeerID)
		}
	})

	a.auth.SetOnLogin(func(token string) {
		a.auth.ShowMessage("Logging in…")
		var login *rpc.LoginResponse
		a.async("login", func(ctx context.Context) (err error) {
			login, err = a.vm.Login(ctx, token)
			return err
		}, func() {
			a.auth.Stop()
			a.vm.Flash.Info("logged in as " + login.Viewer)
			a.reset(pageConversations)
			a.refresh(model.RefreshStatus | model.RefreshConversations)
		})
	})

	a.matches.SetSelectedFunc(func(_, _ int) {
		if p, ok := a.matches.Selected(); ok {
			a.showProfile(p.ID)
		}
	})
	a.requests.SetSelectedFunc(func(_, _ int) {
		req, ok := a.requests.Selected()
		if !ok {
			return
		}
		other := req.From.ID
		if st := a.vm.Status(); st != nil && other == st.Viewer {
			other = req.To.ID
		}
		a.showProfile(other)
	})

	a.prompt.SetOnSubmit(func(mode ui.PromptMode, text string) {
		a.hidePrompt()
		switch mode {
		case ui.PromptFilter:
			a.conversations.SetFilter(text)
		case ui.PromptCommand:
			a.runCommand(ParseCommand(text).Canonical())
		}
	})
	a.prompt.SetOnCancel(a.hidePrompt)
}

func (a *App) capture(event *tcell.EventKey) *tcell.EventKey {
	if event.Key() == tcell.KeyCtrlC {
		a.Stop()
		return nil
	}
	current := a.pages.Current()

	if a.editing() {
		if event.Key() == tcell.KeyEscape {
			switch {
			case a.promptShown:
				return event
			case current == pageThread:
				a.app.SetFocus(a.thread.Messages())
				return nil
			case current == pageSearch:
				a.back()
				return nil
			}
		}
		return event
	}

	if event.Key() == tcell.KeyEscape {
		if current == pageConversations {
			a.conversations.ClearFilter()
		}
		a.back()
		return nil
	}
	if current == pageAuth {
		return event
	}
	if a.registry.HandleEvent(current, event) {
		return nil
	}
	return event
}

// editing reports whether keys currently go to a text input.
func (a *App) editing() bool {
	switch a.app.GetFocus().(type) {
	case *tview.InputField, *ui.Prompt:
		return true
	}
	return false
}

// show pushes a page and focuses it. Pages under it keep their state until
// they are popped.
func (a *App) show(name string) {
	a.pages.Push(name)
	a.components[name].Start()
	a.focusCurrent()
}

func (a *App) reset(name string) {
	for _, n := range a.pages.Stack() {
		a.components[n].Stop()
	}
	a.pages.Reset(name)
	a.components[name].Start()
	a.focusCurrent()
}

func (a *App) back() {
	popped := a.pages.Pop()
	if popped == "" {
		return
	}
	a.components[popped].Stop()
	if popped == pageThread {
		a.async("close", a.vm.Close, nil)
	}
	a.components[a.pages.Current()].Start()
	a.focusCurrent()
}

func (a *App) focusCurrent() {
	switch a.pages.Current() {
	case pageAuth:
		a.app.SetFocus(a.auth.Input())
	case pageThread:
		a.app.SetFocus(a.thread.Messages())
	case pageSearch:
		a.app.SetFocus(a.search.Input())
	case pageConversations:
		a.app.SetFocus(a.conversations)
	default:
		if p, ok := a.components[a.pages.Current()].(tview.Primitive); ok {
			a.app.SetFocus(p)
		}
	}
}

func (a *App) showPrompt(mode ui.PromptMode) {
	if a.promptShown {
		return
	}
	a.prompt.Activate(mode)
	a.root.AddItem(a.prompt, 3, 0, false)
	a.promptShown = true
	a.app.SetFocus(a.prompt)
}

func (a *App) hidePrompt() {
	if !a.promptShown {
		return
	}
	a.root.RemoveItem(a.prompt)
	a.promptShown = false
	a.focusCurrent()
}

// async runs fn off the UI goroutine and applies then, or flashes the
// error, on the UI goroutine.
func (a *App) async(label string, fn func(ctx context.Context) error, then func()) {
	go func() {
		ctx, cancel := context.WithTimeout(a.ctx, callTimeout)
		defer cancel()
		err := fn(ctx)
		a.app.QueueUpdateDraw(func() {
			if err != nil {
				a.vm.Flash.Err(fmt.Errorf("%s: %s", label, ui.ErrorText(err)))
				if label == "login" {
					a.auth.ShowMessage(ui.ErrorText(err))
				}
			} else if then != nil {
				then()
			}
			a.render()
		})
	}()
}

func (a *App) open(peer string) {
	name := a.vm.DisplayName(peer)
	var resp *rpc.OpenResponse
	a.async("open "+name, func(ctx context.Context) (err error) {
		resp, err = a.vm.Open(ctx, peer)
		return err
	}, func() {
		if resp != nil && resp.Cached {
			a.vm.Flash.Warn("offline: showing cached history")
		}
		a.thread.SetPeer(peer, name)
		if !a.pages.PopTo(pageThread) {
			a.pages.PopTo(pageConversations)
			a.show(pageThread)
		}
		a.focusCurrent()
	})
}

func (a *App) retryFailed() {
	m, ok := a.vm.LastFailed()
	if !ok {
		a.vm.Flash.Info("no failed message")
		return
	}
	a.async("retry", func(ctx context.Context) error { return a.vm.Retry(ctx, m.ClientID) }, nil)
}

func (a *App) discardFailed() {
	m, ok := a.vm.LastFailed()
	if !ok {
		a.vm.Flash.Info("no failed message")
		return
	}
	a.async("discard", func(ctx context.Context) error { return a.vm.Discard(ctx, m.ClientID) }, nil)
}

func (a *App) showDetails() {
	peer := a.thread.Peer()
	conv, _ := a.vm.Conversation(peer)
	if conv.PeerID == "" {
		conv.PeerID, conv.Name = peer, a.vm.DisplayName(peer)
	}
	var p *rpc.PresenceResponse
	a.async("presence", func(ctx context.Context) (err error) {
		p, err = a.vm.Presence(ctx, peer)
		return err
	}, func() {
		a.details.Update(conv, p)
		a.show(pageDetails)
	})
}

func (a *App) showProfile(id string) {
	var p = a.profile.Profile()
	a.async("profile", func(ctx context.Context) (err error) {
		p, err = a.vm.Profile(ctx, id)
		return err
	}, func() {
		a.profile.Update(p)
		a.show(pageProfile)
	})
}

func (a *App) showMatches() {
	a.show(pageMatches)
	a.loadMatches()
}

func (a *App) loadMatches() {
	tab, page := a.matches.Tab()
	a.async("matches", func(ctx context.Context) error {
		mp, err := a.vm.Matches(ctx, tab, page)
		if err != nil {
			return err
		}
		a.app.QueueUpdateDraw(func() { a.matches.Update(mp) })
		return nil
	}, nil)
}

func (a *App) showRequests() {
	a.show(pageRequests)
	a.loadRequests()
}

func (a *App) loadRequests() {
	box := a.requests.Box()
	a.async("requests", func(ctx context.Context) error {
		reqs, err := a.vm.Requests(ctx, box)
		if err != nil {
			return err
		}
		viewer := ""
		if st := a.vm.Status(); st != nil {
			viewer = st.Viewer
		}
		a.app.QueueUpdateDraw(func() { a.requests.Update(viewer, reqs) })
		return nil
	}, nil)
}

func (a *App) runCommand(cmd Command) {
	switch cmd.Name {
	case "quit":
		a.Stop()
	case "help":
		a.show(pageHelp)
	case "search":
		a.show(pageSearch)
		if cmd.Args != "" {
			a.search.Input().SetText(cmd.Args)
			var results []rpc.SearchResult
			a.async("search", func(ctx context.Context) (err error) {
				results, err = a.vm.Search(ctx, cmd.Args)
				return err
			}, func() { a.search.Update(results) })
		}
	case "chat":
		if peer := a.findPeer(cmd.Args); peer != "" {
			a.open(peer)
		} else {
			a.vm.Flash.Warn("no conversation matches " + cmd.Args)
		}
	case "attach":
		if cmd.Args == "" {
			a.vm.Flash.Warn("usage: attach <path>")
			return
		}
		var f *rpc.StagedFile
		a.async("attach", func(ctx context.Context) (err error) {
			f, err = a.vm.Attach(ctx, cmd.Args)
			return err
		}, func() { a.vm.Flash.Info("attached " + f.Name) })
	case "detach":
		a.async("detach", func(ctx context.Context) error {
			for _, f := range a.vm.Draft() {
				if err := a.vm.Detach(ctx, f.Handle); err != nil {
					return err
				}
			}
			return nil
		}, nil)
	case "delete":
		if cmd.Args == "" {
			a.vm.Flash.Warn("usage: delete <message id>")
			return
		}
		a.async("delete", func(ctx context.Context) error { return a.vm.DeleteMessage(ctx, cmd.Args) }, nil)
	case "profile":
		a.showProfile(cmd.Args)
	case "matches":
		a.showMatches()
	case "requests":
		a.showRequests()
	case "sync":
		a.async("sync", a.vm.Sync, func() { a.vm.Flash.Info("synced") })
	case "logout":
		a.async("logout", a.vm.Logout, func() {
			a.vm.Flash.Info("logged out")
			a.reset(pageAuth)
		})
	default:
		a.vm.Flash.Warn("unknown command: " + cmd.Name)
	}
}

// findPeer resolves a conversation by id, exact name or name prefix.
func (a *App) findPeer(query string) string {
	if query == "" {
		return ""
	}
	convs := a.vm.Conversations()
	for _, c := range convs {
		if c.PeerID == query || strings.EqualFold(c.Name, query) {
			return c.PeerID
		}
	}
	for _, c := range convs {
		if strings.HasPrefix(strings.ToLower(c.Name), strings.ToLower(query)) {
			return c.PeerID
		}
	}
	return ""
}

// render pushes the cached state into the views. It runs on the UI
// goroutine.
func (a *App) render() {
	st := a.vm.Status()
	if st != nil {
		a.info.Update(&ui.SessionData{
			Session:       a.session,
			Viewer:        st.Viewer,
			State:         st.State,
			Connected:     st.Connected,
			Conversations: st.ConversationCount,
			Messages:      st.MessageCount,
			Previews:      st.PreviewsLive,
			ExpiresAt:     st.ExpiresAt,
			Uptime:        time.Duration(st.UptimeMs) * time.Millisecond,
		})
		switch current := a.pages.Current(); {
		case !st.LoggedIn && current != pageAuth:
			if st.Reason != "" {
				a.auth.ShowMessage(st.Reason)
			}
			a.reset(pageAuth)
		case st.LoggedIn && current == pageAuth:
			a.reset(pageConversations)
		}
	}

	a.conversations.Update(a.vm.Conversations())
	if peer := a.thread.Peer(); peer != "" {
		if tl := a.vm.Timeline(); tl != nil && tl.Peer == peer {
			a.thread.Update(tl)
			a.thread.UpdateDraft(a.vm.Draft())
		}
		conv, _ := a.vm.Conversation(peer)
		a.thread.SetTyping(conv.Typing)
	}
	a.flash.Update(a.vm.Flash.Get())
}

// refresh schedules a reload of the parts selected by r.
func (a *App) refresh(r model.Refresh) {
	a.pendingMu.Lock()
	a.pending |= r
	a.pendingMu.Unlock()
	select {
	case a.kick <- struct{}{}:
	default:
	}
}

// refreshLoop coalesces refresh requests; bursts of daemon events cost one
// reload.
func (a *App) refreshLoop() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			a.refresh(model.RefreshStatus)
			continue
		case <-a.kick:
		}
		time.Sleep(100 * time.Millisecond)
		a.pendingMu.Lock()
		r := a.pending
		a.pending = 0
		a.pendingMu.Unlock()

		ctx, cancel := context.WithTimeout(a.ctx, callTimeout)
		err := a.vm.Reload(ctx, r)
		cancel()
		a.app.QueueUpdateDraw(func() {
			if err != nil {
				a.vm.Flash.Err(err)
			}
			a.render()
		})
	}
}

// watchLoop follows the daemon event stream, resubscribing after errors.
func (a *App) watchLoop() {
	for a.ctx.Err() == nil {
		err := a.vm.Watch(a.ctx, func(evt rpc.Event) {
			if r := model.Scope(evt.Kind); r != 0 {
				a.refresh(r)
			}
		})
		if a.ctx.Err() != nil {
			return
		}
		if err != nil {
			a.app.QueueUpdateDraw(func() { a.vm.Flash.Warn("event stream lost: " + ui.ErrorText(err)) })
		}
		select {
		case <-a.ctx.Done():
			return
		case <-time.After(2 * time.Second):
		}
		a.refresh(model.RefreshStatus | model.RefreshConversations | model.RefreshTimeline)
	}
}

func (a *App) flashLoop() {
	for {
		select {
		case <-a.ctx.Done():
			return
		case <-a.vm.Flash.Watch():
			a.app.QueueUpdateDraw(func() { a.flash.Update(a.vm.Flash.Get()) })
		}
	}
}

// Run starts the TUI application.
func (a *App) Run() error {
	a.reset(pageConversations)
	a.refresh(model.RefreshStatus | model.RefreshConversations)
	go a.refreshLoop()
	go a.watchLoop()
	go a.flashLoop()
	return a.app.Run()
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}
