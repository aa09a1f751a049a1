package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/v2/list"
	"github.com/charmbracelet/bubbles/v2/spinner"
	"github.com/charmbracelet/bubbles/v2/viewport"
	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/charmbracelet/lipgloss/v2"

	"lde/internal/analysis"
	"lde/internal/config"
	"lde/internal/elfx"
	"lde/internal/lde"
	"lde/internal/ldetool/styles"
	"lde/internal/ui/colorize"
)

type viewMode int

const (
	viewSummary viewMode = iota
	viewSymbols
	viewListing
)

type symbolItem struct {
	site *analysis.Site
}

func (i symbolItem) Title() string {
	return fmt.Sprintf("%x  %s", i.site.Origin, i.site.Name())
}

func (i symbolItem) Description() string { return "" }

func (i symbolItem) FilterValue() string { return i.site.Name() }

// Custom item delegate for the symbols list
type itemDelegate struct{}

func (d itemDelegate) Height() int                               { return 1 }
func (d itemDelegate) Spacing() int                              { return 0 }
func (d itemDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd { return nil }

func (d itemDelegate) Render(w io.Writer, m list.Model, index int, listItem list.Item) {
	i, ok := listItem.(symbolItem)
	if !ok {
		return
	}

	indicator, addrStyle := " ", styles.Addr
	if index == m.Index() {
		indicator, addrStyle = ">", styles.AddrSel
	}

	var verdict string
	switch status(i.site) {
	case "ok":
		verdict = styles.OKText.Render("ok    ")
	case "note":
		verdict = styles.WarnText.Render("note  ")
	default:
		verdict = styles.ErrText.Render("unsafe")
	}

	fmt.Fprintf(w, " %s  %s  %2d  %s  %s",
		indicator,
		addrStyle.Render(fmt.Sprintf("%x", i.site.Origin)),
		i.site.Size,
		verdict,
		styles.Name.Render(i.site.Name()))
}

type model struct {
	listing      viewport.Model
	symbolsList  list.Model
	summary      viewport.Model
	spinner      spinner.Model
	mode         viewMode
	filepath     string
	cfg          config.Config
	digest       string
	img          *elfx.Image // Keep the image open for analysing selected functions
	scan         analysis.SymbolScanResult
	sites        []*analysis.Site
	selected     *analysis.Site
	err          error
	loadingSites bool
	loadingHash  bool
	width        int
	height       int
}

// Message types
type digestMsg struct {
	digest string
	err    error
}

type sitesMsg struct {
	img   *elfx.Image
	scan  analysis.SymbolScanResult
	sites []*analysis.Site
	err   error
}

type siteMsg struct {
	site *analysis.Site
	err  error
}

// Commands
func digestCmd(path string) tea.Cmd {
	return func() tea.Msg {
		d, err := fileDigest(path)
		return digestMsg{digest: d, err: err}
	}
}

func loadSitesCmd(path string, cfg config.Config) tea.Cmd {
	return func() tea.Msg {
		img, err := elfx.Open(path)
		if err != nil {
			return sitesMsg{err: err}
		}
		// Don't close img here - the model keeps it open
		opts := siteOptions(cfg)
		opts.MaxInsns = scanInsns
		res := analysis.ScanFunctions(img)
		sites, err := scanSites(context.Background(), img, res.Funcs, opts, cfg.Workers)
		if err != nil {
			img.Close()
			return sitesMsg{err: err}
		}
		return sitesMsg{img: img, scan: res, sites: sites}
	}
}

func analyzeCmd(img *elfx.Image, fn elfx.Func, cfg config.Config) tea.Cmd {
	return func() tea.Msg {
		s, err := analysis.Analyze(img, fn, siteOptions(cfg))
		return siteMsg{site: s, err: err}
	}
}

func NewModel(path string, cfg config.Config) model {
	vp := viewport.New()
	vp.SetWidth(80)
	vp.SetHeight(24)

	symbolsList := list.New([]list.Item{}, itemDelegate{}, 80, 24)
	symbolsList.SetShowStatusBar(false)
	symbolsList.SetFilteringEnabled(true)
	symbolsList.Title = "Functions"
	symbolsList.Styles.Title = styles.Title
	symbolsList.SetShowHelp(true)

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(styles.Purple))

	svp := viewport.New()
	svp.SetWidth(80)
	svp.SetHeight(24)

	m := model{
		listing:      vp,
		symbolsList:  symbolsList,
		summary:      svp,
		spinner:      s,
		mode:         viewSummary,
		filepath:     path,
		cfg:          cfg,
		loadingSites: true,
		loadingHash:  true,
		width:        80,
		height:       24,
	}
	m.updateSummary()
	return m
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		digestCmd(m.filepath),
		loadSitesCmd(m.filepath, m.cfg),
		m.spinner.Tick,
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case digestMsg:
		m.digest = msg.digest
		if msg.err != nil {
			m.digest = fmt.Sprintf("error: %v", msg.err)
		}
		m.loadingHash = false
		m.updateSummary()
		return m, nil

	case sitesMsg:
		m.loadingSites = false
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.img, m.scan, m.sites = msg.img, msg.scan, msg.sites
			m.updateSymbolsList()
		}
		m.updateSummary()
		return m, nil

	case siteMsg:
		if msg.err != nil {
			m.err = msg.err
			m.updateSummary()
			m.mode = viewSummary
			return m, nil
		}
		m.selected = msg.site
		m.listing.SetContent(listingContent(msg.site))
		m.listing.GotoTop()
		m.mode = viewListing
		return m, nil

	case spinner.TickMsg:
		m.spinner, cmd = m.spinner.Update(msg)
		// Only continue spinner if we're still loading something
		if m.loadingHash || m.loadingSites {
			m.updateSummary()
			return m, cmd
		}
		return m, nil

	case tea.WindowSizeMsg:
		if msg.Width != m.width || msg.Height != m.height {
			m.width = msg.Width
			m.height = msg.Height
			m.listing.SetWidth(msg.Width)
			m.listing.SetHeight(msg.Height - 2)
			m.symbolsList.SetWidth(msg.Width)
			m.symbolsList.SetHeight(msg.Height - 2)
			m.summary.SetWidth(msg.Width)
			m.summary.SetHeight(msg.Height - 2)
			m.updateSummary()
		}

	case tea.KeyMsg:
		// While the list is filtering it gets every key but quit
		if m.mode == viewSymbols && m.symbolsList.FilterState() == list.Filtering {
			if msg.String() == "ctrl+c" {
				return m.quit()
			}
			break
		}
		switch msg.String() {
		case "q", "ctrl+c":
			return m.quit()
		case "i":
			m.mode = viewSummary
			return m, nil
		case "s":
			if len(m.sites) > 0 {
				m.mode = viewSymbols
			}
			return m, nil
		case "l":
			if m.selected != nil {
				m.mode = viewListing
			}
			return m, nil
		case "enter":
			if m.mode == viewSymbols && m.img != nil {
				if item, ok := m.symbolsList.SelectedItem().(symbolItem); ok {
					return m, analyzeCmd(m.img, item.site.Func, m.cfg)
				}
			}
			return m, nil
		case "tab":
			m.mode = m.cycle(1)
			return m, nil
		case "shift+tab":
			m.mode = m.cycle(-1)
			return m, nil
		}
	}

	// Update the active view
	switch m.mode {
	case viewSymbols:
		m.symbolsList, cmd = m.symbolsList.Update(msg)
	case viewListing:
		m.listing, cmd = m.listing.Update(msg)
	default:
		m.summary, cmd = m.summary.Update(msg)
	}
	return m, cmd
}

func (m model) quit() (tea.Model, tea.Cmd) {
	if m.img != nil {
		m.img.Close()
	}
	return m, tea.Quit
}

// cycle returns the view dir steps away, skipping views with no content.
func (m model) cycle(dir int) viewMode {
	mode := m.mode
	for range 3 {
		mode = (mode + viewMode(3+dir)) % 3
		switch {
		case mode == viewSymbols && len(m.sites) == 0:
		case mode == viewListing && m.selected == nil:
		default:
			return mode
		}
	}
	return m.mode
}

func (m model) View() string {
	var content, menu string
	switch m.mode {
	case viewSymbols:
		content = m.symbolsList.View()
		menu = " Enter: plan hook • /: filter • I: summary • Tab: cycle • Q: quit "
	case viewListing:
		content = m.listing.View()
		menu = " S: functions • I: summary • Tab: cycle • Q: quit "
	default:
		content = m.summary.View()
		if len(m.sites) > 0 {
			menu = " S: functions • Tab: cycle • Q: quit "
		} else {
			menu = " Q: quit "
		}
	}
	return content + "\n" + styles.Status.Width(m.width).Render(menu)
}

func (m *model) updateSymbolsList() {
	items := make([]list.Item, 0, len(m.sites))
	for _, s := range m.sites {
		items = append(items, symbolItem{site: s})
	}
	m.symbolsList.SetItems(items)
}

func (m *model) updateSummary() {
	var md string
	switch {
	case m.err != nil:
		md = fmt.Sprintf("# %s\n\n> %v\n", m.filepath, m.err)
	case m.img == nil:
		var lines []string
		lines = append(lines, fmt.Sprintf("# %s", m.filepath), "")
		if m.loadingHash {
			lines = append(lines, fmt.Sprintf("%s calculating digest", m.spinner.View()))
		} else {
			lines = append(lines, fmt.Sprintf("- sha256: `%s`", m.digest))
		}
		if m.loadingSites {
			lines = append(lines, fmt.Sprintf("%s planning hooks", m.spinner.View()))
		}
		md = strings.Join(lines, "\n") + "\n"
	default:
		md = imageMarkdown(m.img, m.digest, m.scan, m.sites, false)
	}
	m.summary.SetContent(styles.Render(md, max(m.width-2, 20), true))
}

// listingContent renders a hook site for the listing view.
func listingContent(s *analysis.Site) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "; %s\n; hook %d bytes for a %d-byte jump, %s\n", s.Name(), s.Size, s.MinLen, status(s))
	for _, f := range s.Findings {
		style := styles.Dim
		switch f.Severity {
		case analysis.Error:
			style = styles.ErrText
		case analysis.Warning:
			style = styles.WarnText
		}
		sb.WriteString(style.Render(fmt.Sprintf("; %s %s at %#x: %s", f.Severity, f.Kind, f.VA, f.Comment)))
		sb.WriteByte('\n')
	}
	sb.WriteByte('\n')

	var lines strings.Builder
	for _, a := range s.Listing {
		lines.WriteString(a.String())
		lines.WriteByte('\n')
	}
	sb.WriteString(colorize.Listing(lines.String()))
	if len(s.Trampoline) > 0 {
		fmt.Fprintf(&sb, "\n; trampoline %s\n", lde.Hex(s.Trampoline, true, true))
	}
	return sb.String()
}
