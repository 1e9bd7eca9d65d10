package login

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/guiyumin/biliget/internal/core/config"
	"github.com/guiyumin/biliget/internal/core/site/bilibili"
)

const biliBlue = lipgloss.Color("#00A1D6")

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(biliBlue).MarginBottom(1)
	textStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	keyStyle     = lipgloss.NewStyle().Bold(true).Foreground(biliBlue)
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).MarginTop(1)
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	frameStyle   = lipgloss.NewStyle().Margin(1, 2, 0)
)

// frame lays out a titled screen with a help line at the bottom
func frame(title, body, help string) string {
	return frameStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("━━━ "+title+" ━━━"),
		body,
		helpStyle.Render(help),
	)) + "\n"
}

const qrPollInterval = time.Second

// Cmd returns "login" with its qr, cookie and status subcommands.
// Bare "login" asks which method to use.
func Cmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to Bilibili",
		Long:  "Log in to Bilibili so member-only and high quality streams can be resolved.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoginSelector(cmd.Context())
		},
	}

	cmd.AddCommand(qrCmd())
	cmd.AddCommand(cookieCmd())
	cmd.AddCommand(statusCmd())

	return cmd
}

// LogoutCmd returns the command that clears the saved cookie
func LogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Clear saved Bilibili credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadForUpdate()
			if err != nil {
				return err
			}
			cfg.Bilibili.Cookie = ""
			if err := config.Save(cfg); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}
			fmt.Println(successStyle.Render("✓ Bilibili credentials cleared"))
			return nil
		},
	}
}

func qrCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "qr",
		Short: "Log in by scanning a QR code",
		Long:  "Log in to Bilibili by scanning a QR code with the Bilibili mobile app.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQRLogin(cmd.Context())
		},
	}
}

func cookieCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cookie",
		Short: "Log in by pasting browser cookies",
		Long: `Log in to Bilibili by pasting cookie values from a browser.

To get them:
  1. Open bilibili.com in a browser and log in
  2. Press F12 to open DevTools
  3. Go to the Application tab
  4. Expand Cookies and select bilibili.com
  5. Copy the SESSDATA, bili_jct and DedeUserID values`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCookieLogin()
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check whether the saved session is still valid",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := bilibili.NewClientFromConfig(config.LoadOrDefault().Effective())
			if !client.HasSession() {
				fmt.Println(errorStyle.Render("✗ Bilibili: not logged in"))
				return nil
			}

			nav, err := bilibili.NewAuth(client).ValidateCredentials(cmd.Context())
			if err != nil {
				fmt.Println(errorStyle.Render("✗ Bilibili: " + err.Error()))
				return nil
			}

			line := fmt.Sprintf("✓ Bilibili: logged in as %s (uid %d)", nav.UName, nav.Mid)
			if nav.VIPLevel > 0 {
				line += ", VIP"
			}
			fmt.Println(successStyle.Render(line))
			return nil
		},
	}
}

// Login method selector

type loginMethod int

const (
	methodQR loginMethod = iota
	methodCookie
)

type selectorModel struct {
	choices   []string
	cursor    int
	selected  loginMethod
	cancelled bool
}

func newSelectorModel() selectorModel {
	return selectorModel{
		choices: []string{
			"Scan QR code",
			"Paste cookie",
		},
	}
}

func (m selectorModel) Init() tea.Cmd {
	return nil
}

func (m selectorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "ctrl+c", "esc", "q":
			m.cancelled = true
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.choices)-1 {
				m.cursor++
			}
		case "enter", " ":
			m.selected = loginMethod(m.cursor)
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m selectorModel) View() string {
	lines := []string{textStyle.Render("Choose a login method:"), ""}
	for i, choice := range m.choices {
		if m.cursor == i {
			lines = append(lines, keyStyle.Render("▸ "+choice))
			continue
		}
		lines = append(lines, textStyle.Render("  "+choice))
	}
	return frame("Bilibili login", strings.Join(lines, "\n"), "↑/↓ select • Enter confirm • q cancel")
}

func runLoginSelector(ctx context.Context) error {
	finalModel, err := tea.NewProgram(newSelectorModel()).Run()
	if err != nil {
		return err
	}

	result := finalModel.(selectorModel)
	if result.cancelled {
		fmt.Println("  Cancelled")
		return nil
	}

	if result.selected == methodCookie {
		return runCookieLogin()
	}
	return runQRLogin(ctx)
}

// Cookie login

type cookieLoginModel struct {
	inputs    []textinput.Model
	focused   int
	saved     bool
	cancelled bool
	error     string
}

func newCookieInput(prompt, placeholder string, limit int) textinput.Model {
	in := textinput.New()
	in.Placeholder = placeholder
	in.CharLimit = limit
	in.Width = 50
	in.Prompt = prompt
	in.PromptStyle = keyStyle
	return in
}

func newCookieLoginModel() cookieLoginModel {
	inputs := []textinput.Model{
		newCookieInput("  SESSDATA    > ", "paste SESSDATA...", 500),
		newCookieInput("  bili_jct    > ", "paste bili_jct...", 100),
		newCookieInput("  DedeUserID  > ", "paste DedeUserID...", 50),
	}
	inputs[0].Focus()

	if cookie := config.LoadOrDefault().Bilibili.Cookie; cookie != "" {
		creds := bilibili.ParseCookieString(cookie)
		inputs[0].SetValue(creds.SESSDATA)
		inputs[1].SetValue(creds.BiliJCT)
		inputs[2].SetValue(creds.DedeUserID)
	}

	return cookieLoginModel{inputs: inputs}
}

func (m cookieLoginModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m cookieLoginModel) focus(i int) (cookieLoginModel, tea.Cmd) {
	m.inputs[m.focused].Blur()
	m.focused = (i + len(m.inputs)) % len(m.inputs)
	m.inputs[m.focused].Focus()
	return m, textinput.Blink
}

func (m cookieLoginModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "ctrl+c", "esc":
			m.cancelled = true
			return m, tea.Quit

		case "tab", "down":
			return m.focus(m.focused + 1)

		case "shift+tab", "up":
			return m.focus(m.focused - 1)

		case "enter":
			if m.focused < len(m.inputs)-1 {
				return m.focus(m.focused + 1)
			}

			creds := &bilibili.Credentials{
				SESSDATA:   strings.TrimSpace(m.inputs[0].Value()),
				BiliJCT:    strings.TrimSpace(m.inputs[1].Value()),
				DedeUserID: strings.TrimSpace(m.inputs[2].Value()),
			}
			if creds.SESSDATA == "" {
				m.error = "SESSDATA is required"
				return m.focus(0)
			}

			if err := bilibili.SaveCredentials(creds); err != nil {
				m.error = fmt.Sprintf("failed to save: %v", err)
				return m, nil
			}

			m.saved = true
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.inputs[m.focused], cmd = m.inputs[m.focused].Update(msg)
	m.error = ""
	return m, cmd
}

func (m cookieLoginModel) View() string {
	hint := textStyle.Render("Open ") + keyStyle.Render("bilibili.com") +
		textStyle.Render(", press ") + keyStyle.Render("F12") +
		textStyle.Render(" and copy the values under ") + keyStyle.Render("Application → Cookies")

	lines := []string{hint, ""}
	for _, input := range m.inputs {
		lines = append(lines, input.View())
	}
	if m.error != "" {
		lines = append(lines, "", errorStyle.Render("✗ "+m.error))
	}
	return frame("Bilibili login", strings.Join(lines, "\n"), "Tab/↓ next • Shift+Tab/↑ previous • Enter save • Esc cancel")
}

func runCookieLogin() error {
	finalModel, err := tea.NewProgram(newCookieLoginModel()).Run()
	if err != nil {
		return err
	}

	result := finalModel.(cookieLoginModel)
	switch {
	case result.cancelled:
		fmt.Println("  Cancelled")
	case result.saved:
		fmt.Println(successStyle.Render("  ✓ Bilibili cookie saved"))
	}
	return nil
}

// QR login

type qrLoginState int

const (
	qrStateGenerating qrLoginState = iota
	qrStateWaiting
	qrStateScanned
	qrStateSuccess
	qrStateExpired
	qrStateError
)

type qrLoginModel struct {
	ctx       context.Context
	auth      *bilibili.Auth
	session   *bilibili.QRSession
	state     qrLoginState
	spinner   spinner.Model
	username  string
	error     string
	cancelled bool
}

type qrPollMsg struct {
	status bilibili.QRStatus
	creds  *bilibili.Credentials
	err    error
}

type qrGeneratedMsg struct {
	session *bilibili.QRSession
	err     error
}

type qrSavedMsg struct {
	username string
	err      error
}

func newQRLoginModel(ctx context.Context) qrLoginModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(biliBlue)

	return qrLoginModel{
		ctx:     ctx,
		auth:    bilibili.NewAuth(bilibili.NewClient()),
		state:   qrStateGenerating,
		spinner: s,
	}
}

func (m qrLoginModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.generateQR)
}

func (m qrLoginModel) generateQR() tea.Msg {
	session, err := m.auth.GenerateQRCode(m.ctx)
	return qrGeneratedMsg{session: session, err: err}
}

func (m qrLoginModel) pollStatus() tea.Cmd {
	key := m.session.QRCodeKey
	return tea.Tick(qrPollInterval, func(time.Time) tea.Msg {
		status, creds, err := m.auth.PollQRStatus(m.ctx, key)
		return qrPollMsg{status: status, creds: creds, err: err}
	})
}

// saveAndGreet stores the cookie and looks up the account name with it
func (m qrLoginModel) saveAndGreet(creds *bilibili.Credentials) tea.Cmd {
	return func() tea.Msg {
		if err := bilibili.SaveCredentials(creds); err != nil {
			return qrSavedMsg{err: err}
		}
		client := bilibili.NewClient(bilibili.WithCookie(creds.ToCookieString()))
		nav, err := bilibili.NewAuth(client).ValidateCredentials(m.ctx)
		if err != nil {
			return qrSavedMsg{username: creds.DedeUserID}
		}
		return qrSavedMsg{username: nav.UName}
	}
}

func (m qrLoginModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc", "q":
			m.cancelled = true
			return m, tea.Quit
		case "r":
			if m.state == qrStateExpired || m.state == qrStateError {
				m.state = qrStateGenerating
				m.error = ""
				return m, m.generateQR
			}
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case qrGeneratedMsg:
		if msg.err != nil {
			m.state = qrStateError
			m.error = msg.err.Error()
			return m, nil
		}
		m.session = msg.session
		m.state = qrStateWaiting
		if err := printQRCode(os.Stdout, m.session.URL); err != nil {
			m.state = qrStateError
			m.error = err.Error()
			return m, nil
		}
		return m, m.pollStatus()

	case qrPollMsg:
		if msg.err != nil {
			m.state = qrStateError
			m.error = msg.err.Error()
			return m, nil
		}

		switch msg.status {
		case bilibili.QRWaiting:
			m.state = qrStateWaiting
			return m, m.pollStatus()
		case bilibili.QRScanned:
			m.state = qrStateScanned
			return m, m.pollStatus()
		case bilibili.QRExpired:
			m.state = qrStateExpired
			return m, nil
		case bilibili.QRConfirmed:
			return m, m.saveAndGreet(msg.creds)
		default:
			m.state = qrStateError
			m.error = "unexpected status " + msg.status.String()
			return m, nil
		}

	case qrSavedMsg:
		if msg.err != nil {
			m.state = qrStateError
			m.error = msg.err.Error()
			return m, nil
		}
		m.state = qrStateSuccess
		m.username = msg.username
		return m, tea.Quit
	}

	return m, nil
}

func (m qrLoginModel) View() string {
	var body, help string
	switch m.state {
	case qrStateGenerating:
		body = m.spinner.View() + " Generating QR code..."
	case qrStateWaiting:
		body = textStyle.Render("Scan the QR code above with the Bilibili app") + "\n\n" +
			m.spinner.View() + " Waiting for scan..."
	case qrStateScanned:
		body = successStyle.Render("✓ Scanned") + "\n\n" +
			m.spinner.View() + " Confirm the login on your phone..."
	case qrStateSuccess:
		body = successStyle.Render("✓ Logged in")
		if m.username != "" {
			body += "\n" + textStyle.Render("Welcome, "+m.username)
		}
	case qrStateExpired:
		body, help = errorStyle.Render("✗ QR code expired"), "Press r to generate a new one, q to quit"
	case qrStateError:
		body, help = errorStyle.Render("✗ Error: "+m.error), "Press r to retry, q to quit"
	}
	if help == "" && m.state != qrStateSuccess {
		help = "Press q or Esc to cancel"
	}
	return frame("Bilibili QR login", body, help)
}

func runQRLogin(ctx context.Context) error {
	finalModel, err := tea.NewProgram(newQRLoginModel(ctx)).Run()
	if err != nil {
		return err
	}

	if finalModel.(qrLoginModel).cancelled {
		fmt.Println("  Cancelled")
	}
	return nil
}
