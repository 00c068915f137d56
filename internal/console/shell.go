package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/eventdesk/checkpoint/internal/checkin"
	"github.com/eventdesk/checkpoint/internal/client"
	"github.com/eventdesk/checkpoint/internal/models"
)

// Backend is the part of the API the shell uses. *client.Client
// implements it.
type Backend interface {
	RuleStore
	Login(ctx context.Context, email, password string) (models.LoginResponse, error)
	Logout() error
	Me(ctx context.Context) (models.User, error)
	GetEvent(ctx context.Context, id string) (models.Event, error)
	ListEvents(ctx context.Context, f client.EventFilter) ([]models.Event, error)
	ListParticipants(ctx context.Context, f client.ParticipantFilter) ([]models.Participant, error)
	CheckIn(ctx context.Context, participantID string) (models.Participant, error)
	Dashboard(ctx context.Context) (models.Dashboard, error)
	Watch(ctx context.Context, fn func(models.Activity)) error
}

var _ Backend = (*client.Client)(nil)

// Shell is the line-oriented console. At the top level it browses the
// API; "rules <event-id>" enters an edit session for one event until
// "done".
type Shell struct {
	api    Backend
	in     *bufio.Scanner
	out    io.Writer
	logger *slog.Logger

	// Now is the clock used for relative times. Nil means time.Now.
	Now func() time.Time

	rules     *Controller
	eventName string
}

// NewShell returns a shell reading commands from in and writing to out.
func NewShell(api Backend, in io.Reader, out io.Writer, logger *slog.Logger) *Shell {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Shell{api: api, in: bufio.NewScanner(in), out: out, logger: logger}
}

// Run reads and executes commands until "quit" or end of input.
func (s *Shell) Run(ctx context.Context) error {
	s.printf("Checkpoint console. Type \"help\" for commands.\n")
	for {
		if ctx.Err() != nil {
			return nil
		}
		s.printf("%s", s.prompt())
		line, ok := s.readLine()
		if !ok {
			s.printf("\n")
			return s.in.Err()
		}
		args, err := splitArgs(line)
		if err != nil {
			s.printErr(err)
			continue
		}
		if len(args) == 0 {
			continue
		}
		var quit bool
		if s.rules != nil {
			quit, err = s.ruleCommand(ctx, args)
		} else {
			quit, err = s.command(ctx, args)
		}
		if err != nil {
			s.printErr(err)
		}
		if quit {
			return nil
		}
	}
}

func (s *Shell) prompt() string {
	if s.rules == nil {
		return "checkpoint> "
	}
	mark := ""
	if s.rules.Snapshot().Dirty {
		mark = "*"
	}
	return fmt.Sprintf("rules(%s)%s> ", s.eventName, mark)
}

func (s *Shell) readLine() (string, bool) {
	if !s.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(s.in.Text()), true
}

func (s *Shell) confirm(question string) bool {
	s.printf("%s [y/N] ", question)
	answer, ok := s.readLine()
	if !ok {
		return false
	}
	answer = strings.ToLower(answer)
	return answer == "y" || answer == "yes"
}

func (s *Shell) printf(format string, a ...any) {
	fmt.Fprintf(s.out, format, a...)
}

func (s *Shell) printErr(err error) {
	var apiErr *client.APIError
	var fe checkin.FieldErrors
	switch {
	case errors.Is(err, client.ErrUnauthorized):
		s.printf("error: not logged in (use: login <email>)\n")
	case errors.As(err, &fe):
		s.printf("error: invalid rule\n")
		for _, field := range fe.Fields() {
			s.printf("  %s: %s\n", field, fe[field])
		}
	case errors.As(err, &apiErr):
		s.printf("error: %s\n", apiErr.Error())
	default:
		s.printf("error: %v\n", err)
	}
}

func (s *Shell) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Shell) relative(t time.Time) string {
	return humanize.RelTime(t, s.now(), "ago", "from now")
}

// ── Top level ────────────────────────────────────────────────────────

const topHelp = `Commands:
  login <email> [password]   log in (prompts for the password when omitted)
  logout                     forget the stored session
  whoami                     show the logged-in user
  events [search]            list events
  participants [event-id]    list participants, optionally of one event
  checkin <participant-id>   desk check-in now
  dashboard                  totals, upcoming events and recent activity
  watch                      stream live activity until Enter
  rules <event-id>           edit an event's check-in rules
  quit                       leave the console
`

func (s *Shell) command(ctx context.Context, args []string) (bool, error) {
	switch cmd, rest := args[0], args[1:]; cmd {
	case "help", "?":
		s.printf("%s", topHelp)
	case "quit", "exit":
		return true, nil
	case "login":
		return false, s.login(ctx, rest)
	case "logout":
		if err := s.api.Logout(); err != nil {
			return false, err
		}
		s.printf("logged out\n")
	case "whoami":
		u, err := s.api.Me(ctx)
		if err != nil {
			return false, err
		}
		s.printf("%s <%s> (%s)\n", u.Name, u.Email, u.Role)
	case "events":
		return false, s.listEvents(ctx, strings.Join(rest, " "))
	case "participants":
		f := client.ParticipantFilter{}
		if len(rest) > 0 {
			f.EventID = rest[0]
		}
		return false, s.listParticipants(ctx, f)
	case "checkin":
		if len(rest) != 1 {
			return false, errors.New("usage: checkin <participant-id>")
		}
		p, err := s.api.CheckIn(ctx, rest[0])
		if err != nil {
			return false, err
		}
		s.printf("%s checked in\n", p.Name)
	case "dashboard":
		return false, s.dashboard(ctx)
	case "watch":
		return false, s.watch(ctx)
	case "rules":
		if len(rest) != 1 {
			return false, errors.New("usage: rules <event-id>")
		}
		return false, s.openRules(ctx, rest[0])
	default:
		return false, fmt.Errorf("unknown command %q (type help)", cmd)
	}
	return false, nil
}

func (s *Shell) login(ctx context.Context, args []string) error {
	if len(args) == 0 || len(args) > 2 {
		return errors.New("usage: login <email> [password]")
	}
	password := ""
	if len(args) == 2 {
		password = args[1]
	} else {
		s.printf("password: ")
		line, ok := s.readLine()
		if !ok {
			return io.ErrUnexpectedEOF
		}
		password = line
	}
	resp, err := s.api.Login(ctx, args[0], password)
	if err != nil {
		return err
	}
	s.printf("logged in as %s (%s)\n", resp.User.Name, resp.User.Role)
	return nil
}

func (s *Shell) listEvents(ctx context.Context, search string) error {
	events, err := s.api.ListEvents(ctx, client.EventFilter{Search: search})
	if err != nil {
		return err
	}
	if len(events) == 0 {
		s.printf("no events\n")
		return nil
	}
	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTARTS\tSTATUS\tLOCATION")
	for _, e := range events {
		fmt.Fprintf(tw, "%s\t%s\t%s (%s)\t%s\t%s\n",
			e.ID, e.Name, e.StartsAt.Local().Format("2006-01-02 15:04"), s.relative(e.StartsAt), e.Status, e.Location)
	}
	return tw.Flush()
}

func (s *Shell) listParticipants(ctx context.Context, f client.ParticipantFilter) error {
	ps, err := s.api.ListParticipants(ctx, f)
	if err != nil {
		return err
	}
	if len(ps) == 0 {
		s.printf("no participants\n")
		return nil
	}
	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tEMAIL\tCHECK-IN")
	for _, p := range ps {
		status := string(p.CheckIn)
		if p.CheckedInAt != nil {
			status += " " + s.relative(*p.CheckedInAt)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.ID, p.Name, p.Email, status)
	}
	return tw.Flush()
}

func (s *Shell) dashboard(ctx context.Context) error {
	d, err := s.api.Dashboard(ctx)
	if err != nil {
		return err
	}
	s.printf("events: %d  participants: %d  checked in: %d\n", d.TotalEvents, d.TotalParticipants, d.CheckedIn)
	if len(d.UpcomingEvents) > 0 {
		s.printf("\nupcoming:\n")
		for _, u := range d.UpcomingEvents {
			s.printf("  %s  %s\n", u.Name, s.relative(u.StartsAt))
		}
	}
	if len(d.RecentActivities) > 0 {
		s.printf("\nrecent activity:\n")
		for _, a := range d.RecentActivities {
			s.printf("  %s\n", s.describe(a))
		}
	}
	return nil
}

func (s *Shell) describe(a models.Activity) string {
	var b strings.Builder
	b.WriteString(s.relative(a.At))
	b.WriteString("  ")
	b.WriteString(a.Kind)
	for _, part := range []string{a.Participant, a.Event, a.Detail} {
		if part != "" {
			b.WriteString("  ")
			b.WriteString(part)
		}
	}
	return b.String()
}

// watch streams the live feed until the user presses Enter.
func (s *Shell) watch(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string, 16)
	done := make(chan error, 1)
	go func() {
		done <- s.api.Watch(ctx, func(a models.Activity) { lines <- s.describe(a) })
		close(lines)
	}()
	s.printf("watching live activity, press Enter to stop\n")

	enter := make(chan struct{})
	go func() {
		s.readLine()
		close(enter)
	}()

	for {
		select {
		case l, ok := <-lines:
			if !ok {
				s.printf("live feed ended, press Enter\n")
				<-enter
				return <-done
			}
			s.printf("%s\n", l)
		case <-enter:
			cancel()
			for l := range lines {
				s.printf("%s\n", l)
			}
			return <-done
		}
	}
}

// ── Rule session ─────────────────────────────────────────────────────

const rulesHelp = `Rule session commands:
  list                                   show the draft and its problems
  add <name> [mandatory|optional] [opens] [closes]
                                         add an active rule (defaults: optional 120 120)
  edit <#|id> key=value...               keys: name, requirement, opens, closes, active
  rm <#|id>                              remove a rule (asks first)
  toggle <#|id>                          flip a rule's active flag
  reset                                  discard unsaved changes
  reload                                 fetch the stored rules again
  save                                   store the draft (only when consistent)
  done                                   leave the session
`

func (s *Shell) openRules(ctx context.Context, eventID string) error {
	e, err := s.api.GetEvent(ctx, eventID)
	if err != nil {
		return err
	}
	c, err := Open(ctx, s.api, e.ID, s.logger)
	if err != nil {
		return err
	}
	s.rules = c
	s.eventName = e.Name
	s.printRules()
	return nil
}

func (s *Shell) ruleCommand(ctx context.Context, args []string) (bool, error) {
	c := s.rules
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "help", "?":
		s.printf("%s", rulesHelp)
		return false, nil
	case "list", "ls":
		s.printRules()
		return false, nil
	case "quit", "exit":
		if s.discardOK() {
			return true, nil
		}
		return false, nil
	case "done":
		if s.discardOK() {
			s.rules = nil
			s.eventName = ""
		}
		return false, nil
	case "save":
		if err := c.Save(ctx); err != nil {
			return false, err
		}
		s.printf("saved\n")
		s.printRules()
		return false, nil
	case "reload":
		if err := c.Reload(ctx); err != nil {
			return false, err
		}
		s.printRules()
		return false, nil
	}

	// Everything below mutates the draft and reports its problems after.
	var err error
	switch cmd {
	case "add":
		err = s.addRule(rest)
	case "edit":
		err = s.editRule(rest)
	case "rm", "remove":
		err = s.removeRule(rest)
	case "toggle":
		var id string
		if id, err = s.oneRef(cmd, rest); err == nil {
			err = c.Toggle(id)
		}
	case "reset":
		err = c.Reset()
	default:
		return false, fmt.Errorf("unknown command %q (type help)", cmd)
	}
	if err != nil {
		return false, err
	}
	s.printStatus()
	return false, nil
}

func (s *Shell) discardOK() bool {
	if !s.rules.Snapshot().Dirty {
		return true
	}
	return s.confirm("discard unsaved changes?")
}

func (s *Shell) addRule(args []string) error {
	if len(args) == 0 || len(args) > 4 {
		return errors.New("usage: add <name> [mandatory|optional] [opens] [closes]")
	}
	r := checkin.NewRule(strings.TrimSpace(args[0]))
	if len(args) > 1 {
		r.Requirement = checkin.ParseRequirement(args[1])
	}
	var err error
	if len(args) > 2 {
		if r.OpensMinutesBefore, err = parseMinutes("opens", args[2]); err != nil {
			return err
		}
	}
	if len(args) > 3 {
		if r.ClosesMinutesAfter, err = parseMinutes("closes", args[3]); err != nil {
			return err
		}
	}
	return s.rules.Add(r)
}

func (s *Shell) editRule(args []string) error {
	if len(args) < 2 {
		return errors.New("usage: edit <#|id> key=value...")
	}
	id, err := s.resolve(args[0])
	if err != nil {
		return err
	}
	r, _ := s.rules.Rule(id)
	for _, kv := range args[1:] {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			return fmt.Errorf("expected key=value, got %q", kv)
		}
		switch strings.ToLower(key) {
		case "name":
			r.Name = strings.TrimSpace(value)
		case "requirement", "req":
			r.Requirement = checkin.ParseRequirement(value)
		case "opens":
			if r.OpensMinutesBefore, err = parseMinutes(key, value); err != nil {
				return err
			}
		case "closes":
			if r.ClosesMinutesAfter, err = parseMinutes(key, value); err != nil {
				return err
			}
		case "active":
			if r.Active, err = strconv.ParseBool(value); err != nil {
				return fmt.Errorf("active: want true or false, got %q", value)
			}
		default:
			return fmt.Errorf("unknown key %q", key)
		}
	}
	return s.rules.Update(r)
}

func (s *Shell) removeRule(args []string) error {
	id, err := s.oneRef("rm", args)
	if err != nil {
		return err
	}
	r, _ := s.rules.Rule(id)
	if !s.confirm(fmt.Sprintf("remove rule %q?", r.Name)) {
		return errors.New("not removed")
	}
	return s.rules.Remove(id)
}

func (s *Shell) oneRef(cmd string, args []string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("usage: %s <#|id>", cmd)
	}
	return s.resolve(args[0])
}

// resolve turns a 1-based list position, a full id or a unique id prefix
// into a rule id.
func (s *Shell) resolve(ref string) (string, error) {
	rules := s.rules.Snapshot().Rules
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(rules) {
			return "", fmt.Errorf("%w: no rule #%d", ErrUnknownRule, n)
		}
		return rules[n-1].ID, nil
	}
	var match string
	for _, r := range rules {
		if r.ID == ref {
			return r.ID, nil
		}
		if strings.HasPrefix(r.ID, ref) {
			if match != "" {
				return "", fmt.Errorf("%q matches more than one rule", ref)
			}
			match = r.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("%w: %s", ErrUnknownRule, ref)
	}
	return match, nil
}

func parseMinutes(field, v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: want whole minutes, got %q", field, v)
	}
	return n, nil
}

func (s *Shell) printRules() {
	v := s.rules.Snapshot()
	if len(v.Rules) == 0 {
		s.printf("no rules\n")
	} else {
		tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "#\tNAME\tACTIVE\tREQUIREMENT\tOPENS\tCLOSES\tID")
		for i, r := range v.Rules {
			active := "no"
			if r.Active {
				active = "yes"
			}
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t-%dm\t+%dm\t%s\n",
				i+1, r.Name, active, r.Requirement, r.OpensMinutesBefore, r.ClosesMinutesAfter, shortID(r.ID))
		}
		tw.Flush()
	}
	s.printStatus()
}

func (s *Shell) printStatus() {
	v := s.rules.Snapshot()
	s.printf("%d rules, %d active, %d mandatory\n", v.Summary.Total, v.Summary.Active, v.Summary.Mandatory)
	if len(v.Violations) == 0 {
		s.printf("ok: rules are consistent\n")
	} else {
		for _, msg := range v.Violations {
			s.printf("problem: %s\n", msg)
		}
	}
	switch {
	case v.CanSave:
		s.printf("unsaved changes (save to store them)\n")
	case v.Dirty:
		s.printf("unsaved changes (fix the problems above to save)\n")
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
