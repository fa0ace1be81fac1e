package linkpage

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	entrypoint "github.com/louisbranch/linkpage/internal/platform/cmd"
	"github.com/louisbranch/linkpage/internal/platform/errors/i18n"
	"github.com/louisbranch/linkpage/internal/platform/otel"
	"github.com/louisbranch/linkpage/internal/services/linkpage/analytics"
	"github.com/louisbranch/linkpage/internal/services/linkpage/api"
	"github.com/louisbranch/linkpage/internal/services/linkpage/auth"
	"github.com/louisbranch/linkpage/internal/services/linkpage/credentials"
	"github.com/louisbranch/linkpage/internal/services/linkpage/credentials/sqlite"
	"github.com/louisbranch/linkpage/internal/services/linkpage/events"
	"github.com/louisbranch/linkpage/internal/services/linkpage/fetch"
	"github.com/louisbranch/linkpage/internal/services/linkpage/graphql"
	"github.com/louisbranch/linkpage/internal/services/linkpage/links"
	"github.com/louisbranch/linkpage/internal/services/linkpage/profile"
	"github.com/louisbranch/linkpage/internal/services/linkpage/session"
)

// ErrNotSignedIn is returned by commands that need a resolved session.
var ErrNotSignedIn = errors.New("not signed in; run linkpage login first")

const linksLocator = "/api/links"

type app struct {
	cfg     Config
	out     io.Writer
	logger  *zap.Logger
	catalog *i18n.Catalog

	store     *sqlite.Store
	rest      *fetch.Client
	session   *session.Session
	auth      *auth.Service
	links     *links.Service
	profile   *profile.Service
	analytics *analytics.Service
}

func newApp(ctx context.Context, cfg Config, out io.Writer, logger *zap.Logger) (*app, error) {
	catalog := i18n.GetCatalog(cfg.Locale)
	store, err := sqlite.Open(ctx, cfg.CredentialsPath)
	if err != nil {
		return nil, fmt.Errorf("open credentials: %w", err)
	}
	a := &app{cfg: cfg, out: out, logger: logger, catalog: catalog, store: store}
	if err := a.wire(); err != nil {
		_ = store.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire() error {
	marker, err := credentials.NewMarker(a.cfg.BaseURL)
	if err != nil {
		return fmt.Errorf("init marker: %w", err)
	}
	httpClient := &http.Client{Jar: marker.Jar()}
	bus := events.NewBus()
	tracer := otel.Tracer()

	a.rest, err = fetch.NewClient(a.cfg.BaseURL,
		fetch.WithHTTPClient(httpClient),
		fetch.WithCredentials(a.store),
		fetch.WithLogger(a.logger),
		fetch.WithTracer(tracer),
		fetch.WithCatalog(a.catalog),
		fetch.WithRequestTimeout(a.cfg.RequestTimeout),
	)
	if err != nil {
		return fmt.Errorf("init fetch client: %w", err)
	}
	endpoint, err := a.rest.Resolve(a.cfg.GraphQLPath)
	if err != nil {
		return err
	}
	gql, err := graphql.NewClient(endpoint,
		graphql.WithHTTPClient(httpClient),
		graphql.WithCredentials(a.store),
		graphql.WithBus(bus),
		graphql.WithLogger(a.logger),
		graphql.WithTracer(tracer),
		graphql.WithCatalog(a.catalog),
		graphql.WithRequestTimeout(a.cfg.RequestTimeout),
	)
	if err != nil {
		return fmt.Errorf("init graphql client: %w", err)
	}
	a.auth = auth.NewService(gql)
	a.session, err = session.New(session.Config{
		Auth:   a.auth,
		Store:  a.store,
		Marker: marker,
		Bus:    bus,
		Logger: a.logger,
	})
	if err != nil {
		return fmt.Errorf("init session: %w", err)
	}
	a.links = links.NewService(gql, a.catalog)
	a.profile = profile.NewService(gql, a.rest, profile.WithLogger(a.logger), profile.WithIdentity(a.session))
	a.analytics = analytics.NewService(gql)
	return nil
}

func (a *app) Close() {
	if a.session != nil {
		a.session.Close()
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("close credentials", zap.Error(err))
	}
}

func (a *app) dispatch(ctx context.Context, command string, args []string) error {
	switch command {
	case "status":
		return a.status(ctx)
	case "login":
		return a.login(ctx, args)
	case "register":
		return a.register(ctx, args)
	case "logout":
		return a.logout(ctx)
	case "password":
		return a.changePassword(ctx, args)
	case "delete-account":
		return a.deleteAccount(ctx, args)
	case "links":
		return a.listLinks(ctx)
	case "toggle":
		return a.toggle(ctx, args)
	case "move":
		return a.move(ctx, args)
	case "add":
		return a.addLink(ctx, args)
	case "rm":
		return a.removeLink(ctx, args)
	case "dashboard":
		return a.dashboard(ctx, args)
	case "profile":
		return a.showProfile(ctx, args)
	case "view":
		return a.view(ctx, args)
	case "open":
		return a.open(ctx, args)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func (a *app) requireIdentity(ctx context.Context) (api.User, error) {
	snap, err := a.session.Bootstrap(ctx)
	if err != nil {
		return api.User{}, err
	}
	if snap.State != session.StateResolved || snap.Identity == nil {
		return api.User{}, ErrNotSignedIn
	}
	return *snap.Identity, nil
}

func (a *app) status(ctx context.Context) error {
	snap, err := a.session.Bootstrap(ctx)
	if err != nil {
		return err
	}
	if snap.State != session.StateResolved || snap.Identity == nil {
		fmt.Fprintln(a.out, "Not signed in")
		return nil
	}
	fmt.Fprintf(a.out, "Signed in as %s <%s>\n", snap.Identity.Username, snap.Identity.Email)
	token, err := credentials.AccessToken(ctx, a.store)
	if err != nil || token == "" {
		return nil
	}
	if info, err := credentials.Inspect(token); err == nil && !info.ExpiresAt.IsZero() {
		fmt.Fprintf(a.out, "Access token expires %s\n", info.ExpiresAt.UTC().Format(time.RFC3339))
	}
	return nil
}

func (a *app) login(ctx context.Context, args []string) error {
	fs := newFlagSet("login")
	email := fs.String("email", "", "Account email")
	password := fs.String("password", "", "Account password")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return err
	}
	if *email == "" || *password == "" {
		return errors.New("login: -email and -password are required")
	}
	if err := a.session.SignIn(ctx, *email, *password); err != nil {
		return err
	}
	return a.printIdentity()
}

func (a *app) register(ctx context.Context, args []string) error {
	fs := newFlagSet("register")
	var in api.RegisterInput
	fs.StringVar(&in.Username, "username", "", "Public username")
	fs.StringVar(&in.Email, "email", "", "Account email")
	fs.StringVar(&in.Password, "password", "", "Account password")
	fs.StringVar(&in.DisplayName, "display-name", "", "Display name")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return err
	}
	if err := a.session.SignUp(ctx, in); err != nil {
		return err
	}
	return a.printIdentity()
}

func (a *app) printIdentity() error {
	snap := a.session.Snapshot()
	if snap.Identity == nil {
		return ErrNotSignedIn
	}
	fmt.Fprintf(a.out, "Signed in as %s <%s>\n", snap.Identity.Username, snap.Identity.Email)
	return nil
}

func (a *app) logout(ctx context.Context) error {
	if err := a.session.SignOut(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Signed out")
	return nil
}

func (a *app) changePassword(ctx context.Context, args []string) error {
	fs := newFlagSet("password")
	var in api.ChangePasswordInput
	fs.StringVar(&in.CurrentPassword, "current", "", "Current password")
	fs.StringVar(&in.NewPassword, "new", "", "New password")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return err
	}
	if _, err := a.requireIdentity(ctx); err != nil {
		return err
	}
	if err := a.auth.ChangePassword(ctx, in); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Password changed")
	return nil
}

func (a *app) deleteAccount(ctx context.Context, args []string) error {
	fs := newFlagSet("delete-account")
	confirmed := fs.Bool("yes", false, "Confirm the account removal")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return err
	}
	if !*confirmed {
		return errors.New("delete-account removes every link and statistic; rerun with -yes to continue")
	}
	if _, err := a.requireIdentity(ctx); err != nil {
		return err
	}
	if err := a.auth.DeleteAccount(ctx); err != nil {
		return err
	}
	if err := a.session.SignOut(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Account deleted")
	return nil
}

// board loads the owner's links behind an optimistic board.
func (a *app) board(ctx context.Context) (*links.Board, func(), error) {
	if _, err := a.requireIdentity(ctx); err != nil {
		return nil, nil, err
	}
	source := fetch.New[[]api.Link](a.rest, linksLocator, fetch.Options{
		Retries:    a.cfg.Retries,
		RetryDelay: a.cfg.RetryDelay,
	})
	if err := source.Load(ctx); err != nil {
		source.Close()
		return nil, nil, fmt.Errorf("load links: %w", err)
	}
	board := links.NewBoard(source, a.links, links.WithLogger(a.logger), links.WithCatalog(a.catalog))
	return board, source.Close, nil
}

// boardError prefers the message the board shows for a failed mutation.
func boardError(board *links.Board, err error) error {
	if msg := board.Err(); msg != "" {
		return errors.New(msg)
	}
	return err
}

func (a *app) listLinks(ctx context.Context) error {
	board, done, err := a.board(ctx)
	if err != nil {
		return err
	}
	defer done()
	return a.printLinks(board.Items())
}

func (a *app) toggle(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: linkpage toggle <link-id>")
	}
	board, done, err := a.board(ctx)
	if err != nil {
		return err
	}
	defer done()
	if err := board.Toggle(ctx, args[0]); err != nil {
		return boardError(board, err)
	}
	return a.printLinks(board.Items())
}

func (a *app) move(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: linkpage move <from> <to>")
	}
	from, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("parse from: %w", err)
	}
	to, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("parse to: %w", err)
	}
	board, done, err := a.board(ctx)
	if err != nil {
		return err
	}
	defer done()
	if !board.Move(from, to) {
		return fmt.Errorf("positions must be between 0 and %d", len(board.Items())-1)
	}
	if err := board.Commit(ctx); err != nil {
		return boardError(board, err)
	}
	return a.printLinks(board.Items())
}

func (a *app) addLink(ctx context.Context, args []string) error {
	fs := newFlagSet("add")
	var in api.CreateLinkInput
	var header bool
	fs.StringVar(&in.Title, "title", "", "Link title")
	fs.StringVar(&in.URL, "url", "", "Destination URL")
	fs.StringVar(&in.Description, "description", "", "Short description")
	fs.BoolVar(&in.IsSensitive, "sensitive", false, "Ask visitors to confirm before opening")
	fs.BoolVar(&header, "header", false, "Create a section header instead of a link")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return err
	}
	if header {
		in.LinkType = api.LinkTypeHeader
	}
	board, done, err := a.board(ctx)
	if err != nil {
		return err
	}
	defer done()
	if _, err := board.Create(ctx, in); err != nil {
		return boardError(board, err)
	}
	return a.printLinks(board.Items())
}

func (a *app) removeLink(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: linkpage rm <link-id>")
	}
	board, done, err := a.board(ctx)
	if err != nil {
		return err
	}
	defer done()
	if err := board.Delete(ctx, args[0]); err != nil {
		return boardError(board, err)
	}
	return a.printLinks(board.Items())
}

func (a *app) printLinks(items []api.Link) error {
	if len(items) == 0 {
		fmt.Fprintln(a.out, "No links yet")
		return nil
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	for i, link := range items {
		if link.IsHeader() {
			fmt.Fprintf(tw, "%d\t== %s ==\t\t%s\n", i, link.Title, link.ID)
			continue
		}
		state := "on"
		if !link.IsActive {
			state = "off"
		}
		if link.IsSensitive {
			state += ",sensitive"
		}
		fmt.Fprintf(tw, "%d\t%s [%s]\t%s\t%s\n", i, link.Title, state, link.URL, link.ID)
	}
	return tw.Flush()
}

func (a *app) dashboard(ctx context.Context, args []string) error {
	fs := newFlagSet("dashboard")
	days := fs.Int("days", analytics.Periods[0], "View window in days (7 or 30)")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return err
	}
	if !slices.Contains(analytics.Periods, *days) {
		return fmt.Errorf("-days must be one of %v", analytics.Periods)
	}
	if _, err := a.requireIdentity(ctx); err != nil {
		return err
	}

	var (
		summary api.Summary
		views   api.ViewStats
		top     []api.TopLink
		recent  []api.RecentClick
	)
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() (err error) {
		summary, err = a.analytics.Summary(groupCtx)
		return err
	})
	group.Go(func() (err error) {
		views, err = a.analytics.ViewStats(groupCtx, *days)
		return err
	})
	group.Go(func() (err error) {
		top, err = a.analytics.TopLinks(groupCtx, analytics.DefaultTopLinks)
		return err
	})
	group.Go(func() (err error) {
		recent, err = a.analytics.RecentClicks(groupCtx, analytics.DefaultRecentClicks)
		return err
	})
	if err := group.Wait(); err != nil {
		return err
	}

	fmt.Fprintf(a.out, "Views   %d (today %d)\n", summary.TotalViews, summary.TodayViews)
	fmt.Fprintf(a.out, "Clicks  %d (today %d)\n", summary.TotalClicks, summary.TodayClicks)
	fmt.Fprintf(a.out, "CTR     %.1f%%\n", summary.ClickThroughRate)
	fmt.Fprintf(a.out, "Links   %d\n", summary.TotalLinks)

	fmt.Fprintf(a.out, "\nViews over %d days: %d\n", views.Days, views.TotalViews)
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	for _, day := range views.Daily {
		fmt.Fprintf(tw, "%s\t%d\t%d unique\n", day.Date, day.ViewCount, day.UniqueVisitors)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(a.out, "\nTop links")
	tw = tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	for i, link := range top {
		fmt.Fprintf(tw, "%d\t%s\t%d clicks\n", i+1, link.Title, link.ClickCount)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(a.out, "\nRecent clicks")
	if len(recent) == 0 {
		fmt.Fprintln(a.out, "None")
		return nil
	}
	tw = tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	for _, click := range recent {
		fmt.Fprintf(tw, "%s\t%s\n", click.ClickedAt, click.Title)
	}
	return tw.Flush()
}

func (a *app) showProfile(ctx context.Context, args []string) error {
	fs := newFlagSet("profile")
	var in api.UpdateProfileInput
	stringFlag(fs, &in.DisplayName, "display-name", "New display name")
	stringFlag(fs, &in.Bio, "bio", "New bio")
	stringFlag(fs, &in.AvatarURL, "avatar-url", "New avatar URL")
	stringFlag(fs, &in.Theme, "theme", "New theme")
	stringFlag(fs, &in.BgColor, "bg-color", "New background color")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return err
	}

	if fs.NArg() > 0 {
		res := a.profile.Public(fs.Arg(0), fetch.Options{Retries: a.cfg.Retries, RetryDelay: a.cfg.RetryDelay})
		defer res.Close()
		if err := res.Load(ctx); err != nil {
			return err
		}
		a.printPublicProfile(res.State().Data)
		return nil
	}

	if _, err := a.requireIdentity(ctx); err != nil {
		return err
	}
	var (
		user api.User
		err  error
	)
	if in != (api.UpdateProfileInput{}) {
		user, err = a.profile.Update(ctx, in)
	} else {
		user, err = a.profile.Mine(ctx)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s (@%s)\n", user.Name(), user.Username)
	if user.Bio != "" {
		fmt.Fprintln(a.out, user.Bio)
	}
	fmt.Fprintf(a.out, "Theme %s, background %s\n", user.Theme, user.BgColor)
	return nil
}

// stringFlag binds a flag that leaves target nil unless it is set.
func stringFlag(fs *flag.FlagSet, target **string, name, usage string) {
	fs.Func(name, usage, func(value string) error {
		*target = &value
		return nil
	})
}

func (a *app) view(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: linkpage view <username>")
	}
	page, err := a.profile.Visit(ctx, args[0])
	if err != nil {
		return err
	}
	a.printPublicProfile(page)
	return nil
}

func (a *app) printPublicProfile(page api.PublicProfile) {
	name := page.DisplayName
	if name == "" {
		name = page.Username
	}
	fmt.Fprintf(a.out, "%s (@%s)\n", name, page.Username)
	if page.Bio != "" {
		fmt.Fprintln(a.out, page.Bio)
	}
	for _, platform := range api.SocialPlatforms {
		if url := page.SocialLinks[platform]; url != "" {
			fmt.Fprintf(a.out, "%s: %s\n", platform, url)
		}
	}
	fmt.Fprintln(a.out)
	if len(page.Links) == 0 {
		fmt.Fprintln(a.out, "No links yet")
		return
	}
	for _, link := range page.Links {
		if link.IsHeader() {
			fmt.Fprintf(a.out, "== %s ==\n", link.Title)
			continue
		}
		fmt.Fprintf(a.out, "%s  %s  [%s]\n", link.Title, link.URL, link.ID)
	}
}

func (a *app) open(ctx context.Context, args []string) error {
	fs := newFlagSet("open")
	confirmed := fs.Bool("yes", false, "Open sensitive links without asking")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return errors.New("usage: linkpage open [-yes] <username> <link-id>")
	}
	res := a.profile.Public(fs.Arg(0), fetch.Options{Retries: a.cfg.Retries, RetryDelay: a.cfg.RetryDelay})
	defer res.Close()
	if err := res.Load(ctx); err != nil {
		return err
	}
	page := res.State().Data
	idx := slices.IndexFunc(page.Links, func(l api.Link) bool { return l.ID == fs.Arg(1) })
	if idx < 0 {
		return fmt.Errorf("link %s is not on @%s's page", fs.Arg(1), page.Username)
	}
	link := page.Links[idx]
	destination, err := a.profile.Open(ctx, link, *confirmed)
	if errors.Is(err, profile.ErrConfirmationRequired) {
		return fmt.Errorf("%q may contain sensitive content; rerun with -yes to continue", link.Title)
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, destination)
	return nil
}
