package main

import (
	"bufio"
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Vanequal/ideafeed/internal/backend"
	"github.com/Vanequal/ideafeed/internal/models"
	"github.com/Vanequal/ideafeed/internal/session"
	"github.com/Vanequal/ideafeed/internal/view"
	"github.com/Vanequal/ideafeed/internal/views"
)

var sectionAliases = map[string]string{
	"ideas":        models.SectionIdeas,
	"qa":           models.SectionQA,
	"questions":    models.SectionQA,
	"publications": models.SectionPublications,
	"tasks":        models.SectionTasks,
}

// resolveSection accepts a section code or its short name
func resolveSection(s string) (string, error) {
	if code, ok := sectionAliases[strings.ToLower(s)]; ok {
		return code, nil
	}
	if models.IsKnownSection(s) {
		return s, nil
	}
	return "", fmt.Errorf("unknown section %q", s)
}

var (
	limit   int
	offset  int
	refresh bool

	useAI    bool
	files    []string
	parentID int64

	ratio    float64
	partial  bool
	deadline string
)

func registerCommands(root *cobra.Command) {
	feedCmd := &cobra.Command{
		Use:   "feed",
		Short: "List the posts of a section",
		Args:  cobra.NoArgs,
		RunE:  runFeed,
	}
	feedCmd.Flags().IntVar(&limit, "limit", 0, "page size, 0 for the configured default")
	feedCmd.Flags().IntVar(&offset, "offset", 0, "skip this many posts")
	feedCmd.Flags().BoolVar(&refresh, "refresh", false, "bypass the shared snapshot cache")

	readCmd := &cobra.Command{
		Use:   "read",
		Short: "Page through a section one post at a time, marking posts you dwell on as viewed",
		Args:  cobra.NoArgs,
		RunE:  runRead,
	}

	threadCmd := &cobra.Command{
		Use:   "thread <post-id>",
		Short: "Show a post with its comments",
		Args:  cobra.ExactArgs(1),
		RunE:  runThread,
	}

	postCmd := &cobra.Command{
		Use:   "post [text...]",
		Short: "Publish a post, or a task in the tasks section",
		RunE:  runPost,
	}
	postCmd.Flags().BoolVar(&useAI, "ai", false, "publish with an AI-rewritten variant when available")
	postCmd.Flags().StringSliceVarP(&files, "file", "f", nil, "attach a file (repeatable)")
	postCmd.Flags().Float64Var(&ratio, "reward", 0, "task reward")
	postCmd.Flags().BoolVar(&partial, "partial", false, "task accepts partial completion")
	postCmd.Flags().StringVar(&deadline, "deadline", "", "task deadline, RFC 3339 or a duration such as 72h")

	commentCmd := &cobra.Command{
		Use:   "comment <post-id> [text...]",
		Short: "Comment on a post",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runComment,
	}
	commentCmd.Flags().StringSliceVarP(&files, "file", "f", nil, "attach a file (repeatable)")
	commentCmd.Flags().Int64Var(&parentID, "reply-to", 0, "reply to this comment id")

	reactCmd := &cobra.Command{
		Use:       "react <post-id> like|dislike",
		Short:     "Like or dislike a post",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{string(models.ReactionLike), string(models.ReactionDislike)},
		RunE:      runReact,
	}

	acceptCmd := &cobra.Command{
		Use:   "accept <task-id>",
		Short: "Take a task",
		Args:  cobra.ExactArgs(1),
		RunE:  runTransition(false),
	}
	completeCmd := &cobra.Command{
		Use:   "complete <task-id> [report...]",
		Short: "Report a task as done",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runTransition(true),
	}
	completeCmd.Flags().StringSliceVarP(&files, "file", "f", nil, "attach a file (repeatable)")

	loginCmd := &cobra.Command{
		Use:         "login [init-data]",
		Short:       "Exchange Telegram init data for a token",
		Args:        cobra.MaximumNArgs(1),
		Annotations: map[string]string{"auth": "none"},
		RunE:        runLogin,
	}

	meCmd := &cobra.Command{
		Use:   "me",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE:  runMe,
	}

	viewsCmd := &cobra.Command{
		Use:         "views",
		Short:       "List posts marked as viewed",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{"auth": "none"},
		RunE:        runViews,
	}
	viewsCmd.AddCommand(&cobra.Command{
		Use:         "mark <post-id>",
		Short:       "Mark a post as viewed",
		Args:        cobra.ExactArgs(1),
		Annotations: map[string]string{"auth": "none"},
		RunE:        runMarkViewed,
	})

	root.AddCommand(feedCmd, readCmd, threadCmd, postCmd, commentCmd, reactCmd,
		acceptCmd, completeCmd, loginCmd, meCmd, viewsCmd)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func readFiles(paths []string) ([]backend.File, error) {
	out := make([]backend.File, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		out = append(out, backend.File{
			Name:     filepath.Base(p),
			MimeType: mime.TypeByExtension(filepath.Ext(p)),
			Data:     data,
		})
	}
	return out, nil
}

// parseDeadline accepts an RFC 3339 time or a duration from now
func parseDeadline(s string, now time.Time) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return nil, fmt.Errorf("invalid deadline %q", s)
	}
	t := now.Add(d)
	return &t, nil
}

func printCards(posts []models.Post) error {
	viewed, err := cli.viewed.Viewed()
	if err != nil {
		return err
	}
	cards := view.BuildCards(cli.svc.Store(), posts, cli.cfg.API.BaseURL)
	if len(cards) == 0 {
		fmt.Println(styles.Muted.Render("Nothing here yet"))
		return nil
	}
	for _, c := range cards {
		fmt.Println(renderCard(c, viewed[c.ID]))
	}
	return nil
}

func loadFeed(ctx context.Context, code string) ([]models.Post, error) {
	if offset > 0 || limit > 0 || refresh {
		if _, err := cli.svc.FetchPostsInSection(ctx, backend.PostsQuery{
			SectionCode: code,
			ThemeID:     themeID,
			Limit:       limit,
			Offset:      offset,
		}); err != nil {
			return nil, err
		}
	}
	return cli.svc.NewPage(code, themeID).Mount(ctx)
}

func runFeed(cmd *cobra.Command, args []string) error {
	code, err := resolveSection(section)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if themeID > 0 {
		th, err := cli.svc.FetchTheme(ctx, themeID)
		if err != nil {
			return err
		}
		fmt.Println(styles.Title.Render(th.Name))
	}
	posts, err := loadFeed(ctx, code)
	if err != nil {
		return err
	}
	return printCards(posts)
}

// runRead shows one post at a time, loading the next page when the reader
// reaches the end. A post shown for the dwell time is marked viewed, either
// when the reader moves on or by the ticker.
func runRead(cmd *cobra.Command, args []string) error {
	code, err := resolveSection(section)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	page := cli.svc.NewPage(code, themeID)
	posts, err := page.Mount(ctx)
	if err != nil {
		return err
	}

	tracker := views.NewDwellTracker(cli.viewed, cli.cfg.Views.Dwell, nil)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, id := range tracker.Tick() {
					fmt.Println(styles.Muted.Render(fmt.Sprintf("marked #%d viewed", id)))
				}
			}
		}
	}()

	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	for i := 0; ; i++ {
		if i == len(posts) {
			all, err := page.LoadMore(ctx)
			if err != nil {
				return err
			}
			if len(all) <= len(posts) {
				fmt.Println(styles.Muted.Render("End of feed"))
				return nil
			}
			posts = all
		}
		p := posts[i]
		viewed, err := cli.viewed.IsViewed(p.ID)
		if err != nil {
			return err
		}
		fmt.Println(renderCard(view.BuildCard(cli.svc.Store(), p, view.VariantOf(p), cli.cfg.API.BaseURL), viewed))
		fmt.Print(styles.Muted.Render(fmt.Sprintf("[%d] enter: next, q: quit ", i+1)))
		tracker.Enter(p.ID)

		var line string
		var ok bool
		select {
		case <-ctx.Done():
			tracker.Leave(p.ID)
			return nil
		case line, ok = <-lines:
		}
		if tracker.Leave(p.ID) {
			fmt.Println(styles.Muted.Render(fmt.Sprintf("marked #%d viewed", p.ID)))
		}
		if !ok || strings.TrimSpace(line) == "q" {
			return nil
		}
	}
}

func runThread(cmd *cobra.Command, args []string) error {
	code, err := resolveSection(section)
	if err != nil {
		return err
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	t, err := cli.svc.LoadThread(cmd.Context(), id, code, themeID)
	if err != nil {
		return err
	}
	fmt.Print(renderThread(view.BuildThread(cli.svc.Store(), t.Post, view.VariantOf(t.Post), cli.cfg.API.BaseURL)))
	return nil
}

func runPost(cmd *cobra.Command, args []string) error {
	code, err := resolveSection(section)
	if err != nil {
		return err
	}
	attached, err := readFiles(files)
	if err != nil {
		return err
	}
	text := strings.Join(args, " ")
	ctx := cmd.Context()

	if code == models.SectionTasks {
		expires, err := parseDeadline(deadline, time.Now())
		if err != nil {
			return err
		}
		req := backend.CreateTaskRequest{
			SectionCode: code,
			ThemeID:     themeID,
			Text:        text,
			IsPartially: partial,
			ExpiresAt:   expires,
			Files:       attached,
		}
		if cmd.Flags().Changed("reward") {
			req.Ratio = &ratio
		}
		if _, err := cli.svc.CreateTask(ctx, req); err != nil {
			return err
		}
		fmt.Println(styles.Like.Render("✓ Task published"))
		return nil
	}

	out, err := cli.svc.PublishPost(ctx, backend.CreatePostRequest{
		SectionCode: code,
		ThemeID:     themeID,
		Text:        text,
		Files:       attached,
	}, useAI)
	if err != nil {
		return err
	}
	if out.AIFallback {
		fmt.Println(styles.Warning.Render("AI preview unavailable, published the original text"))
	}
	if out.GPTText != "" {
		fmt.Println(styles.Muted.Render("AI variant: ") + out.GPTText)
	}
	fmt.Println(styles.Like.Render("✓ Published"))
	return nil
}

func runComment(cmd *cobra.Command, args []string) error {
	code, err := resolveSection(section)
	if err != nil {
		return err
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	attached, err := readFiles(files)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	post, err := cli.svc.FetchPostByID(ctx, id, code, themeID)
	if err != nil {
		return err
	}
	if post.SectionCode == "" {
		post.SectionCode = code
	}
	var parent *int64
	if parentID > 0 {
		parent = &parentID
	}

	composer := view.CommentComposer(cli.svc, post, parent)
	composer.Text, composer.Files = strings.Join(args[1:], " "), attached
	if err := composer.Submit(ctx); err != nil {
		return err
	}
	fmt.Print(renderThread(view.BuildThread(cli.svc.Store(), post, view.VariantOf(post), cli.cfg.API.BaseURL)))
	return nil
}

func runReact(cmd *cobra.Command, args []string) error {
	code, err := resolveSection(section)
	if err != nil {
		return err
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	reaction, err := models.ParseReaction(args[1])
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	post, err := cli.svc.FetchPostByID(ctx, id, code, themeID)
	if err != nil {
		return err
	}
	if post.SectionCode == "" {
		post.SectionCode = code
	}
	var buttons view.ReactionButtons
	if err := buttons.Click(ctx, cli.svc, post, reaction); err != nil {
		return err
	}
	fmt.Println(renderCard(view.BuildCard(cli.svc.Store(), post, view.VariantOf(post), cli.cfg.API.BaseURL), false))
	return nil
}

func runTransition(complete bool) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		attached, err := readFiles(files)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		req := backend.TaskTransitionRequest{
			TaskID:      id,
			SectionCode: models.SectionTasks,
			ThemeID:     themeID,
			Text:        strings.Join(args[1:], " "),
			Files:       attached,
		}
		if complete {
			err = cli.svc.CompleteTask(ctx, req)
		} else {
			err = cli.svc.AcceptTask(ctx, req)
		}
		if err != nil {
			return err
		}

		p, err := cli.svc.RefreshPost(ctx, id, models.SectionTasks, themeID)
		if err != nil {
			return err
		}
		fmt.Println(renderCard(view.BuildCard(cli.svc.Store(), p, view.VariantOf(p), cli.cfg.API.BaseURL), false))
		return nil
	}
}

func runLogin(cmd *cobra.Command, args []string) error {
	initData := cli.cfg.Session.InitData
	if len(args) == 1 {
		initData = args[0]
	}
	if initData == "" {
		return session.ErrNoInitData
	}
	if err := cli.session.Login(cmd.Context(), initData); err != nil {
		return err
	}

	token := cli.session.Token()
	fmt.Println(styles.Like.Render("✓ Signed in"))
	if exp, ok := session.ExpiresAt(token); ok {
		fmt.Println(styles.Muted.Render("expires " + exp.Local().Format(time.RFC1123)))
	}
	fmt.Println("export IDEAFEED_TOKEN=" + token)
	return nil
}

func runMe(cmd *cobra.Command, args []string) error {
	u, err := cli.svc.FetchMe(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Println(styles.Title.Render(u.Author().DisplayName()) + "  " + styles.Muted.Render(fmt.Sprintf("id %d", u.ID)))
	return nil
}

func runViews(cmd *cobra.Command, args []string) error {
	viewed, err := cli.viewed.Viewed()
	if err != nil {
		return err
	}
	ids := make([]int64, 0, len(viewed))
	for id := range viewed {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) == 0 {
		fmt.Println(styles.Muted.Render("No viewed posts"))
		return nil
	}
	for _, id := range ids {
		fmt.Printf("#%d\n", id)
	}
	return nil
}

func runMarkViewed(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	if err := cli.viewed.MarkViewed(id); err != nil {
		return err
	}
	fmt.Println(styles.Like.Render(fmt.Sprintf("✓ #%d marked viewed", id)))
	return nil
}
