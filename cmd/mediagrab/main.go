package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/common-nighthawk/go-figure"
	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/openmusicplayer/mediagrab/internal/artifact"
	"github.com/openmusicplayer/mediagrab/internal/download"
	"github.com/openmusicplayer/mediagrab/internal/logger"
	"github.com/openmusicplayer/mediagrab/internal/search"
)

var (
	success = color.New(color.FgGreen, color.Bold).SprintFunc()
	failure = color.New(color.FgRed, color.Bold).SprintFunc()
	dim     = color.New(color.FgHiBlack).SprintFunc()
	accent  = color.New(color.FgCyan).SprintFunc()
)

func main() {
	server := flag.String("server", envOr("MEDIAGRAB_SERVER", "http://localhost:8080"), "Server base URL")
	verbose := flag.Bool("v", false, "Log every request to stderr")
	flag.Usage = printUsage
	flag.Parse()

	level := logger.LevelWarn
	if *verbose {
		level = logger.LevelDebug
	}
	logger.SetDefault(logger.New(&logger.Config{Output: os.Stderr, Level: level, Format: "text"}))

	if flag.NArg() == 0 {
		printUsage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := newAPIClient(*server)
	args := flag.Args()[1:]

	var err error
	switch flag.Arg(0) {
	case "get":
		err = runGet(ctx, c, args)
	case "search":
		err = runSearch(ctx, c, args)
	case "trending":
		err = runTrending(ctx, c, args)
	case "formats":
		err = runFormats(ctx, c)
	default:
		fmt.Printf("Unknown command: %s\n\n", flag.Arg(0))
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", failure("error:"), err)
		os.Exit(1)
	}
}

func runGet(ctx context.Context, c *apiClient, args []string) error {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	format := fs.String("format", "mp3", "Output format: mp3, mp4, webm")
	quality := fs.String("quality", "", "Quality tag (defaults to the best for the format)")
	title := fs.String("title", "", "Title used for the file name")
	out := fs.String("o", ".", "Directory to save the artifact in")
	fs.Parse(args)

	if fs.NArg() != 1 {
		return errors.New("get needs exactly one URL")
	}

	task, err := c.Submit(ctx, download.SubmitRequest{
		URL:     fs.Arg(0),
		Format:  *format,
		Quality: *quality,
		Title:   *title,
	})
	if err != nil {
		return err
	}
	fmt.Printf("%s %s %s\n", accent("task"), task.ID, dim(task.FileSize))

	final, err := follow(ctx, c, task)
	if err != nil {
		return err
	}

	switch final.Status {
	case download.StatusCompleted:
	case download.StatusFailed:
		return fmt.Errorf("task failed: %s", final.Error)
	default:
		return fmt.Errorf("task ended as %s", final.Status)
	}

	path, size, err := c.SaveArtifact(ctx, final, *out)
	if err != nil {
		return err
	}
	fmt.Printf("%s %s (%s)\n", success("saved"), path, humanize.Bytes(uint64(size)))
	return nil
}

func runSearch(ctx context.Context, c *apiClient, args []string) error {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	platform := fs.String("platform", "", "Only results from this platform")
	duration := fs.String("duration", "", "short, medium or long")
	sortBy := fs.String("sort", "", "relevance, date, views or duration")
	limit := fs.Int("limit", 10, "Maximum results")
	fs.Parse(args)

	resp, err := c.Search(ctx, strings.Join(fs.Args(), " "), search.Filters{
		Platform: *platform,
		Duration: *duration,
		SortBy:   *sortBy,
	}, *limit)
	if err != nil {
		return err
	}

	printResults(resp.Data)
	fmt.Println(dim(fmt.Sprintf("%d of %d results", len(resp.Data), resp.Total)))
	return nil
}

func runTrending(ctx context.Context, c *apiClient, args []string) error {
	fs := flag.NewFlagSet("trending", flag.ExitOnError)
	platform := fs.String("platform", "", "Only results from this platform")
	fs.Parse(args)

	results, err := c.Trending(ctx, *platform)
	if err != nil {
		return err
	}
	printResults(results)
	return nil
}

func runFormats(ctx context.Context, c *apiClient) error {
	formats, err := c.Formats(ctx)
	if err != nil {
		return err
	}
	printFormats(formats)
	return nil
}

func printResults(results []search.Result) {
	if len(results) == 0 {
		fmt.Println("No results.")
		return
	}
	fmt.Printf("%-4s %-48s %-12s %-8s %s\n", "ID", "TITLE", "PLATFORM", "LENGTH", "VIEWS")
	fmt.Println(strings.Repeat("-", 84))
	for _, r := range results {
		fmt.Printf("%-4s %-48s %-12s %-8s %s\n",
			r.ID,
			truncate(r.Title, 48),
			r.Platform,
			r.Duration,
			humanize.Comma(int64(search.ParseViews(r.Views))),
		)
		fmt.Printf("     %s\n", dim(r.URL))
	}
}

func printFormats(formats []artifact.FormatOption) {
	for _, f := range formats {
		fmt.Printf("%s %s\n", accent(string(f.Format)), dim(f.Kind+", "+f.MIMEType))
		for _, q := range f.Qualities {
			fmt.Printf("  %-8s %s\n", q.Label, q.Size)
		}
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func printUsage() {
	figure.NewFigure("mediagrab", "small", true).Print()
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Printf("  %s [-server URL] <command> [options]\n", os.Args[0])
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  get       Submit a URL, show progress and save the file")
	fmt.Println("  search    Search the catalog")
	fmt.Println("  trending  Show trending results")
	fmt.Println("  formats   List formats and qualities")
	fmt.Println()
	fmt.Println("Options:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Printf("  %s get -format mp4 -quality 720 https://youtube.com/watch?v=dQw4w9WgXcQ\n", os.Args[0])
	fmt.Printf("  %s search -sort views lofi\n", os.Args[0])
	fmt.Printf("  %s trending -platform YouTube\n", os.Args[0])
}
