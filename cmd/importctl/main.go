package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/kitade/kita-jobs/internal/adminclient"
	"github.com/kitade/kita-jobs/internal/config"
	"github.com/kitade/kita-jobs/internal/domain"
	"github.com/kitade/kita-jobs/internal/logger"
)

func main() {
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "text",
		Output:      os.Stderr,
		ServiceName: "importctl",
	})
	logger.SetDefaultLogger(appLogger)

	mode := flag.String("mode", "kitas", "What to do: bezirke, kitas, knowledge, posts or search")
	configPath := flag.String("config", "", "Path to config file")
	server := flag.String("server", "", "Import API base URL (default from import.server_url)")
	stateURL := flag.String("state", "", "Bundesland page URL")
	bezirkNames := flag.String("bezirke", "", "Comma separated Bezirk names to import (default all)")
	limit := flag.Int("limit", 10, "Kitas per Bezirk, or posts per page in knowledge mode")
	page := flag.Int("page", 1, "First WordPress page to import")
	pages := flag.Int("pages", 1, "Number of WordPress pages to import")
	ids := flag.String("ids", "", "Comma separated WordPress post ids for posts mode")
	term := flag.String("term", "", "Search term for search mode")
	dryRun := flag.Bool("dry-run", true, "Preview only, do not write to the database")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}
	if *server == "" {
		*server = cfg.Import.ServerURL
	}

	// Ctrl-C stops polling; the server-side job keeps running
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = appLogger.WithContext(ctx)

	client := adminclient.NewClient(*server, 0)
	session := adminclient.NewSession(client, cfg.Import.PollInterval)

	var result interface{}
	switch *mode {
	case "bezirke":
		result, err = client.ListBezirke(ctx, requireFlag("state", *stateURL))
	case "search":
		result, err = client.SearchKnowledge(ctx, requireFlag("term", *term))
	case "kitas":
		result, err = runKitas(ctx, client, session, requireFlag("state", *stateURL), *bezirkNames, *limit, *dryRun)
	case "knowledge":
		result, err = report(session.RunKnowledgeImport(ctx, adminclient.KnowledgeImportRequest{
			Limit:             *limit,
			Page:              *page,
			TotalPagesToFetch: *pages,
			DryRun:            *dryRun,
		}, progress(ctx)))
	case "posts":
		postIDs, parseErr := parseIDs(requireFlag("ids", *ids))
		if parseErr != nil {
			appLogger.WithError(parseErr).Fatal("Invalid -ids")
		}
		result, err = report(session.RunSpecificKnowledge(ctx, postIDs, *dryRun, progress(ctx)))
	default:
		appLogger.Fatalf("Unknown mode %q", *mode)
	}

	if err != nil {
		if errors.Is(err, context.Canceled) {
			appLogger.Warn("Stopped polling; the job continues on the server")
			os.Exit(130)
		}
		appLogger.WithError(err).Fatal("Import command failed")
	}

	if result != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			appLogger.WithError(err).Fatal("Failed to write result")
		}
	}
}

func runKitas(ctx context.Context, client *adminclient.Client, session *adminclient.Session, stateURL, names string, limit int, dryRun bool) (interface{}, error) {
	bezirke, err := client.ListBezirke(ctx, stateURL)
	if err != nil {
		return nil, err
	}
	selected, err := selectBezirke(bezirke, names)
	if err != nil {
		return nil, err
	}

	logger.CtxInfo(ctx, "Importing %d of %d Bezirke, %d Kitas each (dry run: %t)", len(selected), len(bezirke), limit, dryRun)
	return report(session.RunImport(ctx, adminclient.StartImportRequest{
		DryRun:             dryRun,
		Bezirke:            selected,
		KitaLimitPerBezirk: limit,
	}, progress(ctx)))
}

// selectBezirke keeps the districts named in a comma separated list, or all
// of them when names is empty.
func selectBezirke(all []domain.Bezirk, names string) ([]domain.Bezirk, error) {
	if strings.TrimSpace(names) == "" {
		return all, nil
	}
	byName := make(map[string]domain.Bezirk, len(all))
	for _, b := range all {
		byName[strings.ToLower(b.Name)] = b
	}

	var selected []domain.Bezirk
	for _, name := range strings.Split(names, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		b, ok := byName[strings.ToLower(name)]
		if !ok {
			return nil, fmt.Errorf("unknown bezirk %q", name)
		}
		selected = append(selected, b)
	}
	return selected, nil
}

func parseIDs(s string) ([]int, error) {
	var ids []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("post id %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func progress(ctx context.Context) func(adminclient.Update) {
	seen := 0
	return func(u adminclient.Update) {
		for _, name := range u.Processed[seen:] {
			logger.CtxInfo(ctx, "Processed %s", name)
		}
		seen = len(u.Processed)
		logger.With(logger.Fields{
			logger.FieldJobID:    u.Job.ID,
			logger.FieldStatus:   string(u.Job.Status),
			logger.FieldProgress: u.Job.Progress,
		}).Info(ctx, "Job %s at %d%%", u.Job.Status, u.Job.Progress)
	}
}

// report turns a finished session into the value printed on stdout.
func report(out *adminclient.Outcome, err error) (interface{}, error) {
	if err != nil {
		return nil, err
	}
	if out.Job.Status == domain.JobStatusFailed {
		return nil, fmt.Errorf("job %s failed: %s", out.Job.ID, out.Job.Error)
	}
	switch {
	case out.Kitas != nil:
		return out.Kitas, nil
	case out.Posts != nil:
		return out.Posts, nil
	}
	return map[string]interface{}{
		"jobId":     out.Job.ID,
		"status":    out.Job.Status,
		"stats":     out.Job.Stats,
		"processed": out.Processed,
	}, nil
}

func requireFlag(name, value string) string {
	if strings.TrimSpace(value) == "" {
		fmt.Fprintf(os.Stderr, "-%s is required for this mode\n", name)
		flag.Usage()
		os.Exit(2)
	}
	return value
}
