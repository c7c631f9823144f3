package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"

	"go.uber.org/zap"

	"github.com/hmxfpv/admin-api/internal/adminclient"
	"github.com/hmxfpv/admin-api/internal/models"
	"github.com/hmxfpv/admin-api/internal/workflow"
	"github.com/hmxfpv/admin-api/pkg/config"
	"github.com/hmxfpv/admin-api/pkg/logger"
)

const usage = `adminctl drives the HMX admin approval workflow.

Usage:
  adminctl login -email EMAIL -password PASSWORD
  adminctl list KIND [-status S] [-search Q] [-type pilot|editor] [-sort date|name|status] [-order asc|desc]
  adminctl show KIND ID
  adminctl transition KIND ID TARGET [-comment TEXT]
  adminctl actions KIND STATUS [SUBMISSION_TYPE]
  adminctl delete ROSTER ID

KIND is one of pilot, editor, referral, business_client, orders, cancellations, video-reviews.
ROSTER is one of pilots, editors, referrals, clients.
ADMIN_API_BASE_URL and ADMIN_API_TOKEN configure the endpoint and session.
`

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	cfg.Log.Format = "console"
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, adminclient.ErrSessionExpired) {
			fmt.Fprintln(os.Stderr, "session expired: run `adminctl login` and export ADMIN_API_TOKEN")
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger, args []string, out io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(out, usage)
		return nil
	}

	client := adminclient.New(adminclient.Options{
		BaseURL:   cfg.Client.BaseURL,
		APIPrefix: cfg.APIPrefix,
		Timeout:   cfg.Client.Timeout,
		Logger:    logr,
	}, adminclient.NewSession(cfg.Client.Token))
	vocab := workflow.NewVocabulary(workflow.OrderPolicy(cfg.Workflow.OrderPolicy))
	details := adminclient.NewDetailView(client, vocab, cfg.Client.DetailCacheSize, cfg.Client.DetailCacheTTL, logr)

	switch args[0] {
	case "login":
		fs := flag.NewFlagSet("login", flag.ContinueOnError)
		email := fs.String("email", "", "operator email")
		password := fs.String("password", "", "operator password")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		if err := client.Login(ctx, *email, *password); err != nil {
			return err
		}
		fmt.Fprintf(out, "export ADMIN_API_TOKEN=%s\n", client.Session().Token())
		return nil

	case "list":
		kind, rest, err := kindArg(args[1:])
		if err != nil {
			return err
		}
		fs := flag.NewFlagSet("list", flag.ContinueOnError)
		status := fs.String("status", "", "status filter")
		search := fs.String("search", "", "free-text search")
		subType := fs.String("type", "", "submission type (video reviews)")
		sortBy := fs.String("sort", "date", "date, name or status")
		order := fs.String("order", "desc", "asc or desc")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		view, err := adminclient.NewListView(client, kind, logr)
		if err != nil {
			return err
		}
		if err := view.Load(ctx); err != nil {
			return err
		}
		items := view.Items(workflow.Query{
			Status:         workflow.Status(strings.ToLower(*status)),
			Search:         *search,
			SubmissionType: *subType,
			SortBy:         workflow.SortField(*sortBy),
			Order:          workflow.SortOrder(*order),
		})
		printList(out, items)
		return nil

	case "show":
		kind, rest, err := kindArg(args[1:])
		if err != nil {
			return err
		}
		row, err := findRow(ctx, client, kind, rest, logr)
		if err != nil {
			return err
		}
		detail := details.Open(ctx, row)
		return printDetail(out, detail)

	case "transition":
		kind, rest, err := kindArg(args[1:])
		if err != nil {
			return err
		}
		if len(rest) < 2 {
			return fmt.Errorf("transition needs ID and TARGET")
		}
		fs := flag.NewFlagSet("transition", flag.ContinueOnError)
		comment := fs.String("comment", "", "comment sent with the decision")
		if err := fs.Parse(rest[2:]); err != nil {
			return err
		}
		list, err := adminclient.NewListView(client, kind, logr)
		if err != nil {
			return err
		}
		if err := list.Load(ctx); err != nil {
			return err
		}
		id, err := strconv.ParseInt(rest[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid id %q", rest[0])
		}
		row, ok := list.Find(id)
		if !ok {
			return fmt.Errorf("%s %d not found", kind, id)
		}
		detail := details.Open(ctx, row)
		detail.Comment = *comment
		notice, err := adminclient.NewDispatcher(client, vocab, details, logr).
			Dispatch(ctx, detail, workflow.Status(strings.ToLower(rest[1])), list)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, notice.Message)
		return nil

	case "delete":
		if len(args) < 3 {
			return fmt.Errorf("delete needs ROSTER and ID")
		}
		roster, ok := models.ParseRoster(args[1])
		if !ok {
			return fmt.Errorf("unknown roster %q", args[1])
		}
		id, err := strconv.ParseInt(args[2], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid id %q", args[2])
		}
		view, err := adminclient.NewRosterView(client, roster, logr)
		if err != nil {
			return err
		}
		if err := view.Load(ctx); err != nil {
			return err
		}
		member, ok := view.Find(id)
		if !ok {
			return fmt.Errorf("%s %d not found", roster, id)
		}
		if err := view.Delete(ctx, id); err != nil {
			return err
		}
		fmt.Fprintf(out, "deleted %s %d (%s), %d remaining\n", roster, id, member.Name, len(view.Items()))
		return nil

	case "actions":
		kind, rest, err := kindArg(args[1:])
		if err != nil {
			return err
		}
		if len(rest) == 0 {
			return fmt.Errorf("actions needs STATUS")
		}
		subType := ""
		if len(rest) > 1 {
			subType = rest[1]
		}
		actions := vocab.Actions(kind, workflow.Status(strings.ToLower(rest[0])), subType)
		if len(actions) == 0 {
			fmt.Fprintln(out, "no actions: status is terminal")
			return nil
		}
		for _, a := range actions {
			fmt.Fprintf(out, "%s\t-> %s\n", a.Name, a.Target)
		}
		return nil
	}

	fmt.Fprint(out, usage)
	return fmt.Errorf("unknown command %q", args[0])
}

func kindArg(args []string) (workflow.Kind, []string, error) {
	if len(args) == 0 {
		return "", nil, fmt.Errorf("missing KIND")
	}
	kind, ok := workflow.ParseKind(args[0])
	if !ok {
		return "", nil, fmt.Errorf("unknown kind %q", args[0])
	}
	return kind, args[1:], nil
}

func findRow(ctx context.Context, client *adminclient.Client, kind workflow.Kind, args []string, logr *zap.Logger) (models.Entity, error) {
	if len(args) == 0 {
		return models.Entity{}, fmt.Errorf("missing ID")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return models.Entity{}, fmt.Errorf("invalid id %q", args[0])
	}
	view, err := adminclient.NewListView(client, kind, logr)
	if err != nil {
		return models.Entity{}, err
	}
	if err := view.Load(ctx); err != nil {
		return models.Entity{}, err
	}
	row, ok := view.Find(id)
	if !ok {
		return models.Entity{}, fmt.Errorf("%s %d not found", kind, id)
	}
	return row, nil
}

func printList(out io.Writer, items []models.Entity) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tEMAIL\tSTATUS\tCREATED")
	for _, e := range items {
		created := ""
		if !e.CreatedAt.IsZero() {
			created = e.CreatedAt.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", e.ID, e.DisplayName(), e.Email(), e.Status, created)
	}
	_ = tw.Flush()
	fmt.Fprintf(out, "%d record(s)\n", len(items))
}

func printDetail(out io.Writer, detail *adminclient.Detail) error {
	encoded, err := json.MarshalIndent(detail.Entity, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(out, string(encoded))
	if detail.Degraded {
		fmt.Fprintln(out, "(details unavailable; showing list fields)")
	}
	if detail.Terminal() {
		fmt.Fprintln(out, "no further actions")
		return nil
	}
	names := make([]string, 0, len(detail.Actions))
	for _, a := range detail.Actions {
		names = append(names, fmt.Sprintf("%s (%s)", a.Target, a.Label))
	}
	fmt.Fprintf(out, "actions: %s\n", strings.Join(names, ", "))
	return nil
}
