package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/kong"
	"github.com/bankstmt/bankstmt/internal/db"
	"github.com/bankstmt/bankstmt/internal/rules"
	"github.com/charmbracelet/log"
)

type TagsCLI struct {
	DataDir  string `env:"DATA_DIR" default:"data" help:"Directory to store data"`
	LogLevel string `env:"LOG_LEVEL" default:"info" help:"Log level (debug, info, warn, error)"`

	Add    AddCmd    `cmd:"" help:"Add a tagging rule."`
	List   ListCmd   `cmd:"" help:"List tagging rules."`
	Delete DeleteCmd `cmd:"" help:"Delete a tagging rule."`
	Apply  ApplyCmd  `cmd:"" help:"Apply all tagging rules to a statement's transactions."`
}

type AddCmd struct {
	Name     string `help:"Rule name" required:""`
	Pattern  string `help:"Pattern to match" required:""`
	Tag      string `help:"Tag to attach to matching transactions" required:""`
	Field    string `help:"Field to match against (description or reference)" default:"description"`
	Regex    bool   `help:"Treat the pattern as a regular expression"`
	Priority int    `help:"Rules with higher priority run first" default:"0"`
}

type ListCmd struct{}

type DeleteCmd struct {
	ID int64 `arg:"" help:"Rule id to delete"`
}

type ApplyCmd struct {
	StatementID int64 `arg:"" help:"Statement id whose transactions get tagged"`
}

func setup(cli *TagsCLI) (*rules.Service, *db.DB, *log.Logger, error) {
	logger := log.New(os.Stderr)
	level, err := log.ParseLevel(cli.LogLevel)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("invalid log level: %v", err)
	}
	logger.SetLevel(level)

	database, err := db.New(cli.DataDir, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	return rules.NewService(database, logger), database, logger, nil
}

func (c *AddCmd) Run(cli *TagsCLI) error {
	service, database, logger, err := setup(cli)
	if err != nil {
		return err
	}
	defer database.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	id, err := service.Create(ctx, db.Rule{
		Name:     c.Name,
		Field:    c.Field,
		Pattern:  c.Pattern,
		IsRegex:  c.Regex,
		Priority: c.Priority,
		Tag:      c.Tag,
	})
	if err != nil {
		return err
	}
	logger.Info("Rule created", "id", id, "name", c.Name, "tag", c.Tag)
	return nil
}

func (c *ListCmd) Run(cli *TagsCLI) error {
	service, database, _, err := setup(cli)
	if err != nil {
		return err
	}
	defer database.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	listed, err := service.List(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tFIELD\tPATTERN\tREGEX\tPRIORITY\tTAG")
	for _, r := range listed {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%t\t%d\t%s\n",
			r.ID, r.Name, r.Field, r.Pattern, r.IsRegex, r.Priority, r.Tag)
	}
	return w.Flush()
}

func (c *DeleteCmd) Run(cli *TagsCLI) error {
	service, database, logger, err := setup(cli)
	if err != nil {
		return err
	}
	defer database.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := service.Delete(ctx, c.ID); err != nil {
		return err
	}
	logger.Info("Rule deleted", "id", c.ID)
	return nil
}

func (c *ApplyCmd) Run(cli *TagsCLI) error {
	service, database, logger, err := setup(cli)
	if err != nil {
		return err
	}
	defer database.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	tagged, err := service.ApplyAll(ctx, c.StatementID)
	if err != nil {
		return err
	}
	logger.Info("Rules applied", "statement_id", c.StatementID, "tags_attached", tagged)
	return nil
}

func main() {
	cli := &TagsCLI{}
	ctx := kong.Parse(cli,
		kong.Name("statement-tags"),
		kong.Description("Manage tagging rules for imported transactions"),
		kong.UsageOnError(),
	)
	// Dispatch to the selected subcommand
	err := ctx.Run(cli)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
