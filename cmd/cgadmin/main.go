package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/docopt/docopt-go"
	"github.com/sirupsen/logrus"

	"github.com/cg-order-portal/internal/config"
	"github.com/cg-order-portal/internal/database"
	"github.com/cg-order-portal/internal/domain"
	"github.com/cg-order-portal/internal/setup"
)

const usage = `cgadmin: interact with the order portal.

Usage:
  cgadmin [-c <config>] setup --general=<file> --customers=<file>
  cgadmin [-c <config>] projects [--submitted]
  cgadmin [-c <config>] parse <orderform>
  cgadmin [-c <config>] import <orderform> [--name=<name>]
  cgadmin [-c <config>] lock <project_id>
  cgadmin [-c <config>] process <project_id>
  cgadmin [-c <config>] submit <orderform> [--name=<name>]
  cgadmin [-c <config>] migrate (up|down)
  cgadmin -h | --help

Options:
  -h --help             Show this screen.
  -c --config=<config>  Configuration file.
  --general=<file>      YAML file with the application tag catalogue.
  --customers=<file>    YAML file with the list of customers.
  --submitted           Only list submitted (locked) projects.
  --name=<name>         Project name, defaults to the order form file name.
`

type options struct {
	Config    string `docopt:"--config"`
	Setup     bool   `docopt:"setup"`
	General   string `docopt:"--general"`
	Customers string `docopt:"--customers"`
	Projects  bool   `docopt:"projects"`
	Submitted bool   `docopt:"--submitted"`
	Parse     bool   `docopt:"parse"`
	Import    bool   `docopt:"import"`
	Lock      bool   `docopt:"lock"`
	Process   bool   `docopt:"process"`
	Submit    bool   `docopt:"submit"`
	Migrate   bool   `docopt:"migrate"`
	Up        bool   `docopt:"up"`
	Down      bool   `docopt:"down"`
	OrderForm string `docopt:"<orderform>"`
	Name      string `docopt:"--name"`
	ProjectID string `docopt:"<project_id>"`
}

// parseOptions binds argv to options. A nil argv reads os.Args.
func parseOptions(parser *docopt.Parser, argv []string) (options, error) {
	var opts options
	args, err := parser.ParseArgs(usage, argv, "")
	if err != nil {
		return opts, err
	}
	err = args.Bind(&opts)
	return opts, err
}

func setupSignalListener(cancel context.CancelFunc) {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		s := <-c
		log.Printf("Got signal: '%s', stopping cgadmin...", s)
		cancel()
	}()
}

func handleError(err error, message string) {
	if err != nil {
		log.Fatalf("%s: %v", message, err)
	}
}

func main() {
	opts, err := parseOptions(docopt.DefaultParser, nil)
	handleError(err, "Arguments cannot be parsed")

	manager, err := config.NewManager(opts.Config)
	handleError(err, "Failed to load configuration")
	handleError(manager.Validate(), "Configuration validation failed")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	setupSignalListener(cancel)

	if opts.Migrate {
		handleError(migrate(manager, opts), "Migration failed")
		return
	}

	app, err := setup.Build(ctx, manager)
	handleError(err, "Order portal cannot be created")
	defer app.Close()

	if err := run(ctx, app, opts); err != nil {
		app.Logger.WithFields(logrus.Fields{
			"code": domain.CodeOf(err),
		}).WithError(err).Error("Command failed")
		app.Close()
		os.Exit(1)
	}
}

func run(ctx context.Context, app *setup.App, opts options) error {
	switch {
	case opts.Setup:
		seed, err := setup.LoadSeed(opts.General, opts.Customers)
		if err != nil {
			return err
		}
		if err := seed.Apply(ctx, app.Store, app.Logger); err != nil {
			return err
		}
		fmt.Println("all set up!")

	case opts.Projects:
		projects, err := app.Store.ListProjects(ctx, opts.Submitted)
		if err != nil {
			return err
		}
		for _, project := range projects {
			fmt.Printf("%d: %s (%s)\n", project.ID, project.Name, project.CustomerID)
		}

	case opts.Parse:
		project, err := app.Import(ctx, opts.OrderForm, opts.Name)
		if err != nil {
			return err
		}
		return printJSON(project)

	case opts.Import:
		project, err := app.Import(ctx, opts.OrderForm, opts.Name)
		if err != nil {
			return err
		}
		id, err := app.Store.SaveProject(ctx, project)
		if err != nil {
			return err
		}
		fmt.Printf("imported project %d: %s\n", id, project.Name)

	case opts.Lock:
		id, err := projectID(opts.ProjectID)
		if err != nil {
			return err
		}
		if err := app.Store.LockProject(ctx, id); err != nil {
			return err
		}
		fmt.Printf("project %d submitted\n", id)

	case opts.Process:
		id, err := projectID(opts.ProjectID)
		if err != nil {
			return err
		}
		submission, err := app.Pipeline.ProcessStored(ctx, id)
		if err != nil {
			return err
		}
		fmt.Printf("added new project to LIMS: %s\n", submission.Project.ID)

	case opts.Submit:
		project, err := app.Import(ctx, opts.OrderForm, opts.Name)
		if err != nil {
			return err
		}
		submission, err := app.Pipeline.Submit(ctx, project)
		if err != nil {
			return err
		}
		return printJSON(submission)
	}
	return nil
}

func migrate(manager *config.Manager, opts options) error {
	dbCfg := *manager.GetDatabaseConfig()
	if dbCfg.Driver != "postgres" {
		return fmt.Errorf("migrations only apply to the postgres driver, got %q", dbCfg.Driver)
	}
	logger := logrus.New()
	runner, err := database.NewMigrationRunner(dbCfg, logger)
	if err != nil {
		return err
	}
	defer runner.Close()

	direction := database.Up
	if opts.Down {
		direction = database.Down
	}
	if err := runner.Run(direction); err != nil {
		return err
	}
	version, dirty, err := runner.Version()
	if err != nil {
		return err
	}
	fmt.Printf("schema version %d (dirty: %t)\n", version, dirty)
	return nil
}

func projectID(value string) (int64, error) {
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, domain.NewPipelineError(domain.ErrSchema, domain.EntityProject, value,
			"project id must be an integer").WithField("project_id").Wrap(err)
	}
	return id, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
