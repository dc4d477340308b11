package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/gemtrade-backend/pkg/config"
	"github.com/angelmondragon/gemtrade-backend/pkg/db"
	"github.com/angelmondragon/gemtrade-backend/pkg/logger"
	"github.com/angelmondragon/gemtrade-backend/pkg/migrate"
)

type options struct {
	dir     string
	name    string
	version string
}

// command is one -cmd value. Offline commands never open a connection.
type command struct {
	offline bool
	run     func(ctx context.Context, opts options, conn *db.Client) error
}

var commands = map[string]command{
	"create": {offline: true, run: func(_ context.Context, opts options, _ *db.Client) error {
		if opts.name == "" {
			return errors.New("create needs -name")
		}
		target := opts.dir
		if target == "" {
			target = migrate.DefaultDir
		}
		path, err := migrate.CreateSQLMigration(target, opts.name)
		if err != nil {
			return err
		}
		fmt.Println("created migration:", path)
		return nil
	}},
	"validate": {offline: true, run: func(_ context.Context, opts options, _ *db.Client) error {
		if err := migrate.ValidateFS(migrate.Source(opts.dir)); err != nil {
			return err
		}
		fmt.Println("migration validation passed")
		return nil
	}},
	// models builds the schema from the gorm models; it also works on sqlite.
	"models": {run: func(ctx context.Context, _ options, conn *db.Client) error {
		return conn.DB().WithContext(ctx).AutoMigrate(migrate.Models()...)
	}},
	"up":     {run: goose("up")},
	"down":   {run: goose("down")},
	"status": {run: goose("status")},
	"version": {run: withSQL(func(ctx context.Context, opts options, conn *sql.DB) error {
		if opts.version == "" {
			return errors.New("version needs -version")
		}
		return migrate.MigrateToVersion(ctx, conn, migrate.Source(opts.dir), opts.version)
	})},
}

func goose(verb string) func(context.Context, options, *db.Client) error {
	return withSQL(func(ctx context.Context, opts options, conn *sql.DB) error {
		return migrate.Run(ctx, conn, migrate.Source(opts.dir), verb)
	})
}

func withSQL(fn func(context.Context, options, *sql.DB) error) func(context.Context, options, *db.Client) error {
	return func(ctx context.Context, opts options, client *db.Client) error {
		conn, err := client.SQL()
		if err != nil {
			return err
		}
		return fn(ctx, opts, conn)
	}
}

func commandNames() string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, "|")
}

func main() {
	verb := flag.String("cmd", "up", "migration command: "+commandNames())
	var opts options
	flag.StringVar(&opts.dir, "dir", "", "migrations directory (default: embedded set; create writes to "+migrate.DefaultDir+")")
	flag.StringVar(&opts.name, "name", "", "migration name for -cmd=create")
	flag.StringVar(&opts.version, "version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	_ = godotenv.Load()
	logg := logger.New(logger.Options{ServiceName: "migrate"})
	if err := run(logg, *verb, opts); err != nil {
		logg.Error(context.Background(), "migrate -cmd="+*verb+" failed", err)
		os.Exit(1)
	}
}

func run(logg *logger.Logger, verb string, opts options) error {
	cmd, ok := commands[verb]
	if !ok {
		return fmt.Errorf("unknown -cmd %q, want one of %s", verb, commandNames())
	}
	if cmd.offline {
		return cmd.run(context.Background(), opts, nil)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{"env": cfg.App.Env, "cmd": verb, "dir": opts.dir})

	// Goose SQL targets Postgres only; sqlite is honoured for models alone.
	conn, err := db.New(ctx, cfg.DB, cfg.FeatureFlags.UseSQLite && verb == "models", logg)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	if err := cmd.run(ctx, opts, conn); err != nil {
		return err
	}
	logg.Info(ctx, "migrate finished")
	return nil
}
