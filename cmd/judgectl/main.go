// Command judgectl is the operator tool for the judge: it issues test tokens,
// prints standings, finalises contest ratings and previews rating changes
// offline.
package main

import (
	"context"
	"fmt"
	"os"

	"tle_zone_judge/internal/app/service"
	"tle_zone_judge/internal/common/security"
	"tle_zone_judge/internal/domain/model"
	"tle_zone_judge/internal/domain/repository"
	"tle_zone_judge/internal/judge/language"
	"tle_zone_judge/internal/platform/config"
	"tle_zone_judge/internal/platform/database"
	"tle_zone_judge/internal/platform/queue"

	"github.com/fatih/color"
	"github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:  "judgectl",
		Usage: "operate the judging and contest engine",
		Commands: []*cli.Command{
			tokenCommand(),
			migrateCommand(),
			leaderboardCommand(),
			ratingsCommand(),
			rateCommand(),
			languagesCommand(),
		},
	}
	if err := cmd.Run(context.Background(), os.Args); err != nil {
		color.New(color.FgRed).Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "issue a JWT for a user id, signed with JWT_SECRET",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "user", Required: true},
			&cli.StringFlag{Name: "role", Value: model.RoleUser},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := config.Read()
			if err != nil {
				return err
			}
			security.InitJWT([]byte(cfg.JWTKey), cfg.JWTExp)
			tok, err := security.GenerateToken(cmd.Int64("user"), cmd.String("role"))
			if err != nil {
				return err
			}
			fmt.Println(tok)
			return nil
		},
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "apply the database schema",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			config.Load()
			database.Connect(config.AppConfig.DBConnStr)
			defer database.Close()
			if err := database.Migrate(ctx, database.DB); err != nil {
				return err
			}
			color.Green("schema applied")
			return nil
		},
	}
}

func leaderboardCommand() *cli.Command {
	return &cli.Command{
		Name:  "leaderboard",
		Usage: "print a contest leaderboard",
		Flags: []cli.Flag{&cli.Int64Flag{Name: "contest", Required: true}},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			config.Load()
			database.Connect(config.AppConfig.DBConnStr)
			defer database.Close()

			contests := service.NewContestService(
				repository.NewPgContestRepository(database.DB),
				repository.NewPgProblemRepository(database.DB),
				repository.NewPgUserRepository(database.DB),
				repository.NewPgRatingRepository(database.DB),
			)
			entries, err := contests.Leaderboard(ctx, cmd.Int64("contest"))
			if err != nil {
				return err
			}
			printLeaderboard(os.Stdout, entries)
			return nil
		},
	}
}

func ratingsCommand() *cli.Command {
	return &cli.Command{
		Name:  "ratings",
		Usage: "finalise rating changes for an ended contest",
		Flags: []cli.Flag{&cli.Int64Flag{Name: "contest", Required: true}},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			config.Load()
			cfg := config.AppConfig
			database.Connect(cfg.DBConnStr)
			defer database.Close()
			queue.ConnectRedis()
			defer queue.CloseRedis()

			ratings := service.NewRatingService(
				repository.NewPgContestRepository(database.DB),
				repository.NewPgSubmissionRepository(database.DB),
				repository.NewPgUserRepository(database.DB),
				repository.NewPgRatingRepository(database.DB),
				queue.RDB, cfg.QueuePrefix, cfg.RatingLockTTL, cfg.RatingMaxDelta,
			)
			update, err := ratings.UpdateRatings(ctx, cmd.Int64("contest"))
			if err != nil {
				return err
			}
			printRatingRecords(os.Stdout, update.Records)
			color.Green("%d participants, %d new records", update.Participants, update.Inserted)
			return nil
		},
	}
}

func rateCommand() *cli.Command {
	return &cli.Command{
		Name:      "rate",
		Usage:     "preview rating changes from a standings file without touching the database",
		ArgsUsage: "<standings.toml>",
		Flags:     []cli.Flag{&cli.IntFlag{Name: "max-delta", Value: 150}},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return fmt.Errorf("expected one standings file")
			}
			data, err := os.ReadFile(cmd.Args().First())
			if err != nil {
				return err
			}
			changes, err := previewRatings(data, int(cmd.Int("max-delta")))
			if err != nil {
				return err
			}
			printChanges(os.Stdout, changes)
			return nil
		},
	}
}

func languagesCommand() *cli.Command {
	return &cli.Command{
		Name:  "languages",
		Usage: "list language recipes and their worker partitions",
		Flags: []cli.Flag{&cli.StringFlag{Name: "file", Usage: "recipe overrides in TOML"}},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			langs := language.Default()
			if path := cmd.String("file"); path != "" {
				var err error
				if langs, err = language.LoadFile(path); err != nil {
					return err
				}
			}
			bold := color.New(color.Bold).SprintFunc()
			for _, l := range langs.Languages() {
				recipe, err := langs.Recipe(l)
				if err != nil {
					return err
				}
				kind := "interpreted"
				if recipe.Compiled() {
					kind = "compiled"
				}
				fmt.Printf("%-12s %-8s %s\n", bold(l), langs.Partition(l), kind)
			}
			return nil
		},
	}
}
