package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"metasolver/internal/config"
	"metasolver/internal/journal"

	"github.com/spf13/cobra"
)

func checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run diagnostic checks against the configuration and the completion provider",
		Long: `Verifies that Meta Solver's configuration, credentials, prompt catalog,
journal and completion provider are usable. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("Meta Solver check v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			var passed, failed, warned int

			cfg, err := loadConfig()
			if err != nil {
				printFail("Config", err.Error())
				return fmt.Errorf("configuration is invalid")
			}
			printPass("Config", describeSource())
			passed++

			if err := config.RequireServe(cfg); err != nil {
				printFail("Credentials", err.Error())
				failed++
			} else {
				printPass("Credentials", "all required settings present")
				passed++
			}

			cat, err := loadCatalog(cfg)
			if err != nil {
				printFail("Prompt catalog", err.Error())
				failed++
			} else {
				printPass("Prompt catalog", fmt.Sprintf("%d gratitude tokens", len(cat.Gratitude)))
				passed++
			}

			if cfg.Journal.Path != "" {
				if err := checkJournal(cfg.Journal.Path); err != nil {
					printFail("Journal", err.Error())
					failed++
				} else {
					printPass("Journal", cfg.Journal.Path)
					passed++
				}
			} else {
				printWarn("Journal", "disabled")
				warned++
			}

			if err := checkPort(cfg.Server.Addr()); err != nil {
				printWarn("Port", fmt.Sprintf("%s may be in use: %v", cfg.Server.Addr(), err))
				warned++
			} else {
				printPass("Port", cfg.Server.Addr()+" available")
				passed++
			}

			if cat != nil && cfg.OpenAI.APIKey != "" {
				_, prov := newRequester(cfg, cat)
				ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
				err := prov.Healthy(ctx)
				cancel()
				if err != nil {
					printFail("Provider: "+prov.Name(), err.Error())
					failed++
				} else {
					printPass("Provider: "+prov.Name(), cfg.OpenAI.Model)
					passed++
				}
			}

			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				return fmt.Errorf("%d check(s) failed", failed)
			}
			return nil
		},
	}
}

func describeSource() string {
	if configPath == "" {
		return "defaults + environment"
	}
	return configPath + " + environment"
}

func checkJournal(path string) error {
	store, err := journal.NewSQLiteStore(path, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := store.Recent(ctx, 1); err != nil {
		return fmt.Errorf("not readable: %w", err)
	}
	return nil
}

func checkPort(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

func printPass(check, detail string) {
	fmt.Fprintf(os.Stdout, "  [PASS] %-20s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Fprintf(os.Stdout, "  [FAIL] %-20s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Fprintf(os.Stdout, "  [WARN] %-20s %s\n", check, detail)
}
