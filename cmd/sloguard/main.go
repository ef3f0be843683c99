package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/xela07ax/sloguard/internal/domain"
	"github.com/xela07ax/sloguard/internal/infra"
)

// Коды выхода: 1 — ошибка рантайма, 2 — невалидная конфигурация
const exitConfig = 2

type cliError struct {
	code int
	err  error
}

func (e cliError) Error() string { return e.err.Error() }

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		var ce cliError
		if errors.As(err, &ce) {
			fmt.Fprintln(os.Stderr, ce.err)
			os.Exit(ce.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "sloguard",
		Short:         "SLO monitoring service: error budgets, burn rates and de-duplicated alerts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml (default: ./config.yaml or ./configs/config.yaml)")

	root.AddCommand(newServeCommand(&configPath))
	root.AddCommand(newValidateCommand(&configPath))
	return root
}

// loadConfig отделяет ошибки конфигурации (exit 2) от прочих
func loadConfig(path string) (*infra.Config, error) {
	cfg, err := infra.LoadConfig(path)
	if err != nil {
		var cfgErr *domain.ConfigurationError
		if errors.As(err, &cfgErr) {
			return nil, cliError{code: exitConfig, err: err}
		}
		return nil, err
	}
	return cfg, nil
}

func newServeCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler, HTTP API and gRPC health service",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func newValidateCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration and the SLO catalog, then print it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tTYPE\tTARGET\tWARNING BELOW\tBREACH BELOW\tWINDOW\tIMPACT")
			for _, t := range cfg.Targets {
				fmt.Fprintf(tw, "%s\t%s\t%.3f\t%.3f\t%.3f\t%s\t%s\n",
					t.Name, t.Kind, t.Objective,
					t.Objective-t.WarningThreshold, t.Objective-t.CriticalThreshold,
					t.Window, t.Impact)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d target(s) OK, source=%s, interval=%s\n",
				len(cfg.Targets), cfg.Monitor.Source, cfg.Monitor.Interval)
			return nil
		},
	}
}
