package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/bitfantasy/precast/internal/qc/entity"
	"github.com/bitfantasy/precast/internal/qcclient"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	rootCtx    context.Context
	rootCancel context.CancelFunc

	settings = viper.New()
)

var rootCmd = &cobra.Command{
	Use:           "qcctl",
	Short:         "Precast QC inspection client",
	Long:          `qcctl drives the piece inspection workflow of a precast QC server: arrange the queue, annotate drawings and record decisions.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		rootCtx, rootCancel = signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if rootCancel != nil {
			rootCancel()
		}
	},
	// 无子命令时进入检验工作台
	RunE: runInspect,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// GetContext returns the context cancelled on SIGINT/SIGTERM.
func GetContext() context.Context {
	if rootCtx == nil {
		return context.Background()
	}
	return rootCtx
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("server", "http://localhost:8080", "QC server base URL")
	pf.String("token", "", "bearer token")
	pf.StringP("workspace", "w", "", "workspace id")
	pf.StringP("form", "f", "", "form id")
	pf.StringP("type", "t", entity.InspectionTypePrePour, "inspection type (PRE_POUR, POST_POUR)")
	pf.String("log-file", "", "write debug logs to this file")
	settings.BindPFlags(pf)

	// QC_SERVER, QC_TOKEN, QC_WORKSPACE ...
	settings.SetEnvPrefix("qc")
	settings.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	settings.AutomaticEnv()

	rootCmd.Flags().Bool("no-mouse", false, "disable mouse support in the TUI")

	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(reorderCmd)
	rootCmd.AddCommand(moveCmd)
	rootCmd.AddCommand(completeCmd)
	rootCmd.AddCommand(recommendCmd)
	rootCmd.AddCommand(reportCmd)
}

func newClient() *qcclient.Client {
	return qcclient.New(settings.GetString("server"), qcclient.WithToken(settings.GetString("token")))
}

// scopeFromFlags 读取 --workspace/--form/--type
func scopeFromFlags() (entity.Scope, error) {
	scope := entity.Scope{
		WorkspaceID:    settings.GetString("workspace"),
		FormID:         settings.GetString("form"),
		InspectionType: strings.ToUpper(settings.GetString("type")),
	}
	if scope.WorkspaceID == "" || scope.FormID == "" {
		return scope, fmt.Errorf("--workspace and --form are required")
	}
	if !entity.ValidInspectionType(scope.InspectionType) {
		return scope, fmt.Errorf("invalid inspection type %q", scope.InspectionType)
	}
	return scope, nil
}

// newLogger logs to --log-file when set; the TUI owns the terminal otherwise.
func newLogger() (*zap.Logger, error) {
	path := settings.GetString("log-file")
	if path == "" {
		return zap.NewNop(), nil
	}
	cfg := zap.NewDevelopmentConfig()
	cfg.OutputPaths = []string{path}
	cfg.ErrorOutputPaths = []string{path}
	return cfg.Build()
}
