package main

import (
	"github.com/spf13/cobra"

	"github.com/kbukum/opkit/bootstrap"
	"github.com/kbukum/opkit/config"
)

const appName = "opkit"

type globalFlags struct {
	configFile   string
	envFile      string
	pipelinesDir string
	logLevel     string
}

// RootCmd builds the opkit command tree.
func RootCmd() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           appName,
		Short:         "Composable operation pipeline runtime",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&flags.configFile, "config", "c", "", "config file (default: search ./opkit.yml, ./config/opkit.yml)")
	pf.StringVar(&flags.envFile, "env-file", "", ".env file to load")
	pf.StringVarP(&flags.pipelinesDir, "pipelines", "p", "", "directory of pipeline definitions (overrides pipelines_dir)")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")

	root.AddCommand(
		RunCmd(flags),
		ListCmd(flags),
		ServeCmd(flags),
		ConfigCmd(flags),
		VersionCmd(),
	)
	return root
}

// loadConfig reads configuration and applies command-line overrides. Logs
// go to stderr so command output on stdout stays clean. quiet lowers the
// default level for one-shot commands.
func loadConfig(flags *globalFlags, quiet bool) (*config.Config, error) {
	var opts []config.LoaderOption
	if flags.configFile != "" {
		opts = append(opts, config.WithConfigFile(flags.configFile))
	}
	if flags.envFile != "" {
		opts = append(opts, config.WithEnvFile(flags.envFile))
	}

	cfg, err := config.Load(appName, opts...)
	if err != nil {
		return nil, err
	}
	if flags.pipelinesDir != "" {
		cfg.PipelinesDir = flags.pipelinesDir
	}
	cfg.Logging.Output = "stderr"
	switch {
	case flags.logLevel != "":
		cfg.Logging.Level = flags.logLevel
	case quiet:
		cfg.Logging.Level = "warn"
	}
	return cfg, nil
}

func newApp(flags *globalFlags, quiet bool) (*bootstrap.App, error) {
	cfg, err := loadConfig(flags, quiet)
	if err != nil {
		return nil, err
	}
	return bootstrap.NewApp(cfg)
}
