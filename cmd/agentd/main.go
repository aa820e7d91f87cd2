package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"AskWorld-Agents/internal/config"
)

var configPath string

// main 是智能体进程的入口，每个子命令启动一个智能体。
func main() {
	root := &cobra.Command{
		Use:           "agentd",
		Short:         "Walrus blob, transcriber and AskWorld agents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to agents.json (default: $ASKWORLD_CONFIG or configs/agents.json)")

	root.AddCommand(
		agentCmd("blob", "Run the Walrus blob storage agent", func(c *config.Config) *string { return &c.Server.BlobAddr }, buildBlob),
		agentCmd("transcriber", "Run the voice-to-text agent", func(c *config.Config) *string { return &c.Server.TranscriberAddr }, buildTranscriber),
		agentCmd("askworld", "Run the AskWorld contract agent", func(c *config.Config) *string { return &c.Server.AskWorldAddr }, buildAskWorld),
		allCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "agentd:", err)
		os.Exit(1)
	}
}

// builder 根据共享依赖构造一个智能体进程。
type builder func(ctx context.Context, d *deps) (*agentProcess, error)

func agentCmd(name, short string, addr func(*config.Config) *string, build builder) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   name,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			d, err := bootstrap(ctx, name, resolveConfigPath())
			if err != nil {
				return err
			}
			defer d.close()
			if listen != "" {
				*addr(d.cfg) = listen
			}
			proc, err := build(ctx, d)
			if err != nil {
				return err
			}
			return run(ctx, d, proc)
		},
	}
	cmd.Flags().StringVar(&listen, "addr", "", "listen address, overrides the configuration")
	return cmd
}

func allCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "all",
		Short: "Run the three agents in one process",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			d, err := bootstrap(ctx, "all", resolveConfigPath())
			if err != nil {
				return err
			}
			defer d.close()

			var procs []*agentProcess
			for _, build := range []builder{buildBlob, buildTranscriber, buildAskWorld} {
				proc, err := build(ctx, d)
				if err != nil {
					for _, p := range procs {
						p.close()
					}
					return err
				}
				procs = append(procs, proc)
			}
			return run(ctx, d, procs...)
		},
	}
}

// resolveConfigPath 依次使用 --config、ASKWORLD_CONFIG 与默认路径。
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if p := os.Getenv("ASKWORLD_CONFIG"); p != "" {
		return p
	}
	return filepath.Join("configs", "agents.json")
}
