// Package cli 实现运维命令行工具 aictl，直接读写编排器存储
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"ai-orchestrator/pkg/agents"
	"ai-orchestrator/pkg/approval"
	"ai-orchestrator/pkg/logger"
	"ai-orchestrator/pkg/orchestrator"
	"ai-orchestrator/pkg/store"
)

var (
	appVersion = "dev"
	appCommit  = "none"
	appDate    = "unknown"
)

// SetVersionInfo 设置通过 ldflags 注入的版本信息
func SetVersionInfo(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

// Option 定制 CLI，测试用
type Option func(*CLI)

// WithStore 使用给定存储而不是按配置打开
func WithStore(st store.Store) Option {
	return func(c *CLI) { c.store = st }
}

// WithProbe 替换 DevOps 代理的主机探针
func WithProbe(p agents.Probe) Option {
	return func(c *CLI) { c.probe = p }
}

// CLI 命令共享的状态
type CLI struct {
	v          *viper.Viper
	configPath string

	store  store.Store
	owned  bool
	probe  agents.Probe
	logger *logger.Logger
}

// NewRootCmd 构建 aictl 命令树
func NewRootCmd(opts ...Option) *cobra.Command {
	_, root := newCLI(opts...)
	return root
}

func newCLI(opts ...Option) (*CLI, *cobra.Command) {
	c := &CLI{v: viper.New(), probe: agents.SystemProbe}
	for _, opt := range opts {
		opt(c)
	}

	root := &cobra.Command{
		Use:   "aictl",
		Short: "Operator tool for the AI task orchestrator",
		Long: `aictl talks to the orchestrator's task queue and action log store directly.

It can enqueue tasks, run orchestrator ticks, list and decide pending
agent actions, and recover tasks stuck in IN_PROGRESS.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.loadConfig()
		},
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "path to config file (default configs/config.yaml if present)")
	root.PersistentFlags().Bool("debug", false, "enable debug logging")
	_ = c.v.BindPFlag("log.debug", root.PersistentFlags().Lookup("debug"))

	root.AddCommand(
		c.newSubmitCmd(),
		c.newTickCmd(),
		c.newTasksCmd(),
		c.newRequeueCmd(),
		c.newLogsCmd(),
		c.newDecisionCmd("approve", "Approve a PENDING_APPROVAL action log entry"),
		c.newDecisionCmd("reject", "Reject a PENDING_APPROVAL action log entry"),
		newHashPasswordCmd(),
		newVersionCmd(),
	)
	return c, root
}

// Execute 运行根命令
func Execute() error {
	c, root := newCLI()
	defer func() {
		if err := c.close(); err != nil {
			fmt.Fprintf(os.Stderr, "closing store: %v\n", err)
		}
	}()
	return root.ExecuteContext(context.Background())
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "aictl %s\ncommit: %s\nbuilt:  %s\n", appVersion, appCommit, appDate)
		},
	}
}

// openStore 按需打开存储
func (c *CLI) openStore() (store.Store, error) {
	if c.store != nil {
		return c.store, nil
	}
	cfg := c.storeConfig()
	st, err := store.NewStore(&cfg)
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.Type, err)
	}
	c.store = st
	c.owned = true
	return st, nil
}

func (c *CLI) close() error {
	if c.owned && c.store != nil {
		err := c.store.Close()
		c.store = nil
		c.owned = false
		return err
	}
	return nil
}

func (c *CLI) log() *logger.Logger {
	if c.logger == nil {
		c.logger = logger.New(logger.Options{Debug: c.v.GetBool("log.debug"), Console: os.Stderr})
	}
	return c.logger
}

func (c *CLI) orchestrator(st store.Store) *orchestrator.Orchestrator {
	return orchestrator.New(st, agents.NewDefaultRegistry(c.probe), nil, c.orchestratorOptions(), c.log().GetLogger("orchestrator"))
}

func (c *CLI) gate(st store.Store) *approval.Gate {
	return approval.NewGate(st, nil, c.log().GetLogger("approval"))
}

func writeln(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, format+"\n", args...)
}
