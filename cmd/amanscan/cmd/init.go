package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanscan/configs"
	"github.com/Aman-CERP/amanscan/internal/config"
	"github.com/Aman-CERP/amanscan/internal/ignore"
	"github.com/Aman-CERP/amanscan/internal/output"
	"github.com/Aman-CERP/amanscan/pkg/version"
)

// mcpServerName is the key amanscan registers under in .mcp.json.
const mcpServerName = "amanscan"

// MCPServerConfig represents one server entry in .mcp.json.
type MCPServerConfig struct {
	Type    string            `json:"type,omitempty"`
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Cwd     string            `json:"cwd,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// MCPConfig represents the root .mcp.json structure.
type MCPConfig struct {
	MCPServers map[string]MCPServerConfig `json:"mcpServers"`
}

func newInitCmd() *cobra.Command {
	var (
		force bool
		mcp   bool
	)

	cmd := &cobra.Command{
		Use:   "init [dir]",
		Short: "Write amanscan config templates for a project",
		Long: `Write amanscan config templates for a project.

This command creates:
1. .amanscan.yaml with every setting at its default
2. .amanscanignore with the pattern syntax explained

With --mcp it also registers 'amanscan serve' in the project's .mcp.json.
Existing files are kept unless --force is given; overwritten files are
backed up next to the original first.`,
		Example: `  # Initialize the current directory
  amanscan init

  # Overwrite existing templates and register the MCP server
  amanscan init --force --mcp`,
		Args: wrapArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			return runInit(cmd, dir, force, mcp)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing files (a backup is kept)")
	cmd.Flags().BoolVar(&mcp, "mcp", false, "Register the MCP server in .mcp.json")

	return cmd
}

func runInit(cmd *cobra.Command, dir string, force, mcp bool) error {
	out := output.New(cmd.OutOrStdout())

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil || !info.IsDir() {
		return usageError(fmt.Errorf("not a directory: %s", dir))
	}

	out.Statusf(">", "amanscan %s - initializing %s", version.Version, absDir)

	if err := writeTemplate(out, filepath.Join(absDir, config.ProjectFileYAML), configs.ProjectConfigTemplate, force); err != nil {
		return err
	}
	if err := writeTemplate(out, filepath.Join(absDir, ignore.FileName), configs.IgnoreTemplate, force); err != nil {
		return err
	}

	if mcp {
		if err := registerMCP(out, absDir, force); err != nil {
			return err
		}
	}

	out.Newline()
	out.Statusf("", "Run 'amanscan %s' to scan.", dir)
	return nil
}

// writeTemplate writes content to path. An existing file is kept unless force
// is set, in which case it is backed up first.
func writeTemplate(out *output.Writer, path, content string, force bool) error {
	name := filepath.Base(path)
	if _, err := os.Stat(path); err == nil {
		if !force {
			out.Warningf("Existing %s preserved (use --force to overwrite)", name)
			return nil
		}
		backup, err := config.Backup(path)
		if err != nil {
			return err
		}
		out.Statusf("", "Backed up %s to %s", name, filepath.Base(backup))
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	out.Successf("Created %s", name)
	return nil
}

// registerMCP adds the amanscan server to .mcp.json in dir, keeping other servers.
func registerMCP(out *output.Writer, dir string, force bool) error {
	path := filepath.Join(dir, ".mcp.json")

	cfg := MCPConfig{MCPServers: make(map[string]MCPServerConfig)}
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return fmt.Errorf("failed to parse existing .mcp.json: %w", err)
		}
		if cfg.MCPServers == nil {
			cfg.MCPServers = make(map[string]MCPServerConfig)
		}
		if _, exists := cfg.MCPServers[mcpServerName]; exists && !force {
			out.Warning("amanscan already configured in .mcp.json")
			return nil
		}
	}

	command, err := os.Executable()
	if err != nil {
		command = mcpServerName
	}
	cfg.MCPServers[mcpServerName] = MCPServerConfig{
		Type:    "stdio",
		Command: command,
		Args:    []string{"serve"},
		Cwd:     dir,
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal .mcp.json: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write .mcp.json: %w", err)
	}
	out.Success("Registered MCP server in .mcp.json")
	return nil
}
