package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	mysqlmcp "github.com/rickchristie/mysql-mcp"
	"github.com/rickchristie/mysql-mcp/internal/meta"
	"github.com/rickchristie/mysql-mcp/internal/policy"
	"github.com/rickchristie/mysql-mcp/internal/sqldb"
)

// pingFunc tests connectivity for a loaded config.
type pingFunc func(ctx context.Context, config *mysqlmcp.ServerConfig) error

func newDoctorCmd(opts *cliOptions) *cobra.Command {
	var skipPing bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and database connectivity",
		Long: `Check the environment configuration, blocked pattern compilation and
database connectivity, then print connection snippets for AI agents.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := newViper(opts.envFile)
			if err != nil {
				return err
			}
			var ping pingFunc = pingMySQL
			if skipPing {
				ping = nil
			}
			if !doctor(cmd.Context(), os.Stderr, isTTY(os.Stderr.Fd()), v, ping) {
				return fmt.Errorf("doctor found problems")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&skipPing, "skip-ping", false, "do not connect to the database")
	return cmd
}

func pingMySQL(ctx context.Context, config *mysqlmcp.ServerConfig) error {
	db, err := sqldb.OpenMySQL(config.Connection, config.Pool)
	if err != nil {
		return err
	}
	defer db.Close()
	ctx, cancel := context.WithTimeout(ctx, pingTimeout(config.Connection))
	defer cancel()
	return db.Ping(ctx)
}

// doctor prints one check per line and reports whether all checks passed.
// A nil ping skips the connectivity check.
func doctor(ctx context.Context, w io.Writer, useColor bool, v *viper.Viper, ping pingFunc) bool {
	printBanner(w, useColor)
	fmt.Fprintf(w, "%s %s\n\n", meta.Name, meta.Version)

	config, ok := doctorValidateConfig(w, useColor, v)
	if ok && ping != nil {
		addr := net.JoinHostPort(config.Connection.Host, strconv.Itoa(config.Connection.Port))
		if err := ping(ctx, config); err != nil {
			printCheck(w, useColor, false, fmt.Sprintf("Database reachable (%s): %v", addr, err))
			ok = false
		} else {
			printCheck(w, useColor, true, fmt.Sprintf("Database reachable (%s)", addr))
		}
	}
	if !ok {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Fix the issues above and run '%s doctor' again.\n", meta.Name)
		return false
	}

	fmt.Fprintln(w)
	printAgentSnippets(w, useColor, config)
	return true
}

// doctorValidateConfig loads the config from v, printing check results.
// Returns the parsed config and true if all checks passed.
func doctorValidateConfig(w io.Writer, useColor bool, v *viper.Viper) (*mysqlmcp.ServerConfig, bool) {
	if file := v.ConfigFileUsed(); file != "" {
		printCheck(w, useColor, true, fmt.Sprintf("Env file loaded (%s)", file))
	}

	config, err := mysqlmcp.LoadServerConfig(v)
	if err != nil {
		printCheck(w, useColor, false, fmt.Sprintf("Configuration is valid: %v", err))
		return nil, false
	}
	printCheck(w, useColor, true, "Configuration is valid")

	if config.Connection.Database == "" {
		printWarning(w, useColor, "MYSQL_DATABASE is not set: statements must qualify table names")
	} else {
		printCheck(w, useColor, true, fmt.Sprintf("MYSQL_DATABASE is set (%s)", config.Connection.Database))
	}

	levels := config.AllowedRiskLevels
	if levels == nil {
		levels = policy.DefaultRiskLevels(config.Environment)
	}
	names := make([]string, len(levels))
	for i, l := range levels {
		names[i] = l.String()
	}
	printCheck(w, useColor, true, fmt.Sprintf("Environment %s allows %s", config.Environment, strings.Join(names, ", ")))

	printCheck(w, useColor, true, fmt.Sprintf("All blocked patterns compile (%d)", len(config.BlockedPatterns)))

	if config.DisableQueryCheck {
		printWarning(w, useColor, "ENABLE_QUERY_CHECK is off: statements run without risk evaluation")
	}
	if config.AllowSensitiveInfo {
		printWarning(w, useColor, "ALLOW_SENSITIVE_INFO is on: server variables are shown unredacted")
	}
	return config, true
}

// printCheck prints a colored ✓ or ✗ check line.
func printCheck(w io.Writer, useColor bool, pass bool, msg string) {
	mark, color := "✓", "\033[32m"
	if !pass {
		mark, color = "✗", "\033[31m"
	}
	if useColor {
		fmt.Fprintf(w, "  %s%s\033[0m %s\n", color, mark, msg)
	} else {
		fmt.Fprintf(w, "  %s %s\n", mark, msg)
	}
}

func printWarning(w io.Writer, useColor bool, msg string) {
	if useColor {
		fmt.Fprintf(w, "  \033[33m!\033[0m %s\n", msg)
	} else {
		fmt.Fprintf(w, "  ! %s\n", msg)
	}
}

// printAgentSnippets prints MCP connection config snippets for various AI agents.
func printAgentSnippets(w io.Writer, useColor bool, config *mysqlmcp.ServerConfig) {
	url := fmt.Sprintf("http://%s/sse", net.JoinHostPort(config.Server.Host, strconv.Itoa(config.Server.Port)))

	heading := func(title string) {
		if useColor {
			fmt.Fprintf(w, "\033[1;36m%s\033[0m\n", title)
		} else {
			fmt.Fprintln(w, title)
		}
	}

	subheading := func(title string) {
		if useColor {
			fmt.Fprintf(w, "  \033[1m%s\033[0m\n", title)
		} else {
			fmt.Fprintf(w, "  %s\n", title)
		}
	}

	heading("Agent Connection Snippets")
	fmt.Fprintln(w)

	subheading("Claude Code")
	fmt.Fprintf(w, "  Run this command to add the server:\n\n")
	fmt.Fprintf(w, "    claude mcp add --transport sse mysql %s\n\n", url)
	fmt.Fprintf(w, "  Or add to .mcp.json (project scope):\n\n")
	fmt.Fprintf(w, `  {
    "mcpServers": {
      "mysql": {
        "type": "sse",
        "url": "%s"
      }
    }
  }
`, url)
	fmt.Fprintln(w)

	subheading("Gemini CLI (~/.gemini/settings.json)")
	fmt.Fprintf(w, `  {
    "mcpServers": {
      "mysql": {
        "url": "%s"
      }
    }
  }
`, url)
	fmt.Fprintln(w)

	subheading("Cursor (.cursor/mcp.json)")
	fmt.Fprintf(w, `  {
    "mcpServers": {
      "mysql": {
        "url": "%s"
      }
    }
  }
`, url)
	fmt.Fprintln(w)

	subheading("Windsurf (~/.codeium/windsurf/mcp_config.json)")
	fmt.Fprintf(w, `  {
    "mcpServers": {
      "mysql": {
        "serverUrl": "%s"
      }
    }
  }
`, url)
}
