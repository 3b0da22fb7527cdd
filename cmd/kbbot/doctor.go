package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"kbbot/internal/config"
	"kbbot/internal/slackapp"
	"kbbot/internal/store"
)

type checker struct {
	out                    io.Writer
	passed, warned, failed int
}

func (c *checker) pass(check, detail string) {
	fmt.Fprintf(c.out, "  [PASS] %-20s %s\n", check, detail)
	c.passed++
}

func (c *checker) fail(check, detail string) {
	fmt.Fprintf(c.out, "  [FAIL] %-20s %s\n", check, detail)
	c.failed++
}

func (c *checker) warn(check, detail string) {
	fmt.Fprintf(c.out, "  [WARN] %-20s %s\n", check, detail)
	c.warned++
}

func doctorCmd() *cobra.Command {
	var online bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your kbbot installation",
		Long: `Verifies that kbbot's configuration, Slack credentials, knowledge base,
and lookup backend are set up. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			c := &checker{out: out}
			cfgPath := resolveConfigPath()
			fmt.Fprintf(out, "kbbot doctor v%s\n", version)
			fmt.Fprintf(out, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			if _, err := os.Stat(config.ExpandPath(cfgPath)); err != nil {
				c.warn("Config file", fmt.Sprintf("not found at %s, using defaults and environment", cfgPath))
			} else {
				c.pass("Config file", cfgPath)
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				c.fail("Config", err.Error())
				return c.summary()
			}
			c.pass("Config", "valid")

			if err := cfg.RequireSlack(); err != nil {
				c.fail("Slack credentials", err.Error())
			} else {
				c.pass("Slack credentials", "bot token and signing secret set")
				if online {
					checkSlackAuth(cmd.Context(), c, cfg)
				}
			}

			switch cfg.Lookup.Backend {
			case config.BackendHTTP:
				c.pass("Lookup backend", "http: "+cfg.Lookup.HTTP.URL)
			case config.BackendBedrock:
				region := cfg.AWS.Region
				if region == "" {
					c.warn("Lookup backend", "bedrock with no aws.region; the SDK default chain decides")
				} else {
					c.pass("Lookup backend", "bedrock "+cfg.Lookup.Bedrock.ModelID+" in "+region)
				}
			default:
				c.pass("Lookup backend", "knowledge")
			}

			if cfg.Lookup.Backend != config.BackendHTTP {
				checkKnowledge(cmd.Context(), c, cfg.Knowledge.DBPath)
			}

			if err := checkPort(cfg.Server.Host, cfg.Server.Port); err != nil {
				c.warn("Server port", fmt.Sprintf("port %d may be in use: %v", cfg.Server.Port, err))
			} else {
				c.pass("Server port", fmt.Sprintf(":%d available", cfg.Server.Port))
			}

			return c.summary()
		},
	}
	cmd.Flags().BoolVar(&online, "online", false, "also call Slack auth.test with the bot token")
	return cmd
}

func (c *checker) summary() error {
	fmt.Fprintf(c.out, "\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	fmt.Fprintf(c.out, "Results: %d passed, %d warnings, %d failed\n", c.passed, c.warned, c.failed)
	if c.failed > 0 {
		fmt.Fprintf(c.out, "\nPlease fix the failed checks before running kbbot.\n")
		return fmt.Errorf("%d check(s) failed", c.failed)
	}
	if c.warned > 0 {
		fmt.Fprintf(c.out, "\nkbbot should work but consider fixing the warnings.\n")
	} else {
		fmt.Fprintf(c.out, "\nAll checks passed! kbbot is ready to run.\n")
	}
	return nil
}

func checkSlackAuth(ctx context.Context, c *checker, cfg *config.Config) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	app := slackapp.New(slackapp.Config{
		BotToken:      cfg.Slack.BotToken,
		SigningSecret: cfg.Slack.SigningSecret,
		APIURL:        cfg.Slack.APIURL,
		Logger:        logger,
	})
	if err := app.Init(ctx); err != nil {
		c.fail("Slack auth.test", err.Error())
		return
	}
	c.pass("Slack auth.test", "token accepted")
}

func checkKnowledge(ctx context.Context, c *checker, dbPath string) {
	st, err := store.Open(dbPath, logger)
	if err != nil {
		c.fail("Knowledge base", err.Error())
		return
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := st.Ping(ctx); err != nil {
		c.fail("Knowledge base", fmt.Sprintf("cannot ping: %v", err))
		return
	}
	schema, _ := st.SchemaVersion()
	docs, err := st.ListDocuments(ctx)
	if err != nil {
		c.fail("Knowledge base", err.Error())
		return
	}
	if len(docs) == 0 {
		c.warn("Knowledge base", fmt.Sprintf("%s has no documents; run 'kbbot kb add'", dbPath))
		return
	}
	c.pass("Knowledge base", fmt.Sprintf("%s (schema v%d, %d documents)", dbPath, schema, len(docs)))
}

func checkPort(host string, port int) error {
	ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}
