package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/pg-sharding/lyx/lyx"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/pg-sharding/shrouter/pkg/config"
	"github.com/pg-sharding/shrouter/pkg/spqrlog"
	"github.com/pg-sharding/shrouter/router/binder"
	"github.com/pg-sharding/shrouter/router/metrics"
	"github.com/pg-sharding/shrouter/router/qrouter"
	"github.com/pg-sharding/shrouter/router/rfqn"
	"github.com/pg-sharding/shrouter/router/rule"
	"github.com/pg-sharding/shrouter/router/rulesource"
	"github.com/pg-sharding/shrouter/router/stmtctx"
)

var (
	rulePath   string
	rcfgPath   string
	logLevel   string
	jaegerURL  string
	table      string
	column     string
	value      string
	category   string
	inTx       bool
	noCrossSh  bool
	hintSource string
	sqlText    string
	params     []string

	metricsAddr string
)

var rootCmd = &cobra.Command{
	Use:   "routectl -c rules.yaml",
	Short: "inspect sharding rules and routes",
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if rcfgPath != "" {
			if _, err := config.LoadRouterCfg(rcfgPath); err != nil {
				return err
			}
			rcfg := config.RouterConfig()
			if !cmd.Flags().Changed("log-level") {
				logLevel = rcfg.LogLevel
			}
			if !cmd.Flags().Changed("rules") && rcfg.RuleFile != "" {
				rulePath = rcfg.RuleFile
			}
			if rcfg.LogMinDurationRoute != "" {
				d, err := time.ParseDuration(rcfg.LogMinDurationRoute)
				if err != nil {
					return err
				}
				spqrlog.ReloadRLogger(d)
			}
		}
		return spqrlog.UpdateZeroLogLevel(logLevel)
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "validate a rule file and print its data nodes",
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, err := rulesource.LoadFile(rulePath)
		if err != nil {
			return err
		}
		printRule(cmd.OutOrStdout(), snap)
		return nil
	},
}

var routeCmd = &cobra.Command{
	Use:   "route",
	Short: "route a statement or a point lookup against a rule file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if table == "" && sqlText == "" {
			return errors.New("--sql or --table is required")
		}
		if jaegerURL != "" {
			closer, err := initJaegerTracer(jaegerURL)
			if err != nil {
				return err
			}
			defer func() {
				_ = closer.Close()
			}()
		}

		holder := rule.NewHolder()
		if _, err := rulesource.PublishFile(holder, rulePath); err != nil {
			return err
		}
		router, err := qrouter.NewQrouter(qrouter.ModeFor(holder.Load()), holder,
			qrouter.WithDecorators(qrouter.ReadWriteSplit{}))
		if err != nil {
			return err
		}

		var stmt *stmtctx.Context
		if sqlText != "" {
			stmt, err = parseSQL(sqlText)
		} else {
			stmt, err = pointLookup()
		}
		if err != nil {
			return err
		}
		q := qrouter.Query{Stmt: stmt}
		for _, p := range params {
			q.Params = append(q.Params, parseValue(p))
		}
		rc, err := router.Route(cmd.Context(), q, qrouter.ConnectionContext{
			InTransaction:      inTx,
			DisallowCrossShard: noCrossSh,
		})
		if err != nil {
			return err
		}
		for _, line := range qrouter.Explain(rc) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), line)
		}
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "follow the sharding rule stored in etcd",
	RunE: func(cmd *cobra.Command, args []string) error {
		if rcfgPath == "" {
			return errors.New("--router-config with an etcd section is required")
		}
		holder := rule.NewHolder()
		w, err := rulesource.NewEtcdWatcher(config.RouterConfig().Etcd, holder)
		if err != nil {
			return err
		}
		defer func() {
			_ = w.Close()
		}()

		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		if metricsAddr != "" {
			go func() {
				_ = metrics.Serve(ctx, metricsAddr, holder)
			}()
		}
		return w.Run(ctx)
	},
}

var categories = map[string]stmtctx.Category{
	"select": stmtctx.Select,
	"update": stmtctx.Update,
	"delete": stmtctx.Delete,
}

// parseSQL parses one statement and binds it for routing.
func parseSQL(sql string) (*stmtctx.Context, error) {
	node, err := lyx.Parse(sql)
	if err != nil {
		return nil, errors.Wrapf(err, "parse %q", sql)
	}
	opts := []binder.Option{binder.WithSQL(sql)}
	if hintSource != "" {
		opts = append(opts, binder.WithHint(&stmtctx.Hint{DataSource: hintSource}))
	}
	return binder.Bind(node, opts...)
}

// pointLookup builds "<category> ... FROM table WHERE column = value".
func pointLookup() (*stmtctx.Context, error) {
	cat, ok := categories[strings.ToLower(category)]
	if !ok {
		return nil, errors.Errorf("unsupported statement category %q", category)
	}
	stmt := &stmtctx.Context{
		Category: cat,
		SQL:      fmt.Sprintf("%s %s", category, table),
		Tables:   []stmtctx.TableRef{{Name: rfqn.RelationFQN{RelationName: strings.ToLower(table)}}},
	}
	if column != "" {
		stmt.SQL += fmt.Sprintf(" WHERE %s = %s", column, value)
		stmt.Where = &stmtctx.Compare{
			Column: stmtctx.ColumnRef{Name: strings.ToLower(column)},
			Op:     stmtctx.OpEq,
			Value:  stmtctx.Literal{Value: parseValue(value)},
		}
	}
	if hintSource != "" {
		stmt.Hint = &stmtctx.Hint{DataSource: hintSource}
	}
	return stmt, nil
}

func parseValue(v string) any {
	if n, err := strconv.ParseInt(v, 10, 64); err == nil {
		return n
	}
	return v
}

func printRule(w io.Writer, snap *rule.Snapshot) {
	_, _ = fmt.Fprintf(w, "data sources: %s (default %s)\n", strings.Join(snap.DataSources, ", "), snap.DefaultDataSource)

	names := make([]string, 0, len(snap.Tables))
	for n := range snap.Tables {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		nodes := make([]string, 0, len(snap.Tables[n].DataNodes))
		for _, dn := range snap.Tables[n].DataNodes {
			nodes = append(nodes, dn.String())
		}
		_, _ = fmt.Fprintf(w, "%s: %s\n", n, strings.Join(nodes, ", "))
	}
	for _, g := range snap.BindingGroups {
		_, _ = fmt.Fprintf(w, "binding: %s\n", strings.Join(g, ", "))
	}
	if len(snap.BroadcastTables) > 0 {
		_, _ = fmt.Fprintf(w, "broadcast: %s\n", strings.Join(snap.BroadcastTables, ", "))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&rulePath, "rules", "c", "rules.yaml", "path to sharding rule file")
	rootCmd.PersistentFlags().StringVar(&rcfgPath, "router-config", "", "path to router config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "error", "log level")

	routeCmd.Flags().StringVar(&sqlText, "sql", "", "statement to parse and route")
	routeCmd.Flags().StringSliceVar(&params, "param", nil, "statement parameter, in $n order")
	routeCmd.Flags().StringVar(&table, "table", "", "logic table name")
	routeCmd.Flags().StringVar(&column, "column", "", "sharding column compared for equality")
	routeCmd.Flags().StringVar(&value, "value", "", "value the column equals")
	routeCmd.Flags().StringVar(&category, "category", "select", "statement category: select, update or delete")
	routeCmd.Flags().BoolVar(&inTx, "in-tx", false, "route as if inside a transaction")
	routeCmd.Flags().BoolVar(&noCrossSh, "no-cross-shard", false, "reject routes spanning several data sources")
	routeCmd.Flags().StringVar(&hintSource, "hint-data-source", "", "force the data source")
	routeCmd.Flags().StringVar(&jaegerURL, "jaeger-url", "", "jaeger sampling server url, enables tracing")

	watchCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")

	rootCmd.AddCommand(checkCmd, routeCmd, watchCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		spqrlog.Zero.Error().Err(err).Msg("")
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
