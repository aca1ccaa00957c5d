package main

import (
	"context"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"

	"acorn/config"
	"acorn/db"
	"acorn/errs"
	"acorn/log"
	"acorn/mail"
	"acorn/metrics"
	"acorn/rpc"
	"acorn/tasks"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var enableMail bool

var rootCmd = &cobra.Command{
	Use:           "acorn",
	Short:         "Non-custodial wallet core",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Keep history and balances of watched addresses up to date",
	RunE: func(cmd *cobra.Command, args []string) error {
		log.Init()
		defer log.Sync()

		config.Load(true)
		db.Init()
		mail.Init(enableMail)

		defer mail.AlertIfErr()

		if err := db.Migrate(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		serveMetrics(config.GetMetricsAddr())

		tasks.Run(ctx, newClient())

		<-ctx.Done()
		log.Printf("Shutting down")
		return nil
	},
}

func init() {
	syncCmd.Flags().BoolVar(&enableMail, "mail", false, "If mail alert is enabled")

	rootCmd.AddCommand(syncCmd, balanceCmd, historyCmd, sendCmd)
}

func newClient() *rpc.Client {
	return rpc.NewClient(config.GetRPCs(),
		rpc.WithTimeout(config.GetRequestTimeout()),
		rpc.WithMaxInflight(config.GetGoroutines()),
	)
}

func serveMetrics(addr string) {
	if addr == "" {
		return
	}

	metrics.Register(prometheus.DefaultRegisterer)
	http.Handle("/metrics", promhttp.Handler())

	go func() {
		defer mail.AlertIfErr()

		log.Printf("Serving metrics on %s", addr)
		if err := http.ListenAndServe(addr, nil); err != nil {
			log.Error.Errorf("Metrics server stopped: %v", err)
		}
	}()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		if errs.IsValidation(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
