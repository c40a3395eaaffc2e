package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/ethereum/go-ethereum/log"
	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/urfave/cli/v2"
	"golang.org/x/term"

	"github.com/ethereum-optimism/infra/bettertest"
	"github.com/ethereum-optimism/infra/bettertest/exitcodes"
	"github.com/ethereum-optimism/infra/bettertest/flags"
	"github.com/ethereum-optimism/infra/bettertest/service"
	"github.com/ethereum-optimism/optimism/devnet-sdk/telemetry"
	"github.com/ethereum-optimism/optimism/op-service/cliapp"
	"github.com/ethereum-optimism/optimism/op-service/ctxinterrupt"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	terminal := bettertest.SaveTerminal(os.Stdin)

	app := cli.NewApp()
	app.Version = bettertest.FormatVersion(Version, GitCommit, GitDate)
	app.Name = "bettertest"
	app.Usage = "Compiler integration test harness"
	app.Description = "bettertest compiles, assembles, links and simulates every *_driver.c test case and writes a JUnit report"
	app.Flags = cliapp.ProtectFlags(flags.Flags)
	app.Action = cliapp.LifecycleCmd(func(ctx *cli.Context, closeApp context.CancelCauseFunc) (cliapp.Lifecycle, error) {
		return run(ctx, closeApp, terminal)
	})
	app.ExitErrHandler = func(c *cli.Context, err error) {
		if err == nil {
			return
		}
		_ = terminal.Restore()

		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			cli.HandleExitCoder(exitErr)
		} else if bettertest.IsRuntimeError(err) {
			cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.RuntimeErr))
		} else if bettertest.IsTestFailureError(err) {
			cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.TestFailure))
		} else {
			cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.TestFailure))
		}
	}

	// Start telemetry
	ctx, shutdown, err := telemetry.SetupOpenTelemetry(
		context.Background(),
		otelconfig.WithServiceName(app.Name),
		otelconfig.WithServiceVersion(app.Version),
	)
	if err != nil {
		log.Crit("Failed to setup open telemetry", "message", err)
	}
	defer shutdown()

	// Start CLI
	ctx = ctxinterrupt.WithSignalWaiterMain(ctx)
	err = app.RunContext(ctx, os.Args)
	_ = terminal.Restore()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Exception encountered: %v\n", err)
		os.Exit(exitcodes.RuntimeErr)
	}
}

func run(ctx *cli.Context, closeApp context.CancelCauseFunc, terminal *bettertest.TerminalState) (cliapp.Lifecycle, error) {
	logCfg := oplog.ReadCLIConfig(ctx)
	log := oplog.NewLogger(oplog.AppOut(ctx), logCfg)
	oplog.SetGlobalLogHandler(log.Handler())
	oplog.SetupDefaults()

	cfg, err := bettertest.NewConfig(ctx, log)
	if err != nil {
		// Wrap in RuntimeError to signal this should exit with code 2
		return nil, bettertest.NewRuntimeError(fmt.Errorf("failed to create config: %w", err))
	}
	cfg.Terminal = terminal
	cfg.Colored = term.IsTerminal(int(os.Stdout.Fd()))

	cfg.Log.Debug("Config", "config", cfg)

	svcCfg := serviceConfig(ctx)
	var svc *service.Service
	if svcCfg.Enabled() {
		svc = service.New(svcCfg, log)
		svc.Start(ctx.Context)
	}

	harness, err := bettertest.New(cfg, Version, func(err error) {
		if svc != nil {
			svc.Shutdown()
		}
		closeApp(err)
	})
	if err != nil {
		return nil, bettertest.NewRuntimeError(fmt.Errorf("failed to create harness: %w", err))
	}

	return harness, nil
}

// serviceConfig enables the metrics server from the standard metrics flags
// and the healthz server from its own flag
func serviceConfig(ctx *cli.Context) service.Config {
	var cfg service.Config
	if metricsCfg := opmetrics.ReadCLIConfig(ctx); metricsCfg.Enabled {
		cfg.MetricsAddr = net.JoinHostPort(metricsCfg.ListenAddr, strconv.Itoa(metricsCfg.ListenPort))
	}
	if ctx.Bool(flags.Healthz.Name) {
		cfg.HealthzAddr = service.DefaultHealthzAddr
	}
	return cfg
}
