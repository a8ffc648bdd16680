// Copyright 2026 seufi project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// seufi-inject runs one fault-injection campaign against a simulator backend
// and writes the injection CSV log. With -http it serves prometheus metrics
// while the campaign runs.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/seufi/seufi/pkg/campaign"
	"github.com/seufi/seufi/pkg/log"
	"github.com/seufi/seufi/pkg/run"
	"github.com/seufi/seufi/pkg/tool"
	"github.com/seufi/seufi/pkg/vulnscan"
	"github.com/seufi/seufi/simctl"
	_ "github.com/seufi/seufi/simctl/simtest"
)

var (
	flagConfig = flag.String("config", "", "campaign config file")
	flagSeed   = flag.Int64("seed", 1, "run seed")
	flagDebug  = flag.Bool("debug", false, "pass debug flag to the simulator backend")
)

func main() {
	defer tool.Init()()
	cfg, err := campaign.LoadConfig(*flagConfig)
	if err != nil {
		tool.Fail(err)
	}
	nm, err := campaign.LoadNetMap(cfg.Netmap)
	if err != nil {
		tool.Fail(err)
	}
	sim, err := simctl.Create(cfg.Simulator, &simctl.Env{
		Debug:  *flagDebug,
		Config: cfg.SimulatorConfig,
	})
	if err != nil {
		tool.Fail(err)
	}
	camp, err := campaign.New(sim, cfg, nm)
	if err != nil {
		tool.Fail(err)
	}

	ctx := run.NewContext(*flagSeed)
	if cfg.InjectionLog != "" {
		ctx.InjectionLog, err = run.OpenInjectionLog(cfg.InjectionLog)
		if err != nil {
			tool.Fail(err)
		}
		defer ctx.InjectionLog.Close()
	}

	var g errgroup.Group
	var server *http.Server
	if cfg.HTTP != "" {
		// The metrics server is the only concurrency in the tool; it
		// never touches run state, only the stat registry.
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(ctx.Stats.Registry(), promhttp.HandlerOpts{}))
		server = &http.Server{Addr: cfg.HTTP, Handler: mux}
		g.Go(func() error {
			log.Logf(0, "serving metrics on http://%v/metrics", cfg.HTTP)
			if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		defer func() {
			if server != nil {
				shctx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				server.Shutdown(shctx)
			}
		}()
		res, err := camp.Run(ctx, vulnscan.RunOpts{Ceiling: cfg.MaxInjections})
		if err != nil {
			return err
		}
		log.Logf(0, "run finished: cause=%v t=%v injections=%v last=%v",
			res.Cause, res.ExecTime, res.Injections, res.LastNetPath)
		for _, ui := range ctx.Stats.Collect() {
			log.Logf(0, "stat %v: %v", ui.Name, ui.Value)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		tool.Fail(err)
	}
}
