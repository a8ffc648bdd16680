// Copyright 2026 seufi project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// seufi-scan runs the vulnerability bisection analysis over a range of seeds
// and writes the vulnerability CSV log: for every seed either "not
// vulnerable with N faults" or the earliest fault responsible for the
// divergence and the net it hit.
package main

import (
	"flag"

	"github.com/seufi/seufi/pkg/campaign"
	"github.com/seufi/seufi/pkg/log"
	"github.com/seufi/seufi/pkg/run"
	"github.com/seufi/seufi/pkg/tool"
	"github.com/seufi/seufi/simctl"
	_ "github.com/seufi/seufi/simctl/simtest"
)

var (
	flagConfig    = flag.String("config", "", "campaign config file")
	flagSeedStart = flag.Int64("seed-start", 1, "first seed to analyze")
	flagSeeds     = flag.Int("seeds", 1, "number of consecutive seeds to analyze")
	flagDebug     = flag.Bool("debug", false, "pass debug flag to the simulator backend")
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
	var vulnLog *run.VulnLog
	if cfg.VulnLog != "" {
		vulnLog, err = run.OpenVulnLog(cfg.VulnLog)
		if err != nil {
			tool.Fail(err)
		}
		defer vulnLog.Close()
	}
	scanner, err := camp.Scanner(vulnLog)
	if err != nil {
		tool.Fail(err)
	}

	var seeds []int64
	for i := 0; i < *flagSeeds; i++ {
		seeds = append(seeds, *flagSeedStart+int64(i))
	}
	results, err := scanner.Scan(seeds)
	vulnerable := 0
	for _, res := range results {
		if res.Vulnerable {
			vulnerable++
		}
	}
	log.Logf(0, "analyzed %v seeds: %v vulnerable", len(results), vulnerable)
	if err != nil {
		tool.Fail(err)
	}
}
