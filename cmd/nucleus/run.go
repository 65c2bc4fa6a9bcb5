// Copyright 2024 The Nucleus Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/subcommands"
	"golang.org/x/sync/errgroup"

	"nucleus.dev/nucleus/pkg/abi/linux"
	"nucleus.dev/nucleus/pkg/arch"
	"nucleus.dev/nucleus/pkg/errors/linuxerr"
	"nucleus.dev/nucleus/pkg/kernel"
	"nucleus.dev/nucleus/pkg/log"
)

// runCmd implements subcommands.Command for the "run" command.
type runCmd struct {
	configFile string
	logLevel   string
}

// Name implements subcommands.Command.Name.
func (*runCmd) Name() string {
	return "run"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*runCmd) Synopsis() string {
	return "run the demo workload on the simulated CPU"
}

// Usage implements subcommands.Command.Usage.
func (*runCmd) Usage() string {
	return "run [-config <file>]\n"
}

// SetFlags implements subcommands.Command.SetFlags.
func (r *runCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&r.configFile, "config", "", "TOML configuration file")
	f.StringVar(&r.logLevel, "log-level", "", "override the configured log level")
}

// Execute implements subcommands.Command.Execute.
func (r *runCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...any) subcommands.ExitStatus {
	conf, err := loadConfig(r.configFile)
	if err != nil {
		log.Errorf("loading configuration: %v", err)
		return subcommands.ExitFailure
	}
	if r.logLevel != "" {
		conf.LogLevel = r.logLevel
	}
	if err := log.SetLevel(conf.LogLevel); err != nil {
		log.Errorf("%v", err)
		return subcommands.ExitUsageError
	}
	a, err := conf.arch()
	if err != nil {
		log.Errorf("%v", err)
		return subcommands.ExitUsageError
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-ctx.Done()
		log.Infof("shutdown requested")
		return nil
	})
	g.Go(func() error {
		return runWorkload(ctx, a, conf.Workload)
	})
	if err := g.Wait(); err != nil {
		log.Errorf("workload failed: %v", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// runWorkload drives the kernel from the idle context: worker tasks sleep a
// tick at a time and bump a shared counter under a mutex; at the configured
// tick they are killed with SIGTERM and their exit statuses reaped.
func runWorkload(ctx context.Context, a arch.Arch, w WorkloadConfig) error {
	k := kernel.New(kernel.Options{Arch: a})
	p := k.NewProcess("demo")

	mu := k.NewMutex()
	total := 0
	body := func(arg any) {
		for {
			k.Sleep(1)
			mu.Lock()
			total++
			mu.Unlock()
		}
	}

	tids := make([]kernel.ThreadID, 0, w.Workers)
	for i := 0; i < w.Workers; i++ {
		tid, err := k.CreateTask(p, body, fmt.Sprintf("worker%d", i), nil)
		if err != nil {
			return fmt.Errorf("creating worker %d: %w", i, err)
		}
		tids = append(tids, tid)
	}

	for tick := uint64(0); tick < w.Ticks; tick++ {
		if ctx.Err() != nil {
			break
		}
		k.Run()
		if w.KillAfter != 0 && tick == w.KillAfter {
			for _, tid := range tids {
				if err := k.SendSignal(p.ID(), tid, linux.SIGTERM, false); err != nil {
					log.Warningf("kill tid %v: %v", tid, err)
				}
			}
		}
		if w.TickInterval.Duration > 0 {
			time.Sleep(w.TickInterval.Duration)
		}
		k.Tick()
	}
	k.Run()

	for _, tid := range tids {
		status, err := k.ReapTask(tid)
		switch {
		case err == nil:
			log.Infof("worker tid %v: status %v", tid, linux.WaitStatus(status))
		case linuxerr.Equals(linuxerr.EAGAIN, err):
			log.Infof("worker tid %v: still alive", tid)
		default:
			log.Warningf("reaping tid %v: %v", tid, err)
		}
	}
	log.Infof("demo finished: %d wakeups across %d workers", total, w.Workers)
	return nil
}
