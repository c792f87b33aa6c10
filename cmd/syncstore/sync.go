// Copyright 2025 The axfor Authors
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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"syncStore/internal/reconcile"
	"syncStore/pkg/log"

	"github.com/spf13/cobra"
)

// errSyncIncomplete is returned when the pass was aborted or a copy failed.
var errSyncIncomplete = errors.New("reconciliation incomplete")

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one reconciliation pass and exit",
		Long: `Copy every record missing from one store into the other, once.

Exits non-zero when a store is unhealthy or any copy failed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, rootOpts)
		},
	}
}

func runSync(cmd *cobra.Command, opts *RootOptions) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	logger, err := log.InitFromConfig(cliLogConfig(cfg))
	if err != nil {
		return err
	}
	defer logger.Sync()

	a, err := newApp(cfg, logger.Zap(), nil)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rep := a.reconciler.SyncAll(ctx)
	if err := writeReport(cmd.OutOrStdout(), opts.Format, rep); err != nil {
		return err
	}
	if !rep.Succeeded() {
		if rep.Err != nil {
			return fmt.Errorf("%w: %v", errSyncIncomplete, rep.Err)
		}
		return errSyncIncomplete
	}
	return nil
}

type reportOutput struct {
	reconcile.Report
	Outcome string `json:"outcome"`
	Error   string `json:"error,omitempty"`
}

func writeReport(w io.Writer, format string, rep reconcile.Report) error {
	if format == "json" {
		out := reportOutput{Report: rep, Outcome: rep.Outcome()}
		if rep.Err != nil {
			out.Error = rep.Err.Error()
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	_, err := fmt.Fprintf(w, "outcome=%s copied_to_preferred=%d copied_to_secondary=%d failed=%d duration=%s\n",
		rep.Outcome(), rep.CopiedToPreferred, rep.CopiedToSecondary, rep.Failed, rep.Duration)
	return err
}
