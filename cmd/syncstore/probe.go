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

	"syncStore/pkg/log"

	"github.com/spf13/cobra"
)

// errStoreDown is returned when at least one store failed its probe.
var errStoreDown = errors.New("store unhealthy")

// NewProbeCommand creates the probe command.
func NewProbeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Check both stores once",
		Long: `Run the health probe against the preferred and the secondary store and
print the result. Exits non-zero when either store is down.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProbe(cmd, rootOpts)
		},
	}
}

// ProbeResult is the outcome of probing one store.
type ProbeResult struct {
	Name    string `json:"name"`
	Role    string `json:"role"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

func runProbe(cmd *cobra.Command, opts *RootOptions) error {
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

	var results []ProbeResult
	down := 0
	for _, rs := range a.stores() {
		res := ProbeResult{Name: rs.store.Name(), Role: rs.role, Healthy: true}
		if err := a.prober.Check(cmd.Context(), rs.store); err != nil {
			res.Healthy = false
			res.Error = err.Error()
			down++
		}
		results = append(results, res)
	}

	if err := writeProbeResults(cmd.OutOrStdout(), opts.Format, results); err != nil {
		return err
	}
	if down > 0 {
		return fmt.Errorf("%w: %d of %d", errStoreDown, down, len(results))
	}
	return nil
}

func writeProbeResults(w io.Writer, format string, results []ProbeResult) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	for _, r := range results {
		state := "up"
		if !r.Healthy {
			state = "down (" + r.Error + ")"
		}
		if _, err := fmt.Fprintf(w, "%-10s %-10s %s\n", r.Role, r.Name, state); err != nil {
			return err
		}
	}
	return nil
}
