// Copyright 2025 walteh LLC
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
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/walteh/stedi/cmd/stedi/commands"
)

var debug bool

// NewRootCmd builds the stedi command tree.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "stedi",
		Short:         "stedi — structured, transactional search and replace",
		Long:          "A stream-oriented text transformation tool. Pair it with ripgrep for file selection, or feed it a plan document for multi-operation edits.",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(cmd)
		},
	}

	cmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug logging")

	cmd.AddCommand(commands.NewApplyCmd())
	cmd.AddCommand(commands.NewSchemaCmd())
	return cmd
}

// setupLogging configures zerolog on stderr; stdout belongs to the event
// stream and generated content.
func setupLogging(cmd *cobra.Command) {
	level := zerolog.WarnLevel
	if debug {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
	cmd.SetContext(log.WithContext(cmd.Context()))
}
