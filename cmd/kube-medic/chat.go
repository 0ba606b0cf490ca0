/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/tranductrinh/kube-medic/internal/supervisor"
)

// ANSI color codes
const (
	colorReset = "\033[0m"
	colorRed   = "\033[31m"
	colorGreen = "\033[32m"
	colorCyan  = "\033[36m"
	colorBold  = "\033[1m"
	colorDim   = "\033[2m"
)

// asker answers one question on a thread. *supervisor.Supervisor
// satisfies it.
type asker interface {
	Handle(ctx context.Context, question, threadID string) (supervisor.Answer, error)
}

type chatOptions struct {
	question string
	noColor  bool
}

func newChatCommand(opts *rootOptions) *cobra.Command {
	var co chatOptions
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Ask questions interactively",
		Long: `Starts an interactive session. Each session is one conversation thread,
so follow-up questions can refer to earlier answers.

Commands:
  new         start a new thread
  quit, exit  leave`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			ctx := ctrl.SetupSignalHandler()
			eng, err := buildEngine(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = eng.Close() }()

			s := newSession(eng.supervisor, cmd.OutOrStdout(), !co.noColor && isTerminal(os.Stdout))
			if co.question != "" {
				return s.ask(ctx, co.question)
			}
			return s.loop(ctx, cmd.InOrStdin())
		},
	}
	cmd.Flags().StringVarP(&co.question, "question", "q", "", "Ask one question and exit")
	cmd.Flags().BoolVar(&co.noColor, "no-color", false, "Disable colored output")
	return cmd
}

type session struct {
	asker  asker
	out    io.Writer
	color  bool
	thread string
}

func newSession(a asker, out io.Writer, color bool) *session {
	return &session{asker: a, out: out, color: color, thread: newThreadID()}
}

func newThreadID() string {
	return "session-" + uuid.NewString()
}

func (s *session) paint(color, text string) string {
	if !s.color {
		return text
	}
	return color + text + colorReset
}

// loop reads questions line by line until EOF, quit or ctx is done.
func (s *session) loop(ctx context.Context, in io.Reader) error {
	fmt.Fprintf(s.out, "%s thread %s\n", s.paint(colorBold, "kube-medic"), s.paint(colorDim, s.thread))
	fmt.Fprintln(s.out, s.paint(colorDim, "Type a question, 'new' for a new thread, 'quit' to leave."))

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for {
		fmt.Fprint(s.out, s.paint(colorCyan, "you> "))
		if !scanner.Scan() {
			fmt.Fprintln(s.out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "quit", "exit":
			fmt.Fprintln(s.out, "Bye.")
			return nil
		case "new":
			s.thread = newThreadID()
			fmt.Fprintf(s.out, "Started thread %s\n", s.paint(colorDim, s.thread))
			continue
		}
		if err := s.ask(ctx, line); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(s.out, "%s %v\n\n", s.paint(colorRed, "error:"), err)
		}
	}
}

// ask prints the answer to one question.
func (s *session) ask(ctx context.Context, question string) error {
	answer, err := s.asker.Handle(ctx, question, s.thread)
	if err != nil {
		return err
	}

	label := "medic"
	if len(answer.Agents) > 0 {
		label += " (" + strings.Join(answer.Agents, ", ") + ")"
	}
	fmt.Fprintf(s.out, "%s\n%s\n", s.paint(colorGreen+colorBold, label+">"), answer.Text)
	if answer.Inconclusive {
		fmt.Fprintln(s.out, s.paint(colorDim, "(inconclusive: a specialist hit its step limit)"))
	}
	fmt.Fprintln(s.out)
	return nil
}

// isTerminal reports whether f is a character device.
func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
