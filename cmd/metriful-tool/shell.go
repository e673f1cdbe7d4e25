package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
	"github.com/google/shlex"

	"metriful-go/drivers/metriful"
)

func runShell(ctx context.Context, e *env, args []string) error {
	if err := newFlagSet(e, "shell", "").Parse(args); err != nil {
		return err
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "metriful> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    shellCompleter(),
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	e.out, e.errOut = rl.Stdout(), rl.Stderr()
	return shellLoop(ctx, e, rl.Readline)
}

func shellCompleter() *readline.PrefixCompleter {
	metricNames := func(string) []string { return names(metriful.Descriptors()) }
	var items []readline.PrefixCompleterInterface
	for _, name := range commandOrder {
		switch name {
		case "shell":
			continue
		case "read", "watch", "record":
			items = append(items, readline.PcItem(name, readline.PcItemDynamic(metricNames)))
		case "mode":
			items = append(items, readline.PcItem(name,
				readline.PcItem("standby"), readline.PcItem("cycle:3s"),
				readline.PcItem("cycle:100s"), readline.PcItem("cycle:300s")))
		case "clear":
			items = append(items, readline.PcItem(name, readline.PcItem("light"), readline.PcItem("sound")))
		default:
			items = append(items, readline.PcItem(name))
		}
	}
	items = append(items, readline.PcItem("help"), readline.PcItem("exit"))
	return readline.NewPrefixCompleter(items...)
}

// shellLoop runs commands read by readLine until exit, EOF or ctx is done.
// A failing command is reported and the loop carries on.
func shellLoop(ctx context.Context, e *env, readLine func() (string, error)) error {
	printShellHelp(e.out)
	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := readLine()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		words, err := shlex.Split(strings.TrimSpace(line))
		if err != nil {
			fmt.Fprintf(e.errOut, "Error: %v\n", err)
			continue
		}
		if len(words) == 0 {
			continue
		}

		switch name := strings.ToLower(words[0]); name {
		case "help", "?":
			printShellHelp(e.out)
		case "exit", "quit", "q":
			return nil
		default:
			cmd, ok := commands[name]
			if !ok || name == "shell" {
				fmt.Fprintf(e.errOut, "Unknown command: %s (type help)\n", name)
				continue
			}
			if err := cmd.run(ctx, e, words[1:]); err != nil && !errors.Is(err, flag.ErrHelp) {
				fmt.Fprintf(e.errOut, "Error: %v\n", err)
			}
		}
	}
}

func printShellHelp(w io.Writer) {
	fmt.Fprintln(w, "Commands:")
	for _, name := range commandOrder {
		if name == "shell" {
			continue
		}
		fmt.Fprintf(w, "  %-8s  %s\n", name, commands[name].summary)
	}
	fmt.Fprintln(w, "  help      Show this help")
	fmt.Fprintln(w, "  exit      Leave the shell")
}
