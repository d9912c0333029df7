package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yoki/data-agency/internal/dataset"
	"github.com/yoki/data-agency/internal/ux"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Interactive analysis session against one in-memory registry",
	Long: `Starts an interactive prompt. Datasets stay in memory between commands,
so repeated analyses skip re-reading the source files.

Commands:
  load <file> [name]     load a dataset
  datasets               list loaded datasets
  remove <name>          drop a dataset
  describe <name>        model-written dataset description
  analyze <request...>   run the repair loop against all loaded datasets
  usage                  show model spend
  quit                   save the session manifest and exit`,
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := openSession()
		if err != nil {
			return err
		}
		fmt.Println("dagency session. Type 'help' for commands, 'quit' to exit.")
		sc := bufio.NewScanner(os.Stdin)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for {
			fmt.Print("> ")
			if !sc.Scan() {
				break
			}
			line := strings.TrimSpace(sc.Text())
			if line == "" {
				continue
			}
			if line == "quit" || line == "exit" {
				break
			}
			if err := runSessionLine(reg, line); err != nil {
				fmt.Fprintf(os.Stderr, "✗ %v\n", err)
			}
		}
		return saveSession(reg)
	},
}

func runSessionLine(reg *dataset.Registry, line string) error {
	fields := strings.Fields(line)
	verb, rest := fields[0], fields[1:]
	switch verb {
	case "help":
		fmt.Println("commands: load, datasets, remove, describe, analyze, usage, quit")
		return nil
	case "load":
		if len(rest) < 1 {
			return fmt.Errorf("usage: load <file> [name]")
		}
		name := ""
		if len(rest) > 1 {
			name = rest[1]
		} else {
			base := filepath.Base(rest[0])
			name = strings.TrimSuffix(base, filepath.Ext(base))
		}
		d, err := dataset.Load(rest[0], name, dataset.DefaultLoadOptions())
		if err != nil {
			return err
		}
		reg.Put(d)
		s := d.Schema()
		fmt.Printf("✓ loaded %s: %d rows, %d columns\n", name, s.Rows, len(s.Columns))
		return nil
	case "datasets":
		schemas, err := reg.Schemas(reg.List())
		if err != nil {
			return err
		}
		fmt.Print(ux.DatasetList(schemas))
		return nil
	case "remove":
		if len(rest) != 1 {
			return fmt.Errorf("usage: remove <name>")
		}
		if !reg.Remove(rest[0]) {
			return fmt.Errorf("no dataset named %q", rest[0])
		}
		fmt.Printf("✓ removed %s\n", rest[0])
		return nil
	case "describe":
		if len(rest) != 1 {
			return fmt.Errorf("usage: describe <name>")
		}
		return describeInSession(reg, rest[0])
	case "analyze":
		if len(rest) == 0 {
			return fmt.Errorf("usage: analyze <request...>")
		}
		return analyzeInSession(reg, strings.Join(rest, " "))
	case "usage":
		return usageCmd.RunE(usageCmd, nil)
	default:
		return fmt.Errorf("unknown command %q (try 'help')", verb)
	}
}

func analyzeInSession(reg *dataset.Registry, request string) error {
	if len(reg.List()) == 0 {
		return fmt.Errorf("no datasets loaded")
	}
	a, err := buildAgency(reg)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h := a.Submit(request, reg.List())
	rep, err := waitRendering(ctx, a, h)
	if err != nil {
		return err
	}
	fmt.Print(ux.Report(rep))
	return nil
}

func describeInSession(reg *dataset.Registry, name string) error {
	schemas, err := reg.Schemas([]string{name})
	if err != nil {
		return err
	}
	rt, err := newRuntime()
	if err != nil {
		return err
	}
	resp, err := rt.Generate(context.Background(), describeRequest(schemas[0]))
	if err != nil {
		return err
	}
	desc := strings.TrimSpace(resp.Content())
	if desc == "" {
		return fmt.Errorf("model returned an empty description")
	}
	if err := reg.SetDescription(name, desc); err != nil {
		return err
	}
	fmt.Printf("✓ %s: %s\n", name, desc)
	return nil
}

func init() {
	rootCmd.AddCommand(sessionCmd)
}
