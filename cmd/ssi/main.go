// Command ssi loads a C source file, runs its globals pass, and drops into
// an interactive stepper: a REPL that advances the symbolic engine one
// statement (or one breakpoint) at a time and lets the operator inspect
// memory and values along the way.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"

	ssi "ssi.dev/core"
)

var (
	blueColor   = color.New(color.FgBlue)
	yellowColor = color.New(color.FgYellow)
	redColor    = color.New(color.FgRed)
	greenColor  = color.New(color.FgGreen)
	cyanColor   = color.New(color.FgCyan)
)

const banner = `  ___ ___ ___
 / __/ __|_ _|
 \__ \__ \| |
 |___/___/___|  symbolic source interpreter`

func main() {
	var (
		sourcePath = flag.String("source", "", "Path to the C source file to load")
		configPath = flag.String("config", "", "Path to an optional TOML session config")
	)
	flag.Parse()

	if *sourcePath == "" {
		log.Fatal("source not informed")
	}

	in, err := ssi.NewInterpreter(*sourcePath)
	if err != nil {
		log.Fatalf("can't load source: %s", err.Error())
	}

	paused := false
	pause := func(*ssi.Interpreter) { paused = true }

	if *configPath != "" {
		cfg, err := ssi.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("can't load config: %s", err.Error())
		}
		cfg.Apply(in, pause)
	}

	if err := in.GlobalsPass(); err != nil {
		log.Fatalf("globals pass failed: %s", err.Error())
	}
	if hooks := in.ModuleHooks(); hooks.Init != "" || hooks.Exit != "" {
		greenColor.Printf("module hooks: init=%q exit=%q\n", hooks.Init, hooks.Exit)
	}

	rl, err := readline.New("ssi> ")
	if err != nil {
		log.Fatalf("can't start readline: %s", err.Error())
	}
	defer rl.Close()

	printBanner(os.Stdout)
	runStepper(in, rl, os.Stdout, &paused)
}

func printBanner(w io.Writer) {
	blueColor.Fprintln(w, strings.Repeat("-", 60))
	greenColor.Fprintln(w, banner)
	blueColor.Fprintln(w, strings.Repeat("-", 60))
	cyanColor.Fprintln(w, "step | continue | print <name> | pyify | .exit")
	blueColor.Fprintln(w, strings.Repeat("-", 60))
}

// runStepper is the REPL's main loop: each line is a stepper command,
// evaluated with panic recovery so a single bad command doesn't kill the
// session.
func runStepper(in *ssi.Interpreter, rl *readline.Instance, writer io.Writer, paused *bool) {
	for {
		line, err := rl.Readline()
		if err != nil {
			fmt.Fprintln(writer, "goodbye")
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == ".exit" {
			fmt.Fprintln(writer, "goodbye")
			return
		}
		rl.SaveHistory(line)
		runCommand(in, writer, paused, line)
	}
}

func runCommand(in *ssi.Interpreter, writer io.Writer, paused *bool, line string) {
	defer func() {
		if r := recover(); r != nil {
			redColor.Fprintf(writer, "[runtime error] %v\n", r)
		}
	}()

	fields := strings.Fields(line)
	switch fields[0] {
	case "step":
		stepOnce(in, writer)
	case "continue":
		*paused = false
		for !*paused {
			if !stepOnce(in, writer) {
				break
			}
		}
	case "print":
		if len(fields) < 2 {
			redColor.Fprintln(writer, "usage: print <name>")
			return
		}
		v := in.Trace.Scope.Local(in.Trace, fields[1])
		yellowColor.Fprintf(writer, "%s = %s\n", fields[1], v.Explain())
	case "pyify":
		out, err := in.Trace.PrintPyify()
		if err != nil {
			redColor.Fprintf(writer, "pyify: %s\n", err.Error())
			return
		}
		fmt.Fprint(writer, out)
	default:
		redColor.Fprintf(writer, "unknown command %q\n", fields[0])
	}
}

// stepOnce advances the engine by one statement, reporting io.EOF as a
// clean program-finished message rather than an error. It returns false
// once the program has finished, so "continue" knows to stop looping.
func stepOnce(in *ssi.Interpreter, writer io.Writer) bool {
	res, err := in.Step()
	if err == io.EOF {
		greenColor.Fprintln(writer, "program finished")
		return false
	}
	if err != nil {
		redColor.Fprintf(writer, "%s\n", err.Error())
		return false
	}
	if res != nil && res.Value != nil {
		yellowColor.Fprintf(writer, "-> %s\n", res.Value.Explain())
	}
	return true
}
