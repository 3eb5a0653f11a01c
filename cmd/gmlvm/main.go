// cmd/gmlvm is the command-line front end: compile a script, run it, or
// serve a project's live world over the inspector endpoint. Kept to plain
// os.Args dispatch rather than the stdlib flag package, the same shape the
// teacher's own CLI uses for its subcommand switch.
package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"gmlvm/internal/assets"
	"gmlvm/internal/assets/sqlsource"
	"gmlvm/internal/devserver"
	"gmlvm/internal/errors"
	"gmlvm/internal/project"
	"gmlvm/internal/vm"
	"gmlvm/internal/world"
)

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		showUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "run":
		runCommand(args[1:])
	case "build":
		buildCommand(args[1:])
	case "serve":
		serveCommand(args[1:])
	case "help", "-h", "--help":
		showUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", args[0])
		showUsage()
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println("gmlvm - compile and run GML-style scripts")
	fmt.Println()
	fmt.Println("usage:")
	fmt.Println("  gmlvm run <file>              compile and execute a single script")
	fmt.Println("  gmlvm build <file>            compile a script, reporting errors only")
	fmt.Println("  gmlvm serve <driver> <dsn>     load a project from a database and serve its")
	fmt.Println("                                 inspector over a WebSocket endpoint")
	fmt.Println()
	fmt.Println("driver is one of: sqlite, postgres, mysql, mssql")
}

// singleScriptGame wraps one file as the lone script a `run`/`build`
// invocation compiles, named "main" regardless of the file's own name so
// fault messages read the same across every script run this way.
func singleScriptGame(path string) (*project.Game, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return &project.Game{Scripts: []project.Script{{Name: "main", Body: body}}}, nil
}

func runCommand(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: gmlvm run <file>")
		os.Exit(1)
	}

	game, err := singleScriptGame(args[0])
	if err != nil {
		log.Fatal(err)
	}

	a, d, errCount := assets.Build(game, assets.Bindings{}, func() io.Writer { return os.Stderr }, false)
	if errCount > 0 {
		fmt.Fprintf(os.Stderr, "%d compile error(s)\n", errCount)
		os.Exit(1)
	}

	w := world.New()
	th := vm.NewThread(w, a, d)

	result, err := th.Execute(assets.Script(0), nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(result.String())
}

func buildCommand(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: gmlvm build <file>")
		os.Exit(1)
	}

	game, err := singleScriptGame(args[0])
	if err != nil {
		log.Fatal(err)
	}

	_, _, errCount := assets.Build(game, assets.Bindings{}, func() io.Writer { return os.Stderr }, true)
	if errCount > 0 {
		fmt.Fprintf(os.Stderr, "%d compile error(s)\n", errCount)
		os.Exit(1)
	}
	fmt.Printf("%s: compiled cleanly\n", args[0])
}

func serveCommand(args []string) {
	if len(args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: gmlvm serve <driver> <dsn>")
		os.Exit(1)
	}
	driver, dsn := args[0], args[1]

	src, err := sqlsource.Open(driver, dsn)
	if err != nil {
		log.Fatal(err)
	}
	defer src.Close()

	game, err := src.Load()
	if err != nil {
		log.Fatal(err)
	}

	a, d, errCount := assets.Build(game, assets.Bindings{}, func() io.Writer { return os.Stderr }, false)
	if errCount > 0 {
		fmt.Fprintf(os.Stderr, "%d compile error(s)\n", errCount)
		os.Exit(1)
	}

	w := world.New()
	srv := devserver.NewServer(w)
	const addr = ":8787"
	if err := srv.ListenAndServe(addr); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("inspector listening on %s/inspect\n", addr)

	th := vm.NewThread(w, a, d)
	runEvents(th, w, game, srv)

	select {}
}

// runEvents creates one instance per object and runs every event it owns
// once against it, reporting any fault the inspector's connected clients
// over the devserver. This is a stand-in for the out-of-scope host loop
// that would otherwise drive `th` (§1: the project loader and host are
// external collaborators); it exists only to give `serve` a populated
// world and a Thread the inspector actually reports on, rather than an
// empty one.
func runEvents(th *vm.Thread, w *world.World, game *project.Game, srv *devserver.Server) {
	for oi, obj := range game.Objects {
		inst := w.CreateInstance(oi)
		th.SetSelf(inst.ID)
		th.SetOther(inst.ID)
		for _, ev := range obj.Events {
			fn := assets.Event(oi, ev.Type, ev.Kind)
			if _, err := th.Execute(fn, nil); err != nil {
				if rerr, ok := err.(*errors.RuntimeError); ok {
					srv.NotifyFault(rerr)
				}
			}
		}
	}
}
