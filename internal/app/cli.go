package app

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"

	"scenes/internal/config"
	"scenes/internal/domain"
	"scenes/internal/feed"
	mcpserver "scenes/internal/mcp"
	"scenes/internal/service"
)

const usage = `usage: scenes [-config path] <command> [args]

commands:
  serve [-transport stdio|http] [-addr :8090]   run the MCP server
  list                                          list scenes
  create <name>                                 create an empty scene
  delete <sceneId>                              delete a scene
  import <file>                                 import a *.scene.json bundle
  export [-dir dir] <sceneId>                   export a scene bundle
  eval <sceneId> <entityId>                     evaluate bindings against an entity
  render [-entity id] <sceneId>                 render a scene
  feed [-preview n] <name>                      run a configured feed
  feed -source type -set k=v [-key col] ...     run an ad-hoc feed
  feeds                                         list configured feeds and sources
  pending                                       list pending MCP approvals
  approve <id> | reject <id>                    resolve an MCP approval
  config                                        print the effective configuration
`

// Run parses args and executes one command, writing results to out.
func Run(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("scenes", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.Usage = func() { fmt.Fprint(out, usage) }
	cfgPath := fs.String("config", config.DefaultPath(), "configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return flag.ErrHelp
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	cmd, rest := fs.Arg(0), fs.Args()[1:]
	if cmd == "config" {
		data, err := cfg.Encode()
		if err != nil {
			return err
		}
		_, err = out.Write(data)
		return err
	}

	var emitter service.EventEmitter = service.NopEmitter{}
	if cmd == "serve" {
		emitter = service.LogEmitter{}
	}
	a, err := Open(ctx, cfg, emitter)
	if err != nil {
		return err
	}
	defer a.Close()

	switch cmd {
	case "serve":
		return a.cmdServe(ctx, rest)
	case "list":
		recs, err := a.Scenes.List()
		if err != nil {
			return err
		}
		return writeJSON(out, recs)
	case "create":
		name, err := oneArg(cmd, rest)
		if err != nil {
			return err
		}
		sess, err := a.Scenes.Create(ctx, name)
		if err != nil {
			return err
		}
		return writeJSON(out, map[string]any{"id": sess.ID, "name": name, "entityId": sess.EntityID})
	case "delete":
		id, err := oneArg(cmd, rest)
		if err != nil {
			return err
		}
		return a.Scenes.Delete(ctx, id)
	case "import":
		path, err := oneArg(cmd, rest)
		if err != nil {
			return err
		}
		sess, err := a.Scenes.ImportFile(ctx, path)
		if err != nil {
			return err
		}
		return writeJSON(out, map[string]any{"id": sess.ID, "name": sess.Editor.Header().Name, "report": sess.Report})
	case "export":
		return a.cmdExport(ctx, rest, out)
	case "eval":
		if len(rest) != 2 {
			return fmt.Errorf("eval: want <sceneId> <entityId>")
		}
		entity, err := parseEntityID(rest[1])
		if err != nil {
			return err
		}
		snap, err := a.Scenes.Evaluate(ctx, rest[0], entity)
		if err != nil {
			return err
		}
		return writeJSON(out, snap)
	case "render":
		return a.cmdRender(ctx, rest, out)
	case "feed":
		return a.cmdFeed(ctx, rest, out)
	case "feeds":
		return writeJSON(out, map[string]any{"feeds": a.Feeds.Jobs(), "sources": a.Feeds.ListSources()})
	case "pending":
		pending, err := mcpserver.PendingApprovals(a.db.Conn())
		if err != nil {
			return err
		}
		return writeJSON(out, pending)
	case "approve", "reject":
		id, err := oneArg(cmd, rest)
		if err != nil {
			return err
		}
		approved := cmd == "approve"
		if err := mcpserver.ResolveApproval(a.db.Conn(), id, approved); err != nil {
			return err
		}
		verb := "Rejected"
		if approved {
			verb = "Approved"
		}
		fmt.Fprintf(out, "%s %s\n", verb, id)
		return nil
	}
	fs.Usage()
	return fmt.Errorf("unknown command %q", cmd)
}

func (a *App) cmdServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	transport := fs.String("transport", TransportStdio, "transport mode: stdio or http")
	addr := fs.String("addr", ":8090", "listen address (only used with -transport http)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return a.Serve(ctx, *transport, *addr)
}

func (a *App) cmdExport(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	dir := fs.String("dir", "", "write <name>.scene.json into dir instead of stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := oneArg("export", fs.Args())
	if err != nil {
		return err
	}
	if *dir != "" {
		path, err := a.Scenes.ExportFile(ctx, id, *dir)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, path)
		return nil
	}
	b, err := a.Scenes.Export(ctx, id)
	if err != nil {
		return err
	}
	return writeJSON(out, b)
}

func (a *App) cmdRender(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	entity := fs.Int64("entity", 0, "evaluate bindings against this entity first")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := oneArg("render", fs.Args())
	if err != nil {
		return err
	}
	if *entity != 0 {
		if _, err := a.Scenes.Evaluate(ctx, id, domain.EntityID(*entity)); err != nil {
			return err
		}
	}
	nodes, err := a.Scenes.Render(ctx, id)
	if err != nil {
		return err
	}
	return writeJSON(out, nodes)
}

func (a *App) cmdFeed(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("feed", flag.ContinueOnError)
	source := fs.String("source", "", "source type for an ad-hoc feed")
	key := fs.String("key", "", "column holding the entity id")
	entity := fs.Int64("entity", 0, "write every record to this entity")
	preview := fs.Int("preview", 0, "print up to n transformed records instead of writing")
	var settings configFlags
	fs.Var(&settings, "set", "source config entry key=value (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var job feed.Job
	switch {
	case *source != "":
		if fs.NArg() != 0 {
			return fmt.Errorf("feed: -source and a feed name are exclusive")
		}
		job = feed.Job{Source: *source, Config: feed.SourceConfig(settings), Key: *key, Entity: *entity}
	default:
		name, err := oneArg("feed", fs.Args())
		if err != nil {
			return err
		}
		if job, err = a.Feeds.Job(name); err != nil {
			return err
		}
	}

	if *preview > 0 {
		recs, err := a.Feeds.Preview(ctx, job, *preview)
		if err != nil {
			return err
		}
		return writeJSON(out, recs)
	}
	run, err := a.Feeds.Run(ctx, job)
	if run != nil {
		if werr := writeJSON(out, run); werr != nil && err == nil {
			err = werr
		}
	}
	return err
}

// configFlags collects repeated -set key=value pairs.
type configFlags map[string]any

func (c *configFlags) String() string { return fmt.Sprint(map[string]any(*c)) }

func (c *configFlags) Set(v string) error {
	k, val, ok := strings.Cut(v, "=")
	if !ok || k == "" {
		return fmt.Errorf("want key=value, got %q", v)
	}
	if *c == nil {
		*c = configFlags{}
	}
	(*c)[k] = val
	return nil
}

func oneArg(cmd string, args []string) (string, error) {
	if len(args) != 1 || args[0] == "" {
		return "", fmt.Errorf("%s: want exactly one argument", cmd)
	}
	return args[0], nil
}

func parseEntityID(s string) (domain.EntityID, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("entity id %q: %w", s, err)
	}
	return domain.EntityID(n), nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// IsHelp reports whether err only signals that usage was printed.
func IsHelp(err error) bool {
	return errors.Is(err, flag.ErrHelp)
}
