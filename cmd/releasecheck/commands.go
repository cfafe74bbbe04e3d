package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/urfave/cli/v3"
)

var errNotOurs = errors.New("no release information for slug")

// newApp builds the root command. Output of one-shot commands goes to out.
func newApp(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:  "releasecheck",
		Usage: "Check a release registry for newer versions of an installed plugin",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Config files, merged in order",
				Value:   defaultConfigFiles,
			},
		},
		Writer: out,
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "Poll for updates and serve the host adapter",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					p, err := build(cmd.StringSlice("config"))
					if err != nil {
						return err
					}
					return serve(ctx, p)
				},
			},
			{
				Name:  "check",
				Usage: "Run one update cycle and print the update descriptor",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return oneShot(ctx, cmd, out, runCheck)
				},
			},
			{
				Name:  "info",
				Usage: "Print release information for a slug",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "slug",
						Usage: "Repository slug, defaults to the configured repository",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					slug := cmd.String("slug")
					return oneShot(ctx, cmd, out, func(ctx context.Context, p runParams) (any, error) {
						return runInfo(ctx, p, slug)
					})
				},
			},
			{
				Name:  "version",
				Usage: "Print the installed version read from the manifest",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return oneShot(ctx, cmd, out, func(ctx context.Context, p runParams) (any, error) {
						v, err := p.Checker.GetLocalVersion(ctx)
						if err != nil {
							return nil, err
						}
						return map[string]string{"plugin": p.Checker.Identity().PluginID(), "version": v}, nil
					})
				},
			},
		},
	}
}

func oneShot(ctx context.Context, cmd *cli.Command, out io.Writer, fn func(context.Context, runParams) (any, error)) error {
	p, err := build(cmd.StringSlice("config"))
	if err != nil {
		return err
	}
	if err := p.open(ctx); err != nil {
		return err
	}

	result, runErr := fn(ctx, p)
	if err := p.close(); err != nil {
		p.Logger.WarnW("close transient store", "error", err)
	}
	if runErr != nil {
		return runErr
	}
	return writeJSON(out, result)
}

func runCheck(ctx context.Context, p runParams) (any, error) {
	t, err := p.Poller.PollOnce(ctx)
	if err != nil {
		return nil, err
	}
	d, ok := t.Response[p.Checker.Identity().PluginID()]
	if !ok {
		return map[string]any{"update": nil}, nil
	}
	return map[string]any{"update": d}, nil
}

func runInfo(ctx context.Context, p runParams, slug string) (any, error) {
	if slug == "" {
		slug = p.Checker.Identity().Repository
	}
	info, ok := p.Checker.DescribeRelease(ctx, slug)
	if !ok {
		return nil, fmt.Errorf("%w %q", errNotOurs, slug)
	}
	return info, nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
