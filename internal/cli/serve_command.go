package cli

import (
	"errors"
	"flag"
	"strings"

	"solotranscribe/internal/runstore"
	"solotranscribe/internal/server"
)

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	manifest := fs.String("manifest", "", "path to manifest.json or the batch output directory")
	addr := fs.String("addr", "127.0.0.1:8088", "listen address")
	common := addCommonFlags(fs)

	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*manifest) == "" {
		fs.Usage()
		return errors.New("--manifest is required")
	}
	path, err := runstore.ResolveManifestPath(strings.TrimSpace(*manifest))
	if err != nil {
		return err
	}
	// Fail early on an unreadable manifest; handlers reread it per request.
	if _, err := runstore.LoadManifest(path); err != nil {
		return err
	}

	cfg, err := common.load()
	if err != nil {
		return err
	}
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signalContext()
	defer stop()
	return server.ListenAndServe(ctx, server.NewServer(strings.TrimSpace(*addr), path, a.logger), a.logger)
}
