// providercheck sends a one-line prompt to every configured provider and
// reports which of them answer.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog/log"

	"github.com/agroshakti/agroshakti-backend/internal/logging"
	"github.com/agroshakti/agroshakti-backend/internal/providers/catalog"
	"github.com/agroshakti/agroshakti-backend/internal/upstream/primary"
	"github.com/agroshakti/agroshakti-backend/internal/upstream/registry"
	"github.com/agroshakti/agroshakti-backend/internal/util"
)

var cli struct {
	ProvidersFile string        `help:"Provider catalog YAML file." type:"path" env:"AGRO_PROVIDERS_FILE"`
	Only          []string      `help:"Probe only these providers (comma separated)." sep:","`
	Prompt        string        `help:"Prompt sent to each provider." default:"In one sentence, what is the best season to sow wheat in Punjab?"`
	Parallel      int           `help:"Providers probed at once." default:"1"`
	Timeout       time.Duration `help:"Budget for the whole run." default:"3m"`
	Verbose       bool          `short:"v" help:"Print full provider errors and answers."`
}

func main() {
	kong.Parse(&cli,
		kong.Name("providercheck"),
		kong.Description("Check that every configured AgroShakti provider answers."),
		kong.UsageOnError(),
	)
	logging.Setup("warn", true)

	cat, err := catalog.Load(cli.ProvidersFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load provider catalog")
	}

	targets, err := buildTargets(cat, cli.Only)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build provider clients")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cli.Timeout)
	defer cancel()

	results := probe(ctx, targets, cli.Prompt, cli.Parallel)

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PROVIDER\tKIND\tSTATUS\tTIME\tDETAIL")
	failed := 0
	for _, r := range results {
		status := "disabled"
		switch {
		case r.OK:
			status = "ok"
		case r.Enabled:
			status = string(r.Failure)
			failed++
		}
		detail := r.Detail
		if !cli.Verbose {
			detail = util.Preview(detail, 70)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.Name, r.Kind, status, r.Duration.Round(time.Millisecond), detail)
	}
	_ = tw.Flush()

	if failed > 0 {
		os.Exit(1)
	}
}

// buildTargets returns the primary followed by every backup in attempt order.
func buildTargets(cat *catalog.Catalog, only []string) ([]target, error) {
	keep := map[string]bool{}
	for _, name := range only {
		if name = strings.ToLower(strings.TrimSpace(name)); name != "" {
			keep[name] = true
		}
	}
	want := func(name string) bool { return len(keep) == 0 || keep[name] }

	var targets []target
	if d := cat.Primary(); want(d.Name) {
		t := target{desc: d}
		if d.Enabled {
			t.client = primary.NewProvider(context.Background(), d)
		}
		targets = append(targets, t)
	}

	seen := map[string]bool{}
	add := func(d catalog.Descriptor) error {
		if seen[d.Name] || !want(d.Name) {
			return nil
		}
		seen[d.Name] = true
		t := target{desc: d}
		if d.Enabled {
			client, err := registry.New(d)
			if err != nil {
				return err
			}
			t.client = client
		}
		targets = append(targets, t)
		return nil
	}
	for _, d := range cat.Candidates() {
		if err := add(d); err != nil {
			return nil, err
		}
	}
	for _, d := range cat.Backups() {
		if err := add(d); err != nil {
			return nil, err
		}
	}
	return targets, nil
}
