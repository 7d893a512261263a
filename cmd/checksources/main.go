// Command checksources fetches every source in a sources file once and prints what
// each collector returned. Nothing is persisted or enriched.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/STRATINT/newsdesk/internal/config"
	"github.com/STRATINT/newsdesk/internal/ingestion"
	"github.com/STRATINT/newsdesk/internal/models"
)

func main() {
	file := flag.String("file", "./sources.yaml", "sources file to check")
	name := flag.String("source", "", "only check the named source")
	timeout := flag.Duration("timeout", 30*time.Second, "per-source fetch timeout")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	sources, err := config.LoadSources(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load sources: %v\n", err)
		os.Exit(1)
	}
	if len(sources) == 0 {
		fmt.Fprintf(os.Stderr, "no sources in %s\n", *file)
		os.Exit(1)
	}

	registry := ingestion.DefaultRegistry(ingestion.NewHTTPFetcher(nil))
	failed := checkSources(ctx, os.Stdout, registry, sources, ingestion.SourceFilter{Name: *name}, *timeout)
	if failed > 0 {
		os.Exit(1)
	}
}

// checkSources writes one line per matching source and returns how many failed.
func checkSources(ctx context.Context, w io.Writer, registry *ingestion.Registry, sources []models.Source, filter ingestion.SourceFilter, timeout time.Duration) int {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tKIND\tITEMS\tINVALID\tLATEST\tRESULT")

	failed := 0
	for _, src := range sources {
		if !filter.Match(src) {
			continue
		}
		items, invalid, latest, err := probe(ctx, registry, src, timeout)
		result := "ok"
		if err != nil {
			failed++
			result = err.Error()
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\n", src.Name, src.Kind, items, invalid, latest, result)
	}
	tw.Flush()
	return failed
}

func probe(ctx context.Context, registry *ingestion.Registry, src models.Source, timeout time.Duration) (items, invalid int, latest string, err error) {
	collector, err := registry.Lookup(src.Kind)
	if err != nil {
		return 0, 0, "-", err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	stream, err := collector.Fetch(ctx, src)
	if err != nil {
		return 0, 0, "-", err
	}

	latest = "-"
	for item := range stream.All() {
		if strings.TrimSpace(item.URL) == "" || strings.TrimSpace(item.Title) == "" {
			invalid++
			continue
		}
		if items == 0 {
			latest = ingestion.Excerpt(item.Title, 48)
		}
		items++
	}
	return items, invalid, latest, nil
}
