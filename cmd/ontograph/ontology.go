package main

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/scrypster/ontograph/internal/config"
	"github.com/scrypster/ontograph/internal/ontology"
)

// ontologies is shared by every command in the process so an ontology file
// is parsed and validated once.
var ontologies = ontology.NewCache()

func runOntology(cfg *config.Config, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("ontology", flag.ContinueOnError)
	fs.SetOutput(stderr)
	path := fs.String("path", cfg.Ontology.Path, "Ontology YAML file")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	onto, err := ontologies.Get(*path)
	if err != nil {
		printError(stderr, err)
		return 1
	}

	bold := color.New(color.Bold)
	color.New(color.FgGreen).Fprintf(stdout, "Ontology %s is valid\n\n", *path)
	if onto.Domain() != "" {
		fmt.Fprintf(stdout, "Domain:    %s\n", onto.Domain())
	}
	if onto.Version() != "" {
		fmt.Fprintf(stdout, "Version:   %s\n", onto.Version())
	}
	fmt.Fprintf(stdout, "Entities:  %s\n", strings.Join(onto.EntityTypes(), ", "))
	fmt.Fprintf(stdout, "Relations: %s\n\n", strings.Join(onto.RelationTypes(), ", "))

	bold.Fprintln(stdout, "Validation schema:")
	schema := onto.ValidationSchema()
	for _, t := range onto.EntityTypes() {
		rels, ok := schema[t]
		if !ok {
			fmt.Fprintf(stdout, "  %-14s (no outgoing relations)\n", t)
			continue
		}
		fmt.Fprintf(stdout, "  %-14s %s\n", t, strings.Join(rels, ", "))
	}
	return 0
}
