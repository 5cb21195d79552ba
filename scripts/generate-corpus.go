//go:build ignore

// Generates a synthetic text corpus for load testing the indexer.
// Usage: go run scripts/generate-corpus.go -docs 1000 -output testdata/corpus
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var (
	numDocs    = flag.Int("docs", 1000, "Number of documents to generate")
	paragraphs = flag.Int("paragraphs", 6, "Paragraphs per document")
	outputDir  = flag.String("output", "testdata/corpus", "Output directory")
	seed       = flag.Int64("seed", 42, "Random seed for reproducibility")
)

// Each topic has its own vocabulary so queries have a clear right answer.
var topics = map[string][]string{
	"astronomy": {"telescope", "nebula", "orbit", "galaxy", "spectrum", "comet", "parallax", "redshift"},
	"cooking":   {"simmer", "braise", "emulsion", "caramelize", "stock", "knead", "marinade", "roux"},
	"geology":   {"sediment", "basalt", "tectonic", "erosion", "magma", "fault", "stratum", "quartz"},
	"medicine":  {"diagnosis", "antibody", "dosage", "symptom", "vaccine", "enzyme", "cardiac", "biopsy"},
	"sailing":   {"halyard", "tack", "keel", "spinnaker", "windward", "mooring", "jib", "starboard"},
}

var filler = []string{
	"the", "a", "process", "often", "requires", "careful", "attention", "to", "each",
	"step", "and", "results", "depend", "on", "conditions", "observed", "during", "work",
}

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	names := make([]string, 0, len(topics))
	for name := range topics {
		names = append(names, name)
	}
	sort.Strings(names)

	for i := 0; i < *numDocs; i++ {
		topic := names[i%len(names)]
		dir := filepath.Join(*outputDir, topic)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		path := filepath.Join(dir, fmt.Sprintf("doc-%05d.txt", i))
		if err := os.WriteFile(path, []byte(document(rng, topics[topic])), 0o644); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}
	fmt.Printf("Generated %d documents in %s\n", *numDocs, *outputDir)
}

func document(rng *rand.Rand, vocab []string) string {
	var sb strings.Builder
	for p := 0; p < *paragraphs; p++ {
		sentences := 3 + rng.Intn(4)
		for s := 0; s < sentences; s++ {
			sb.WriteString(sentence(rng, vocab))
			sb.WriteString(" ")
		}
		sb.WriteString("\n\n")
	}
	return sb.String()
}

func sentence(rng *rand.Rand, vocab []string) string {
	n := 8 + rng.Intn(10)
	words := make([]string, n)
	for i := range words {
		if rng.Intn(3) == 0 {
			words[i] = vocab[rng.Intn(len(vocab))]
		} else {
			words[i] = filler[rng.Intn(len(filler))]
		}
	}
	words[0] = strings.ToUpper(words[0][:1]) + words[0][1:]
	return strings.Join(words, " ") + "."
}
