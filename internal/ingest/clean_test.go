package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFixEncoding(t *testing.T) {
	in := "“Smart” quotes – and ‘dashes’—done… ok"

	assert.Equal(t, `"Smart" quotes - and 'dashes'-done... ok`, FixEncoding(in))
}

func TestMergeHyphenation(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"line break", "hybrid retri-\nval works", "hybrid retrieval works"},
		{"space", "retri- val", "retrieval"},
		{"compound kept", "state-of-the-art", "state-of-the-art"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MergeHyphenation(tt.in))
		})
	}
}

func TestRemoveCitations(t *testing.T) {
	in := "BM25 is strong [1]. Dense retrieval helps [2, 3] (Karpukhin, 2020) too (Lewis et al., 2021)."

	assert.Equal(t, "BM25 is strong . Dense retrieval helps   too .", RemoveCitations(in))
}

func TestRemoveHeaders(t *testing.T) {
	in := "Page 3\nbody line\n  CONFIDENTIAL \nPage 4 of 10\nPage three stays"

	assert.Equal(t, "body line\nPage three stays", RemoveHeaders(in))
}

func TestRemovePageNumbers(t *testing.T) {
	in := "first\n 12 \nsecond 12\n7"

	assert.Equal(t, "first\nsecond 12", RemovePageNumbers(in))
}

func TestNormalizeWhitespace(t *testing.T) {
	in := "  one \t two  \n\n\n\n three   \n"

	assert.Equal(t, "one two\n\nthree\n", NormalizeWhitespace(in))
}

func TestClean_AllSteps(t *testing.T) {
	// Given: a raw page with every artefact Clean handles
	in := "Confidential\n“Hybrid” retri-\nval [4]   blends   scores.\n\n\n\n12\nPage 2\n"

	// When: cleaned with every step
	got := Clean(in, DefaultCleanOptions())

	// Then: only the prose survives
	assert.Equal(t, `"Hybrid" retrieval blends scores.`, got)
}

func TestClean_NoSteps(t *testing.T) {
	in := "  Page 1\n[1]  "

	assert.Equal(t, "Page 1\n[1]", Clean(in, CleanOptions{}))
}
