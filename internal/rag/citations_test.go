package rag

import (
	"reflect"
	"testing"
)

func TestNormalizePath(t *testing.T) {
	tests := map[string]string{
		" Contracts/NDA.pdf ": "contracts/nda.pdf",
		"./nda.pdf":           "nda.pdf",
		"dir\\MSA.PDF":        "dir/msa.pdf",
		"folder/":             "folder",
	}
	for in, want := range tests {
		if got := normalizePath(in); got != want {
			t.Errorf("normalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMatchFilePath(t *testing.T) {
	tests := []struct {
		cited, name string
		want        bool
	}{
		{"NDA.pdf", "NDA.pdf", true},
		{"nda.PDF", "NDA.pdf", true},
		{"contracts/NDA.pdf", "NDA.pdf", true},
		{"NDA", "NDA.pdf", true},
		{"NDA_Template", "NDA_Template.docx", true},
		{"mastercontract", "MasterContract.pdf", true},
		{"MSA.pdf", "NDA.pdf", false},
		{"NDA.docx", "NDA.pdf", false},
		{"", "NDA.pdf", false},
	}
	for _, tt := range tests {
		if got := matchFilePath(tt.cited, tt.name); got != tt.want {
			t.Errorf("matchFilePath(%q, %q) = %v, want %v", tt.cited, tt.name, got, tt.want)
		}
	}
}

func TestSanitizeCitations(t *testing.T) {
	allowed := []string{"NDA.pdf", "MSA.pdf"}
	tests := []struct {
		name   string
		answer string
		want   string
		cited  []string
	}{
		{
			name:   "keeps allowed citations",
			answer: "Term is two years [NDA.pdf]. Fees are monthly [MSA.pdf].",
			want:   "Term is two years [NDA.pdf]. Fees are monthly [MSA.pdf].",
			cited:  []string{"NDA.pdf", "MSA.pdf"},
		},
		{
			name:   "drops invented file",
			answer: "Renewal is automatic [Lease.docx]. Term is two years [NDA.pdf].",
			want:   "Renewal is automatic. Term is two years [NDA.pdf].",
			cited:  []string{"NDA.pdf"},
		},
		{
			name:   "filters lists",
			answer: "Both agree [NDA.pdf, Other.pdf; msa.pdf].",
			want:   "Both agree [NDA.pdf, MSA.pdf].",
			cited:  []string{"NDA.pdf", "MSA.pdf"},
		},
		{
			name:   "leaves links and non file brackets",
			answer: "See [the docs](https://example.com) and note [1].",
			want:   "See [the docs](https://example.com) and note [1].",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, cited := sanitizeCitations(tt.answer, allowed)
			if got != tt.want {
				t.Fatalf("answer = %q, want %q", got, tt.want)
			}
			if !reflect.DeepEqual(cited, tt.cited) {
				t.Fatalf("cited = %v, want %v", cited, tt.cited)
			}
		})
	}
}
