package rag

import (
	"reflect"
	"testing"
)

func TestClassify(t *testing.T) {
	known := []string{
		"NDA.pdf",
		"Master_Services_Agreement_Long_Form.pdf",
		"AcmeSupplyContract.docx",
		"NDA_Template.docx",
		"notes.txt",
	}
	classifier := NewClassifier(map[string]string{"supply deal": "AcmeSupplyContract.docx"})

	tests := []struct {
		name      string
		query     string
		kind      IntentKind
		rule      string
		files     []string
		ambiguous bool
	}{
		{name: "inventory question", query: "What files are in memory?", kind: IntentInventory, rule: RuleInventory},
		{name: "inventory list command", query: "list all documents", kind: IntentInventory, rule: RuleInventory},
		{name: "inventory bare", query: "Which documents?", kind: IntentInventory, rule: RuleInventory},
		{name: "inventory indexed", query: "what's indexed", kind: IntentInventory, rule: RuleInventory},
		{name: "content question mentioning files", query: "Which files mention confidentiality?", kind: IntentGeneral, rule: RuleGeneral},
		{name: "full file name", query: "Summarize NDA_Template.docx please", kind: IntentTargetedFile, rule: RuleFilename, files: []string{"NDA_Template.docx"}},
		{name: "stem", query: "What does the NDA say about confidentiality?", kind: IntentTargetedFile, rule: RuleFilename, files: []string{"NDA.pdf", "NDA_Template.docx"}, ambiguous: true},
		{name: "acronym", query: "termination in the MSALF", kind: IntentTargetedFile, rule: RuleFilename, files: []string{"Master_Services_Agreement_Long_Form.pdf"}},
		{name: "contract type abbreviation", query: "What is the MSA payment schedule?", kind: IntentTargetedFile, rule: RuleFilename, files: []string{"Master_Services_Agreement_Long_Form.pdf"}},
		{name: "quoted span", query: `What does "Master Services Agreement" say about fees?`, kind: IntentTargetedFile, rule: RuleFilename, files: []string{"Master_Services_Agreement_Long_Form.pdf"}},
		{name: "camel case stem", query: "renewal terms of the acme supply contract", kind: IntentTargetedFile, rule: RuleFilename, files: []string{"AcmeSupplyContract.docx"}},
		{name: "configured alias", query: "When does the supply deal expire?", kind: IntentTargetedFile, rule: RuleFilename, files: []string{"AcmeSupplyContract.docx"}},
		{name: "general", query: "Summarize the indemnification obligations", kind: IntentGeneral, rule: RuleGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifier.Classify(tt.query, known, nil)
			if got.Kind != tt.kind {
				t.Fatalf("kind = %s, want %s", got.Kind, tt.kind)
			}
			if got.Rule != tt.rule {
				t.Fatalf("rule = %s, want %s", got.Rule, tt.rule)
			}
			if got.Query != tt.query {
				t.Fatalf("query = %q, want %q", got.Query, tt.query)
			}
			if tt.kind == IntentTargetedFile && !reflect.DeepEqual(got.FileNames, tt.files) {
				t.Fatalf("files = %v, want %v", got.FileNames, tt.files)
			}
			if got.Ambiguous != tt.ambiguous {
				t.Fatalf("ambiguous = %v, want %v", got.Ambiguous, tt.ambiguous)
			}
		})
	}
}

func TestClassifyInventoryCarriesSortedKnownNames(t *testing.T) {
	got := NewClassifier(nil).Classify("What files are in memory?", []string{"b.pdf", "a.pdf", "b.pdf"}, nil)
	if !reflect.DeepEqual(got.FileNames, []string{"a.pdf", "b.pdf"}) {
		t.Fatalf("FileNames = %v", got.FileNames)
	}
}

func TestClassifyLongerNameShadowsContainedName(t *testing.T) {
	got := NewClassifier(nil).Classify("In NDA_Template, who signs?", []string{"NDA.pdf", "NDA_Template.docx"}, nil)
	if got.Kind != IntentTargetedFile || !reflect.DeepEqual(got.FileNames, []string{"NDA_Template.docx"}) {
		t.Fatalf("got %+v", got)
	}
	if got.Ambiguous {
		t.Fatal("a single longest match is not ambiguous")
	}
}

func TestClassifyUnknownAcronymFallsBackToGeneral(t *testing.T) {
	got := NewClassifier(nil).Classify("What does the MSA say about fees?", []string{"NDA_Template.docx"}, nil)
	if got.Kind != IntentGeneral {
		t.Fatalf("kind = %s, want general", got.Kind)
	}
	if !reflect.DeepEqual(got.Unresolved, []string{"MSA"}) {
		t.Fatalf("Unresolved = %v", got.Unresolved)
	}
}

func TestClassifyUnknownCamelCaseName(t *testing.T) {
	got := NewClassifier(nil).Classify("In ContractX, what is the renewal term?", []string{"NDA.pdf", "MSA.pdf"}, nil)
	if got.Kind != IntentGeneral {
		t.Fatalf("kind = %s, want general", got.Kind)
	}
	if !reflect.DeepEqual(got.Unresolved, []string{"ContractX"}) {
		t.Fatalf("Unresolved = %v", got.Unresolved)
	}
}

func TestClassifyWithoutKnownFiles(t *testing.T) {
	got := NewClassifier(nil).Classify("What does NDA.pdf say?", nil, nil)
	if got.Kind != IntentGeneral {
		t.Fatalf("kind = %s, want general", got.Kind)
	}
	if !reflect.DeepEqual(got.Unresolved, []string{"NDA.pdf"}) {
		t.Fatalf("Unresolved = %v", got.Unresolved)
	}
}

func TestClassifyFollowUp(t *testing.T) {
	known := []string{"NDA.pdf", "MSA.pdf"}
	history := []Turn{
		{Role: "user", Content: "What does MSA.pdf say about payment?"},
		{Role: "assistant", Content: "Payment is due in 30 days [MSA.pdf]."},
		{Role: "user", Content: "And the weather?"},
		{Role: "assistant", Content: "I can only answer from your documents."},
	}
	got := NewClassifier(nil).Classify("Does this document allow termination for convenience?", known, history)
	if got.Kind != IntentTargetedFile || got.Rule != RuleFollowUp {
		t.Fatalf("got %+v", got)
	}
	if !reflect.DeepEqual(got.FileNames, []string{"MSA.pdf"}) {
		t.Fatalf("FileNames = %v", got.FileNames)
	}

	noHistory := NewClassifier(nil).Classify("Does this document allow termination?", known, nil)
	if noHistory.Kind != IntentGeneral {
		t.Fatalf("follow-up without history should be general, got %s", noHistory.Kind)
	}
}

func TestClassifyNamesIgnoreCase(t *testing.T) {
	known := []string{"MasterContract.pdf", "NDA.pdf", "supplyagreement.docx", "vendor_risk_assessment_v2.docx"}
	classifier := NewClassifier(nil)

	tests := []struct {
		query string
		files []string
	}{
		{query: "summarize MasterContract.pdf", files: []string{"MasterContract.pdf"}},
		{query: "summarize mastercontract.pdf", files: []string{"MasterContract.pdf"}},
		{query: "summarize MASTERCONTRACT.PDF", files: []string{"MasterContract.pdf"}},
		{query: "what does mastercontract say", files: []string{"MasterContract.pdf"}},
		{query: "renewal terms of the master contract", files: []string{"MasterContract.pdf"}},
		{query: "payment terms in SupplyAgreement", files: []string{"supplyagreement.docx"}},
		{query: "open items in the VRA", files: []string{"vendor_risk_assessment_v2.docx"}},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got := classifier.Classify(tt.query, known, nil)
			if got.Kind != IntentTargetedFile || got.Rule != RuleFilename {
				t.Fatalf("got %+v, want targeted file", got)
			}
			if !reflect.DeepEqual(got.FileNames, tt.files) {
				t.Fatalf("files = %v, want %v", got.FileNames, tt.files)
			}
			if len(got.Unresolved) != 0 {
				t.Fatalf("Unresolved = %v, want none", got.Unresolved)
			}
		})
	}
}

func TestAcronym(t *testing.T) {
	tests := []struct {
		stem string
		want string
	}{
		{stem: "Master_Services_Agreement", want: "msa"},
		{stem: "master_services_agreement", want: "msa"},
		{stem: "statement-of-work", want: "sow"},
		{stem: "vendor_risk_assessment_v2", want: "vra"},
		{stem: "AcmeSupply", want: "as"},
		{stem: "supply_deal", want: ""},
		{stem: "notes", want: ""},
	}
	for _, tt := range tests {
		if got := acronym(tt.stem); got != tt.want {
			t.Errorf("acronym(%q) = %q, want %q", tt.stem, got, tt.want)
		}
	}
}

func TestClassifyFollowUpIgnoresAssistantMentions(t *testing.T) {
	known := []string{"NDA.pdf", "MSA_Template.pdf"}
	history := []Turn{
		{Role: "user", Content: "What does NDA.pdf say about confidentiality?"},
		{Role: "assistant", Content: "Confidentiality lasts five years [NDA.pdf]. You could compare also MSA_Template.pdf."},
	}
	got := NewClassifier(nil).Classify("what else is in this document?", known, history)
	if got.Kind != IntentTargetedFile || got.Rule != RuleFollowUp {
		t.Fatalf("got %+v", got)
	}
	if !reflect.DeepEqual(got.FileNames, []string{"NDA.pdf"}) {
		t.Fatalf("FileNames = %v, want [NDA.pdf]", got.FileNames)
	}
}
