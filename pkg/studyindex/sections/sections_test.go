package sections

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/studyindex/pkg/studyindex/docread"
	"github.com/cognicore/studyindex/pkg/studyindex/internalerr"
)

func para(text, style string) docread.Paragraph {
	if style == "" {
		style = "Normal"
	}
	return docread.Paragraph{Text: text, Style: style}
}

func tocDocument() *docread.Document {
	return &docread.Document{Paragraphs: []docread.Paragraph{
		para("Study Proposal", "Title"),                           // 0
		para("Prepared for: Acme Labs", ""),                       // 1
		para("TABLE OF CONTENTS", "TOC Heading"),                  // 2
		para("1.\tIntroduction and Background\t3", "toc 1"),       // 3
		para("1.1\tAbbreviations\t3", "toc 2"),                    // 4
		para("2.\tExperimental Procedures\t4", "toc 1"),           // 5
		para("2.1\tAnimal Description\t4", "toc 2"),               // 6
		para("2.2\tMissing Section\t5", "toc 2"),                  // 7
		para("Terms and Conditions\t6", "toc 1"),                  // 8
		{Text: "", Style: "Normal", PageBreak: true},              // 9
		para("Introduction and Background", "Heading 1"),          // 10
		para("Some background.", ""),                              // 11
		para("Abbreviations", "Heading 2"),                        // 12
		para("FST: Forced swim test", ""),                         // 13
		para("Experimental Procedures", "Heading 1"),              // 14
		para("Animal Description", "Heading 2"),                   // 15
		para("Species: Rat", ""),                                  // 16
		para("Animal Description", "Normal"),                      // 17
		para("Terms and Conditions", "Heading 1"),                 // 18
		para("Payment is due in 30 days.", ""),                    // 19
	}}
}

func TestFromTOC(t *testing.T) {
	ix, err := New().FromTOC(tocDocument())
	require.NoError(t, err)
	assert.Equal(t, StrategyTOC, ix.Strategy)

	assert.Equal(t, []Section{
		{Key: TitlePage, Start: 0, End: 2, Depth: 1},
		{Key: "table of contents", Start: 2, End: 10, Depth: 1},
		{Key: "introduction and background", Start: 10, End: 14, Depth: 1},
		{Key: "abbreviations", Start: 12, End: 14, Depth: 2},
		{Key: "experimental procedures", Start: 14, End: 18, Depth: 1},
		{Key: "animal description", Start: 15, End: 18, Depth: 2},
		{Key: "terms and conditions", Start: 18, End: 20, Depth: 1},
	}, ix.Sections())

	_, ok := ix.Get("missing section")
	assert.False(t, ok)

	s, ok := ix.Find("Animal")
	require.True(t, ok)
	assert.Equal(t, 15, s.Start)
	assert.Equal(t, Section{Key: TitlePage, Start: 0, End: 2, Depth: 1}, ix.TitlePage())
}

func TestFromTOCLongBlockUsesTabNumberLines(t *testing.T) {
	doc := tocDocument()
	// Push the first page break far away.
	doc.Paragraphs[9].PageBreak = false
	x := New()
	x.LongTOC = 5
	ix, err := x.FromTOC(doc)
	require.NoError(t, err)
	_, ok := ix.Get("terms and conditions")
	assert.True(t, ok)
}

func TestFromTOCWithoutHeadingsFails(t *testing.T) {
	doc := &docread.Document{Paragraphs: []docread.Paragraph{
		para("Table of Contents", ""),
		para("1.\tIntroduction\t2", ""),
		para("Introduction", "Normal"),
	}}
	_, err := New().FromTOC(doc)
	assert.ErrorIs(t, err, ErrNoHeadings)
}

func TestOutlineDepth(t *testing.T) {
	assert.Equal(t, 1, outlineDepth("1."))
	assert.Equal(t, 2, outlineDepth("2.1"))
	assert.Equal(t, 3, outlineDepth("2.1.4"))
	assert.Equal(t, 1, outlineDepth("A"))
}

func TestFromHeadings(t *testing.T) {
	doc := &docread.Document{Paragraphs: []docread.Paragraph{
		para("Novel Object Recognition Proposal", "Title"), // 0
		para("Introduction and Background", ""),            // 1
		para("Background text", ""),                        // 2
		para("Animal Description", ""),                     // 3
		para("Species: Mouse", ""),                         // 4
		para("Methods", ""),                                // 5
		para("Terms and Conditions", ""),                   // 6
		para("Project Manager", ""),                        // 7
		para("Jane Doe", ""),                               // 8
	}}
	ix, err := New().FromHeadings(doc)
	require.NoError(t, err)
	assert.Equal(t, StrategyHeadings, ix.Strategy)

	intro, ok := ix.Get("introduction and background")
	require.True(t, ok)
	assert.Equal(t, Section{Key: "introduction and background", Start: 1, End: 6, Depth: 1}, intro)

	// "background" first appears inside the intro title, then exactly.
	bg, ok := ix.Get("background")
	require.True(t, ok)
	assert.Equal(t, 1, bg.Start)

	// "terms" is only a loose match inside "terms and conditions".
	terms, ok := ix.Get("terms")
	require.True(t, ok)
	assert.Equal(t, 6, terms.Start)

	pm, ok := ix.Find("project manager")
	require.True(t, ok)
	assert.Equal(t, Section{Key: "project manager", Start: 7, End: 9, Depth: 2}, pm)

	assert.Equal(t, 1, ix.TitlePage().End)
}

func TestExactMatchMovesSection(t *testing.T) {
	doc := &docread.Document{Paragraphs: []docread.Paragraph{
		para("Methods", ""),
		para("filler", ""),
		para("Methods", ""),
		para("more", ""),
	}}
	ix, err := New().FromHeadings(doc)
	require.NoError(t, err)
	s, ok := ix.Get("methods")
	require.True(t, ok)
	assert.Equal(t, 2, s.Start)
	assert.Equal(t, 4, s.End)
}

func TestIndexFallsBackAndReportsUnstructured(t *testing.T) {
	doc := &docread.Document{Paragraphs: []docread.Paragraph{
		para("Animal Description", ""),
		para("Species: Rat", ""),
	}}
	ix, err := New().Index(doc)
	require.NoError(t, err)
	assert.Equal(t, StrategyHeadings, ix.Strategy)

	_, err = New().Index(&docread.Document{Paragraphs: []docread.Paragraph{para("nothing here", "")}})
	assert.ErrorIs(t, err, internalerr.ErrUnstructured)
	assert.ErrorIs(t, err, ErrNoTOC)
}
