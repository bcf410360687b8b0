package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func runCLI(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

// fingerprints returns n lines hash,offset with hashes base..base+n-1 and
// offsets shifted by shift.
func fingerprints(base, n, shift int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteString(strconv.Itoa(base+i) + "," + strconv.Itoa(i*10+shift))
		b.WriteByte('\n')
	}
	return b.String()
}

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

func TestNoArgsPrintsUsage(t *testing.T) {
	code, stdout, stderr := runCLI()
	assert.Equal(t, 1, code)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "Usage:")
}

func TestUnknownCommand(t *testing.T) {
	code, _, stderr := runCLI("frobnicate")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Unknown command: frobnicate")
}

func TestBadGlobalFlags(t *testing.T) {
	for _, args := range [][]string{
		{"-bin", "0", "list"},
		{"-delim", "::", "list"},
		{"-workers", "x", "list"},
	} {
		code, _, stderr := runCLI(args...)
		assert.Equal(t, 1, code, args)
		assert.Contains(t, stderr, "Usage:", args)
	}
}

func TestMatchWrongArgCount(t *testing.T) {
	code, _, stderr := runCLI("match", "only-one.csv")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "pipes match <snippet>")
}

func TestMatchPairwise(t *testing.T) {
	dir := t.TempDir()
	master := writeFile(t, dir, "master.csv", fingerprints(1, 200, 0))
	snippet := writeFile(t, dir, "snippet.csv", fingerprints(51, 100, -300))

	code, stdout, stderr := runCLI("match", snippet, master)
	require.Equal(t, 0, code, stderr)
	assert.Equal(t, master+"\t"+snippet+"\t100\n", stdout)
}

func TestMatchPairwiseTab(t *testing.T) {
	dir := t.TempDir()
	body := strings.ReplaceAll(fingerprints(1, 20, 0), ",", "\t")
	master := writeFile(t, dir, "master.tsv", body)

	code, stdout, stderr := runCLI("-delim", "tab", "match", master, master)
	require.Equal(t, 0, code, stderr)
	assert.True(t, strings.HasSuffix(stdout, "\t20\n"), stdout)
}

func TestMatchMalformedSnippet(t *testing.T) {
	dir := t.TempDir()
	master := writeFile(t, dir, "master.csv", fingerprints(1, 10, 0))
	snippet := writeFile(t, dir, "snippet.csv", "1,0\n2;10\n")

	code, _, stderr := runCLI("match", snippet, master)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "line 2")
}

func TestIngestMatchListDelete(t *testing.T) {
	dir := t.TempDir()
	corpus := filepath.Join(dir, "corpus.sqlite")
	master := writeFile(t, dir, "master.csv", fingerprints(1, 300, 0))
	other := writeFile(t, dir, "other.csv", fingerprints(10000, 300, 0))
	snippet := writeFile(t, dir, "snippet.csv", fingerprints(101, 150, -1000))

	code, stdout, stderr := runCLI("-corpus", corpus, "ingest", master, "-name", "Master take")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Master take")
	assert.Contains(t, stdout, "300")

	code, _, stderr = runCLI("ingest", "-corpus", corpus, other)
	require.Equal(t, 0, code, stderr)

	code, stdout, stderr = runCLI("match", snippet, corpus)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "CandidateId:")
	assert.Contains(t, stdout, "best match: 1 (Master take) with 150 aligned hashes at offset 2000")

	code, stdout, stderr = runCLI("-threshold", "150", "match", snippet, corpus)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "no match (threshold 150)")

	code, stdout, stderr = runCLI("-corpus", corpus, "list")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Master take")
	assert.Contains(t, stdout, "other")

	code, stdout, stderr = runCLI("-corpus", corpus, "delete", "1")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Deleted recording 1")

	code, _, stderr = runCLI("-corpus", corpus, "delete", "1")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "not found")
}

func TestMatchMissingCorpus(t *testing.T) {
	dir := t.TempDir()
	snippet := writeFile(t, dir, "snippet.csv", fingerprints(1, 5, 0))

	code, _, stderr := runCLI("match", snippet, filepath.Join(dir, "none.sqlite"))
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "corpus does not exist")
}

func TestIngestRequiresFile(t *testing.T) {
	code, _, stderr := runCLI("ingest", "-name", "x")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "pipes ingest")
}

func TestDeleteInvalidID(t *testing.T) {
	code, _, stderr := runCLI("-corpus", filepath.Join(t.TempDir(), "c.sqlite"), "delete", "abc")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "invalid recording ID")
}
