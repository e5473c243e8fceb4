package corpus_test

import (
	"math/rand"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/torosent/divideload/internal/corpus"
)

func TestLoadMissingFileFallsBackToDefault(t *testing.T) {
	c, fromFile, err := corpus.Load(filepath.Join(t.TempDir(), "missing.txt"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if fromFile {
		t.Fatal("fromFile = true for missing file")
	}
	if c.Len() != 16 {
		t.Fatalf("expected 16 default names, got %d", c.Len())
	}
	if !reflect.DeepEqual(c.Names(), corpus.DefaultNames) {
		t.Fatalf("default corpus mismatch: %v", c.Names())
	}
}

func TestLoadSkipsBlankLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "names.txt")
	content := "山田太郎\n\n  佐藤花子  \n\t\n鈴木一郎\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	c, fromFile, err := corpus.Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !fromFile {
		t.Fatal("fromFile = false for existing file")
	}
	want := []string{"山田太郎", "佐藤花子", "鈴木一郎"}
	if !reflect.DeepEqual(c.Names(), want) {
		t.Fatalf("Names() = %v, want %v", c.Names(), want)
	}
}

func TestLoadEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.txt")
	if err := os.WriteFile(path, []byte("\n\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, _, err := corpus.Load(path); err == nil {
		t.Fatal("expected error for corpus without names")
	}
}

func TestSampleSizeAndDistinct(t *testing.T) {
	c := corpus.Default()
	rnd := rand.New(rand.NewSource(1))

	for _, n := range []int{1, 5, 16, 40} {
		batch := c.Sample(rnd, n)
		want := n
		if want > c.Len() {
			want = c.Len()
		}
		if len(batch) != want {
			t.Fatalf("Sample(%d) returned %d names, want %d", n, len(batch), want)
		}
		seen := make(map[string]bool, len(batch))
		members := make(map[string]bool, c.Len())
		for _, name := range c.Names() {
			members[name] = true
		}
		for _, name := range batch {
			if !members[name] {
				t.Fatalf("sampled name %q not in corpus", name)
			}
			if seen[name] {
				t.Fatalf("duplicate name %q in batch of %d", name, n)
			}
			seen[name] = true
		}
	}
}

func TestSampleDeterministicWithSeed(t *testing.T) {
	c := corpus.Default()
	a := c.Sample(rand.New(rand.NewSource(99)), 5)
	b := c.Sample(rand.New(rand.NewSource(99)), 5)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("same seed produced different batches: %v vs %v", a, b)
	}
}

func TestSampleDoesNotMutateCorpus(t *testing.T) {
	c, err := corpus.New([]string{"a", "b", "c", "d"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	before := c.Names()
	rnd := rand.New(rand.NewSource(7))
	for i := 0; i < 10; i++ {
		c.Sample(rnd, 3)
	}
	if !reflect.DeepEqual(before, c.Names()) {
		t.Fatalf("corpus mutated: %v -> %v", before, c.Names())
	}
}

func TestReadLongLines(t *testing.T) {
	long := strings.Repeat("名", 30000)
	c, err := corpus.Read(strings.NewReader(long + "\n"))
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if c.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", c.Len())
	}
}
