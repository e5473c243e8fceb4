// Package corpus loads the read-only list of names that workers sample request
// batches from.
package corpus

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math/rand"
	"os"
	"strings"
)

// DefaultNames is used when no corpus file is available.
var DefaultNames = []string{
	"竈門炭治郎", "竈門禰豆子", "我妻善逸", "嘴平伊之助",
	"冨岡義勇", "胡蝶しのぶ", "煉獄杏寿郎", "宇髄天元",
	"時透無一郎", "甘露寺蜜璃", "伊黒小芭内", "不死川実弥",
	"悲鳴嶼行冥", "産屋敷耀哉", "鱗滝左近次", "桑島慈悟郎",
}

// ErrEmpty is returned when a corpus file contains no names.
var ErrEmpty = errors.New("corpus contains no names")

// Corpus is an immutable list of names. It is safe for concurrent use.
type Corpus struct {
	names []string
}

// New copies names into a Corpus, dropping blank entries.
func New(names []string) (*Corpus, error) {
	cleaned := make([]string, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			cleaned = append(cleaned, n)
		}
	}
	if len(cleaned) == 0 {
		return nil, ErrEmpty
	}
	return &Corpus{names: cleaned}, nil
}

// Default returns a corpus of DefaultNames.
func Default() *Corpus {
	return &Corpus{names: append([]string(nil), DefaultNames...)}
}

// Load reads a corpus file with one name per line. A missing file yields the
// default corpus with fromFile set to false; any other failure is returned.
func Load(path string) (c *Corpus, fromFile bool, err error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Default(), false, nil
		}
		return nil, false, fmt.Errorf("open corpus: %w", err)
	}
	defer file.Close()

	c, err = Read(file)
	if err != nil {
		return nil, false, fmt.Errorf("read corpus %s: %w", path, err)
	}
	return c, true, nil
}

// Read parses names from r, one per line. Blank lines are ignored.
func Read(r io.Reader) (*Corpus, error) {
	var names []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		names = append(names, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return New(names)
}

// Len returns the number of names.
func (c *Corpus) Len() int {
	if c == nil {
		return 0
	}
	return len(c.names)
}

// Names returns a copy of the names.
func (c *Corpus) Names() []string {
	if c == nil {
		return nil
	}
	return append([]string(nil), c.names...)
}

// Sample draws min(n, Len()) distinct names uniformly at random without
// replacement. When n exceeds the corpus size the whole corpus is returned in
// random order. rnd must not be shared between goroutines.
func (c *Corpus) Sample(rnd *rand.Rand, n int) []string {
	size := c.Len()
	if n > size {
		n = size
	}
	if n <= 0 {
		return nil
	}

	// Partial Fisher-Yates over an index permutation; the backing names stay untouched.
	idx := make([]int, size)
	for i := range idx {
		idx[i] = i
	}
	batch := make([]string, n)
	for i := 0; i < n; i++ {
		j := i + rnd.Intn(size-i)
		idx[i], idx[j] = idx[j], idx[i]
		batch[i] = c.names[idx[i]]
	}
	return batch
}
