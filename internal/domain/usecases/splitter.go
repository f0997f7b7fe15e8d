package usecases

// DefaultSeparators are tried coarsest first: paragraph, line, sentence
// punctuation (ASCII and full-width), then whitespace. The empty separator means
// "any character" and is always the last resort.
var DefaultSeparators = []string{"\n\n", "\n", ".", "!", "?", "！", "？", "。", " ", ""}

// RecursiveSplitter cuts text into overlapping chunks, preferring the most
// natural boundary available. Lengths are counted in runes.
//
// Every chunk is at most chunkSize runes and adjacent chunks share at least
// overlap runes. Each chunk ends right after the last occurrence of the
// coarsest separator found in its window; when no separator occurs the chunk
// is cut at exactly chunkSize.
type RecursiveSplitter struct {
	chunkSize  int
	overlap    int
	separators [][]rune
}

// NewRecursiveSplitter creates a splitter. An overlap that is not smaller than
// chunkSize is reduced to half the chunk size.
func NewRecursiveSplitter(chunkSize, overlap int, separators []string) *RecursiveSplitter {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 2
	}
	if separators == nil {
		separators = DefaultSeparators
	}

	seps := make([][]rune, 0, len(separators))
	for _, s := range separators {
		if s == "" {
			continue
		}
		seps = append(seps, []rune(s))
	}

	return &RecursiveSplitter{
		chunkSize:  chunkSize,
		overlap:    overlap,
		separators: seps,
	}
}

// Split returns the chunks of text, in order. Text that fits in one chunk is
// returned whole.
func (s *RecursiveSplitter) Split(text string) []string {
	r := []rune(text)
	n := len(r)
	if n == 0 {
		return nil
	}
	if n <= s.chunkSize {
		return []string{text}
	}

	var chunks []string
	start := 0
	for {
		if n-start <= s.chunkSize {
			return append(chunks, string(r[start:]))
		}

		// A chunk must be longer than the overlap or the next one would not advance.
		end := s.boundary(r, start+s.overlap+1, start+s.chunkSize)
		chunks = append(chunks, string(r[start:end]))

		next := end
		if s.overlap > 0 {
			lo := end - 2*s.overlap
			if lo <= start {
				lo = start + 1
			}
			next = s.boundary(r, lo, end-s.overlap)
		}
		start = next
	}
}

// boundary returns the last position in [lo, hi] that directly follows the
// coarsest separator occurring there, or hi if none does.
func (s *RecursiveSplitter) boundary(r []rune, lo, hi int) int {
	if lo > hi {
		return hi
	}
	for _, sep := range s.separators {
		for p := hi; p >= lo; p-- {
			if hasSuffix(r[:p], sep) {
				return p
			}
		}
	}
	return hi
}

func hasSuffix(r, suffix []rune) bool {
	if len(suffix) > len(r) {
		return false
	}
	off := len(r) - len(suffix)
	for i, c := range suffix {
		if r[off+i] != c {
			return false
		}
	}
	return true
}
