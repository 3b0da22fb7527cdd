package knowledge

import (
	"errors"
	"strings"

	"kbbot/internal/domain"
)

// ErrEmptyDocument is returned when a document has no words to index.
var ErrEmptyDocument = errors.New("document has no text")

// chunkWords splits text into windows of size words, each sharing overlap
// words with the previous one.
func chunkWords(text, docID string, size, overlap int) []domain.Chunk {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	step := size - overlap
	if step <= 0 {
		step = size
	}

	var chunks []domain.Chunk
	for start := 0; start < len(words); start += step {
		end := min(start+size, len(words))
		chunks = append(chunks, domain.Chunk{
			DocumentID: docID,
			Index:      len(chunks),
			Content:    strings.Join(words[start:end], " "),
			Words:      end - start,
		})
		if end == len(words) {
			break
		}
	}
	return chunks
}
