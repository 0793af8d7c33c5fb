package memory

import "strings"

const defaultChunkSize = 2000

// Chunk is one indexable slice of a document.
type Chunk struct {
	Content string
	Index   int
	Total   int
}

// chunkByLines splits content into chunks of at most size bytes,
// never breaking inside a line. Content that already fits is returned
// as a single chunk.
func chunkByLines(content string, size int) []Chunk {
	if size <= 0 {
		size = defaultChunkSize
	}
	if len(content) <= size {
		return []Chunk{{Content: content, Index: 0, Total: 1}}
	}

	lines := strings.Split(content, "\n")

	var chunks []Chunk
	var current strings.Builder
	for _, line := range lines {
		lineWithNewline := line + "\n"
		if current.Len() > 0 && current.Len()+len(lineWithNewline) > size {
			chunks = append(chunks, Chunk{Content: current.String(), Index: len(chunks)})
			current.Reset()
		}
		current.WriteString(lineWithNewline)
	}
	if current.Len() > 0 {
		chunks = append(chunks, Chunk{Content: current.String(), Index: len(chunks)})
	}

	for i := range chunks {
		chunks[i].Total = len(chunks)
	}
	return chunks
}
