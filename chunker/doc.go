// Package chunker splits document text into overlapping word windows.
//
// Text is tokenized on whitespace. Windows are Size words long and start
// every Stride words, so consecutive chunks share Size-Stride words of
// context. The final window may be shorter. Chunking is deterministic: the
// same text always yields the same chunks in the same order.
//
//	chunks := chunker.Chunk(doc.Text) // 500-word windows, 450-word stride
package chunker
