package model

// MaxContextLength is the maximum number of characters of extracted document text sent to
// the inference service as grounding context.
const MaxContextLength = 10000

// TruncateContext cuts text to MaxContextLength characters. Characters are Unicode code
// points, not bytes.
func TruncateContext(text string) string {
	if len(text) <= MaxContextLength {
		return text
	}

	n := 0
	for i := range text {
		if n == MaxContextLength {
			return text[:i]
		}
		n++
	}
	return text
}
