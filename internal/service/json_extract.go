package service

import "strings"

// extractFirstJSONArray devuelve el primer arreglo JSON balanceado del texto.
func extractFirstJSONArray(input string) string {
	return extractFirstJSON(input, '[', ']')
}

func extractFirstJSON(input string, open, close byte) string {
	start := strings.IndexByte(input, open)
	if start == -1 {
		return ""
	}

	inString := false
	escape := false
	depth := 0

	for i := start; i < len(input); i++ {
		ch := input[i]

		if inString {
			if escape {
				escape = false
				continue
			}
			if ch == '\\' {
				escape = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return input[start : i+1]
			}
			if depth < 0 {
				return ""
			}
		}
	}

	return ""
}
