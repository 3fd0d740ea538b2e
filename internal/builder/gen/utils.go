package gen

import "strings"

// batch files want CRLF line endings
const crlf = "\r\n"

func write(sb *strings.Builder, s ...string) {
	for _, str := range s {
		sb.WriteString(str)
	}
}
